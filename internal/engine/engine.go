package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nathanyu/account-transfer/internal/account"
	"github.com/nathanyu/account-transfer/internal/domain"
	"github.com/nathanyu/account-transfer/internal/lockregistry"
	"github.com/nathanyu/account-transfer/internal/notify"
	"github.com/nathanyu/account-transfer/internal/telemetry"
	"github.com/nathanyu/account-transfer/internal/transferstore"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stages of a single Execute call, recorded as span events
const (
	stageValidating    = "validating"
	stageLockAcquiring = "lock_acquiring"
	stageCommitting    = "committing"
	stageNotifying     = "notifying"
)

// Outcomes of lock acquisition, as LockWaitDuration labels
const (
	lockResultAcquired    = "acquired"
	lockResultUnavailable = "unavailable"
)

var errLockBusy = errors.New("lock handle busy")

// TransferEngine moves money between accounts.
//
// Every transfer takes the lock handles of both accounts in ascending id
// order, whatever the direction of the transfer, so two transfers can never
// wait on each other in a cycle.
type TransferEngine struct {
	accounts  *account.Store
	locks     *lockregistry.Registry
	transfers *transferstore.Store
	notifier  notify.Notifier

	// acquireTimeout > 0 switches from blocking Lock to TryLock with backoff
	acquireTimeout time.Duration
}

// Option configures a TransferEngine
type Option func(*TransferEngine)

// WithAcquireTimeout bounds how long Execute may wait for a lock handle.
// When the bound is exceeded Execute fails with domain.ErrTransferUnavailable.
// Zero keeps blocking acquisition.
func WithAcquireTimeout(d time.Duration) Option {
	return func(e *TransferEngine) {
		e.acquireTimeout = d
	}
}

// NewTransferEngine creates a new transfer engine
func NewTransferEngine(
	accounts *account.Store,
	locks *lockregistry.Registry,
	transfers *transferstore.Store,
	notifier notify.Notifier,
	opts ...Option,
) *TransferEngine {
	e := &TransferEngine{
		accounts:  accounts,
		locks:     locks,
		transfers: transfers,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute moves amount from fromID to toID and returns the committed record.
// Identical calls are not deduplicated: each success is a distinct transfer.
func (e *TransferEngine) Execute(ctx context.Context, fromID, toID string, amount decimal.Decimal) (domain.Transfer, error) {
	start := time.Now()

	if telemetry.Tracer != nil {
		var span trace.Span
		ctx, span = telemetry.Tracer.Start(ctx, "engine.Execute",
			trace.WithAttributes(
				attribute.String("from_account", fromID),
				attribute.String("to_account", toID),
				attribute.String("amount", amount.String()),
			),
		)
		defer span.End()
	}

	transfer, err := e.execute(ctx, fromID, toID, amount)

	status := "success"
	span := trace.SpanFromContext(ctx)
	if err != nil {
		status = strings.ToLower(domain.ErrorCode(err))
		if span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		slog.WarnContext(ctx, "transfer rejected",
			slog.String("from_account", fromID),
			slog.String("to_account", toID),
			slog.String("amount", amount.String()),
			slog.String("reason", err.Error()),
		)
	} else if span.IsRecording() {
		span.SetAttributes(attribute.String("transfer_id", transfer.ID.String()))
		span.SetStatus(codes.Ok, "")
	}

	telemetry.TransfersTotal.WithLabelValues(status).Inc()
	telemetry.TransferAmount.WithLabelValues(status).Observe(amount.InexactFloat64())
	telemetry.TransferProcessingDuration.Observe(time.Since(start).Seconds())

	return transfer, err
}

func (e *TransferEngine) execute(ctx context.Context, fromID, toID string, amount decimal.Decimal) (domain.Transfer, error) {
	stage(ctx, stageValidating)

	if err := validate(fromID, toID, amount); err != nil {
		return domain.Transfer{}, err
	}

	from, err := e.accounts.Get(fromID)
	if err != nil {
		return domain.Transfer{}, err
	}
	to, err := e.accounts.Get(toID)
	if err != nil {
		return domain.Transfer{}, err
	}

	if e.lacksFunds(from, amount) {
		return domain.Transfer{}, fmt.Errorf("account %s: %w", from.ID, domain.ErrInsufficientFunds)
	}

	var (
		transfer         domain.Transfer
		fromSnap, toSnap domain.Account
	)
	err = e.withAccountLocks(ctx, from.ID, to.ID, func() error {
		stage(ctx, stageCommitting)

		// Authoritative check: the balance may have moved since the pre-check.
		if from.Balance.LessThan(amount) {
			return fmt.Errorf("account %s: %w", from.ID, domain.ErrInsufficientFunds)
		}

		transfer = domain.NewTransfer(from.ID, to.ID, amount)
		if err := e.transfers.Append(transfer); err != nil {
			return err
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)

		fromSnap, toSnap = *from, *to
		return nil
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	telemetry.TransferRecords.Set(float64(e.transfers.Len()))
	telemetry.LockHandles.Set(float64(e.locks.Len()))

	slog.InfoContext(ctx, "transfer committed",
		slog.String("transfer_id", transfer.ID.String()),
		slog.String("from_account", transfer.AccountIDFrom),
		slog.String("to_account", transfer.AccountIDTo),
		slog.String("amount", transfer.Amount.String()),
	)

	stage(ctx, stageNotifying)
	e.notify(ctx, fromSnap, domain.SideSender, domain.SenderMessage(transfer))
	e.notify(ctx, toSnap, domain.SideReceiver, domain.ReceiverMessage(transfer))

	return transfer, nil
}

func validate(fromID, toID string, amount decimal.Decimal) error {
	if fromID == "" || toID == "" {
		return fmt.Errorf("account ids are required: %w", domain.ErrInvalidInput)
	}
	if fromID == toID {
		return fmt.Errorf("account %s: %w", fromID, domain.ErrSameAccount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s: %w", amount, domain.ErrInvalidAmount)
	}
	return nil
}

// lacksFunds is an early, advisory balance check. It only looks when the
// handle is free so it never waits; the check under both locks decides.
func (e *TransferEngine) lacksFunds(acc *domain.Account, amount decimal.Decimal) bool {
	h := e.locks.Handle(acc.ID)
	if !h.TryLock() {
		return false
	}
	defer h.Unlock()
	return acc.Balance.LessThan(amount)
}

// withAccountLocks runs fn holding the handles of both accounts.
// Handles are taken in ascending id order and released in reverse.
func (e *TransferEngine) withAccountLocks(ctx context.Context, idA, idB string, fn func() error) error {
	stage(ctx, stageLockAcquiring)

	firstID, secondID := idA, idB
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, second := e.locks.Handle(firstID), e.locks.Handle(secondID)

	waitStart := time.Now()
	observeWait := func(result string) {
		telemetry.LockWaitDuration.WithLabelValues(result).Observe(time.Since(waitStart).Seconds())
	}

	if err := e.acquire(ctx, first); err != nil {
		observeWait(lockResultUnavailable)
		return fmt.Errorf("lock account %s: %w", firstID, err)
	}
	defer first.Unlock()

	if err := e.acquire(ctx, second); err != nil {
		observeWait(lockResultUnavailable)
		return fmt.Errorf("lock account %s: %w", secondID, err)
	}
	defer second.Unlock()
	observeWait(lockResultAcquired)

	return fn()
}

func (e *TransferEngine) acquire(ctx context.Context, h *sync.Mutex) error {
	if e.acquireTimeout <= 0 {
		h.Lock()
		return nil
	}
	if h.TryLock() {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = e.acquireTimeout

	err := backoff.Retry(func() error {
		if h.TryLock() {
			return nil
		}
		return errLockBusy
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransferUnavailable, err)
	}
	return nil
}

func (e *TransferEngine) notify(ctx context.Context, acc domain.Account, side domain.Side, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAboutTransfer(ctx, acc, message); err != nil {
		telemetry.NotificationsTotal.WithLabelValues(string(side), "failed").Inc()
		slog.ErrorContext(ctx, "notification failed",
			slog.String("account_id", acc.ID),
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.NotificationsTotal.WithLabelValues(string(side), "sent").Inc()
}

// CreateAccount provisions a new account
func (e *TransferEngine) CreateAccount(ctx context.Context, id string, balance decimal.Decimal) (domain.Account, error) {
	acc := domain.NewAccount(id, balance)
	// Copy before Create: once stored, the balance belongs to the lock handle.
	snap := *acc
	if err := e.accounts.Create(acc); err != nil {
		return domain.Account{}, err
	}
	telemetry.AccountCount.Set(float64(e.accounts.Len()))

	slog.InfoContext(ctx, "account created",
		slog.String("account_id", id),
		slog.String("balance", balance.String()),
	)
	return snap, nil
}

// Account returns a copy of the account, read under its lock handle
func (e *TransferEngine) Account(id string) (domain.Account, error) {
	acc, err := e.accounts.Get(id)
	if err != nil {
		return domain.Account{}, err
	}

	h := e.locks.Handle(id)
	h.Lock()
	defer h.Unlock()
	return *acc, nil
}

// Balance returns the current balance of an account
func (e *TransferEngine) Balance(id string) (decimal.Decimal, error) {
	acc, err := e.Account(id)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func stage(ctx context.Context, name string) {
	trace.SpanFromContext(ctx).AddEvent(name)
}
