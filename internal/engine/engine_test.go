package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nathanyu/account-transfer/internal/account"
	"github.com/nathanyu/account-transfer/internal/domain"
	"github.com/nathanyu/account-transfer/internal/lockregistry"
	"github.com/nathanyu/account-transfer/internal/telemetry"
	"github.com/nathanyu/account-transfer/internal/transferstore"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type notification struct {
	account domain.Account
	message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (r *recordingNotifier) NotifyAboutTransfer(_ context.Context, account domain.Account, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{account: account, message: message})
	return r.err
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.account.ID+": "+c.message)
	}
	return out
}

type fixture struct {
	engine    *TransferEngine
	accounts  *account.Store
	locks     *lockregistry.Registry
	transfers *transferstore.Store
	notifier  *recordingNotifier
}

// Test helper to create an engine with the given opening balances
func setupTestEngine(t *testing.T, balances map[string]int64, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		accounts:  account.NewStore(),
		locks:     lockregistry.New(),
		transfers: transferstore.New(),
		notifier:  &recordingNotifier{},
	}
	f.engine = NewTransferEngine(f.accounts, f.locks, f.transfers, f.notifier, opts...)

	for id, balance := range balances {
		_, err := f.engine.CreateAccount(context.Background(), id, decimal.NewFromInt(balance))
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) assertBalance(t *testing.T, id string, want int64) {
	t.Helper()
	got, err := f.engine.Balance(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "balance of %s: want %d, got %s", id, want, got)
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestExecute_FullBalance(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})

	tr, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(1000))
	require.NoError(t, err)

	assert.NotEmpty(t, tr.ID.String())
	assert.Equal(t, "acc-1", tr.AccountIDFrom)
	assert.Equal(t, "acc-2", tr.AccountIDTo)
	assert.True(t, tr.Amount.Equal(amount(1000)))

	f.assertBalance(t, "acc-1", 0)
	f.assertBalance(t, "acc-2", 2000)

	assert.Equal(t, []string{
		"acc-1: Successfully transfer 1000 from your account to acc-2",
		"acc-2: Successfully received 1000 on your account from acc-1",
	}, f.notifier.messages())

	stored, ok := f.transfers.Get(tr.ID)
	require.True(t, ok)
	assert.Equal(t, tr, stored)
}

func TestExecute_TwoSequentialTransfers(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})
	ctx := context.Background()

	first, err := f.engine.Execute(ctx, "acc-1", "acc-2", amount(300))
	require.NoError(t, err)
	second, err := f.engine.Execute(ctx, "acc-1", "acc-2", amount(400))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	f.assertBalance(t, "acc-1", 300)
	f.assertBalance(t, "acc-2", 1700)

	assert.Equal(t, []string{
		"acc-1: Successfully transfer 300 from your account to acc-2",
		"acc-2: Successfully received 300 on your account from acc-1",
		"acc-1: Successfully transfer 400 from your account to acc-2",
		"acc-2: Successfully received 400 on your account from acc-1",
	}, f.notifier.messages())
}

func TestExecute_NotifiesWithPostTransferSnapshot(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})

	_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(250))
	require.NoError(t, err)

	require.Len(t, f.notifier.calls, 2)
	assert.True(t, f.notifier.calls[0].account.Balance.Equal(amount(750)))
	assert.True(t, f.notifier.calls[1].account.Balance.Equal(amount(1250)))
}

func TestExecute_DecimalAmounts(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1, "acc-2": 0})

	for range 10 {
		_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", decimal.RequireFromString("0.1"))
		require.NoError(t, err)
	}

	f.assertBalance(t, "acc-1", 0)
	f.assertBalance(t, "acc-2", 1)
}

func TestExecute_InsufficientFunds(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})

	_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(999999))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	f.assertBalance(t, "acc-1", 1000)
	f.assertBalance(t, "acc-2", 1000)
	assert.Equal(t, 0, f.transfers.Len())
	assert.Empty(t, f.notifier.messages())
}

func TestExecute_Validation(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})

	tests := []struct {
		name   string
		from   string
		to     string
		amount decimal.Decimal
		want   error
	}{
		{"empty from", "", "acc-2", amount(100), domain.ErrInvalidInput},
		{"empty to", "acc-1", "", amount(100), domain.ErrInvalidInput},
		{"both empty", "", "", amount(100), domain.ErrInvalidInput},
		{"same account", "acc-1", "acc-1", amount(100), domain.ErrSameAccount},
		{"same account negative amount", "acc-1", "acc-1", amount(-1), domain.ErrSameAccount},
		{"zero amount", "acc-1", "acc-2", amount(0), domain.ErrInvalidAmount},
		{"negative amount", "acc-1", "acc-2", amount(-5), domain.ErrInvalidAmount},
		{"unknown to", "acc-1", "non-existing", amount(100), domain.ErrAccountNotFound},
		{"unknown from", "non-existing", "acc-2", amount(100), domain.ErrAccountNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Execute(context.Background(), tc.from, tc.to, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	f.assertBalance(t, "acc-1", 1000)
	f.assertBalance(t, "acc-2", 1000)
	assert.Equal(t, 0, f.transfers.Len())
}

func TestExecute_NotIdempotent(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 0})
	ctx := context.Background()

	a, err := f.engine.Execute(ctx, "acc-1", "acc-2", amount(100))
	require.NoError(t, err)
	b, err := f.engine.Execute(ctx, "acc-1", "acc-2", amount(100))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, f.transfers.Len())
	f.assertBalance(t, "acc-1", 800)
}

func TestExecute_NotificationFailureKeepsTransfer(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000})
	f.notifier.err = errors.New("smtp down")

	tr, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(100))
	require.NoError(t, err)

	assert.Len(t, f.notifier.messages(), 2, "both parties are still attempted")
	f.assertBalance(t, "acc-1", 900)
	f.assertBalance(t, "acc-2", 1100)
	_, ok := f.transfers.Get(tr.ID)
	assert.True(t, ok)
}

// Test total balance conservation across a sequence of transfers
func TestExecute_Conservation(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"a": 1000, "b": 2000, "c": 3000})
	accounts := []string{"a", "b", "c"}

	for i := range 100 {
		from := accounts[i%3]
		to := accounts[(i+1)%3]
		_, err := f.engine.Execute(context.Background(), from, to, amount(int64(10+i%50)))
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}

	total := decimal.Zero
	for _, id := range accounts {
		b, err := f.engine.Balance(id)
		require.NoError(t, err)
		assert.False(t, b.IsNegative())
		total = total.Add(b)
	}
	assert.True(t, total.Equal(amount(6000)), "total should be conserved, got %s", total)
}

func TestExecute_ConcurrentDisjointPairs(t *testing.T) {
	const pairs, perPair = 8, 200

	balances := make(map[string]int64, pairs*2)
	for p := range pairs {
		balances[fmt.Sprintf("src-%d", p)] = perPair
		balances[fmt.Sprintf("dst-%d", p)] = 0
	}
	f := setupTestEngine(t, balances)

	var g errgroup.Group
	for p := range pairs {
		for range perPair {
			g.Go(func() error {
				_, err := f.engine.Execute(context.Background(), fmt.Sprintf("src-%d", p), fmt.Sprintf("dst-%d", p), amount(1))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for p := range pairs {
		f.assertBalance(t, fmt.Sprintf("src-%d", p), 0)
		f.assertBalance(t, fmt.Sprintf("dst-%d", p), perPair)
	}
	assert.Equal(t, pairs*perPair, f.transfers.Len())
	assert.Len(t, f.notifier.messages(), 2*pairs*perPair)
}

// Opposite-direction transfers over a small set of accounts. Acquiring locks
// in caller order would deadlock here.
func TestExecute_ConcurrentOppositeDirections_NoDeadlock(t *testing.T) {
	accounts := []string{"acc-1", "acc-2", "acc-3", "acc-4"}
	balances := make(map[string]int64, len(accounts))
	for _, id := range accounts {
		balances[id] = 100
	}
	f := setupTestEngine(t, balances)

	const workers, rounds = 16, 300
	var succeeded atomic.Int64

	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		for w := range workers {
			g.Go(func() error {
				for r := range rounds {
					from := accounts[(w+r)%len(accounts)]
					to := accounts[(w+r+1+w%3)%len(accounts)]
					if from == to {
						continue
					}
					if w%2 == 1 {
						from, to = to, from
					}
					_, err := f.engine.Execute(context.Background(), from, to, amount(int64(1+r%7)))
					switch {
					case err == nil:
						succeeded.Add(1)
					case errors.Is(err, domain.ErrInsufficientFunds):
					default:
						return err
					}
				}
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("transfers did not finish: probable deadlock")
	}

	total := decimal.Zero
	for _, id := range accounts {
		b, err := f.engine.Balance(id)
		require.NoError(t, err)
		assert.False(t, b.IsNegative(), "balance of %s went negative: %s", id, b)
		total = total.Add(b)
	}
	assert.True(t, total.Equal(amount(400)), "total should be conserved, got %s", total)
	assert.Equal(t, int(succeeded.Load()), f.transfers.Len())
}

func TestExecute_ConcurrentDrainNeverNegative(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"sender": 100, "receiver": 0})

	var successes, failures atomic.Int64
	var g errgroup.Group
	for range 50 {
		g.Go(func() error {
			_, err := f.engine.Execute(context.Background(), "sender", "receiver", amount(20))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				failures.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(5), successes.Load())
	assert.Equal(t, int64(45), failures.Load())
	f.assertBalance(t, "sender", 0)
	f.assertBalance(t, "receiver", 100)
}

func TestExecute_TryLockUnavailable(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000},
		WithAcquireTimeout(20*time.Millisecond))

	held := f.locks.Handle("acc-2")
	held.Lock()

	_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(100))
	held.Unlock()

	assert.ErrorIs(t, err, domain.ErrTransferUnavailable)
	assert.Equal(t, 0, f.transfers.Len())
	assert.Empty(t, f.notifier.messages())

	// The handle taken before the failure must have been released.
	other := f.locks.Handle("acc-1")
	require.True(t, other.TryLock(), "acc-1 handle leaked")
	other.Unlock()

	f.assertBalance(t, "acc-1", 1000)
	f.assertBalance(t, "acc-2", 1000)
}

func lockWaitSamples(t *testing.T, result string) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, telemetry.LockWaitDuration.WithLabelValues(result).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestExecute_LockWaitRecordedOnTimeout(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000},
		WithAcquireTimeout(5*time.Millisecond))
	before := lockWaitSamples(t, lockResultUnavailable)

	held := f.locks.Handle("acc-1")
	held.Lock()
	_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(1))
	held.Unlock()
	require.ErrorIs(t, err, domain.ErrTransferUnavailable)

	assert.Equal(t, before+1, lockWaitSamples(t, lockResultUnavailable))

	acquiredBefore := lockWaitSamples(t, lockResultAcquired)
	_, err = f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(1))
	require.NoError(t, err)
	assert.Equal(t, acquiredBefore+1, lockWaitSamples(t, lockResultAcquired))
}

func TestExecute_TryLockWaitsForRelease(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000},
		WithAcquireTimeout(time.Second))

	held := f.locks.Handle("acc-1")
	held.Lock()
	go func() {
		time.Sleep(10 * time.Millisecond)
		held.Unlock()
	}()

	_, err := f.engine.Execute(context.Background(), "acc-2", "acc-1", amount(100))
	require.NoError(t, err)

	f.assertBalance(t, "acc-1", 1100)
	f.assertBalance(t, "acc-2", 900)
}

func TestExecute_TryLockHonoursContext(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 1000, "acc-2": 1000},
		WithAcquireTimeout(time.Minute))

	held := f.locks.Handle("acc-1")
	held.Lock()
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.engine.Execute(ctx, "acc-1", "acc-2", amount(1))
	assert.ErrorIs(t, err, domain.ErrTransferUnavailable)
}

func TestCreateAccountAndLookup(t *testing.T) {
	f := setupTestEngine(t, nil)

	acc, err := f.engine.CreateAccount(context.Background(), "acc-9", amount(42))
	require.NoError(t, err)
	assert.Equal(t, "acc-9", acc.ID)

	_, err = f.engine.CreateAccount(context.Background(), "acc-9", amount(1))
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	got, err := f.engine.Account("acc-9")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(amount(42)))

	_, err = f.engine.Balance("missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// Accounts may receive transfers the moment they are created; provisioning
// must not read the balance once another goroutine can write it.
func TestCreateAccount_ConcurrentWithIncomingTransfers(t *testing.T) {
	const accounts = 200
	f := setupTestEngine(t, map[string]int64{"src": accounts})

	var g errgroup.Group
	for i := range accounts {
		id := fmt.Sprintf("dst-%d", i)
		g.Go(func() error {
			acc, err := f.engine.CreateAccount(context.Background(), id, amount(0))
			if err != nil {
				return err
			}
			if !acc.Balance.IsZero() {
				return fmt.Errorf("%s: created with balance %s", id, acc.Balance)
			}
			return nil
		})
		g.Go(func() error {
			// The account may not exist yet; retry until it does.
			for {
				_, err := f.engine.Execute(context.Background(), "src", id, amount(1))
				if errors.Is(err, domain.ErrAccountNotFound) {
					time.Sleep(time.Microsecond)
					continue
				}
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	f.assertBalance(t, "src", 0)
	for i := range accounts {
		f.assertBalance(t, fmt.Sprintf("dst-%d", i), 1)
	}
}

func TestLockHandlesSurviveAccountRemoval(t *testing.T) {
	f := setupTestEngine(t, map[string]int64{"acc-1": 10, "acc-2": 10})

	_, err := f.engine.Execute(context.Background(), "acc-1", "acc-2", amount(1))
	require.NoError(t, err)
	before := f.locks.Handle("acc-1")

	f.accounts.Clear()
	f.transfers.Clear()

	assert.Same(t, before, f.locks.Handle("acc-1"))
	assert.Equal(t, 2, f.locks.Len())
}
