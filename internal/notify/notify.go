// Package notify delivers post-transfer messages to account holders.
// Delivery is best effort: a failed notification never undoes a transfer.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nathanyu/account-transfer/internal/domain"
)

// Notifier informs an account holder about a transfer
type Notifier interface {
	NotifyAboutTransfer(ctx context.Context, account domain.Account, message string) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger, or slog.Default when nil
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyAboutTransfer implements Notifier
func (n *LogNotifier) NotifyAboutTransfer(ctx context.Context, account domain.Account, message string) error {
	n.logger.InfoContext(ctx, "sending notification",
		slog.String("account_id", account.ID),
		slog.String("message", message),
	)
	return nil
}

// Multi fans a notification out to every notifier, in order.
// All notifiers are attempted; their errors are joined.
type Multi []Notifier

// NotifyAboutTransfer implements Notifier
func (m Multi) NotifyAboutTransfer(ctx context.Context, account domain.Account, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAboutTransfer(ctx, account, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
