package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nathanyu/account-transfer/internal/domain"
	"github.com/nathanyu/account-transfer/internal/telemetry"
	"github.com/nats-io/nats.go"
)

// Subject is the NATS subject notifications are published on
const Subject = "transfers.notifications"

// Publisher is the subset of *nats.Conn used for publishing
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications to NATS without waiting for consumers
type NATSNotifier struct {
	pub     Publisher
	subject string
}

// NewNATSNotifier creates a notifier publishing on subject, or Subject when empty
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = Subject
	}
	return &NATSNotifier{pub: pub, subject: subject}
}

// NotifyAboutTransfer implements Notifier
func (n *NATSNotifier) NotifyAboutTransfer(_ context.Context, account domain.Account, message string) error {
	data, err := domain.SerializeNotification(domain.Notification{
		AccountID: account.ID,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	telemetry.NATSMessagesPublished.WithLabelValues(n.subject).Inc()
	return nil
}

// Connect opens a NATS connection with reconnect handling
func Connect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
