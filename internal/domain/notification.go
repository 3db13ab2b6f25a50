package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side tells which party of a transfer a notification is addressed to
type Side string

const (
	SideSender   Side = "sender"
	SideReceiver Side = "receiver"
)

const (
	senderMessageFormat   = "Successfully transfer %s from your account to %s"
	receiverMessageFormat = "Successfully received %s on your account from %s"
)

// SenderMessage renders the message for the debited party
func SenderMessage(t Transfer) string {
	return fmt.Sprintf(senderMessageFormat, FormatAmount(t.Amount), t.AccountIDTo)
}

// ReceiverMessage renders the message for the credited party
func ReceiverMessage(t Transfer) string {
	return fmt.Sprintf(receiverMessageFormat, FormatAmount(t.Amount), t.AccountIDFrom)
}

// Notification is the payload delivered to an account holder
type Notification struct {
	AccountID string `json:"account_id"`
	Message   string `json:"message"`
}

// NotificationEnvelope wraps a notification with metadata for publishing
type NotificationEnvelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NotificationType is the envelope type for transfer notifications
const NotificationType = "TransferNotification"

// SerializeNotification converts a notification to JSON bytes with envelope
func SerializeNotification(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	envelope := NotificationEnvelope{
		Type:      NotificationType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	return json.Marshal(envelope)
}

// DeserializeNotification converts JSON bytes back to a Notification
func DeserializeNotification(data []byte) (Notification, error) {
	var envelope NotificationEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Notification{}, err
	}

	if envelope.Type != NotificationType {
		return Notification{}, fmt.Errorf("unknown notification type: %s", envelope.Type)
	}

	var n Notification
	if err := json.Unmarshal(envelope.Data, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}
