// Package notify delivers structured events to users. Delivery is two-layered:
// a durable notification row the frontend polls, plus a Kafka event for
// downstream channels (push, email). Everything here is best-effort: callers
// log failures and never roll back domain transitions because of them.
package notify

import (
	"context"
	"time"
)

// Notification types emitted by the prescription and cart cores.
const (
	TypePrescriptionRequest   = "prescription_request"
	TypePrescriptionValidated = "prescription_validated"
	TypePrescriptionExpired   = "prescription_expired"
	TypeOrderCreated          = "order_created"
)

// Notification is a durable, user-visible message.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	IsRead    bool
	CreatedAt time.Time
}

// Notifier is the interface the domain services depend on.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, typ string, data map[string]any) error
}

// Store persists notification rows.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
}

// EventPublisher pushes notification events onto the stream.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}
