package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/events"
	"github.com/santemarket/pharma-backend/pkg/circuitbreaker"
	"github.com/santemarket/pharma-backend/pkg/workerpool"
)

// Service is the default Notifier: it persists the notification row
// synchronously, then publishes the matching stream event asynchronously on
// the worker pool, behind a circuit breaker. A publish failure never surfaces
// to the caller.
type Service struct {
	store     Store
	publisher EventPublisher
	breaker   *circuitbreaker.CircuitBreaker
	pool      *workerpool.Pool
	logger    *zap.Logger

	// created observes inserted rows; nil-safe.
	created interface{ Inc() }
}

// NewService creates the notifier. The publisher may be nil, in which case
// only the durable row is written. createdCounter may be nil.
func NewService(store Store, publisher EventPublisher, pool *workerpool.Pool, createdCounter interface{ Inc() }, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig("notification-events"), logger),
		pool:      pool,
		logger:    logger,
		created:   createdCounter,
	}
}

// notificationEvent is the wire shape published to the notifications topic.
type notificationEvent struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Notify writes the durable notification and schedules the stream event.
func (s *Service) Notify(ctx context.Context, userID, title, message, typ string, data map[string]any) error {
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if s.created != nil {
		s.created.Inc()
	}

	s.publishAsync(n)
	return nil
}

func (s *Service) publishAsync(n *Notification) {
	if s.publisher == nil || s.pool == nil {
		return
	}

	payload, err := json.Marshal(notificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		s.logger.Error("marshal notification event", zap.Error(err))
		return
	}

	// Prescription transitions are mirrored to the lifecycle topic for
	// analytics; the notifications topic drives user-facing delivery.
	topics := []string{events.TopicNotifications}
	switch n.Type {
	case TypePrescriptionRequest, TypePrescriptionValidated, TypePrescriptionExpired:
		topics = append(topics, events.TopicPrescriptionLifecycle)
	}

	err = s.pool.Submit(func(ctx context.Context) {
		for _, topic := range topics {
			err := s.breaker.Execute(ctx, func() error {
				return s.publisher.Publish(ctx, topic, n.UserID, payload)
			})
			if err != nil {
				s.logger.Warn("notification event publish failed",
					zap.String("notification_id", n.ID),
					zap.String("topic", topic),
					zap.Error(err))
			}
		}
	})
	if err != nil {
		s.logger.Warn("notification event dropped",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}
