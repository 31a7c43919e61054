package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/events"
	"github.com/santemarket/pharma-backend/pkg/workerpool"
)

type memoryNotificationStore struct {
	mu   sync.Mutex
	rows []*Notification
	err  error
}

func (s *memoryNotificationStore) Insert(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *n
	s.rows = append(s.rows, &cp)
	return nil
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	topic string
	key   string
	value []byte
}

func (p *capturePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{topic: topic, key: key, value: value})
	return nil
}

func (p *capturePublisher) snapshot() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	store := &memoryNotificationStore{}
	publisher := &capturePublisher{}
	pool := workerpool.New(workerpool.Config{Workers: 1, QueueSize: 8, ShutdownTimeout: time.Second}, nil)
	pool.Start()

	svc := NewService(store, publisher, pool, nil, zap.NewNop())

	err := svc.Notify(context.Background(), "user-1",
		"Prescription approuvée",
		"Votre prescription pour Amoxicilline 500mg a été approuvée",
		TypePrescriptionValidated,
		map[string]any{"prescription_request_id": "req-1"})
	require.NoError(t, err)

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, TypePrescriptionValidated, row.Type)
	assert.False(t, row.IsRead)

	// Drain the async publish.
	pool.Stop()

	// Prescription transitions land on both the notifications topic and the
	// lifecycle topic.
	messages := publisher.snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, events.TopicNotifications, messages[0].topic)
	assert.Equal(t, events.TopicPrescriptionLifecycle, messages[1].topic)
	assert.Equal(t, "user-1", messages[0].key)

	var event map[string]any
	require.NoError(t, json.Unmarshal(messages[0].value, &event))
	assert.Equal(t, row.ID, event["notification_id"])
	assert.Equal(t, "user-1", event["user_id"])
}

func TestNotifyWithoutPublisher(t *testing.T) {
	store := &memoryNotificationStore{}
	svc := NewService(store, nil, nil, nil, zap.NewNop())

	err := svc.Notify(context.Background(), "user-1", "Titre", "Message", TypeOrderCreated, nil)
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)
}

func TestNotifyStoreFailurePropagates(t *testing.T) {
	store := &memoryNotificationStore{err: assert.AnError}
	svc := NewService(store, nil, nil, nil, zap.NewNop())

	err := svc.Notify(context.Background(), "user-1", "Titre", "Message", TypeOrderCreated, nil)
	assert.Error(t, err)
}
