package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedStore struct {
	mu      sync.Mutex
	batches [][]ExpiredRequest
	errs    []error
	calls   int
}

func (s *scriptedStore) ExpireDue(_ context.Context, _ time.Time) ([]ExpiredRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var batch []ExpiredRequest
	if i < len(s.batches) {
		batch = s.batches[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return batch, err
}

func (s *scriptedStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type capturedNotification struct {
	userID  string
	typ     string
	message string
	data    map[string]any
}

type captureNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
}

func (n *captureNotifier) Notify(_ context.Context, userID, _, message, typ string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, capturedNotification{userID: userID, typ: typ, message: message, data: data})
	return nil
}

func (n *captureNotifier) snapshot() []capturedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]capturedNotification(nil), n.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorExpiresAndNotifies(t *testing.T) {
	store := &scriptedStore{
		batches: [][]ExpiredRequest{{
			{RequestID: "req-1", UserID: "user-1", PharmacyName: "Pharmacie du Centre", ProductName: "Amoxicilline 500mg"},
			{RequestID: "req-2", UserID: "user-2", PharmacyName: "Pharmacie du Centre", ProductName: "Doliprane 1000mg"},
		}},
	}
	notifier := &captureNotifier{}

	m := New(store, notifier, Config{Interval: 10 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond}, nil, zap.NewNop())
	m.Start()
	defer m.Stop()

	waitFor(t, func() bool { return len(notifier.snapshot()) >= 2 })

	calls := notifier.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "user-1", calls[0].userID)
	assert.Equal(t, "prescription_expired", calls[0].typ)
	assert.Contains(t, calls[0].message, "Amoxicilline 500mg")
	assert.Contains(t, calls[0].message, "Pharmacie du Centre")
	assert.Equal(t, "req-1", calls[0].data["prescription_request_id"])

	// Later cycles find nothing due; notifications stay at one per expiry.
	waitFor(t, func() bool { return store.callCount() >= 3 })
	assert.Len(t, notifier.snapshot(), 2)
}

func TestMonitorContinuesAfterCycleError(t *testing.T) {
	store := &scriptedStore{
		errs: []error{errors.New("connection refused"), nil},
		batches: [][]ExpiredRequest{
			nil,
			{{RequestID: "req-1", UserID: "user-1", PharmacyName: "Pharmacie A", ProductName: "Produit"}},
		},
	}
	notifier := &captureNotifier{}

	m := New(store, notifier, Config{Interval: 10 * time.Millisecond, ErrorBackoff: 20 * time.Millisecond}, nil, zap.NewNop())
	m.Start()
	defer m.Stop()

	waitFor(t, func() bool { return len(notifier.snapshot()) >= 1 })
	assert.GreaterOrEqual(t, store.callCount(), 2)
}

func TestMonitorStopWaitsForLoop(t *testing.T) {
	store := &scriptedStore{}
	m := New(store, &captureNotifier{}, Config{Interval: 5 * time.Millisecond, ErrorBackoff: 5 * time.Millisecond}, nil, zap.NewNop())

	m.Start()
	waitFor(t, func() bool { return store.callCount() >= 1 })
	m.Stop()

	calls := store.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, store.callCount())
}

func TestMonitorDefaults(t *testing.T) {
	m := New(&scriptedStore{}, nil, Config{}, nil, nil)
	assert.Equal(t, 30*time.Second, m.config.Interval)
	assert.Equal(t, 60*time.Second, m.config.ErrorBackoff)
}
