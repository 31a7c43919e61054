package prescription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest() *Request {
	return NewRequest("user-1", "product-1", "pharmacy-1", 2, 15*time.Minute, 30*24*time.Hour)
}

func TestNewRequest(t *testing.T) {
	r := newTestRequest()

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, 2, r.Quantity)
	assert.True(t, r.ValidationTimeoutAt.After(r.CreatedAt))
	assert.True(t, r.ExpiresAt.After(r.ValidationTimeoutAt))
}

func TestApprove(t *testing.T) {
	r := newTestRequest()
	now := r.CreatedAt.Add(5 * time.Minute)
	notes := "ordonnance valide"

	require.NoError(t, r.Approve("pharmacist-1", &notes, now))

	assert.Equal(t, StatusApproved, r.Status)
	require.NotNil(t, r.ValidatedBy)
	assert.Equal(t, "pharmacist-1", *r.ValidatedBy)
	require.NotNil(t, r.ValidatedAt)
	assert.Equal(t, now, *r.ValidatedAt)
	assert.Nil(t, r.RejectionReason)
}

func TestRejectRequiresReason(t *testing.T) {
	r := newTestRequest()
	now := r.CreatedAt.Add(5 * time.Minute)

	err := r.Reject("pharmacist-1", nil, "", now)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StatusPending, r.Status)

	require.NoError(t, r.Reject("pharmacist-1", nil, "illisible", now))
	assert.Equal(t, StatusRejected, r.Status)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "illisible", *r.RejectionReason)
}

func TestValidateAfterTimeout(t *testing.T) {
	r := newTestRequest()
	late := r.ValidationTimeoutAt.Add(time.Second)

	assert.ErrorIs(t, r.Approve("pharmacist-1", nil, late), ErrInvalidState)
	assert.ErrorIs(t, r.Reject("pharmacist-1", nil, "trop tard", late), ErrInvalidState)
	assert.Equal(t, StatusPending, r.Status)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []Status{StatusApproved, StatusRejected, StatusExpired} {
		r := newTestRequest()
		r.Status = status

		assert.ErrorIs(t, r.Approve("pharmacist-1", nil, now), ErrInvalidState, string(status))
		assert.ErrorIs(t, r.Reject("pharmacist-1", nil, "reason", now), ErrInvalidState, string(status))
	}
}

func TestExpire(t *testing.T) {
	r := newTestRequest()
	late := r.ValidationTimeoutAt.Add(time.Second)

	transitioned, err := r.Expire("Pharmacie du Centre", 15*time.Minute, late)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, StatusExpired, r.Status)
	require.NotNil(t, r.RejectionReason)
	assert.Contains(t, *r.RejectionReason, "Pharmacie du Centre")
	assert.Contains(t, *r.RejectionReason, "15 minutes")
}

func TestExpireIdempotent(t *testing.T) {
	r := newTestRequest()
	late := r.ValidationTimeoutAt.Add(time.Second)

	transitioned, err := r.Expire("Pharmacie du Centre", 15*time.Minute, late)
	require.NoError(t, err)
	require.True(t, transitioned)
	firstReason := *r.RejectionReason

	transitioned, err = r.Expire("Une Autre Pharmacie", 15*time.Minute, late.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, firstReason, *r.RejectionReason)
}

func TestExpireGuards(t *testing.T) {
	r := newTestRequest()

	// Window still open.
	_, err := r.Expire("Pharmacie du Centre", 15*time.Minute, r.CreatedAt.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidState)

	// Approved requests never expire.
	r = newTestRequest()
	require.NoError(t, r.Approve("pharmacist-1", nil, r.CreatedAt.Add(time.Minute)))
	_, err = r.Expire("Pharmacie du Centre", 15*time.Minute, r.ValidationTimeoutAt.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StatusApproved, r.Status)
}

func TestTimedOut(t *testing.T) {
	r := newTestRequest()

	assert.False(t, r.TimedOut(r.ValidationTimeoutAt.Add(-time.Second)))
	assert.True(t, r.TimedOut(r.ValidationTimeoutAt))
	assert.True(t, r.TimedOut(r.ValidationTimeoutAt.Add(time.Second)))
}
