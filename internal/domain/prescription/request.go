// Package prescription implements the prescription request lifecycle: upload,
// pharmacist validation, timeout expiry and retry against another pharmacy.
package prescription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle status of a prescription request.
// Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Request is a client's submission of a prescription image against a specific
// product+pharmacy pair, awaiting pharmacist validation.
type Request struct {
	ID         string
	UserID     string
	ProductID  string
	PharmacyID string

	ImageURL         string
	OriginalFilename string
	FileSize         int64
	MimeType         string

	Status   Status
	Quantity int

	ValidatedBy     *string
	ValidatedAt     *time.Time
	RejectionReason *string
	PharmacistNotes *string

	// ExpiresAt is the absolute validity deadline of the prescription itself.
	// ValidationTimeoutAt is the deadline for the pharmacy to answer; past it
	// a still-pending request must be forced to expired before any human
	// validation is accepted.
	ExpiresAt           time.Time
	ValidationTimeoutAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRequest builds a pending request with freshly computed deadlines.
func NewRequest(userID, productID, pharmacyID string, quantity int, validationTimeout, ttl time.Duration) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:                  uuid.New().String(),
		UserID:              userID,
		ProductID:           productID,
		PharmacyID:          pharmacyID,
		Status:              StatusPending,
		Quantity:            quantity,
		ExpiresAt:           now.Add(ttl),
		ValidationTimeoutAt: now.Add(validationTimeout),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// TimedOut reports whether the pharmacy validation window has elapsed.
func (r *Request) TimedOut(now time.Time) bool {
	return !now.Before(r.ValidationTimeoutAt)
}

// Approve transitions a pending, not-yet-timed-out request to approved.
func (r *Request) Approve(actorID string, notes *string, now time.Time) error {
	if err := r.validatable(now); err != nil {
		return err
	}
	r.Status = StatusApproved
	r.ValidatedBy = &actorID
	r.ValidatedAt = &now
	r.PharmacistNotes = notes
	r.UpdatedAt = now
	return nil
}

// Reject transitions a pending, not-yet-timed-out request to rejected.
// A rejection reason is mandatory.
func (r *Request) Reject(actorID string, notes *string, reason string, now time.Time) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	if err := r.validatable(now); err != nil {
		return err
	}
	r.Status = StatusRejected
	r.ValidatedBy = &actorID
	r.ValidatedAt = &now
	r.PharmacistNotes = notes
	r.RejectionReason = &reason
	r.UpdatedAt = now
	return nil
}

func (r *Request) validatable(now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}
	if r.TimedOut(now) {
		return fmt.Errorf("%w: validation window elapsed", ErrInvalidState)
	}
	return nil
}

// Expire transitions a pending request past its validation window to expired,
// stamping a generated rejection reason that names the pharmacy and restates
// the window. Calling it on an already-expired request is a no-op; the bool
// reports whether a transition actually happened.
func (r *Request) Expire(pharmacyName string, window time.Duration, now time.Time) (bool, error) {
	if r.Status == StatusExpired {
		return false, nil
	}
	if r.Status != StatusPending {
		return false, fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}
	if !r.TimedOut(now) {
		return false, fmt.Errorf("%w: validation window still open", ErrInvalidState)
	}
	reason := ExpiryReason(pharmacyName, window)
	r.Status = StatusExpired
	r.RejectionReason = &reason
	r.ValidatedAt = &now
	r.UpdatedAt = now
	return true, nil
}

// ExpiryReason is the user-facing explanation stamped on expired requests.
func ExpiryReason(pharmacyName string, window time.Duration) string {
	return fmt.Sprintf(
		"La pharmacie \"%s\" n'a malheureusement pas pris en charge votre demande dans le délai imparti (%d minutes). Veuillez essayer avec une autre pharmacie.",
		pharmacyName, int(window.Minutes()))
}
