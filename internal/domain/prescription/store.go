package prescription

import "context"

// Store persists prescription requests. Rows are never deleted; the request
// list is the audit trail of every validation attempt.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	ListByUser(ctx context.Context, userID string, status *Status) ([]*Request, error)
	ListByPharmacy(ctx context.Context, pharmacyID string, status *Status) ([]*Request, error)

	// CompleteValidation persists an approve/reject outcome with a
	// conditional update: it only applies while the stored row is still
	// pending. Returns false when the row was concurrently expired or
	// validated, in which case the in-memory transition must be discarded.
	CompleteValidation(ctx context.Context, r *Request) (bool, error)
}
