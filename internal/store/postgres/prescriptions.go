// Package postgres implements the durable stores on pgx. PostgreSQL is the
// only shared state between the API and the timeout monitor.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/domain/prescription"
	"github.com/santemarket/pharma-backend/internal/monitor"
)

// expireLockID serializes ExpireDue across monitor processes.
const expireLockID = int64(728401)

// PrescriptionStore persists prescription requests.
type PrescriptionStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPrescriptionStore creates a prescription store.
func NewPrescriptionStore(pool *pgxpool.Pool, logger *zap.Logger) *PrescriptionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionStore{pool: pool, logger: logger}
}

const prescriptionColumns = `
	id, user_id, product_id, pharmacy_id,
	image_url, original_filename, file_size, mime_type,
	status, quantity,
	validated_by, validated_at, rejection_reason, pharmacist_notes,
	expires_at, validation_timeout_at, created_at, updated_at
`

// Create inserts a new pending request.
func (s *PrescriptionStore) Create(ctx context.Context, r *prescription.Request) error {
	query := `
		INSERT INTO prescription_requests (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.pool.Exec(ctx, query,
		r.ID, r.UserID, r.ProductID, r.PharmacyID,
		r.ImageURL, r.OriginalFilename, r.FileSize, r.MimeType,
		r.Status, r.Quantity,
		r.ValidatedBy, r.ValidatedAt, r.RejectionReason, r.PharmacistNotes,
		r.ExpiresAt, r.ValidationTimeoutAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prescription request: %w", err)
	}
	return nil
}

// Get returns a request by id, or nil when absent.
func (s *PrescriptionStore) Get(ctx context.Context, id string) (*prescription.Request, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescription_requests WHERE id = $1`
	r, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription request: %w", err)
	}
	return r, nil
}

// ListByUser returns a user's requests, newest first, optionally filtered by
// status.
func (s *PrescriptionStore) ListByUser(ctx context.Context, userID string, status *prescription.Status) ([]*prescription.Request, error) {
	return s.list(ctx, "user_id", userID, status)
}

// ListByPharmacy returns a pharmacy's requests, newest first, optionally
// filtered by status.
func (s *PrescriptionStore) ListByPharmacy(ctx context.Context, pharmacyID string, status *prescription.Status) ([]*prescription.Request, error) {
	return s.list(ctx, "pharmacy_id", pharmacyID, status)
}

func (s *PrescriptionStore) list(ctx context.Context, column, value string, status *prescription.Status) ([]*prescription.Request, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescription_requests WHERE ` + column + ` = $1`
	args := []any{value}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescription requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*prescription.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// CompleteValidation persists an approve/reject outcome. The update is
// conditional on the stored row still being pending, so a validation racing
// the timeout monitor loses without overwriting the expired state. Returns
// false when the condition did not hold.
func (s *PrescriptionStore) CompleteValidation(ctx context.Context, r *prescription.Request) (bool, error) {
	query := `
		UPDATE prescription_requests
		SET status = $2, validated_by = $3, validated_at = $4,
		    rejection_reason = $5, pharmacist_notes = $6, updated_at = $7
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.Status, r.ValidatedBy, r.ValidatedAt,
		r.RejectionReason, r.PharmacistNotes, r.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("complete validation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireDue transitions every pending request whose validation window elapsed
// to expired, in a single transaction, and returns only the rows it actually
// transitioned. An advisory lock keeps concurrent monitor processes from
// racing; FOR UPDATE SKIP LOCKED skips rows an in-flight validation holds.
func (s *PrescriptionStore) ExpireDue(ctx context.Context, now time.Time) ([]monitor.ExpiredRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", expireLockID).Scan(&acquired); err != nil {
		return nil, fmt.Errorf("acquire expire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	due, err := s.fetchDue(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, tx.Commit(ctx)
	}

	expired := make([]monitor.ExpiredRequest, 0, len(due))
	for _, d := range due {
		reason := prescription.ExpiryReason(d.pharmacyName, d.window)
		tag, err := tx.Exec(ctx, `
			UPDATE prescription_requests
			SET status = 'expired', rejection_reason = $2, validated_at = $3, updated_at = $3
			WHERE id = $1 AND status = 'pending'
		`, d.id, reason, now)
		if err != nil {
			return nil, fmt.Errorf("expire request %s: %w", d.id, err)
		}
		if tag.RowsAffected() == 1 {
			expired = append(expired, monitor.ExpiredRequest{
				RequestID:    d.id,
				UserID:       d.userID,
				PharmacyName: d.pharmacyName,
				ProductName:  d.productName,
			})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return expired, nil
}

type dueRequest struct {
	id           string
	userID       string
	pharmacyName string
	productName  string
	window       time.Duration
}

func (s *PrescriptionStore) fetchDue(ctx context.Context, tx pgx.Tx, now time.Time) ([]dueRequest, error) {
	query := `
		SELECT r.id, r.user_id,
		       COALESCE(ph.name, 'Pharmacie inconnue'),
		       COALESCE(p.name, 'Produit inconnu'),
		       r.created_at, r.validation_timeout_at
		FROM prescription_requests r
		LEFT JOIN pharmacies ph ON ph.id = r.pharmacy_id
		LEFT JOIN products p ON p.id = r.product_id
		WHERE r.status = 'pending'
		  AND r.validation_timeout_at <= $1
		ORDER BY r.validation_timeout_at ASC
		FOR UPDATE OF r SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("fetch due requests: %w", err)
	}
	defer rows.Close()

	var due []dueRequest
	for rows.Next() {
		var d dueRequest
		var createdAt, timeoutAt time.Time
		if err := rows.Scan(&d.id, &d.userID, &d.pharmacyName, &d.productName, &createdAt, &timeoutAt); err != nil {
			return nil, fmt.Errorf("scan due request: %w", err)
		}
		d.window = timeoutAt.Sub(createdAt)
		due = append(due, d)
	}
	return due, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*prescription.Request, error) {
	r := &prescription.Request{}
	err := row.Scan(
		&r.ID, &r.UserID, &r.ProductID, &r.PharmacyID,
		&r.ImageURL, &r.OriginalFilename, &r.FileSize, &r.MimeType,
		&r.Status, &r.Quantity,
		&r.ValidatedBy, &r.ValidatedAt, &r.RejectionReason, &r.PharmacistNotes,
		&r.ExpiresAt, &r.ValidationTimeoutAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}
