package prescription

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/blob"
	"github.com/santemarket/pharma-backend/internal/domain/catalog"
	"github.com/santemarket/pharma-backend/internal/notify"
)

// Upload constraints for prescription images.
const (
	MaxFileSize = 10 * 1024 * 1024
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// Config holds the prescription workflow tunables.
type Config struct {
	// ValidationTimeout is the pharmacy response window (canonical default
	// 15 minutes, set by the top-level configuration).
	ValidationTimeout time.Duration
	// PrescriptionTTL is the absolute validity of an uploaded prescription.
	PrescriptionTTL time.Duration
}

// Service implements the prescription workflow operations.
type Service struct {
	store    Store
	catalog  catalog.Store
	blobs    blob.Store
	notifier notify.Notifier
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService wires the prescription service.
func NewService(store Store, cat catalog.Store, blobs blob.Store, notifier notify.Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		catalog:  cat,
		blobs:    blobs,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("prescription-service"),
	}
}

// UploadInput carries a prescription upload.
type UploadInput struct {
	ProductID   string
	PharmacyID  string
	Quantity    int
	Filename    string
	ContentType string
	Data        []byte
}

// Upload validates the file and the product/pharmacy pair, stores the image
// and creates a pending request. The pharmacy owner is notified best-effort.
func (s *Service) Upload(ctx context.Context, userID string, in UploadInput) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "upload_prescription",
		trace.WithAttributes(attribute.String("product_id", in.ProductID)))
	defer span.End()

	if err := validateFile(in); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	product, err := s.catalog.Product(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, in.ProductID)
	}
	if !product.RequiresPrescription {
		return nil, fmt.Errorf("%w: product does not require a prescription", ErrValidation)
	}

	pharmacy, err := s.catalog.Pharmacy(ctx, in.PharmacyID)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil {
		return nil, fmt.Errorf("%w: pharmacy %s", ErrNotFound, in.PharmacyID)
	}

	return s.create(ctx, userID, product, pharmacy, in)
}

// create is shared by Upload and Retry once the target pharmacy is resolved.
func (s *Service) create(ctx context.Context, userID string, product *catalog.Product, pharmacy *catalog.Pharmacy, in UploadInput) (*Request, error) {
	url, err := s.blobs.Upload(ctx, in.Data, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store prescription image: %w", err)
	}

	req := NewRequest(userID, product.ID, pharmacy.ID, in.Quantity, s.cfg.ValidationTimeout, s.cfg.PrescriptionTTL)
	req.ImageURL = url
	req.OriginalFilename = in.Filename
	req.FileSize = int64(len(in.Data))
	req.MimeType = in.ContentType

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create prescription request: %w", err)
	}

	s.logger.Info("prescription request created",
		zap.String("request_id", req.ID),
		zap.String("user_id", userID),
		zap.String("pharmacy_id", pharmacy.ID))

	s.notifyBestEffort(ctx, pharmacy.OwnerID,
		"Nouvelle demande de prescription",
		fmt.Sprintf("Une nouvelle prescription pour %s nécessite votre validation", product.Name),
		notify.TypePrescriptionRequest,
		map[string]any{
			"prescription_request_id": req.ID,
			"product_id":              product.ID,
		})

	return req, nil
}

// ValidationInput carries a pharmacist's decision on a pending request.
type ValidationInput struct {
	RequestID       string
	Action          string // "approve" or "reject"
	Notes           *string
	RejectionReason string
}

// Validate applies a pharmacist approve/reject. The in-memory state machine
// guards legality; the store's conditional update closes the race against the
// timeout monitor. The requesting client is notified best-effort.
func (s *Service) Validate(ctx context.Context, actorID string, in ValidationInput) error {
	ctx, span := s.tracer.Start(ctx, "validate_prescription",
		trace.WithAttributes(
			attribute.String("request_id", in.RequestID),
			attribute.String("action", in.Action),
		))
	defer span.End()

	req, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return err
	}

	pharmacy, err := s.catalog.Pharmacy(ctx, req.PharmacyID)
	if err != nil {
		return fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil || pharmacy.OwnerID != actorID {
		return fmt.Errorf("%w: actor does not own the target pharmacy", ErrNotAuthorized)
	}

	now := time.Now().UTC()
	switch in.Action {
	case "approve":
		err = req.Approve(actorID, in.Notes, now)
	case "reject":
		err = req.Reject(actorID, in.Notes, in.RejectionReason, now)
	default:
		return fmt.Errorf("%w: action must be approve or reject", ErrValidation)
	}
	if err != nil {
		return err
	}

	applied, err := s.store.CompleteValidation(ctx, req)
	if err != nil {
		return fmt.Errorf("complete validation: %w", err)
	}
	if !applied {
		// Lost the conditional update: the monitor expired the request, or
		// another pharmacist validated it first.
		current, loadErr := s.getRequest(ctx, in.RequestID)
		if loadErr != nil {
			return fmt.Errorf("%w: request no longer pending", ErrInvalidState)
		}
		return fmt.Errorf("%w: request already %s", ErrInvalidState, current.Status)
	}

	s.notifyValidated(ctx, req, pharmacy, in)
	return nil
}

func (s *Service) notifyValidated(ctx context.Context, req *Request, pharmacy *catalog.Pharmacy, in ValidationInput) {
	productName := "ce produit"
	if product, err := s.catalog.Product(ctx, req.ProductID); err == nil && product != nil {
		productName = product.Name
	}

	title := "Prescription approuvée"
	message := fmt.Sprintf("Votre prescription pour %s a été approuvée", productName)
	if req.Status == StatusRejected {
		title = "Prescription refusée"
		message = fmt.Sprintf("Votre prescription pour %s a été refusée", productName)
	}

	s.notifyBestEffort(ctx, req.UserID, title, message, notify.TypePrescriptionValidated,
		map[string]any{
			"prescription_request_id": req.ID,
			"status":                  string(req.Status),
			"pharmacy_name":           pharmacy.Name,
			"rejection_reason":        req.RejectionReason,
		})
}

// Get returns a request, restricted to its owner or the target pharmacy owner.
func (s *Service) Get(ctx context.Context, actorID, requestID string) (*Request, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.UserID == actorID {
		return req, nil
	}

	pharmacy, err := s.catalog.Pharmacy(ctx, req.PharmacyID)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil || pharmacy.OwnerID != actorID {
		return nil, fmt.Errorf("%w: not allowed to view this prescription", ErrNotAuthorized)
	}
	return req, nil
}

// ListForUser returns the caller's requests, optionally filtered by status.
func (s *Service) ListForUser(ctx context.Context, userID string, status *Status) ([]*Request, error) {
	return s.store.ListByUser(ctx, userID, status)
}

// ListForPharmacy returns the requests targeting the caller's pharmacy.
func (s *Service) ListForPharmacy(ctx context.Context, actorID string, status *Status) ([]*Request, error) {
	pharmacy, err := s.catalog.PharmacyByOwner(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil {
		return nil, fmt.Errorf("%w: no pharmacy for current user", ErrNotFound)
	}
	return s.store.ListByPharmacy(ctx, pharmacy.ID, status)
}

// RetryInput carries a retry against an alternative pharmacy.
type RetryInput struct {
	RequestID             string
	AlternativePharmacyID string
	Quantity              int
	Filename              string
	ContentType           string
	Data                  []byte
}

// Retry creates a fresh pending request for the same product at an
// alternative pharmacy. Only the owner of an expired request may retry.
func (s *Service) Retry(ctx context.Context, userID string, in RetryInput) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "retry_prescription",
		trace.WithAttributes(attribute.String("request_id", in.RequestID)))
	defer span.End()

	original, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if original.UserID != userID {
		return nil, fmt.Errorf("%w: not allowed to retry this prescription", ErrNotAuthorized)
	}
	if original.Status != StatusExpired {
		return nil, fmt.Errorf("%w: only expired requests can be retried", ErrInvalidState)
	}

	pharmacy, err := s.catalog.Pharmacy(ctx, in.AlternativePharmacyID)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil {
		return nil, fmt.Errorf("%w: pharmacy %s", ErrNotFound, in.AlternativePharmacyID)
	}

	product, err := s.catalog.Product(ctx, original.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, original.ProductID)
	}

	upload := UploadInput{
		ProductID:   original.ProductID,
		PharmacyID:  pharmacy.ID,
		Quantity:    in.Quantity,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Data:        in.Data,
	}
	if err := validateFile(upload); err != nil {
		return nil, err
	}
	if upload.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	return s.create(ctx, userID, product, pharmacy, upload)
}

func (s *Service) getRequest(ctx context.Context, id string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: prescription request %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *Service) notifyBestEffort(ctx context.Context, userID, title, message, typ string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, title, message, typ, data); err != nil {
		s.logger.Warn("notification failed",
			zap.String("user_id", userID),
			zap.String("type", typ),
			zap.Error(err))
	}
}

func validateFile(in UploadInput) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: no file provided", ErrValidation)
	}
	if !allowedMimeTypes[in.ContentType] {
		return fmt.Errorf("%w: file type %s not allowed", ErrValidation, in.ContentType)
	}
	if len(in.Data) > MaxFileSize {
		return fmt.Errorf("%w: file size too large (max 10MB)", ErrValidation)
	}
	return nil
}
