// Package handlers provides HTTP handlers for the marketplace API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/api/middleware"
	"github.com/santemarket/pharma-backend/internal/domain/prescription"
	"github.com/santemarket/pharma-backend/internal/observability/metrics"
)

// maxUploadMemory bounds the in-memory part of multipart parsing.
const maxUploadMemory = 12 << 20

// PrescriptionHandler handles prescription request endpoints
type PrescriptionHandler struct {
	service *prescription.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPrescriptionHandler creates a new handler. m may be nil.
func NewPrescriptionHandler(service *prescription.Service, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{service: service, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload", h.Upload)
	r.Get("/my-requests", h.MyRequests)
	r.Get("/pharmacy-requests", h.PharmacyRequests)
	r.Post("/validate", h.Validate)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/alternatives", h.Alternatives)
	r.Post("/{id}/retry", h.Retry)
	return r
}

// RequestView is the request representation served to clients.
type RequestView struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	ProductID           string     `json:"product_id"`
	PharmacyID          string     `json:"pharmacy_id"`
	ImageURL            string     `json:"image_url"`
	OriginalFilename    string     `json:"original_filename"`
	Status              string     `json:"status"`
	Quantity            int        `json:"quantity"`
	ValidatedBy         *string    `json:"validated_by,omitempty"`
	ValidatedAt         *time.Time `json:"validated_at,omitempty"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
	PharmacistNotes     *string    `json:"pharmacist_notes,omitempty"`
	ExpiresAt           time.Time  `json:"expires_at"`
	ValidationTimeoutAt time.Time  `json:"validation_timeout_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func viewOf(r *prescription.Request) RequestView {
	return RequestView{
		ID:                  r.ID,
		UserID:              r.UserID,
		ProductID:           r.ProductID,
		PharmacyID:          r.PharmacyID,
		ImageURL:            r.ImageURL,
		OriginalFilename:    r.OriginalFilename,
		Status:              string(r.Status),
		Quantity:            r.Quantity,
		ValidatedBy:         r.ValidatedBy,
		ValidatedAt:         r.ValidatedAt,
		RejectionReason:     r.RejectionReason,
		PharmacistNotes:     r.PharmacistNotes,
		ExpiresAt:           r.ExpiresAt,
		ValidationTimeoutAt: r.ValidationTimeoutAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// Upload handles POST /prescriptions/upload (multipart)
func (h *PrescriptionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	in, err := h.parseUpload(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := h.service.Upload(ctx, userID, *in)
	if err != nil {
		h.writeError(w, r, err, "upload failed")
		return
	}
	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
	}

	writeJSON(w, http.StatusCreated, viewOf(req))
}

func (h *PrescriptionHandler) parseUpload(r *http.Request) (*prescription.UploadInput, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("prescription file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, prescription.MaxFileSize+1))
	if err != nil {
		return nil, errors.New("failed to read prescription file")
	}

	quantity := 1
	if q := r.FormValue("quantity"); q != "" {
		quantity, err = strconv.Atoi(q)
		if err != nil {
			return nil, errors.New("quantity must be an integer")
		}
	}

	return &prescription.UploadInput{
		ProductID:   r.FormValue("product_id"),
		PharmacyID:  r.FormValue("pharmacy_id"),
		Quantity:    quantity,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// MyRequests handles GET /prescriptions/my-requests
func (h *PrescriptionHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	status, err := statusFilter(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	requests, err := h.service.ListForUser(ctx, userID, status)
	if err != nil {
		h.writeError(w, r, err, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, views(requests))
}

// PharmacyRequests handles GET /prescriptions/pharmacy-requests
func (h *PrescriptionHandler) PharmacyRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	status, err := statusFilter(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	requests, err := h.service.ListForPharmacy(ctx, userID, status)
	if err != nil {
		h.writeError(w, r, err, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, views(requests))
}

// ValidateRequest is the request body for a pharmacist decision
type ValidateRequest struct {
	RequestID       string  `json:"prescription_request_id"`
	Action          string  `json:"action"`
	Notes           *string `json:"notes,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
}

// Validate handles POST /prescriptions/validate
func (h *PrescriptionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.Validate(ctx, userID, prescription.ValidationInput{
		RequestID:       req.RequestID,
		Action:          req.Action,
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.writeError(w, r, err, "validation failed")
		return
	}
	if h.metrics != nil {
		h.metrics.PrescriptionsValidated.WithLabelValues(req.Action).Inc()
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	req, err := h.service.Get(ctx, userID, id)
	if err != nil {
		h.writeError(w, r, err, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(req))
}

// Alternatives handles GET /prescriptions/{id}/alternatives
func (h *PrescriptionHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	maxDistance := 0.0
	if v := r.URL.Query().Get("max_distance_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			jsonError(w, "max_distance_km must be a number", http.StatusBadRequest)
			return
		}
		maxDistance = f
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	candidates, err := h.service.Alternatives(ctx, userID, id, maxDistance, limit)
	if err != nil {
		h.writeError(w, r, err, "alternatives failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prescription_request_id": id,
		"alternatives":            candidates,
	})
}

// Retry handles POST /prescriptions/{id}/retry (multipart)
func (h *PrescriptionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	in, err := h.parseUpload(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := h.service.Retry(ctx, userID, prescription.RetryInput{
		RequestID:             id,
		AlternativePharmacyID: r.FormValue("alternative_pharmacy_id"),
		Quantity:              in.Quantity,
		Filename:              in.Filename,
		ContentType:           in.ContentType,
		Data:                  in.Data,
	})
	if err != nil {
		h.writeError(w, r, err, "retry failed")
		return
	}
	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
	}

	writeJSON(w, http.StatusCreated, viewOf(req))
}

func (h *PrescriptionHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, prescription.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, prescription.ErrNotAuthorized):
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, prescription.ErrInvalidState):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, prescription.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg,
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func statusFilter(r *http.Request) (*prescription.Status, error) {
	v := r.URL.Query().Get("status")
	if v == "" {
		return nil, nil
	}
	s := prescription.Status(v)
	switch s {
	case prescription.StatusPending, prescription.StatusApproved,
		prescription.StatusRejected, prescription.StatusExpired:
		return &s, nil
	}
	return nil, errors.New("unknown status filter")
}

func views(requests []*prescription.Request) []RequestView {
	out := make([]RequestView, 0, len(requests))
	for _, r := range requests {
		out = append(out, viewOf(r))
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
