package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/api/middleware"
	"github.com/santemarket/pharma-backend/internal/domain/cart"
	"github.com/santemarket/pharma-backend/internal/observability/metrics"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	service *cart.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCartHandler creates a new handler. m may be nil.
func NewCartHandler(service *cart.Service, m *metrics.Metrics, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{service: service, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/items", h.Items)
	r.Post("/items", h.Add)
	r.Put("/items/{id}", h.Update)
	r.Delete("/items/{id}", h.Remove)
	r.Get("/count", h.Count)
	r.Delete("/clear", h.Clear)
	r.Post("/validate-delivery", h.ValidateDelivery)
	r.Post("/create-multi-order", h.CreateMultiOrder)
	return r
}

// Items handles GET /cart/items
func (h *CartHandler) Items(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	items, err := h.service.Items(ctx, userID)
	if err != nil {
		h.writeError(w, r, err, "list cart failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AddItemRequest is the request body for adding a cart line
type AddItemRequest struct {
	ProductID  string `json:"product_id"`
	PharmacyID string `json:"pharmacy_id"`
	Quantity   int    `json:"quantity"`
}

// Add handles POST /cart/items
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	id, err := h.service.Add(ctx, userID, req.ProductID, req.PharmacyID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err, "add to cart failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateItemRequest is the request body for changing a line quantity
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// Update handles PUT /cart/items/{id}
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Update(ctx, userID, id, req.Quantity); err != nil {
		h.writeError(w, r, err, "update cart failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Remove handles DELETE /cart/items/{id}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := chi.URLParam(r, "id")

	if err := h.service.Remove(ctx, userID, id); err != nil {
		h.writeError(w, r, err, "remove from cart failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Count handles GET /cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	count, err := h.service.Count(ctx, userID)
	if err != nil {
		h.writeError(w, r, err, "count cart failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Clear handles DELETE /cart/clear
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.service.Clear(ctx, userID); err != nil {
		h.writeError(w, r, err, "clear cart failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ValidateDeliveryRequest is the request body for a delivery validation pass
type ValidateDeliveryRequest struct {
	DeliveryType string `json:"delivery_type"`
}

// ValidateDelivery handles POST /cart/validate-delivery
func (h *CartHandler) ValidateDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ValidateDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.ValidateDelivery(ctx, userID, cart.DeliveryType(req.DeliveryType))
	if err != nil {
		h.writeError(w, r, err, "delivery validation failed")
		return
	}
	if h.metrics != nil {
		h.metrics.CartValidations.Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateMultiOrderRequest is the request body for multi-order creation
type CreateMultiOrderRequest struct {
	DeliveryType  string  `json:"delivery_type"`
	PaymentMethod string  `json:"payment_method"`
	AddressID     *string `json:"address_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// CreateMultiOrder handles POST /cart/create-multi-order
func (h *CartHandler) CreateMultiOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateMultiOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateMultiOrder(ctx, userID, cart.MultiOrderInput{
		DeliveryType:  cart.DeliveryType(req.DeliveryType),
		PaymentMethod: req.PaymentMethod,
		AddressID:     req.AddressID,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err, "multi-order creation failed")
		return
	}
	if h.metrics != nil {
		h.metrics.OrdersCreated.Add(float64(len(result.Orders)))
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cart.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cart.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg,
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
