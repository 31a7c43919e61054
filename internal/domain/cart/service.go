package cart

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
	"github.com/santemarket/pharma-backend/internal/notify"
)

// ServiceConfig holds the cart workflow tunables.
type ServiceConfig struct {
	// DeliveryFee is the flat per-pharmacy home delivery fee.
	DeliveryFee float64
	// FallbackPrice prices cart lines without an inventory row. Every use is
	// logged as a data-integrity warning.
	FallbackPrice float64
}

// Service implements cart operations: line CRUD, delivery validation through
// the consolidation engine, and multi-order creation.
type Service struct {
	store    Store
	catalog  catalog.Store
	engine   *Engine
	notifier notify.Notifier
	cfg      ServiceConfig
	logger   *zap.Logger
	tracer   trace.Tracer

	// fallbackCount observes sentinel pricing; nil-safe.
	fallbackCount interface{ Inc() }
}

// NewService wires the cart service. fallbackCounter may be nil.
func NewService(store Store, cat catalog.Store, notifier notify.Notifier, cfg ServiceConfig, fallbackCounter interface{ Inc() }, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		catalog:       cat,
		engine:        NewEngine(cat, EngineConfig{DeliveryFee: cfg.DeliveryFee}, logger),
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger,
		tracer:        otel.Tracer("cart-service"),
		fallbackCount: fallbackCounter,
	}
}

// ItemView is a cart line with its product and pharmacy detail, as served to
// the client.
type ItemView struct {
	ID         string            `json:"id"`
	ProductID  string            `json:"product_id"`
	PharmacyID string            `json:"pharmacy_id"`
	Quantity   int               `json:"quantity"`
	Price      float64           `json:"price"`
	Product    *catalog.Product  `json:"product"`
	Pharmacy   *catalog.Pharmacy `json:"pharmacy"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Items returns the user's cart with product, pharmacy and price detail.
func (s *Service) Items(ctx context.Context, userID string) ([]ItemView, error) {
	items, err := s.store.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		product, err := s.catalog.Product(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		pharmacy, err := s.catalog.Pharmacy(ctx, item.PharmacyID)
		if err != nil {
			return nil, fmt.Errorf("load pharmacy: %w", err)
		}
		price, _, err := s.price(ctx, item.PharmacyID, item.ProductID)
		if err != nil {
			return nil, err
		}
		views = append(views, ItemView{
			ID:         item.ID,
			ProductID:  item.ProductID,
			PharmacyID: item.PharmacyID,
			Quantity:   item.Quantity,
			Price:      price,
			Product:    product,
			Pharmacy:   pharmacy,
			CreatedAt:  item.CreatedAt,
			UpdatedAt:  item.UpdatedAt,
		})
	}
	return views, nil
}

// Add inserts a cart line or merges quantity into an existing one.
func (s *Service) Add(ctx context.Context, userID, productID, pharmacyID string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return "", fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	pharmacy, err := s.catalog.Pharmacy(ctx, pharmacyID)
	if err != nil {
		return "", fmt.Errorf("load pharmacy: %w", err)
	}
	if pharmacy == nil {
		return "", fmt.Errorf("%w: pharmacy %s", ErrNotFound, pharmacyID)
	}

	existing, err := s.store.Find(ctx, userID, productID, pharmacyID)
	if err != nil {
		return "", fmt.Errorf("load cart item: %w", err)
	}
	if existing != nil {
		if err := s.store.UpdateQuantity(ctx, existing.ID, existing.Quantity+quantity); err != nil {
			return "", fmt.Errorf("update cart item: %w", err)
		}
		return existing.ID, nil
	}

	now := time.Now().UTC()
	item := &catalog.CartItem{
		ID:         uuid.New().String(),
		UserID:     userID,
		ProductID:  productID,
		PharmacyID: pharmacyID,
		Quantity:   quantity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Insert(ctx, item); err != nil {
		return "", fmt.Errorf("insert cart item: %w", err)
	}
	return item.ID, nil
}

// Update sets a line's quantity; zero or negative removes the line.
func (s *Service) Update(ctx context.Context, userID, itemID string, quantity int) error {
	item, err := s.store.FindByID(ctx, userID, itemID)
	if err != nil {
		return fmt.Errorf("load cart item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}

	if quantity <= 0 {
		if err := s.store.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return nil
	}
	if err := s.store.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

// Remove deletes a line from the user's cart.
func (s *Service) Remove(ctx context.Context, userID, itemID string) error {
	item, err := s.store.FindByID(ctx, userID, itemID)
	if err != nil {
		return fmt.Errorf("load cart item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}
	if err := s.store.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Count sums the quantities across the user's cart.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.store.Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count cart: %w", err)
	}
	return n, nil
}

// ValidateDelivery runs the consolidation engine over the user's cart.
// Fails with ErrEmptyCart when there is nothing to validate.
func (s *Service) ValidateDelivery(ctx context.Context, userID string, deliveryType DeliveryType) (*ConsolidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "validate_delivery",
		trace.WithAttributes(attribute.String("delivery_type", string(deliveryType))))
	defer span.End()

	if !deliveryType.Valid() {
		return nil, fmt.Errorf("%w: delivery type must be pickup or home_delivery", ErrValidation)
	}

	resolved, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, ErrEmptyCart
	}

	return s.engine.Consolidate(ctx, resolved, deliveryType)
}

// resolve joins the user's cart lines with products, pharmacies and current
// inventory prices.
func (s *Service) resolve(ctx context.Context, userID string) ([]ResolvedItem, error) {
	items, err := s.store.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	resolved := make([]ResolvedItem, 0, len(items))
	for _, item := range items {
		product, err := s.catalog.Product(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		pharmacy, err := s.catalog.Pharmacy(ctx, item.PharmacyID)
		if err != nil {
			return nil, fmt.Errorf("load pharmacy: %w", err)
		}

		price, known, err := s.price(ctx, item.PharmacyID, item.ProductID)
		if err != nil {
			return nil, err
		}

		r := ResolvedItem{
			CartItemID:  item.ID,
			ProductID:   item.ProductID,
			ProductName: "Produit inconnu",
			PharmacyID:  item.PharmacyID,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			PriceKnown:  known,
		}
		if product != nil {
			r.ProductName = product.Name
		}
		if pharmacy != nil {
			r.PharmacyName = pharmacy.Name
			r.Address = pharmacy.Address
			r.City = pharmacy.City
			r.Latitude = pharmacy.Latitude
			r.Longitude = pharmacy.Longitude
		} else {
			r.PharmacyName = "Pharmacie inconnue"
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func (s *Service) price(ctx context.Context, pharmacyID, productID string) (float64, bool, error) {
	inv, err := s.catalog.InventoryItem(ctx, pharmacyID, productID)
	if err != nil {
		return 0, false, fmt.Errorf("load inventory: %w", err)
	}
	if inv == nil {
		s.logger.Warn("no inventory row for cart item, applying fallback price",
			zap.String("pharmacy_id", pharmacyID),
			zap.String("product_id", productID),
			zap.Float64("fallback_price", s.cfg.FallbackPrice))
		if s.fallbackCount != nil {
			s.fallbackCount.Inc()
		}
		return s.cfg.FallbackPrice, false, nil
	}
	return inv.Price, true, nil
}

// MultiOrderInput carries a multi-order creation request.
type MultiOrderInput struct {
	DeliveryType  DeliveryType
	PaymentMethod string // card, mobile_money, paypal or cash
	AddressID     *string
	Notes         *string
}

// OrderSummary is one created order, one per pharmacy group.
type OrderSummary struct {
	OrderNumber  string  `json:"order_number"`
	PharmacyID   string  `json:"pharmacy_id"`
	PharmacyName string  `json:"pharmacy_name"`
	DeliveryType string  `json:"delivery_type"`
	ItemsCount   int     `json:"items_count"`
	Subtotal     float64 `json:"subtotal"`
	DeliveryFee  float64 `json:"delivery_fee"`
	TotalAmount  float64 `json:"total_amount"`
	PickupCode   *string `json:"pickup_code,omitempty"`
	Status       string  `json:"status"`
}

// MultiOrderResult is the outcome of splitting a cart into per-pharmacy
// orders sharing a single payment.
type MultiOrderResult struct {
	PaymentRequired bool           `json:"payment_required"`
	PaymentAmount   float64        `json:"payment_amount"`
	Orders          []OrderSummary `json:"orders"`
	Message         string         `json:"message"`
}

// CreateMultiOrder splits the cart into one order per pharmacy. Under pickup
// each order carries its own pickup code; the payment amount covers them all.
// The cart is cleared on success and the client notified best-effort.
func (s *Service) CreateMultiOrder(ctx context.Context, userID string, in MultiOrderInput) (*MultiOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "create_multi_order",
		trace.WithAttributes(attribute.String("delivery_type", string(in.DeliveryType))))
	defer span.End()

	if !in.DeliveryType.Valid() {
		return nil, fmt.Errorf("%w: delivery type must be pickup or home_delivery", ErrValidation)
	}
	if in.DeliveryType == DeliveryHome && (in.AddressID == nil || *in.AddressID == "") {
		return nil, fmt.Errorf("%w: address is required for home delivery", ErrValidation)
	}

	resolved, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, ErrEmptyCart
	}

	groups := s.engine.group(resolved, in.DeliveryType)

	orders := make([]OrderSummary, 0, len(groups))
	total := 0.0
	for _, g := range groups {
		order := OrderSummary{
			OrderNumber:  orderNumber(),
			PharmacyID:   g.PharmacyID,
			PharmacyName: g.PharmacyName,
			DeliveryType: string(in.DeliveryType),
			ItemsCount:   len(g.Items),
			Subtotal:     g.TotalPrice,
			DeliveryFee:  g.DeliveryFee,
			TotalAmount:  g.TotalPrice + g.DeliveryFee,
			Status:       "pending",
		}
		if in.PaymentMethod != "cash" {
			order.Status = "pending_payment"
		}
		if in.DeliveryType == DeliveryPickup {
			code := pickupCode()
			order.PickupCode = &code
		}
		orders = append(orders, order)
		total += order.TotalAmount
	}

	if err := s.store.Clear(ctx, userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	s.logger.Info("multi-order created",
		zap.String("user_id", userID),
		zap.Int("orders", len(orders)),
		zap.Float64("payment_amount", total))

	s.notifyBestEffort(ctx, userID, orders, total)

	plural := ""
	if len(orders) > 1 {
		plural = "s"
	}
	return &MultiOrderResult{
		PaymentRequired: in.PaymentMethod == "card" || in.PaymentMethod == "mobile_money" || in.PaymentMethod == "paypal",
		PaymentAmount:   total,
		Orders:          orders,
		Message:         fmt.Sprintf("%d commande%s créée%s avec succès", len(orders), plural, plural),
	}, nil
}

func (s *Service) notifyBestEffort(ctx context.Context, userID string, orders []OrderSummary, total float64) {
	if s.notifier == nil {
		return
	}
	numbers := make([]string, 0, len(orders))
	for _, o := range orders {
		numbers = append(numbers, o.OrderNumber)
	}
	err := s.notifier.Notify(ctx, userID,
		"Commande confirmée",
		fmt.Sprintf("Votre commande de %.0f FCFA a été enregistrée (%d pharmacie(s))", total, len(orders)),
		notify.TypeOrderCreated,
		map[string]any{"order_numbers": numbers, "payment_amount": total})
	if err != nil {
		s.logger.Warn("order notification failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func orderNumber() string {
	return fmt.Sprintf("ORD%06d", rand.IntN(900000)+100000)
}

func pickupCode() string {
	return fmt.Sprintf("%04d", rand.IntN(9000)+1000)
}
