package cart

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
	"github.com/santemarket/pharma-backend/internal/geo"
)

type memoryCartStore struct {
	mu    sync.Mutex
	items map[string]*catalog.CartItem
}

func newMemoryCartStore() *memoryCartStore {
	return &memoryCartStore{items: make(map[string]*catalog.CartItem)}
}

func (s *memoryCartStore) ItemsByUser(_ context.Context, userID string) ([]catalog.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.CartItem
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *memoryCartStore) Find(_ context.Context, userID, productID, pharmacyID string) (*catalog.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.UserID == userID && item.ProductID == productID && item.PharmacyID == pharmacyID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryCartStore) FindByID(_ context.Context, userID, itemID string) (*catalog.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.UserID != userID {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *memoryCartStore) Insert(_ context.Context, item *catalog.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *memoryCartStore) UpdateQuantity(_ context.Context, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[itemID]; ok {
		item.Quantity = quantity
	}
	return nil
}

func (s *memoryCartStore) Delete(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemID)
	return nil
}

func (s *memoryCartStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.UserID == userID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *memoryCartStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if item.UserID == userID {
			n += item.Quantity
		}
	}
	return n, nil
}

type memoryCatalog struct {
	products   map[string]*catalog.Product
	pharmacies map[string]*catalog.Pharmacy
	inventory  map[string]*catalog.InventoryItem
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		products:   make(map[string]*catalog.Product),
		pharmacies: make(map[string]*catalog.Pharmacy),
		inventory:  make(map[string]*catalog.InventoryItem),
	}
}

func (c *memoryCatalog) Product(_ context.Context, id string) (*catalog.Product, error) {
	return c.products[id], nil
}

func (c *memoryCatalog) Pharmacy(_ context.Context, id string) (*catalog.Pharmacy, error) {
	return c.pharmacies[id], nil
}

func (c *memoryCatalog) PharmacyByOwner(_ context.Context, _ string) (*catalog.Pharmacy, error) {
	return nil, nil
}

func (c *memoryCatalog) ActiveVerified(_ context.Context) ([]*catalog.Pharmacy, error) {
	return nil, nil
}

func (c *memoryCatalog) InventoryItem(_ context.Context, pharmacyID, productID string) (*catalog.InventoryItem, error) {
	return c.inventory[pharmacyID+"/"+productID], nil
}

func (c *memoryCatalog) SimilarInStock(_ context.Context, _, _ string, _ int) ([]catalog.SimilarProduct, error) {
	return nil, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	last  map[string]any
}

func (n *countingNotifier) Notify(_ context.Context, _, _, _, _ string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = data
	return nil
}

type testCounter struct {
	mu sync.Mutex
	n  int
}

func (c *testCounter) Inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func cartFixture() (*Service, *memoryCartStore, *memoryCatalog, *countingNotifier, *testCounter) {
	store := newMemoryCartStore()
	cat := newMemoryCatalog()
	notifier := &countingNotifier{}
	counter := &testCounter{}

	cat.products["p1"] = &catalog.Product{ID: "p1", Name: "Amoxicilline 500mg"}
	cat.products["p2"] = &catalog.Product{ID: "p2", Name: "Doliprane 1000mg"}
	cat.pharmacies["ph1"] = &catalog.Pharmacy{
		ID: "ph1", Name: "Pharmacie A", City: "Lomé",
		Latitude: geo.Ptr(6.1319), Longitude: geo.Ptr(1.2228),
	}
	cat.pharmacies["ph2"] = &catalog.Pharmacy{
		ID: "ph2", Name: "Pharmacie B", City: "Lomé",
		Latitude: geo.Ptr(6.1350), Longitude: geo.Ptr(1.2250),
	}
	cat.inventory["ph1/p1"] = &catalog.InventoryItem{PharmacyID: "ph1", ProductID: "p1", Price: 1500, Quantity: 10}
	cat.inventory["ph2/p2"] = &catalog.InventoryItem{PharmacyID: "ph2", ProductID: "p2", Price: 800, Quantity: 5}

	svc := NewService(store, cat, notifier, ServiceConfig{
		DeliveryFee:   2000,
		FallbackPrice: 1000,
	}, counter, zap.NewNop())
	return svc, store, cat, notifier, counter
}

func TestAddMergesQuantities(t *testing.T) {
	svc, store, _, _, _ := cartFixture()
	ctx := context.Background()

	id1, err := svc.Add(ctx, "user-1", "p1", "ph1", 2)
	require.NoError(t, err)

	id2, err := svc.Add(ctx, "user-1", "p1", "ph1", 3)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	item, _ := store.FindByID(ctx, "user-1", id1)
	require.NotNil(t, item)
	assert.Equal(t, 5, item.Quantity)

	count, err := svc.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestAddValidation(t *testing.T) {
	svc, _, _, _, _ := cartFixture()
	ctx := context.Background()

	_, err := svc.Add(ctx, "user-1", "p1", "ph1", 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Add(ctx, "user-1", "missing", "ph1", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Add(ctx, "user-1", "p1", "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateZeroQuantityDeletes(t *testing.T) {
	svc, store, _, _, _ := cartFixture()
	ctx := context.Background()

	id, err := svc.Add(ctx, "user-1", "p1", "ph1", 2)
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, "user-1", id, 0))
	item, _ := store.FindByID(ctx, "user-1", id)
	assert.Nil(t, item)

	// Users cannot touch each other's lines.
	id, err = svc.Add(ctx, "user-1", "p1", "ph1", 2)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Update(ctx, "user-2", id, 5), ErrNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, "user-2", id), ErrNotFound)
}

func TestValidateDeliveryEmptyCart(t *testing.T) {
	svc, _, _, _, _ := cartFixture()

	_, err := svc.ValidateDelivery(context.Background(), "user-1", DeliveryPickup)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.ValidateDelivery(context.Background(), "user-1", DeliveryType("drone"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateDeliveryFallbackPrice(t *testing.T) {
	svc, _, cat, _, counter := cartFixture()
	ctx := context.Background()

	// No inventory row for this pair.
	cat.products["p3"] = &catalog.Product{ID: "p3", Name: "Vitamine C"}
	_, err := svc.Add(ctx, "user-1", "p3", "ph1", 2)
	require.NoError(t, err)

	result, err := svc.ValidateDelivery(ctx, "user-1", DeliveryPickup)
	require.NoError(t, err)

	require.Len(t, result.PharmacyGroups, 1)
	require.Len(t, result.PharmacyGroups[0].Items, 1)
	line := result.PharmacyGroups[0].Items[0]
	assert.Equal(t, 1000.0, line.UnitPrice)
	assert.True(t, line.PriceFallback)
	assert.Equal(t, 1, counter.n)
}

func TestCreateMultiOrderPickup(t *testing.T) {
	svc, store, _, notifier, _ := cartFixture()
	ctx := context.Background()

	_, err := svc.Add(ctx, "user-1", "p1", "ph1", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "user-1", "p2", "ph2", 2)
	require.NoError(t, err)

	result, err := svc.CreateMultiOrder(ctx, "user-1", MultiOrderInput{
		DeliveryType:  DeliveryPickup,
		PaymentMethod: "mobile_money",
	})
	require.NoError(t, err)

	require.Len(t, result.Orders, 2)
	assert.True(t, result.PaymentRequired)
	// 1500 + 2*800, no delivery fees under pickup.
	assert.Equal(t, 3100.0, result.PaymentAmount)

	orderNumberRe := regexp.MustCompile(`^ORD\d{6}$`)
	pickupCodeRe := regexp.MustCompile(`^\d{4}$`)
	for _, o := range result.Orders {
		assert.Regexp(t, orderNumberRe, o.OrderNumber)
		require.NotNil(t, o.PickupCode)
		assert.Regexp(t, pickupCodeRe, *o.PickupCode)
		assert.Equal(t, 0.0, o.DeliveryFee)
		assert.Equal(t, "pending_payment", o.Status)
	}

	// Cart cleared, client notified.
	items, _ := store.ItemsByUser(ctx, "user-1")
	assert.Empty(t, items)
	assert.Equal(t, 1, notifier.calls)
}

func TestCreateMultiOrderHomeDeliveryRequiresAddress(t *testing.T) {
	svc, _, _, _, _ := cartFixture()
	ctx := context.Background()

	_, err := svc.Add(ctx, "user-1", "p1", "ph1", 1)
	require.NoError(t, err)

	_, err = svc.CreateMultiOrder(ctx, "user-1", MultiOrderInput{
		DeliveryType:  DeliveryHome,
		PaymentMethod: "cash",
	})
	assert.ErrorIs(t, err, ErrValidation)

	address := "addr-1"
	result, err := svc.CreateMultiOrder(ctx, "user-1", MultiOrderInput{
		DeliveryType:  DeliveryHome,
		PaymentMethod: "cash",
		AddressID:     &address,
	})
	require.NoError(t, err)

	require.Len(t, result.Orders, 1)
	o := result.Orders[0]
	assert.Equal(t, 2000.0, o.DeliveryFee)
	assert.Equal(t, 3500.0, o.TotalAmount)
	assert.Nil(t, o.PickupCode)
	assert.Equal(t, "pending", o.Status)
	assert.False(t, result.PaymentRequired)
}

func TestCreateMultiOrderEmptyCart(t *testing.T) {
	svc, _, _, _, _ := cartFixture()

	_, err := svc.CreateMultiOrder(context.Background(), "user-1", MultiOrderInput{
		DeliveryType:  DeliveryPickup,
		PaymentMethod: "cash",
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}
