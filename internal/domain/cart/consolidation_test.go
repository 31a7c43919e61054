package cart

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
	"github.com/santemarket/pharma-backend/internal/geo"
)

type fakeInventory struct {
	mu      sync.Mutex
	similar map[string][]catalog.SimilarProduct
	err     error
}

func (f *fakeInventory) Product(_ context.Context, _ string) (*catalog.Product, error) {
	return nil, nil
}

func (f *fakeInventory) Pharmacy(_ context.Context, _ string) (*catalog.Pharmacy, error) {
	return nil, nil
}

func (f *fakeInventory) PharmacyByOwner(_ context.Context, _ string) (*catalog.Pharmacy, error) {
	return nil, nil
}

func (f *fakeInventory) ActiveVerified(_ context.Context) ([]*catalog.Pharmacy, error) {
	return nil, nil
}

func (f *fakeInventory) InventoryItem(_ context.Context, _, _ string) (*catalog.InventoryItem, error) {
	return nil, nil
}

func (f *fakeInventory) SimilarInStock(_ context.Context, pharmacyID, fragment string, _ int) ([]catalog.SimilarProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.similar[pharmacyID+"/"+fragment], nil
}

func newTestEngine(inv *fakeInventory) *Engine {
	if inv == nil {
		inv = &fakeInventory{}
	}
	return NewEngine(inv, EngineConfig{DeliveryFee: 2000}, zap.NewNop())
}

func lomeItem(cartItemID, productID, name, pharmacyID, pharmacyName string, lat, lon float64, qty int, price float64) ResolvedItem {
	return ResolvedItem{
		CartItemID:   cartItemID,
		ProductID:    productID,
		ProductName:  name,
		PharmacyID:   pharmacyID,
		PharmacyName: pharmacyName,
		City:         "Lomé",
		Latitude:     geo.Ptr(lat),
		Longitude:    geo.Ptr(lon),
		Quantity:     qty,
		UnitPrice:    price,
		PriceKnown:   true,
	}
}

func TestConsolidateSinglePharmacy(t *testing.T) {
	engine := newTestEngine(nil)

	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie du Centre", 6.1319, 1.2228, 2, 1500),
		lomeItem("c2", "p2", "Doliprane 1000mg", "ph1", "Pharmacie du Centre", 6.1319, 1.2228, 1, 800),
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryHome)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Equal(t, 1, result.TotalDeliveries)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Suggestions)
	assert.False(t, result.RequiresDuplication)

	require.Len(t, result.PharmacyGroups, 1)
	g := result.PharmacyGroups[0]
	assert.Equal(t, 3800.0, g.TotalPrice)
	assert.Equal(t, 2000.0, g.DeliveryFee)
	assert.Equal(t, 2000.0, result.TotalDeliveryFees)
}

func TestConsolidatePickupDuplication(t *testing.T) {
	engine := newTestEngine(nil)

	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie A", 6.1319, 1.2228, 1, 1500),
		lomeItem("c2", "p2", "Doliprane 1000mg", "ph2", "Pharmacie B", 6.1350, 1.2250, 1, 800),
		lomeItem("c3", "p3", "Vitamine C", "ph3", "Pharmacie C", 6.1340, 1.2240, 1, 500),
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryPickup)
	require.NoError(t, err)

	assert.True(t, result.RequiresDuplication)
	assert.Equal(t, 3, result.TotalDeliveries)
	// No delivery fees under pickup.
	assert.Equal(t, 0.0, result.TotalDeliveryFees)
	for _, g := range result.PharmacyGroups {
		assert.Equal(t, 0.0, g.DeliveryFee)
	}

	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "3 pharmacies différentes")
	assert.Contains(t, result.Warnings[0], "3 codes de retrait")
}

func TestConsolidateHomeDeliveryTwoPharmacies(t *testing.T) {
	engine := newTestEngine(nil)

	// The two fixtures sit a bit over 5km apart across Lomé.
	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie du Port", 6.1319, 1.2228, 1, 1500),
		lomeItem("c2", "p2", "Doliprane 1000mg", "ph2", "Pharmacie du Nord", 6.1700, 1.2500, 1, 800),
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryHome)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalDeliveries)
	assert.Equal(t, 4000.0, result.TotalDeliveryFees)
	assert.False(t, result.RequiresDuplication)

	var distanceWarning, deliveryWarning bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "Distance entre") {
			distanceWarning = true
		}
		if strings.Contains(w, "2 livraisons séparées") {
			deliveryWarning = true
			assert.Contains(t, w, "4000 FCFA")
		}
	}
	assert.True(t, distanceWarning, "expected a distance warning above 5km")
	assert.True(t, deliveryWarning, "expected a multi-delivery warning")
}

func TestConsolidateCityMismatchWarning(t *testing.T) {
	engine := newTestEngine(nil)

	kara := lomeItem("c2", "p2", "Doliprane 1000mg", "ph2", "Pharmacie de Kara", 9.5511, 1.1861, 1, 800)
	kara.City = "Kara"

	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie du Port", 6.1319, 1.2228, 1, 1500),
		kara,
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryPickup)
	require.NoError(t, err)

	var cityWarning bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "villes différentes") {
			cityWarning = true
			assert.Contains(t, w, "Lomé")
			assert.Contains(t, w, "Kara")
		}
	}
	assert.True(t, cityWarning, "expected a city mismatch warning")
}

func TestSuggestionsPriceCap(t *testing.T) {
	// ph1 carries the bigger basket, so it is the consolidation target.
	inv := &fakeInventory{similar: map[string][]catalog.SimilarProduct{
		"ph1/Doliprane": {
			// 160% of the original 1000: rejected by the price cap.
			{ProductID: "p9", Name: "Doliprane 500mg", Price: 1600},
			// 140%: within the 50% increase cap.
			{ProductID: "p10", Name: "Doliprane Générique", Price: 1400},
		},
	}}
	engine := newTestEngine(inv)

	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie A", 6.1319, 1.2228, 3, 2000),
		lomeItem("c2", "p2", "Doliprane 1000mg", "ph2", "Pharmacie B", 6.1350, 1.2250, 1, 1000),
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryPickup)
	require.NoError(t, err)

	require.Len(t, result.Suggestions, 1)
	s := result.Suggestions[0]
	assert.Equal(t, "c2", s.OriginalCartItemID)
	assert.Equal(t, "p10", s.SuggestedProductID)
	assert.Equal(t, "ph1", s.TargetPharmacyID)
	assert.Equal(t, "ph2", s.OriginalPharmacyID)
	assert.Equal(t, 400.0, s.PriceDifference)
}

func TestSuggestionsDegradeOnLookupFailure(t *testing.T) {
	inv := &fakeInventory{err: assert.AnError}
	engine := newTestEngine(inv)

	items := []ResolvedItem{
		lomeItem("c1", "p1", "Amoxicilline 500mg", "ph1", "Pharmacie A", 6.1319, 1.2228, 1, 1500),
		lomeItem("c2", "p2", "Doliprane 1000mg", "ph2", "Pharmacie B", 6.1350, 1.2250, 1, 800),
	}

	result, err := engine.Consolidate(context.Background(), items, DeliveryPickup)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.True(t, result.IsValid)
}

func TestGroupPreservesFirstSeenOrder(t *testing.T) {
	engine := newTestEngine(nil)

	items := []ResolvedItem{
		lomeItem("c1", "p1", "A", "ph2", "Pharmacie B", 6.1350, 1.2250, 1, 100),
		lomeItem("c2", "p2", "B", "ph1", "Pharmacie A", 6.1319, 1.2228, 1, 100),
		lomeItem("c3", "p3", "C", "ph2", "Pharmacie B", 6.1350, 1.2250, 1, 100),
	}

	groups := engine.group(items, DeliveryPickup)
	require.Len(t, groups, 2)
	assert.Equal(t, "ph2", groups[0].PharmacyID)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, "ph1", groups[1].PharmacyID)
}
