package catalog

import "context"

// SimilarProduct is an in-stock product at a given pharmacy matched by name,
// with its current inventory price.
type SimilarProduct struct {
	ProductID string
	Name      string
	Price     float64
}

// Store provides read access to the marketplace catalog. The durable store is
// the only shared state between the API and the monitor; no in-memory caching
// of these reads is permitted.
type Store interface {
	Product(ctx context.Context, id string) (*Product, error)
	Pharmacy(ctx context.Context, id string) (*Pharmacy, error)
	// PharmacyByOwner resolves the pharmacy operated by the given user, or
	// nil when the user owns none.
	PharmacyByOwner(ctx context.Context, ownerID string) (*Pharmacy, error)
	// ActiveVerified lists pharmacies eligible as alternative-retry targets.
	ActiveVerified(ctx context.Context) ([]*Pharmacy, error)
	// InventoryItem returns the pharmacy's stock entry for a product, or nil
	// when the pharmacy does not carry it.
	InventoryItem(ctx context.Context, pharmacyID, productID string) (*InventoryItem, error)
	// SimilarInStock searches a pharmacy's in-stock inventory for products
	// whose name contains the given fragment, case-insensitively.
	SimilarInStock(ctx context.Context, pharmacyID, nameFragment string, limit int) ([]SimilarProduct, error)
}
