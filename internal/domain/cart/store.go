package cart

import (
	"context"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
)

// Store persists cart lines. One line per (user, product, pharmacy) triple;
// adding an existing triple merges quantities.
type Store interface {
	ItemsByUser(ctx context.Context, userID string) ([]catalog.CartItem, error)
	// Find returns the user's line for a product+pharmacy pair, or nil.
	Find(ctx context.Context, userID, productID, pharmacyID string) (*catalog.CartItem, error)
	// FindByID returns the user's line by id, or nil.
	FindByID(ctx context.Context, userID, itemID string) (*catalog.CartItem, error)
	Insert(ctx context.Context, item *catalog.CartItem) error
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	Delete(ctx context.Context, itemID string) error
	Clear(ctx context.Context, userID string) error
	// Count sums the quantities across the user's cart.
	Count(ctx context.Context, userID string) (int, error)
}
