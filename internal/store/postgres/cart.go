package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
)

// CartStore persists cart lines. A unique index on
// (user_id, product_id, pharmacy_id) backs the one-line-per-triple rule.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore creates a cart store.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

const cartColumns = `id, user_id, product_id, pharmacy_id, quantity, created_at, updated_at`

// ItemsByUser returns the user's cart lines, oldest first.
func (s *CartStore) ItemsByUser(ctx context.Context, userID string) ([]catalog.CartItem, error) {
	query := `SELECT ` + cartColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := make([]catalog.CartItem, 0)
	for rows.Next() {
		var item catalog.CartItem
		if err := scanCartItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Find returns the user's line for a product+pharmacy pair, or nil.
func (s *CartStore) Find(ctx context.Context, userID, productID, pharmacyID string) (*catalog.CartItem, error) {
	query := `
		SELECT ` + cartColumns + `
		FROM cart_items
		WHERE user_id = $1 AND product_id = $2 AND pharmacy_id = $3
	`
	return s.cartRow(s.pool.QueryRow(ctx, query, userID, productID, pharmacyID))
}

// FindByID returns the user's line by id, or nil. The user filter keeps one
// client from touching another's lines.
func (s *CartStore) FindByID(ctx context.Context, userID, itemID string) (*catalog.CartItem, error) {
	query := `SELECT ` + cartColumns + ` FROM cart_items WHERE id = $1 AND user_id = $2`
	return s.cartRow(s.pool.QueryRow(ctx, query, itemID, userID))
}

func (s *CartStore) cartRow(row pgx.Row) (*catalog.CartItem, error) {
	item := &catalog.CartItem{}
	err := scanCartItem(row, item)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return item, nil
}

// Insert adds a new cart line.
func (s *CartStore) Insert(ctx context.Context, item *catalog.CartItem) error {
	query := `
		INSERT INTO cart_items (` + cartColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		item.ID, item.UserID, item.ProductID, item.PharmacyID,
		item.Quantity, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

// UpdateQuantity sets a line's quantity.
func (s *CartStore) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	query := `UPDATE cart_items SET quantity = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, itemID, quantity); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

// Delete removes a line.
func (s *CartStore) Delete(ctx context.Context, itemID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// Clear removes all of a user's lines.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Count sums the quantities across the user's cart.
func (s *CartStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cart items: %w", err)
	}
	return count, nil
}

func scanCartItem(row rowScanner, item *catalog.CartItem) error {
	return row.Scan(
		&item.ID, &item.UserID, &item.ProductID, &item.PharmacyID,
		&item.Quantity, &item.CreatedAt, &item.UpdatedAt,
	)
}
