package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
)

// CatalogStore reads the marketplace catalog: products, pharmacies and
// pharmacy inventory.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a catalog store.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Product returns a product by id, or nil when absent.
func (s *CatalogStore) Product(ctx context.Context, id string) (*catalog.Product, error) {
	query := `
		SELECT id, name, generic_name, dosage, manufacturer, description, requires_prescription
		FROM products
		WHERE id = $1
	`
	p := &catalog.Product{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.GenericName, &p.Dosage,
		&p.Manufacturer, &p.Description, &p.RequiresPrescription,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

const pharmacyColumns = `
	id, name, owner_id, address, city, country, phone, email,
	latitude, longitude, is_active, is_verified
`

// Pharmacy returns a pharmacy by id, or nil when absent.
func (s *CatalogStore) Pharmacy(ctx context.Context, id string) (*catalog.Pharmacy, error) {
	query := `SELECT ` + pharmacyColumns + ` FROM pharmacies WHERE id = $1`
	return s.pharmacyRow(s.pool.QueryRow(ctx, query, id))
}

// PharmacyByOwner returns the pharmacy operated by a user, or nil.
func (s *CatalogStore) PharmacyByOwner(ctx context.Context, ownerID string) (*catalog.Pharmacy, error) {
	query := `SELECT ` + pharmacyColumns + ` FROM pharmacies WHERE owner_id = $1`
	return s.pharmacyRow(s.pool.QueryRow(ctx, query, ownerID))
}

func (s *CatalogStore) pharmacyRow(row pgx.Row) (*catalog.Pharmacy, error) {
	ph, err := scanPharmacy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pharmacy: %w", err)
	}
	return ph, nil
}

// ActiveVerified lists the pharmacies eligible as retry targets.
func (s *CatalogStore) ActiveVerified(ctx context.Context) ([]*catalog.Pharmacy, error) {
	query := `
		SELECT ` + pharmacyColumns + `
		FROM pharmacies
		WHERE is_active AND is_verified
		ORDER BY name ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	defer rows.Close()

	var pharmacies []*catalog.Pharmacy
	for rows.Next() {
		ph, err := scanPharmacy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		pharmacies = append(pharmacies, ph)
	}
	return pharmacies, rows.Err()
}

// InventoryItem returns a pharmacy's stock entry for a product, or nil when
// the pharmacy does not carry it.
func (s *CatalogStore) InventoryItem(ctx context.Context, pharmacyID, productID string) (*catalog.InventoryItem, error) {
	query := `
		SELECT pharmacy_id, product_id, price, quantity
		FROM pharmacy_inventory
		WHERE pharmacy_id = $1 AND product_id = $2
	`
	item := &catalog.InventoryItem{}
	err := s.pool.QueryRow(ctx, query, pharmacyID, productID).Scan(
		&item.PharmacyID, &item.ProductID, &item.Price, &item.Quantity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

// SimilarInStock searches a pharmacy's in-stock inventory for product names
// containing the fragment, case-insensitively, cheapest first.
func (s *CatalogStore) SimilarInStock(ctx context.Context, pharmacyID, nameFragment string, limit int) ([]catalog.SimilarProduct, error) {
	query := `
		SELECT p.id, p.name, i.price
		FROM pharmacy_inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.pharmacy_id = $1
		  AND i.quantity > 0
		  AND p.name ILIKE '%' || $2 || '%'
		ORDER BY i.price ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, pharmacyID, nameFragment, limit)
	if err != nil {
		return nil, fmt.Errorf("search inventory: %w", err)
	}
	defer rows.Close()

	var products []catalog.SimilarProduct
	for rows.Next() {
		var sp catalog.SimilarProduct
		if err := rows.Scan(&sp.ProductID, &sp.Name, &sp.Price); err != nil {
			return nil, fmt.Errorf("scan similar product: %w", err)
		}
		products = append(products, sp)
	}
	return products, rows.Err()
}

func scanPharmacy(row rowScanner) (*catalog.Pharmacy, error) {
	ph := &catalog.Pharmacy{}
	err := row.Scan(
		&ph.ID, &ph.Name, &ph.OwnerID, &ph.Address, &ph.City, &ph.Country,
		&ph.Phone, &ph.Email, &ph.Latitude, &ph.Longitude,
		&ph.IsActive, &ph.IsVerified,
	)
	if err != nil {
		return nil, err
	}
	return ph, nil
}
