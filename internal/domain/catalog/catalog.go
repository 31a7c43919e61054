// Package catalog holds the read models the prescription and cart cores
// consume: products, pharmacies, pharmacy inventory and cart lines. The
// marketplace CRUD that maintains them lives outside this module.
package catalog

import "time"

// Product is a marketplace product.
type Product struct {
	ID                   string
	Name                 string
	GenericName          *string
	Dosage               *string
	Manufacturer         *string
	Description          *string
	RequiresPrescription bool
}

// Pharmacy is a registered pharmacy.
type Pharmacy struct {
	ID         string
	Name       string
	OwnerID    string
	Address    string
	City       string
	Country    string
	Phone      *string
	Email      *string
	Latitude   *float64
	Longitude  *float64
	IsActive   bool
	IsVerified bool
}

// InventoryItem is a pharmacy's stock entry for a product.
type InventoryItem struct {
	PharmacyID string
	ProductID  string
	Price      float64
	Quantity   int
}

// CartItem is one cart line: a product at a specific pharmacy.
type CartItem struct {
	ID         string
	UserID     string
	ProductID  string
	PharmacyID string
	Quantity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
