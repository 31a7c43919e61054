// Package cart implements the cart consolidation engine: grouping cart lines
// by pharmacy, validating delivery feasibility across pharmacies and
// suggesting substitutions that reduce the number of separate deliveries.
package cart

// DeliveryType is the client's intended fulfilment mode.
type DeliveryType string

const (
	DeliveryPickup DeliveryType = "pickup"
	DeliveryHome   DeliveryType = "home_delivery"
)

// Valid reports whether the delivery type is one of the supported modes.
func (d DeliveryType) Valid() bool {
	return d == DeliveryPickup || d == DeliveryHome
}

// LineItem is one priced cart line inside a pharmacy group.
type LineItem struct {
	CartItemID  string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`

	// PriceFallback marks a line priced with the sentinel default because no
	// inventory row matched; a data-integrity warning, not a user error.
	PriceFallback bool `json:"-"`
}

// PharmacyGroup aggregates a user's cart lines for a single pharmacy.
// Derived, never persisted.
type PharmacyGroup struct {
	PharmacyID      string     `json:"pharmacy_id"`
	PharmacyName    string     `json:"pharmacy_name"`
	PharmacyAddress string     `json:"pharmacy_address"`
	PharmacyCity    string     `json:"pharmacy_city"`
	Latitude        *float64   `json:"-"`
	Longitude       *float64   `json:"-"`
	Items           []LineItem `json:"items"`
	TotalPrice      float64    `json:"total_price"`
	DeliveryFee     float64    `json:"delivery_fee"`
}

// ProductSuggestion proposes moving a cart line to the target pharmacy by
// substituting a similar in-stock product there.
type ProductSuggestion struct {
	OriginalCartItemID   string  `json:"original_product_id"`
	OriginalProductName  string  `json:"original_product_name"`
	SuggestedProductID   string  `json:"suggested_product_id"`
	SuggestedProductName string  `json:"suggested_product_name"`
	OriginalPharmacyID   string  `json:"original_pharmacy_id"`
	TargetPharmacyID     string  `json:"target_pharmacy_id"`
	PriceDifference      float64 `json:"price_difference"`
}

// ConsolidationResult is the outcome of a delivery validation pass.
type ConsolidationResult struct {
	IsValid             bool                `json:"is_valid"`
	DeliveryType        DeliveryType        `json:"delivery_type"`
	PharmacyGroups      []PharmacyGroup     `json:"pharmacy_groups"`
	TotalDeliveries     int                 `json:"total_deliveries"`
	TotalDeliveryFees   float64             `json:"total_delivery_fees"`
	Warnings            []string            `json:"warnings"`
	Suggestions         []ProductSuggestion `json:"suggestions"`
	RequiresDuplication bool                `json:"requires_duplication"`
}

// ResolvedItem is a cart line joined with its product, pharmacy and current
// inventory price, ready for consolidation.
type ResolvedItem struct {
	CartItemID   string
	ProductID    string
	ProductName  string
	PharmacyID   string
	PharmacyName string
	Address      string
	City         string
	Latitude     *float64
	Longitude    *float64
	Quantity     int
	UnitPrice    float64

	// PriceKnown is false when no inventory row matched and the sentinel
	// fallback price was applied.
	PriceKnown bool
}
