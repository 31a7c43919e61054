package cart

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/domain/catalog"
	"github.com/santemarket/pharma-backend/internal/geo"
)

// Consolidation policy constants.
const (
	// DistanceWarnKm triggers a dispersion warning between two pharmacies.
	DistanceWarnKm = 5.0
	// SuggestionCandidates caps the inventory matches inspected per item.
	SuggestionCandidates = 3
	// PriceCapRatio is the maximum acceptable price increase for a suggested
	// substitute, relative to the original unit price.
	PriceCapRatio = 0.5
)

// EngineConfig holds the consolidation tunables.
type EngineConfig struct {
	// DeliveryFee is the flat per-pharmacy fee charged under home delivery.
	DeliveryFee float64
}

// Engine turns a resolved cart into a ConsolidationResult. It is stateless;
// inventory lookups for suggestions go through the catalog store.
type Engine struct {
	catalog catalog.Store
	cfg     EngineConfig
	logger  *zap.Logger
}

// NewEngine creates a consolidation engine.
func NewEngine(cat catalog.Store, cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{catalog: cat, cfg: cfg, logger: logger}
}

// Consolidate groups the resolved cart by pharmacy, applies the delivery-type
// policy and produces warnings and substitution suggestions.
func (e *Engine) Consolidate(ctx context.Context, items []ResolvedItem, deliveryType DeliveryType) (*ConsolidationResult, error) {
	groups := e.group(items, deliveryType)

	warnings := e.geographicWarnings(groups)

	totalFees := 0.0
	for _, g := range groups {
		totalFees += g.DeliveryFee
	}

	requiresDuplication := false
	switch deliveryType {
	case DeliveryPickup:
		if len(groups) > 1 {
			requiresDuplication = true
			warnings = append(warnings, fmt.Sprintf(
				"Votre panier contient des produits de %d pharmacies différentes. Nous créerons %d commandes séparées (une par pharmacie) pour faciliter le retrait. Vous paierez en une seule fois et recevrez %d codes de retrait différents.",
				len(groups), len(groups), len(groups)))
		}
	case DeliveryHome:
		if len(groups) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"Votre commande nécessitera %d livraisons séparées (frais de livraison: %.0f FCFA au total).",
				len(groups), totalFees))
		}
	}

	suggestions, err := e.suggestions(ctx, groups)
	if err != nil {
		// Suggestions are advisory; a lookup failure degrades to none.
		e.logger.Warn("suggestion generation failed", zap.Error(err))
		suggestions = []ProductSuggestion{}
	}

	return &ConsolidationResult{
		IsValid:             true,
		DeliveryType:        deliveryType,
		PharmacyGroups:      groups,
		TotalDeliveries:     len(groups),
		TotalDeliveryFees:   totalFees,
		Warnings:            warnings,
		Suggestions:         suggestions,
		RequiresDuplication: requiresDuplication,
	}, nil
}

// group partitions items by pharmacy, preserving first-seen order.
func (e *Engine) group(items []ResolvedItem, deliveryType DeliveryType) []PharmacyGroup {
	fee := 0.0
	if deliveryType == DeliveryHome {
		fee = e.cfg.DeliveryFee
	}

	index := make(map[string]int)
	groups := make([]PharmacyGroup, 0)

	for _, item := range items {
		i, ok := index[item.PharmacyID]
		if !ok {
			i = len(groups)
			index[item.PharmacyID] = i
			groups = append(groups, PharmacyGroup{
				PharmacyID:      item.PharmacyID,
				PharmacyName:    item.PharmacyName,
				PharmacyAddress: item.Address,
				PharmacyCity:    item.City,
				Latitude:        item.Latitude,
				Longitude:       item.Longitude,
				DeliveryFee:     fee,
			})
		}

		if !item.PriceKnown {
			e.logger.Warn("cart item priced with fallback, inventory row missing",
				zap.String("cart_item_id", item.CartItemID),
				zap.String("product_id", item.ProductID),
				zap.String("pharmacy_id", item.PharmacyID))
		}

		lineTotal := item.UnitPrice * float64(item.Quantity)
		groups[i].Items = append(groups[i].Items, LineItem{
			CartItemID:    item.CartItemID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			TotalPrice:    lineTotal,
			PriceFallback: !item.PriceKnown,
		})
		groups[i].TotalPrice += lineTotal
	}

	return groups
}

// geographicWarnings compares every unordered pair of groups for city
// mismatches and excessive distance.
func (e *Engine) geographicWarnings(groups []PharmacyGroup) []string {
	warnings := []string{}
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			a, b := groups[i], groups[j]

			cityA := strings.ToLower(strings.TrimSpace(a.PharmacyCity))
			cityB := strings.ToLower(strings.TrimSpace(b.PharmacyCity))
			if cityA != "" && cityB != "" && cityA != cityB {
				warnings = append(warnings, fmt.Sprintf(
					"Les pharmacies \"%s\" (%s) et \"%s\" (%s) sont dans des villes différentes.",
					a.PharmacyName, titleCase(cityA), b.PharmacyName, titleCase(cityB)))
			}

			if d, ok := geo.Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude); ok && d > DistanceWarnKm {
				warnings = append(warnings, fmt.Sprintf(
					"Distance entre \"%s\" et \"%s\": %.2f km",
					a.PharmacyName, b.PharmacyName, d))
			}
		}
	}
	return warnings
}

// suggestions proposes substitutes at the highest-value pharmacy for every
// item parked at another pharmacy: at most one suggestion per item, never
// above PriceCapRatio over the original unit price.
func (e *Engine) suggestions(ctx context.Context, groups []PharmacyGroup) ([]ProductSuggestion, error) {
	suggestions := []ProductSuggestion{}
	if len(groups) <= 1 {
		return suggestions, nil
	}

	target := groups[0]
	for _, g := range groups[1:] {
		if g.TotalPrice > target.TotalPrice {
			target = g
		}
	}

	for _, g := range groups {
		if g.PharmacyID == target.PharmacyID {
			continue
		}
		for _, item := range g.Items {
			firstWord := firstNameWord(item.ProductName)
			if firstWord == "" {
				continue
			}

			candidates, err := e.catalog.SimilarInStock(ctx, target.PharmacyID, firstWord, SuggestionCandidates)
			if err != nil {
				return nil, fmt.Errorf("search similar products: %w", err)
			}

			for _, c := range candidates {
				diff := c.Price - item.UnitPrice
				if diff > item.UnitPrice*PriceCapRatio {
					continue
				}
				suggestions = append(suggestions, ProductSuggestion{
					OriginalCartItemID:   item.CartItemID,
					OriginalProductName:  item.ProductName,
					SuggestedProductID:   c.ProductID,
					SuggestedProductName: c.Name,
					OriginalPharmacyID:   g.PharmacyID,
					TargetPharmacyID:     target.PharmacyID,
					PriceDifference:      diff,
				})
				break
			}
		}
	}

	return suggestions, nil
}

func firstNameWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
