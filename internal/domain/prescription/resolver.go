package prescription

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/geo"
)

// Alternative-pharmacy search defaults.
const (
	DefaultMaxDistanceKm = 50.0
	DefaultAlternatives  = 5
)

// Candidate is an alternative pharmacy able to take over an expired request,
// ranked by distance from the original pharmacy.
type Candidate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	City       string   `json:"city"`
	Phone      *string  `json:"phone"`
	DistanceKm float64  `json:"distance_km"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// Alternatives ranks nearby active, verified pharmacies that can serve as a
// retry target for an expired request. Only the request owner may ask. When
// the original pharmacy has no coordinates the result is empty, not an error.
func (s *Service) Alternatives(ctx context.Context, actorID, requestID string, maxDistanceKm float64, limit int) ([]Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "alternative_pharmacies",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}
	if limit <= 0 {
		limit = DefaultAlternatives
	}

	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != actorID {
		return nil, fmt.Errorf("%w: not allowed to view this prescription", ErrNotAuthorized)
	}
	if req.Status != StatusExpired {
		return nil, fmt.Errorf("%w: alternatives are only available for expired requests", ErrInvalidState)
	}

	original, err := s.catalog.Pharmacy(ctx, req.PharmacyID)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy: %w", err)
	}
	if original == nil || original.Latitude == nil || original.Longitude == nil {
		s.logger.Warn("original pharmacy missing coordinates, cannot rank alternatives",
			zap.String("pharmacy_id", req.PharmacyID))
		return []Candidate{}, nil
	}

	pharmacies, err := s.catalog.ActiveVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}

	candidates := make([]Candidate, 0, len(pharmacies))
	for _, p := range pharmacies {
		if p.ID == original.ID {
			continue
		}
		d, ok := geo.Distance(original.Latitude, original.Longitude, p.Latitude, p.Longitude)
		if !ok || d > maxDistanceKm {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         p.ID,
			Name:       p.Name,
			Address:    p.Address,
			City:       p.City,
			Phone:      p.Phone,
			DistanceKm: d,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.logger.Info("alternative pharmacies resolved",
		zap.String("request_id", requestID),
		zap.Int("count", len(candidates)))

	return candidates, nil
}
