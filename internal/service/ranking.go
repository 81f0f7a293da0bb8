package service

import (
	"math"
	"sort"

	"dispatch/internal/domain"
)

// Balanced mode weights: distance dominates, rating breaks the spread.
const (
	balancedDistanceWeight = 0.7
	balancedRatingWeight   = 0.3
	maxRating              = 5.0
)

// RankedCandidate is the ephemeral output of a ranking pass. It is computed
// fresh on every dispatch decision and never persisted.
type RankedCandidate struct {
	ProviderID string
	DistanceKm float64
	Rating     float64
	Score      float64
}

// Rank orders candidate providers for dispatch. It is a pure function: the
// same snapshot of candidates always produces the same order.
//
// NEAREST sorts ascending by distance, ties broken by higher rating, then
// stable provider-id order. HIGHEST_RATING sorts descending by rating, ties
// broken by ascending distance, then id. BALANCED sorts ascending by a
// composite of normalized distance and inverted normalized rating, ties
// broken by higher raw rating, then id.
func Rank(lat, lng float64, candidates []*domain.Provider, mode domain.SortMode) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, p := range candidates {
		ranked = append(ranked, RankedCandidate{
			ProviderID: p.ID,
			DistanceKm: HaversineKm(lat, lng, p.Lat, p.Lng),
			Rating:     p.Rating,
		})
	}

	switch mode {
	case domain.SortModeHighestRating:
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Rating != ranked[j].Rating {
				return ranked[i].Rating > ranked[j].Rating
			}
			if ranked[i].DistanceKm != ranked[j].DistanceKm {
				return ranked[i].DistanceKm < ranked[j].DistanceKm
			}
			return ranked[i].ProviderID < ranked[j].ProviderID
		})

	case domain.SortModeBalanced:
		maxDist := 0.0
		minDist := math.MaxFloat64
		for _, c := range ranked {
			if c.DistanceKm > maxDist {
				maxDist = c.DistanceKm
			}
			if c.DistanceKm < minDist {
				minDist = c.DistanceKm
			}
		}
		// With a single candidate, or all candidates equidistant, distance
		// carries no signal and contributes zero to the score.
		flat := len(ranked) <= 1 || maxDist == minDist || maxDist == 0
		for i := range ranked {
			nd := 0.0
			if !flat {
				nd = ranked[i].DistanceKm / maxDist
			}
			nr := ranked[i].Rating / maxRating
			ranked[i].Score = balancedDistanceWeight*nd + balancedRatingWeight*(1-nr)
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Score != ranked[j].Score {
				return ranked[i].Score < ranked[j].Score
			}
			if ranked[i].Rating != ranked[j].Rating {
				return ranked[i].Rating > ranked[j].Rating
			}
			return ranked[i].ProviderID < ranked[j].ProviderID
		})

	default: // domain.SortModeNearest
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].DistanceKm != ranked[j].DistanceKm {
				return ranked[i].DistanceKm < ranked[j].DistanceKm
			}
			if ranked[i].Rating != ranked[j].Rating {
				return ranked[i].Rating > ranked[j].Rating
			}
			return ranked[i].ProviderID < ranked[j].ProviderID
		})
	}

	return ranked
}

// ValidateSortMode validates a sort mode string, defaulting to NEAREST.
func ValidateSortMode(mode string) (domain.SortMode, error) {
	switch domain.SortMode(mode) {
	case domain.SortModeNearest, domain.SortModeHighestRating, domain.SortModeBalanced:
		return domain.SortMode(mode), nil
	case "":
		return domain.SortModeNearest, nil
	default:
		return "", ErrInvalidSortMode
	}
}

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
