package service

import (
	"math"
	"testing"

	"dispatch/internal/domain"
)

func provider(id string, lat, lng, rating float64) *domain.Provider {
	return &domain.Provider{
		ID:     id,
		Lat:    lat,
		Lng:    lng,
		Rating: rating,
		Status: domain.ProviderStatusAvailable,
	}
}

func TestRank_Nearest_OrdersByDistance(t *testing.T) {
	t.Parallel()

	// Requester in central Bangalore; A is ~1km out, B is ~12km out.
	candidates := []*domain.Provider{
		provider("provider-b", 13.0700, 77.5900, 4.9),
		provider("provider-a", 12.9800, 77.5950, 3.2),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeNearest)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].ProviderID != "provider-a" {
		t.Errorf("expected nearest provider-a first, got %s", ranked[0].ProviderID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].DistanceKm < ranked[i-1].DistanceKm {
			t.Errorf("distance order violated at index %d: %f < %f", i, ranked[i].DistanceKm, ranked[i-1].DistanceKm)
		}
	}
}

func TestRank_Nearest_TieBrokenByRating(t *testing.T) {
	t.Parallel()

	// Identical coordinates, so distance carries no signal.
	candidates := []*domain.Provider{
		provider("provider-low", 12.98, 77.59, 3.0),
		provider("provider-high", 12.98, 77.59, 4.8),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeNearest)

	if ranked[0].ProviderID != "provider-high" {
		t.Errorf("expected higher-rated provider to win the distance tie, got %s", ranked[0].ProviderID)
	}
}

func TestRank_Nearest_FullTieBrokenByID(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-z", 12.98, 77.59, 4.0),
		provider("provider-a", 12.98, 77.59, 4.0),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeNearest)

	if ranked[0].ProviderID != "provider-a" {
		t.Errorf("expected id order on full tie, got %s first", ranked[0].ProviderID)
	}
}

func TestRank_HighestRating_OrdersByRating(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-near-low", 12.9800, 77.5950, 3.2),
		provider("provider-far-high", 13.0700, 77.5900, 4.9),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeHighestRating)

	if ranked[0].ProviderID != "provider-far-high" {
		t.Errorf("expected highest-rated provider first regardless of distance, got %s", ranked[0].ProviderID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Rating > ranked[i-1].Rating {
			t.Errorf("rating order violated at index %d", i)
		}
	}
}

func TestRank_HighestRating_TieBrokenByDistance(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-far", 13.0700, 77.5900, 4.5),
		provider("provider-near", 12.9800, 77.5950, 4.5),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeHighestRating)

	if ranked[0].ProviderID != "provider-near" {
		t.Errorf("expected nearer provider to win the rating tie, got %s", ranked[0].ProviderID)
	}
}

func TestRank_Balanced_WeighsDistanceAndRating(t *testing.T) {
	t.Parallel()

	// A slightly farther but much better rated provider should beat a
	// marginally nearer one with a poor rating.
	candidates := []*domain.Provider{
		provider("provider-near-poor", 12.9750, 77.5946, 1.0),
		provider("provider-close-great", 12.9800, 77.5946, 5.0),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeBalanced)

	if ranked[0].ProviderID != "provider-close-great" {
		t.Errorf("expected rating to outweigh a marginal distance gap, got %s", ranked[0].ProviderID)
	}
}

func TestRank_Balanced_DistanceDominatesLargeGaps(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-far-great", 13.0700, 77.5900, 5.0),
		provider("provider-near-ok", 12.9750, 77.5946, 3.5),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeBalanced)

	if ranked[0].ProviderID != "provider-near-ok" {
		t.Errorf("expected a large distance gap to dominate, got %s", ranked[0].ProviderID)
	}
}

func TestRank_Balanced_SingleCandidateScoresOnRatingOnly(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-solo", 12.9800, 77.5946, 4.0),
	}

	ranked := Rank(12.9716, 77.5946, candidates, domain.SortModeBalanced)

	if len(ranked) != 1 {
		t.Fatalf("expected 1 ranked candidate, got %d", len(ranked))
	}
	// With no distance spread only the rating term contributes.
	want := balancedRatingWeight * (1 - 4.0/maxRating)
	if math.Abs(ranked[0].Score-want) > 1e-9 {
		t.Errorf("expected score %f, got %f", want, ranked[0].Score)
	}
}

func TestRank_Deterministic(t *testing.T) {
	t.Parallel()

	candidates := []*domain.Provider{
		provider("provider-a", 12.9800, 77.5950, 3.2),
		provider("provider-b", 13.0700, 77.5900, 4.9),
		provider("provider-c", 12.9750, 77.5946, 4.0),
	}

	for _, mode := range []domain.SortMode{domain.SortModeNearest, domain.SortModeHighestRating, domain.SortModeBalanced} {
		first := Rank(12.9716, 77.5946, candidates, mode)
		second := Rank(12.9716, 77.5946, candidates, mode)
		for i := range first {
			if first[i].ProviderID != second[i].ProviderID {
				t.Errorf("mode %s: ranking not deterministic at index %d", mode, i)
			}
		}
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	t.Parallel()

	ranked := Rank(12.9716, 77.5946, nil, domain.SortModeNearest)
	if len(ranked) != 0 {
		t.Errorf("expected empty ranking, got %d candidates", len(ranked))
	}
}

func TestValidateSortMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    domain.SortMode
		wantErr bool
	}{
		{input: "", want: domain.SortModeNearest},
		{input: "NEAREST", want: domain.SortModeNearest},
		{input: "HIGHEST_RATING", want: domain.SortModeHighestRating},
		{input: "BALANCED", want: domain.SortModeBalanced},
		{input: "nearest", wantErr: true},
		{input: "RANDOM", wantErr: true},
	}

	for _, tc := range testCases {
		got, err := ValidateSortMode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("input %q: expected error, got mode %s", tc.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("input %q: expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	t.Parallel()

	// Bangalore city center to the airport is roughly 32km as the crow flies.
	got := HaversineKm(12.9716, 77.5946, 13.1986, 77.7066)
	if got < 25 || got > 35 {
		t.Errorf("expected roughly 32km, got %f", got)
	}

	if d := HaversineKm(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}
