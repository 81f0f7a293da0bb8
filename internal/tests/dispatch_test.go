package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/service"
)

// fixture bundles the mocked stores and the services under test.
type fixture struct {
	requestRepo   *MockRequestRepository
	providerRepo  *MockProviderRepository
	locationStore *MockLocationStore
	lockStore     *MockLockStore
	sink          *CaptureSink

	dispatch  *service.DispatchService
	providers *service.ProviderService
}

func newFixture() *fixture {
	f := &fixture{
		requestRepo:   NewMockRequestRepository(),
		providerRepo:  NewMockProviderRepository(),
		locationStore: NewMockLocationStore(),
		lockStore:     NewMockLockStore(),
		sink:          NewCaptureSink(),
	}
	notifier := service.NewNotificationService(f.sink)
	f.dispatch = service.NewDispatchService(
		f.requestRepo, f.providerRepo, f.locationStore, f.lockStore, nil, notifier,
		service.DispatchOptions{
			OfferResponseWindow: 30 * time.Second,
			SearchRadiusKm:      10,
		},
	)
	f.providers = service.NewProviderService(f.providerRepo, f.requestRepo, f.locationStore, nil, f.dispatch)
	return f
}

// addProvider seeds an available provider in both the directory and the geo
// index.
func (f *fixture) addProvider(id string, lat, lng, rating float64, services ...string) {
	if len(services) == 0 {
		services = []string{"plumbing"}
	}
	f.providerRepo.AddProvider(&domain.Provider{
		ID:       id,
		Name:     "Provider " + id,
		Services: services,
		Status:   domain.ProviderStatusAvailable,
		Rating:   rating,
		Lat:      lat,
		Lng:      lng,
	})
	_ = f.locationStore.UpdateLocation(context.Background(), id, lat, lng)
}

func (f *fixture) createRequest(t *testing.T, mode domain.SortMode) *domain.ServiceRequest {
	t.Helper()
	result, err := f.dispatch.CreateRequest(context.Background(), service.CreateRequestRequest{
		RequesterID: "requester-1",
		Service:     "plumbing",
		Lat:         12.9716,
		Lng:         77.5946,
		SortMode:    mode,
	})
	if err != nil {
		t.Fatalf("unexpected error creating request: %v", err)
	}
	return result.Request
}

// backdateOfferDeadline makes the current offer's response window look
// elapsed, the way the sweep would observe it.
func (f *fixture) backdateOfferDeadline(requestID string) {
	stored := f.requestRepo.GetRequest(requestID)
	stored.OfferDeadline = time.Now().Add(-time.Second)
	f.requestRepo.AddRequest(stored)
}

func TestCreateRequest_DispatchesFirstOfferAndQueuesRest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-near", 12.9800, 77.5950, 3.0)
	f.addProvider("provider-far", 13.0700, 77.5900, 5.0)

	req := f.createRequest(t, domain.SortModeNearest)

	if req.Status != domain.RequestStatusRequested {
		t.Errorf("expected REQUESTED, got %s", req.Status)
	}
	pending := req.PendingOffer()
	if pending == nil {
		t.Fatal("expected a pending offer")
	}
	if pending.ProviderID != "provider-near" {
		t.Errorf("expected first offer for provider-near, got %s", pending.ProviderID)
	}
	if len(req.PendingProviders) != 1 || req.PendingProviders[0] != "provider-far" {
		t.Errorf("expected queue [provider-far], got %v", req.PendingProviders)
	}
	if req.OfferDeadline.IsZero() {
		t.Error("expected an offer deadline to be set")
	}
	if f.sink.Count(service.NotificationOfferDispatched) != 1 {
		t.Errorf("expected 1 offer-dispatched notification, got %d", f.sink.Count(service.NotificationOfferDispatched))
	}
}

func TestCreateRequest_NoEligibleProviders_NotCreated(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.dispatch.CreateRequest(context.Background(), service.CreateRequestRequest{
		RequesterID: "requester-1",
		Service:     "plumbing",
		Lat:         12.9716,
		Lng:         77.5946,
	})
	if !errors.Is(err, service.ErrNoProvidersAvailable) {
		t.Fatalf("expected ErrNoProvidersAvailable, got %v", err)
	}
	if f.requestRepo.CreateCallCount != 0 {
		t.Error("expected no request to be persisted")
	}
}

func TestCreateRequest_FiltersOfflineAndBusyProviders(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-online", 12.9800, 77.5950, 4.0)
	f.addProvider("provider-offline", 12.9750, 77.5946, 5.0)
	f.addProvider("provider-busy", 12.9740, 77.5946, 5.0)
	f.providerRepo.GetProvider("provider-offline").Status = domain.ProviderStatusOffline
	f.providerRepo.GetProvider("provider-busy").Status = domain.ProviderStatusBusy

	req := f.createRequest(t, domain.SortModeNearest)

	pending := req.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-online" {
		t.Fatalf("expected offer for the only live provider, got %+v", pending)
	}
	if len(req.PendingProviders) != 0 {
		t.Errorf("expected empty queue, got %v", req.PendingProviders)
	}
}

func TestCreateRequest_FiltersServiceMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-electric", 12.9750, 77.5946, 5.0, "electrical")
	f.addProvider("provider-plumber", 12.9900, 77.5950, 3.0, "plumbing", "electrical")

	req := f.createRequest(t, domain.SortModeNearest)

	pending := req.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-plumber" {
		t.Fatalf("expected offer for the matching provider, got %+v", pending)
	}
}

func TestCreateRequest_HighestRatingModeChangesOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-near-low", 12.9800, 77.5950, 3.2)
	f.addProvider("provider-far-high", 13.0700, 77.5900, 4.9)

	req := f.createRequest(t, domain.SortModeHighestRating)

	pending := req.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-far-high" {
		t.Fatalf("expected highest-rated provider first, got %+v", pending)
	}
}

func TestCreateRequest_IncludeRankingReturnsPreview(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 3.2)
	f.addProvider("provider-b", 13.0700, 77.5900, 4.9)

	result, err := f.dispatch.CreateRequest(context.Background(), service.CreateRequestRequest{
		RequesterID:    "requester-1",
		Service:        "plumbing",
		Lat:            12.9716,
		Lng:            77.5946,
		IncludeRanking: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Ranking) != 2 {
		t.Fatalf("expected 2 ranked candidates, got %d", len(result.Ranking))
	}
	if result.Ranking[0].ProviderID != result.Request.PendingOffer().ProviderID {
		t.Error("expected first ranked candidate to hold the offer")
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.98, 77.59, 4.0)

	testCases := []struct {
		name    string
		req     service.CreateRequestRequest
		wantErr error
	}{
		{
			name:    "missing requester",
			req:     service.CreateRequestRequest{Service: "plumbing", Lat: 12.97, Lng: 77.59},
			wantErr: service.ErrInvalidRequesterID,
		},
		{
			name:    "missing service",
			req:     service.CreateRequestRequest{RequesterID: "r", Lat: 12.97, Lng: 77.59},
			wantErr: service.ErrInvalidService,
		},
		{
			name:    "latitude out of range",
			req:     service.CreateRequestRequest{RequesterID: "r", Service: "plumbing", Lat: 91, Lng: 77.59},
			wantErr: service.ErrInvalidLocation,
		},
		{
			name:    "longitude out of range",
			req:     service.CreateRequestRequest{RequesterID: "r", Service: "plumbing", Lat: 12.97, Lng: 181},
			wantErr: service.ErrInvalidLocation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.dispatch.CreateRequest(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateRequest_UsesLiveGeoCoordinates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	// Directory says provider-a is far away; the geo index has a fresh
	// position right next to the requester. The live position must win.
	f.addProvider("provider-a", 13.2000, 77.7000, 3.0)
	f.addProvider("provider-b", 12.9800, 77.5950, 3.0)
	f.locationStore.SetLocations([]redis.ProviderLocation{
		{ProviderID: "provider-a", Lat: 12.9720, Lng: 77.5946},
		{ProviderID: "provider-b", Lat: 12.9800, Lng: 77.5950},
	})

	req := f.createRequest(t, domain.SortModeNearest)

	pending := req.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-a" {
		t.Fatalf("expected the provider with the fresher, closer position to rank first, got %+v", pending)
	}
}
