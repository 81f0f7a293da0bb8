package tests

import (
	"context"
	"errors"
	"testing"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

func TestRegister_ProviderStartsOffline(t *testing.T) {
	t.Parallel()

	f := newFixture()

	provider, err := f.providers.Register(context.Background(), service.RegisterProviderRequest{
		Name:     "New Provider",
		Phone:    "1234567890",
		Services: []string{"plumbing"},
		Lat:      12.9716,
		Lng:      77.5946,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.Status != domain.ProviderStatusOffline {
		t.Errorf("expected new provider OFFLINE, got %s", provider.Status)
	}
	if provider.Rating != 5.0 {
		t.Errorf("expected starting rating 5.0, got %f", provider.Rating)
	}
}

func TestRegister_RequiresAtLeastOneService(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.providers.Register(context.Background(), service.RegisterProviderRequest{
		Name: "No Services",
		Lat:  12.9716,
		Lng:  77.5946,
	})
	if !errors.Is(err, service.ErrInvalidService) {
		t.Fatalf("expected ErrInvalidService, got %v", err)
	}
}

func TestUpdateLocation_DoesNotChangeAvailability(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.providerRepo.AddProvider(&domain.Provider{
		ID:       "provider-1",
		Services: []string{"plumbing"},
		Status:   domain.ProviderStatusOffline,
	})

	err := f.providers.UpdateLocation(context.Background(), service.UpdateLocationRequest{
		ProviderID: "provider-1",
		Lat:        12.9716,
		Lng:        77.5946,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.locationStore.HasLocation("provider-1") {
		t.Error("expected location stored in the geo index")
	}
	if got := f.providerRepo.GetProvider("provider-1").Status; got != domain.ProviderStatusOffline {
		t.Errorf("location update must not change availability, got %s", got)
	}
}

func TestSetAvailable_RefusedMidJob(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, err := f.dispatch.Start(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	err := f.providers.SetAvailable(context.Background(), "provider-a")
	if !errors.Is(err, service.ErrProviderMidJob) {
		t.Fatalf("expected ErrProviderMidJob, got %v", err)
	}
}

func TestSetAvailable_AllowedAfterCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if err := f.providers.SetAvailable(context.Background(), "provider-a"); err != nil {
		t.Fatalf("expected go-live to succeed after completion, got %v", err)
	}
	if got := f.providerRepo.GetProvider("provider-a").Status; got != domain.ProviderStatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", got)
	}
}

func TestSetOffline_ExpiresPendingOfferAndAdvances(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	f.addProvider("provider-b", 13.0000, 77.6000, 4.5)
	req := f.createRequest(t, domain.SortModeNearest)

	// The offer holder drops off before responding. The requester must not
	// be left waiting out the full response window.
	if err := f.providers.SetOffline(context.Background(), "provider-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.requestRepo.GetRequest(req.ID)
	pending := stored.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-b" {
		t.Fatalf("expected immediate advance to provider-b, got %+v", pending)
	}
	for _, o := range stored.Offers {
		if o.ProviderID == "provider-a" && o.Status != domain.OfferStatusExpired {
			t.Errorf("expected provider-a offer EXPIRED, got %s", o.Status)
		}
	}

	if got := f.providerRepo.GetProvider("provider-a").Status; got != domain.ProviderStatusOffline {
		t.Errorf("expected provider OFFLINE, got %s", got)
	}
	if f.locationStore.HasLocation("provider-a") {
		t.Error("expected provider removed from the geo index")
	}
}

func TestSetOffline_LastCandidate_ExpiresRequest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if err := f.providers.SetOffline(context.Background(), "provider-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.requestRepo.GetRequest(req.ID)
	if stored.Status != domain.RequestStatusExpired {
		t.Errorf("expected EXPIRED when the sole candidate goes offline, got %s", stored.Status)
	}
}

func TestSetOffline_NoRetroactiveRequeueOnReturn(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	f.addProvider("provider-b", 13.0000, 77.6000, 4.5)
	req := f.createRequest(t, domain.SortModeNearest)

	if err := f.providers.SetOffline(context.Background(), "provider-a"); err != nil {
		t.Fatalf("set offline failed: %v", err)
	}
	// Coming back does not reinsert provider-a into queues it was removed
	// from.
	if err := f.providers.SetAvailable(context.Background(), "provider-a"); err != nil {
		t.Fatalf("set available failed: %v", err)
	}

	stored := f.requestRepo.GetRequest(req.ID)
	pending := stored.PendingOffer()
	if pending == nil || pending.ProviderID != "provider-b" {
		t.Fatalf("expected provider-b to keep the offer, got %+v", pending)
	}
	for _, id := range stored.PendingProviders {
		if id == "provider-a" {
			t.Error("returning provider must not be requeued")
		}
	}
}
