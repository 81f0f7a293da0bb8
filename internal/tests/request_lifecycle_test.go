package tests

import (
	"context"
	"errors"
	"testing"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

func TestStart_OnlyAssignedProviderMayStart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	f.addProvider("provider-b", 13.0000, 77.6000, 4.5)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	_, err := f.dispatch.Start(context.Background(), req.ID, "provider-b")
	if !errors.Is(err, service.ErrNotAssignedProvider) {
		t.Fatalf("expected ErrNotAssignedProvider, got %v", err)
	}

	started, err := f.dispatch.Start(context.Background(), req.ID, "provider-a")
	if err != nil {
		t.Fatalf("assigned provider start failed: %v", err)
	}
	if started.Status != domain.RequestStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", started.Status)
	}
}

func TestStart_NeverAcceptedRequest_Conflict(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	_, err := f.dispatch.Start(context.Background(), req.ID, "provider-a")
	if !errors.Is(err, service.ErrRequestNotAccepted) {
		t.Fatalf("expected ErrRequestNotAccepted, got %v", err)
	}
}

func TestComplete_RelocatesProviderToRequestSite(t *testing.T) {
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

	completed, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != domain.RequestStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", completed.Status)
	}

	// The provider now stands at the service site, both in the directory
	// and in the geo index, and is free for new work.
	provider := f.providerRepo.GetProvider("provider-a")
	if provider.Lat != req.Lat || provider.Lng != req.Lng {
		t.Errorf("expected provider relocated to (%f, %f), got (%f, %f)", req.Lat, req.Lng, provider.Lat, provider.Lng)
	}
	if provider.LastServiceLat != req.Lat || provider.LastServiceLng != req.Lng {
		t.Error("expected last service location recorded")
	}
	if provider.LastCompletedAt.IsZero() {
		t.Error("expected completion timestamp recorded")
	}
	if provider.Status != domain.ProviderStatusAvailable {
		t.Errorf("expected provider AVAILABLE after completion, got %s", provider.Status)
	}
	if loc, ok := f.locationStore.GetLocation("provider-a"); !ok || loc.Lat != req.Lat || loc.Lng != req.Lng {
		t.Error("expected geo index updated to the service site")
	}

	if f.sink.Count(service.NotificationRequestCompleted) != 1 {
		t.Error("expected a request-completed notification")
	}
}

func TestComplete_DirectlyFromAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	completed, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != domain.RequestStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", completed.Status)
	}
}

func TestComplete_NeverAccepted_ConflictLeavesLocationUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	_, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a")
	if !errors.Is(err, service.ErrRequestNotAccepted) {
		t.Fatalf("expected ErrRequestNotAccepted, got %v", err)
	}

	// The relocation hook must not fire on a failed completion.
	if f.providerRepo.RecordCompletionCallCount != 0 {
		t.Error("relocation must not run for a rejected completion")
	}
	provider := f.providerRepo.GetProvider("provider-a")
	if provider.Lat != 12.9800 || provider.Lng != 77.5950 {
		t.Errorf("expected provider location untouched, got (%f, %f)", provider.Lat, provider.Lng)
	}
}

func TestComplete_Twice_Conflict(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}

	_, err := f.dispatch.Complete(context.Background(), req.ID, "provider-a")
	if !errors.Is(err, service.ErrRequestAlreadyCompleted) {
		t.Fatalf("expected ErrRequestAlreadyCompleted, got %v", err)
	}
}

func TestCancel_BeforeAcceptance_NoReasonNeeded(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	cancelled, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "requester-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.RequestStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
}

func TestCancel_AfterAcceptance_RequiresReasonAndFreesProvider(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	_, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "requester-1",
	})
	if !errors.Is(err, service.ErrCancelReasonRequired) {
		t.Fatalf("expected ErrCancelReasonRequired, got %v", err)
	}

	cancelled, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "requester-1",
		Reason:      "found someone else",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.RequestStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "found someone else" {
		t.Errorf("expected reason recorded, got %q", cancelled.CancelReason)
	}
	if got := f.providerRepo.GetProvider("provider-a").Status; got != domain.ProviderStatusAvailable {
		t.Errorf("expected assigned provider freed, got %s", got)
	}
	if f.sink.Count(service.NotificationRequestCancelled) != 1 {
		t.Error("expected the assigned provider to be notified")
	}
}

func TestCancel_DoesNotReviveOfflineProvider(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// The provider toggles themselves offline while the job is accepted.
	f.providerRepo.GetProvider("provider-a").Status = domain.ProviderStatusOffline

	_, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "requester-1",
		Reason:      "plans changed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.providerRepo.GetProvider("provider-a").Status; got != domain.ProviderStatusOffline {
		t.Errorf("cancel must not flip an offline provider back online, got %s", got)
	}
}

func TestCancel_WrongRequester_Forbidden(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	_, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "someone-else",
	})
	if !errors.Is(err, service.ErrNotRequester) {
		t.Fatalf("expected ErrNotRequester, got %v", err)
	}
}

func TestCancel_CompletedRequest_Conflict(t *testing.T) {
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

	_, err := f.dispatch.Cancel(context.Background(), service.CancelRequest{
		RequestID:   req.ID,
		RequesterID: "requester-1",
		Reason:      "too late",
	})
	if !errors.Is(err, service.ErrRequestAlreadyCompleted) {
		t.Fatalf("expected ErrRequestAlreadyCompleted, got %v", err)
	}
}

func TestReject_OnlyFromRequestedState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	rejected, err := f.dispatch.Reject(context.Background(), req.ID, "requester-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != domain.RequestStatusRejected {
		t.Errorf("expected REJECTED, got %s", rejected.Status)
	}
}

func TestReject_AcceptedRequest_Conflict(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addProvider("provider-a", 12.9800, 77.5950, 4.0)
	req := f.createRequest(t, domain.SortModeNearest)

	if _, err := f.dispatch.AcceptOffer(context.Background(), req.ID, "provider-a"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	_, err := f.dispatch.Reject(context.Background(), req.ID, "requester-1")
	if !errors.Is(err, service.ErrRequestNotCancellable) {
		t.Fatalf("expected ErrRequestNotCancellable, got %v", err)
	}
}
