package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// RequestRepository defines the persistence operations for service requests.
//
// Transition methods are conditional writes: they match the expected current
// state in the store and return ErrStaleState when another actor resolved the
// transition first. This is the atomic primitive the dispatch engine relies
// on instead of a lock manager.
type RequestRepository interface {
	// Create persists a new request together with its first offer.
	Create(ctx context.Context, req *domain.ServiceRequest) error

	// GetByID retrieves a request with its full offers list.
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)

	// GetAll retrieves recent requests.
	GetAll(ctx context.Context) ([]*domain.ServiceRequest, error)

	// AcceptOffer transitions the pending offer held by providerID to
	// ACCEPTED and the request to ACCEPTED/locked in one transaction.
	// Exactly one concurrent caller succeeds; losers get ErrStaleState.
	AcceptOffer(ctx context.Context, requestID, providerID string, at time.Time) error

	// ResolveOffer transitions a PENDING offer to DECLINED or EXPIRED.
	ResolveOffer(ctx context.Context, requestID, providerID string, status domain.OfferStatus, at time.Time) error

	// PushOffer appends a new PENDING offer, replaces the remaining
	// candidate queue and resets the offer deadline, conditional on the
	// request still being REQUESTED and unlocked.
	PushOffer(ctx context.Context, requestID string, offer *domain.Offer, remaining []string, deadline time.Time) error

	// MarkExpired terminates a REQUESTED request whose queue is exhausted
	// or whose overall window has lapsed.
	MarkExpired(ctx context.Context, requestID, message string, at time.Time) error

	// Cancel terminates a request on the requester's behalf, conditional
	// on the current status matching one of the allowed source states.
	Cancel(ctx context.Context, requestID string, terminal domain.RequestStatus, reason string, from []domain.RequestStatus, at time.Time) error

	// Start transitions ACCEPTED to IN_PROGRESS for the assigned provider.
	Start(ctx context.Context, requestID, providerID string, at time.Time) error

	// Complete transitions ACCEPTED or IN_PROGRESS to COMPLETED for the
	// assigned provider.
	Complete(ctx context.Context, requestID, providerID string, at time.Time) error

	// ListOfferDeadlineElapsed returns IDs of REQUESTED requests whose
	// offer deadline has passed.
	ListOfferDeadlineElapsed(ctx context.Context, now time.Time) ([]string, error)

	// ListRequestedBefore returns IDs of requests still REQUESTED that
	// were created before the cutoff.
	ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// ListWithPendingOfferFor returns IDs of requests where the provider
	// currently holds the PENDING offer.
	ListWithPendingOfferFor(ctx context.Context, providerID string) ([]string, error)

	// GetActiveByProviderID returns the request the provider is currently
	// working (IN_PROGRESS), or nil if none.
	GetActiveByProviderID(ctx context.Context, providerID string) (*domain.ServiceRequest, error)
}
