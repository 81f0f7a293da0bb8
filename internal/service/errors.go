package service

import "errors"

// Validation errors. Rejected synchronously, never retried.
var (
	// ErrInvalidRequesterID is returned when requester ID is empty.
	ErrInvalidRequesterID = errors.New("invalid requester id")

	// ErrInvalidProviderID is returned when provider ID is empty.
	ErrInvalidProviderID = errors.New("invalid provider id")

	// ErrInvalidRequestID is returned when request ID is empty.
	ErrInvalidRequestID = errors.New("invalid request id")

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidService is returned when the service selector is empty.
	ErrInvalidService = errors.New("invalid service")

	// ErrInvalidSortMode is returned when the sort mode is unknown.
	ErrInvalidSortMode = errors.New("invalid sort mode")

	// ErrCancelReasonRequired is returned when cancelling an accepted
	// request without a reason.
	ErrCancelReasonRequired = errors.New("cancellation reason required after acceptance")
)

// Authorization errors. The caller is not the actor the operation is
// scoped to.
var (
	// ErrNotCurrentOffer is returned when a provider responds to an offer
	// they do not hold.
	ErrNotCurrentOffer = errors.New("provider does not hold the current offer")

	// ErrNotAssignedProvider is returned when a provider acts on a request
	// assigned to someone else.
	ErrNotAssignedProvider = errors.New("provider not assigned to this request")

	// ErrNotRequester is returned when a requester acts on another's request.
	ErrNotRequester = errors.New("not the requester of this request")
)

// State-conflict errors. The caller's intent was structurally valid but
// arrived too late; distinct from validation so clients can tell "too slow"
// from "mistake".
var (
	// ErrOfferAlreadyResolved is returned when accepting or declining an
	// offer that is no longer pending.
	ErrOfferAlreadyResolved = errors.New("offer already resolved")

	// ErrRequestNotAccepted is returned when starting or completing a
	// request that was never accepted.
	ErrRequestNotAccepted = errors.New("request not in an accepted state")

	// ErrRequestNotCancellable is returned when the request is in a state
	// that cannot be cancelled.
	ErrRequestNotCancellable = errors.New("request cannot be cancelled in current state")

	// ErrRequestAlreadyCompleted is returned when acting on a completed request.
	ErrRequestAlreadyCompleted = errors.New("request already completed")

	// ErrProviderMidJob is returned when a provider tries to go live while
	// working an in-progress request.
	ErrProviderMidJob = errors.New("provider has a request in progress")
)

// Exhaustion: no candidate can be dispatched to.
var (
	// ErrNoProvidersAvailable is returned when no eligible provider exists
	// at creation time.
	ErrNoProvidersAvailable = errors.New("no live providers for this service")
)
