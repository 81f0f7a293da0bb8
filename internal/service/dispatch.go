package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/observability"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

const (
	defaultSearchRadiusKm = 10.0
	advanceLockTTL        = 10 * time.Second

	queueExhaustedMessage = "No provider could be assigned: all candidates declined or timed out."
	staleWindowMessage    = "Request expired: no provider accepted within the allowed window."
)

// DispatchOptions carries the tunable dispatch windows. Values come from
// configuration; business logic never hardcodes them.
type DispatchOptions struct {
	OfferResponseWindow time.Duration
	SearchRadiusKm      float64
}

// DispatchService owns the request lifecycle and the sequential offer queue:
// one provider is asked at a time, in ranked order, until one accepts, the
// queue is exhausted, or the overall window lapses.
type DispatchService struct {
	requestRepo   repository.RequestRepository
	providerRepo  repository.ProviderRepository
	locationStore redis.LocationStoreInterface
	lockStore     redis.LockStoreInterface
	cacheStore    *redis.CacheStore
	notifier      *NotificationService
	opts          DispatchOptions
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	requestRepo repository.RequestRepository,
	providerRepo repository.ProviderRepository,
	locationStore redis.LocationStoreInterface,
	lockStore redis.LockStoreInterface,
	cacheStore *redis.CacheStore,
	notifier *NotificationService,
	opts DispatchOptions,
) *DispatchService {
	if opts.SearchRadiusKm <= 0 {
		opts.SearchRadiusKm = defaultSearchRadiusKm
	}
	return &DispatchService{
		requestRepo:   requestRepo,
		providerRepo:  providerRepo,
		locationStore: locationStore,
		lockStore:     lockStore,
		cacheStore:    cacheStore,
		notifier:      notifier,
		opts:          opts,
	}
}

// CreateRequestRequest contains the parameters for creating a request.
type CreateRequestRequest struct {
	RequesterID    string
	Service        string
	Lat            float64
	Lng            float64
	SortMode       domain.SortMode
	IncludeRanking bool
}

// CreateRequestResponse contains the created request and, when asked for,
// the full ranked candidate preview for diagnostics.
type CreateRequestResponse struct {
	Request *domain.ServiceRequest
	Ranking []RankedCandidate
}

// CreateRequest ranks all eligible candidates once, dispatches the first
// offer and queues the rest. If no eligible candidate exists, the request
// is not created at all.
func (s *DispatchService) CreateRequest(ctx context.Context, req CreateRequestRequest) (*CreateRequestResponse, error) {
	if req.RequesterID == "" {
		return nil, ErrInvalidRequesterID
	}
	if req.Service == "" {
		return nil, ErrInvalidService
	}
	if !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return nil, ErrInvalidLocation
	}
	if req.SortMode == "" {
		req.SortMode = domain.SortModeNearest
	}

	candidates, err := s.eligibleCandidates(ctx, req.Lat, req.Lng, req.Service)
	if err != nil {
		return nil, err
	}

	ranking := Rank(req.Lat, req.Lng, candidates, req.SortMode)
	if len(ranking) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	now := time.Now()
	deadline := now.Add(s.opts.OfferResponseWindow)

	request := &domain.ServiceRequest{
		ID:          uuid.New().String(),
		RequesterID: req.RequesterID,
		Service:     req.Service,
		Lat:         req.Lat,
		Lng:         req.Lng,
		SortMode:    req.SortMode,
		Status:      domain.RequestStatusRequested,
		Offers: []domain.Offer{{
			ID:         uuid.New().String(),
			ProviderID: ranking[0].ProviderID,
			Status:     domain.OfferStatusPending,
			Position:   0,
			OfferedAt:  now,
		}},
		OfferDeadline: deadline,
		CreatedAt:     now,
	}
	request.Offers[0].RequestID = request.ID
	for _, c := range ranking[1:] {
		request.PendingProviders = append(request.PendingProviders, c.ProviderID)
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, err
	}

	observability.RequestsCreatedTotal.Inc()
	observability.OffersDispatchedTotal.Inc()
	s.notifier.NotifyOfferDispatched(ctx, request, ranking[0].ProviderID, deadline)

	resp := &CreateRequestResponse{Request: request}
	if req.IncludeRanking {
		resp.Ranking = ranking
	}
	return resp, nil
}

// eligibleCandidates discovers nearby providers via the geo index, hydrates
// them from cache or the directory, and filters for availability and
// service match. Live geo coordinates win over the stored canonical ones.
func (s *DispatchService) eligibleCandidates(ctx context.Context, lat, lng float64, serviceName string) ([]*domain.Provider, error) {
	nearby, err := s.locationStore.FindNearbyProviders(ctx, lat, lng, s.opts.SearchRadiusKm)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nearby))
	coords := make(map[string]redis.ProviderLocation, len(nearby))
	for i, loc := range nearby {
		ids[i] = loc.ProviderID
		coords[loc.ProviderID] = loc
	}

	cached := make(map[string]*redis.CachedProvider)
	missing := ids
	if s.cacheStore != nil {
		cached, missing, _ = s.cacheStore.GetProvidersBatch(ctx, ids)
	}

	byID := make(map[string]*domain.Provider, len(ids))
	for id, c := range cached {
		byID[id] = &domain.Provider{
			ID:          c.ID,
			Name:        c.Name,
			Services:    c.Services,
			Status:      domain.ProviderStatus(c.Status),
			Rating:      c.Rating,
			RatingCount: c.RatingCount,
		}
	}

	if len(missing) > 0 {
		fetched, err := s.providerRepo.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fetched {
			byID[p.ID] = p
			s.cacheProviderAsync(p)
		}
	}

	var eligible []*domain.Provider
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		if p.Status != domain.ProviderStatusAvailable || !p.Offers(serviceName) {
			continue
		}
		loc := coords[id]
		p.Lat = loc.Lat
		p.Lng = loc.Lng
		eligible = append(eligible, p)
	}
	return eligible, nil
}

// cacheProviderAsync caches a provider profile (fire and forget).
func (s *DispatchService) cacheProviderAsync(p *domain.Provider) {
	if s.cacheStore == nil {
		return
	}
	go func() {
		_ = s.cacheStore.SetProvider(context.Background(), &redis.CachedProvider{
			ID:          p.ID,
			Name:        p.Name,
			Services:    p.Services,
			Status:      string(p.Status),
			Rating:      p.Rating,
			RatingCount: p.RatingCount,
		})
	}()
}

// GetRequest retrieves a request with its offers.
func (s *DispatchService) GetRequest(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	return s.requestRepo.GetByID(ctx, requestID)
}

// GetAll retrieves recent requests.
func (s *DispatchService) GetAll(ctx context.Context) ([]*domain.ServiceRequest, error) {
	return s.requestRepo.GetAll(ctx)
}

// AcceptOffer accepts the current pending offer on behalf of providerID.
// First acceptance wins: the underlying write is conditional, so a losing
// concurrent accept observes a conflict, never partial state.
func (s *DispatchService) AcceptOffer(ctx context.Context, requestID, providerID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	if providerID == "" {
		return nil, ErrInvalidProviderID
	}

	if err := s.requestRepo.AcceptOffer(ctx, requestID, providerID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.classifyOfferFailure(ctx, requestID, providerID)
		}
		return nil, err
	}

	// The provider is now committed to this job.
	if err := s.providerRepo.UpdateStatus(ctx, providerID, domain.ProviderStatusBusy); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	s.invalidateProviderCache(ctx, providerID)

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	observability.OffersResolvedTotal.WithLabelValues("accepted").Inc()
	s.notifier.NotifyRequestAccepted(ctx, request, providerID)

	return request, nil
}

// DeclineOffer declines the current pending offer and advances the queue
// synchronously.
func (s *DispatchService) DeclineOffer(ctx context.Context, requestID, providerID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	if providerID == "" {
		return nil, ErrInvalidProviderID
	}

	if err := s.requestRepo.ResolveOffer(ctx, requestID, providerID, domain.OfferStatusDeclined, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.classifyOfferFailure(ctx, requestID, providerID)
		}
		return nil, err
	}

	observability.OffersResolvedTotal.WithLabelValues("declined").Inc()

	return s.Advance(ctx, requestID)
}

// classifyOfferFailure distinguishes "wrong provider" (authorization) from
// "arrived too late" (conflict) after a conditional offer write missed.
func (s *DispatchService) classifyOfferFailure(ctx context.Context, requestID, providerID string) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if pending := request.PendingOffer(); pending != nil && pending.ProviderID != providerID {
		return ErrNotCurrentOffer
	}
	return ErrOfferAlreadyResolved
}

// Advance is the single idempotent advancement routine shared by the
// decline path, the availability guard and the background sweep. It expires
// the current pending offer if one remains, pops candidates until one is
// still eligible, and either dispatches the next offer or expires the
// request with an explanation. Invoking it on an already-terminal or
// already-advanced request is a no-op: a pending offer whose response window
// has not elapsed and whose holder is still eligible is left undisturbed, so
// a raced duplicate call (sweep vs decline) cannot burn a candidate's turn.
func (s *DispatchService) Advance(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	return s.advance(ctx, requestID, false)
}

// ForceAdvance is the administrative entry point: it advances even when the
// current offer's window is still open.
func (s *DispatchService) ForceAdvance(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	return s.advance(ctx, requestID, true)
}

func (s *DispatchService) advance(ctx context.Context, requestID string, force bool) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}

	// Best-effort lock so the sweep and a synchronous decline do not both
	// walk the queue. Conditional writes keep us correct without it.
	if s.lockStore != nil {
		acquired, err := s.lockStore.AcquireAdvanceLock(ctx, requestID, advanceLockTTL)
		if err == nil && !acquired {
			return s.requestRepo.GetByID(ctx, requestID)
		}
		if err == nil {
			defer func() { _ = s.lockStore.ReleaseAdvanceLock(ctx, requestID) }()
		}
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != domain.RequestStatusRequested {
		return request, nil
	}

	now := time.Now()

	if pending := request.PendingOffer(); pending != nil {
		// The offer is still live and its holder can still respond: the
		// condition that triggered this call no longer holds, so another
		// actor already advanced. Leave the fresh offer alone.
		if !force && now.Before(request.OfferDeadline) {
			holder, err := s.providerRepo.GetByID(ctx, pending.ProviderID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			if err == nil && holder.Status == domain.ProviderStatusAvailable && holder.Offers(request.Service) {
				return request, nil
			}
		}

		err := s.requestRepo.ResolveOffer(ctx, requestID, pending.ProviderID, domain.OfferStatusExpired, now)
		if err != nil && !errors.Is(err, repository.ErrStaleState) {
			return nil, err
		}
		if err == nil {
			observability.OffersResolvedTotal.WithLabelValues("expired").Inc()
			s.notifier.NotifyOfferExpired(ctx, requestID, pending.ProviderID)
		}
	}

	// Pop candidates in ranked order, skipping any that went offline or
	// dropped the service since ranking.
	remaining := request.PendingProviders
	var next *domain.Provider
	for len(remaining) > 0 {
		candidateID := remaining[0]
		remaining = remaining[1:]

		provider, err := s.providerRepo.GetByID(ctx, candidateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if provider.Status != domain.ProviderStatusAvailable || !provider.Offers(request.Service) {
			continue
		}
		next = provider
		break
	}

	if next == nil {
		err := s.requestRepo.MarkExpired(ctx, requestID, queueExhaustedMessage, now)
		if err != nil && !errors.Is(err, repository.ErrStaleState) {
			return nil, err
		}
		if err == nil {
			observability.RequestsExpiredTotal.Inc()
			s.notifier.NotifyRequestExpired(ctx, request, queueExhaustedMessage)
		}
		return s.requestRepo.GetByID(ctx, requestID)
	}

	deadline := now.Add(s.opts.OfferResponseWindow)
	offer := &domain.Offer{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		ProviderID: next.ID,
		Status:     domain.OfferStatusPending,
		Position:   len(request.Offers),
		OfferedAt:  now,
	}

	err = s.requestRepo.PushOffer(ctx, requestID, offer, remaining, deadline)
	if err != nil && !errors.Is(err, repository.ErrStaleState) {
		return nil, err
	}
	if err == nil {
		observability.AdvancementsTotal.Inc()
		observability.OffersDispatchedTotal.Inc()
		s.notifier.NotifyOfferDispatched(ctx, request, next.ID, deadline)
	}

	return s.requestRepo.GetByID(ctx, requestID)
}

// ExpireStale is the coarse backstop: a request that sat REQUESTED past the
// maximum total window is expired outright, regardless of offer cycling.
func (s *DispatchService) ExpireStale(ctx context.Context, requestID string) error {
	if requestID == "" {
		return ErrInvalidRequestID
	}

	err := s.requestRepo.MarkExpired(ctx, requestID, staleWindowMessage, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil
		}
		return err
	}

	observability.RequestsExpiredTotal.Inc()
	if request, err := s.requestRepo.GetByID(ctx, requestID); err == nil {
		s.notifier.NotifyRequestExpired(ctx, request, staleWindowMessage)
	}
	return nil
}

// CancelRequest contains the parameters for a requester-initiated cancel.
type CancelRequest struct {
	RequestID   string
	RequesterID string
	Reason      string
}

// Cancel terminates a request on the requester's behalf. Before acceptance
// no reason is needed; after acceptance a reason is required and the
// assigned provider is notified. Cancelling a completed request is a
// conflict.
func (s *DispatchService) Cancel(ctx context.Context, req CancelRequest) (*domain.ServiceRequest, error) {
	if req.RequestID == "" {
		return nil, ErrInvalidRequestID
	}
	if req.RequesterID == "" {
		return nil, ErrInvalidRequesterID
	}

	request, err := s.requestRepo.GetByID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != req.RequesterID {
		return nil, ErrNotRequester
	}

	switch request.Status {
	case domain.RequestStatusCompleted:
		return nil, ErrRequestAlreadyCompleted
	case domain.RequestStatusCancelled, domain.RequestStatusRejected, domain.RequestStatusExpired:
		return nil, ErrRequestNotCancellable
	}

	accepted := request.Status != domain.RequestStatusRequested
	if accepted && req.Reason == "" {
		return nil, ErrCancelReasonRequired
	}

	terminal := domain.RequestStatusCancelled
	from := []domain.RequestStatus{
		domain.RequestStatusRequested,
		domain.RequestStatusAccepted,
		domain.RequestStatusInProgress,
	}
	if err := s.requestRepo.Cancel(ctx, req.RequestID, terminal, req.Reason, from, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrRequestNotCancellable
		}
		return nil, err
	}

	if accepted && request.AssignedProviderID != "" {
		// Free the provider for new work, but only from BUSY: a provider
		// who toggled themselves offline in the meantime stays offline.
		provider, err := s.providerRepo.GetByID(ctx, request.AssignedProviderID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if err == nil && provider.Status == domain.ProviderStatusBusy {
			if err := s.providerRepo.UpdateStatus(ctx, request.AssignedProviderID, domain.ProviderStatusAvailable); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
		s.invalidateProviderCache(ctx, request.AssignedProviderID)
		s.notifier.NotifyRequestCancelled(ctx, request, req.Reason)
	}

	return s.requestRepo.GetByID(ctx, req.RequestID)
}

// Reject terminates a never-accepted request as REJECTED. No reason is
// required since no provider is committed yet.
func (s *DispatchService) Reject(ctx context.Context, requestID, requesterID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	if requesterID == "" {
		return nil, ErrInvalidRequesterID
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != requesterID {
		return nil, ErrNotRequester
	}
	if request.Status == domain.RequestStatusCompleted {
		return nil, ErrRequestAlreadyCompleted
	}

	from := []domain.RequestStatus{domain.RequestStatusRequested}
	if err := s.requestRepo.Cancel(ctx, requestID, domain.RequestStatusRejected, "", from, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, ErrRequestNotCancellable
		}
		return nil, err
	}

	return s.requestRepo.GetByID(ctx, requestID)
}

// Start transitions an accepted request to IN_PROGRESS. Only the assigned
// provider may start.
func (s *DispatchService) Start(ctx context.Context, requestID, providerID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	if providerID == "" {
		return nil, ErrInvalidProviderID
	}

	if err := s.requestRepo.Start(ctx, requestID, providerID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.classifyAssignmentFailure(ctx, requestID, providerID)
		}
		return nil, err
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyRequestStarted(ctx, request)
	return request, nil
}

// Complete transitions an accepted or in-progress request to COMPLETED and
// fires the relocation hook: the provider's canonical location and last
// service location both move to the request's coordinates. A completion
// attempt on a never-accepted request is a conflict and must not touch the
// provider's location.
func (s *DispatchService) Complete(ctx context.Context, requestID, providerID string) (*domain.ServiceRequest, error) {
	if requestID == "" {
		return nil, ErrInvalidRequestID
	}
	if providerID == "" {
		return nil, ErrInvalidProviderID
	}

	now := time.Now()
	if err := s.requestRepo.Complete(ctx, requestID, providerID, now); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.classifyAssignmentFailure(ctx, requestID, providerID)
		}
		return nil, err
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Relocation hook: only reachable from a genuine completion.
	if err := s.providerRepo.RecordCompletion(ctx, providerID, request.Lat, request.Lng, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	_ = s.locationStore.UpdateLocation(ctx, providerID, request.Lat, request.Lng)
	s.invalidateProviderCache(ctx, providerID)

	observability.RequestsCompletedTotal.Inc()
	s.notifier.NotifyRequestCompleted(ctx, request)

	return request, nil
}

// classifyAssignmentFailure distinguishes "not your request" from "wrong
// state" after a conditional assigned-provider write missed.
func (s *DispatchService) classifyAssignmentFailure(ctx context.Context, requestID, providerID string) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.AssignedProviderID != "" && request.AssignedProviderID != providerID {
		return ErrNotAssignedProvider
	}
	if request.Status == domain.RequestStatusCompleted {
		return ErrRequestAlreadyCompleted
	}
	return ErrRequestNotAccepted
}

func (s *DispatchService) invalidateProviderCache(ctx context.Context, providerID string) {
	if s.cacheStore == nil {
		return
	}
	_ = s.cacheStore.InvalidateProvider(ctx, providerID)
}
