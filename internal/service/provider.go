package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// Advancer is the slice of the dispatch service the availability guard
// needs: it advances the offer queue of a request whose pending provider
// can no longer respond.
type Advancer interface {
	Advance(ctx context.Context, requestID string) (*domain.ServiceRequest, error)
}

// Ensure DispatchService implements Advancer.
var _ Advancer = (*DispatchService)(nil)

// ProviderService handles the provider directory and the availability guard.
type ProviderService struct {
	providerRepo  repository.ProviderRepository
	requestRepo   repository.RequestRepository
	locationStore redis.LocationStoreInterface
	cacheStore    *redis.CacheStore
	advancer      Advancer
}

// NewProviderService creates a new ProviderService.
func NewProviderService(
	providerRepo repository.ProviderRepository,
	requestRepo repository.RequestRepository,
	locationStore redis.LocationStoreInterface,
	cacheStore *redis.CacheStore,
	advancer Advancer,
) *ProviderService {
	return &ProviderService{
		providerRepo:  providerRepo,
		requestRepo:   requestRepo,
		locationStore: locationStore,
		cacheStore:    cacheStore,
		advancer:      advancer,
	}
}

// RegisterProviderRequest contains the parameters for registering a provider.
type RegisterProviderRequest struct {
	Name     string
	Phone    string
	Services []string
	Lat      float64
	Lng      float64
}

// Register adds a provider to the directory. Providers start OFFLINE and
// must go live explicitly before they can receive offers.
func (s *ProviderService) Register(ctx context.Context, req RegisterProviderRequest) (*domain.Provider, error) {
	if len(req.Services) == 0 {
		return nil, ErrInvalidService
	}
	if !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return nil, ErrInvalidLocation
	}

	provider := &domain.Provider{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Phone:    req.Phone,
		Services: req.Services,
		Status:   domain.ProviderStatusOffline,
		Rating:   maxRating,
		Lat:      req.Lat,
		Lng:      req.Lng,
	}

	if err := s.providerRepo.Create(ctx, provider); err != nil {
		return nil, err
	}

	return provider, nil
}

// UpdateLocationRequest contains the parameters for updating a provider's
// position.
type UpdateLocationRequest struct {
	ProviderID string
	Lat        float64
	Lng        float64
}

// UpdateLocation moves a provider in the geo index and the directory. It
// does not change availability; going live is an explicit action.
func (s *ProviderService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.ProviderID == "" {
		return ErrInvalidProviderID
	}
	if !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return ErrInvalidLocation
	}

	if err := s.locationStore.UpdateLocation(ctx, req.ProviderID, req.Lat, req.Lng); err != nil {
		return err
	}

	return s.providerRepo.UpdateLocation(ctx, req.ProviderID, req.Lat, req.Lng)
}

// SetAvailable marks a provider live so they can receive offers. Refused
// while the provider is mid-service: a provider may not accept new work
// with a request in progress.
func (s *ProviderService) SetAvailable(ctx context.Context, providerID string) error {
	if providerID == "" {
		return ErrInvalidProviderID
	}

	active, err := s.requestRepo.GetActiveByProviderID(ctx, providerID)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrProviderMidJob
	}

	if err := s.providerRepo.UpdateStatus(ctx, providerID, domain.ProviderStatusAvailable); err != nil {
		return err
	}
	s.invalidateCache(ctx, providerID)
	return nil
}

// SetOffline marks a provider offline and runs the availability guard: any
// request where this provider holds the pending offer is advanced
// immediately, so requesters are not left waiting on someone who cannot
// respond. Going live again has no retroactive effect on ranked queues.
func (s *ProviderService) SetOffline(ctx context.Context, providerID string) error {
	if providerID == "" {
		return ErrInvalidProviderID
	}

	if err := s.providerRepo.UpdateStatus(ctx, providerID, domain.ProviderStatusOffline); err != nil {
		return err
	}

	if err := s.locationStore.RemoveLocation(ctx, providerID); err != nil {
		return err
	}
	s.invalidateCache(ctx, providerID)

	requestIDs, err := s.requestRepo.ListWithPendingOfferFor(ctx, providerID)
	if err != nil {
		return err
	}

	for _, requestID := range requestIDs {
		err := s.requestRepo.ResolveOffer(ctx, requestID, providerID, domain.OfferStatusExpired, time.Now())
		if err != nil && !errors.Is(err, repository.ErrStaleState) {
			log.Printf("availability guard: expire offer request=%s provider=%s: %v", requestID, providerID, err)
			continue
		}
		if _, err := s.advancer.Advance(ctx, requestID); err != nil {
			log.Printf("availability guard: advance request=%s: %v", requestID, err)
		}
	}

	return nil
}

// GetProvider retrieves a provider by ID.
func (s *ProviderService) GetProvider(ctx context.Context, providerID string) (*domain.Provider, error) {
	if providerID == "" {
		return nil, ErrInvalidProviderID
	}
	return s.providerRepo.GetByID(ctx, providerID)
}

func (s *ProviderService) invalidateCache(ctx context.Context, providerID string) {
	if s.cacheStore == nil {
		return
	}
	_ = s.cacheStore.InvalidateProvider(ctx, providerID)
}
