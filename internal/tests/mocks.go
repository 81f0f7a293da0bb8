package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ──────────────────────────────────────────────
// MOCK REQUEST REPOSITORY
// ──────────────────────────────────────────────

// MockRequestRepository is an in-memory implementation of RequestRepository.
// Transition methods mirror the conditional-write semantics of the real
// store: a transition whose precondition no longer holds returns
// ErrStaleState, never partial state.
type MockRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.ServiceRequest

	// Counters for verification
	CreateCallCount      int32
	AcceptOfferCallCount int32
	PushOfferCallCount   int32
	MarkExpiredCallCount int32

	// Error injection
	CreateError error
}

// NewMockRequestRepository creates a new mock request repository.
func NewMockRequestRepository() *MockRequestRepository {
	return &MockRequestRepository{
		requests: make(map[string]*domain.ServiceRequest),
	}
}

func cloneRequest(r *domain.ServiceRequest) *domain.ServiceRequest {
	c := *r
	c.Offers = append([]domain.Offer(nil), r.Offers...)
	c.PendingProviders = append([]string(nil), r.PendingProviders...)
	return &c
}

// AddRequest adds a request to the mock repository.
func (m *MockRequestRepository) AddRequest(req *domain.ServiceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = cloneRequest(req)
}

// GetRequest returns a snapshot of a request for test assertions.
func (m *MockRequestRepository) GetRequest(id string) *domain.ServiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil
	}
	return cloneRequest(req)
}

func (m *MockRequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (m *MockRequestRepository) GetAll(ctx context.Context) ([]*domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.ServiceRequest, 0, len(m.requests))
	for _, r := range m.requests {
		result = append(result, cloneRequest(r))
	}
	return result, nil
}

func (m *MockRequestRepository) AcceptOffer(ctx context.Context, requestID, providerID string, at time.Time) error {
	atomic.AddInt32(&m.AcceptOfferCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.RequestStatusRequested || req.Locked {
		return repository.ErrStaleState
	}

	var offer *domain.Offer
	for i := range req.Offers {
		if req.Offers[i].ProviderID == providerID && req.Offers[i].Status == domain.OfferStatusPending {
			offer = &req.Offers[i]
			break
		}
	}
	if offer == nil {
		return repository.ErrStaleState
	}

	offer.Status = domain.OfferStatusAccepted
	offer.RespondedAt = at
	req.Status = domain.RequestStatusAccepted
	req.Locked = true
	req.AssignedProviderID = providerID
	req.PendingProviders = nil
	req.OfferDeadline = time.Time{}
	req.AcceptedAt = at
	return nil
}

func (m *MockRequestRepository) ResolveOffer(ctx context.Context, requestID, providerID string, status domain.OfferStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range req.Offers {
		if req.Offers[i].ProviderID == providerID && req.Offers[i].Status == domain.OfferStatusPending {
			req.Offers[i].Status = status
			req.Offers[i].RespondedAt = at
			return nil
		}
	}
	return repository.ErrStaleState
}

func (m *MockRequestRepository) PushOffer(ctx context.Context, requestID string, offer *domain.Offer, remaining []string, deadline time.Time) error {
	atomic.AddInt32(&m.PushOfferCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.RequestStatusRequested || req.Locked {
		return repository.ErrStaleState
	}

	req.Offers = append(req.Offers, *offer)
	req.PendingProviders = append([]string(nil), remaining...)
	req.OfferDeadline = deadline
	return nil
}

func (m *MockRequestRepository) MarkExpired(ctx context.Context, requestID, message string, at time.Time) error {
	atomic.AddInt32(&m.MarkExpiredCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.RequestStatusRequested {
		return repository.ErrStaleState
	}

	req.Status = domain.RequestStatusExpired
	req.AutoAssignMessage = message
	req.PendingProviders = nil
	req.OfferDeadline = time.Time{}
	return nil
}

func (m *MockRequestRepository) Cancel(ctx context.Context, requestID string, terminal domain.RequestStatus, reason string, from []domain.RequestStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if req.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return repository.ErrStaleState
	}

	req.Status = terminal
	req.CancelReason = reason
	req.CancelledAt = at
	req.PendingProviders = nil
	req.OfferDeadline = time.Time{}
	return nil
}

func (m *MockRequestRepository) Start(ctx context.Context, requestID, providerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != domain.RequestStatusAccepted || req.AssignedProviderID != providerID {
		return repository.ErrStaleState
	}

	req.Status = domain.RequestStatusInProgress
	req.StartedAt = at
	return nil
}

func (m *MockRequestRepository) Complete(ctx context.Context, requestID, providerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.AssignedProviderID != providerID {
		return repository.ErrStaleState
	}
	if req.Status != domain.RequestStatusAccepted && req.Status != domain.RequestStatusInProgress {
		return repository.ErrStaleState
	}

	req.Status = domain.RequestStatusCompleted
	req.CompletedAt = at
	return nil
}

func (m *MockRequestRepository) ListOfferDeadlineElapsed(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.requests {
		if r.Status == domain.RequestStatusRequested && !r.OfferDeadline.IsZero() && !r.OfferDeadline.After(now) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (m *MockRequestRepository) ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.requests {
		if r.Status == domain.RequestStatusRequested && !r.CreatedAt.After(cutoff) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (m *MockRequestRepository) ListWithPendingOfferFor(ctx context.Context, providerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.requests {
		if r.Status != domain.RequestStatusRequested {
			continue
		}
		for _, o := range r.Offers {
			if o.ProviderID == providerID && o.Status == domain.OfferStatusPending {
				ids = append(ids, r.ID)
				break
			}
		}
	}
	return ids, nil
}

func (m *MockRequestRepository) GetActiveByProviderID(ctx context.Context, providerID string) (*domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.AssignedProviderID == providerID && r.Status == domain.RequestStatusInProgress {
			return cloneRequest(r), nil
		}
	}
	return nil, nil
}

// ──────────────────────────────────────────────
// MOCK PROVIDER REPOSITORY
// ──────────────────────────────────────────────

// MockProviderRepository is a mock implementation of ProviderRepository.
type MockProviderRepository struct {
	mu        sync.RWMutex
	providers map[string]*domain.Provider

	// Counters for verification
	CreateCallCount           int32
	UpdateStatusCallCount     int32
	RecordCompletionCallCount int32

	// Error injection
	CreateError       error
	UpdateStatusError error
}

// NewMockProviderRepository creates a new mock provider repository.
func NewMockProviderRepository() *MockProviderRepository {
	return &MockProviderRepository{
		providers: make(map[string]*domain.Provider),
	}
}

// AddProvider adds a provider to the mock repository.
func (m *MockProviderRepository) AddProvider(p *domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

// GetProvider returns the provider for test assertions.
func (m *MockProviderRepository) GetProvider(id string) *domain.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[id]
}

func (m *MockProviderRepository) Create(ctx context.Context, p *domain.Provider) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
	return nil
}

func (m *MockProviderRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (m *MockProviderRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Provider, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.providers[id]; ok {
			copy := *p
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockProviderRepository) GetAll(ctx context.Context) ([]*domain.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Provider, 0, len(m.providers))
	for _, p := range m.providers {
		copy := *p
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockProviderRepository) UpdateStatus(ctx context.Context, id string, status domain.ProviderStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *MockProviderRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Lat = lat
	p.Lng = lng
	return nil
}

func (m *MockProviderRepository) RecordCompletion(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	atomic.AddInt32(&m.RecordCompletionCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Lat = lat
	p.Lng = lng
	p.LastServiceLat = lat
	p.LastServiceLng = lng
	p.LastCompletedAt = at
	p.Status = domain.ProviderStatusAvailable
	return nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStoreInterface.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations []redis.ProviderLocation

	// Counters
	UpdateLocationCallCount int32

	// Error injection
	UpdateLocationError      error
	FindNearbyProvidersError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make([]redis.ProviderLocation, 0),
	}
}

// SetLocations sets all locations (for test setup).
func (m *MockLocationStore) SetLocations(locations []redis.ProviderLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = locations
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, providerID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.ProviderID == providerID {
			m.locations[i].Lat = lat
			m.locations[i].Lng = lng
			return nil
		}
	}
	m.locations = append(m.locations, redis.ProviderLocation{
		ProviderID: providerID,
		Lat:        lat,
		Lng:        lng,
	})
	return nil
}

func (m *MockLocationStore) FindNearbyProviders(ctx context.Context, lat, lng, radiusKm float64) ([]redis.ProviderLocation, error) {
	if m.FindNearbyProvidersError != nil {
		return nil, m.FindNearbyProvidersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return all locations (mock doesn't do real geo filtering).
	result := make([]redis.ProviderLocation, len(m.locations))
	copy(result, m.locations)
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.ProviderID == providerID {
			m.locations = append(m.locations[:i], m.locations[i+1:]...)
			return nil
		}
	}
	return nil
}

// HasLocation checks if a provider location exists.
func (m *MockLocationStore) HasLocation(providerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, loc := range m.locations {
		if loc.ProviderID == providerID {
			return true
		}
	}
	return false
}

// GetLocation returns a provider's stored location for assertions.
func (m *MockLocationStore) GetLocation(providerID string) (redis.ProviderLocation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, loc := range m.locations {
		if loc.ProviderID == providerID {
			return loc, true
		}
	}
	return redis.ProviderLocation{}, false
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquireAdvanceLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceAcquireFailure {
		return false, nil
	}
	if expiry, exists := m.locks[requestID]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[requestID] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleaseAdvanceLock(ctx context.Context, requestID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, requestID)
	return nil
}

// ──────────────────────────────────────────────
// CAPTURE SINK
// ──────────────────────────────────────────────

// CaptureSink records delivered notifications for assertions.
type CaptureSink struct {
	mu            sync.Mutex
	notifications []service.Notification
}

// NewCaptureSink creates a new capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

func (s *CaptureSink) Deliver(ctx context.Context, n service.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// Count returns the number of captured notifications of the given type.
func (s *CaptureSink) Count(t service.NotificationType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.Type == t {
			count++
		}
	}
	return count
}

// LastFor returns the last notification sent to a recipient.
func (s *CaptureSink) LastFor(recipientID string) (service.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].RecipientID == recipientID {
			return s.notifications[i], true
		}
	}
	return service.Notification{}, false
}
