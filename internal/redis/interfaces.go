package redis

import (
	"context"
	"time"
)

// LocationStoreInterface defines the interface for provider location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, providerID string, lat, lng float64) error
	FindNearbyProviders(ctx context.Context, lat, lng, radiusKm float64) ([]ProviderLocation, error)
	RemoveLocation(ctx context.Context, providerID string) error
}

// LockStoreInterface defines the interface for request advancement locking.
type LockStoreInterface interface {
	AcquireAdvanceLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	ReleaseAdvanceLock(ctx context.Context, requestID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
