package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// ProviderRepository defines the persistence operations for providers.
type ProviderRepository interface {
	// Create adds a new provider.
	Create(ctx context.Context, provider *domain.Provider) error

	// GetByID retrieves a provider by ID.
	GetByID(ctx context.Context, id string) (*domain.Provider, error)

	// GetByIDs retrieves multiple providers in one query. Missing IDs are
	// silently omitted from the result.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Provider, error)

	// GetAll retrieves all providers.
	GetAll(ctx context.Context) ([]*domain.Provider, error)

	// UpdateStatus updates the availability status of a provider.
	UpdateStatus(ctx context.Context, id string, status domain.ProviderStatus) error

	// UpdateLocation updates the provider's canonical coordinates.
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error

	// RecordCompletion applies the relocation write: canonical and
	// last-service coordinates move to the completed request's location.
	RecordCompletion(ctx context.Context, id string, lat, lng float64, at time.Time) error
}
