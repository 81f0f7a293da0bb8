package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// ProviderRepository is a PostgreSQL implementation of repository.ProviderRepository.
type ProviderRepository struct {
	q Querier
}

// NewProviderRepository creates a new PostgreSQL provider repository.
func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{q: db}
}

const providerColumns = `
	id, COALESCE(name, ''), COALESCE(phone, ''), services, status, rating,
	rating_count, lat, lng, last_service_lat, last_service_lng, last_completed_at
`

// Create adds a new provider.
func (r *ProviderRepository) Create(ctx context.Context, provider *domain.Provider) error {
	query := `
		INSERT INTO providers (id, name, phone, services, status, rating, rating_count, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		provider.ID,
		provider.Name,
		provider.Phone,
		pq.Array(provider.Services),
		provider.Status,
		provider.Rating,
		provider.RatingCount,
		provider.Lat,
		provider.Lng,
	)
	return err
}

// GetByID retrieves a provider by ID.
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	provider, err := scanProvider(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return provider, nil
}

// GetByIDs retrieves multiple providers in one query.
func (r *ProviderRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = ANY($1)`
	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProviders(rows)
}

// GetAll retrieves all providers.
func (r *ProviderRepository) GetAll(ctx context.Context) ([]*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProviders(rows)
}

// UpdateStatus updates the availability status of a provider.
func (r *ProviderRepository) UpdateStatus(ctx context.Context, id string, status domain.ProviderStatus) error {
	query := `UPDATE providers SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return requireProviderRow(result)
}

// UpdateLocation updates the provider's canonical coordinates.
func (r *ProviderRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	query := `UPDATE providers SET lat = $1, lng = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, lat, lng, id)
	if err != nil {
		return err
	}
	return requireProviderRow(result)
}

// RecordCompletion applies the relocation write after a completed service.
func (r *ProviderRepository) RecordCompletion(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	query := `
		UPDATE providers
		SET lat = $1, lng = $2, last_service_lat = $1, last_service_lng = $2,
		    last_completed_at = $3, status = $4
		WHERE id = $5
	`
	result, err := r.q.ExecContext(ctx, query, lat, lng, at, domain.ProviderStatusAvailable, id)
	if err != nil {
		return err
	}
	return requireProviderRow(result)
}

func collectProviders(rows *sql.Rows) ([]*domain.Provider, error) {
	var providers []*domain.Provider
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

func scanProvider(s rowScanner) (*domain.Provider, error) {
	var provider domain.Provider
	var services pq.StringArray
	var lastServiceLat, lastServiceLng sql.NullFloat64
	var lastCompletedAt sql.NullTime

	err := s.Scan(
		&provider.ID,
		&provider.Name,
		&provider.Phone,
		&services,
		&provider.Status,
		&provider.Rating,
		&provider.RatingCount,
		&provider.Lat,
		&provider.Lng,
		&lastServiceLat,
		&lastServiceLng,
		&lastCompletedAt,
	)
	if err != nil {
		return nil, err
	}

	provider.Services = services
	if lastServiceLat.Valid {
		provider.LastServiceLat = lastServiceLat.Float64
	}
	if lastServiceLng.Valid {
		provider.LastServiceLng = lastServiceLng.Float64
	}
	if lastCompletedAt.Valid {
		provider.LastCompletedAt = lastCompletedAt.Time
	}

	return &provider, nil
}

func requireProviderRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
