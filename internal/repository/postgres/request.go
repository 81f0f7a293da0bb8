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

// RequestRepository is a PostgreSQL implementation of repository.RequestRepository.
//
// All state transitions are conditional UPDATEs guarded by the expected
// current status; a zero rows-affected result maps to ErrStaleState so
// concurrent transitions resolve to exactly one winner.
type RequestRepository struct {
	db *sql.DB
	q  Querier
}

// NewRequestRepository creates a new PostgreSQL request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db, q: db}
}

const requestColumns = `
	id, requester_id, service, lat, lng, sort_mode, status, locked,
	assigned_provider_id, pending_providers, offer_deadline,
	auto_assign_message, cancel_reason, created_at, accepted_at,
	started_at, completed_at, cancelled_at
`

// Create persists a new request together with its first offer.
func (r *RequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO service_requests (id, requester_id, service, lat, lng, sort_mode, status, locked, pending_providers, offer_deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecContext(ctx, query,
		req.ID,
		req.RequesterID,
		req.Service,
		req.Lat,
		req.Lng,
		req.SortMode,
		req.Status,
		req.Locked,
		pq.Array(req.PendingProviders),
		nullTime(req.OfferDeadline),
		req.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i := range req.Offers {
		if err = insertOffer(ctx, tx, &req.Offers[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertOffer(ctx context.Context, q Querier, offer *domain.Offer) error {
	query := `
		INSERT INTO offers (id, request_id, provider_id, status, position, offered_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		offer.ID,
		offer.RequestID,
		offer.ProviderID,
		offer.Status,
		offer.Position,
		offer.OfferedAt,
		nullTime(offer.RespondedAt),
	)
	return err
}

// GetByID retrieves a request with its full offers list.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`

	req, err := scanRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if err := r.loadOffers(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetAll retrieves recent requests without their offer lists.
func (r *RequestRepository) GetAll(ctx context.Context) ([]*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests ORDER BY created_at DESC LIMIT 100`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// AcceptOffer atomically accepts the pending offer held by providerID.
// Both the offer row and the request row must still be in their expected
// states; otherwise the transaction rolls back with ErrStaleState.
func (r *RequestRepository) AcceptOffer(ctx context.Context, requestID, providerID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	offerQuery := `
		UPDATE offers SET status = $1, responded_at = $2
		WHERE request_id = $3 AND provider_id = $4 AND status = $5
	`
	result, err := tx.ExecContext(ctx, offerQuery,
		domain.OfferStatusAccepted, at, requestID, providerID, domain.OfferStatusPending)
	if err != nil {
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}

	requestQuery := `
		UPDATE service_requests
		SET status = $1, locked = TRUE, assigned_provider_id = $2,
		    offer_deadline = NULL, pending_providers = '{}', accepted_at = $3
		WHERE id = $4 AND status = $5 AND locked = FALSE
	`
	result, err = tx.ExecContext(ctx, requestQuery,
		domain.RequestStatusAccepted, providerID, at, requestID, domain.RequestStatusRequested)
	if err != nil {
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}

	return tx.Commit()
}

// ResolveOffer transitions a PENDING offer to DECLINED or EXPIRED.
func (r *RequestRepository) ResolveOffer(ctx context.Context, requestID, providerID string, status domain.OfferStatus, at time.Time) error {
	query := `
		UPDATE offers SET status = $1, responded_at = $2
		WHERE request_id = $3 AND provider_id = $4 AND status = $5
	`
	result, err := r.q.ExecContext(ctx, query, status, at, requestID, providerID, domain.OfferStatusPending)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// PushOffer appends the next PENDING offer and replaces the remaining queue.
func (r *RequestRepository) PushOffer(ctx context.Context, requestID string, offer *domain.Offer, remaining []string, deadline time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		UPDATE service_requests SET pending_providers = $1, offer_deadline = $2
		WHERE id = $3 AND status = $4 AND locked = FALSE
	`
	result, err := tx.ExecContext(ctx, query,
		pq.Array(remaining), deadline, requestID, domain.RequestStatusRequested)
	if err != nil {
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}

	if err = insertOffer(ctx, tx, offer); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkExpired terminates a REQUESTED request and expires any offer still
// pending on it.
func (r *RequestRepository) MarkExpired(ctx context.Context, requestID, message string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		UPDATE service_requests
		SET status = $1, offer_deadline = NULL, auto_assign_message = $2
		WHERE id = $3 AND status = $4 AND locked = FALSE
	`
	result, err := tx.ExecContext(ctx, query,
		domain.RequestStatusExpired, message, requestID, domain.RequestStatusRequested)
	if err != nil {
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}

	// A pending offer may still be open; close it out. Zero rows is fine.
	offerQuery := `
		UPDATE offers SET status = $1, responded_at = $2
		WHERE request_id = $3 AND status = $4
	`
	if _, err = tx.ExecContext(ctx, offerQuery,
		domain.OfferStatusExpired, at, requestID, domain.OfferStatusPending); err != nil {
		return err
	}

	return tx.Commit()
}

// Cancel terminates a request on the requester's behalf.
func (r *RequestRepository) Cancel(ctx context.Context, requestID string, terminal domain.RequestStatus, reason string, from []domain.RequestStatus, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query := `
		UPDATE service_requests
		SET status = $1, cancel_reason = $2, cancelled_at = $3, offer_deadline = NULL
		WHERE id = $4 AND status = ANY($5)
	`
	result, err := tx.ExecContext(ctx, query, terminal, nullString(reason), at, requestID, pq.Array(states))
	if err != nil {
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}

	offerQuery := `
		UPDATE offers SET status = $1, responded_at = $2
		WHERE request_id = $3 AND status = $4
	`
	if _, err = tx.ExecContext(ctx, offerQuery,
		domain.OfferStatusExpired, at, requestID, domain.OfferStatusPending); err != nil {
		return err
	}

	return tx.Commit()
}

// Start transitions ACCEPTED to IN_PROGRESS for the assigned provider.
func (r *RequestRepository) Start(ctx context.Context, requestID, providerID string, at time.Time) error {
	query := `
		UPDATE service_requests SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4 AND assigned_provider_id = $5
	`
	result, err := r.q.ExecContext(ctx, query,
		domain.RequestStatusInProgress, at, requestID, domain.RequestStatusAccepted, providerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Complete transitions ACCEPTED or IN_PROGRESS to COMPLETED for the
// assigned provider.
func (r *RequestRepository) Complete(ctx context.Context, requestID, providerID string, at time.Time) error {
	query := `
		UPDATE service_requests SET status = $1, completed_at = $2
		WHERE id = $3 AND status = ANY($4) AND assigned_provider_id = $5
	`
	from := []string{string(domain.RequestStatusAccepted), string(domain.RequestStatusInProgress)}
	result, err := r.q.ExecContext(ctx, query,
		domain.RequestStatusCompleted, at, requestID, pq.Array(from), providerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListOfferDeadlineElapsed returns IDs of REQUESTED requests whose offer
// deadline has passed.
func (r *RequestRepository) ListOfferDeadlineElapsed(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT id FROM service_requests
		WHERE status = $1 AND offer_deadline IS NOT NULL AND offer_deadline <= $2
	`
	return r.listIDs(ctx, query, domain.RequestStatusRequested, now)
}

// ListRequestedBefore returns IDs of requests still REQUESTED created
// before the cutoff.
func (r *RequestRepository) ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `SELECT id FROM service_requests WHERE status = $1 AND created_at <= $2`
	return r.listIDs(ctx, query, domain.RequestStatusRequested, cutoff)
}

// ListWithPendingOfferFor returns IDs of requests where the provider
// currently holds the PENDING offer.
func (r *RequestRepository) ListWithPendingOfferFor(ctx context.Context, providerID string) ([]string, error) {
	query := `
		SELECT r.id FROM service_requests r
		JOIN offers o ON o.request_id = r.id
		WHERE o.provider_id = $1 AND o.status = $2 AND r.status = $3
	`
	return r.listIDs(ctx, query, providerID, domain.OfferStatusPending, domain.RequestStatusRequested)
}

// GetActiveByProviderID returns the request the provider is currently
// working, or nil if none.
func (r *RequestRepository) GetActiveByProviderID(ctx context.Context, providerID string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE assigned_provider_id = $1 AND status = $2 LIMIT 1`

	req, err := scanRequest(r.q.QueryRowContext(ctx, query, providerID, domain.RequestStatusInProgress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RequestRepository) loadOffers(ctx context.Context, req *domain.ServiceRequest) error {
	query := `
		SELECT id, request_id, provider_id, status, position, offered_at, responded_at
		FROM offers WHERE request_id = $1 ORDER BY position
	`
	rows, err := r.q.QueryContext(ctx, query, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var offer domain.Offer
		var respondedAt sql.NullTime
		if err := rows.Scan(
			&offer.ID,
			&offer.RequestID,
			&offer.ProviderID,
			&offer.Status,
			&offer.Position,
			&offer.OfferedAt,
			&respondedAt,
		); err != nil {
			return err
		}
		if respondedAt.Valid {
			offer.RespondedAt = respondedAt.Time
		}
		req.Offers = append(req.Offers, offer)
	}
	return rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(s rowScanner) (*domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	var assignedProviderID, autoAssignMessage, cancelReason sql.NullString
	var offerDeadline, acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var pending pq.StringArray

	err := s.Scan(
		&req.ID,
		&req.RequesterID,
		&req.Service,
		&req.Lat,
		&req.Lng,
		&req.SortMode,
		&req.Status,
		&req.Locked,
		&assignedProviderID,
		&pending,
		&offerDeadline,
		&autoAssignMessage,
		&cancelReason,
		&req.CreatedAt,
		&acceptedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	req.PendingProviders = pending
	if assignedProviderID.Valid {
		req.AssignedProviderID = assignedProviderID.String
	}
	if autoAssignMessage.Valid {
		req.AutoAssignMessage = autoAssignMessage.String
	}
	if cancelReason.Valid {
		req.CancelReason = cancelReason.String
	}
	if offerDeadline.Valid {
		req.OfferDeadline = offerDeadline.Time
	}
	if acceptedAt.Valid {
		req.AcceptedAt = acceptedAt.Time
	}
	if startedAt.Valid {
		req.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		req.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		req.CancelledAt = cancelledAt.Time
	}

	return &req, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
