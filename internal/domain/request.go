package domain

import "time"

// RequestStatus represents the overall lifecycle status of a service request.
type RequestStatus string

const (
	RequestStatusRequested  RequestStatus = "REQUESTED"
	RequestStatusAccepted   RequestStatus = "ACCEPTED"
	RequestStatusInProgress RequestStatus = "IN_PROGRESS"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
	RequestStatusRejected   RequestStatus = "REJECTED"
	RequestStatusExpired    RequestStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusCancelled, RequestStatusRejected, RequestStatusExpired:
		return true
	}
	return false
}

// OfferStatus represents the status of a single provider's offer.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "PENDING"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusDeclined OfferStatus = "DECLINED"
	OfferStatusExpired  OfferStatus = "EXPIRED"
)

// SortMode selects the candidate ranking strategy for a request.
type SortMode string

const (
	SortModeNearest       SortMode = "NEAREST"
	SortModeHighestRating SortMode = "HIGHEST_RATING"
	SortModeBalanced      SortMode = "BALANCED"
)

// Offer represents one provider's turn in a request's dispatch queue.
// An offer is immutable once it leaves PENDING.
type Offer struct {
	ID          string
	RequestID   string
	ProviderID  string
	Status      OfferStatus
	Position    int
	OfferedAt   time.Time
	RespondedAt time.Time
}

// ServiceRequest represents a service-matching transaction between a
// requester and exactly one eventually-assigned provider.
//
// At most one offer is PENDING at any time. AssignedProviderID is set
// exactly when one offer is accepted, at which point Locked becomes true
// and never reverts.
type ServiceRequest struct {
	ID                 string
	RequesterID        string
	Service            string
	Lat                float64
	Lng                float64
	SortMode           SortMode
	Status             RequestStatus
	Locked             bool
	AssignedProviderID string
	Offers             []Offer
	PendingProviders   []string
	OfferDeadline      time.Time
	AutoAssignMessage  string
	CancelReason       string
	CreatedAt          time.Time
	AcceptedAt         time.Time
	StartedAt          time.Time
	CompletedAt        time.Time
	CancelledAt        time.Time
}

// PendingOffer returns the current PENDING offer, or nil if none exists.
func (r *ServiceRequest) PendingOffer() *Offer {
	for i := range r.Offers {
		if r.Offers[i].Status == OfferStatusPending {
			return &r.Offers[i]
		}
	}
	return nil
}
