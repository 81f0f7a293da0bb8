package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"dispatch/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOfferDispatched  NotificationType = "OFFER_DISPATCHED"
	NotificationOfferExpired     NotificationType = "OFFER_EXPIRED"
	NotificationRequestAccepted  NotificationType = "REQUEST_ACCEPTED"
	NotificationRequestCancelled NotificationType = "REQUEST_CANCELLED"
	NotificationRequestExpired   NotificationType = "REQUEST_EXPIRED"
	NotificationRequestStarted   NotificationType = "REQUEST_STARTED"
	NotificationRequestCompleted NotificationType = "REQUEST_COMPLETED"
)

// Notification represents a notification to be delivered.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// Sink delivers a notification to a recipient. The websocket registry is
// the live implementation; delivery failure is not an engine failure.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// NotificationService fans notifications out to the configured sinks.
type NotificationService struct {
	sinks []Sink
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sinks ...Sink) *NotificationService {
	return &NotificationService{sinks: sinks}
}

// NotifyOfferDispatched informs a provider that they hold the current offer.
func (s *NotificationService) NotifyOfferDispatched(ctx context.Context, req *domain.ServiceRequest, providerID string, deadline time.Time) {
	s.send(ctx, Notification{
		Type:        NotificationOfferDispatched,
		RecipientID: providerID,
		Title:       "New Service Offer",
		Message:     fmt.Sprintf("You have a new %s request near (%.4f, %.4f). Respond before %s.", req.Service, req.Lat, req.Lng, deadline.Format(time.RFC3339)),
		Data: map[string]interface{}{
			"request_id": req.ID,
			"service":    req.Service,
			"lat":        req.Lat,
			"lng":        req.Lng,
			"deadline":   deadline,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyOfferExpired informs a provider their offer window has closed.
func (s *NotificationService) NotifyOfferExpired(ctx context.Context, requestID, providerID string) {
	s.send(ctx, Notification{
		Type:        NotificationOfferExpired,
		RecipientID: providerID,
		Title:       "Offer Expired",
		Message:     "The offer was passed to the next provider.",
		Data:        map[string]interface{}{"request_id": requestID},
		CreatedAt:   time.Now(),
	})
}

// NotifyRequestAccepted informs the requester a provider took the job.
func (s *NotificationService) NotifyRequestAccepted(ctx context.Context, req *domain.ServiceRequest, providerID string) {
	s.send(ctx, Notification{
		Type:        NotificationRequestAccepted,
		RecipientID: req.RequesterID,
		Title:       "Provider Assigned",
		Message:     "A provider has accepted your request.",
		Data: map[string]interface{}{
			"request_id":  req.ID,
			"provider_id": providerID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRequestCancelled informs the assigned provider of a cancellation.
func (s *NotificationService) NotifyRequestCancelled(ctx context.Context, req *domain.ServiceRequest, reason string) {
	if req.AssignedProviderID == "" {
		return
	}
	s.send(ctx, Notification{
		Type:        NotificationRequestCancelled,
		RecipientID: req.AssignedProviderID,
		Title:       "Request Cancelled",
		Message:     fmt.Sprintf("The requester cancelled the request: %s", reason),
		Data: map[string]interface{}{
			"request_id": req.ID,
			"reason":     reason,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRequestExpired informs the requester nobody could be assigned.
func (s *NotificationService) NotifyRequestExpired(ctx context.Context, req *domain.ServiceRequest, message string) {
	s.send(ctx, Notification{
		Type:        NotificationRequestExpired,
		RecipientID: req.RequesterID,
		Title:       "Request Expired",
		Message:     message,
		Data:        map[string]interface{}{"request_id": req.ID},
		CreatedAt:   time.Now(),
	})
}

// NotifyRequestStarted informs the requester work has begun.
func (s *NotificationService) NotifyRequestStarted(ctx context.Context, req *domain.ServiceRequest) {
	s.send(ctx, Notification{
		Type:        NotificationRequestStarted,
		RecipientID: req.RequesterID,
		Title:       "Service Started",
		Message:     "Your provider has started the service.",
		Data:        map[string]interface{}{"request_id": req.ID},
		CreatedAt:   time.Now(),
	})
}

// NotifyRequestCompleted informs the requester the service is done.
func (s *NotificationService) NotifyRequestCompleted(ctx context.Context, req *domain.ServiceRequest) {
	s.send(ctx, Notification{
		Type:        NotificationRequestCompleted,
		RecipientID: req.RequesterID,
		Title:       "Service Completed",
		Message:     "Your service request has been completed.",
		Data:        map[string]interface{}{"request_id": req.ID},
		CreatedAt:   time.Now(),
	})
}

// send delivers through every sink, falling back to a log line when no sink
// reaches the recipient.
func (s *NotificationService) send(ctx context.Context, n Notification) {
	delivered := false
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, n); err == nil {
			delivered = true
		}
	}
	if !delivered {
		log.Printf("[notification] type=%s recipient=%s message=%q", n.Type, n.RecipientID, n.Message)
	}
}
