package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// RequestHandler handles HTTP requests for service requests.
type RequestHandler struct {
	dispatchService *service.DispatchService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(dispatchService *service.DispatchService) *RequestHandler {
	return &RequestHandler{dispatchService: dispatchService}
}

// CreateRequestBody is the HTTP request body for creating a service request.
type CreateRequestBody struct {
	RequesterID    string  `json:"requester_id"`
	Service        string  `json:"service"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	SortMode       string  `json:"sort_mode,omitempty"` // NEAREST, HIGHEST_RATING, BALANCED
	IncludeRanking bool    `json:"include_ranking,omitempty"`
}

// ProviderActionBody is the HTTP request body for provider offer actions.
type ProviderActionBody struct {
	ProviderID string `json:"provider_id"`
}

// CancelBody is the HTTP request body for cancelling a request.
type CancelBody struct {
	RequesterID string `json:"requester_id"`
	Reason      string `json:"reason,omitempty"`
}

// OfferResponse is the HTTP representation of one offer.
type OfferResponse struct {
	ProviderID  string `json:"provider_id"`
	Status      string `json:"status"`
	Position    int    `json:"position"`
	OfferedAt   string `json:"offered_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

// RankedCandidateResponse is the diagnostics view of one ranked candidate.
type RankedCandidateResponse struct {
	ProviderID string  `json:"provider_id"`
	DistanceKm float64 `json:"distance_km"`
	Rating     float64 `json:"rating"`
	Score      float64 `json:"score,omitempty"`
}

// RequestResponse is the HTTP representation of a service request.
type RequestResponse struct {
	ID                 string          `json:"id"`
	RequesterID        string          `json:"requester_id"`
	Service            string          `json:"service"`
	Lat                float64         `json:"lat"`
	Lng                float64         `json:"lng"`
	SortMode           string          `json:"sort_mode"`
	Status             string          `json:"status"`
	Locked             bool            `json:"locked"`
	AssignedProviderID string          `json:"assigned_provider_id,omitempty"`
	Offers             []OfferResponse `json:"offers"`
	PendingProviders   []string        `json:"pending_providers"`
	OfferDeadline      string          `json:"offer_deadline,omitempty"`
	AutoAssignMessage  string          `json:"auto_assign_message,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	CreatedAt          string          `json:"created_at"`
	CompletedAt        string          `json:"completed_at,omitempty"`
}

// CreateRequestResponse wraps the created request with an optional ranked
// preview.
type CreateRequestResponse struct {
	RequestResponse
	Ranking []RankedCandidateResponse `json:"ranking,omitempty"`
}

// CreateRequest handles POST /v1/requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sortMode, err := service.ValidateSortMode(body.SortMode)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.dispatchService.CreateRequest(c.Request.Context(), service.CreateRequestRequest{
		RequesterID:    body.RequesterID,
		Service:        body.Service,
		Lat:            body.Lat,
		Lng:            body.Lng,
		SortMode:       sortMode,
		IncludeRanking: body.IncludeRanking,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := CreateRequestResponse{RequestResponse: toRequestResponse(result.Request)}
	for _, r := range result.Ranking {
		resp.Ranking = append(resp.Ranking, RankedCandidateResponse{
			ProviderID: r.ProviderID,
			DistanceKm: r.DistanceKm,
			Rating:     r.Rating,
			Score:      r.Score,
		})
	}

	respondJSON(c, http.StatusCreated, resp)
}

// GetRequest handles GET /v1/requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	request, err := h.dispatchService.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// GetAll handles GET /v1/requests
func (h *RequestHandler) GetAll(c *gin.Context) {
	requests, err := h.dispatchService.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		response = append(response, toRequestResponse(r))
	}
	respondJSON(c, http.StatusOK, response)
}

// AcceptOffer handles POST /v1/requests/:id/accept
func (h *RequestHandler) AcceptOffer(c *gin.Context) {
	var body ProviderActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.AcceptOffer(c.Request.Context(), c.Param("id"), body.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// DeclineOffer handles POST /v1/requests/:id/decline
func (h *RequestHandler) DeclineOffer(c *gin.Context) {
	var body ProviderActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.DeclineOffer(c.Request.Context(), c.Param("id"), body.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// ForceAdvance handles POST /v1/requests/:id/advance. Administrative
// recovery: runs the advancement routine outside the normal timer, even if
// the current offer's window is still open.
func (h *RequestHandler) ForceAdvance(c *gin.Context) {
	request, err := h.dispatchService.ForceAdvance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// Cancel handles POST /v1/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	var body CancelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.Cancel(c.Request.Context(), service.CancelRequest{
		RequestID:   c.Param("id"),
		RequesterID: body.RequesterID,
		Reason:      body.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// Reject handles POST /v1/requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	var body CancelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.Reject(c.Request.Context(), c.Param("id"), body.RequesterID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// Start handles POST /v1/requests/:id/start
func (h *RequestHandler) Start(c *gin.Context) {
	var body ProviderActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.Start(c.Request.Context(), c.Param("id"), body.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

// Complete handles POST /v1/requests/:id/complete
func (h *RequestHandler) Complete(c *gin.Context) {
	var body ProviderActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	request, err := h.dispatchService.Complete(c.Request.Context(), c.Param("id"), body.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRequestResponse(request))
}

func toRequestResponse(r *domain.ServiceRequest) RequestResponse {
	resp := RequestResponse{
		ID:                 r.ID,
		RequesterID:        r.RequesterID,
		Service:            r.Service,
		Lat:                r.Lat,
		Lng:                r.Lng,
		SortMode:           string(r.SortMode),
		Status:             string(r.Status),
		Locked:             r.Locked,
		AssignedProviderID: r.AssignedProviderID,
		PendingProviders:   r.PendingProviders,
		AutoAssignMessage:  r.AutoAssignMessage,
		CancelReason:       r.CancelReason,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
	}
	if resp.PendingProviders == nil {
		resp.PendingProviders = []string{}
	}
	if !r.OfferDeadline.IsZero() {
		resp.OfferDeadline = r.OfferDeadline.Format(time.RFC3339)
	}
	if !r.CompletedAt.IsZero() {
		resp.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	resp.Offers = make([]OfferResponse, 0, len(r.Offers))
	for _, o := range r.Offers {
		offer := OfferResponse{
			ProviderID: o.ProviderID,
			Status:     string(o.Status),
			Position:   o.Position,
			OfferedAt:  o.OfferedAt.Format(time.RFC3339),
		}
		if !o.RespondedAt.IsZero() {
			offer.RespondedAt = o.RespondedAt.Format(time.RFC3339)
		}
		resp.Offers = append(resp.Offers, offer)
	}
	return resp
}
