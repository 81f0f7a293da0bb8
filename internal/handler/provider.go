package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ProviderHandler handles HTTP requests for providers.
type ProviderHandler struct {
	providerService *service.ProviderService
	providerRepo    repository.ProviderRepository
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(providerService *service.ProviderService, providerRepo repository.ProviderRepository) *ProviderHandler {
	return &ProviderHandler{
		providerService: providerService,
		providerRepo:    providerRepo,
	}
}

// RegisterProviderBody is the HTTP request body for registering a provider.
type RegisterProviderBody struct {
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Services []string `json:"services"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
}

// UpdateLocationBody is the HTTP request body for a location update.
type UpdateLocationBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AvailabilityBody is the HTTP request body for the availability toggle.
type AvailabilityBody struct {
	Available bool `json:"available"`
}

// ProviderResponse is the HTTP representation of a provider.
type ProviderResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Phone           string   `json:"phone"`
	Services        []string `json:"services"`
	Status          string   `json:"status"`
	Rating          float64  `json:"rating"`
	RatingCount     int      `json:"rating_count"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	LastServiceLat  float64  `json:"last_service_lat,omitempty"`
	LastServiceLng  float64  `json:"last_service_lng,omitempty"`
	LastCompletedAt string   `json:"last_completed_at,omitempty"`
}

// Register handles POST /v1/providers/register
func (h *ProviderHandler) Register(c *gin.Context) {
	var body RegisterProviderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	provider, err := h.providerService.Register(c.Request.Context(), service.RegisterProviderRequest{
		Name:     body.Name,
		Phone:    body.Phone,
		Services: body.Services,
		Lat:      body.Lat,
		Lng:      body.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toProviderResponse(provider))
}

// GetProvider handles GET /v1/providers/:id
func (h *ProviderHandler) GetProvider(c *gin.Context) {
	provider, err := h.providerService.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toProviderResponse(provider))
}

// GetAll handles GET /v1/providers
func (h *ProviderHandler) GetAll(c *gin.Context) {
	providers, err := h.providerRepo.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ProviderResponse, 0, len(providers))
	for _, p := range providers {
		response = append(response, toProviderResponse(p))
	}
	respondJSON(c, http.StatusOK, response)
}

// UpdateLocation handles POST /v1/providers/:id/location
func (h *ProviderHandler) UpdateLocation(c *gin.Context) {
	var body UpdateLocationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.providerService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		ProviderID: c.Param("id"),
		Lat:        body.Lat,
		Lng:        body.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "updated"})
}

// SetAvailability handles POST /v1/providers/:id/availability. Going
// offline triggers the availability guard; going live is refused while the
// provider has a request in progress.
func (h *ProviderHandler) SetAvailability(c *gin.Context) {
	var body AvailabilityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	providerID := c.Param("id")
	var err error
	if body.Available {
		err = h.providerService.SetAvailable(c.Request.Context(), providerID)
	} else {
		err = h.providerService.SetOffline(c.Request.Context(), providerID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	status := domain.ProviderStatusAvailable
	if !body.Available {
		status = domain.ProviderStatusOffline
	}
	respondJSON(c, http.StatusOK, gin.H{"status": string(status)})
}

func toProviderResponse(p *domain.Provider) ProviderResponse {
	resp := ProviderResponse{
		ID:             p.ID,
		Name:           p.Name,
		Phone:          p.Phone,
		Services:       p.Services,
		Status:         string(p.Status),
		Rating:         p.Rating,
		RatingCount:    p.RatingCount,
		Lat:            p.Lat,
		Lng:            p.Lng,
		LastServiceLat: p.LastServiceLat,
		LastServiceLng: p.LastServiceLng,
	}
	if !p.LastCompletedAt.IsZero() {
		resp.LastCompletedAt = p.LastCompletedAt.Format(time.RFC3339)
	}
	return resp
}
