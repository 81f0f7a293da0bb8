package domain

import "time"

// ProviderStatus represents the current availability of a provider.
type ProviderStatus string

const (
	ProviderStatusAvailable ProviderStatus = "AVAILABLE"
	ProviderStatusOffline   ProviderStatus = "OFFLINE"
	ProviderStatusBusy      ProviderStatus = "BUSY"
)

// Provider represents a service provider in the directory.
type Provider struct {
	ID          string
	Name        string
	Phone       string
	Services    []string
	Status      ProviderStatus
	Rating      float64
	RatingCount int
	Lat         float64
	Lng         float64

	// Updated by the relocation hook on service completion.
	LastServiceLat  float64
	LastServiceLng  float64
	LastCompletedAt time.Time
}

// Offers reports whether the provider offers the given service.
func (p *Provider) Offers(service string) bool {
	for _, s := range p.Services {
		if s == service {
			return true
		}
	}
	return false
}
