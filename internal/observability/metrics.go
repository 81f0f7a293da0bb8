package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "requests_created_total",
		Help: "Total service requests created with a schedulable offer queue"})

	OffersDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "offers_dispatched_total",
		Help: "Total offers dispatched to providers"})

	OffersResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "offers_resolved_total",
		Help: "Offers resolved by outcome"},
		[]string{"outcome"})

	AdvancementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "advancements_total",
		Help: "Offer queue advancement runs that moved to a next candidate"})

	RequestsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "requests_expired_total",
		Help: "Requests that expired unassigned"})

	RequestsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "requests_completed_total",
		Help: "Requests completed by their assigned provider"})

	SweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "sweep_failures_total",
		Help: "Background sweep iterations that failed against the store"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch", Name: "ws_sessions",
		Help: "Connected websocket notification sessions"})
)
