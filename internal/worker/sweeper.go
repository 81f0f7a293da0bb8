package worker

import (
	"context"
	"log"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/observability"
	"dispatch/internal/repository"
)

// Dispatch is the slice of the dispatch service the sweeper drives.
type Dispatch interface {
	Advance(ctx context.Context, requestID string) (*domain.ServiceRequest, error)
	ExpireStale(ctx context.Context, requestID string) error
}

// Sweeper is the background reconciliation worker. A fine ticker advances
// requests whose current offer timed out; a coarser ticker expires requests
// that sat unassigned past the maximum total window, as a backstop against
// stuck state. A failed sweep is logged and retried on the next tick, never
// fatal.
type Sweeper struct {
	requestRepo repository.RequestRepository
	dispatch    Dispatch

	offerInterval time.Duration
	staleInterval time.Duration
	maxWindow     time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a new Sweeper.
func NewSweeper(requestRepo repository.RequestRepository, dispatch Dispatch, offerInterval, staleInterval, maxWindow time.Duration) *Sweeper {
	return &Sweeper{
		requestRepo:   requestRepo,
		dispatch:      dispatch,
		offerInterval: offerInterval,
		staleInterval: staleInterval,
		maxWindow:     maxWindow,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the sweep loops.
func (s *Sweeper) Start() {
	go s.run()
	log.Printf("sweeper started: offer interval %s, stale interval %s, max window %s",
		s.offerInterval, s.staleInterval, s.maxWindow)
}

// Stop stops the sweeper and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	log.Println("sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.done)

	offerTicker := time.NewTicker(s.offerInterval)
	defer offerTicker.Stop()
	staleTicker := time.NewTicker(s.staleInterval)
	defer staleTicker.Stop()

	for {
		select {
		case <-offerTicker.C:
			s.sweepExpiredOffers()
		case <-staleTicker.C:
			s.sweepStaleRequests()
		case <-s.stop:
			return
		}
	}
}

// sweepExpiredOffers advances every request whose offer deadline elapsed
// without a response.
func (s *Sweeper) sweepExpiredOffers() {
	ctx, cancel := context.WithTimeout(context.Background(), s.offerInterval)
	defer cancel()

	ids, err := s.requestRepo.ListOfferDeadlineElapsed(ctx, time.Now())
	if err != nil {
		observability.SweepFailuresTotal.Inc()
		log.Printf("offer sweep failed: %v", err)
		return
	}

	for _, id := range ids {
		if _, err := s.dispatch.Advance(ctx, id); err != nil {
			log.Printf("offer sweep: advance request=%s: %v", id, err)
		}
	}
}

// sweepStaleRequests expires requests stuck REQUESTED past the max window.
func (s *Sweeper) sweepStaleRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), s.staleInterval)
	defer cancel()

	cutoff := time.Now().Add(-s.maxWindow)
	ids, err := s.requestRepo.ListRequestedBefore(ctx, cutoff)
	if err != nil {
		observability.SweepFailuresTotal.Inc()
		log.Printf("stale sweep failed: %v", err)
		return
	}

	for _, id := range ids {
		if err := s.dispatch.ExpireStale(ctx, id); err != nil {
			log.Printf("stale sweep: expire request=%s: %v", id, err)
		}
	}
}
