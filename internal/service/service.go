package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service runs the ingestion, change-detection, and dispatch loops. The
// loops never talk to each other; they share only the store and the
// subscriber registry.
type Service struct {
	ingestor   *Ingestor
	detector   *Detector
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// New aggregates the three loops.
func New(ingestor *Ingestor, detector *Detector, dispatcher *Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		ingestor:   ingestor,
		detector:   detector,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until the context is cancelled. Loop-internal errors are
// logged and retried inside each loop; none of them terminates the process.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	run := func(name string, loop func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Str("loop", name).Msg("loop terminated unexpectedly")
			}
		}()
	}

	run("ingest", s.ingestor.Run)
	run("detector", s.detector.Run)
	run("dispatcher", s.dispatcher.Run)

	wg.Wait()
	return ctx.Err()
}

// sleepCtx waits for d unless the context ends first. It reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
