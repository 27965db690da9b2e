// Package scheduler runs periodic rebuild cycles on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RebuildFunc runs one build cycle.
type RebuildFunc func(ctx context.Context) error

// Scheduler triggers rebuilds on a cron schedule. A manual trigger
// shares the same single-flight guard, so overlapping builds never
// run.
type Scheduler struct {
	cron    *cron.Cron
	rebuild RebuildFunc
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler around a rebuild function.
func New(rebuild RebuildFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		rebuild: rebuild,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the rebuild job and starts the cron loop. An empty
// spec disables scheduling; manual triggers still work.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.log.Info().Msg("no rebuild schedule configured")
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Trigger(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("scheduled rebuild failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("rebuild schedule started")
	return nil
}

// Trigger runs a build cycle now unless one is already in flight.
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("rebuild already in progress, trigger skipped")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()
	if err := s.rebuild(ctx); err != nil {
		return err
	}
	s.log.Info().Dur("elapsed", time.Since(started)).Msg("rebuild finished")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
