// Package scheduler fires refresh triggers on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Trigger is called on every tick.
type Trigger func(ctx context.Context)

// Scheduler fires once after an initial delay and then every interval.
// Ticks missed while a trigger is running are coalesced into one.
type Scheduler struct {
	initialDelay time.Duration
	interval     time.Duration
	trigger      Trigger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a scheduler.
func New(initialDelay, interval time.Duration, trigger Trigger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &Scheduler{
		initialDelay: initialDelay,
		interval:     interval,
		trigger:      trigger,
	}
}

// Start launches the scheduler goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	zlog.Info().Msgf("scheduler started: initial_delay=%s interval=%s", s.initialDelay, s.interval)
	go s.loop(ctx, s.done)
}

// Stop stops the scheduler and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	zlog.Info().Msg("scheduler stopped")
}

// Done is closed when the scheduler loop exits. It is nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	zlog.Debug().Msg("scheduler tick")
	s.trigger(ctx)
}
