// Package gate defers refresh cycles until the network comes back.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/infra/connectivity"
)

// Gate is a paused/active flag. While enabled it waits for the checker to report
// online, then disables itself and calls onConnected once.
type Gate struct {
	checker     connectivity.Checker
	onConnected func(ctx context.Context)
	observer    func(enabled bool)

	enabled atomic.Bool
	// armed is cleared on every Enable so Run treats the next online answer as a transition.
	armedMu sync.Mutex
	armed   bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithObserver registers a function called whenever the flag changes.
func WithObserver(fn func(enabled bool)) Option {
	return func(g *Gate) {
		g.observer = fn
	}
}

// New creates a disabled gate.
func New(checker connectivity.Checker, onConnected func(ctx context.Context), opts ...Option) *Gate {
	g := &Gate{
		checker:     checker,
		onConnected: onConnected,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enable starts waiting for connectivity.
func (g *Gate) Enable() {
	g.armedMu.Lock()
	g.armed = false
	g.armedMu.Unlock()

	if g.enabled.CompareAndSwap(false, true) {
		zlog.Info().Msg("connectivity gate enabled, waiting for network")
		g.notifyObserver(true)
	}
}

// Disable stops waiting without triggering.
func (g *Gate) Disable() {
	if g.enabled.CompareAndSwap(true, false) {
		zlog.Info().Msg("connectivity gate disabled")
		g.notifyObserver(false)
	}
}

// Enabled reports whether the gate is waiting for connectivity.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// Notify handles a connectivity change. When the gate is enabled and the
// network is online the gate disables itself and triggers once. It reports
// whether it triggered.
func (g *Gate) Notify(ctx context.Context) bool {
	if !g.enabled.Load() {
		return false
	}
	if !g.checker.Online(ctx) {
		zlog.Debug().Msg("connectivity gate notified but network still offline")
		return false
	}
	return g.fire(ctx)
}

func (g *Gate) fire(ctx context.Context) bool {
	// Only one concurrent caller wins the flag.
	if !g.enabled.CompareAndSwap(true, false) {
		return false
	}
	g.notifyObserver(false)

	zlog.Info().Msg("network is back, triggering refresh")
	if g.onConnected != nil {
		g.onConnected(ctx)
	}
	return true
}

// Run polls the checker every interval while the gate is enabled and calls
// Notify on each offline to online transition. It blocks until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zlog.Debug().Msgf("connectivity gate watcher started: interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msg("connectivity gate watcher stopped")
			return
		case <-ticker.C:
			g.poll(ctx)
		}
	}
}

func (g *Gate) poll(ctx context.Context) {
	if !g.enabled.Load() {
		return
	}

	online := g.checker.Online(ctx)

	g.armedMu.Lock()
	transition := online && !g.armed
	g.armed = online
	g.armedMu.Unlock()

	if transition {
		g.fire(ctx)
	}
}

func (g *Gate) notifyObserver(enabled bool) {
	if g.observer != nil {
		g.observer(enabled)
	}
}
