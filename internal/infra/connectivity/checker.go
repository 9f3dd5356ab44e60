// Package connectivity answers whether the network is usable for remote requests.
package connectivity

import (
	"context"
	"sync/atomic"

	zlog "github.com/rs/zerolog/log"
)

// Checker reports whether the network is currently reachable.
type Checker interface {
	Online(ctx context.Context) bool
}

// Probe is a single named connectivity check.
type Probe interface {
	Checker
	Name() string
}

// Chain is online when any of its probes is online.
// An empty chain is always online.
type Chain struct {
	probes []Probe
}

// NewChain creates a probe chain.
func NewChain(probes ...Probe) *Chain {
	return &Chain{probes: probes}
}

// Online runs the probes in order and stops at the first one that succeeds.
func (c *Chain) Online(ctx context.Context) bool {
	if len(c.probes) == 0 {
		return true
	}

	for i, p := range c.probes {
		if ctx.Err() != nil {
			return false
		}
		if p.Online(ctx) {
			zlog.Debug().Msgf("connectivity probe online: index=%d probe=%s", i+1, p.Name())
			return true
		}
		zlog.Debug().Msgf("connectivity probe offline: index=%d probe=%s", i+1, p.Name())
	}
	return false
}

// Len returns the number of probes in the chain.
func (c *Chain) Len() int {
	return len(c.probes)
}

// Static is a Checker with a settable answer.
type Static struct {
	online atomic.Bool
}

// NewStatic creates a Static checker.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Online(context.Context) bool {
	return s.online.Load()
}

// Set changes the reported state.
func (s *Static) Set(online bool) {
	s.online.Store(online)
}

func (s *Static) Name() string {
	return "static"
}
