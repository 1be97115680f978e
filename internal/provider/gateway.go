package provider

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/observe"
)

// DefaultTimeout is the hard per-call budget. The real-time pacing target
// is 0.5-1.5s per decision.
const DefaultTimeout = time.Second

// Gateway is the uniform, timeout-bounded call boundary to decision
// providers. It never blocks a game tick indefinitely: a call that misses
// its deadline is abandoned and its eventual result discarded.
type Gateway struct {
	registry *Registry
	timeout  time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates a gateway over a registry. A zero timeout gets the
// default. A nil logger falls back to the standard logger.
func NewGateway(registry *Registry, timeout time.Duration, logger *log.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Timeout returns the per-call budget.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// SetPacing caps calls to one provider id at the given rate with the given
// burst. Useful for metered LLM APIs; unset providers are uncapped. A call
// over budget fails immediately with ErrThrottled instead of queueing,
// since waiting would eat the tick's latency budget.
func (g *Gateway) SetPacing(id string, r rate.Limit, burst int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters[id] = rate.NewLimiter(r, burst)
}

func (g *Gateway) allow(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	limiter, ok := g.limiters[id]
	if !ok {
		return true
	}
	return limiter.Allow()
}

type decideResult struct {
	act action.Action
	err error
}

// Decide resolves the provider and requests a decision under the gateway's
// timeout. Timeouts, transport errors and malformed responses are returned
// as errors for the caller to convert into a fallback action; they are
// never retried within the same call (the next tick may try again). Only an
// unknown provider id is a configuration fault.
func (g *Gateway) Decide(ctx context.Context, providerID string, obs *observe.Observation) (action.Action, error) {
	p, err := g.registry.Resolve(providerID)
	if err != nil {
		return action.Noop(), err
	}
	if !g.allow(providerID) {
		return action.Noop(), fmt.Errorf("%w: %q", ErrThrottled, providerID)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Buffered so a late completion after timeout doesn't leak the
	// goroutine; the stale result is simply dropped.
	ch := make(chan decideResult, 1)
	go func() {
		act, err := p.Decide(callCtx, obs)
		ch <- decideResult{act: act, err: err}
	}()

	select {
	case <-callCtx.Done():
		g.logger.Printf("provider %s: decision for agent %d abandoned: %v",
			providerID, obs.AgentID, callCtx.Err())
		return action.Noop(), fmt.Errorf("%w: %q after %s", ErrTimeout, providerID, g.timeout)
	case res := <-ch:
		if res.err != nil {
			return action.Noop(), fmt.Errorf("provider %q: %w", providerID, res.err)
		}
		if err := res.act.Validate(); err != nil {
			return action.Noop(), fmt.Errorf("%w from %q: %v", ErrMalformed, providerID, err)
		}
		return res.act, nil
	}
}
