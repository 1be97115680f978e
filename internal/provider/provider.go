// Package provider is the call boundary to pluggable decision sources.
// Everything behind the Provider interface is opaque to the core: an LLM
// API, a scripted rule bot, anything that can turn an observation into an
// action. The Gateway is the only place external latency and faults enter
// the system.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/observe"
)

// Provider turns one observation into one action. Implementations must
// honor context cancellation and must be safe for concurrent calls on
// behalf of different agents.
type Provider interface {
	Name() string
	Decide(ctx context.Context, obs *observe.Observation) (action.Action, error)
}

// Errors classifying provider faults. The engine treats all of them the
// same way (fallback action, never fatal) but diagnostics record which
// kind occurred.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrTimeout         = errors.New("provider timed out")
	ErrMalformed       = errors.New("malformed provider response")
	ErrThrottled       = errors.New("provider call budget exhausted")
)

// Registry resolves opaque provider ids to implementations. New providers
// plug in by registering; nothing else in the system changes.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under an id. Re-registering an id fails.
func (r *Registry) Register(id string, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = p
	return nil
}

// Resolve looks up a provider by id.
func (r *Registry) Resolve(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
