// Package router implements capability-based provider routing: it holds an
// ordered set of providers and dispatches each turn to the highest-priority
// provider whose declared capabilities satisfy the calling role's
// requirements.
package router

import (
	"context"
	"sync"

	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
)

// Router is itself a provider.Provider: every method delegates to
// selectProvider(role) so callers need not know routing happened.
type Router struct {
	mu        sync.RWMutex
	providers []provider.Provider // insertion order, for tie-breaks
}

var _ provider.Provider = (*Router)(nil)

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// Register adds a provider to the routing set.
func (r *Router) Register(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Unregister removes the first provider with the given capability name.
// Returns false if none matched.
func (r *Router) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.providers {
		if p.Capabilities().Name == name {
			r.providers = append(r.providers[:i], r.providers[i+1:]...)
			return true
		}
	}
	return false
}

// SelectProvider returns the highest-priority provider whose capabilities
// satisfy role's requirements, tie-breaking by insertion order (first
// registered with the max priority wins).
func (r *Router) SelectProvider(role provider.Role) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	required := provider.RequiredCapabilities(role)

	var best provider.Provider
	bestPriority := -1 << 31
	for _, p := range r.providers {
		caps := p.Capabilities()
		if !caps.Satisfies(required) {
			continue
		}
		if caps.Priority > bestPriority {
			best = p
			bestPriority = caps.Priority
		}
	}
	if best == nil {
		return nil, routaerr.NoSuitableProvider(string(role))
	}
	return best, nil
}

func (r *Router) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	p, err := r.SelectProvider(role)
	if err != nil {
		return "", err
	}
	return p.Run(ctx, role, agentID, prompt)
}

func (r *Router) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	p, err := r.SelectProvider(role)
	if err != nil {
		return "", err
	}
	return p.RunStreaming(ctx, role, agentID, prompt, onChunk)
}

// IsHealthy reports true if any registered provider reports agentID
// healthy, whatever its capabilities; the Provider interface passes no role
// to select by.
func (r *Router) IsHealthy(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.IsHealthy(agentID) {
			return true
		}
	}
	return false
}

func (r *Router) Interrupt(agentID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		p.Interrupt(agentID)
	}
}

func (r *Router) Cleanup(agentID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		p.Cleanup(agentID)
	}
}

func (r *Router) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		p.Shutdown()
	}
}

// Capabilities returns a synthetic record describing the router itself; not
// meaningful for routing decisions (the router is never nested inside
// another router in this design).
func (r *Router) Capabilities() provider.Capabilities {
	return provider.Capabilities{Name: "router"}
}
