// Package strategy holds the pluggable decision policies an agent
// consults when it lands on a resource. A strategy inspects the node and
// either proposes an operation to execute, a link to follow, or nothing.
package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Situation is everything a strategy may consider when deciding.
type Situation struct {
	Resource linkeddata.Node
	// Balance is the agent's local estimate of its spendable balance.
	Balance int64
	// MaxPrice caps what the agent is willing to pay for a single item.
	MaxPrice int64
	// Visited reports whether a URL was already dereferenced this run.
	Visited func(url string) bool
}

// Decision is a strategy's proposal.
type Decision struct {
	// ShouldExecute selects Operation + Input over navigation.
	ShouldExecute bool
	Operation     linkeddata.Operation
	Input         map[string]any
	// NavigateTo proposes following a link instead of executing.
	NavigateTo string
	// Strategy names the policy that produced this decision.
	Strategy string
	Reason   string
	// Priority orders proposals across strategies; higher wins.
	Priority int
}

// Strategy is one decision policy.
type Strategy interface {
	Name() string
	Description() string
	// TriggerTypes lists the resource types the strategy reacts to.
	TriggerTypes() []string
	// Evaluate returns a decision and whether the strategy has one.
	Evaluate(ctx context.Context, sit Situation) (Decision, bool)
}

// Registry indexes strategies by the resource types they trigger on.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a strategy. Registration order breaks priority ties.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	r.strategies = append(r.strategies, s)
	r.mu.Unlock()
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// For returns the strategies whose trigger types intersect the node's
// declared types.
func (r *Registry) For(n linkeddata.Node) []Strategy {
	types := make(map[string]bool)
	for _, t := range n.Types() {
		types[t] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Strategy
	for _, s := range r.strategies {
		for _, t := range s.TriggerTypes() {
			if types[t] {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Decide evaluates every matching strategy and returns the highest
// priority decision, or (zero, false) when none proposes anything.
func (r *Registry) Decide(ctx context.Context, sit Situation) (Decision, bool) {
	var decisions []Decision
	for _, s := range r.For(sit.Resource) {
		if d, ok := s.Evaluate(ctx, sit); ok {
			decisions = append(decisions, d)
		}
	}
	if len(decisions) == 0 {
		return Decision{}, false
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Priority > decisions[j].Priority
	})
	return decisions[0], true
}
