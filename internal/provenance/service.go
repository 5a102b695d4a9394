// Package provenance maintains the append-only entity/activity chains
// recorded by agents and by the server, and exports them as linked data.
//
// A chain alternates resource snapshots (entities) and operation records
// (activities). The first item must be an entity; each activity's used
// entity is the chain's current entity, and a result entity recorded
// after an activity advances that pointer.
package provenance

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyprcat/gateway/internal/events"
)

// Sentinel errors.
var (
	ErrNoCurrentEntity = errors.New("provenance: chain has no current entity")
	ErrSealed          = errors.New("provenance: chain is sealed")
	ErrUnknownChain    = errors.New("provenance: unknown chain")
)

// Entity is an immutable snapshot of a resource at observation time.
type Entity struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Snapshot  map[string]any `json:"snapshot,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Activity is an immutable record of one executed operation.
type Activity struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	ActionType   string         `json:"actionType"`
	Payload      map[string]any `json:"payload,omitempty"`
	Strategy     string         `json:"strategy,omitempty"`
	Method       string         `json:"method,omitempty"`
	TargetURL    string         `json:"targetUrl,omitempty"`
	StatusCode   int            `json:"statusCode,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`
	UsedEntityID string         `json:"usedEntityId"`
	Timestamp    time.Time      `json:"timestamp"`
	AgentDID     string         `json:"agentDid"`
}

// Item is one chain element: exactly one of Entity or Activity is set.
type Item struct {
	Entity   *Entity   `json:"entity,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
}

// Chain is the per-agent append-only sequence.
type Chain struct {
	ID        string    `json:"id"`
	AgentDID  string    `json:"agentDid"`
	StartedAt time.Time `json:"startedAt"`
	Items     []Item    `json:"items"`
	Sealed    bool      `json:"sealed"`

	currentEntity string
}

// Service owns every chain, keyed by agent DID. Appends within one chain
// are serialized so the current-entity pointer advances deterministically;
// across agents there is no synchronization beyond the map lock.
type Service struct {
	mu     sync.Mutex
	chains map[string][]*Chain // agent DID -> chains, start order
	byID   map[string]*Chain
	bus    events.Emitter
}

// NewService creates the provenance service. bus may be nil.
func NewService(bus events.Emitter) *Service {
	return &Service{
		chains: make(map[string][]*Chain),
		byID:   make(map[string]*Chain),
		bus:    bus,
	}
}

// activeChain returns the agent's open chain, creating one when none
// exists or the last is sealed. Callers hold s.mu.
func (s *Service) activeChain(did string) *Chain {
	chains := s.chains[did]
	if n := len(chains); n > 0 && !chains[n-1].Sealed {
		return chains[n-1]
	}
	c := &Chain{
		ID:        "urn:uuid:" + uuid.NewString(),
		AgentDID:  did,
		StartedAt: time.Now().UTC(),
	}
	s.chains[did] = append(chains, c)
	s.byID[c.ID] = c
	return c
}

// RecordEntity appends a resource snapshot and makes it the chain's
// current entity.
func (s *Service) RecordEntity(did, label string, snapshot map[string]any) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.activeChain(did)
	if c.Sealed {
		return nil, ErrSealed
	}
	e := &Entity{
		ID:        "urn:uuid:" + uuid.NewString(),
		Label:     label,
		Snapshot:  snapshot,
		Timestamp: time.Now().UTC(),
	}
	c.Items = append(c.Items, Item{Entity: e})
	c.currentEntity = e.ID
	s.emit(c, "entity", e.ID)
	return e, nil
}

// RecordActivity appends an operation record. The chain must already hold
// an entity; UsedEntityID is always overwritten with the current one.
func (s *Service) RecordActivity(did string, a Activity) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.activeChain(did)
	if c.Sealed {
		return nil, ErrSealed
	}
	if c.currentEntity == "" {
		return nil, ErrNoCurrentEntity
	}
	a.ID = "urn:uuid:" + uuid.NewString()
	a.UsedEntityID = c.currentEntity
	a.AgentDID = did
	a.Timestamp = time.Now().UTC()
	stored := a
	c.Items = append(c.Items, Item{Activity: &stored})
	s.emit(c, "activity", stored.ID)
	return &stored, nil
}

// Seal closes the agent's active chain; sealed chains reject appends.
func (s *Service) Seal(did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chains := s.chains[did]
	if len(chains) == 0 {
		return ErrUnknownChain
	}
	chains[len(chains)-1].Sealed = true
	return nil
}

// HistoryOf returns snapshots of the agent's chains ordered by start
// time ascending. Callers iterate the result without holding any lock.
func (s *Service) HistoryOf(did string) []*Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	chains := s.chains[did]
	out := make([]*Chain, len(chains))
	for i, c := range chains {
		out[i] = snapshotChain(c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ChainByID looks up one chain, returning a snapshot.
func (s *Service) ChainByID(id string) (*Chain, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return snapshotChain(c), true
}

// snapshotChain copies a chain for handoff outside s.mu. Items are
// immutable once appended, so sharing the element pointers is safe; the
// slice header is what concurrent appends grow.
func snapshotChain(c *Chain) *Chain {
	out := &Chain{
		ID:            c.ID,
		AgentDID:      c.AgentDID,
		StartedAt:     c.StartedAt,
		Sealed:        c.Sealed,
		currentEntity: c.currentEntity,
	}
	out.Items = append([]Item(nil), c.Items...)
	return out
}

func (s *Service) emit(c *Chain, kind, itemID string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.TypeProvenanceAppend, c.ID, itemID, map[string]any{
		"agent": c.AgentDID, "kind": kind,
	})
}
