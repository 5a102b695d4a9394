package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// MemoryStore keeps resources in-process. Values are cloned on both write
// and read so concurrent readers never observe a half-written node.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]linkeddata.Node
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[string]linkeddata.Node)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (linkeddata.Node, error) {
	s.mu.RLock()
	n, ok := s.nodes[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, id string, n linkeddata.Node) error {
	clone := n.Clone()
	s.mu.Lock()
	s.nodes[id] = clone
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return false, nil
	}
	delete(s.nodes, id)
	return true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) FindByType(_ context.Context, typ string) ([]linkeddata.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []linkeddata.Node
	for _, n := range s.nodes {
		if linkeddata.IsOfType(n, typ) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}
