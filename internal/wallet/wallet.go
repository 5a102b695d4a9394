// Package wallet owns per-identity wallet state: currency balances, token
// holdings, and subscriptions, keyed by DID. Every mutation runs under a
// per-DID critical section so concurrent debits can never drive a balance
// negative.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/store"
)

// DefaultCurrency is the demo settlement currency.
const DefaultCurrency = "SAT"

// InitialBalance is granted to every freshly provisioned wallet.
const InitialBalance int64 = 10_000

// Sentinel errors.
var (
	ErrNotFound          = errors.New("wallet: unknown DID")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInsufficientToken = errors.New("wallet: insufficient token balance")
)

// State is the wallet record for one DID. Balances and token counts are
// non-negative integers in the smallest unit.
type State struct {
	DID           string           `json:"did"`
	Balances      map[string]int64 `json:"balances"`
	Tokens        map[string]int64 `json:"tokens"`
	Subscriptions []string         `json:"subscriptions,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func (s *State) clone() *State {
	out := &State{
		DID:       s.DID,
		Balances:  make(map[string]int64, len(s.Balances)),
		Tokens:    make(map[string]int64, len(s.Tokens)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	for k, v := range s.Tokens {
		out.Tokens[k] = v
	}
	out.Subscriptions = append(out.Subscriptions, s.Subscriptions...)
	return out
}

const lockShards = 32

// Store holds wallet state in memory with optional write-through to a
// resource store backend (file or redis). Locks are sharded by DID hash
// so contention stays bounded without a global mutex.
type Store struct {
	locks   [lockShards]sync.Mutex
	mu      sync.RWMutex
	wallets map[string]*State
	durable store.Store // nil for memory-only
}

// NewStore creates a wallet store. durable may be nil.
func NewStore(durable store.Store) *Store {
	return &Store{wallets: make(map[string]*State), durable: durable}
}

func (ws *Store) shard(did string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(did))
	return &ws.locks[h.Sum32()%lockShards]
}

// Provision creates a wallet with the demo balance if none exists yet.
// Returns the current state either way.
func (ws *Store) Provision(ctx context.Context, did string) (*State, error) {
	lock := ws.shard(did)
	lock.Lock()
	defer lock.Unlock()

	if s := ws.load(ctx, did); s != nil {
		return s.clone(), nil
	}
	now := time.Now().UTC()
	s := &State{
		DID:       did,
		Balances:  map[string]int64{DefaultCurrency: InitialBalance},
		Tokens:    map[string]int64{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ws.persist(ctx, s); err != nil {
		return nil, err
	}
	return s.clone(), nil
}

// Get returns a copy of the wallet for did.
func (ws *Store) Get(ctx context.Context, did string) (*State, error) {
	ws.mu.RLock()
	s, ok := ws.wallets[did]
	ws.mu.RUnlock()
	if ok {
		return s.clone(), nil
	}
	if s := ws.loadDurable(ctx, did); s != nil {
		return s.clone(), nil
	}
	return nil, ErrNotFound
}

// Put overwrites the wallet for did.
func (ws *Store) Put(ctx context.Context, did string, s *State) error {
	lock := ws.shard(did)
	lock.Lock()
	defer lock.Unlock()
	s.DID = did
	s.UpdatedAt = time.Now().UTC()
	return ws.persist(ctx, s.clone())
}

// Debit subtracts amount of currency. The read-modify-write runs under
// the DID's lock; an under-balance leaves the wallet untouched.
func (ws *Store) Debit(ctx context.Context, did, currency string, amount int64) (*State, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("wallet: debit amount must be positive, got %d", amount)
	}
	return ws.mutate(ctx, did, func(s *State) error {
		if s.Balances[currency] < amount {
			return fmt.Errorf("%w: %s balance %d < %d", ErrInsufficientFunds, currency, s.Balances[currency], amount)
		}
		s.Balances[currency] -= amount
		return nil
	})
}

// Credit adds amount of currency.
func (ws *Store) Credit(ctx context.Context, did, currency string, amount int64) (*State, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("wallet: credit amount must be positive, got %d", amount)
	}
	return ws.mutate(ctx, did, func(s *State) error {
		s.Balances[currency] += amount
		return nil
	})
}

// CreditToken adds count units of a token.
func (ws *Store) CreditToken(ctx context.Context, did, tokenID string, count int64) (*State, error) {
	if count <= 0 {
		return nil, fmt.Errorf("wallet: token credit must be positive, got %d", count)
	}
	return ws.mutate(ctx, did, func(s *State) error {
		s.Tokens[tokenID] += count
		return nil
	})
}

// BurnToken removes count units of a token.
func (ws *Store) BurnToken(ctx context.Context, did, tokenID string, count int64) (*State, error) {
	if count <= 0 {
		return nil, fmt.Errorf("wallet: token burn must be positive, got %d", count)
	}
	return ws.mutate(ctx, did, func(s *State) error {
		if s.Tokens[tokenID] < count {
			return fmt.Errorf("%w: %s holds %d < %d", ErrInsufficientToken, tokenID, s.Tokens[tokenID], count)
		}
		s.Tokens[tokenID] -= count
		return nil
	})
}

// CanAfford reports whether the wallet covers amount in currency.
func (ws *Store) CanAfford(ctx context.Context, did, currency string, amount int64) bool {
	s, err := ws.Get(ctx, did)
	if err != nil {
		return false
	}
	return s.Balances[currency] >= amount
}

func (ws *Store) mutate(ctx context.Context, did string, fn func(*State) error) (*State, error) {
	lock := ws.shard(did)
	lock.Lock()
	defer lock.Unlock()

	s := ws.load(ctx, did)
	if s == nil {
		return nil, ErrNotFound
	}
	working := s.clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	if err := ws.persist(ctx, working); err != nil {
		return nil, err
	}
	return working.clone(), nil
}

// load must run under the DID's shard lock.
func (ws *Store) load(ctx context.Context, did string) *State {
	ws.mu.RLock()
	s, ok := ws.wallets[did]
	ws.mu.RUnlock()
	if ok {
		return s
	}
	return ws.loadDurable(ctx, did)
}

func (ws *Store) loadDurable(ctx context.Context, did string) *State {
	if ws.durable == nil {
		return nil
	}
	n, err := ws.durable.Get(ctx, did)
	if err != nil {
		return nil
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	ws.mu.Lock()
	ws.wallets[did] = &s
	ws.mu.Unlock()
	return &s
}

func (ws *Store) persist(ctx context.Context, s *State) error {
	ws.mu.Lock()
	ws.wallets[s.DID] = s
	ws.mu.Unlock()
	if ws.durable == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var n linkeddata.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	return ws.durable.Put(ctx, s.DID, n)
}
