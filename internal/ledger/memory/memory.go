package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Store keeps each owner's ledger in its own shard. Operations on one owner
// serialize on that shard's lock; different owners never contend. Shards are
// created by writes only, so reads for unknown owners allocate nothing.
type Store struct {
	entities core.EntitySet
	now      func() time.Time

	mu     sync.Mutex
	shards map[string]*shard
}

type shard struct {
	mu      sync.RWMutex
	items   []core.Transaction
	tracked map[string]struct{}
}

var _ ledger.Store = (*Store)(nil)

func New(entities core.EntitySet) *Store {
	return &Store{
		entities: entities,
		now:      func() time.Time { return time.Now().UTC() },
		shards:   make(map[string]*shard),
	}
}

// WithClock replaces the timestamp source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// shard returns the owner's shard, creating it on first write.
func (s *Store) shard(ownerID string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[ownerID]
	if !ok {
		sh = &shard{tracked: make(map[string]struct{})}
		s.shards[ownerID] = sh
	}
	return sh
}

// lookup returns the owner's shard or nil.
func (s *Store) lookup(ownerID string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shards[ownerID]
}

// Append stores the transaction and returns it with its generated id.
func (s *Store) Append(_ context.Context, ownerID, entity string, kind core.Kind, amount core.Amount, description string) (core.Transaction, error) {
	d, err := ledger.Validate(s.entities, ownerID, entity, kind, amount, description)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     d.OwnerID,
		Entity:      d.Entity,
		Kind:        d.Kind,
		Amount:      d.Amount,
		Description: d.Description,
		Timestamp:   s.now(),
	}
	sh := s.shard(ownerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.items = append(sh.items, tx)
	return tx, nil
}

// Scan returns a copy of the owner's matching transactions, oldest first.
func (s *Store) Scan(_ context.Context, ownerID string, f core.Filter) ([]core.Transaction, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	f, err := ledger.CanonicalFilter(s.entities, f)
	if err != nil {
		return nil, err
	}
	sh := s.lookup(ownerID)
	if sh == nil {
		return []core.Transaction{}, nil
	}
	sh.mu.RLock()
	out := make([]core.Transaction, 0, len(sh.items))
	for _, tx := range sh.items {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	sh.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Clear drops every transaction of the owner under the shard's write lock.
func (s *Store) Clear(_ context.Context, ownerID string) (int, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return 0, err
	}
	sh := s.lookup(ownerID)
	if sh == nil {
		return 0, nil
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := len(sh.items)
	sh.items = nil
	return n, nil
}

func (s *Store) Get(_ context.Context, ownerID, id string) (core.Transaction, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}
	sh := s.lookup(ownerID)
	if sh == nil {
		return core.Transaction{}, ledger.ErrNotFound
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for _, tx := range sh.items {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, ledger.ErrNotFound
}

func (s *Store) Track(_ context.Context, ownerID, entity string) (bool, error) {
	name, err := ledger.ValidateTracked(s.entities, ownerID, entity)
	if err != nil {
		return false, err
	}
	sh := s.shard(ownerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.tracked[name]; ok {
		return false, nil
	}
	sh.tracked[name] = struct{}{}
	return true, nil
}

func (s *Store) Untrack(_ context.Context, ownerID, entity string) (bool, error) {
	name, err := ledger.ValidateTracked(s.entities, ownerID, entity)
	if err != nil {
		return false, err
	}
	sh := s.lookup(ownerID)
	if sh == nil {
		return false, nil
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.tracked[name]; !ok {
		return false, nil
	}
	delete(sh.tracked, name)
	return true, nil
}

func (s *Store) Tracked(_ context.Context, ownerID string) ([]string, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	out := []string{}
	sh := s.lookup(ownerID)
	if sh == nil {
		return out, nil
	}
	sh.mu.RLock()
	for name := range sh.tracked {
		out = append(out, name)
	}
	sh.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *Store) ClearTracked(_ context.Context, ownerID string) (int, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return 0, err
	}
	sh := s.lookup(ownerID)
	if sh == nil {
		return 0, nil
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := len(sh.tracked)
	sh.tracked = make(map[string]struct{})
	return n, nil
}

// owners reports how many shards exist.
func (s *Store) owners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shards)
}
