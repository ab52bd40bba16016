package override

import (
	"context"
	"sort"
	"sync"
)

// Store persists override states by feature key. Saving Default removes the
// stored value; loading a missing key returns Default without error.
type Store interface {
	Load(ctx context.Context, key string) (OverrideState, error)
	Save(ctx context.Context, key string, state OverrideState) error
}

// Lister is implemented by stores that can enumerate their stored keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// WriteTarget is implemented by stores whose Save target is not the only
// place Load reads from. StoredOverride reports what Save would overwrite.
type WriteTarget interface {
	StoredOverride(ctx context.Context, key string) (OverrideState, error)
}

// ReadOnlyStore is implemented by stores that reject writes.
type ReadOnlyStore interface {
	ReadOnly() bool
}

// MemoryStore keeps overrides in process memory. The zero value is ready to
// use.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]OverrideState
}

// NewMemoryStore returns a MemoryStore seeded with states. Default entries
// are dropped.
func NewMemoryStore(states map[string]OverrideState) *MemoryStore {
	store := &MemoryStore{states: make(map[string]OverrideState, len(states))}
	for key, state := range states {
		if state != Default {
			store.states[key] = state
		}
	}
	return store
}

func (s *MemoryStore) Load(ctx context.Context, key string) (OverrideState, error) {
	if err := ctx.Err(); err != nil {
		return Default, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key], nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, state OverrideState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !state.Valid() {
		return ErrInvalidOverrideState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == Default {
		delete(s.states, key)
		return nil
	}
	if s.states == nil {
		s.states = make(map[string]OverrideState)
	}
	s.states[key] = state
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.states))
	for key := range s.states {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
