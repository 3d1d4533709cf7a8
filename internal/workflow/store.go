package workflow

import (
	"sort"
	"sync"
)

// Store holds workflow state. Get and List return copies; Update runs fn
// against the stored value with writes serialized. DeleteIf evaluates ok and
// removes the workflow in the same critical section as Update, returning the
// removed state.
type Store interface {
	Put(s *State) error
	Get(id string) (*State, error)
	Update(id string, fn func(*State) error) error
	DeleteIf(id string, ok func(*State) bool) (*State, bool)
	List() []*State
}

// MemoryStore is the in-process Store. State does not survive restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*State
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*State)}
}

func (m *MemoryStore) Put(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = s.clone()
	return nil
}

func (m *MemoryStore) Get(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return s.clone(), nil
}

// Update applies fn to a working copy and stores it only when fn succeeds.
func (m *MemoryStore) Update(id string, fn func(*State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return ErrWorkflowNotFound
	}
	c := s.clone()
	if err := fn(c); err != nil {
		return err
	}
	m.items[id] = c
	return nil
}

func (m *MemoryStore) DeleteIf(id string, ok func(*State) bool) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.items[id]
	if !found || !ok(s.clone()) {
		return nil, false
	}
	delete(m.items, id)
	return s, true
}

// List returns every workflow, oldest first.
func (m *MemoryStore) List() []*State {
	m.mu.RLock()
	out := make([]*State, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s.clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
