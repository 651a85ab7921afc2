package workspace

import (
	"sort"
	"sync"
)

// Store holds every resident workspace. Workspaces are never evicted.
type Store struct {
	workspaces map[string]*Workspace
	mu         sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		workspaces: make(map[string]*Workspace),
	}
}

// Returns the resident workspace with the given id
func (s *Store) Get(id string) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[id]
	return w, ok
}

// Seed makes a loaded document resident. If another load won the race the
// already resident workspace is kept, so nothing applied to it is lost.
func (s *Store) Seed(id string, state map[string]interface{}) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workspaces[id]; ok {
		return w
	}
	w := New(id, state)
	s.workspaces[id] = w
	return w
}

// Ids of all resident workspaces, sorted
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}
