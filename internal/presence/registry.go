// Package presence tracks which connections are attached to which
// workspace and under what display identity.
package presence

import (
	"sync"

	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
)

// Roster lists the attached connections of one workspace in attach order
type Roster []protocol.RosterEntry

// Identities returns the display identities in roster order
func (r Roster) Identities() []string {
	out := make([]string, len(r))
	for i, e := range r {
		out[i] = e.Identity
	}
	return out
}

// Registry is safe for concurrent use. One instance is shared by the
// whole process.
type Registry struct {
	rosters map[string]Roster
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rosters: make(map[string]Roster),
	}
}

// Attach records connectionID under workspaceID. Entries of the same
// workspace with the same identity are dropped first and their connection
// ids returned as evicted; their transports are left to the caller.
func (r *Registry) Attach(workspaceID, connectionID, identity string) (Roster, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	current := r.rosters[workspaceID]
	next := make(Roster, 0, len(current)+1)
	for _, e := range current {
		if e.ConnectionID == connectionID {
			continue
		}
		if e.Identity == identity {
			evicted = append(evicted, e.ConnectionID)
			continue
		}
		next = append(next, e)
	}
	next = append(next, protocol.RosterEntry{ConnectionID: connectionID, Identity: identity})
	r.rosters[workspaceID] = next

	return copyRoster(next), evicted
}

// Detach removes connectionID. empty reports whether the workspace has no
// attached connection left. Unknown ids are a no-op.
func (r *Registry) Detach(workspaceID, connectionID string) (roster Roster, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rosters[workspaceID]
	if !ok {
		return Roster{}, true
	}

	next := make(Roster, 0, len(current))
	for _, e := range current {
		if e.ConnectionID != connectionID {
			next = append(next, e)
		}
	}

	if len(next) == 0 {
		delete(r.rosters, workspaceID)
		return Roster{}, true
	}
	r.rosters[workspaceID] = next
	return copyRoster(next), false
}

// Roster returns the current roster of a workspace
func (r *Registry) Roster(workspaceID string) Roster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRoster(r.rosters[workspaceID])
}

// Contains reports whether connectionID holds a live entry
func (r *Registry) Contains(workspaceID, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.rosters[workspaceID] {
		if e.ConnectionID == connectionID {
			return true
		}
	}
	return false
}

// Workspaces maps every workspace with attached connections to its roster size
func (r *Registry) Workspaces() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rosters))
	for id, roster := range r.rosters {
		out[id] = len(roster)
	}
	return out
}

func copyRoster(roster Roster) Roster {
	out := make(Roster, len(roster))
	copy(out, roster)
	return out
}
