package workspace

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
)

// A shared document edited by the connections attached to it
type Workspace struct {
	ID    string
	state map[string]interface{}
	mu    sync.RWMutex
}

// Creates a workspace holding state. A nil state is an empty document.
func New(id string, state map[string]interface{}) *Workspace {
	if state == nil {
		state = make(map[string]interface{})
	}
	return &Workspace{
		ID:    id,
		state: state,
	}
}

// Apply mutates the document. Operations on one workspace are applied one
// at a time; the returned error means the document was left untouched.
func (w *Workspace) Apply(op protocol.Operation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch o := op.(type) {
	case protocol.Merge:
		w.state[o.Key] = mergeItems(w.state[o.Key], o.Items)
	case protocol.Update:
		w.state[o.Key] = o.Value
	case protocol.Delete:
		delete(w.state, o.Key)
	case protocol.Replace:
		doc := make(map[string]interface{}, len(o.Document))
		for k, v := range o.Document {
			doc[k] = v
		}
		w.state = doc
	case protocol.Reset:
		w.state = make(map[string]interface{})
	default:
		return fmt.Errorf("workspace %s: unsupported operation %T", w.ID, op)
	}
	return nil
}

// Appends the items whose id is not present yet, in payload order. A value
// that is not a sequence is replaced by an empty one first.
func mergeItems(current interface{}, items []protocol.Item) []interface{} {
	existing, _ := current.([]interface{})

	merged := make([]interface{}, 0, len(existing)+len(items))
	seen := make(map[string]struct{}, len(existing)+len(items))
	for _, elem := range existing {
		merged = append(merged, elem)
		if id, ok := itemID(elem); ok {
			seen[id] = struct{}{}
		}
	}

	for _, item := range items {
		id, ok := itemID(item)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, map[string]interface{}(item))
	}
	return merged
}

// Ids compare by their JSON encoding, so 1 and "1" are distinct
func itemID(elem interface{}) (string, bool) {
	var id interface{}
	switch e := elem.(type) {
	case map[string]interface{}:
		id = e["id"]
	case protocol.Item:
		id = e["id"]
	default:
		return "", false
	}
	if id == nil {
		return "", false
	}
	key, err := json.Marshal(id)
	if err != nil {
		return "", false
	}
	return string(key), true
}

// Snapshot returns the JSON encoding of the current document
func (w *Workspace) Snapshot() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	data, err := json.Marshal(w.state)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: failed to encode state: %w", w.ID, err)
	}
	return data, nil
}

// Returns a deep copy of the document
func (w *Workspace) State() map[string]interface{} {
	data, err := w.Snapshot()
	if err != nil {
		return map[string]interface{}{}
	}
	state := make(map[string]interface{})
	if err := json.Unmarshal(data, &state); err != nil {
		return map[string]interface{}{}
	}
	return state
}

// Number of top-level keys
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.state)
}
