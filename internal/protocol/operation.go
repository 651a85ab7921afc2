package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OpType names a state operation
type OpType string

const (
	OpMerge   OpType = "merge"
	OpUpdate  OpType = "update"
	OpDelete  OpType = "delete"
	OpReplace OpType = "replace"
	OpReset   OpType = "reset"

	// Server to client only
	OpSync OpType = "sync"
)

// Operation is one validated state mutation. The concrete types are
// Merge, Update, Delete, Replace and Reset.
type Operation interface {
	Type() OpType
	isOperation()
}

// Item is an element of a merged sequence. It always carries an "id".
type Item map[string]interface{}

// ID returns the identity used for deduplication
func (i Item) ID() interface{} {
	return i["id"]
}

// Appends items whose id is not yet present under Key
type Merge struct {
	Key   string
	Items []Item
}

// Sets the value stored under Key
type Update struct {
	Key   string
	Value interface{}
}

// Removes Key
type Delete struct {
	Key string
}

// Swaps the whole document
type Replace struct {
	Document map[string]interface{}
}

// Empties the document
type Reset struct{}

func (Merge) Type() OpType   { return OpMerge }
func (Update) Type() OpType  { return OpUpdate }
func (Delete) Type() OpType  { return OpDelete }
func (Replace) Type() OpType { return OpReplace }
func (Reset) Type() OpType   { return OpReset }

func (Merge) isOperation()   {}
func (Update) isOperation()  {}
func (Delete) isOperation()  {}
func (Replace) isOperation() {}
func (Reset) isOperation()   {}

// Decode validates a client sharedStateUpdate payload and returns the
// matching Operation. Shape errors are reported as *Error.
func Decode(data []byte) (Operation, error) {
	var update StateUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, InvalidMessage(fmt.Sprintf("malformed state update: %v", err))
	}
	return DecodeUpdate(update)
}

// DecodeUpdate is Decode for an already unmarshalled StateUpdate
func DecodeUpdate(update StateUpdate) (Operation, error) {
	switch update.Type {
	case OpMerge:
		if update.Key == "" {
			return nil, InvalidOperation(update.Type, "key is required")
		}
		items, err := decodeItems(update.Payload)
		if err != nil {
			return nil, InvalidOperation(update.Type, err.Error()).WithDetail("key", update.Key)
		}
		return Merge{Key: update.Key, Items: items}, nil

	case OpUpdate:
		if update.Key == "" {
			return nil, InvalidOperation(update.Type, "key is required")
		}
		var value interface{}
		if len(update.Payload) > 0 {
			if err := json.Unmarshal(update.Payload, &value); err != nil {
				return nil, InvalidOperation(update.Type, "payload is not valid JSON")
			}
		}
		return Update{Key: update.Key, Value: value}, nil

	case OpDelete:
		if update.Key == "" {
			return nil, InvalidOperation(update.Type, "key is required")
		}
		return Delete{Key: update.Key}, nil

	case OpReplace:
		if isNull(update.Payload) {
			return nil, InvalidOperation(update.Type, "payload must be an object")
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(update.Payload, &doc); err != nil {
			return nil, InvalidOperation(update.Type, "payload must be an object")
		}
		return Replace{Document: doc}, nil

	case OpReset:
		return Reset{}, nil

	case OpSync:
		return nil, InvalidOperation(update.Type, "sync is sent by the server only")

	case "":
		return nil, InvalidMessage("missing operation type")

	default:
		return nil, InvalidOperation(update.Type, "unknown operation type")
	}
}

func decodeItems(payload json.RawMessage) ([]Item, error) {
	if isNull(payload) {
		return nil, fmt.Errorf("payload must be an array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("payload must be an array")
	}
	items := make([]Item, 0, len(raw))
	for i, elem := range raw {
		var item Item
		if isNull(elem) || json.Unmarshal(elem, &item) != nil {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		if item.ID() == nil {
			return nil, fmt.Errorf("item %d has no id", i)
		}
		items = append(items, item)
	}
	return items, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Encode renders op in its broadcast form
func Encode(op Operation) (StateUpdate, error) {
	update := StateUpdate{Type: op.Type()}

	var payload interface{}
	switch o := op.(type) {
	case Merge:
		update.Key = o.Key
		payload = o.Items
	case Update:
		update.Key = o.Key
		payload = o.Value
	case Delete:
		update.Key = o.Key
	case Replace:
		payload = o.Document
	case Reset:
	default:
		return update, fmt.Errorf("unsupported operation %T", op)
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return update, fmt.Errorf("failed to encode %s payload: %w", op.Type(), err)
		}
		update.Payload = raw
	}
	return update, nil
}
