package protocol

import (
	"encoding/json"
	"fmt"
)

// Names of the events carried in an Envelope
const (
	// Full roster of a workspace, sent whenever it changes
	EventUpdateUsers = "updateUsers"

	// State operations in both directions, and the initial sync
	EventSharedStateUpdate = "sharedStateUpdate"

	// Rejections addressed to a single connection
	EventError = "error"
)

// Envelope is the JSON frame exchanged over the WebSocket
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// StateUpdate is the payload of a sharedStateUpdate event
type StateUpdate struct {
	Type    OpType          `json:"type"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RosterEntry marshals as a [connectionId, identity] pair
type RosterEntry struct {
	ConnectionID string
	Identity     string
}

func (e RosterEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.ConnectionID, e.Identity})
}

func (e *RosterEntry) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	e.ConnectionID, e.Identity = pair[0], pair[1]
	return nil
}

// Parses a raw frame into an Envelope
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, InvalidMessage(fmt.Sprintf("malformed envelope: %v", err))
	}
	if env.Event == "" {
		return nil, InvalidMessage("missing event name")
	}
	return &env, nil
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Builds an updateUsers frame
func EncodeRoster(roster []RosterEntry) ([]byte, error) {
	if roster == nil {
		roster = []RosterEntry{}
	}
	return encodeEnvelope(EventUpdateUsers, roster)
}

// Builds the sync frame sent to a connection right after it attaches.
// state must already be a JSON object.
func EncodeSync(state []byte) ([]byte, error) {
	return encodeEnvelope(EventSharedStateUpdate, StateUpdate{
		Type:    OpSync,
		Payload: json.RawMessage(state),
	})
}

// Builds the broadcast frame for an applied operation
func EncodeOperation(op Operation) ([]byte, error) {
	update, err := Encode(op)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(EventSharedStateUpdate, update)
}

// Builds an error frame
func EncodeError(perr *Error) ([]byte, error) {
	return encodeEnvelope(EventError, perr)
}
