package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidOperations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Operation
	}{
		{
			name: "merge",
			raw:  `{"type":"merge","key":"cards","payload":[{"id":1,"title":"x"}]}`,
			want: Merge{Key: "cards", Items: []Item{{"id": float64(1), "title": "x"}}},
		},
		{
			name: "merge empty array",
			raw:  `{"type":"merge","key":"cards","payload":[]}`,
			want: Merge{Key: "cards", Items: []Item{}},
		},
		{
			name: "update scalar",
			raw:  `{"type":"update","key":"title","payload":"Sprint 4"}`,
			want: Update{Key: "title", Value: "Sprint 4"},
		},
		{
			name: "update null",
			raw:  `{"type":"update","key":"title","payload":null}`,
			want: Update{Key: "title"},
		},
		{
			name: "delete ignores payload",
			raw:  `{"type":"delete","key":"title","payload":42}`,
			want: Delete{Key: "title"},
		},
		{
			name: "replace",
			raw:  `{"type":"replace","payload":{"a":1}}`,
			want: Replace{Document: map[string]interface{}{"a": float64(1)}},
		},
		{
			name: "reset",
			raw:  `{"type":"reset","key":"ignored"}`,
			want: Reset{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestDecodeRejectsMalformedOperations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code ErrorCode
	}{
		{"not json", `{`, ErrCodeInvalidMessage},
		{"missing type", `{"key":"a"}`, ErrCodeInvalidMessage},
		{"unknown type", `{"type":"append","key":"a"}`, ErrCodeInvalidOperation},
		{"client sync", `{"type":"sync","payload":{}}`, ErrCodeInvalidOperation},
		{"merge without key", `{"type":"merge","payload":[]}`, ErrCodeInvalidOperation},
		{"merge object payload", `{"type":"merge","key":"a","payload":{"id":1}}`, ErrCodeInvalidOperation},
		{"merge null payload", `{"type":"merge","key":"a","payload":null}`, ErrCodeInvalidOperation},
		{"merge scalar item", `{"type":"merge","key":"a","payload":[1]}`, ErrCodeInvalidOperation},
		{"merge item without id", `{"type":"merge","key":"a","payload":[{"title":"x"}]}`, ErrCodeInvalidOperation},
		{"update without key", `{"type":"update","payload":1}`, ErrCodeInvalidOperation},
		{"delete without key", `{"type":"delete"}`, ErrCodeInvalidOperation},
		{"replace with array", `{"type":"replace","payload":[1,2]}`, ErrCodeInvalidOperation},
		{"replace with null", `{"type":"replace","payload":null}`, ErrCodeInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, op)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.code, perr.Code)
		})
	}
}

func TestEncodeOperationEnvelope(t *testing.T) {
	frame, err := EncodeOperation(Merge{Key: "cards", Items: []Item{{"id": "c1"}}})
	require.NoError(t, err)

	env, err := ParseEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, EventSharedStateUpdate, env.Event)
	assert.JSONEq(t, `{"type":"merge","key":"cards","payload":[{"id":"c1"}]}`, string(env.Data))

	frame, err = EncodeOperation(Reset{})
	require.NoError(t, err)
	env, err = ParseEnvelope(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reset"}`, string(env.Data))
}

func TestEncodeRosterAsPairs(t *testing.T) {
	frame, err := EncodeRoster([]RosterEntry{{ConnectionID: "c1", Identity: "alice"}})
	require.NoError(t, err)

	env, err := ParseEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, EventUpdateUsers, env.Event)
	assert.JSONEq(t, `[["c1","alice"]]`, string(env.Data))

	var roster []RosterEntry
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	assert.Equal(t, "alice", roster[0].Identity)

	frame, err = EncodeRoster(nil)
	require.NoError(t, err)
	env, err = ParseEnvelope(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestEncodeSync(t *testing.T) {
	frame, err := EncodeSync([]byte(`{}`))
	require.NoError(t, err)

	env, err := ParseEnvelope(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sync","payload":{}}`, string(env.Data))
}
