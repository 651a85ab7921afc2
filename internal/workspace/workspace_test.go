package workspace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
)

func card(id interface{}, title string) protocol.Item {
	return protocol.Item{"id": id, "title": title}
}

func ids(t *testing.T, w *Workspace, key string) []interface{} {
	t.Helper()
	list, ok := w.State()[key].([]interface{})
	require.True(t, ok, "%s should hold a sequence", key)
	out := make([]interface{}, len(list))
	for i, elem := range list {
		out[i] = elem.(map[string]interface{})["id"]
	}
	return out
}

func TestMergeDeduplicatesByID(t *testing.T) {
	w := New("w1", nil)

	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{card(1.0, "x")}}))
	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{card(1.0, "x")}}))

	assert.Equal(t, map[string]interface{}{
		"cards": []interface{}{map[string]interface{}{"id": 1.0, "title": "x"}},
	}, w.State())
}

func TestMergeKeepsFirstSeenOrder(t *testing.T) {
	w := New("w1", nil)

	batches := [][]protocol.Item{
		{card("a", "1"), card("b", "2")},
		{card("c", "3"), card("a", "dup"), card("c", "dup")},
		{card("d", "4"), card("b", "dup")},
	}
	for _, batch := range batches {
		require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: batch}))
	}

	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, ids(t, w, "cards"))
	list := w.State()["cards"].([]interface{})
	assert.Equal(t, "1", list[0].(map[string]interface{})["title"], "first occurrence wins")
}

func TestMergeDistinguishesIDTypes(t *testing.T) {
	w := New("w1", nil)

	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{card(1.0, "n"), card("1", "s")}}))
	assert.Len(t, ids(t, w, "cards"), 2)
}

func TestMergeOverNonSequenceStartsEmpty(t *testing.T) {
	w := New("w1", map[string]interface{}{"cards": "not a list"})

	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{card("a", "1")}}))
	assert.Equal(t, []interface{}{"a"}, ids(t, w, "cards"))
}

func TestMergeOntoLoadedSequence(t *testing.T) {
	w := New("w1", map[string]interface{}{
		"cards": []interface{}{map[string]interface{}{"id": "a"}},
	})

	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{card("a", "dup"), card("b", "2")}}))
	assert.Equal(t, []interface{}{"a", "b"}, ids(t, w, "cards"))
}

func TestUpdateAndDelete(t *testing.T) {
	w := New("w1", map[string]interface{}{"keep": true})

	require.NoError(t, w.Apply(protocol.Update{Key: "title", Value: "Sprint"}))
	assert.Equal(t, "Sprint", w.State()["title"])
	assert.Equal(t, true, w.State()["keep"])

	require.NoError(t, w.Apply(protocol.Delete{Key: "title"}))
	_, present := w.State()["title"]
	assert.False(t, present)

	require.NoError(t, w.Apply(protocol.Delete{Key: "missing"}))
	assert.Equal(t, 1, w.Len())
}

func TestReplaceAndReset(t *testing.T) {
	w := New("w1", map[string]interface{}{"old": 1.0})

	doc := map[string]interface{}{"a": "b", "n": 2.0}
	require.NoError(t, w.Apply(protocol.Replace{Document: doc}))
	assert.Equal(t, doc, w.State())

	doc["a"] = "mutated after apply"
	assert.Equal(t, "b", w.State()["a"])

	require.NoError(t, w.Apply(protocol.Reset{}))
	assert.Empty(t, w.State())

	snapshot, err := w.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(snapshot))
}

func TestConcurrentMerges(t *testing.T) {
	w := New("w1", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every goroutine sends an overlapping pair
			items := []protocol.Item{card(fmt.Sprint(i), "x"), card(fmt.Sprint(i/2), "y")}
			assert.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: items}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids(t, w, "cards"), 50)
}

func TestStoreSeedKeepsResidentWorkspace(t *testing.T) {
	s := NewStore()

	first := s.Seed("w1", nil)
	require.NoError(t, first.Apply(protocol.Update{Key: "k", Value: "v"}))

	second := s.Seed("w1", map[string]interface{}{"stale": true})
	assert.Same(t, first, second)
	assert.Equal(t, "v", second.State()["k"])

	got, ok := s.Get("w1")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = s.Get("other")
	assert.False(t, ok)

	s.Seed("a", nil)
	assert.Equal(t, []string{"a", "w1"}, s.IDs())
	assert.Equal(t, 2, s.Len())
}
