package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowload/internal/core"
)

var _ core.DataStore = (*Store)(nil)

func TestStore_MergeIsAdditive(t *testing.T) {
	s := New()
	s.Store("27820000001", map[string]any{"token": "t"})
	s.Store("27820000001", map[string]any{"qr": "q"})

	entry, ok := s.Get("27820000001")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"token": "t", "qr": "q"}, entry)
	assert.Equal(t, 1, s.Count())
}

func TestStore_MergeOverwritesSameField(t *testing.T) {
	s := New()
	s.Store("a", map[string]any{"token": "old", "x": 1})
	s.Store("a", map[string]any{"token": "new"})

	v, ok := s.GetField("a", "token")
	require.True(t, ok)
	assert.Equal(t, "new", v)

	v, ok = s.GetField("a", "x")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	s.Store("a", map[string]any{"k": "v"})

	entry, _ := s.Get("a")
	entry["k"] = "mutated"
	entry["extra"] = true

	again, _ := s.Get("a")
	assert.Equal(t, map[string]any{"k": "v"}, again)
}

func TestStore_Missing(t *testing.T) {
	s := New()
	_, ok := s.Get("nope")
	assert.False(t, ok)

	_, ok = s.GetField("nope", "k")
	assert.False(t, ok)

	s.Store("a", map[string]any{"k": "v"})
	_, ok = s.GetField("a", "other")
	assert.False(t, ok)
	assert.False(t, s.Has("nope"))
	assert.True(t, s.Has("a"))
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := New()
	s.Store("a", nil)
	s.Store("b", nil)
	s.Store("c", nil)

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Identifiers())

	s.Clear()
	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.Identifiers())
}

func TestStore_IdentifiersKeepInsertionOrder(t *testing.T) {
	s := New()
	for _, id := range []string{"z", "a", "m", "a"} {
		s.Store(id, map[string]any{"id": id})
	}
	assert.Equal(t, []string{"z", "a", "m"}, s.Identifiers())
}

func TestStore_Concurrent(t *testing.T) {
	s := New()
	const workers = 50
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Store("shared", map[string]any{fmt.Sprintf("w%d_%d", w, i): i})
				s.Store(fmt.Sprintf("id%d", w), map[string]any{"n": i})
				s.Get("shared")
				s.Identifiers()
			}
		}(w)
	}
	wg.Wait()

	entry, ok := s.Get("shared")
	require.True(t, ok)
	assert.Len(t, entry, workers*perWorker)
	assert.Equal(t, workers+1, s.Count())
}
