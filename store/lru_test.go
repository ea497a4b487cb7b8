package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_ReferenceScenario(t *testing.T) {
	s := NewLRU(2)

	s.Put("1", []byte("1"), 0)
	s.Put("2", []byte("2"), 0)

	v, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// "2" is now least recently used and must be the victim.
	s.Put("3", []byte("3"), 0)

	_, ok = s.Get("2")
	assert.False(t, ok)

	v, ok = s.Get("1")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	v, ok = s.Get("3")
	require.True(t, ok)
	assert.Equal(t, []byte("3"), v)
}

func TestLRU_UpdateExistingKey(t *testing.T) {
	s := NewLRU(2)

	s.Put("a", []byte("old"), 0)
	s.Put("b", []byte("b"), 0)
	s.Put("a", []byte("new"), 0)

	// Updating "a" promoted it; inserting "c" must evict "b".
	s.Put("c", []byte("c"), 0)

	_, ok := s.Get("b")
	assert.False(t, ok)

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, 2, s.Len())
}

func TestLRU_ZeroCapacity(t *testing.T) {
	s := NewLRU(0)

	s.Put("a", []byte("a"), 0)
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestLRU_TTLExpiry(t *testing.T) {
	s := NewLRU(4)

	s.Put("short", []byte("v"), 20*time.Millisecond)
	s.Put("forever", []byte("v"), 0)

	_, ok := s.Get("short")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = s.Get("short")
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, 1, s.Len(), "expired entry must be removed")

	_, ok = s.Get("forever")
	assert.True(t, ok)
}

func TestLRU_GetEntryTTL(t *testing.T) {
	s := NewLRU(4)
	s.Put("a", []byte("v"), time.Hour)

	e, ok := s.GetEntry("a")
	require.True(t, ok)
	remaining := e.TTL(time.Now())
	assert.Greater(t, remaining, 59*time.Minute)
	assert.LessOrEqual(t, remaining, time.Hour)
}

func TestLRU_Delete(t *testing.T) {
	s := NewLRU(2)
	s.Put("a", []byte("a"), 0)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestLRU_Keys(t *testing.T) {
	s := NewLRU(3)
	s.Put("a", nil, 0)
	s.Put("b", nil, 0)
	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}
