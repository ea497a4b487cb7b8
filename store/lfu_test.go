package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLFU_ReferenceScenario(t *testing.T) {
	s := NewLFU(2)

	s.Put("1", []byte("1"), 0)
	s.Put("2", []byte("2"), 0)

	v, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// "2" sits alone at frequency 1 and must be the victim.
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

func TestLFU_ZeroCapacity(t *testing.T) {
	s := NewLFU(0)

	s.Put("1", []byte("1"), 0)
	_, ok := s.Get("1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestLFU_TieBreakFIFO(t *testing.T) {
	s := NewLFU(2)

	s.Put("a", []byte("a"), 0)
	s.Put("b", []byte("b"), 0)

	// Both at frequency 1: "a" entered the bucket first and must go.
	s.Put("c", []byte("c"), 0)

	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.True(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
}

func TestLFU_UpdateBumpsFrequency(t *testing.T) {
	s := NewLFU(2)

	s.Put("a", []byte("a1"), 0)
	s.Put("b", []byte("b"), 0)
	s.Put("a", []byte("a2"), 0) // update: value replaced, frequency 2

	s.Put("c", []byte("c"), 0) // evicts "b", the only frequency-1 entry

	_, ok := s.Get("b")
	assert.False(t, ok)

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("a2"), v)
}

func TestLFU_MinFreqResetOnInsert(t *testing.T) {
	s := NewLFU(2)

	s.Put("a", []byte("a"), 0)
	for i := 0; i < 5; i++ {
		_, ok := s.Get("a")
		require.True(t, ok)
	}
	s.Put("b", []byte("b"), 0)

	// "b" is the newest and least frequent; a third insert must evict it,
	// not the heavily used "a".
	s.Put("c", []byte("c"), 0)

	_, ok := s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestLFU_DeleteThenEvict(t *testing.T) {
	s := NewLFU(2)

	s.Put("a", []byte("a"), 0)
	_, _ = s.Get("a") // frequency 2
	s.Put("b", []byte("b"), 0)

	require.True(t, s.Delete("b")) // drains the minimum-frequency bucket

	s.Put("c", []byte("c"), 0)
	s.Put("d", []byte("d"), 0) // at capacity again; eviction must not panic

	assert.Equal(t, 2, s.Len())
}

func TestLFU_TTLExpiry(t *testing.T) {
	s := NewLFU(4)

	s.Put("short", []byte("v"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	_, ok := s.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestLFU_ManyEvictions(t *testing.T) {
	s := NewLFU(10)
	for i := 0; i < 100; i++ {
		s.Put(fmt.Sprintf("key-%d", i), []byte("v"), 0)
	}
	assert.Equal(t, 10, s.Len())
}
