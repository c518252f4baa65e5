package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimIsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	var victim FrameID
	require.True(t, r.Victim(&victim))
	require.Equal(t, FrameID(1), victim)
}

func TestLRUReplacer_PinRemovesFromCandidates(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	var victim FrameID
	require.True(t, r.Victim(&victim))
	require.Equal(t, FrameID(2), victim)
}

func TestLRUReplacer_UnpinEvictsAtCapacity(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(2)
	require.Equal(t, 2, r.Size())

	r.Unpin(3)
	require.Equal(t, 2, r.Size(), "unpinning at capacity should evict exactly one, not grow unbounded")

	var victim FrameID
	require.True(t, r.Victim(&victim))
	require.Equal(t, FrameID(2), victim, "frame 1 should already have been evicted to make room for 3")
}

func TestLRUReplacer_VictimOnEmptyFails(t *testing.T) {
	r := NewLRUReplacer(2)
	var victim FrameID
	require.False(t, r.Victim(&victim))
}

func TestLRUReplacer_UnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(1)
	require.Equal(t, 1, r.Size())
}
