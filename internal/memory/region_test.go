package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRelease(t *testing.T) {
	alloc := NewHeapAllocator()
	mgr := NewManager(alloc)

	regionID, err := mgr.Create(4096, 1)
	require.NoError(t, err)

	refs, err := mgr.Refs(regionID)
	require.NoError(t, err)
	assert.Equal(t, 1, refs)

	_, ok := alloc.Bytes(regionID)
	assert.True(t, ok)

	require.NoError(t, mgr.Release(regionID, 1))

	// Freed at zero: gone from manager and allocator alike.
	_, err = mgr.Refs(regionID)
	assert.ErrorIs(t, err, ErrRegionNotFound)
	_, ok = alloc.Bytes(regionID)
	assert.False(t, ok)
}

func TestRetainKeepsRegionAlive(t *testing.T) {
	alloc := NewHeapAllocator()
	mgr := NewManager(alloc)

	regionID, err := mgr.Create(128, 1)
	require.NoError(t, err)
	require.NoError(t, mgr.Retain(regionID, 1))

	require.NoError(t, mgr.Release(regionID, 1))

	refs, err := mgr.Refs(regionID)
	require.NoError(t, err)
	assert.Equal(t, 1, refs)

	require.NoError(t, mgr.Release(regionID, 1))
	assert.Equal(t, 0, mgr.Count())
}

func TestTransferMovesAccounting(t *testing.T) {
	mgr := NewManager(NewHeapAllocator())

	regionID, err := mgr.Create(128, 1)
	require.NoError(t, err)

	// Sender retains for the in-flight message, then the count moves
	// to the receiver without changing the total.
	require.NoError(t, mgr.Retain(regionID, 1))
	require.NoError(t, mgr.Transfer(regionID, 1, 2))

	refs, err := mgr.Refs(regionID)
	require.NoError(t, err)
	assert.Equal(t, 2, refs)
	assert.Equal(t, 1, mgr.HolderRefs(regionID, 1))
	assert.Equal(t, 1, mgr.HolderRefs(regionID, 2))

	require.NoError(t, mgr.Release(regionID, 2))
	require.NoError(t, mgr.Release(regionID, 1))
	assert.Equal(t, 0, mgr.Count())
}

func TestReleaseWithoutHolding(t *testing.T) {
	mgr := NewManager(NewHeapAllocator())

	regionID, err := mgr.Create(128, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Release(regionID, 9), ErrNotHeld)
	assert.ErrorIs(t, mgr.Transfer(regionID, 9, 2), ErrNotHeld)
}

func TestInvalidSize(t *testing.T) {
	mgr := NewManager(NewHeapAllocator())

	_, err := mgr.Create(0, 1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestUnknownRegion(t *testing.T) {
	mgr := NewManager(NewHeapAllocator())

	assert.ErrorIs(t, mgr.Retain(99, 1), ErrRegionNotFound)
	assert.ErrorIs(t, mgr.Release(99, 1), ErrRegionNotFound)
	_, err := mgr.Size(99)
	assert.ErrorIs(t, err, ErrRegionNotFound)
}

func TestZeroCopySharedBuffer(t *testing.T) {
	alloc := NewHeapAllocator()
	mgr := NewManager(alloc)

	regionID, err := mgr.Create(16, 1)
	require.NoError(t, err)

	buf, ok := alloc.Bytes(regionID)
	require.True(t, ok)
	copy(buf, "ping")

	// A second view sees the same bytes: no copy happened.
	view, ok := alloc.Bytes(regionID)
	require.True(t, ok)
	assert.Equal(t, "ping", string(view[:4]))
}
