package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef() Ref {
	return Ref{ID: NewID(), Generation: 1}
}

func TestSpaceInsertGetRemove(t *testing.T) {
	space := NewSpace(16)
	ref := testRef()

	slot, err := space.Insert(ref)
	require.NoError(t, err)

	got, err := space.Get(slot)
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	removed, err := space.Remove(slot)
	require.NoError(t, err)
	assert.Equal(t, ref, removed)

	_, err = space.Get(slot)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSpaceSlotReuse(t *testing.T) {
	space := NewSpace(16)

	a, err := space.Insert(testRef())
	require.NoError(t, err)
	b, err := space.Insert(testRef())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = space.Remove(a)
	require.NoError(t, err)

	// Freed slots are recycled before the table grows.
	c, err := space.Insert(testRef())
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestSpaceFull(t *testing.T) {
	space := NewSpace(2)

	_, err := space.Insert(testRef())
	require.NoError(t, err)
	_, err = space.Insert(testRef())
	require.NoError(t, err)

	_, err = space.Insert(testRef())
	assert.ErrorIs(t, err, ErrSpaceFull)

	// Space frees up after removal.
	_, err = space.Remove(0)
	require.NoError(t, err)
	_, err = space.Insert(testRef())
	assert.NoError(t, err)
}

func TestSpaceInvalidSlot(t *testing.T) {
	space := NewSpace(4)

	_, err := space.Get(99)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = space.Remove(99)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSpaceRejectsZeroRef(t *testing.T) {
	space := NewSpace(4)

	_, err := space.Insert(Ref{})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSpaceDrain(t *testing.T) {
	space := NewSpace(8)

	refs := []Ref{testRef(), testRef(), testRef()}
	for _, ref := range refs {
		_, err := space.Insert(ref)
		require.NoError(t, err)
	}

	drained := space.Drain()
	assert.ElementsMatch(t, refs, drained)
	assert.Equal(t, 0, space.Len())

	_, err := space.Insert(testRef())
	assert.NoError(t, err)
}

func TestSpaceEach(t *testing.T) {
	space := NewSpace(8)
	ref := testRef()
	slot, err := space.Insert(ref)
	require.NoError(t, err)

	found := false
	space.Each(func(s Slot, r Ref) bool {
		if s == slot && r == ref {
			found = true
		}
		return true
	})
	assert.True(t, found)
}
