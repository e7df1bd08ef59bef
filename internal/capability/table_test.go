package capability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndValidate(t *testing.T) {
	table := NewTable(nil)

	ref := table.Mint(KindEndpoint, PermAll, 42, 1)

	assert.True(t, table.Validate(ref))

	rec, err := table.Lookup(ref)
	require.NoError(t, err)
	assert.Equal(t, KindEndpoint, rec.Kind)
	assert.Equal(t, uint64(42), rec.Object)
	assert.Equal(t, PermAll, rec.Permissions)
}

func TestValidateUnknownRef(t *testing.T) {
	table := NewTable(nil)

	assert.False(t, table.Validate(Ref{ID: NewID(), Generation: 1}))
}

func TestDeriveSubsetRule(t *testing.T) {
	table := NewTable(nil)
	parent := table.Mint(KindEndpoint, PermSend|PermReceive, 1, 1)

	tests := []struct {
		name        string
		restriction Permissions
		wantErr     error
	}{
		{"proper subset succeeds", PermSend, nil},
		{"equal set succeeds", PermSend | PermReceive, nil},
		{"superset fails", PermSend | PermReceive | PermGrant, ErrInvalidDerivation},
		{"disjoint fails", PermWrite, ErrInvalidDerivation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child, err := table.Derive(parent, tt.restriction, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, table.Validate(child))

			rec, err := table.Lookup(child)
			require.NoError(t, err)
			assert.Equal(t, tt.restriction, rec.Permissions)
			assert.Equal(t, parent.ID, rec.Parent)
		})
	}
}

func TestRevokeInvalidatesOutstandingCopies(t *testing.T) {
	table := NewTable(nil)
	ref := table.Mint(KindEndpoint, PermAll, 1, 1)
	copy1, copy2 := ref, ref

	require.NoError(t, table.Revoke(ref, 1))

	// Every copy dies at once: no holder enumeration needed.
	assert.False(t, table.Validate(copy1))
	assert.False(t, table.Validate(copy2))

	_, err := table.Lookup(ref)
	assert.ErrorIs(t, err, ErrCapabilityRevoked)
}

func TestRevokeCascade(t *testing.T) {
	table := NewTable(nil)

	// root -> a -> b, root -> c, plus an unrelated sibling tree.
	root := table.Mint(KindEndpoint, PermAll, 1, 1)
	a, err := table.Derive(root, PermSend|PermReceive, 1)
	require.NoError(t, err)
	b, err := table.Derive(a, PermSend, 1)
	require.NoError(t, err)
	c, err := table.Derive(root, PermReceive, 1)
	require.NoError(t, err)

	other := table.Mint(KindEndpoint, PermAll, 2, 1)
	otherChild, err := table.Derive(other, PermSend, 1)
	require.NoError(t, err)

	require.NoError(t, table.Revoke(a, 1))

	// a's subtree is dead, nothing else is.
	assert.False(t, table.Validate(a))
	assert.False(t, table.Validate(b))
	assert.True(t, table.Validate(root))
	assert.True(t, table.Validate(c))
	assert.True(t, table.Validate(other))
	assert.True(t, table.Validate(otherChild))
}

func TestRevokeRootCascadesWholeTree(t *testing.T) {
	table := NewTable(nil)

	root := table.Mint(KindEndpoint, PermAll, 1, 1)
	refs := []Ref{root}
	parent := root
	for i := 0; i < 10; i++ {
		child, err := table.Derive(parent, PermSend, 1)
		require.NoError(t, err)
		refs = append(refs, child)
		parent = child
	}

	require.NoError(t, table.Revoke(root, 1))

	for _, ref := range refs {
		assert.False(t, table.Validate(ref))
	}
}

func TestRevokeTwiceFails(t *testing.T) {
	table := NewTable(nil)
	ref := table.Mint(KindEndpoint, PermAll, 1, 1)

	require.NoError(t, table.Revoke(ref, 1))
	assert.ErrorIs(t, table.Revoke(ref, 1), ErrCapabilityRevoked)
}

func TestDeriveFromRevokedFails(t *testing.T) {
	table := NewTable(nil)
	ref := table.Mint(KindEndpoint, PermAll, 1, 1)
	require.NoError(t, table.Revoke(ref, 1))

	_, err := table.Derive(ref, PermSend, 1)
	assert.ErrorIs(t, err, ErrCapabilityRevoked)
}

func TestSweepReclaimsRevoked(t *testing.T) {
	table := NewTable(nil)

	root := table.Mint(KindEndpoint, PermAll, 1, 1)
	child, err := table.Derive(root, PermSend, 1)
	require.NoError(t, err)
	keep := table.Mint(KindMemory, PermRead, 2, 1)

	require.NoError(t, table.Revoke(root, 1))

	assert.Equal(t, 1, table.Count())
	assert.Equal(t, 2, table.Sweep())
	assert.Equal(t, 1, table.Count())

	assert.True(t, table.Validate(keep))
	assert.False(t, table.Validate(root))
	assert.False(t, table.Validate(child))
}

func TestConcurrentDeriveAndRevoke(t *testing.T) {
	table := NewTable(nil)
	root := table.Mint(KindEndpoint, PermAll, 1, 1)

	var wg sync.WaitGroup
	derived := make([][]Ref, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				child, err := table.Derive(root, PermSend, 1)
				if err != nil {
					return // root revoked under us
				}
				derived[i] = append(derived[i], child)
			}
		}(i)
	}

	wg.Wait()
	require.NoError(t, table.Revoke(root, 1))

	// No over- or under-revocation: every derivation that succeeded
	// must be dead after the root is revoked.
	for _, refs := range derived {
		for _, ref := range refs {
			assert.False(t, table.Validate(ref))
		}
	}
}
