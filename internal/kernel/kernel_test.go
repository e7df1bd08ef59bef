package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/ipc"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

func newTestKernel(t *testing.T) (*Kernel, *memory.HeapAllocator) {
	t.Helper()
	alloc := memory.NewHeapAllocator()
	return New(Options{Allocator: alloc}), alloc
}

// bootProcess registers a process holding every System capability.
func bootProcess(t *testing.T, k *Kernel, name string) *Process {
	t.Helper()
	p := k.CreateProcess(name, 0)
	for _, op := range []capability.SystemType{
		capability.SystemMintCapability,
		capability.SystemCreateEndpoint,
		capability.SystemCreateRegion,
		capability.SystemManageProcess,
	} {
		_, err := k.MintSystem(p.ID(), op)
		require.NoError(t, err)
	}
	return p
}

func TestCreateProcess(t *testing.T) {
	k, _ := newTestKernel(t)

	a := k.CreateProcess("init", 0)
	b := k.CreateProcess("driver", 16)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, capability.DefaultSpaceLimit, a.Space().Limit())
	assert.Equal(t, 16, b.Space().Limit())
	assert.False(t, a.Trace().IsZero())
	assert.Equal(t, 2, k.Stats().Processes)
}

func TestCreateEndpointRequiresSystemCapability(t *testing.T) {
	k, _ := newTestKernel(t)
	p := k.CreateProcess("sandbox", 0)

	_, err := k.CreateEndpoint(p.ID())
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)
}

func TestRevokedSystemCapabilityDeniesPrivilege(t *testing.T) {
	k, _ := newTestKernel(t)
	p := k.CreateProcess("driver", 0)

	slot, err := k.MintSystem(p.ID(), capability.SystemCreateEndpoint)
	require.NoError(t, err)

	_, err = k.CreateEndpoint(p.ID())
	require.NoError(t, err)

	require.NoError(t, k.Revoke(p.ID(), slot))

	_, err = k.CreateEndpoint(p.ID())
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)
}

func TestCreateCapabilityGated(t *testing.T) {
	k, _ := newTestKernel(t)
	p := k.CreateProcess("sandbox", 0)

	_, err := k.CreateCapability(p.ID(), capability.KindDevice, capability.PermRead, 7)
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)

	_, err = k.MintSystem(p.ID(), capability.SystemMintCapability)
	require.NoError(t, err)

	slot, err := k.CreateCapability(p.ID(), capability.KindDevice, capability.PermRead, 7)
	require.NoError(t, err)

	caps, err := k.ListCapabilities(p.ID())
	require.NoError(t, err)
	found := false
	for _, c := range caps {
		if c.Slot == slot {
			found = true
			assert.Equal(t, "device", c.Kind)
			assert.True(t, c.Valid)
		}
	}
	assert.True(t, found)
}

func TestDeriveAndGrantAttenuated(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")
	b := k.CreateProcess("client", 0)

	epSlot, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)

	sendOnly, err := k.Derive(a.ID(), epSlot, capability.PermSend|capability.PermGrant)
	require.NoError(t, err)

	granted, err := k.Grant(a.ID(), sendOnly, b.ID())
	require.NoError(t, err)

	// The attenuated copy cannot receive and cannot widen itself.
	_, err = k.TryReceive(b.ID(), granted, nil)
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)
	_, err = k.Derive(b.ID(), granted, capability.PermReceive)
	assert.ErrorIs(t, err, capability.ErrInvalidDerivation)
}

func TestGrantRequiresPermGrant(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")
	b := k.CreateProcess("client", 0)

	epSlot, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	sendOnly, err := k.Derive(a.ID(), epSlot, capability.PermSend)
	require.NoError(t, err)

	_, err = k.Grant(a.ID(), sendOnly, b.ID())
	assert.ErrorIs(t, err, capability.ErrInsufficientPermissions)
}

func TestRevokeInvalidatesGrantedCopy(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")
	b := k.CreateProcess("client", 0)

	epSlot, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	granted, err := k.Grant(a.ID(), epSlot, b.ID())
	require.NoError(t, err)

	require.NoError(t, k.Revoke(a.ID(), epSlot))

	err = k.TrySend(b.ID(), granted, SendArgs{Data: []byte("x")})
	assert.ErrorIs(t, err, capability.ErrCapabilityRevoked)
}

func TestDropLeavesOtherHolders(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")
	b := k.CreateProcess("client", 0)

	epSlot, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	granted, err := k.Grant(a.ID(), epSlot, b.ID())
	require.NoError(t, err)

	require.NoError(t, k.Drop(b.ID(), granted))
	_, err = k.ListCapabilities(b.ID())
	require.NoError(t, err)

	// The original holder's capability is untouched.
	caps, err := k.ListCapabilities(a.ID())
	require.NoError(t, err)
	assert.NotEmpty(t, caps)
	ref, err := a.Space().Get(epSlot)
	require.NoError(t, err)
	assert.True(t, k.Table().Validate(ref))
}

func TestDestroyProcessRequiresManage(t *testing.T) {
	k, _ := newTestKernel(t)
	a := k.CreateProcess("sandbox", 0)
	b := k.CreateProcess("victim", 0)

	assert.ErrorIs(t, k.DestroyProcess(a.ID(), b.ID()), ipc.ErrPermissionDenied)

	_, err := k.MintSystem(a.ID(), capability.SystemManageProcess)
	require.NoError(t, err)
	require.NoError(t, k.DestroyProcess(a.ID(), b.ID()))

	_, err = k.ListCapabilities(b.ID())
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

func TestDestroyProcessClosesOwnedEndpoints(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")
	b := bootProcess(t, k, "client")

	ea, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	eb, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	require.NoError(t, k.Connect(a.ID(), ea, eb))

	granted, err := k.Grant(a.ID(), eb, b.ID())
	require.NoError(t, err)

	require.NoError(t, k.DestroyProcess(a.ID(), a.ID()))

	err = k.TrySend(b.ID(), granted, SendArgs{Data: []byte("x")})
	assert.ErrorIs(t, err, ipc.ErrEndpointClosed)
}

func TestCreateRegionGated(t *testing.T) {
	k, _ := newTestKernel(t)
	p := k.CreateProcess("sandbox", 0)

	_, err := k.CreateRegion(p.ID(), 4096)
	assert.ErrorIs(t, err, ipc.ErrPermissionDenied)
}

func TestRegionLifecycle(t *testing.T) {
	k, alloc := newTestKernel(t)
	p := bootProcess(t, k, "server")

	slot, err := k.CreateRegion(p.ID(), 4096)
	require.NoError(t, err)
	assert.Equal(t, 1, k.Regions().Count())

	ref, err := p.Space().Get(slot)
	require.NoError(t, err)
	rec, err := k.Table().Lookup(ref)
	require.NoError(t, err)
	rid := memory.RegionID(rec.Object)

	buf, ok := alloc.Bytes(rid)
	require.True(t, ok)
	assert.Len(t, buf, 4096)

	require.NoError(t, k.ReleaseRegion(p.ID(), slot))
	assert.Equal(t, 0, k.Regions().Count())
	_, ok = alloc.Bytes(rid)
	assert.False(t, ok)
}

func TestSweepCapabilities(t *testing.T) {
	k, _ := newTestKernel(t)
	p := bootProcess(t, k, "server")

	epSlot, err := k.CreateEndpoint(p.ID())
	require.NoError(t, err)
	_, err = k.Derive(p.ID(), epSlot, capability.PermSend)
	require.NoError(t, err)

	require.NoError(t, k.Revoke(p.ID(), epSlot))
	assert.Equal(t, 2, k.SweepCapabilities())
}

func TestStats(t *testing.T) {
	k, _ := newTestKernel(t)
	a := bootProcess(t, k, "server")

	ea, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	eb, err := k.CreateEndpoint(a.ID())
	require.NoError(t, err)
	require.NoError(t, k.Connect(a.ID(), ea, eb))
	require.NoError(t, k.TrySend(a.ID(), ea, SendArgs{Data: []byte("x")}))

	s := k.Stats()
	assert.Equal(t, 1, s.Processes)
	assert.Equal(t, 2, s.Endpoints)
	assert.Equal(t, 1, s.QueueDepth)
	assert.GreaterOrEqual(t, s.Capabilities, 2)
}

func TestProcessIDsAreSequential(t *testing.T) {
	k, _ := newTestKernel(t)
	a := k.CreateProcess("a", 0)
	b := k.CreateProcess("b", 0)
	assert.Equal(t, id.ProcessID(uint32(a.ID())+1), b.ID())
}
