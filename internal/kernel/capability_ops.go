package kernel

import (
	"time"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/shared/id"

	"go.uber.org/zap"
)

// MintSystem grants pid a System capability for one privileged
// operation. This is the bootstrap path: the daemon calls it while
// applying the boot policy, before any process runs. It is not
// reachable through the syscall surface.
func (k *Kernel) MintSystem(pid id.ProcessID, op capability.SystemType) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	ref := k.table.Mint(capability.KindSystem, capability.PermGrant|capability.PermDerive, uint64(op), pid)
	slot, err := p.space.Insert(ref)
	if err != nil {
		_ = k.table.Revoke(ref, pid)
		return 0, err
	}
	k.log.Info("system capability granted",
		zap.Uint32("pid", uint32(pid)),
		zap.String("op", op.String()))
	return slot, nil
}

// CreateCapability mints a fresh root capability into the caller's
// space. Requires a System mint_capability capability.
func (k *Kernel) CreateCapability(pid id.ProcessID, kind capability.Kind, perms capability.Permissions, object uint64) (capability.Slot, error) {
	start := time.Now()
	slot, err := k.createCapability(pid, kind, perms, object)
	k.observe("create_capability", start, err)
	return slot, err
}

func (k *Kernel) createCapability(pid id.ProcessID, kind capability.Kind, perms capability.Permissions, object uint64) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	if err := k.requireSystem(p, capability.SystemMintCapability); err != nil {
		k.emit(events.New(events.CapabilityCreated, pid, "kind:"+kind.String()).
			WithResult(events.ResultDenied, err))
		return 0, err
	}

	ref := k.table.Mint(kind, perms, object, pid)
	slot, err := p.space.Insert(ref)
	if err != nil {
		_ = k.table.Revoke(ref, pid)
		return 0, err
	}
	return slot, nil
}

// Derive creates a restricted child of the capability at slot and
// places it in the caller's space. The parent must carry PermDerive
// and the restriction must be a subset of its permissions.
func (k *Kernel) Derive(pid id.ProcessID, slot capability.Slot, restriction capability.Permissions) (capability.Slot, error) {
	start := time.Now()
	out, err := k.derive(pid, slot, restriction)
	k.observe("derive", start, err)
	return out, err
}

func (k *Kernel) derive(pid id.ProcessID, slot capability.Slot, restriction capability.Permissions) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	ref, rec, err := k.capAt(p, slot)
	if err != nil {
		return 0, err
	}
	if !rec.Permissions.Contains(capability.PermDerive) {
		k.emit(events.New(events.CapabilityDerived, pid, capability.Describe(ref)).
			WithResult(events.ResultDenied, capability.ErrInsufficientPermissions))
		return 0, capability.ErrInsufficientPermissions
	}

	child, err := k.table.Derive(ref, restriction, pid)
	if err != nil {
		return 0, err
	}
	out, err := p.space.Insert(child)
	if err != nil {
		_ = k.table.Revoke(child, pid)
		return 0, err
	}
	return out, nil
}

// Revoke invalidates the capability at slot and everything derived
// from it, then frees the slot. Any holder of a ref may revoke it;
// restricting that is what derivation without PermDerive is for.
func (k *Kernel) Revoke(pid id.ProcessID, slot capability.Slot) error {
	start := time.Now()
	err := k.revoke(pid, slot)
	k.observe("revoke", start, err)
	return err
}

func (k *Kernel) revoke(pid id.ProcessID, slot capability.Slot) error {
	p, err := k.process(pid)
	if err != nil {
		return err
	}
	ref, err := p.space.Get(slot)
	if err != nil {
		return err
	}
	if err := k.table.Revoke(ref, pid); err != nil {
		return err
	}
	if k.metrics != nil {
		k.metrics.CapabilityRevokes.Inc()
	}
	_, _ = p.space.Remove(slot)
	return nil
}

// Grant copies the capability at slot into target's space and returns
// the slot it landed in. Requires PermGrant on the capability; the
// grantee receives the same ref, so a later revocation invalidates
// both copies at once.
func (k *Kernel) Grant(pid id.ProcessID, slot capability.Slot, target id.ProcessID) (capability.Slot, error) {
	start := time.Now()
	out, err := k.grant(pid, slot, target)
	k.observe("grant", start, err)
	return out, err
}

func (k *Kernel) grant(pid id.ProcessID, slot capability.Slot, target id.ProcessID) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	tp, err := k.process(target)
	if err != nil {
		return 0, err
	}
	ref, rec, err := k.capAt(p, slot)
	if err != nil {
		return 0, err
	}
	if !rec.Permissions.Contains(capability.PermGrant) {
		k.emit(events.New(events.CapabilityGranted, pid, capability.Describe(ref)).
			WithResult(events.ResultDenied, capability.ErrInsufficientPermissions))
		return 0, capability.ErrInsufficientPermissions
	}

	out, err := tp.space.Insert(ref)
	if err != nil {
		k.emit(events.New(events.CapabilityGranted, pid, capability.Describe(ref)).
			WithResult(events.ResultError, err))
		return 0, err
	}
	k.emit(events.New(events.CapabilityGranted, pid, capability.Describe(ref)).
		WithField("to", uint32(target)))
	return out, nil
}

// Drop removes the capability at slot from the caller's space without
// touching the table entry. Other holders are unaffected.
func (k *Kernel) Drop(pid id.ProcessID, slot capability.Slot) error {
	start := time.Now()
	p, err := k.process(pid)
	if err != nil {
		k.observe("drop", start, err)
		return err
	}
	_, err = p.space.Remove(slot)
	k.observe("drop", start, err)
	return err
}

// CapabilityInfo is an introspection snapshot of one space slot.
type CapabilityInfo struct {
	Slot        capability.Slot        `json:"slot"`
	ID          string                 `json:"id"`
	Generation  uint64                 `json:"generation"`
	Kind        string                 `json:"kind"`
	Permissions capability.Permissions `json:"permissions"`
	Valid       bool                   `json:"valid"`
}

// ListCapabilities snapshots a process's capability space.
func (k *Kernel) ListCapabilities(pid id.ProcessID) ([]CapabilityInfo, error) {
	p, err := k.process(pid)
	if err != nil {
		return nil, err
	}
	var out []CapabilityInfo
	p.space.Each(func(slot capability.Slot, ref capability.Ref) bool {
		info := CapabilityInfo{
			Slot:       slot,
			ID:         ref.ID.String(),
			Generation: ref.Generation,
		}
		if rec, err := k.table.Lookup(ref); err == nil {
			info.Kind = rec.Kind.String()
			info.Permissions = rec.Permissions
			info.Valid = true
		}
		out = append(out, info)
		return true
	})
	return out, nil
}
