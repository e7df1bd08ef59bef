package kernel

import (
	"time"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// regionPerms is the full right set on a freshly created region
// capability.
const regionPerms = capability.PermRead | capability.PermWrite |
	capability.PermMap | capability.PermGrant | capability.PermDerive

// CreateRegion allocates a shared memory region and places a full
// capability to it in the caller's space. Requires a System
// create_region capability. The caller holds the region's initial
// reference.
func (k *Kernel) CreateRegion(pid id.ProcessID, size uint64) (capability.Slot, error) {
	start := time.Now()
	slot, err := k.createRegion(pid, size)
	k.observe("create_region", start, err)
	return slot, err
}

func (k *Kernel) createRegion(pid id.ProcessID, size uint64) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	if err := k.requireSystem(p, capability.SystemCreateRegion); err != nil {
		k.emit(events.New(events.RegionCreated, pid, "").
			WithResult(events.ResultDenied, err))
		return 0, err
	}

	rid, err := k.regions.Create(size, pid)
	if err != nil {
		k.emit(events.New(events.RegionCreated, pid, "").
			WithResult(events.ResultError, err))
		return 0, err
	}

	ref := k.table.Mint(capability.KindMemory, regionPerms, uint64(rid), pid)
	slot, err := p.space.Insert(ref)
	if err != nil {
		_ = k.table.Revoke(ref, pid)
		_ = k.regions.Release(rid, pid)
		return 0, err
	}

	k.emit(events.New(events.RegionCreated, pid, "region:"+rid.String()).
		WithField("size", size))
	return slot, nil
}

// ReleaseRegion drops the caller's reference on the region behind the
// capability at slot and frees the slot. The region itself is freed
// once every reference, including those held by in-flight messages,
// is gone.
func (k *Kernel) ReleaseRegion(pid id.ProcessID, slot capability.Slot) error {
	start := time.Now()
	err := k.releaseRegion(pid, slot)
	k.observe("release_region", start, err)
	return err
}

func (k *Kernel) releaseRegion(pid id.ProcessID, slot capability.Slot) error {
	p, err := k.process(pid)
	if err != nil {
		return err
	}
	_, rec, err := k.capAt(p, slot)
	if err != nil {
		return err
	}
	if rec.Kind != capability.KindMemory {
		return capability.ErrInvalidTarget
	}

	rid := memory.RegionID(rec.Object)
	if err := k.regions.Release(rid, pid); err != nil {
		k.emit(events.New(events.RegionReleased, pid, "region:"+rid.String()).
			WithResult(events.ResultError, err))
		return err
	}
	_, _ = p.space.Remove(slot)

	k.emit(events.New(events.RegionReleased, pid, "region:"+rid.String()))
	return nil
}

// RegionInfo is an introspection snapshot of one shared region.
type RegionInfo struct {
	ID   memory.RegionID `json:"id"`
	Size uint64          `json:"size"`
	Refs int             `json:"refs"`
}

// RegionInfoFor returns the snapshot of a single region.
func (k *Kernel) RegionInfoFor(rid memory.RegionID) (RegionInfo, error) {
	size, err := k.regions.Size(rid)
	if err != nil {
		return RegionInfo{}, err
	}
	refs, err := k.regions.Refs(rid)
	if err != nil {
		return RegionInfo{}, err
	}
	return RegionInfo{ID: rid, Size: size, Refs: refs}, nil
}
