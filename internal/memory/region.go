package memory

import (
	"errors"
	"strconv"
	"sync"

	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// RegionID identifies a shared memory region.
type RegionID uint64

// String returns the decimal form.
func (r RegionID) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// Region manager errors.
var (
	ErrRegionNotFound = errors.New("region not found")
	ErrInvalidSize    = errors.New("invalid region size")
	ErrNotHeld        = errors.New("region not held by process")
)

// Allocator is the physical-memory collaborator: it backs regions with
// actual frames and is otherwise opaque to this subsystem.
type Allocator interface {
	AllocateRegion(size uint64) (RegionID, error)
	ReleaseRegion(RegionID) error
}

// Manager tracks capability-controlled, reference-counted shared
// memory regions. A region is released back to the allocator exactly
// when its total reference count reaches zero.
//
// References are accounted per holding process so that a zero-copy
// handoff (send retains, receive transfers, close releases) can be
// audited and unwound correctly.
type Manager struct {
	alloc Allocator

	mu      sync.Mutex
	regions map[RegionID]*region
}

type region struct {
	size    uint64
	total   int
	holders map[id.ProcessID]int
}

// NewManager creates a region manager backed by alloc.
func NewManager(alloc Allocator) *Manager {
	return &Manager{
		alloc:   alloc,
		regions: make(map[RegionID]*region),
	}
}

// Create allocates a region and charges the initial reference to owner.
func (m *Manager) Create(size uint64, owner id.ProcessID) (RegionID, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	regionID, err := m.alloc.AllocateRegion(size)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.regions[regionID] = &region{
		size:    size,
		total:   1,
		holders: map[id.ProcessID]int{owner: 1},
	}
	m.mu.Unlock()
	return regionID, nil
}

// Retain adds a reference charged to holder. Used when a region payload
// is enqueued: the in-flight message keeps the region alive.
func (m *Manager) Retain(regionID RegionID, holder id.ProcessID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[regionID]
	if !ok {
		return ErrRegionNotFound
	}
	r.total++
	r.holders[holder]++
	return nil
}

// Release drops one of holder's references. The region is freed when
// the total count reaches zero.
func (m *Manager) Release(regionID RegionID, holder id.ProcessID) error {
	m.mu.Lock()
	r, ok := m.regions[regionID]
	if !ok {
		m.mu.Unlock()
		return ErrRegionNotFound
	}
	if r.holders[holder] == 0 {
		m.mu.Unlock()
		return ErrNotHeld
	}
	r.holders[holder]--
	if r.holders[holder] == 0 {
		delete(r.holders, holder)
	}
	r.total--
	freed := r.total == 0
	if freed {
		delete(m.regions, regionID)
	}
	m.mu.Unlock()

	if freed {
		return m.alloc.ReleaseRegion(regionID)
	}
	return nil
}

// Transfer moves one reference between holders without touching the
// total. Used at receive time: the count taken at send moves to the
// receiving process's accounting.
func (m *Manager) Transfer(regionID RegionID, from, to id.ProcessID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[regionID]
	if !ok {
		return ErrRegionNotFound
	}
	if r.holders[from] == 0 {
		return ErrNotHeld
	}
	r.holders[from]--
	if r.holders[from] == 0 {
		delete(r.holders, from)
	}
	r.holders[to]++
	return nil
}

// Refs returns the total reference count of a region.
func (m *Manager) Refs(regionID RegionID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[regionID]
	if !ok {
		return 0, ErrRegionNotFound
	}
	return r.total, nil
}

// HolderRefs returns how many references holder has on a region.
func (m *Manager) HolderRefs(regionID RegionID, holder id.ProcessID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[regionID]
	if !ok {
		return 0
	}
	return r.holders[holder]
}

// Size returns a region's size in bytes.
func (m *Manager) Size(regionID RegionID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[regionID]
	if !ok {
		return 0, ErrRegionNotFound
	}
	return r.size, nil
}

// Count returns the number of live regions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regions)
}
