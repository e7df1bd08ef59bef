package memory

import "sync"

// HeapAllocator backs regions with ordinary heap buffers. It stands in
// for the physical frame allocator in the daemon and in tests.
type HeapAllocator struct {
	mu   sync.Mutex
	next RegionID
	bufs map[RegionID][]byte
}

// NewHeapAllocator creates an empty heap allocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{bufs: make(map[RegionID][]byte)}
}

// AllocateRegion implements Allocator.
func (h *HeapAllocator) AllocateRegion(size uint64) (RegionID, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	h.bufs[h.next] = make([]byte, size)
	return h.next, nil
}

// ReleaseRegion implements Allocator.
func (h *HeapAllocator) ReleaseRegion(regionID RegionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.bufs[regionID]; !ok {
		return ErrRegionNotFound
	}
	delete(h.bufs, regionID)
	return nil
}

// Bytes exposes a region's backing buffer for direct reads and writes.
// Zero-copy: both sides of a channel see the same slice.
func (h *HeapAllocator) Bytes(regionID RegionID) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.bufs[regionID]
	return buf, ok
}
