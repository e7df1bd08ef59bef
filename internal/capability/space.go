package capability

import "sync"

// Slot is a process-local capability handle. Slot indices are never
// globally meaningful: two processes holding the same capability will
// usually hold it under different slots.
type Slot uint32

// Space is a per-process sparse table mapping slots to capability
// refs. Freed slots are recycled before new ones are grown (reuse-first,
// O(1) amortized). A space is mutated only on behalf of its owning
// process, but grants from other processes land here too, so it still
// carries its own lock.
type Space struct {
	mu    sync.Mutex
	slots []Ref
	free  []Slot
	limit int
	used  int
}

// NewSpace creates a space bounded at limit entries. A non-positive
// limit falls back to DefaultSpaceLimit.
func NewSpace(limit int) *Space {
	if limit <= 0 {
		limit = DefaultSpaceLimit
	}
	return &Space{limit: limit}
}

// DefaultSpaceLimit bounds a space when no per-process limit is set.
const DefaultSpaceLimit = 1024

// Insert places ref into a free slot and returns it.
func (s *Space) Insert(ref Ref) (Slot, error) {
	if ref.IsZero() {
		return 0, ErrInvalidTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used >= s.limit {
		return 0, ErrSpaceFull
	}

	var slot Slot
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot] = ref
	} else {
		slot = Slot(len(s.slots))
		s.slots = append(s.slots, ref)
	}
	s.used++
	return slot, nil
}

// Get returns the ref stored at slot.
func (s *Space) Get(slot Slot) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(slot) >= len(s.slots) || s.slots[slot].IsZero() {
		return Ref{}, ErrInvalidSlot
	}
	return s.slots[slot], nil
}

// Remove detaches the ref at slot and frees the slot for reuse.
func (s *Space) Remove(slot Slot) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(slot) >= len(s.slots) || s.slots[slot].IsZero() {
		return Ref{}, ErrInvalidSlot
	}
	ref := s.slots[slot]
	s.slots[slot] = Ref{}
	s.free = append(s.free, slot)
	s.used--
	return ref, nil
}

// Len returns the number of occupied slots.
func (s *Space) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Limit returns the configured maximum.
func (s *Space) Limit() int {
	return s.limit
}

// Each calls fn for every occupied slot until fn returns false.
func (s *Space) Each(fn func(Slot, Ref) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ref := range s.slots {
		if ref.IsZero() {
			continue
		}
		if !fn(Slot(i), ref) {
			return
		}
	}
}

// Drain removes and returns all refs. Used when the owning process
// terminates.
func (s *Space) Drain() []Ref {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Ref, 0, s.used)
	for i, ref := range s.slots {
		if !ref.IsZero() {
			out = append(out, ref)
			s.slots[i] = Ref{}
		}
	}
	s.slots = s.slots[:0]
	s.free = s.free[:0]
	s.used = 0
	return out
}
