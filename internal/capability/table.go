package capability

import (
	"fmt"
	"sync"

	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

const tableShards = 32

// Table is the global, kernel-owned store of capability metadata.
// Records are indexed by 128-bit ids and guarded by sharded locks so
// unrelated entries never serialize on each other.
//
// Revocation bumps the entry's generation, instantly invalidating all
// outstanding refs without enumerating holders. Records are reclaimed
// lazily by Sweep, never while an operation may still look them up.
type Table struct {
	sink   events.Sink
	shards [tableShards]tableShard
}

type tableShard struct {
	mu      sync.RWMutex
	records map[ID]*record
}

type record struct {
	generation uint64
	kind       Kind
	perms      Permissions
	object     uint64
	parent     ID
	children   []ID
	revoked    bool
}

// NewTable creates an empty capability table emitting to sink.
func NewTable(sink events.Sink) *Table {
	if sink == nil {
		sink = events.Nop{}
	}
	t := &Table{sink: sink}
	for i := range t.shards {
		t.shards[i].records = make(map[ID]*record)
	}
	return t
}

func (t *Table) shard(capID ID) *tableShard {
	// First byte is uniformly random, good enough for shard selection.
	return &t.shards[capID[0]%tableShards]
}

// Mint creates a root capability. Privileged: callers are gated by the
// kernel's System capability check, not here.
func (t *Table) Mint(kind Kind, perms Permissions, object uint64, actor id.ProcessID) Ref {
	capID := NewID()
	sh := t.shard(capID)

	sh.mu.Lock()
	sh.records[capID] = &record{
		generation: 1,
		kind:       kind,
		perms:      perms,
		object:     object,
	}
	sh.mu.Unlock()

	t.sink.Emit(events.New(events.CapabilityCreated, actor, "cap:"+capID.String()).
		WithField("kind", kind.String()))

	return Ref{ID: capID, Generation: 1}
}

// Derive creates a restricted child of parent. The restriction must be
// a subset of the parent's permissions; the parent link is recorded so
// revocation cascades.
func (t *Table) Derive(parent Ref, restriction Permissions, actor id.ProcessID) (Ref, error) {
	sh := t.shard(parent.ID)

	sh.mu.RLock()
	rec, ok := sh.records[parent.ID]
	if !ok {
		sh.mu.RUnlock()
		return Ref{}, t.deriveFailed(parent, actor, ErrCapabilityNotFound)
	}
	if rec.revoked || rec.generation != parent.Generation {
		sh.mu.RUnlock()
		return Ref{}, t.deriveFailed(parent, actor, ErrCapabilityRevoked)
	}
	if !rec.perms.Contains(restriction) {
		sh.mu.RUnlock()
		return Ref{}, t.deriveFailed(parent, actor, ErrInvalidDerivation)
	}
	kind, object := rec.kind, rec.object
	sh.mu.RUnlock()

	// Insert the child first, then link it under the parent while
	// re-validating. A revocation racing between the two steps either
	// sees the linked child and cascades, or the re-validation fails
	// and the orphan child is removed here. Never both, never neither.
	childID := NewID()
	child := &record{
		generation: 1,
		kind:       kind,
		perms:      restriction,
		object:     object,
		parent:     parent.ID,
	}

	csh := t.shard(childID)
	csh.mu.Lock()
	csh.records[childID] = child
	csh.mu.Unlock()

	sh.mu.Lock()
	rec, ok = sh.records[parent.ID]
	if !ok || rec.revoked || rec.generation != parent.Generation {
		sh.mu.Unlock()
		csh.mu.Lock()
		delete(csh.records, childID)
		csh.mu.Unlock()
		return Ref{}, t.deriveFailed(parent, actor, ErrCapabilityRevoked)
	}
	rec.children = append(rec.children, childID)
	sh.mu.Unlock()

	t.sink.Emit(events.New(events.CapabilityDerived, actor, "cap:"+childID.String()).
		WithField("parent", parent.ID.String()))

	return Ref{ID: childID, Generation: 1}, nil
}

func (t *Table) deriveFailed(parent Ref, actor id.ProcessID, err error) error {
	t.sink.Emit(events.New(events.CapabilityDerived, actor, "cap:"+parent.ID.String()).
		WithResult(events.ResultDenied, err))
	return err
}

// Revoke invalidates ref and every capability derived from it,
// depth-first. The derivation forest is acyclic by construction
// (derivation only narrows permissions and records a fresh id), so the
// walk terminates.
func (t *Table) Revoke(ref Ref, actor id.ProcessID) error {
	sh := t.shard(ref.ID)

	sh.mu.Lock()
	rec, ok := sh.records[ref.ID]
	if !ok {
		sh.mu.Unlock()
		t.sink.Emit(events.New(events.CapabilityRevoked, actor, "cap:"+ref.ID.String()).
			WithResult(events.ResultDenied, ErrCapabilityNotFound))
		return ErrCapabilityNotFound
	}
	if rec.revoked || rec.generation != ref.Generation {
		sh.mu.Unlock()
		t.sink.Emit(events.New(events.CapabilityRevoked, actor, "cap:"+ref.ID.String()).
			WithResult(events.ResultDenied, ErrCapabilityRevoked))
		return ErrCapabilityRevoked
	}
	rec.revoked = true
	rec.generation++
	children := append([]ID(nil), rec.children...)
	sh.mu.Unlock()

	count := 1
	for _, child := range children {
		count += t.revokeCascade(child)
	}

	t.sink.Emit(events.New(events.CapabilityRevoked, actor, "cap:"+ref.ID.String()).
		WithField("revoked", count))
	return nil
}

// revokeCascade revokes a derived entry unconditionally (no generation
// check: the parent's revocation invalidates the whole subtree).
func (t *Table) revokeCascade(capID ID) int {
	sh := t.shard(capID)

	sh.mu.Lock()
	rec, ok := sh.records[capID]
	if !ok || rec.revoked {
		sh.mu.Unlock()
		return 0
	}
	rec.revoked = true
	rec.generation++
	children := append([]ID(nil), rec.children...)
	sh.mu.Unlock()

	count := 1
	for _, child := range children {
		count += t.revokeCascade(child)
	}
	return count
}

// Validate reports whether ref is currently valid: O(1) lookup and
// generation comparison.
func (t *Table) Validate(ref Ref) bool {
	sh := t.shard(ref.ID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[ref.ID]
	return ok && !rec.revoked && rec.generation == ref.Generation
}

// Lookup returns a snapshot of the entry ref points at, or the reason
// it is unusable.
func (t *Table) Lookup(ref Ref) (Record, error) {
	sh := t.shard(ref.ID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[ref.ID]
	if !ok {
		return Record{}, ErrCapabilityNotFound
	}
	if rec.revoked || rec.generation != ref.Generation {
		return Record{}, ErrCapabilityRevoked
	}
	return Record{
		ID:          ref.ID,
		Generation:  rec.generation,
		Kind:        rec.kind,
		Permissions: rec.perms,
		Object:      rec.object,
		Parent:      rec.parent,
	}, nil
}

// Count returns the number of live (non-revoked) entries.
func (t *Table) Count() int {
	total := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		for _, rec := range sh.records {
			if !rec.revoked {
				total++
			}
		}
		sh.mu.RUnlock()
	}
	return total
}

// Sweep reclaims revoked records and prunes dangling child links.
// Reclamation is deferred to here so concurrent lookups never observe
// a reused slot.
func (t *Table) Sweep() int {
	swept := make(map[ID]struct{})

	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for capID, rec := range sh.records {
			if rec.revoked {
				delete(sh.records, capID)
				swept[capID] = struct{}{}
			}
		}
		sh.mu.Unlock()
	}

	if len(swept) == 0 {
		return 0
	}

	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, rec := range sh.records {
			kept := rec.children[:0]
			for _, child := range rec.children {
				if _, gone := swept[child]; !gone {
					kept = append(kept, child)
				}
			}
			rec.children = kept
		}
		sh.mu.Unlock()
	}
	return len(swept)
}

// Describe formats a ref for event targets and diagnostics.
func Describe(ref Ref) string {
	return fmt.Sprintf("cap:%s@%d", ref.ID, ref.Generation)
}
