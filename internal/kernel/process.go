package kernel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/ipc"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/shared/id"
	"github.com/ferrous-os/ferrous/internal/tracing"

	"go.uber.org/zap"
)

// Process is a registered actor: an id, a capability space, and the
// causality context its next operation will extend.
type Process struct {
	id    id.ProcessID
	name  string
	space *capability.Space

	mu    sync.Mutex
	trace tracing.Causality
}

// ID returns the process id.
func (p *Process) ID() id.ProcessID { return p.id }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// Space returns the process's capability space.
func (p *Process) Space() *capability.Space { return p.space }

// Trace returns the active causality context.
func (p *Process) Trace() tracing.Causality {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trace
}

func (p *Process) setTrace(c tracing.Causality) {
	p.mu.Lock()
	p.trace = c
	p.mu.Unlock()
}

// processSet is the registry of live processes.
type processSet struct {
	mu      sync.RWMutex
	procs   map[id.ProcessID]*Process
	nextPID atomic.Uint32
}

func newProcessSet() *processSet {
	return &processSet{procs: make(map[id.ProcessID]*Process)}
}

func (s *processSet) add(p *Process) {
	s.mu.Lock()
	s.procs[p.id] = p
	s.mu.Unlock()
}

func (s *processSet) get(pid id.ProcessID) (*Process, error) {
	s.mu.RLock()
	p, ok := s.procs[pid]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrProcessNotFound
	}
	return p, nil
}

func (s *processSet) remove(pid id.ProcessID) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	delete(s.procs, pid)
	return p, nil
}

func (s *processSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.procs)
}

func (s *processSet) each(fn func(*Process)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.procs {
		fn(p)
	}
}

// process resolves a pid to a live process.
func (k *Kernel) process(pid id.ProcessID) (*Process, error) {
	return k.procs.get(pid)
}

// CreateProcess registers a new process with its own capability space
// and a fresh trace context. spaceLimit <= 0 uses the kernel default.
func (k *Kernel) CreateProcess(name string, spaceLimit int) *Process {
	start := time.Now()

	if spaceLimit <= 0 {
		spaceLimit = k.spaceLimit
	}
	p := &Process{
		id:    id.ProcessID(k.procs.nextPID.Add(1)),
		name:  name,
		space: capability.NewSpace(spaceLimit),
		trace: tracing.NewTrace(),
	}
	k.procs.add(p)

	k.emit(events.New(events.ProcessCreated, p.id, "process:"+name).
		WithCausality(p.trace))
	k.log.Info("process created",
		zap.Uint32("pid", uint32(p.id)),
		zap.String("name", name))
	k.observe("create_process", start, nil)
	return p
}

// DestroyProcess tears a process down: its capability space is
// drained, endpoints it created are closed with in-flight messages
// unwound, and region references it held are released. Destroying
// another process requires a System manage_process capability.
func (k *Kernel) DestroyProcess(actor, target id.ProcessID) error {
	start := time.Now()
	err := k.destroyProcess(actor, target)
	k.observe("destroy_process", start, err)
	return err
}

func (k *Kernel) destroyProcess(actor, target id.ProcessID) error {
	if actor != target {
		caller, err := k.process(actor)
		if err != nil {
			return err
		}
		if err := k.requireSystem(caller, capability.SystemManageProcess); err != nil {
			k.emit(events.New(events.ProcessDestroyed, actor, "process:"+target.String()).
				WithResult(events.ResultDenied, err))
			return err
		}
	}

	p, err := k.procs.remove(target)
	if err != nil {
		return err
	}

	refs := p.space.Drain()
	for _, ref := range refs {
		rec, err := k.table.Lookup(ref)
		if err != nil {
			continue
		}
		switch rec.Kind {
		case capability.KindEndpoint:
			eid := ipc.EndpointID(rec.Object)
			ep, err := k.endpoints.Get(eid)
			if err != nil || ep.Owner() != target {
				continue
			}
			drained, err := k.endpoints.Close(eid)
			if err == nil && drained != nil {
				k.unwindDrained(drained)
				k.emit(events.New(events.EndpointClosed, target, "endpoint:"+eid.String()).
					WithField("reason", "process_destroyed"))
			}
		case capability.KindMemory:
			rid := memory.RegionID(rec.Object)
			for k.regions.HolderRefs(rid, target) > 0 {
				if err := k.regions.Release(rid, target); err != nil {
					break
				}
			}
		}
	}

	k.emit(events.New(events.ProcessDestroyed, actor, "process:"+p.name).
		WithField("pid", uint32(target)))
	k.log.Info("process destroyed",
		zap.Uint32("pid", uint32(target)),
		zap.String("name", p.name))
	return nil
}

// ProcessInfo is an introspection snapshot of one process.
type ProcessInfo struct {
	ID           id.ProcessID      `json:"id"`
	Name         string            `json:"name"`
	Capabilities int               `json:"capabilities"`
	SpaceLimit   int               `json:"space_limit"`
	Trace        tracing.Causality `json:"trace"`
}

// ListProcesses returns snapshots of all registered processes.
func (k *Kernel) ListProcesses() []ProcessInfo {
	out := make([]ProcessInfo, 0, k.procs.count())
	k.procs.each(func(p *Process) {
		out = append(out, ProcessInfo{
			ID:           p.id,
			Name:         p.name,
			Capabilities: p.space.Len(),
			SpaceLimit:   p.space.Limit(),
			Trace:        p.Trace(),
		})
	})
	return out
}
