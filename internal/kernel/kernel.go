package kernel

import (
	"errors"
	"time"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/infrastructure/logging"
	"github.com/ferrous-os/ferrous/internal/infrastructure/monitoring"
	"github.com/ferrous-os/ferrous/internal/ipc"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/sched"

	"go.uber.org/zap"
)

// ErrProcessNotFound is returned when a process id does not name a
// registered process.
var ErrProcessNotFound = errors.New("process not found")

// Options configures a kernel instance. Zero fields get working
// defaults: nop logger, nop sink, heap allocator, channel parker.
type Options struct {
	Log           *logging.Logger
	Sink          events.Sink
	Metrics       *monitoring.Metrics
	Scheduler     sched.Scheduler
	Allocator     memory.Allocator
	QueueCapacity int
	SpaceLimit    int
}

// Kernel is the syscall surface: every operation a process can invoke
// enters here, is checked against the caller's capability space, and
// leaves exactly one audit event behind.
type Kernel struct {
	log       *logging.Logger
	sink      events.Sink
	metrics   *monitoring.Metrics
	sched     sched.Scheduler
	table     *capability.Table
	endpoints *ipc.Registry
	regions   *memory.Manager

	queueCap   int
	spaceLimit int

	procs *processSet
}

// New assembles a kernel from its collaborators.
func New(opts Options) *Kernel {
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = events.Nop{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = sched.NewParker()
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewHeapAllocator()
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = ipc.DefaultQueueCapacity
	}
	if opts.SpaceLimit <= 0 {
		opts.SpaceLimit = capability.DefaultSpaceLimit
	}

	return &Kernel{
		log:        opts.Log,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		sched:      opts.Scheduler,
		table:      capability.NewTable(opts.Sink),
		endpoints:  ipc.NewRegistry(opts.Scheduler),
		regions:    memory.NewManager(opts.Allocator),
		queueCap:   opts.QueueCapacity,
		spaceLimit: opts.SpaceLimit,
		procs:      newProcessSet(),
	}
}

// Table exposes the capability table for introspection.
func (k *Kernel) Table() *capability.Table { return k.table }

// Endpoints exposes the endpoint registry for introspection.
func (k *Kernel) Endpoints() *ipc.Registry { return k.endpoints }

// Regions exposes the region manager for introspection.
func (k *Kernel) Regions() *memory.Manager { return k.regions }

// SweepCapabilities reclaims revoked capability table entries.
func (k *Kernel) SweepCapabilities() int {
	n := k.table.Sweep()
	if n > 0 {
		k.log.Debug("swept capability table", zap.Int("reclaimed", n))
	}
	return n
}

// observe records syscall metrics. Denials are distinguished from
// plain errors so the denial rate is visible on its own.
func (k *Kernel) observe(op string, start time.Time, err error) {
	if k.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case isDenial(err):
		result = "denied"
	default:
		result = "error"
	}
	k.metrics.RecordSyscall(op, result, time.Since(start))
}

func isDenial(err error) bool {
	return errors.Is(err, ipc.ErrPermissionDenied) ||
		errors.Is(err, capability.ErrInsufficientPermissions) ||
		errors.Is(err, capability.ErrCapabilityRevoked) ||
		errors.Is(err, capability.ErrInvalidDerivation)
}

// capAt resolves a slot in proc's space to a live capability record.
func (k *Kernel) capAt(proc *Process, slot capability.Slot) (capability.Ref, capability.Record, error) {
	ref, err := proc.space.Get(slot)
	if err != nil {
		return capability.Ref{}, capability.Record{}, err
	}
	rec, err := k.table.Lookup(ref)
	if err != nil {
		return capability.Ref{}, capability.Record{}, err
	}
	return ref, rec, nil
}

// requireSystem checks that proc holds a live System capability for the
// given privileged operation. Revoking that capability withdraws the
// privilege immediately.
func (k *Kernel) requireSystem(proc *Process, want capability.SystemType) error {
	found := false
	proc.space.Each(func(_ capability.Slot, ref capability.Ref) bool {
		rec, err := k.table.Lookup(ref)
		if err == nil && rec.Kind == capability.KindSystem && rec.SystemType() == want {
			found = true
			return false
		}
		return true
	})
	if !found {
		return ipc.ErrPermissionDenied
	}
	return nil
}

func (k *Kernel) emit(e events.Event) {
	k.sink.Emit(e)
}

// Stats is a point-in-time summary of kernel state.
type Stats struct {
	Processes        int `json:"processes"`
	Endpoints        int `json:"endpoints"`
	Capabilities     int `json:"capabilities"`
	Regions          int `json:"regions"`
	QueueDepth       int `json:"queue_depth"`
	BlockedSenders   int `json:"blocked_senders"`
	BlockedReceivers int `json:"blocked_receivers"`
}

// Stats gathers counts across all subsystems.
func (k *Kernel) Stats() Stats {
	s := Stats{
		Processes:    k.procs.count(),
		Capabilities: k.table.Count(),
		Regions:      k.regions.Count(),
	}
	k.endpoints.Each(func(ep *ipc.Endpoint) {
		if ep.State() != ipc.StateClosed {
			s.Endpoints++
		}
		q := ep.Queue()
		s.QueueDepth += q.Len()
		s.BlockedSenders += q.BlockedSenders()
		s.BlockedReceivers += q.BlockedReceivers()
	})
	return s
}
