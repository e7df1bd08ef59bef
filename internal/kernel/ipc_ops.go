package kernel

import (
	"context"
	"time"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/ipc"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/shared/id"
	"github.com/ferrous-os/ferrous/internal/tracing"

	"go.uber.org/zap"
)

// endpointPerms is the full right set on a freshly created endpoint
// capability. Attenuated copies are made with Derive.
const endpointPerms = capability.PermSend | capability.PermReceive |
	capability.PermGrant | capability.PermDerive | capability.PermManage

// CreateEndpoint creates an unconnected endpoint and places a full
// capability to it in the caller's space. Requires a System
// create_endpoint capability.
func (k *Kernel) CreateEndpoint(pid id.ProcessID) (capability.Slot, error) {
	start := time.Now()
	slot, err := k.createEndpoint(pid)
	k.observe("create_endpoint", start, err)
	return slot, err
}

func (k *Kernel) createEndpoint(pid id.ProcessID) (capability.Slot, error) {
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	if err := k.requireSystem(p, capability.SystemCreateEndpoint); err != nil {
		k.emit(events.New(events.EndpointCreated, pid, "").
			WithResult(events.ResultDenied, err))
		return 0, err
	}

	ep := k.endpoints.Create(pid, k.queueCap)
	ref := k.table.Mint(capability.KindEndpoint, endpointPerms, uint64(ep.ID()), pid)
	slot, err := p.space.Insert(ref)
	if err != nil {
		_ = k.table.Revoke(ref, pid)
		k.endpoints.Remove(ep.ID())
		return 0, err
	}

	k.emit(events.New(events.EndpointCreated, pid, "endpoint:"+ep.ID().String()))
	return slot, nil
}

// Connect joins the endpoints behind two capabilities in the caller's
// space into a bidirectional channel.
func (k *Kernel) Connect(pid id.ProcessID, a, b capability.Slot) error {
	start := time.Now()
	err := k.connect(pid, a, b)
	k.observe("connect", start, err)
	return err
}

func (k *Kernel) connect(pid id.ProcessID, a, b capability.Slot) error {
	p, err := k.process(pid)
	if err != nil {
		return err
	}
	ea, err := k.endpointAt(p, a, 0)
	if err != nil {
		return err
	}
	eb, err := k.endpointAt(p, b, 0)
	if err != nil {
		return err
	}

	if err := k.endpoints.Connect(ea.ID(), eb.ID()); err != nil {
		k.emit(events.New(events.EndpointConnected, pid, "endpoint:"+ea.ID().String()).
			WithResult(events.ResultError, err))
		return err
	}
	k.emit(events.New(events.EndpointConnected, pid, "endpoint:"+ea.ID().String()).
		WithField("peer", eb.ID().String()))
	return nil
}

// endpointAt resolves a slot to a live endpoint, checking the
// capability is an endpoint capability carrying need. A right the
// capability does not carry is a denied operation, not a capability
// fault, so it surfaces as ErrPermissionDenied.
func (k *Kernel) endpointAt(p *Process, slot capability.Slot, need capability.Permissions) (*ipc.Endpoint, error) {
	_, rec, err := k.capAt(p, slot)
	if err != nil {
		return nil, err
	}
	if rec.Kind != capability.KindEndpoint {
		return nil, capability.ErrInvalidTarget
	}
	if !rec.Permissions.Contains(need) {
		return nil, ipc.ErrPermissionDenied
	}
	return k.endpoints.Get(ipc.EndpointID(rec.Object))
}

// RegionSpan names a window of a shared region held as a capability.
type RegionSpan struct {
	Slot   capability.Slot
	Offset uint64
	Length uint64
}

// SendArgs describes one message to send. Data and Region are
// mutually exclusive: Region, when set, selects a zero-copy payload.
type SendArgs struct {
	Type      uint32
	Data      []byte
	Region    *RegionSpan
	Transfers []capability.Slot
	Timeout   time.Duration
}

// Send enqueues a message through the endpoint capability at slot,
// blocking while the peer's queue is full. Requires PermSend.
//
// Capabilities named in Transfers are moved, not copied: they leave
// the caller's space when the message is enqueued and reappear in the
// receiver's space when it is delivered. If the message cannot be
// enqueued they are restored.
func (k *Kernel) Send(ctx context.Context, pid id.ProcessID, slot capability.Slot, args SendArgs) error {
	start := time.Now()
	err := k.send(ctx, pid, slot, args, false)
	k.observe("send", start, err)
	return err
}

// TrySend is the non-blocking variant: ErrQueueFull instead of
// blocking.
func (k *Kernel) TrySend(pid id.ProcessID, slot capability.Slot, args SendArgs) error {
	start := time.Now()
	err := k.send(context.Background(), pid, slot, args, true)
	k.observe("try_send", start, err)
	return err
}

func (k *Kernel) send(ctx context.Context, pid id.ProcessID, slot capability.Slot, args SendArgs, nonblock bool) error {
	p, err := k.process(pid)
	if err != nil {
		return err
	}
	ep, err := k.endpointAt(p, slot, capability.PermSend)
	if err != nil {
		k.emit(events.New(events.MessageSent, pid, "").
			WithResult(events.ResultDenied, err))
		return err
	}
	q, err := ep.SendQueue()
	if err != nil {
		k.emit(events.New(events.MessageSent, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err))
		return err
	}

	payload, err := k.buildPayload(p, args)
	if err != nil {
		k.emit(events.New(events.MessageSent, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err))
		return err
	}

	refs, err := k.detachTransfers(p, args.Transfers)
	if err != nil {
		k.releasePayload(payload, pid)
		k.emit(events.New(events.MessageSent, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err))
		return err
	}

	msg := ipc.Message{
		Type:      args.Type,
		Payload:   payload,
		Transfers: refs,
		Causality: tracing.Child(p.Trace()),
		Sender:    pid,
	}

	if nonblock {
		err = q.TryEnqueue(msg)
	} else {
		err = q.Enqueue(ctx, msg, args.Timeout)
	}
	if err != nil {
		k.restoreTransfers(p, refs)
		k.releasePayload(payload, pid)
		k.emit(events.New(events.MessageSent, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err).
			WithCausality(msg.Causality))
		return err
	}

	k.emit(events.New(events.MessageSent, pid, "endpoint:"+ep.ID().String()).
		WithField("payload", payload.Kind().String()).
		WithField("bytes", payload.Len()).
		WithCausality(msg.Causality))
	if k.metrics != nil {
		k.metrics.RecordSent(payload.Kind().String(), payload.Len())
	}
	return nil
}

// buildPayload validates and constructs the message payload. Region
// payloads take one reference on the region, charged to the sender,
// which keeps the region alive while the message is in flight.
func (k *Kernel) buildPayload(p *Process, args SendArgs) (ipc.Payload, error) {
	if args.Region == nil {
		return ipc.Inline(args.Data)
	}

	_, rec, err := k.capAt(p, args.Region.Slot)
	if err != nil {
		return ipc.Payload{}, err
	}
	if rec.Kind != capability.KindMemory {
		return ipc.Payload{}, capability.ErrInvalidTarget
	}
	if !rec.Permissions.Contains(capability.PermRead) {
		return ipc.Payload{}, capability.ErrInsufficientPermissions
	}

	rid := memory.RegionID(rec.Object)
	size, err := k.regions.Size(rid)
	if err != nil {
		return ipc.Payload{}, err
	}
	// Checked without Offset+Length, which wraps for hostile offsets.
	if args.Region.Length == 0 || args.Region.Offset > size ||
		args.Region.Length > size-args.Region.Offset {
		return ipc.Payload{}, ipc.ErrInvalidMessage
	}
	if err := k.regions.Retain(rid, p.id); err != nil {
		return ipc.Payload{}, err
	}
	return ipc.Region(rid, args.Region.Offset, args.Region.Length), nil
}

// releasePayload undoes buildPayload's region retain on a failed send.
func (k *Kernel) releasePayload(payload ipc.Payload, pid id.ProcessID) {
	if payload.Kind() != ipc.PayloadRegion {
		return
	}
	rid, _, _ := payload.RegionRef()
	if err := k.regions.Release(rid, pid); err != nil {
		k.log.Warn("failed to release in-flight region reference",
			zap.Uint64("region", uint64(rid)), zap.Error(err))
	}
}

// detachTransfers removes the named capabilities from the sender's
// space, validating each. All-or-nothing: any failure restores the
// ones already removed.
func (k *Kernel) detachTransfers(p *Process, slots []capability.Slot) ([]capability.Ref, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	refs := make([]capability.Ref, 0, len(slots))
	for _, s := range slots {
		ref, err := p.space.Remove(s)
		if err != nil {
			k.restoreTransfers(p, refs)
			return nil, ipc.ErrInvalidTransfer
		}
		if !k.table.Validate(ref) {
			// Put it back too: a revoked ref still occupies its slot
			// until the holder drops it.
			refs = append(refs, ref)
			k.restoreTransfers(p, refs)
			return nil, ipc.ErrInvalidTransfer
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// restoreTransfers reinserts detached refs after a failed send. Slots
// are reassigned; with reuse-first allocation they typically come back
// where they were.
func (k *Kernel) restoreTransfers(p *Process, refs []capability.Ref) {
	for _, ref := range refs {
		if _, err := p.space.Insert(ref); err != nil {
			k.emit(events.New(events.CapabilityDropped, p.id, capability.Describe(ref)).
				WithResult(events.ResultError, err))
		}
	}
}

// ReceivedRegion describes a zero-copy payload's window.
type ReceivedRegion struct {
	ID     memory.RegionID
	Offset uint64
	Length uint64
}

// Received is one delivered message.
type Received struct {
	Type      uint32
	Data      []byte
	Region    *ReceivedRegion
	Slots     []capability.Slot
	Causality tracing.Causality
	Sender    id.ProcessID
}

// Receive dequeues the next message from the endpoint capability at
// slot, blocking while the queue is empty. Requires PermReceive.
//
// Inline payloads are copied into buf; a message whose payload exceeds
// len(buf) fails with ErrBufferTooSmall and stays queued. A nil buf
// disables the check and the bytes are returned in a fresh slice.
// Transferred capabilities are inserted into the caller's space
// atomically with the dequeue, and the message's causality context
// becomes the caller's active context.
func (k *Kernel) Receive(ctx context.Context, pid id.ProcessID, slot capability.Slot, buf []byte, timeout time.Duration) (Received, error) {
	start := time.Now()
	rcv, err := k.receive(ctx, pid, slot, buf, timeout, false)
	k.observe("receive", start, err)
	return rcv, err
}

// TryReceive is the non-blocking variant: ErrQueueEmpty instead of
// blocking.
func (k *Kernel) TryReceive(pid id.ProcessID, slot capability.Slot, buf []byte) (Received, error) {
	start := time.Now()
	rcv, err := k.receive(context.Background(), pid, slot, buf, 0, true)
	k.observe("try_receive", start, err)
	return rcv, err
}

func (k *Kernel) receive(ctx context.Context, pid id.ProcessID, slot capability.Slot, buf []byte, timeout time.Duration, nonblock bool) (Received, error) {
	p, err := k.process(pid)
	if err != nil {
		return Received{}, err
	}
	ep, err := k.endpointAt(p, slot, capability.PermReceive)
	if err != nil {
		k.emit(events.New(events.MessageReceived, pid, "").
			WithResult(events.ResultDenied, err))
		return Received{}, err
	}
	q, err := ep.RecvQueue()
	if err != nil {
		k.emit(events.New(events.MessageReceived, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err))
		return Received{}, err
	}

	bufCap := -1
	if buf != nil {
		bufCap = len(buf)
	}

	// Runs under the queue lock against the head message. Failure
	// leaves the message queued, so delivery and capability insertion
	// are one atomic step.
	commit := func(m *ipc.Message) error {
		inserted := make([]capability.Slot, 0, len(m.Transfers))
		undo := func() {
			for _, s := range inserted {
				_, _ = p.space.Remove(s)
			}
		}
		for _, ref := range m.Transfers {
			s, err := p.space.Insert(ref)
			if err != nil {
				undo()
				return err
			}
			inserted = append(inserted, s)
		}
		if m.Payload.Kind() == ipc.PayloadRegion {
			rid, _, _ := m.Payload.RegionRef()
			if err := k.regions.Transfer(rid, m.Sender, pid); err != nil {
				undo()
				return err
			}
		}
		m.Slots = inserted
		return nil
	}

	var msg ipc.Message
	if nonblock {
		msg, err = q.TryDequeue(bufCap, commit)
	} else {
		msg, err = q.Dequeue(ctx, bufCap, timeout, commit)
	}
	if err != nil {
		k.emit(events.New(events.MessageReceived, pid, "endpoint:"+ep.ID().String()).
			WithResult(events.ResultError, err))
		return Received{}, err
	}

	rcv := Received{
		Type:      msg.Type,
		Slots:     msg.Slots,
		Causality: msg.Causality,
		Sender:    msg.Sender,
	}
	switch msg.Payload.Kind() {
	case ipc.PayloadInline:
		data := msg.Payload.Bytes()
		if buf != nil {
			rcv.Data = buf[:copy(buf, data)]
		} else {
			rcv.Data = append([]byte(nil), data...)
		}
	case ipc.PayloadRegion:
		rid, off, length := msg.Payload.RegionRef()
		rcv.Region = &ReceivedRegion{ID: rid, Offset: off, Length: length}
	}

	// The receiver's next operations are causally downstream of this
	// message.
	p.setTrace(msg.Causality)

	k.emit(events.New(events.MessageReceived, pid, "endpoint:"+ep.ID().String()).
		WithField("payload", msg.Payload.Kind().String()).
		WithField("transfers", len(msg.Transfers)).
		WithCausality(msg.Causality))
	if k.metrics != nil {
		k.metrics.RecordReceived()
		if n := len(msg.Transfers); n > 0 {
			k.metrics.CapabilityTransfers.Add(float64(n))
		}
	}
	return rcv, nil
}

// CloseEndpoint closes the channel behind the endpoint capability at
// slot. Both sides transition to closed, blocked peers are woken with
// ErrEndpointClosed, and capabilities attached to still-queued
// messages are returned to their senders. Requires PermManage.
func (k *Kernel) CloseEndpoint(pid id.ProcessID, slot capability.Slot) error {
	start := time.Now()
	err := k.closeEndpoint(pid, slot)
	k.observe("close_endpoint", start, err)
	return err
}

func (k *Kernel) closeEndpoint(pid id.ProcessID, slot capability.Slot) error {
	p, err := k.process(pid)
	if err != nil {
		return err
	}
	ep, err := k.endpointAt(p, slot, capability.PermManage)
	if err != nil {
		k.emit(events.New(events.EndpointClosed, pid, "").
			WithResult(events.ResultDenied, err))
		return err
	}

	drained, err := k.endpoints.Close(ep.ID())
	if err != nil {
		return err
	}
	k.unwindDrained(drained)

	k.emit(events.New(events.EndpointClosed, pid, "endpoint:"+ep.ID().String()).
		WithField("drained", len(drained)))
	return nil
}

// unwindDrained returns capabilities and region references attached to
// messages that were still queued at close time. Transfers go back to
// the sender's space; if the sender is gone or its space is full the
// capability is dropped, with an audit event recording the loss.
func (k *Kernel) unwindDrained(drained []ipc.Message) {
	for _, msg := range drained {
		sender, err := k.process(msg.Sender)
		for _, ref := range msg.Transfers {
			if err != nil {
				k.emit(events.New(events.CapabilityDropped, msg.Sender, capability.Describe(ref)).
					WithResult(events.ResultError, ErrProcessNotFound))
				continue
			}
			if _, ierr := sender.space.Insert(ref); ierr != nil {
				k.emit(events.New(events.CapabilityDropped, msg.Sender, capability.Describe(ref)).
					WithResult(events.ResultError, ierr))
			}
		}
		if msg.Payload.Kind() == ipc.PayloadRegion {
			rid, _, _ := msg.Payload.RegionRef()
			if rerr := k.regions.Release(rid, msg.Sender); rerr != nil {
				k.log.Warn("failed to release drained region reference",
					zap.Uint64("region", uint64(rid)), zap.Error(rerr))
			}
		}
	}
}

// EndpointInfo is an introspection snapshot of one endpoint.
type EndpointInfo struct {
	ID               ipc.EndpointID `json:"id"`
	Owner            id.ProcessID   `json:"owner"`
	State            string         `json:"state"`
	Peer             ipc.EndpointID `json:"peer,omitempty"`
	QueueDepth       int            `json:"queue_depth"`
	BlockedSenders   int            `json:"blocked_senders"`
	BlockedReceivers int            `json:"blocked_receivers"`
}

// ListEndpoints returns snapshots of all registered endpoints.
func (k *Kernel) ListEndpoints() []EndpointInfo {
	var out []EndpointInfo
	k.endpoints.Each(func(ep *ipc.Endpoint) {
		q := ep.Queue()
		out = append(out, EndpointInfo{
			ID:               ep.ID(),
			Owner:            ep.Owner(),
			State:            ep.State().String(),
			Peer:             ep.Peer(),
			QueueDepth:       q.Len(),
			BlockedSenders:   q.BlockedSenders(),
			BlockedReceivers: q.BlockedReceivers(),
		})
	})
	return out
}
