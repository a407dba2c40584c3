// Package session implements the client-side session base (C4): a
// transport connection, a packet dispatcher, an event registry, and the
// background pump goroutine that ties them together. Peer-Linker and
// Channel-Hub client sessions embed Base and register their own message
// handlers on its Dispatcher.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/p2psignal/peerlink/cmn/nlog"
	"github.com/p2psignal/peerlink/events"
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/transport"
)

// ResultKind is the event-registry kind reserved for Success/Error reply
// correlation; every Dial-able client session reuses it, so subsystem event
// kinds (defined by each client package) must start above it.
const ResultKind uint32 = 0

// Base owns one connection's lifecycle: sending requests/replies, routing
// inbound frames, and draining outstanding waiters on disconnect.
type Base struct {
	Events     *events.Registry
	Dispatcher *transport.Dispatcher

	conn      transport.Conn
	nextID    atomic.Uint32
	onDisconn func()

	stopOnce sync.Once
	stopped  atomic.Bool
}

// New wires a fresh Base around conn. onPacketReceived handlers are
// registered by the caller on the returned Base's Dispatcher before calling
// Start, which launches the pump. Frames of a type with no registered
// handler are answered with an Error reply carrying their id.
func New(conn transport.Conn) *Base {
	b := &Base{
		Events: events.New(),
		conn:   conn,
	}
	b.Dispatcher = transport.NewDispatcher(func(hdr proto.Header, body []byte) {
		// Success/Error carry no payload of their own; ok/fail is encoded
		// as 1/0 for WaitFor's caller. Subsystem values (e.g. a new pad
		// name) arrive through dedicated types on the handler path instead.
		var val uint32
		if hdr.Type == proto.Success {
			val = 1
		}
		b.Events.Invoke(ResultKind, hdr.ID, val)
	})
	b.Dispatcher.OnUnhandled(func(hdr proto.Header) []byte { return proto.Build(proto.Error, hdr.ID) })
	return b
}

// Start launches the pump goroutine. Callers that need to send an
// ActivateSession frame (or anything else) before other frames can arrive
// should do so before calling Start, using SendReply/raw writes; in
// practice every client session here calls SendRequest immediately after
// Start, which is safe because the pump is already running to catch the
// reply.
func (b *Base) Start(onDisconnected func()) {
	b.onDisconn = onDisconnected
	go b.pump()
}

func (b *Base) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			b.Stop()
			return
		}
		replies, ferr := b.Dispatcher.Feed(buf[:n])
		for _, r := range replies {
			if _, werr := b.conn.Write(r); werr != nil {
				b.Stop()
				return
			}
		}
		if ferr != nil {
			b.Stop()
			return
		}
	}
}

// NextID allocates a fresh request id without sending anything, for callers
// that need to correlate a reply riding on a dedicated type rather than the
// generic Success/Error path (e.g. channelhubclient.Receiver).
func (b *Base) NextID() uint32 { return b.nextID.Add(1) }

// SendRequest allocates an id, writes the frame, and blocks until the
// matching Success/Error reply arrives or the session drains. Returns false
// on Error or drain.
func (b *Base) SendRequest(typ uint16, args ...any) bool {
	if b.stopped.Load() {
		return false
	}
	id := b.nextID.Add(1)
	frame := proto.Build(typ, id, args...)
	if _, err := b.conn.Write(frame); err != nil {
		return false
	}
	val, ok := b.Events.WaitFor(ResultKind, id)
	return ok && val == 1
}

// SendDetached allocates an id, registers cb for the eventual Success/Error
// reply, and writes the frame without blocking. cb receives true/false the
// same way SendRequest's return value would, or is invoked with false if
// the session drains before a reply arrives.
func (b *Base) SendDetached(cb func(ok bool), typ uint16, args ...any) {
	id := b.nextID.Add(1)
	registered := b.Events.RegisterCallback(ResultKind, id, func(value uint32) {
		cb(value == 1)
	})
	if !registered {
		cb(false)
		return
	}
	frame := proto.Build(typ, id, args...)
	if _, err := b.conn.Write(frame); err != nil {
		// The write failed; the registered callback will never fire from
		// a reply, so drain just this one waiter by invoking it directly
		// is unsafe (double-invoke risk) -- instead let disconnect drive
		// the eventual Drain(), which is imminent once pump() notices.
		return
	}
}

// SendReply writes a frame whose id is the caller-supplied id (typically
// the id of the frame being replied to); it never awaits a response.
func (b *Base) SendReply(typ uint16, id uint32, args ...any) error {
	frame := proto.Build(typ, id, args...)
	_, err := b.conn.Write(frame)
	return err
}

// SendRaw writes a fully-built frame (e.g. an unsolicited notification with
// proto.NoID) without expecting any reply.
func (b *Base) SendRaw(frame []byte) error {
	_, err := b.conn.Write(frame)
	return err
}

// Stop idempotently tears the session down: drains the event registry
// (waking every awaiter with the drained sentinel), closes the transport,
// and fires the disconnect callback exactly once.
func (b *Base) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.Events.Drain()
		if err := b.conn.Close(); err != nil {
			nlog.Warningf("session: close error: %v", err)
		}
		if b.onDisconn != nil {
			b.onDisconn()
		}
	})
}

func (b *Base) RemoteAddr() string {
	if b.conn == nil {
		return ""
	}
	return b.conn.RemoteAddr()
}

// ErrDrained is an error value for a drained session. Base itself reports
// drain via bool returns, and no package in this module returns ErrDrained.
var ErrDrained = fmt.Errorf("session: drained")
