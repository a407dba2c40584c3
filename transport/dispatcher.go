package transport

import (
	"errors"

	"github.com/p2psignal/peerlink/proto"
)

// ErrInvalidFrameSize is returned by Feed when a header declares a Size
// smaller than HeaderSize itself — a value no well-formed frame can ever
// have. Per §4.1/§7, this is a framing protocol error the caller must
// treat as fatal for the connection, not a "wait for more bytes" case.
var ErrInvalidFrameSize = errors.New("transport: frame declares size smaller than header")

// Outcome is what a Handler reports back to the dispatcher about how (or
// whether) to auto-reply to the frame it just processed.
type Outcome int

const (
	// Fail auto-replies Error with the frame's original id, carrying no
	// body, per the propagation policy in §7.
	Fail Outcome = iota
	// Ok auto-replies Success with the frame's original id.
	Ok
	// Deferred sends no automatic reply at all: either the handler already
	// wrote whatever reply/notification it owed (e.g. Link's two-phase
	// handshake), or this frame was never a request needing one (e.g. a
	// server notification a client session only consumes).
	Deferred
)

// Handler processes one fully-cut frame's body and reports its Outcome.
type Handler func(hdr proto.Header, body []byte) Outcome

// EventSink receives Success/Error replies so they can be correlated with a
// pending request by (kind,id); kind is always a fixed "Result" kind for
// these two types, chosen by the caller (session.Base uses 0).
type EventSink func(hdr proto.Header, body []byte)

// Dispatcher implements C2: it owns one connection's inbound buffer, cuts
// frames out of it as bytes arrive, and routes each one either to a
// registered type handler or, for Success/Error frames, to the EventSink.
type Dispatcher struct {
	handlers    map[uint16]Handler
	onResult    EventSink
	onUnhandled func(hdr proto.Header) []byte

	buf []byte
}

func NewDispatcher(onResult EventSink) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[uint16]Handler),
		onResult: onResult,
	}
}

// Handle registers the handler invoked for frames of type typ.
func (d *Dispatcher) Handle(typ uint16, h Handler) {
	d.handlers[typ] = h
}

// OnUnhandled sets what's sent back for a type with no registered handler.
// With none set (nil), such frames get no reply at all. The session and
// broker layers (session.New, padlink and channelhub NewSession) each set
// one that answers with an Error reply carrying the original id, per §4.2.
func (d *Dispatcher) OnUnhandled(fn func(hdr proto.Header) []byte) {
	d.onUnhandled = fn
}

// Feed appends newly-read bytes and returns every reply frame produced by
// processing whatever complete frames are now available (the automatic
// Success/Error for a handler's Ok/Fail outcome, and the OnUnhandled reply
// for unhandled types); the caller is responsible for writing those to the
// connection.
// Complete frames are dispatched in arrival order. A non-nil error means
// the peer sent a malformed header (ErrInvalidFrameSize): any replies
// already produced should still be written, but the caller must then
// close the connection rather than call Feed again.
func (d *Dispatcher) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	var replies [][]byte
	for {
		hdr, err := proto.ParseHeader(d.buf)
		if err != nil {
			break // fewer than HeaderSize bytes; wait for more
		}
		if int(hdr.Size) < proto.HeaderSize {
			return replies, ErrInvalidFrameSize
		}
		if len(d.buf) < int(hdr.Size) {
			break // whole frame not yet available
		}
		frame := d.buf[:hdr.Size]
		d.buf = d.buf[hdr.Size:]

		body := proto.Body(frame)
		if hdr.Type == proto.Success || hdr.Type == proto.Error {
			if d.onResult != nil {
				d.onResult(hdr, body)
			}
			continue
		}
		h, found := d.handlers[hdr.Type]
		if !found {
			if d.onUnhandled != nil {
				if reply := d.onUnhandled(hdr); reply != nil {
					replies = append(replies, reply)
				}
			}
			continue
		}
		switch h(hdr, body) {
		case Fail:
			replies = append(replies, proto.Build(proto.Error, hdr.ID))
		case Ok:
			replies = append(replies, proto.Build(proto.Success, hdr.ID))
		case Deferred:
			// handler already replied/notified on its own, or owes nothing
		}
	}
	return replies, nil
}
