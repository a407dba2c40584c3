// Package padlink implements the Peer-Linker broker (C5) and its client
// session (C6): a registry of named pads, the two-phase Link/AuthResponse
// handshake, and opaque Payload passthrough between linked pads.
package padlink

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/p2psignal/peerlink/cmn"
	"github.com/p2psignal/peerlink/cmn/nlog"
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/proto/padlink"
	"github.com/p2psignal/peerlink/transport"
)

// Broker owns the pad registry. All mutation goes through mu, which is the
// correctness anchor for the link-authentication handshake (§5): handlers
// read and mutate multiple sessions' pads atomically.
type Broker struct {
	mu   sync.Mutex
	pads map[string]*pad
}

func NewBroker() *Broker {
	return &Broker{pads: make(map[string]*pad)}
}

// NewSession wires a fresh broker-side session around conn. activate is the
// server shell's HMAC/external-verifier predicate for ActivateSession; it
// is the only thing about certificate verification this package knows.
func (b *Broker) NewSession(conn transport.Conn, activate func(payload []byte) bool) *session {
	s := &session{conn: conn, broker: b, activate: activate}
	s.dispatcher = transport.NewDispatcher(nil) // brokers never send requests, so no Result correlation
	s.dispatcher.Handle(proto.ActivateSession, s.handleActivateSession)
	s.dispatcher.Handle(padlink.RegisterPad, s.requireActivated(s.handleRegisterPad))
	s.dispatcher.Handle(padlink.UnregisterPad, s.requireActivated(s.handleUnregisterPad))
	s.dispatcher.Handle(padlink.Link, s.requireActivated(s.handleLink))
	s.dispatcher.Handle(padlink.LinkAuthResponse, s.requireActivated(s.handleAuthResponse))
	s.dispatcher.Handle(padlink.Unlink, s.requireActivated(s.handleUnlink))
	s.dispatcher.Handle(padlink.Payload, s.requireActivated(s.handlePayload))
	s.dispatcher.OnUnhandled(func(hdr proto.Header) []byte { return proto.Build(proto.Error, hdr.ID) })
	return s
}

func (s *session) requireActivated(h transport.Handler) transport.Handler {
	return func(hdr proto.Header, body []byte) transport.Outcome {
		if !s.activated {
			nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrNotActivated, "frame type %d before ActivateSession", hdr.Type))
			return transport.Fail
		}
		return h(hdr, body)
	}
}

func (s *session) handleActivateSession(hdr proto.Header, body []byte) transport.Outcome {
	if s.activate != nil && !s.activate(body) {
		return transport.Fail
	}
	s.activated = true
	return transport.Ok
}

func (s *session) handleRegisterPad(hdr proto.Header, body []byte) transport.Outcome {
	name := string(body)
	if name == "" {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrEmptyPadName, "RegisterPad"))
		return transport.Fail
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.pad != nil {
		// a session owns at most one pad
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrAlreadyRegistered, "RegisterPad %q on session already holding %q", name, s.pad.name))
		return transport.Fail
	}
	if _, taken := b.pads[name]; taken {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrPadFound, "RegisterPad %q", name))
		return transport.Fail
	}
	p := &pad{name: name, session: s}
	b.pads[name] = p
	s.pad = p
	return transport.Ok
}

func (s *session) handleUnregisterPad(hdr proto.Header, body []byte) transport.Outcome {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.pad == nil {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrNotRegistered, "UnregisterPad"))
		return transport.Fail
	}
	b.removePadLocked(s.pad)
	s.pad = nil
	return transport.Ok
}

// handleLink implements the first half of the two-phase handshake: it does
// NOT reply to the Link request itself (per §4.5); the reply is sent later,
// from handleAuthResponse, using the requestID recorded here.
func (s *session) handleLink(hdr proto.Header, body []byte) transport.Outcome {
	requesteeName, secret, ok := padlink.ParseLink(body)
	if !ok {
		nlog.Warningf("padlink: Link: malformed body")
		return transport.Fail
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	p := s.pad
	if p == nil {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrNotRegistered, "Link"))
		return transport.Fail
	}
	if p.linked != nil {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrAlreadyLinked, "Link from %q", p.name))
		return transport.Fail
	}
	if p.pending != nil {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrAuthInProgress, "Link from %q", p.name))
		return transport.Fail
	}
	requestee, found := b.pads[requesteeName]
	if !found {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrPadNotFound, "Link %q -> %q", p.name, requesteeName))
		return transport.Fail
	}
	p.pending = &pendingLinkRequest{authenticatorName: requesteeName, requestID: hdr.ID}
	requestee.session.notify(padlink.BuildLinkAuth(hdr.ID, p.name, secret))
	return transport.Deferred // reply comes later, from handleAuthResponse
}

// handleAuthResponse implements the second half: it both answers the
// authenticator's own AuthResponse frame (Success) and, if the recorded
// pending Link is still live, answers that original Link request.
func (s *session) handleAuthResponse(hdr proto.Header, body []byte) transport.Outcome {
	ok, requesterName, valid := padlink.ParseLinkAuthResponse(body)
	if !valid {
		nlog.Warningf("padlink: LinkAuthResponse: malformed body")
		return transport.Fail
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	a := s.pad
	if a == nil {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrNotRegistered, "LinkAuthResponse"))
		return transport.Fail
	}
	r, found := b.pads[requesterName]
	if !found {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrPadNotFound, "LinkAuthResponse requester %q", requesterName))
		return transport.Fail
	}
	if r.pending == nil {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrAuthNotInProgress, "LinkAuthResponse requester %q", requesterName))
		return transport.Fail
	}
	if r.pending.authenticatorName != a.name {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrAuthorMismatched, "LinkAuthResponse from %q, expected %q", a.name, r.pending.authenticatorName))
		return transport.Fail
	}
	requestID := r.pending.requestID
	r.pending = nil
	if ok {
		r.linked = a
		a.linked = r
		r.session.sendSuccess(requestID)
	} else {
		r.session.sendError(requestID) // LinkDenied
	}
	return transport.Ok // auto-replies Success to this AuthResponse frame
}

func (s *session) handleUnlink(hdr proto.Header, body []byte) transport.Outcome {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	p := s.pad
	if p == nil {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrNotRegistered, "Unlink"))
		return transport.Fail
	}
	if p.linked == nil {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrNotLinked, "Unlink %q", p.name))
		return transport.Fail
	}
	q := p.linked
	q.linked = nil
	p.linked = nil
	q.session.notify(padlink.BuildUnlinkedNotice())
	return transport.Ok
}

// handlePayload forwards to the linked peer and reports Deferred: §4.5
// describes no acknowledgment to the sender for a successfully relayed
// Payload frame, only the implicit backpressure of the connection itself.
func (s *session) handlePayload(hdr proto.Header, body []byte) transport.Outcome {
	b := s.broker
	b.mu.Lock()
	p := s.pad
	var q *pad
	if p != nil {
		q = p.linked
	}
	b.mu.Unlock()

	if p == nil {
		nlog.Warningf("padlink: %v", errors.Wrap(cmn.ErrNotRegistered, "Payload"))
		return transport.Fail
	}
	if q == nil {
		nlog.Warningf("padlink: %v", errors.Wrapf(cmn.ErrNotLinked, "Payload from %q", p.name))
		return transport.Fail
	}
	q.session.notify(padlink.BuildPayload(0, body))
	return transport.Deferred
}

// removePadLocked tears p out of the registry, notifying and clearing its
// peer if linked, and clearing any in-flight pending link that referenced
// p (§4.5's remove_pad and §6's crash-safety scenario). Must be called with
// b.mu held.
func (b *Broker) removePadLocked(p *pad) {
	if p.linked != nil {
		q := p.linked
		q.linked = nil
		p.linked = nil
		q.session.notify(padlink.BuildUnlinkedNotice())
	}
	if p.pending != nil {
		p.pending = nil
	}
	// Any other pad whose pending Link names p as the authenticator can no
	// longer be answered: clear it and fail that original Link request.
	for _, r := range b.pads {
		if r.pending != nil && r.pending.authenticatorName == p.name {
			r.session.sendError(r.pending.requestID)
			r.pending = nil
		}
	}
	delete(b.pads, p.name)
	nlog.Infof("padlink: removed pad %q", p.name)
}

// PadCount reports the current registry size, exported for the metrics
// collector (§ Data model additions).
func (b *Broker) PadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pads)
}

// PendingLinkCount reports how many pads currently have a Link awaiting an
// AuthResponse, exported for the metrics collector.
func (b *Broker) PendingLinkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.pads {
		if p.pending != nil {
			n++
		}
	}
	return n
}
