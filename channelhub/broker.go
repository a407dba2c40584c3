// Package channelhub implements the Channel-Hub broker (C7): a directory of
// named channels owned by producer sessions, and the pending-request table
// that bridges a consumer's RequestPad to the owning producer's PadCreated
// reply.
package channelhub

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/p2psignal/peerlink/cmn"
	"github.com/p2psignal/peerlink/cmn/nlog"
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/proto/channelhub"
	"github.com/p2psignal/peerlink/transport"
)

// Broker owns the channel directory and the pending pad-request table. All
// mutation goes through mu, mirroring padlink.Broker's single-lock policy
// (§5): it is the correctness anchor for request/response correlation
// across the consumer and producer sessions.
type Broker struct {
	mu      sync.Mutex
	order   []string // registration order, for GetChannels (S1)
	channels map[string]*channel
	pending  map[uint32]*pendingPadRequest
	nextID   uint32
}

func NewBroker() *Broker {
	return &Broker{
		channels: make(map[string]*channel),
		pending:  make(map[uint32]*pendingPadRequest),
	}
}

// NewSession wires a fresh broker-side session around conn; activate is the
// server shell's certificate predicate for ActivateSession, shared with the
// Peer-Linker broker's convention.
func (b *Broker) NewSession(conn transport.Conn, activate func(payload []byte) bool) *session {
	s := &session{conn: conn, broker: b, activate: activate, channels: make(map[string]*channel)}
	s.dispatcher = transport.NewDispatcher(nil)
	s.dispatcher.Handle(proto.ActivateSession, s.handleActivateSession)
	s.dispatcher.Handle(channelhub.RegisterChannel, s.requireActivated(s.handleRegisterChannel))
	s.dispatcher.Handle(channelhub.UnregisterChannel, s.requireActivated(s.handleUnregisterChannel))
	s.dispatcher.Handle(channelhub.GetChannels, s.requireActivated(s.handleGetChannels))
	s.dispatcher.Handle(channelhub.RequestPad, s.requireActivated(s.handleRequestPad))
	s.dispatcher.Handle(channelhub.PadCreated, s.requireActivated(s.handlePadCreated))
	s.dispatcher.OnUnhandled(func(hdr proto.Header) []byte { return proto.Build(proto.Error, hdr.ID) })
	return s
}

func (s *session) requireActivated(h transport.Handler) transport.Handler {
	return func(hdr proto.Header, body []byte) transport.Outcome {
		if !s.activated {
			nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrNotActivated, "frame type %d before ActivateSession", hdr.Type))
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

func (s *session) handleRegisterChannel(hdr proto.Header, body []byte) transport.Outcome {
	name := string(body)
	if name == "" {
		nlog.Warningf("channelhub: %v", errors.Wrap(cmn.ErrEmptyChannelName, "RegisterChannel"))
		return transport.Fail
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.channels[name]; taken {
		nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrChannelFound, "RegisterChannel %q", name))
		return transport.Fail
	}
	c := &channel{name: name, session: s}
	b.channels[name] = c
	b.order = append(b.order, name)
	s.channels[name] = c
	return transport.Ok
}

func (s *session) handleUnregisterChannel(hdr proto.Header, body []byte) transport.Outcome {
	name := string(body)
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	c, owned := s.channels[name]
	if !owned {
		if _, exists := b.channels[name]; exists {
			nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrSenderMismatch, "UnregisterChannel %q", name))
		} else {
			nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrChannelNotFound, "UnregisterChannel %q", name))
		}
		return transport.Fail
	}
	b.removeChannelLocked(c)
	return transport.Ok
}

// handleGetChannels replies on a dedicated GetChannelsResponse type rather
// than the generic Success: Success/Error carry only a 1-bit ok/fail for
// session.Base's SendRequest, never a body (§9's design notes).
func (s *session) handleGetChannels(hdr proto.Header, body []byte) transport.Outcome {
	b := s.broker
	b.mu.Lock()
	names := append([]string(nil), b.order...)
	b.mu.Unlock()

	s.notify(proto.Build(channelhub.GetChannelsResponse, hdr.ID, channelhub.BuildGetChannelsResponse(names)))
	return transport.Deferred
}

// handleRequestPad implements the consumer side of C7's bridge: the broker
// does not reply to this frame yet (§4.7); the eventual reply rides on the
// producer's PadCreated.
func (s *session) handleRequestPad(hdr proto.Header, body []byte) transport.Outcome {
	name := channelhub.ParseRequestPad(body)
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	c, found := b.channels[name]
	if !found {
		nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrChannelNotFound, "RequestPad %q", name))
		return transport.Fail
	}
	for _, p := range b.pending {
		if p.requesterSession == s {
			nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrAnotherRequestPend, "RequestPad %q", name))
			return transport.Fail
		}
	}
	b.nextID++
	reqID := b.nextID
	b.pending[reqID] = &pendingPadRequest{
		requestID:          reqID,
		channelName:        name,
		requesterSession:   s,
		requesterRequestID: hdr.ID,
		producerSession:    c.session,
	}
	c.session.notify(channelhub.BuildRequestPad(reqID, name))
	return transport.Deferred
}

// handlePadCreated correlates the producer's answer by hdr.ID, which is the
// same id the broker chose when forwarding RequestPad to this producer.
func (s *session) handlePadCreated(hdr proto.Header, body []byte) transport.Outcome {
	channelName, padName, ok := channelhub.ParsePadCreated(body)
	if !ok {
		nlog.Warningf("channelhub: PadCreated: malformed body")
		return transport.Fail
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	p, found := b.pending[hdr.ID]
	if !found || p.producerSession != s || p.channelName != channelName {
		nlog.Warningf("channelhub: %v", errors.Wrapf(cmn.ErrRequesterNotFound, "PadCreated id=%d channel=%q", hdr.ID, channelName))
		return transport.Fail
	}
	delete(b.pending, hdr.ID)
	p.requesterSession.notify(proto.Build(channelhub.PadRequestResponse, p.requesterRequestID,
		channelhub.BuildPadRequestResponse(padName)))
	return transport.Ok
}

// removeChannelLocked erases c from the directory and fails any pending
// request that targets it, per free_session's first bullet. Must be called
// with b.mu held.
func (b *Broker) removeChannelLocked(c *channel) {
	delete(b.channels, c.name)
	for i, n := range b.order {
		if n == c.name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	delete(c.session.channels, c.name)
	for id, p := range b.pending {
		if p.channelName == c.name {
			p.requesterSession.notify(proto.Build(channelhub.PadRequestResponse, p.requesterRequestID,
				channelhub.BuildPadRequestResponse(""))) // denied: producer gone
			delete(b.pending, id)
		}
	}
	nlog.Infof("channelhub: removed channel %q", c.name)
}

// removeSessionLocked implements free_session (§4.7): it removes every
// channel s owns, and resolves every pending request where s participated
// as either requester or producer. Must be called with b.mu held.
func (b *Broker) removeSessionLocked(s *session) {
	for _, c := range s.channels {
		b.removeChannelLocked(c)
	}
	for id, p := range b.pending {
		switch {
		case p.requesterSession == s:
			delete(b.pending, id) // requester gone: silently drop
		case p.producerSession == s:
			p.requesterSession.notify(proto.Build(channelhub.PadRequestResponse, p.requesterRequestID,
				channelhub.BuildPadRequestResponse(""))) // producer disappeared before answering
			delete(b.pending, id)
		}
	}
}

// ChannelCount reports the current directory size, exported for the
// metrics collector.
func (b *Broker) ChannelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// PendingPadRequestCount reports how many RequestPad calls are currently
// awaiting a PadCreated reply, exported for the metrics collector.
func (b *Broker) PendingPadRequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
