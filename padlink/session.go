package padlink

import (
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/transport"
)

// session is the broker-side per-connection state (C5's half of the "at
// most one pad per session" invariant); Activated gates every handler but
// ActivateSession itself, per §4.5.
type session struct {
	conn       transport.Conn
	dispatcher *transport.Dispatcher
	broker     *Broker
	activate   func(payload []byte) bool

	activated bool
	pad       *pad
}

// Feed implements server.BrokerSession. A non-nil error means the peer sent
// a malformed frame header; the caller must close the connection after
// writing any replies already produced.
func (s *session) Feed(chunk []byte) ([][]byte, error) { return s.dispatcher.Feed(chunk) }

func (s *session) Close() error { return s.conn.Close() }

func (s *session) RemoteAddr() string { return s.conn.RemoteAddr() }

// Teardown implements server.BrokerSession: it runs under the broker mutex
// so that link state scrubbing is atomic with respect to every other
// handler, per §5.
func (s *session) Teardown() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if s.pad != nil {
		s.broker.removePadLocked(s.pad)
		s.pad = nil
	}
}

func (s *session) sendSuccess(id uint32) { s.conn.Write(proto.Build(proto.Success, id)) }
func (s *session) sendError(id uint32)   { s.conn.Write(proto.Build(proto.Error, id)) }
func (s *session) notify(frame []byte)   { s.conn.Write(frame) }
