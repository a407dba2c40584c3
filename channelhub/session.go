package channelhub

import (
	"github.com/p2psignal/peerlink/transport"
)

// session is the broker-side per-connection state for the Channel-Hub: a
// session may own any number of channels (S1 registers three on one
// connection) and may have at most one outstanding RequestPad as consumer,
// per the stricter variant adopted in §9's open question.
type session struct {
	conn       transport.Conn
	dispatcher *transport.Dispatcher
	broker     *Broker
	activate   func(payload []byte) bool

	activated bool
	channels  map[string]*channel
}

// Feed implements server.BrokerSession. A non-nil error means the peer sent
// a malformed frame header; the caller must close the connection after
// writing any replies already produced.
func (s *session) Feed(chunk []byte) ([][]byte, error) { return s.dispatcher.Feed(chunk) }

func (s *session) Close() error { return s.conn.Close() }

func (s *session) RemoteAddr() string { return s.conn.RemoteAddr() }

// Teardown implements server.BrokerSession: it runs under the broker mutex
// so channel removal and pending-request scrubbing are atomic with respect
// to every other handler, per §5.
func (s *session) Teardown() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.removeSessionLocked(s)
}

func (s *session) notify(frame []byte) { s.conn.Write(frame) }
