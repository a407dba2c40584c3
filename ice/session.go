package ice

import (
	"github.com/p2psignal/peerlink/padlinkclient"
	"github.com/p2psignal/peerlink/proto"
	iceproto "github.com/p2psignal/peerlink/proto/ice"
	"github.com/p2psignal/peerlink/transport"
)

// kindConnected is this package's event-registry kind, namespaced above
// padlinkclient's own (§4.2's per-subsystem kind convention).
const kindConnected uint32 = padlinkclient.KindLinked + 1

// Config bundles a Peer-Linker link (the signaling relay) with the ICE
// parameters layered on top of it.
type Config struct {
	Cert          []byte
	PadName       string
	TargetPadName string // non-empty ⇒ controlling role, see §4.9
	Secret        []byte

	OnAuthRequest func(requesterName string, secret []byte) bool

	StunServers []string
	// AgentFactory builds the Agent backing this session; nil selects
	// NewWebRTCAgent. Tests substitute a fake to avoid real networking.
	AgentFactory AgentFactory

	OnP2PPacket    func(data []byte)
	OnDisconnected func()
}

// Session extends a Peer-Linker link with an ICE agent: §4.9's "base →
// Peer-Linker → ICE" chain, re-expressed as composition rather than
// inheritance.
type Session struct {
	*padlinkclient.Client
	agent       Agent
	controlling bool
}

// Start performs the full handshake described by §4.9: link through the
// relay (via padlinkclient), exchange descriptions/candidates over that
// link as Payload passthrough, and block until the local ICE agent reports
// Connected (or Failed/disconnected). It returns false on any failure along
// the way.
func Start(conn transport.Conn, cfg Config) (*Session, bool) {
	s := &Session{controlling: cfg.TargetPadName != ""}

	factory := cfg.AgentFactory
	if factory == nil {
		factory = NewWebRTCAgent
	}
	agent, err := factory(s.controlling, cfg.StunServers)
	if err != nil {
		return s, false
	}
	s.agent = agent
	s.wireAgent(cfg.OnP2PPacket)

	client, ok := padlinkclient.Start(conn, padlinkclient.Config{
		Cert:          cfg.Cert,
		PadName:       cfg.PadName,
		TargetPadName: cfg.TargetPadName,
		Secret:        cfg.Secret,
		OnAuthRequest: cfg.OnAuthRequest,
		OnReceived:    s.handleSignal,
		OnUnlinked:    func() { agent.Close() },
		OnDisconnected: func() {
			agent.Close()
			if cfg.OnDisconnected != nil {
				cfg.OnDisconnected()
			}
		},
	})
	s.Client = client
	if !ok {
		agent.Close()
		return s, false
	}

	if s.controlling {
		offerSDP, err := agent.CreateOffer()
		if err != nil {
			s.Stop()
			return s, false
		}
		if err := s.sendSignal(iceproto.BuildSessionDescription(offerSDP)); err != nil {
			s.Stop()
			return s, false
		}
	}

	val, ok := s.Events.WaitFor(kindConnected, proto.NoID)
	if !ok || val != 1 {
		s.Stop()
		return s, false
	}
	return s, true
}

func (s *Session) wireAgent(onP2PPacket func([]byte)) {
	s.agent.OnCandidate(func(candidate string) {
		s.sendSignal(iceproto.BuildCandidate(candidate))
	})
	s.agent.OnGatheringDone(func() {
		s.sendSignal(iceproto.BuildGatheringDone())
	})
	s.agent.OnConnected(func() {
		s.Events.Invoke(kindConnected, proto.NoID, 1)
	})
	s.agent.OnFailed(func() {
		s.Events.Invoke(kindConnected, proto.NoID, 0)
		s.Client.Stop()
	})
	s.agent.OnPacket(func(data []byte) {
		if onP2PPacket != nil {
			onP2PPacket(data)
		}
	})
}

// handleSignal is the padlinkclient.Config.OnReceived callback: every
// Payload frame on a linked ICE pad is one of the three ice message kinds,
// never opaque application data (§4.9's framing choice, resolving spec.md
// §9's "pick one and document it" open question in favor of riding on
// Payload rather than adding dedicated top-level types).
func (s *Session) handleSignal(data []byte) {
	kind, arg, ok := iceproto.Parse(data)
	if !ok {
		return
	}
	switch kind {
	case iceproto.KindSessionDescription:
		if s.controlling {
			s.agent.SetRemoteAnswer(arg)
			return
		}
		if err := s.agent.SetRemoteOffer(arg); err != nil {
			return
		}
		answerSDP, err := s.agent.CreateAnswer()
		if err != nil {
			return
		}
		s.sendSignal(iceproto.BuildSessionDescription(answerSDP))
	case iceproto.KindCandidate:
		s.agent.AddCandidate(arg)
	case iceproto.KindGatheringDone:
		// Waiting for the remote side's GatheringDone before declaring the
		// session ready is optional (§4.9); this implementation proceeds on
		// local Connected alone and only notes the remote event in passing.
	}
}

func (s *Session) sendSignal(body []byte) error {
	return s.Client.Send(body)
}

// SendP2P is send_packet_p2p (§4.9): once Start has returned true, this
// goes directly over the ICE data channel, bypassing the signaling relay
// entirely.
func (s *Session) SendP2P(data []byte) PacketResult {
	return s.agent.SendPacket(data)
}
