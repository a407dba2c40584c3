// Package ice implements the ICE session layer (C9): it rides on a
// padlinkclient.Client to exchange session descriptions and candidates
// through the signaling relay, then hands off to a direct peer-to-peer data
// channel. The agent itself is bound to pion/webrtc, but the session state
// machine only depends on the small Agent interface below (C16), so it can
// be driven by a fake in tests.
package ice

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PacketResult is send_packet_p2p's result, a sum type per §4.9.
type PacketResult int

const (
	PacketSuccess PacketResult = iota
	PacketWouldBlock
	PacketMessageTooLarge
	PacketUnknownError
)

// MaxP2PMessageSize bounds a single send_packet_p2p call, below the default
// SCTP message-fragmentation ceiling pion negotiates.
const MaxP2PMessageSize = 16 * 1024

// bufferedAmountHighWaterMark is the BufferedAmount threshold above which a
// send reports WouldBlock instead of queuing further.
const bufferedAmountHighWaterMark = 1 << 20

// responderPortMin/Max constrain the controlled side's ephemeral UDP range
// per §4.9's port-range note; the controlling side gathers on any port.
const (
	responderPortMin = 60000
	responderPortMax = 61000
)

// Agent is the local interface C9 depends on instead of pion/webrtc
// directly (C16). One Agent is created per ICE session and is not reused.
type Agent interface {
	// CreateOffer generates and sets the local description, returning its SDP.
	CreateOffer() (sdp string, err error)
	// CreateAnswer generates and sets the local description, returning its SDP.
	CreateAnswer() (sdp string, err error)
	SetRemoteOffer(sdp string) error
	SetRemoteAnswer(sdp string) error
	AddCandidate(candidate string) error

	OnCandidate(func(candidate string))
	OnGatheringDone(func())
	OnConnected(func())
	OnFailed(func())

	SendPacket(data []byte) PacketResult
	OnPacket(func(data []byte))

	Close() error
}

// AgentFactory builds an Agent for one ICE session; controlling mirrors the
// link's initiator/responder roles (§4.9's controlling/controlled mapping).
type AgentFactory func(controlling bool, stunServers []string) (Agent, error)

// NewWebRTCAgent is the default AgentFactory, backed by pion/webrtc/v4.
func NewWebRTCAgent(controlling bool, stunServers []string) (Agent, error) {
	se := webrtc.SettingEngine{}
	if !controlling {
		if err := se.SetEphemeralUDPPortRange(responderPortMin, responderPortMax); err != nil {
			return nil, fmt.Errorf("ice: set responder port range: %w", err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if len(stunServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunServers})
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("ice: new peer connection: %w", err)
	}

	a := &webrtcAgent{pc: pc, controlling: controlling}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		a.mu.Lock()
		onCandidate, onDone := a.onCandidate, a.onGatheringDone
		a.mu.Unlock()
		if c == nil {
			if onDone != nil {
				onDone()
			}
			return
		}
		if onCandidate != nil {
			onCandidate(c.ToJSON().Candidate)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		a.mu.Lock()
		onConnected, onFailed := a.onConnected, a.onFailed
		a.mu.Unlock()
		switch state {
		case webrtc.ICEConnectionStateConnected:
			if onConnected != nil {
				onConnected()
			}
		case webrtc.ICEConnectionStateFailed:
			if onFailed != nil {
				onFailed()
			}
		}
	})

	if controlling {
		dc, err := pc.CreateDataChannel("p2p", &webrtc.DataChannelInit{})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("ice: create data channel: %w", err)
		}
		a.wireDataChannel(dc)
	} else {
		pc.OnDataChannel(a.wireDataChannel)
	}

	return a, nil
}

// webrtcAgent is the pion-backed Agent.
type webrtcAgent struct {
	pc          *webrtc.PeerConnection
	controlling bool

	mu              sync.Mutex
	dc              *webrtc.DataChannel
	onCandidate     func(string)
	onGatheringDone func()
	onConnected     func()
	onFailed        func()
	onPacket        func([]byte)
}

func (a *webrtcAgent) wireDataChannel(dc *webrtc.DataChannel) {
	a.mu.Lock()
	a.dc = dc
	a.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		a.mu.Lock()
		cb := a.onPacket
		a.mu.Unlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}

func (a *webrtcAgent) CreateOffer() (string, error) {
	offer, err := a.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("ice: create offer: %w", err)
	}
	if err := a.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("ice: set local description: %w", err)
	}
	return offer.SDP, nil
}

func (a *webrtcAgent) CreateAnswer() (string, error) {
	answer, err := a.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("ice: create answer: %w", err)
	}
	if err := a.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("ice: set local description: %w", err)
	}
	return answer.SDP, nil
}

func (a *webrtcAgent) SetRemoteOffer(sdp string) error {
	return a.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
}

func (a *webrtcAgent) SetRemoteAnswer(sdp string) error {
	return a.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (a *webrtcAgent) AddCandidate(candidate string) error {
	return a.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

func (a *webrtcAgent) OnCandidate(fn func(string)) {
	a.mu.Lock()
	a.onCandidate = fn
	a.mu.Unlock()
}

func (a *webrtcAgent) OnGatheringDone(fn func()) {
	a.mu.Lock()
	a.onGatheringDone = fn
	a.mu.Unlock()
}

func (a *webrtcAgent) OnConnected(fn func()) {
	a.mu.Lock()
	a.onConnected = fn
	a.mu.Unlock()
}

func (a *webrtcAgent) OnFailed(fn func()) {
	a.mu.Lock()
	a.onFailed = fn
	a.mu.Unlock()
}

func (a *webrtcAgent) OnPacket(fn func([]byte)) {
	a.mu.Lock()
	a.onPacket = fn
	a.mu.Unlock()
}

func (a *webrtcAgent) SendPacket(data []byte) PacketResult {
	if len(data) > MaxP2PMessageSize {
		return PacketMessageTooLarge
	}
	a.mu.Lock()
	dc := a.dc
	a.mu.Unlock()
	if dc == nil {
		return PacketUnknownError
	}
	if dc.BufferedAmount() > bufferedAmountHighWaterMark {
		return PacketWouldBlock
	}
	if err := dc.Send(data); err != nil {
		return PacketUnknownError
	}
	return PacketSuccess
}

func (a *webrtcAgent) Close() error {
	return a.pc.Close()
}
