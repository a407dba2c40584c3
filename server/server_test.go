package server

import (
	"testing"

	"github.com/p2psignal/peerlink/channelhub"
	"github.com/p2psignal/peerlink/padlink"
	"github.com/p2psignal/peerlink/proto"
	channelhubproto "github.com/p2psignal/peerlink/proto/channelhub"
	padlinkproto "github.com/p2psignal/peerlink/proto/padlink"
)

// discardConn satisfies transport.Conn for tests that only drive a broker
// session's Feed method directly and never read back its replies.
type discardConn struct{}

func (discardConn) Read([]byte) (int, error)    { return 0, nil }
func (discardConn) Write(p []byte) (int, error) { return len(p), nil }
func (discardConn) Close() error                { return nil }
func (discardConn) RemoteAddr() string          { return "test" }

func alwaysActivate([]byte) bool { return true }

// TestPadlinkBrokerStatsReportsRegistrySizes exercises statsSource through
// the same adapter Shell.collectStats type-asserts against, without needing
// a live Run loop or ticker.
func TestPadlinkBrokerStatsReportsRegistrySizes(t *testing.T) {
	b := padlink.NewBroker()
	sess := b.NewSession(discardConn{}, alwaysActivate)

	if _, err := sess.Feed(proto.Build(proto.ActivateSession, 1)); err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	if _, err := sess.Feed(padlinkproto.BuildRegisterPad(2, "alice")); err != nil {
		t.Fatalf("RegisterPad: %v", err)
	}

	pads, channels, pendingLinks, pendingPadRequests := padlinkBroker{b}.stats()
	if pads != 1 {
		t.Errorf("pads = %d, want 1", pads)
	}
	if channels != 0 || pendingLinks != 0 || pendingPadRequests != 0 {
		t.Errorf("padlinkBroker.stats() should report 0 for fields it doesn't own, got channels=%d pendingLinks=%d pendingPadRequests=%d",
			channels, pendingLinks, pendingPadRequests)
	}
}

func TestChannelHubBrokerStatsReportsRegistrySizes(t *testing.T) {
	b := channelhub.NewBroker()
	sess := b.NewSession(discardConn{}, alwaysActivate)

	if _, err := sess.Feed(proto.Build(proto.ActivateSession, 1)); err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	if _, err := sess.Feed(channelhubproto.BuildRegisterChannel(2, "general")); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}

	pads, channels, pendingLinks, pendingPadRequests := channelHubBroker{b}.stats()
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if pads != 0 || pendingLinks != 0 || pendingPadRequests != 0 {
		t.Errorf("channelHubBroker.stats() should report 0 for fields it doesn't own, got pads=%d pendingLinks=%d pendingPadRequests=%d",
			pads, pendingLinks, pendingPadRequests)
	}
}
