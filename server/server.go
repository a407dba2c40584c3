// Package server implements the runtime shell shared by both broker
// binaries (C10): alloc_session → handle_frame* → free_session, run under
// an errgroup so a listener error or SIGINT/SIGTERM cancels the group and
// drains every live session. It never participates in §4.5/§4.7 protocol
// decisions — the metrics here are observational only.
package server

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/p2psignal/peerlink/channelhub"
	"github.com/p2psignal/peerlink/cmn/nlog"
	"github.com/p2psignal/peerlink/metrics"
	"github.com/p2psignal/peerlink/padlink"
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/transport"
)

// statsCollectInterval is how often Shell.Run polls the broker for the
// registry-size gauges (§3's metrics-snapshot requirement); these aren't
// updated inline with every handler call the way Sessions/FramesTotal are,
// since most registry mutations happen under the broker's own lock rather
// than the shell's.
const statsCollectInterval = 2 * time.Second

// statsSource is implemented by padlinkBroker and channelHubBroker; each
// reports only the counts meaningful to its own role and zeroes the rest.
type statsSource interface {
	stats() (pads, channels, pendingLinks, pendingPadRequests int)
}

// BrokerSession is the shape padlink.Broker.NewSession and
// channelhub.Broker.NewSession both return, structurally; neither package
// exports its concrete session type, so this interface is how the server
// shell stays broker-agnostic.
type BrokerSession interface {
	Feed(chunk []byte) ([][]byte, error)
	Close() error
	RemoteAddr() string
	Teardown()
}

// Broker is the minimal contract the shell needs from either broker role.
type Broker interface {
	NewSession(conn transport.Conn, activate func(payload []byte) bool) BrokerSession
}

// padlinkBroker and channelHubBroker adapt the two concrete broker types
// to Broker; Go interfaces aren't covariant in return types, so a thin
// wrapper is the only way to share one shell between both roles.
type padlinkBroker struct{ b *padlink.Broker }

func NewPadlinkBroker(b *padlink.Broker) Broker { return padlinkBroker{b} }

func (p padlinkBroker) NewSession(conn transport.Conn, activate func(payload []byte) bool) BrokerSession {
	return p.b.NewSession(conn, activate)
}

func (p padlinkBroker) stats() (pads, channels, pendingLinks, pendingPadRequests int) {
	return p.b.PadCount(), 0, p.b.PendingLinkCount(), 0
}

type channelHubBroker struct{ b *channelhub.Broker }

func NewChannelHubBroker(b *channelhub.Broker) Broker { return channelHubBroker{b} }

func (c channelHubBroker) NewSession(conn transport.Conn, activate func(payload []byte) bool) BrokerSession {
	return c.b.NewSession(conn, activate)
}

func (c channelHubBroker) stats() (pads, channels, pendingLinks, pendingPadRequests int) {
	return 0, c.b.ChannelCount(), 0, c.b.PendingPadRequestCount()
}

// listener is the subset of transport.TCPListener/WSListener the shell
// needs; both already satisfy it.
type listener interface {
	Accept() (transport.Conn, error)
	Close() error
}

// Shell runs one broker's accept loop.
type Shell struct {
	Broker   Broker
	Listener listener
	Verify   func(payload []byte) bool // nil ⇒ activate unconditionally

	mu       sync.Mutex
	sessions map[BrokerSession]struct{}
}

// Run accepts connections until ctx is canceled or the listener errors,
// then tears down every live session and returns. The caller wires ctx to
// SIGINT/SIGTERM via signal.NotifyContext.
func (sh *Shell) Run(ctx context.Context) error {
	sh.sessions = make(map[BrokerSession]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return sh.Listener.Close()
	})
	if src, ok := sh.Broker.(statsSource); ok {
		g.Go(func() error {
			sh.collectStats(gctx, src)
			return nil
		})
	}
	g.Go(func() error {
		for {
			conn, err := sh.Listener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil // shutting down, not a real failure
				}
				return fmt.Errorf("server: accept: %w", err)
			}
			g.Go(func() error {
				sh.handleConn(conn)
				return nil
			})
		}
	})

	err := g.Wait()
	sh.drainAll()
	return err
}

// collectStats polls src on a ticker until ctx is canceled, setting the
// registry-size gauges. It runs once up front so the gauges aren't left at
// their zero value for a full interval after startup.
func (sh *Shell) collectStats(ctx context.Context, src statsSource) {
	t := time.NewTicker(statsCollectInterval)
	defer t.Stop()
	for {
		pads, channels, pendingLinks, pendingPadRequests := src.stats()
		metrics.Pads.Set(float64(pads))
		metrics.Channels.Set(float64(channels))
		metrics.PendingLinks.Set(float64(pendingLinks))
		metrics.PendingPadRequests.Set(float64(pendingPadRequests))

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (sh *Shell) handleConn(conn transport.Conn) {
	id, _ := shortid.Generate()
	nlog.Infof("server: accepted %s (trace=%s)", conn.RemoteAddr(), id)

	sess := sh.Broker.NewSession(conn, sh.Verify)
	sh.addSession(sess)
	metrics.Sessions.Inc()
	defer func() {
		sh.removeSession(sess)
		metrics.Sessions.Dec()
		nlog.Infof("server: closed %s (trace=%s)", conn.RemoteAddr(), id)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			sess.Teardown()
			return
		}
		replies, ferr := sess.Feed(buf[:n])
		for _, reply := range replies {
			recordReply(reply)
			if _, werr := conn.Write(reply); werr != nil {
				sess.Teardown()
				return
			}
		}
		if ferr != nil {
			nlog.Warningf("server: %s sent a malformed frame (trace=%s): %v", conn.RemoteAddr(), id, ferr)
			sess.Teardown()
			return
		}
	}
}

// recordReply feeds the C14 counters from whatever the broker chose to
// write back; it never influences that decision.
func recordReply(frame []byte) {
	hdr, err := proto.ParseHeader(frame)
	if err != nil {
		return
	}
	metrics.FramesTotal.WithLabelValues(strconv.Itoa(int(hdr.Type))).Inc()
	if hdr.Type == proto.Error {
		metrics.ProtocolErrorsTotal.Inc()
	}
}

func (sh *Shell) addSession(s BrokerSession) {
	sh.mu.Lock()
	sh.sessions[s] = struct{}{}
	sh.mu.Unlock()
}

func (sh *Shell) removeSession(s BrokerSession) {
	sh.mu.Lock()
	delete(sh.sessions, s)
	sh.mu.Unlock()
}

func (sh *Shell) drainAll() {
	sh.mu.Lock()
	live := make([]BrokerSession, 0, len(sh.sessions))
	for s := range sh.sessions {
		live = append(live, s)
	}
	sh.mu.Unlock()
	for _, s := range live {
		s.Teardown()
	}
}
