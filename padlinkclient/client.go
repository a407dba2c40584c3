// Package padlinkclient implements the Peer-Linker client session (C6): it
// registers a pad, then either initiates a link (sending Link and waiting
// for Success) or answers an authentication challenge (responder role), and
// exposes the resulting linked byte channel via Send/OnReceived.
package padlinkclient

import (
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/proto/padlink"
	"github.com/p2psignal/peerlink/session"
	"github.com/p2psignal/peerlink/transport"
)

// Event kinds used on the embedded session.Base's registry, namespaced
// above session.ResultKind (0).
const (
	KindLinked uint32 = iota + 1
)

// Config bundles the parameters needed to start a session, mirroring the
// C++ client's constructor arguments.
type Config struct {
	Cert          []byte // ActivateSession payload, possibly empty
	PadName       string
	TargetPadName string // non-empty ⇒ this side initiates the Link
	Secret        []byte // only meaningful when TargetPadName is set

	// OnAuthRequest is required for the responder role: it decides whether
	// to accept a Link attempt naming (requesterName, secret).
	OnAuthRequest func(requesterName string, secret []byte) bool
	OnReceived    func(data []byte)
	OnUnlinked    func()
	OnDisconnected func()
}

// Client is the linked-pad byte channel described in §4.6.
type Client struct {
	*session.Base
	cfg Config
}

// Start registers the pad and performs the handshake described by cfg,
// blocking until the link is established (or denied/failed). It returns
// false if registration, activation, or the handshake fails.
func Start(conn transport.Conn, cfg Config) (*Client, bool) {
	c := &Client{Base: session.New(conn), cfg: cfg}

	c.Dispatcher.Handle(padlink.Payload, func(hdr proto.Header, body []byte) transport.Outcome {
		if c.cfg.OnReceived != nil {
			c.cfg.OnReceived(body)
		}
		return transport.Deferred
	})
	c.Dispatcher.Handle(padlink.Unlinked, func(hdr proto.Header, body []byte) transport.Outcome {
		if c.cfg.OnUnlinked != nil {
			c.cfg.OnUnlinked()
		}
		c.Stop()
		return transport.Deferred
	})
	c.Dispatcher.Handle(padlink.LinkAuth, func(hdr proto.Header, body []byte) transport.Outcome {
		name, secret, ok := padlink.ParseLinkAuth(body)
		if !ok {
			return transport.Deferred
		}
		// The real reply is a separate LinkAuthResponse request, sent on
		// its own goroutine: answering it inline here would deadlock,
		// since SendRequest blocks on a reply that can only arrive
		// through this same pump goroutine.
		go c.respondAuth(hdr.ID, name, secret)
		return transport.Deferred
	})

	c.Start(func() {
		if c.cfg.OnDisconnected != nil {
			c.cfg.OnDisconnected()
		}
	})

	if ok := c.SendRequest(proto.ActivateSession, cfg.Cert); !ok {
		c.Base.Stop()
		return c, false
	}
	if ok := c.SendRequest(padlink.RegisterPad, cfg.PadName); !ok {
		c.Base.Stop()
		return c, false
	}

	if cfg.TargetPadName != "" {
		if ok := c.SendRequest(padlink.Link, cfg.TargetPadName, cfg.Secret); !ok {
			c.Base.Stop()
			return c, false
		}
		return c, true
	}

	// Responder: wait for our own LinkAuth handler to establish the link.
	_, ok := c.Events.WaitFor(KindLinked, proto.NoID)
	if !ok {
		c.Base.Stop()
		return c, false
	}
	return c, true
}

func (c *Client) respondAuth(_ uint32, requesterName string, secret []byte) {
	ok := false
	if c.cfg.OnAuthRequest != nil {
		ok = c.cfg.OnAuthRequest(requesterName, secret)
	}
	accepted := c.SendRequest(padlink.LinkAuthResponse, boolToOK(ok), requesterName)
	if accepted && ok {
		c.Events.Invoke(KindLinked, proto.NoID, 1)
	} else if accepted {
		// Our own auth decision was "deny"; no link was formed, and there
		// is no "Linked" event to fire. The caller that started Start with
		// no TargetPadName is still waiting on KindLinked and will hang
		// until Unlinked/disconnect; in practice a denied responder
		// should be torn down by its operator, matching S4's reliance on
		// the *requester*'s failure rather than the responder's.
		return
	}
}

func boolToOK(ok bool) uint16 {
	if ok {
		return 1
	}
	return 0
}

// Send forwards data to the linked peer as an opaque Payload frame.
func (c *Client) Send(data []byte) error {
	return c.SendRaw(padlink.BuildPayload(0, data))
}
