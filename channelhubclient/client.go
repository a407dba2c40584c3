// Package channelhubclient implements the Channel-Hub client (C8): a Sender
// role that advertises channels and answers RequestPad by minting pad
// names, and a Receiver role that lists channels and requests a pad from
// one. Both roles share the same connection shape (session.Base plus a
// handful of request/notification types) and can be used independently or
// together over one connection.
package channelhubclient

import (
	"sync"

	"github.com/p2psignal/peerlink/events"
	"github.com/p2psignal/peerlink/proto"
	"github.com/p2psignal/peerlink/proto/channelhub"
	"github.com/p2psignal/peerlink/session"
	"github.com/p2psignal/peerlink/transport"
)

// Sender is the producer role of §4.8: it registers channels and answers
// RequestPad notifications from the broker by asking the user callback for
// a fresh pad name (or denial).
type Sender struct {
	*session.Base

	// OnPadRequest is invoked for every RequestPad the broker forwards; an
	// empty return value denies the request.
	OnPadRequest func(channelName string) string
}

// StartSender wires a Sender around conn and activates the connection.
func StartSender(conn transport.Conn, cert []byte, onPadRequest func(channelName string) string) (*Sender, bool) {
	s := &Sender{Base: session.New(conn), OnPadRequest: onPadRequest}

	s.Dispatcher.Handle(channelhub.RequestPad, func(hdr proto.Header, body []byte) transport.Outcome {
		name := channelhub.ParseRequestPad(body)
		var padName string
		if s.OnPadRequest != nil {
			padName = s.OnPadRequest(name)
		}
		// PadCreated is its own request, correlated by hdr.ID (the id the
		// broker chose when forwarding this RequestPad), not a plain reply
		// to this frame; the broker's own Success/Error ack for it is left
		// unconsumed, a fire-and-forget send like SendReply's.
		s.SendRaw(channelhub.BuildPadCreated(hdr.ID, name, padName))
		return transport.Deferred
	})

	s.Start(nil)
	if ok := s.SendRequest(proto.ActivateSession, cert); !ok {
		s.Base.Stop()
		return s, false
	}
	return s, true
}

// RegisterChannel advertises name; ok is false on ChannelFound or drain.
func (s *Sender) RegisterChannel(name string) bool {
	return s.SendRequest(channelhub.RegisterChannel, name)
}

// UnregisterChannel withdraws a previously registered channel.
func (s *Sender) UnregisterChannel(name string) bool {
	return s.SendRequest(channelhub.UnregisterChannel, name)
}

// Receiver is the consumer role of §4.8: it lists channels and requests a
// pad name from one of them. GetChannelsResponse and PadRequestResponse
// carry a body the generic Success/Error correlation can't, so Receiver
// keeps its own table of pending calls keyed by request id, independent of
// session.Base's ResultKind registry.
type Receiver struct {
	*session.Base

	mu      sync.Mutex
	pending map[uint32]chan []byte
}

func StartReceiver(conn transport.Conn, cert []byte) (*Receiver, bool) {
	r := &Receiver{Base: session.New(conn), pending: make(map[uint32]chan []byte)}

	r.Dispatcher.Handle(channelhub.GetChannelsResponse, r.deliver)
	r.Dispatcher.Handle(channelhub.PadRequestResponse, r.deliver)

	r.Start(func() { r.drainPending() })
	if ok := r.SendRequest(proto.ActivateSession, cert); !ok {
		r.Base.Stop()
		return r, false
	}
	return r, true
}

func (r *Receiver) deliver(hdr proto.Header, body []byte) transport.Outcome {
	r.mu.Lock()
	ch, found := r.pending[hdr.ID]
	if found {
		delete(r.pending, hdr.ID)
	}
	r.mu.Unlock()
	if found {
		// The broker never sends a Success/Error for this id (these two
		// reply types are its own dedicated path, per §4.8), so the
		// ResultKind callback await registered for the drain case would
		// otherwise never fire and never be removed. Unregister it now that
		// the real reply has arrived through this side channel instead.
		r.Events.Unregister(session.ResultKind, hdr.ID)
		ch <- append([]byte(nil), body...)
	}
	return transport.Deferred
}

func (r *Receiver) drainPending() {
	r.mu.Lock()
	survivors := r.pending
	r.pending = make(map[uint32]chan []byte)
	r.mu.Unlock()
	for _, ch := range survivors {
		close(ch)
	}
}

// await waits for a dedicated-type reply (delivered through deliver), a
// generic Success/Error for the same id (ChannelNotFound,
// AnotherRequestPending and the like, which the broker answers as a
// bodyless Error; the body is then nil), or drain, which returns ok=false.
func (r *Receiver) await(id uint32) ([]byte, bool) {
	ch := make(chan []byte, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()

	registered := r.Events.RegisterCallback(session.ResultKind, id, func(value uint32) {
		r.mu.Lock()
		_, stillPending := r.pending[id]
		if stillPending {
			delete(r.pending, id)
		}
		r.mu.Unlock()
		if !stillPending {
			return
		}
		if value == events.DrainedValue {
			close(ch)
			return
		}
		ch <- nil
	})
	if !registered {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		return nil, false
	}

	body, ok := <-ch
	return body, ok
}

// GetChannels blocks for the directory's current contents.
func (r *Receiver) GetChannels() ([]string, bool) {
	id := r.NextID()
	if err := r.SendRaw(proto.Build(channelhub.GetChannels, id)); err != nil {
		return nil, false
	}
	body, ok := r.await(id)
	if !ok {
		return nil, false
	}
	return channelhub.ParseGetChannelsResponse(body), true
}

// RequestPad blocks for the producer's answer; an empty padName means the
// request was denied (or the channel never existed), per §4.8.
func (r *Receiver) RequestPad(channelName string) (padName string, ok bool) {
	id := r.NextID()
	if err := r.SendRaw(channelhub.BuildRequestPad(id, channelName)); err != nil {
		return "", false
	}
	body, ok := r.await(id)
	if !ok {
		return "", false
	}
	name := channelhub.ParsePadRequestResponse(body)
	return name, name != ""
}
