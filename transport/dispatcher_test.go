package transport

import (
	"encoding/binary"
	"testing"

	"github.com/p2psignal/peerlink/proto"
)

func TestDispatcherRoutesResultsToEventSink(t *testing.T) {
	var got []proto.Header
	d := NewDispatcher(func(hdr proto.Header, body []byte) {
		got = append(got, hdr)
	})
	frame := proto.Build(proto.Success, 5)
	if _, err := d.Feed(frame); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("got %v", got)
	}
}

func TestDispatcherRoutesKnownTypeToHandler(t *testing.T) {
	d := NewDispatcher(nil)
	var calledWith []byte
	d.Handle(100, func(hdr proto.Header, body []byte) Outcome {
		calledWith = body
		return Deferred
	})
	frame := proto.Build(100, 1, "hello")
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("handler returned Deferred, expected no reply, got %v", replies)
	}
	if string(calledWith) != "hello" {
		t.Fatalf("body = %q", calledWith)
	}
}

func TestDispatcherHandlerOkRepliesSuccess(t *testing.T) {
	d := NewDispatcher(nil)
	d.Handle(100, func(hdr proto.Header, body []byte) Outcome { return Ok })
	frame := proto.Build(100, 7)
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one Success reply, got %d", len(replies))
	}
	hdr, _ := proto.ParseHeader(replies[0])
	if hdr.Type != proto.Success || hdr.ID != 7 {
		t.Fatalf("reply header = %+v", hdr)
	}
}

func TestDispatcherHandlerFailureRepliesError(t *testing.T) {
	d := NewDispatcher(nil)
	d.Handle(100, func(hdr proto.Header, body []byte) Outcome { return Fail })
	frame := proto.Build(100, 7)
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one Error reply, got %d", len(replies))
	}
	hdr, _ := proto.ParseHeader(replies[0])
	if hdr.Type != proto.Error || hdr.ID != 7 {
		t.Fatalf("reply header = %+v", hdr)
	}
}

func TestDispatcherUnknownTypeDefaultsToNoReply(t *testing.T) {
	d := NewDispatcher(nil)
	frame := proto.Build(12345, 3)
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected no reply without OnUnhandled set, got %v", replies)
	}
}

func TestDispatcherUnknownTypeUsesOnUnhandled(t *testing.T) {
	d := NewDispatcher(nil)
	d.OnUnhandled(func(hdr proto.Header) []byte {
		return proto.Build(proto.Error, hdr.ID)
	})
	frame := proto.Build(12345, 3)
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	hdr, _ := proto.ParseHeader(replies[0])
	if hdr.ID != 3 {
		t.Fatalf("reply id = %d, want 3", hdr.ID)
	}
}

func TestDispatcherSplitAcrossFeedCalls(t *testing.T) {
	d := NewDispatcher(nil)
	var gotBody []byte
	d.Handle(50, func(hdr proto.Header, body []byte) Outcome {
		gotBody = body
		return Deferred
	})
	frame := proto.Build(50, 1, "split-me")
	mid := len(frame) / 2
	replies1, err := d.Feed(frame[:mid])
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies1) != 0 || gotBody != nil {
		t.Fatalf("handler fired before full frame arrived")
	}
	if _, err := d.Feed(frame[mid:]); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if string(gotBody) != "split-me" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestDispatcherNeverRepliesToErrorFrames(t *testing.T) {
	var invoked bool
	d := NewDispatcher(func(hdr proto.Header, body []byte) { invoked = true })
	frame := proto.Build(proto.Error, 9)
	replies, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("must never reply to an Error frame, got %v", replies)
	}
	if !invoked {
		t.Fatal("Error frame should still reach the event sink for correlation")
	}
}

func TestDispatcherRejectsUndersizedHeader(t *testing.T) {
	d := NewDispatcher(nil)
	// A declared Size smaller than HeaderSize (8) can never be satisfied by
	// any real frame; this must surface as ErrInvalidFrameSize, not a
	// permanent "wait for more bytes" stall.
	malformed := make([]byte, proto.HeaderSize)
	binary.LittleEndian.PutUint16(malformed[0:2], 4)
	binary.LittleEndian.PutUint16(malformed[2:4], 100)
	binary.LittleEndian.PutUint32(malformed[4:8], 1)

	replies, err := d.Feed(malformed)
	if err != ErrInvalidFrameSize {
		t.Fatalf("err = %v, want ErrInvalidFrameSize", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected no replies alongside the error, got %v", replies)
	}
}
