package padlink

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/p2psignal/peerlink/proto"
	padlinkproto "github.com/p2psignal/peerlink/proto/padlink"
)

func alwaysActivate([]byte) bool { return true }

func expectSuccess(replies [][]byte, id uint32) {
	ExpectWithOffset(1, replies).To(HaveLen(1))
	hdr, err := proto.ParseHeader(replies[0])
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, hdr.Type).To(Equal(proto.Success))
	ExpectWithOffset(1, hdr.ID).To(Equal(id))
}

// mustFeed unwraps session.Feed's (replies, error) pair for callers that
// aren't exercising the malformed-frame path; see dispatcher_test.go for
// that case.
func mustFeed(replies [][]byte, err error) [][]byte {
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return replies
}

var _ = Describe("Peer-Linker broker", func() {
	var (
		broker       *Broker
		connA, connB *fakeConn
		sessA, sessB *session
	)

	BeforeEach(func() {
		broker = NewBroker()
		connA = newFakeConn("A")
		connB = newFakeConn("B")
		sessA = broker.NewSession(connA, alwaysActivate)
		sessB = broker.NewSession(connB, alwaysActivate)

		expectSuccess(mustFeed(sessA.Feed(proto.Build(proto.ActivateSession, 1))), 1)
		expectSuccess(mustFeed(sessB.Feed(proto.Build(proto.ActivateSession, 1))), 1)
		expectSuccess(mustFeed(sessA.Feed(padlinkproto.BuildRegisterPad(2, "1"))), 2)
		expectSuccess(mustFeed(sessB.Feed(padlinkproto.BuildRegisterPad(2, "2"))), 2)
	})

	// S3 — link with secret, payload passthrough, unlink on disconnect.
	It("links two pads when the authenticator accepts, then relays Payload and notifies Unlinked on teardown", func() {
		replies := mustFeed(sessB.Feed(padlinkproto.BuildLink(5, "1", []byte("SECRET"))))
		Expect(replies).To(BeEmpty(), "Link must not reply immediately")

		authFrame := connA.last()
		Expect(authFrame).NotTo(BeNil())
		hdr, err := proto.ParseHeader(authFrame)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.Type).To(Equal(padlinkproto.LinkAuth))
		name, secret, ok := padlinkproto.ParseLinkAuth(proto.Body(authFrame))
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("2"))
		Expect(secret).To(Equal([]byte("SECRET")))

		// A replies with AuthResponse(ok=true); the dispatcher auto-replies
		// Success to A's own frame, and handleAuthResponse separately writes
		// B's original Link reply straight to B's connection.
		aReplies := mustFeed(sessA.Feed(padlinkproto.BuildLinkAuthResponse(9, true, "2")))
		expectSuccess(aReplies, 9)

		bReply := connB.last()
		bHdr, _ := proto.ParseHeader(bReply)
		Expect(bHdr.Type).To(Equal(proto.Success))
		Expect(bHdr.ID).To(Equal(uint32(5)))

		// Payload from A reaches B unchanged.
		Expect(mustFeed(sessA.Feed(padlinkproto.BuildPayload(0, []byte("hello-bytes"))))).To(BeEmpty())
		payloadFrame := connB.last()
		pHdr, _ := proto.ParseHeader(payloadFrame)
		Expect(pHdr.Type).To(Equal(padlinkproto.Payload))
		Expect(proto.Body(payloadFrame)).To(Equal([]byte("hello-bytes")))

		// B disconnects -> A receives Unlinked.
		sessB.Teardown()
		unlinkedFrame := connA.last()
		uHdr, _ := proto.ParseHeader(unlinkedFrame)
		Expect(uHdr.Type).To(Equal(padlinkproto.Unlinked))
	})

	// S4 — link denial.
	It("replies Error to the Link request when the authenticator denies, and leaves A's session alive", func() {
		Expect(mustFeed(sessB.Feed(padlinkproto.BuildLink(5, "1", []byte("WRONG"))))).To(BeEmpty())

		// A's own AuthResponse frame was still well-formed and processed;
		// it is B's Link that gets denied, not A's answer to it.
		expectSuccess(mustFeed(sessA.Feed(padlinkproto.BuildLinkAuthResponse(9, false, "2"))), 9)

		bReply := connB.last()
		bHdr, _ := proto.ParseHeader(bReply)
		Expect(bHdr.Type).To(Equal(proto.Error))
		Expect(bHdr.ID).To(Equal(uint32(5)))

		// A's session is untouched: it still owns its pad and can act again.
		Expect(sessA.pad).NotTo(BeNil())
		Expect(sessA.pad.linked).To(BeNil())
	})

	// S6 — broker crash-safety of pending state.
	It("clears pending auth state when the requester disconnects before the authenticator answers", func() {
		Expect(mustFeed(sessB.Feed(padlinkproto.BuildLink(5, "1", []byte("SECRET"))))).To(BeEmpty())
		Expect(sessB.pad.pending).NotTo(BeNil())

		sessB.Teardown() // B disappears before A answers

		Expect(broker.pads).NotTo(HaveKey("2"))

		// A's eventual AuthResponse now fails: the requester pad is gone.
		replies := mustFeed(sessA.Feed(padlinkproto.BuildLinkAuthResponse(9, true, "2")))
		Expect(replies).To(HaveLen(1))
		hdr, _ := proto.ParseHeader(replies[0])
		Expect(hdr.Type).To(Equal(proto.Error))
	})

	It("rejects registering a name that is already taken", func() {
		connC := newFakeConn("C")
		sessC := broker.NewSession(connC, alwaysActivate)
		expectSuccess(mustFeed(sessC.Feed(proto.Build(proto.ActivateSession, 1))), 1)

		replies := mustFeed(sessC.Feed(padlinkproto.BuildRegisterPad(2, "1")))
		Expect(replies).To(HaveLen(1))
		hdr, _ := proto.ParseHeader(replies[0])
		Expect(hdr.Type).To(Equal(proto.Error))
	})

	It("rejects frames before activation", func() {
		connC := newFakeConn("C")
		sessC := broker.NewSession(connC, alwaysActivate)
		replies := mustFeed(sessC.Feed(padlinkproto.BuildRegisterPad(1, "unactivated")))
		Expect(replies).To(HaveLen(1))
		hdr, _ := proto.ParseHeader(replies[0])
		Expect(hdr.Type).To(Equal(proto.Error))
	})
})
