package channelhub

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/p2psignal/peerlink/proto"
	channelhubproto "github.com/p2psignal/peerlink/proto/channelhub"
)

func alwaysActivate([]byte) bool { return true }

func replyHeader(frame []byte) proto.Header {
	hdr, err := proto.ParseHeader(frame)
	Expect(err).NotTo(HaveOccurred())
	return hdr
}

func expectSuccess(replies [][]byte, id uint32) {
	ExpectWithOffset(1, replies).To(HaveLen(1))
	hdr := replyHeader(replies[0])
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

var _ = Describe("Channel-Hub broker", func() {
	var (
		broker *Broker
		connC1 *fakeConn
		sessC1 *session
	)

	BeforeEach(func() {
		broker = NewBroker()
		connC1 = newFakeConn("C1")
		sessC1 = broker.NewSession(connC1, alwaysActivate)
		expectSuccess(mustFeed(sessC1.Feed(proto.Build(proto.ActivateSession, 1))), 1)
	})

	// S1 — channel register/unregister.
	It("registers, lists in registration order, and unregisters channels", func() {
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(2, "channel1"))), 2)
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(3, "channel2"))), 3)
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(4, "channel3"))), 4)

		Expect(mustFeed(sessC1.Feed(channelhubproto.BuildGetChannels(5)))).To(BeEmpty())
		hdr := replyHeader(connC1.last())
		Expect(hdr.Type).To(Equal(channelhubproto.GetChannelsResponse))
		Expect(hdr.ID).To(Equal(uint32(5)))
		Expect(channelhubproto.ParseGetChannelsResponse(proto.Body(connC1.last()))).
			To(Equal([]string{"channel1", "channel2", "channel3"}))

		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildUnregisterChannel(6, "channel1"))), 6)
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildUnregisterChannel(7, "channel3"))), 7)

		Expect(mustFeed(sessC1.Feed(channelhubproto.BuildGetChannels(8)))).To(BeEmpty())
		Expect(channelhubproto.ParseGetChannelsResponse(proto.Body(connC1.last()))).
			To(Equal([]string{"channel2"}))

		replies := mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(9, "channel2")))
		Expect(replies).To(HaveLen(1))
		Expect(replyHeader(replies[0]).Type).To(Equal(proto.Error))
	})

	// S2 — pad request dispatch, sequential accept/accept/deny per channel.
	It("dispatches RequestPad to the producer and relays PadCreated back to the consumer", func() {
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(2, "a"))), 2)
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(3, "b"))), 3)

		connC2 := newFakeConn("C2")
		sessC2 := broker.NewSession(connC2, alwaysActivate)
		expectSuccess(mustFeed(sessC2.Feed(proto.Build(proto.ActivateSession, 1))), 1)

		requestAndAnswer := func(channelName, answerPad string, reqID uint32) string {
			Expect(mustFeed(sessC2.Feed(channelhubproto.BuildRequestPad(reqID, channelName)))).To(BeEmpty())

			forwarded := connC1.last()
			fHdr := replyHeader(forwarded)
			Expect(fHdr.Type).To(Equal(channelhubproto.RequestPad))
			Expect(channelhubproto.ParseRequestPad(proto.Body(forwarded))).To(Equal(channelName))

			replies := mustFeed(sessC1.Feed(channelhubproto.BuildPadCreated(fHdr.ID, channelName, answerPad)))
			Expect(replies).To(HaveLen(1))
			Expect(replyHeader(replies[0]).Type).To(Equal(proto.Success))

			cHdr := replyHeader(connC2.last())
			Expect(cHdr.Type).To(Equal(channelhubproto.PadRequestResponse))
			Expect(cHdr.ID).To(Equal(reqID))
			return channelhubproto.ParsePadRequestResponse(proto.Body(connC2.last()))
		}

		Expect(requestAndAnswer("a", "pad_a_1", 10)).To(Equal("pad_a_1"))
		Expect(requestAndAnswer("a", "pad_a_2", 11)).To(Equal("pad_a_2"))
		Expect(requestAndAnswer("a", "", 12)).To(Equal("")) // denied

		Expect(requestAndAnswer("b", "pad_b_1", 13)).To(Equal("pad_b_1"))
		Expect(requestAndAnswer("b", "pad_b_2", 14)).To(Equal("pad_b_2"))
		Expect(requestAndAnswer("b", "", 15)).To(Equal(""))

		replies := mustFeed(sessC2.Feed(channelhubproto.BuildRequestPad(16, "c")))
		Expect(replies).To(HaveLen(1))
		Expect(replyHeader(replies[0]).Type).To(Equal(proto.Error))
	})

	It("rejects a second concurrent RequestPad from the same consumer", func() {
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(2, "a"))), 2)
		connC2 := newFakeConn("C2")
		sessC2 := broker.NewSession(connC2, alwaysActivate)
		expectSuccess(mustFeed(sessC2.Feed(proto.Build(proto.ActivateSession, 1))), 1)

		Expect(mustFeed(sessC2.Feed(channelhubproto.BuildRequestPad(10, "a")))).To(BeEmpty())
		replies := mustFeed(sessC2.Feed(channelhubproto.BuildRequestPad(11, "a")))
		Expect(replies).To(HaveLen(1))
		Expect(replyHeader(replies[0]).Type).To(Equal(proto.Error))
	})

	It("fails a pending request to the consumer when the producer disappears first", func() {
		expectSuccess(mustFeed(sessC1.Feed(channelhubproto.BuildRegisterChannel(2, "a"))), 2)
		connC2 := newFakeConn("C2")
		sessC2 := broker.NewSession(connC2, alwaysActivate)
		expectSuccess(mustFeed(sessC2.Feed(proto.Build(proto.ActivateSession, 1))), 1)

		Expect(mustFeed(sessC2.Feed(channelhubproto.BuildRequestPad(10, "a")))).To(BeEmpty())
		sessC1.Teardown()

		hdr := replyHeader(connC2.last())
		Expect(hdr.Type).To(Equal(channelhubproto.PadRequestResponse))
		Expect(channelhubproto.ParsePadRequestResponse(proto.Body(connC2.last()))).To(Equal(""))
	})
})
