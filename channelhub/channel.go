package channelhub

// channel is a named advertisement owned by exactly one producer session;
// consumers discover it via GetChannels and mint pads from it via
// RequestPad, see §4.7.
type channel struct {
	name    string
	session *session
}

// pendingPadRequest bridges a consumer's RequestPad to the producer's
// eventual PadCreated reply. requestID is both the broker-chosen id used on
// the forwarded RequestPad frame to the producer and the correlation key
// the producer's PadCreated answers by (its own frame's header id).
type pendingPadRequest struct {
	requestID          uint32
	channelName        string
	requesterSession   *session
	requesterRequestID uint32 // the consumer's original RequestPad id
	producerSession    *session
}
