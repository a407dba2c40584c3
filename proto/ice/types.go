// Package ice defines the message types exchanged between two already
// linked Peer-Linker pads to bring up a direct ICE data channel. Per the
// open design choice recorded in DESIGN.md, these ride as opaque bodies
// inside padlink.Payload frames rather than as distinct top-level types,
// so this package only defines the inner body layout and leaves framing to
// the padlink client session.
package ice

// Inner message kind, the first byte of every Payload body used by the ICE
// session layer.
const (
	KindSessionDescription uint8 = iota
	KindCandidate
	KindGatheringDone
)

// BuildSessionDescription wraps an SDP string for transmission as a
// Payload body.
func BuildSessionDescription(sdp string) []byte {
	return append([]byte{KindSessionDescription}, sdp...)
}

// BuildCandidate wraps a single ICE candidate string.
func BuildCandidate(candidate string) []byte {
	return append([]byte{KindCandidate}, candidate...)
}

// BuildGatheringDone encodes the end-of-candidates notice.
func BuildGatheringDone() []byte {
	return []byte{KindGatheringDone}
}

// Parse splits a Payload body used by the ICE layer back into its kind and
// string argument (empty for GatheringDone).
func Parse(body []byte) (kind uint8, arg string, ok bool) {
	if len(body) < 1 {
		return 0, "", false
	}
	return body[0], string(body[1:]), true
}
