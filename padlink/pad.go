package padlink

// pendingLinkRequest records that a pad has asked to link with
// authenticatorName and is awaiting that pad's AuthResponse; requestID is
// the original Link request's id, needed to reply to it once the
// authenticator answers.
type pendingLinkRequest struct {
	authenticatorName string
	requestID         uint32
}

// pad is a named endpoint registered at the broker. At most one session
// owns a pad, and a pad is linked to at most one other pad at a time; see
// the invariants in §3 of the design.
type pad struct {
	name    string
	session *session
	linked  *pad
	pending *pendingLinkRequest
}
