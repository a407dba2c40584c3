// Package padlink defines the Peer-Linker wire message types: pad
// registration, the link/auth handshake, and opaque payload passthrough.
// Body layouts mirror the C++ peer-linker-protocol.hpp structs field for
// field; string fields are the remaining body bytes unless a length prefix
// is given.
package padlink

import "github.com/p2psignal/peerlink/proto"

// Message types, numbered starting at proto.Limit so they never collide
// with the three common types (Success, Error, ActivateSession).
const (
	RegisterPad uint16 = proto.Limit + iota
	UnregisterPad
	Link             // C->S: {u16 name_len, u16 secret_len, name, secret}
	Unlink           // C->S: (no body)
	LinkSuccess      // S->C: reply variant, carried as Success/Error instead
	LinkDenied       // S->C: reply variant, carried as Success/Error instead
	Unlinked         // S->C: (no body)
	LinkAuth         // S->C: {u16 name_len, u16 secret_len, name, secret}
	LinkAuthResponse // C->S: {u16 ok, name}
	Payload          // C<->S: opaque body
)

// BuildRegisterPad encodes a RegisterPad request: the pad name fills the
// remainder of the body.
func BuildRegisterPad(id uint32, name string) []byte {
	return proto.Build(RegisterPad, id, name)
}

// BuildUnregisterPad encodes an UnregisterPad request (no body).
func BuildUnregisterPad(id uint32) []byte {
	return proto.Build(UnregisterPad, id)
}

// BuildLink encodes a Link request: two u16 length prefixes followed by the
// requestee name and the opaque secret, back to back.
func BuildLink(id uint32, requesteeName string, secret []byte) []byte {
	return proto.Build(Link, id,
		uint16(len(requesteeName)), uint16(len(secret)),
		requesteeName, secret)
}

// ParseLink splits a Link body back into its requestee name and secret.
func ParseLink(body []byte) (requesteeName string, secret []byte, ok bool) {
	if len(body) < 4 {
		return "", nil, false
	}
	nameLen := int(body[0]) | int(body[1])<<8
	secretLen := int(body[2]) | int(body[3])<<8
	rest := body[4:]
	if len(rest) < nameLen+secretLen {
		return "", nil, false
	}
	return string(rest[:nameLen]), rest[nameLen : nameLen+secretLen], true
}

// BuildUnlink encodes an Unlink request (no body).
func BuildUnlink(id uint32) []byte { return proto.Build(Unlink, id) }

// BuildUnlinkedNotice encodes the server->client Unlinked notification.
func BuildUnlinkedNotice() []byte { return proto.Build(Unlinked, proto.NoID) }

// BuildLinkAuth encodes the server->client LinkAuth challenge.
func BuildLinkAuth(requestID uint32, requesteeName string, secret []byte) []byte {
	return proto.Build(LinkAuth, requestID,
		uint16(len(requesteeName)), uint16(len(secret)),
		requesteeName, secret)
}

// ParseLinkAuth mirrors ParseLink; the body layout is identical.
func ParseLinkAuth(body []byte) (requesteeName string, secret []byte, ok bool) {
	return ParseLink(body)
}

// BuildLinkAuthResponse encodes a client->server LinkAuthResponse.
func BuildLinkAuthResponse(id uint32, ok bool, requesterName string) []byte {
	okVal := uint16(0)
	if ok {
		okVal = 1
	}
	return proto.Build(LinkAuthResponse, id, okVal, requesterName)
}

// ParseLinkAuthResponse splits a LinkAuthResponse body.
func ParseLinkAuthResponse(body []byte) (ok bool, requesterName string, valid bool) {
	if len(body) < 2 {
		return false, "", false
	}
	okVal := uint16(body[0]) | uint16(body[1])<<8
	return okVal != 0, string(body[2:]), true
}

// BuildPayload encodes an opaque payload frame; id is the sender's choice
// (typically 0, since Payload is never replied to).
func BuildPayload(id uint32, data []byte) []byte {
	return proto.Build(Payload, id, data)
}
