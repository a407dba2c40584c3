// Package transport provides the ordered, reliable byte-stream abstraction
// the frame codec rides on (C1/C2's host), plus two concrete bindings: a
// plain TCP listener and a WebSocket listener built on gorilla/websocket.
// The core protocol layers only ever depend on the Conn interface.
package transport

import "io"

// Conn is the minimal contract the packet dispatcher needs from a stream:
// ordered, reliable bytes in both directions, closable from either side.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	// RemoteAddr is used only for logging.
	RemoteAddr() string
}
