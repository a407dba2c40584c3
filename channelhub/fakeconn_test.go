package channelhub

import "sync"

// fakeConn is an in-memory transport.Conn stand-in that records every frame
// written to it, so tests can assert on broker replies/notifications
// without opening a real socket.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	addr    string
}

func newFakeConn(addr string) *fakeConn { return &fakeConn{addr: addr} }

func (c *fakeConn) Read(p []byte) (int, error) { return 0, nil }

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	cp := append([]byte(nil), p...)
	c.written = append(c.written, cp)
	c.mu.Unlock()
	return len(p), nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.written) == 0 {
		return nil
	}
	return c.written[len(c.written)-1]
}

func (c *fakeConn) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}
