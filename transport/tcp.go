package transport

import (
	"crypto/tls"
	"fmt"
	"net"
)

// TCPConn adapts a stdlib net.Conn to the Conn interface; this is the
// default transport named in §6 ("plain TCP").
type TCPConn struct {
	nc net.Conn
}

func NewTCPConn(nc net.Conn) *TCPConn { return &TCPConn{nc: nc} }

func (c *TCPConn) Read(p []byte) (int, error)  { return c.nc.Read(p) }
func (c *TCPConn) Write(p []byte) (int, error) { return c.nc.Write(p) }
func (c *TCPConn) Close() error                { return c.nc.Close() }
func (c *TCPConn) RemoteAddr() string          { return c.nc.RemoteAddr().String() }

// TCPListener accepts plain TCP connections and hands back Conn values.
type TCPListener struct {
	ln net.Listener
}

func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCPConn(nc), nil
}

func (l *TCPListener) Close() error { return l.ln.Close() }
func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

// ListenTLS wraps ListenTCP in a TLS handshake, per §3/§6's -sc/--ssl-cert
// and -sk/--ssl-key flags; a *tls.Listener already satisfies net.Listener,
// so it slots straight into TCPListener without a separate wrapper type.
func ListenTLS(addr, certFile, keyFile string) (*TCPListener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS keypair: %w", err)
	}
	ln, err := tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

// DialTCP opens a client-side TCP connection; client session Start
// functions take the resulting Conn rather than dialing themselves.
func DialTCP(addr string) (Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPConn(nc), nil
}
