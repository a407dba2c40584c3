package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol names from §6.
const (
	SubprotocolPeerLinker = "peer-linker"
	SubprotocolChannelHub = "channel-hub"
)

// WSConn adapts a gorilla/websocket.Conn, which is message-framed, to the
// byte-stream Conn interface the dispatcher expects: each Write is sent as
// one binary message, and Read drains messages into an internal buffer so
// callers can read arbitrary-sized chunks across message boundaries.
type WSConn struct {
	ws   *websocket.Conn
	pend []byte
}

func NewWSConn(ws *websocket.Conn) *WSConn { return &WSConn{ws: ws} }

func (c *WSConn) Read(p []byte) (int, error) {
	for len(c.pend) == 0 {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.pend = msg
	}
	n := copy(p, c.pend)
	c.pend = c.pend[n:]
	return n, nil
}

func (c *WSConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *WSConn) Close() error       { return c.ws.Close() }
func (c *WSConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// WSListener upgrades incoming HTTP connections to WebSocket, validating the
// subprotocol against wantSubprotocol, and queues each accepted connection
// for Accept. It runs its own http.Server on the address given to ListenWS.
type WSListener struct {
	addr           string
	wantSubprotocol string
	upgrader       websocket.Upgrader
	conns          chan Conn
	srv            *http.Server
}

func ListenWS(addr, wantSubprotocol string) *WSListener {
	l := &WSListener{
		addr:            addr,
		wantSubprotocol: wantSubprotocol,
		conns:           make(chan Conn, 16),
	}
	l.upgrader = websocket.Upgrader{
		Subprotocols:    []string{wantSubprotocol},
		CheckOrigin:     func(*http.Request) bool { return true },
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)
	l.srv = &http.Server{Addr: addr, Handler: mux}
	return l
}

func (l *WSListener) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if ws.Subprotocol() != l.wantSubprotocol {
		ws.Close()
		return
	}
	l.conns <- NewWSConn(ws)
}

// Serve starts accepting upgrade requests; it blocks until the listener is
// closed, mirroring net.Listener.Accept's loop-until-error shape via the
// channel-based Accept method below.
func (l *WSListener) Serve() error {
	return l.srv.ListenAndServe()
}

func (l *WSListener) Accept() (Conn, error) {
	c, ok := <-l.conns
	if !ok {
		return nil, fmt.Errorf("transport: websocket listener closed")
	}
	return c, nil
}

func (l *WSListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := l.srv.Shutdown(ctx)
	close(l.conns)
	return err
}

// DialWS opens a client-side WebSocket connection with the given
// subprotocol, the WS-based alternative to DialTCP.
func DialWS(url, subprotocol string) (Conn, error) {
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws), nil
}
