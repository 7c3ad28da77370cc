// Package tcp provides the raw byte-stream client/remote/server triple
// spec.md §1 frames as "a proper subset of [the WebSocket endpoint] with
// framing removed" — the same accept/read/write skeleton as ws.Acceptor
// and ws.Client, minus the frame codec and handshake.
//
// Grounded on the teacher's plain net.Listen/net.Dial calls in
// server/websocket.go's startWebsocketServer, stripped of everything
// WebSocket-specific.
package tcp

import (
	"net"

	"github.com/pion/transport/packetio"
)

// Events mirrors the subset of ws.Events meaningful to an unframed byte
// stream: there is no message framing, so payloads are raw Read() chunks.
type Events struct {
	OnConnected    func(c *Remote)
	OnDataReceived func(c *Remote, data []byte)
	OnClose        func(c *Remote, err error)
	OnError        func(c *Remote, err error)
}

// Remote is one accepted or dialed raw TCP connection. Outbound writes go
// through a bounded packetio.Buffer instead of straight to the socket, so
// an application can opt into the backpressure spec §5 explicitly leaves
// external ("Applications needing bounded outstanding bytes must throttle
// externally") by calling SetWriteBufferLimit.
type Remote struct {
	conn   net.Conn
	events Events
	outbox *packetio.Buffer
}

// Client dials out and hands back a Remote once connected.
type Client struct {
	dial func(network, address string) (net.Conn, error)
}

// NewClient builds a Client using the stdlib dialer.
func NewClient() *Client {
	return &Client{dial: net.Dial}
}

// Dial connects to address and, on success, starts a read loop dispatching
// OnDataReceived/OnClose.
func (c *Client) Dial(network, address string, ev Events) (*Remote, error) {
	conn, err := c.dial(network, address)
	if err != nil {
		if ev.OnError != nil {
			ev.OnError(nil, err)
		}
		return nil, err
	}
	r := newRemote(conn, ev)
	if ev.OnConnected != nil {
		ev.OnConnected(r)
	}
	go r.readLoop()
	return r, nil
}

func newRemote(conn net.Conn, ev Events) *Remote {
	ob := packetio.NewBuffer()
	ob.SetLimitSize(1 << 20) // 1MiB default cap; SetWriteBufferLimit overrides
	return &Remote{conn: conn, events: ev, outbox: ob}
}

// SetWriteBufferLimit bounds how many outstanding bytes Write will queue;
// a Write that would exceed the bound returns an error instead of
// blocking, giving the application explicit backpressure control.
func (r *Remote) SetWriteBufferLimit(n int) { r.outbox.SetLimitSize(n) }

// Write queues data through the bounded outbox and flushes it to the
// socket. Unlike ws.Endpoint's writeFrame, tcp has no protocol framing to
// serialize around, so this only serializes against the outbox itself.
func (r *Remote) Write(data []byte) (int, error) {
	if _, err := r.outbox.Write(data); err != nil {
		return 0, err
	}
	buf := make([]byte, len(data))
	n, err := r.outbox.Read(buf)
	if err != nil {
		return 0, err
	}
	return r.conn.Write(buf[:n])
}

// Close shuts down the connection.
func (r *Remote) Close() error {
	r.outbox.Close()
	return r.conn.Close()
}

func (r *Remote) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 && r.events.OnDataReceived != nil {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			r.events.OnDataReceived(r, cp)
		}
		if err != nil {
			if r.events.OnClose != nil {
				r.events.OnClose(r, err)
			}
			return
		}
	}
}

// Server accepts raw TCP connections and dispatches them through Events,
// the same accept-loop shape as ws.Acceptor (§4.5) without the backlog
// map, handshake, or framing.
type Server struct {
	events   Events
	listener net.Listener
}

// NewServer builds a Server.
func NewServer(ev Events) *Server {
	return &Server{events: ev}
}

// Listen binds network/address and starts accepting in the background.
func (s *Server) Listen(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		r := newRemote(conn, s.events)
		if s.events.OnConnected != nil {
			s.events.OnConnected(r)
		}
		go r.readLoop()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
