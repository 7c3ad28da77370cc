// Package udp provides the trivial datagram client/server wrapper spec.md
// §1 treats as an out-of-scope external collaborator ("a trivial datagram
// wrapper" compared to the WebSocket core).
//
// Grounded on the teacher's net.Listen-based accept skeleton
// (server/websocket.go's startWebsocketServer), swapped to
// github.com/pion/udp's connection-oriented UDP listener (a teacher
// dependency) so udp.Server gets per-remote-address "connections" out of
// an otherwise connectionless protocol, mirroring the accept/Remote shape
// tcp.Server and ws.Acceptor already use.
package udp

import (
	"net"

	pudp "github.com/pion/udp"
)

// Events mirrors tcp.Events; UDP has no stream framing either, so payloads
// are individual datagrams.
type Events struct {
	OnConnected    func(c *Remote)
	OnDataReceived func(c *Remote, data []byte)
	OnClose        func(c *Remote, err error)
	OnError        func(c *Remote, err error)
}

// Remote is one logical UDP "connection" — a net.Conn scoped to a single
// remote address, as produced by pion/udp's listener.
type Remote struct {
	conn   net.Conn
	events Events
}

// Write sends one datagram.
func (r *Remote) Write(data []byte) (int, error) { return r.conn.Write(data) }

// Close removes this remote from the listener's table.
func (r *Remote) Close() error { return r.conn.Close() }

func (r *Remote) readLoop() {
	buf := make([]byte, 65507) // max UDP payload
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

// Server listens for UDP datagrams and dispatches each new source address
// through Events as a distinct Remote, the same shape as tcp.Server and
// ws.Acceptor minus any handshake or backlog cap (UDP has no connection
// setup to reject).
type Server struct {
	events   Events
	listener net.Listener
}

// NewServer builds a Server.
func NewServer(ev Events) *Server {
	return &Server{events: ev}
}

// Listen binds addr (host:port) using pion/udp's connection-oriented
// listener, per spec §6's protocol/address configuration surface.
func (s *Server) Listen(addr string) error {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	ln, err := pudp.Listen("udp", laddr)
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
		r := &Remote{conn: conn, events: s.events}
		if s.events.OnConnected != nil {
			s.events.OnConnected(r)
		}
		go r.readLoop()
	}
}

// Close stops accepting new remotes.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Client sends datagrams to a fixed remote address.
type Client struct{}

// NewClient builds a Client.
func NewClient() *Client { return &Client{} }

// Dial "connects" a UDP socket to address (sets the default destination
// for Write, per net.DialUDP semantics) and starts a read loop.
func (c *Client) Dial(address string, ev Events) (*Remote, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		if ev.OnError != nil {
			ev.OnError(nil, err)
		}
		return nil, err
	}
	r := &Remote{conn: conn, events: ev}
	if ev.OnConnected != nil {
		ev.OnConnected(r)
	}
	go r.readLoop()
	return r, nil
}
