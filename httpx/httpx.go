// Package httpx is the plain HTTP client/server/remote triple from
// SPEC_FULL §0: it shares ws's handshake codec for its request/response
// wire format (spec.md §1: "they share the handshake parser in §4.2 but
// have no WebSocket-specific logic") without ever sending an Upgrade
// header or touching the frame codec.
//
// Grounded on the teacher's plain net.Listen/Dial accept skeleton
// (server/websocket.go), reusing ws.HandshakeRequest/ws.HandshakeResponse
// and ws.ParseRequest/ws.ParseResponse directly rather than re-parsing
// HTTP/1.1 a second time.
package httpx

import (
	"bufio"
	"context"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/netframe/wsio/ws"
)

// Events are the callbacks a Server fires: OnRequest for each parsed
// request and OnError when a request cannot be read. OnResponse and
// OnClose are not fired by this package.
type Events struct {
	OnRequest  func(r *Remote, req *ws.HandshakeRequest)
	OnResponse func(r *Remote, resp *ws.HandshakeResponse)
	OnClose    func(r *Remote, err error)
	OnError    func(r *Remote, err error)
}

// Remote is one accepted or dialed plain-HTTP connection. Write is gated
// by an optional token-bucket limiter (golang.org/x/time/rate, SPEC_FULL
// §3) standing in for the "applications needing bounded outstanding bytes
// must throttle externally" note in spec §5 — here surfaced as an
// in-library opt-in instead of left fully external.
type Remote struct {
	conn    net.Conn
	br      *bufio.Reader
	events  Events
	limiter *rate.Limiter // nil means unthrottled
}

func newRemote(conn net.Conn, ev Events, idleTimeout time.Duration) *Remote {
	r := &Remote{conn: conn, br: bufio.NewReader(conn), events: ev}
	if idleTimeout > 0 {
		r.conn.SetDeadline(time.Now().Add(idleTimeout))
	}
	return r
}

// SetRateLimit bounds outbound bytes/sec and the burst size, per
// SPEC_FULL §3's x/time/rate wiring.
func (r *Remote) SetRateLimit(bytesPerSec float64, burst int) {
	r.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// WriteRequest serializes and sends req using ws's shared Build() codec.
func (r *Remote) WriteRequest(req *ws.HandshakeRequest) error {
	return r.write(req.Build())
}

// WriteResponse serializes and sends resp using ws's shared Build() codec.
func (r *Remote) WriteResponse(resp *ws.HandshakeResponse) error {
	return r.write(resp.Build())
}

func (r *Remote) write(buf []byte) error {
	if r.limiter != nil {
		if err := r.limiter.WaitN(context.Background(), len(buf)); err != nil {
			return err
		}
	}
	_, err := r.conn.Write(buf)
	return err
}

// ReadRequest blocks for one full HTTP/1.1 request using ws.ParseRequest.
func (r *Remote) ReadRequest() (*ws.HandshakeRequest, error) {
	return ws.ParseRequest(r.br)
}

// ReadResponse blocks for one full HTTP/1.1 response using ws.ParseResponse.
func (r *Remote) ReadResponse() (*ws.HandshakeResponse, error) {
	return ws.ParseResponse(r.br)
}

// Close shuts down the underlying connection.
func (r *Remote) Close() error { return r.conn.Close() }

// Client dials out and performs a single plain HTTP request/response
// exchange, reusing the exact wire codec ws.Endpoint uses for its
// handshake but never sending Upgrade/Connection headers.
type Client struct{}

// NewClient builds a Client.
func NewClient() *Client { return &Client{} }

// Do dials address, writes req, and returns the parsed response.
func (c *Client) Do(network, address string, req *ws.HandshakeRequest) (*ws.HandshakeResponse, *Remote, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, nil, err
	}
	r := newRemote(conn, Events{}, 0)
	if err := r.WriteRequest(req); err != nil {
		conn.Close()
		return nil, nil, err
	}
	resp, err := r.ReadResponse()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return resp, r, nil
}

// Server accepts plain HTTP connections and dispatches each parsed request
// through Events, independent of ws.Acceptor's WebSocket-specific upgrade
// path (spec.md §1 Non-goals: httpx has no WebSocket logic).
type Server struct {
	events      Events
	idleTimeout time.Duration
	listener    net.Listener
}

// NewServer builds a Server. idleTimeout, when non-zero, is applied to
// every accepted Remote's connection deadline per SPEC_FULL §4's
// "per-connection idle read/write deadlines" supplement.
func NewServer(ev Events, idleTimeout time.Duration) *Server {
	return &Server{events: ev, idleTimeout: idleTimeout}
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
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	r := newRemote(conn, s.events, s.idleTimeout)
	req, err := r.ReadRequest()
	if err != nil {
		if s.events.OnError != nil {
			s.events.OnError(r, err)
		}
		conn.Close()
		return
	}
	if s.events.OnRequest != nil {
		s.events.OnRequest(r, req)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
