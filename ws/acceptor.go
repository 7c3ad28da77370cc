package ws

import (
	"encoding/hex"
	"net"
	"strconv"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/netframe/wsio/ws/wslog"
)

// AcceptorEvents are the acceptor-level callbacks from spec §6: "Acceptor
// surface adds {on_connection (acceptor-level), on_close, on_error}".
type AcceptorEvents struct {
	// OnConnection fires once the Endpoint for a newly accepted socket
	// has completed its handshake (request validated, 101 sent) and moved
	// to OPEN, carrying the parsed HandshakeRequest so the application can
	// inspect headers before OnConnected/OnMessageReceived fire on the
	// Endpoint itself.
	OnConnection func(ep *Endpoint, req *HandshakeRequest)
	OnClose      func()
	OnError      func(err error)
}

// highwayHashKey is a fixed, process-local 32-byte key used only to derive
// a stable map key for each live Endpoint (SPEC_FULL §3 domain-stack
// wiring for github.com/minio/highwayhash, a teacher dependency). It is
// not a security boundary: the hashed input is the nuid-generated ID, never
// an adversary-controlled value. Two live Endpoints whose IDs hashed to the
// same 64-bit sum would share one map entry.
var highwayHashKey = make([]byte, 32)

// endpointKey derives the ServerAcceptor's live-set map key for ep from
// its nuid-based ID, per spec §3: "a mapping from live Endpoint identity
// to its owning reference".
func endpointKey(ep *Endpoint) uint64 {
	return highwayhash.Sum64([]byte(ep.ID), highwayHashKey)
}

// connFingerprint derives a short non-wire operational identifier for an
// accepted Endpoint from its remote address and nuid, purely for log
// correlation (SPEC_FULL §3's golang.org/x/crypto/blake2b wiring) — it
// never travels over the wire and has no bearing on protocol correctness.
func connFingerprint(ep *Endpoint, remote net.Addr) string {
	sum := blake2b.Sum256([]byte(ep.ID + "|" + remote.String()))
	return hex.EncodeToString(sum[:8])
}

// Acceptor is the WebSocket server acceptor from spec §3/§4.5.
//
// Grounded on the teacher's srvWebsocket plus Server.startWebsocketServer
// (server/websocket.go), generalized from a type embedded in NATS's
// *Server (which owns one global websocket listener alongside its client
// and leafnode listeners) into a standalone, constructible acceptor that
// owns exactly its listener, live-set, backlog cap, and event callbacks,
// per spec §3's Ownership note ("ServerAcceptor exclusively owns its
// listener socket and shares ownership of each Endpoint with the
// application").
type Acceptor struct {
	Events  AcceptorEvents
	Options *Options

	endpointEvents Events // per-Endpoint events installed on every accepted connection

	logFactory wslog.Factory
	log        wslog.Logger

	mu       sync.Mutex // guards listener/live exactly per spec §5
	listener net.Listener
	live     map[uint64]*Endpoint
	closed   bool
}

// NewAcceptor builds an Acceptor. endpointEvents is installed on every
// Endpoint the acceptor constructs — spec §4.4's Endpoint event set is
// per-connection, while acceptorEvents is the acceptor-level set from
// spec §6.
func NewAcceptor(endpointEvents Events, acceptorEvents AcceptorEvents, opts *Options) *Acceptor {
	lf := wslog.NewDefaultFactory()
	return &Acceptor{
		Events:         acceptorEvents,
		Options:        opts,
		endpointEvents: endpointEvents,
		logFactory:     lf,
		log:            lf.NewLogger("ws-acceptor"),
		live:           make(map[uint64]*Endpoint),
	}
}

// Listen binds the listener per spec §4.5 ("binds a TCP listener to a
// configured address/port/protocol with reuse-address optionally set") and
// starts the perpetual accept loop on its own goroutine. Re-opening after
// Close is permitted, per spec §4.5's final line.
func (a *Acceptor) Listen(host string, port int) error {
	a.mu.Lock()
	if a.listener != nil {
		a.mu.Unlock()
		return errors.New("ws: acceptor already listening")
	}
	a.closed = false
	network := "tcp4"
	reuse := false
	if a.Options != nil {
		network = a.Options.Protocol.network()
		reuse = a.Options.ReuseAddress
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	// The TLS handshake happens per accepted connection in handleAccepted,
	// between accept and the handshake read (spec §4.6) — the listener
	// itself only ever hands back plain TCP conns.
	ln, err := listenWithOptions(network, addr, reuse)
	if err != nil {
		a.mu.Unlock()
		return errors.Wrap(err, "ws: unable to listen for websocket connections")
	}
	a.listener = ln
	a.mu.Unlock()

	a.log.Infof("listening for websocket connections on %s", ln.Addr())
	go a.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address, or nil if not listening.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// acceptLoop is spec §4.5's perpetual async accept: "On each accepted
// socket: [backlog check, construct Endpoint, install on_close hook,
// issue the next accept]. Accept errors other than 'acceptor closed' are
// reported via on_error and followed by another accept."
func (a *Acceptor) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if a.isClosed() {
				a.log.Debugf("%v", ErrAcceptorClosed)
				return
			}
			werr := errors.Wrap(err, "ws: accept failed")
			a.log.Errorf("%v", werr)
			if a.Events.OnError != nil {
				a.Events.OnError(werr)
			}
			continue
		}
		go a.handleAccepted(conn)
	}
}

func (a *Acceptor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// handleAccepted implements spec §4.5 step 1: enforce the backlog cap,
// then either shut the socket immediately (no on_connection fired) or
// construct an Endpoint and begin its handshake read.
func (a *Acceptor) handleAccepted(conn net.Conn) {
	a.mu.Lock()
	if uint32(len(a.live)) >= a.Options.backlog() {
		a.mu.Unlock()
		a.log.Warnf("rejecting connection from %s: backlog full", conn.RemoteAddr())
		conn.Close()
		return
	}
	a.mu.Unlock()

	tlsOpts := (*TLSOptions)(nil)
	if a.Options != nil {
		tlsOpts = a.Options.TLS
	}
	stream, err := upgradeAccepted(conn, tlsOpts)
	if err != nil {
		conn.Close()
		if a.Events.OnError != nil {
			a.Events.OnError(err)
		}
		return
	}

	ep := newEndpoint(stream, RoleServer, a.wrapEndpointEvents(), a.logFactory.NewLogger("ws-endpoint"))
	req, err := ep.handshakeAsServer(a.Options)
	if err != nil {
		if a.Events.OnError != nil {
			a.Events.OnError(err)
		}
		// A request that parsed but failed validation gets
		// on_handshake_rejected with the parsed request, mirroring
		// original_source's on_unexpected_handshake(request); a request
		// that never parsed (req == nil) skips straight to close.
		reason := "Error trying to read handshake"
		if req != nil {
			if ep.events.OnHandshakeRejected != nil {
				ep.events.OnHandshakeRejected(ep, req)
			}
			reason = "Protocol error"
		}
		ep.Close(CloseProtocolError, reason)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		stream.Close()
		return
	}
	a.live[endpointKey(ep)] = ep
	a.mu.Unlock()

	a.log.Debugf("accepted connection %s fingerprint=%s", ep.ID, connFingerprint(ep, conn.RemoteAddr()))

	if !ep.cc.transition(StateClosed, StateOpen) {
		return
	}
	if a.Options != nil && a.Options.IdleTimeout > 0 {
		ep.idleNotify = newIdleGuard(a.Options.IdleTimeout, func() {
			ep.Close(CloseAbnormal, "Idle timeout")
		})
	}
	if a.Events.OnConnection != nil {
		a.Events.OnConnection(ep, req)
	}
	if ep.events.OnConnected != nil {
		ep.events.OnConnected(ep)
	}
	ep.runReadLoop()
}

// wrapEndpointEvents installs the acceptor's live-set removal hook on top
// of the application's OnClose callback, per spec §4.5 step 2 and §9's
// "Cyclic/backpointer concern": the Endpoint's close hook looks the
// acceptor up by value (a plain method call on *Acceptor, not a pointer
// cycle back through the Endpoint) to remove itself — there is no
// Endpoint->Acceptor field, only this closure captured at construction.
func (a *Acceptor) wrapEndpointEvents() Events {
	ev := a.endpointEvents
	userOnClose := ev.OnClose
	ev.OnClose = func(ep *Endpoint, info CloseInfo) {
		a.removeLive(ep)
		if userOnClose != nil {
			userOnClose(ep, info)
		}
	}
	return ev
}

func (a *Acceptor) removeLive(ep *Endpoint) {
	a.mu.Lock()
	delete(a.live, endpointKey(ep))
	a.mu.Unlock()
}

// Close implements spec §4.5's acceptor teardown: stop accepting, close
// every live Endpoint, drain the set, shut the listener, fire on_close.
func (a *Acceptor) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	ln := a.listener
	a.listener = nil
	endpoints := make([]*Endpoint, 0, len(a.live))
	for _, ep := range a.live {
		endpoints = append(endpoints, ep)
	}
	a.mu.Unlock()

	for _, ep := range endpoints {
		ep.Close(CloseGoingAway, "Server shutdown")
	}
	a.mu.Lock()
	a.live = make(map[uint64]*Endpoint)
	a.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if a.Events.OnClose != nil {
		a.Events.OnClose()
	}
}

// LiveCount returns the number of currently accepted Endpoints, useful for
// tests asserting spec property 8 (backlog cap).
func (a *Acceptor) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
