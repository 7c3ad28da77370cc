package ws

import (
	"bufio"
	"sync"

	"github.com/nats-io/nuid"
	"github.com/pkg/errors"

	"github.com/netframe/wsio/ws/wslog"
)

// Role identifies which side of the connection an Endpoint plays. It
// governs the masking discipline from spec §3/§4.3: clients mask outbound
// frames and reject unmasked inbound ones; servers do the opposite.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Events is the fixed, typed callback set from spec §4.4/§6. Using a
// struct of named fields (rather than the teacher's ad hoc method
// dispatch baked into *client) follows §9's "Callback flexibility" note:
// a missing callback defaults to a silent no-op instead of a nil-func
// panic, and the compiler enforces every signature.
type Events struct {
	OnConnected           func(ep *Endpoint)
	OnUnexpectedHandshake func(ep *Endpoint, resp *HandshakeResponse)
	// OnHandshakeRejected is the server-side counterpart of
	// OnUnexpectedHandshake: it fires with the rejected HandshakeRequest
	// when handshakeAsServer's validation fails, mirroring
	// original_source's wsremote.hpp on_unexpected_handshake(request).
	OnHandshakeRejected func(ep *Endpoint, req *HandshakeRequest)
	OnMessageReceived   func(ep *Endpoint, payload []byte, isBinary bool)
	OnPing              func(ep *Endpoint)
	OnPong              func(ep *Endpoint)
	OnClose             func(ep *Endpoint, info CloseInfo)
	OnError             func(ep *Endpoint, err error)
}

// Endpoint is a single WebSocket connection, client or server side, per
// spec §3's Endpoint data model and §4.4's public contract.
//
// Grounded on the teacher's *client type combined with its embedded
// *websocket struct (server/websocket.go) — generalized from a type
// welded to NATS's protocol engine (subscriptions, account routing) into
// a standalone connection object that owns exactly what spec §3 names:
// socket, receive buffer, state, idle timer, and peer handshake key. There
// is no separate wait flag: the CLOSING state of the close controller marks
// that a CLOSE reply is awaited.
type Endpoint struct {
	ID   string // nuid-generated correlation ID, SPEC_FULL §3 domain-stack wiring
	Role Role

	conn   secureStream
	events Events
	log    wslog.Logger
	cc     *closeController

	writeMu sync.Mutex // serializes writes per spec §5 "writes are serialized"
	keyGen  *keyGenerator

	recvBuf []byte // growable receive buffer, spec §3

	// peerHandshakeKey is the Sec-WebSocket-Key a client Endpoint sent in
	// its upgrade request. Only handshakeAsClient sets it; the server side
	// reads the key straight from the parsed request headers.
	peerHandshakeKey string

	NegotiatedProtocol string

	idleNotify func() // hook invoked on every successful read/write, SPEC_FULL §4 idle-timeout note
}

func newEndpoint(conn secureStream, role Role, events Events, log wslog.Logger) *Endpoint {
	ep := &Endpoint{
		ID:     nuid.Next(),
		Role:   role,
		conn:   conn,
		events: events,
		log:    log,
		cc:     newCloseController(),
	}
	if role == RoleClient {
		ep.keyGen = processKeyGen
	}
	return ep
}

// State reports the Endpoint's current lifecycle state, spec §3.
func (ep *Endpoint) State() State { return ep.cc.State() }

// ---- Write-side operations, spec §4.4 ----

// Write sends a TEXT frame. Per spec §4.4 it requires OPEN and a non-empty
// payload; false is returned otherwise (programmer error, not escalated to
// on_error per spec §7).
func (ep *Endpoint) Write(text string) bool {
	if text == "" {
		return false
	}
	return ep.sendData(OpText, []byte(text))
}

// WriteBuffer sends a BINARY frame with the same constraints as Write.
func (ep *Endpoint) WriteBuffer(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return ep.sendData(OpBinary, data)
}

func (ep *Endpoint) sendData(op Opcode, payload []byte) bool {
	if ep.State() != StateOpen {
		return false
	}
	return ep.writeFrame(Frame{Fin: true, Opcode: op, Payload: payload}) == nil
}

// Ping sends a PING control frame with an empty payload.
func (ep *Endpoint) Ping() bool { return ep.sendControl(OpPing, nil) }

// Pong sends a PONG control frame with an empty payload.
func (ep *Endpoint) Pong() bool { return ep.sendControl(OpPong, nil) }

func (ep *Endpoint) sendControl(op Opcode, payload []byte) bool {
	if ep.State() != StateOpen {
		return false
	}
	return ep.writeFrame(Frame{Fin: true, Opcode: op, Payload: payload}) == nil
}

// writeFrame applies the masking discipline from spec §3/invariant 6
// (client frames mask=true with a fresh key; server frames mask=false) and
// serializes writes under writeMu per spec §5.
func (ep *Endpoint) writeFrame(f Frame) error {
	if ep.Role == RoleClient {
		f.Mask = true
		f.MaskingKey = ep.keyGen.Next()
	} else {
		f.Mask = false
	}
	buf := f.Encode()

	ep.writeMu.Lock()
	defer ep.writeMu.Unlock()
	_, err := ep.conn.Write(buf)
	if ep.idleNotify != nil {
		ep.idleNotify()
	}
	if err != nil {
		ep.fail(errors.Wrap(err, "ws: write failed"))
	}
	return err
}

// ---- Close-side operations, spec §4.3/§4.4 ----

// End initiates the graceful close handshake: send CLOSE(code, reason),
// start the 5s idle timer, and keep reading for the peer's echo. It is
// idempotent; calling it more than once, or after the peer already closed,
// is a no-op.
func (ep *Endpoint) End(code CloseCode, reason string) {
	if code == 0 {
		code = CloseNormal
	}
	if !ep.cc.transition(StateOpen, StateClosing) {
		return
	}
	ep.writeFrame(Frame{Fin: true, Opcode: OpClose, Payload: encodeCloseFrame(CloseInfo{Code: code, Reason: reason})})
	ep.cc.armIdleTimer(func() {
		if ep.cc.transition(StateClosing, StateClosed) {
			ep.teardown(CloseInfo{Code: CloseNormal, Reason: "Timeout"})
		}
	})
}

// Close forces an immediate shutdown from any state, firing on_close
// exactly once, per spec §4.4/§4.3 ("any" -> "CLOSED" on user close()).
// This includes an Endpoint that never reached OPEN (a failed handshake):
// teardown's own markClosedOnce guards against a double fire, so there is
// no need to additionally gate on the state forceClosed observed.
func (ep *Endpoint) Close(code CloseCode, reason string) {
	ep.cc.forceClosed()
	ep.cc.cancelIdleTimer()
	ep.teardown(CloseInfo{Code: code, Reason: reason})
}

// fail reports an I/O error and forces an abnormal close (1006), per spec
// §7's "Abnormal socket close" row. Like Close, it tears down unconditionally
// and relies on teardown's markClosedOnce for idempotency.
func (ep *Endpoint) fail(err error) {
	ep.cc.forceClosed()
	ep.cc.cancelIdleTimer()
	ep.dispatchErr(err)
	ep.teardown(CloseInfo{Code: CloseAbnormal, Reason: "Abnormal closure"})
}

func (ep *Endpoint) dispatchErr(err error) {
	if ep.events.OnError != nil {
		ep.events.OnError(ep, err)
	}
}

// teardown shuts the transport down and fires on_close exactly once,
// guaranteeing spec property 4.
func (ep *Endpoint) teardown(info CloseInfo) {
	if !ep.cc.markClosedOnce() {
		return
	}
	_ = shutdownSecure(ep.conn)
	if ep.events.OnClose != nil {
		ep.events.OnClose(ep, info)
	}
}

// ---- Receive loop, spec §4.4 ----

// runReadLoop is the persistent read described in spec §4.4: "after OPEN, a
// persistent read awaits >= 1 byte into the connection's receive buffer,
// then repeatedly invokes the frame decoder." It runs on its own goroutine
// — the idiomatic Go stand-in for the reactor's async read chain (SPEC_FULL
// §1.1) — and is the only goroutine that ever touches ep.recvBuf, so no
// lock is needed around it.
func (ep *Endpoint) runReadLoop() {
	chunk := make([]byte, 4096)
	for ep.State() == StateOpen || ep.State() == StateClosing {
		n, err := ep.conn.Read(chunk)
		if err != nil {
			if ep.State() == StateClosed {
				return // torn down concurrently by End()'s timer or Close()
			}
			ep.fail(errors.Wrap(err, "ws: read failed"))
			return
		}
		if ep.idleNotify != nil {
			ep.idleNotify()
		}
		ep.recvBuf = append(ep.recvBuf, chunk[:n]...)
		if !ep.drainFrames() {
			return
		}
	}
}

// drainFrames repeatedly decodes complete frames out of ep.recvBuf,
// dispatching each one, until a partial frame remains (spec §4.4: "After
// dispatch, consumed bytes are dropped from the receive buffer"). It
// returns false if the loop should stop (state left OPEN/CLOSING, or a
// protocol error tore the connection down).
func (ep *Endpoint) drainFrames() bool {
	for {
		if ep.State() != StateOpen && ep.State() != StateClosing {
			return false
		}
		f, n, err := Decode(ep.recvBuf)
		if err == ErrShortFrame {
			return true
		}
		if err != nil {
			ep.protocolViolation(err)
			return false
		}
		ep.recvBuf = ep.recvBuf[n:]
		if !ep.validateFrame(f) {
			return false
		}
		if !ep.dispatch(f) {
			return false
		}
	}
}

// validateFrame enforces the invariants spec §4.1 explicitly leaves to the
// caller: opcode legality, control-frame fin/size constraints (§9's open
// question, resolved here per RFC 6455), and masking discipline
// (§4.3/property 6 — servers reject unmasked data, clients reject masked).
func (ep *Endpoint) validateFrame(f Frame) bool {
	if !f.Opcode.valid() {
		ep.protocolViolation(ErrReservedOpcode)
		return false
	}
	if f.Opcode.IsControl() {
		if !f.Fin || len(f.Payload) > maxControlPayload {
			ep.protocolViolation(ErrControlFrameTooLarge)
			return false
		}
	}
	wantMask := ep.Role == RoleServer // servers must see masked frames, clients must not
	if f.Mask != wantMask {
		ep.protocolViolation(ErrMaskMismatch)
		return false
	}
	return true
}

// protocolViolation forces an immediate close with 1002, per spec §7's
// error table: masking violations, oversized control frames, and invalid
// opcodes all close(1002) at once rather than attempting the graceful
// End() handshake a non-conforming peer will never echo.
func (ep *Endpoint) protocolViolation(err error) {
	ep.Close(CloseProtocolError, "Protocol error — "+err.Error())
}

// dispatch fires the event for one validated frame and hands CLOSE frames
// to the close controller's state machine (spec §4.3 table). It returns
// false once the connection has left OPEN/CLOSING so the caller's read
// loop can exit — spec §4.3 guarantees "no further on_message_received
// fires after entering CLOSING" for data frames, which holds here because
// CLOSING only accepts the peer's echoing CLOSE frame.
func (ep *Endpoint) dispatch(f Frame) bool {
	switch f.Opcode {
	case OpText:
		if ep.State() != StateOpen {
			return true
		}
		if ep.events.OnMessageReceived != nil {
			ep.events.OnMessageReceived(ep, f.Payload, false)
		}
	case OpBinary:
		if ep.State() != StateOpen {
			return true
		}
		if ep.events.OnMessageReceived != nil {
			ep.events.OnMessageReceived(ep, f.Payload, true)
		}
	case OpPing:
		if ep.events.OnPing != nil {
			ep.events.OnPing(ep)
		}
		ep.sendControl(OpPong, nil)
	case OpPong:
		if ep.events.OnPong != nil {
			ep.events.OnPong(ep)
		}
	case OpClose:
		return ep.handlePeerClose(decodeCloseFrame(f.Payload))
	default:
		// OpContinuation: no reassembly support, spec §9 open question —
		// surfaced as an independent message rather than buffered.
		if ep.State() != StateOpen {
			return true
		}
		if ep.events.OnMessageReceived != nil {
			ep.events.OnMessageReceived(ep, f.Payload, true)
		}
	}
	return true
}

// handlePeerClose implements spec §4.3's two CLOSE-receiving rows:
// OPEN -> CLOSING (echo the peer's code, then move to CLOSED) and
// CLOSING -> CLOSED (cancel timer, shut down, fire on_close once).
func (ep *Endpoint) handlePeerClose(info CloseInfo) bool {
	if ep.cc.transition(StateOpen, StateClosing) {
		ep.writeFrame(Frame{Fin: true, Opcode: OpClose, Payload: encodeCloseFrame(info)})
		if ep.cc.transition(StateClosing, StateClosed) {
			ep.teardown(info)
		}
		return false
	}
	if ep.cc.transition(StateClosing, StateClosed) {
		ep.cc.cancelIdleTimer()
		ep.teardown(info)
	}
	return false
}

// ---- Connection bring-up ----

// handshakeAsClient runs the client side of spec §4.2: build the request,
// send it, parse the response, and validate it. It does not change the
// state; Client.Connect moves CLOSED -> OPEN once it returns nil.
func (ep *Endpoint) handshakeAsClient(host, path string, protocols []string) error {
	req, key := NewHandshakeRequest(host, path, protocols)
	ep.peerHandshakeKey = key
	if _, err := ep.conn.Write(req.Build()); err != nil {
		return errors.Wrap(err, "ws: failed to send handshake request")
	}
	br := bufio.NewReader(ep.conn)
	resp, err := ParseResponse(br)
	if err != nil {
		return errors.Wrap(err, "ws: failed to parse handshake response")
	}
	if err := ValidateResponse(resp, key); err != nil {
		if ep.events.OnUnexpectedHandshake != nil {
			ep.events.OnUnexpectedHandshake(ep, resp)
		}
		return err
	}
	ep.NegotiatedProtocol = resp.Protocol
	ep.drainBufferedReader(br)
	return nil
}

// handshakeAsServer runs the server side of spec §4.2: parse the request,
// validate it, and write the 101 (or error) response. It does not change
// the state; Acceptor.handleAccepted moves CLOSED -> OPEN on success.
func (ep *Endpoint) handshakeAsServer(opts *Options) (*HandshakeRequest, error) {
	br := bufio.NewReader(ep.conn)
	req, err := ParseRequest(br)
	if err != nil {
		return nil, errors.Wrap(err, "ws: failed to parse handshake request")
	}
	if errResp, verr := ValidateRequest(req); verr != nil {
		ep.conn.Write(errResp.Build())
		return req, verr
	}
	if err := checkOrigin(req, opts); err != nil {
		resp := &HandshakeResponse{Version: "1.1", Status: 403, Reason: "Forbidden", Body: []byte(err.Error())}
		ep.conn.Write(resp.Build())
		return req, err
	}
	negotiated := negotiateProtocol(req.Protocols, optsSubprotocols(opts))
	resp := BuildSuccessResponse(req.Headers.Get("Sec-WebSocket-Key"), negotiated)
	if _, err := ep.conn.Write(resp.Build()); err != nil {
		return req, errors.Wrap(err, "ws: failed to send handshake response")
	}
	ep.NegotiatedProtocol = negotiated
	ep.drainBufferedReader(br)
	return req, nil
}

// drainBufferedReader moves any bytes bufio already buffered past the
// handshake boundary into recvBuf, so the frame decoder sees them. The
// teacher's wsUpgrade instead requires a Hijacker with zero buffered bytes
// and fails the handshake otherwise; wsio is transport-agnostic (it also
// runs over net.Conn obtained without net/http), so it drains instead of
// rejecting.
func (ep *Endpoint) drainBufferedReader(br *bufio.Reader) {
	if n := br.Buffered(); n > 0 {
		buf := make([]byte, n)
		_, _ = br.Read(buf)
		ep.recvBuf = append(ep.recvBuf, buf...)
	}
}

func optsSubprotocols(opts *Options) []string {
	if opts == nil {
		return nil
	}
	return opts.Subprotocols
}

// negotiateProtocol returns the first server-supported protocol the
// client also offered, or "" if none match — SPEC_FULL §4, grounded on
// original_source's WebsocketServer.hpp subprotocol table lookup.
func negotiateProtocol(clientOffered, serverSupported []string) string {
	for _, sp := range serverSupported {
		for _, cp := range clientOffered {
			if sp == cp {
				return sp
			}
		}
	}
	return ""
}

// checkOrigin reproduces the teacher's srvWebsocket.checkOrigin
// (server/websocket.go): if no allow-list is configured and same-origin
// checking is off, any Origin (or none) is accepted.
func checkOrigin(req *HandshakeRequest, opts *Options) error {
	if opts == nil || (!opts.SameOrigin && len(opts.AllowedOrigins) == 0) {
		return nil
	}
	origin := req.Headers.Get("Origin")
	if origin == "" {
		return errors.New("ws: origin not provided")
	}
	if len(opts.AllowedOrigins) == 0 {
		return nil
	}
	for _, ao := range opts.AllowedOrigins {
		if ao == origin {
			return nil
		}
	}
	return errors.Errorf("ws: origin %q not allowed", origin)
}
