package ws

import (
	"encoding/binary"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// CloseCode is a WebSocket close status code, RFC 6455 §11.7. wsio keeps
// the full table rather than spec §3's abbreviated 1000/1002/1006 set,
// since close(code, reason) accepts any caller-supplied code and the wire
// codec must round-trip all of them (SPEC_FULL §4, grounded on
// original_source and the teacher's wsCloseStatus* constants).
type CloseCode uint16

const (
	CloseNormal              CloseCode = 1000
	CloseGoingAway           CloseCode = 1001
	CloseProtocolError       CloseCode = 1002
	CloseUnsupportedData     CloseCode = 1003
	CloseNoStatusReceived    CloseCode = 1005
	CloseAbnormal            CloseCode = 1006
	CloseInvalidPayloadData  CloseCode = 1007
	ClosePolicyViolation     CloseCode = 1008
	CloseMessageTooBig       CloseCode = 1009
	CloseInternalServerError CloseCode = 1011
	CloseTLSHandshake        CloseCode = 1015
)

// CloseInfo is the (code, reason) pair exchanged in a CLOSE frame, per
// spec §3.
type CloseInfo struct {
	Code   CloseCode
	Reason string
}

// closeIdleTimeout is the fixed close-handshake idle timer from spec §4.3;
// it is not configurable, unlike Options.IdleTimeout which governs ordinary
// read/write idleness.
const closeIdleTimeout = 5 * time.Second

// State is the Endpoint lifecycle state from spec §3.
type State int32

const (
	StateClosed State = iota
	StateClosing
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateClosing:
		return "CLOSING"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// encodeCloseFrame builds the CLOSE frame payload per spec §4.3:
// "code_hi, code_lo, reason_bytes…".
func encodeCloseFrame(info CloseInfo) []byte {
	if info.Code == 0 {
		return nil
	}
	reason := info.Reason
	if len(reason) > maxControlPayload-2 {
		reason = reason[:maxControlPayload-5] + "..."
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(info.Code))
	copy(buf[2:], reason)
	return buf
}

// decodeCloseFrame parses a CLOSE frame payload per spec §4.3/§6: an empty
// payload synthesizes 1000 (spec §6: "this core synthesizes 1000 on an
// empty-payload receive"); a payload with fewer than 2 bytes, or a body
// that is not valid UTF-8, is reported as 1007 per RFC 6455 §5.5.1 — a
// behavior carried from the teacher's wsHandleControlFrame.
func decodeCloseFrame(payload []byte) CloseInfo {
	if len(payload) == 0 {
		return CloseInfo{Code: CloseNormal}
	}
	if len(payload) < 2 {
		return CloseInfo{Code: CloseInvalidPayloadData, Reason: "truncated close payload"}
	}
	code := CloseCode(binary.BigEndian.Uint16(payload[:2]))
	reason := string(payload[2:])
	if reason != "" && !utf8.ValidString(reason) {
		return CloseInfo{Code: CloseInvalidPayloadData, Reason: "invalid utf8 body in close frame"}
	}
	return CloseInfo{Code: code, Reason: reason}
}

// closeController drives the three-state machine from spec §4.3 and
// guarantees property 4 (exactly one on_close per Endpoint lifetime) via
// atomic compare-and-swap transitions, per §9's "Close state race" note:
// the teacher's `state` field uses a plain assignment guarded only by the
// client mutex, which the spec flags as insufficiently ordered for a
// reimplementation.
type closeController struct {
	state     int32 // State, accessed only through atomic ops
	closeOnce int32 // guards firing onClose exactly once

	timer   *time.Timer
	onTimer func()
}

func newCloseController() *closeController {
	return &closeController{state: int32(StateClosed)}
}

func (c *closeController) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// transition performs an atomic compare-and-swap from `from` to `to` and
// reports whether it succeeded. A failed transition means another
// goroutine already moved the state (e.g. a concurrent I/O error raced
// with a user end() call); callers treat that as a no-op, matching spec
// §4.4's "idempotent" contract on end()/close().
func (c *closeController) transition(from, to State) bool {
	return atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to))
}

// forceClosed unconditionally moves to CLOSED regardless of current state,
// used by close(code, reason) which spec §4.4 documents as an "immediate
// forced shutdown" from any state.
func (c *closeController) forceClosed() State {
	return State(atomic.SwapInt32(&c.state, int32(StateClosed)))
}

// armIdleTimer starts the 5s close-handshake timer from spec §4.3/§5. The
// timer is armed at most once per controller: any later call is a no-op,
// including after the timer has fired or been stopped.
func (c *closeController) armIdleTimer(fire func()) {
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(closeIdleTimeout, fire)
}

func (c *closeController) cancelIdleTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

// markClosedOnce reports true exactly once across the Endpoint's lifetime,
// guaranteeing spec property 4: "on_close fires exactly once per Endpoint".
func (c *closeController) markClosedOnce() bool {
	return atomic.CompareAndSwapInt32(&c.closeOnce, 0, 1)
}
