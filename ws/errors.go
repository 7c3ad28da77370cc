package ws

import "github.com/pkg/errors"

// Sentinel errors returned by the frame codec, handshake codec, and the
// close controller. Callers should compare with errors.Is / errors.Cause
// rather than string-matching, per the teacher's preference for typed
// protocol-error reporting over ad hoc fmt.Errorf.
var (
	// ErrShortFrame is returned by Decode when the supplied buffer does not
	// yet contain a full frame header, extended length, masking key, or
	// payload. It is not a protocol violation: the caller should read more
	// bytes and retry.
	ErrShortFrame = errors.New("ws: need more bytes to decode frame")

	// ErrControlFrameTooLarge is returned when a control opcode (CLOSE,
	// PING, PONG) carries a payload longer than 125 bytes, or is
	// fragmented (fin=false). RFC 6455 requires closing with 1002.
	ErrControlFrameTooLarge = errors.New("ws: control frame payload exceeds 125 bytes")

	// ErrReservedOpcode is returned for an opcode the codec does not
	// recognize (anything outside TEXT/BINARY/CLOSE/PING/PONG/continuation).
	ErrReservedOpcode = errors.New("ws: reserved or unknown opcode")

	// ErrMaskMismatch signals a masking-discipline violation: a server
	// received an unmasked data frame, or a client received a masked one.
	ErrMaskMismatch = errors.New("ws: unexpected payload mask")

	// ErrNotOpen names the programmer error of using an Endpoint that is
	// not OPEN (§7). Write, WriteBuffer, Ping and Pong report that case by
	// returning false; they do not return this error.
	ErrNotOpen = errors.New("ws: endpoint is not open")

	// ErrHandshakeFailed covers any HTTP upgrade validation failure, client
	// or server side (missing header, wrong accept key, bad method/version).
	ErrHandshakeFailed = errors.New("ws: handshake validation failed")

	// ErrAcceptorClosed is logged by the accept loop when it exits after
	// Close has been called; it is never surfaced through on_error.
	ErrAcceptorClosed = errors.New("ws: acceptor closed")

	// ErrProtocol is wrapped (via protocolError) by the handshake parser
	// for malformed request, status and header lines. Frame-level
	// violations use their own sentinels above.
	ErrProtocol = errors.New("ws: protocol error")
)

// protocolError wraps a message with ErrProtocol context and keeps the
// original cause recoverable via errors.Cause.
func protocolError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocol, format, args...)
}
