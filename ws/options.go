package ws

import (
	"crypto/tls"
	"time"
)

// IPProtocol selects the address family used by a listener or resolver,
// per spec §6's `protocol ∈ {v4, v6}`.
type IPProtocol int

const (
	ProtocolV4 IPProtocol = iota
	ProtocolV6
)

func (p IPProtocol) network() string {
	if p == ProtocolV6 {
		return "tcp6"
	}
	return "tcp4"
}

// FileFormat names the encoding of key/cert byte blobs passed to
// TLSOptions, per spec §6.
type FileFormat int

const (
	FormatPEM FileFormat = iota
	FormatASN1
)

// VerifyMode controls peer certificate verification, per spec §6.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyPeer
	VerifyFailIfNoPeerCert
)

// TLSOptions carries the secure-stream configuration surface spec §6 names.
// wsio treats certificate/key material as opaque in-memory blobs and never
// manages rotation or file watching — that construction detail is an
// external collaborator per spec §1 ("TLS configuration... is external").
type TLSOptions struct {
	PrivateKey           []byte
	Cert                 []byte
	CertChain            []byte
	RSAPrivateKey        []byte
	FileFormat           FileFormat
	VerifyMode           VerifyMode
	HostNameVerification string

	// Config, when set, is used as-is instead of being built from the
	// byte-blob fields above. This is the primary integration point: most
	// callers construct a *tls.Config themselves and hand it in, since
	// certificate loading conventions vary too much to standardize here.
	Config *tls.Config
}

// Options is the Endpoint/Acceptor configuration surface from spec §6.
// Grounded on the teacher's WebsocketOpts/validateWebsocketOptions
// (server/websocket.go), generalized away from the NATS-specific auth
// fields (Users, Nkeys, JWTCookie, TrustedOperators) which have no home in
// a standalone WebSocket library.
type Options struct {
	Protocol     IPProtocol
	ReuseAddress bool
	Backlog      uint32 // 0 means unlimited, per spec §6
	IdleTimeout  time.Duration

	TLS *TLSOptions // nil means cleartext (ws://), non-nil means wss://

	// AllowedOrigins and SameOrigin control origin checking (SPEC_FULL §4);
	// both empty/false means any Origin is accepted. When either is set, a
	// request without an Origin header is rejected, and a non-empty
	// AllowedOrigins must contain the Origin exactly. SameOrigin does not
	// compare the Origin against the request's Host.
	AllowedOrigins []string
	SameOrigin     bool

	// Subprotocols is the server's supported Sec-WebSocket-Protocol list,
	// in preference order; the handshake negotiates the first one the
	// client also offers (SPEC_FULL §4).
	Subprotocols []string
}

// backlog returns the effective cap, treating 0 as "unlimited" by
// returning the largest representable value rather than special-casing
// zero at every call site.
func (o *Options) backlog() uint32 {
	if o == nil || o.Backlog == 0 {
		return ^uint32(0)
	}
	return o.Backlog
}

func (o *Options) idleTimeout() time.Duration {
	if o == nil {
		return 0
	}
	return o.IdleTimeout
}
