package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/pkg/errors"
)

// secureStream is the abstraction the Endpoint and Acceptor consume for
// all I/O, per spec §4.6: "The TLS adapter wraps the socket-owning field
// with a secure stream... All subsequent read/write operations use the
// secure stream." net.Conn already satisfies this for both a plain
// *net.TCPConn and a *tls.Conn, so no separate interface type is needed —
// the adapter's job is only to produce the right concrete net.Conn and to
// sequence the handshake relative to the HTTP upgrade.
type secureStream = net.Conn

// buildTLSConfig turns the byte-blob TLSOptions into a *tls.Config. If
// opts.Config is already set, it is cloned and returned as-is: most
// production callers build their own config (rotating certs, custom
// verifiers) and just hand it through.
//
// Grounded on the teacher's use of o.Websocket.TLSConfig directly
// (server/websocket.go's startWebsocketServer calls o.TLSConfig.Clone());
// the byte-blob path builds a config from in-memory blobs without assuming
// the application already owns a *tls.Config. Cert and PrivateKey are
// parsed as a PEM pair and CertChain is loaded as the trusted root pool;
// RSAPrivateKey and FileFormat are not read, so ASN.1 blobs are not
// supported.
func buildTLSConfig(opts *TLSOptions) (*tls.Config, error) {
	if opts == nil {
		return nil, nil
	}
	if opts.Config != nil {
		return opts.Config.Clone(), nil
	}
	cfg := &tls.Config{ServerName: opts.HostNameVerification}
	switch opts.VerifyMode {
	case VerifyNone:
		cfg.InsecureSkipVerify = true
	case VerifyPeer:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case VerifyFailIfNoPeerCert:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if len(opts.Cert) == 0 || len(opts.PrivateKey) == 0 {
		return cfg, nil
	}
	cert, err := tls.X509KeyPair(opts.Cert, opts.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "ws: failed to parse certificate/key pair")
	}
	cfg.Certificates = []tls.Certificate{cert}
	if len(opts.CertChain) > 0 {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(opts.CertChain) {
			cfg.RootCAs = pool
		}
	}
	return cfg, nil
}

// dialPlain performs the TCP-connect half of spec §4.4's connect()
// sequence ("schedules DNS resolve, TCP connect..."). It is kept separate
// from upgradeDialed so a TLS handshake failure can be reported against a
// real Endpoint per spec §7 ("TLS handshake failure ... on_close(1002,
// 'SSL/TLS handshake failed')"), while a bare connect failure never
// constructs one (§7: "no on_close since never OPEN").
func dialPlain(network, address string) (net.Conn, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "ws: connect failed")
	}
	return conn, nil
}

// upgradeDialed performs the client-side TLS handshake on an already
// connected socket, if tlsOpts is non-nil, per spec §4.6 ("performs the
// TLS handshake before the HTTP upgrade on client side").
func upgradeDialed(conn net.Conn, tlsOpts *TLSOptions) (secureStream, error) {
	if tlsOpts == nil {
		return conn, nil
	}
	cfg, err := buildTLSConfig(tlsOpts)
	if err != nil {
		return nil, err
	}
	tconn := tls.Client(conn, cfg)
	if err := tconn.HandshakeContext(context.Background()); err != nil {
		return nil, errors.Wrap(err, "ws: TLS handshake failed")
	}
	return tconn, nil
}

// upgradeAccepted performs the server-side TLS handshake on a freshly
// accepted connection, per spec §4.6 ("between TCP accept and the
// handshake read on server side").
func upgradeAccepted(conn net.Conn, tlsOpts *TLSOptions) (secureStream, error) {
	if tlsOpts == nil {
		return conn, nil
	}
	cfg, err := buildTLSConfig(tlsOpts)
	if err != nil {
		return nil, err
	}
	tconn := tls.Server(conn, cfg)
	if err := tconn.Handshake(); err != nil {
		return nil, errors.Wrap(err, "ws: TLS handshake failed")
	}
	return tconn, nil
}

// shutdownSecure performs the graceful-then-forced teardown from spec
// §4.6: "Shutdown first invokes a graceful TLS shutdown, then a TCP
// shutdown."
func shutdownSecure(conn net.Conn) error {
	if tconn, ok := conn.(*tls.Conn); ok {
		_ = tconn.CloseWrite()
	}
	return conn.Close()
}
