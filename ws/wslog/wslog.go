// Package wslog is the structured-logging shim used by package ws. The
// Acceptor and Client each build their own Factory (NewDefaultFactory) at
// construction and hand scoped Loggers to their Endpoints; there is no
// package-level logger singleton, and no constructor takes a Factory from
// the application.
//
// Grounded on the teacher's Server.Noticef/Errorf/Debugf/Warnf methods
// (nats-server's server/websocket.go calls these throughout wsUpgrade,
// startWebsocketServer, and the read/write paths) and its
// wsCaptureHTTPServerLog io.Writer shim that redirects the stdlib
// http.Server's error log into the same sink. wsio generalizes the four
// leveled methods into a small interface and backs the default
// implementation with github.com/pion/logging, a teacher dependency.
package wslog

import "github.com/pion/logging"

// Logger is the leveled logging contract the ws components depend on
// (tcp, udp and httpx do not log). It intentionally mirrors pion/logging.LeveledLogger's
// formatted methods so the default factory needs no adapter layer.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Factory builds a scoped Logger, one per component instance (one per
// Endpoint, one for the Acceptor), so log lines can be filtered/attributed
// without a global scope registry.
type Factory interface {
	NewLogger(scope string) Logger
}

// defaultFactory wraps pion/logging's DefaultLoggerFactory.
type defaultFactory struct {
	inner *logging.DefaultLoggerFactory
}

// NewDefaultFactory returns the Factory that ws.NewAcceptor and
// ws.NewClient build for themselves.
func NewDefaultFactory() Factory {
	return &defaultFactory{inner: logging.NewDefaultLoggerFactory()}
}

func (f *defaultFactory) NewLogger(scope string) Logger {
	return f.inner.NewLogger(scope)
}

// noop discards everything; used by tests that don't want log noise.
type noop struct{}

func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}

type noopFactory struct{}

func (noopFactory) NewLogger(string) Logger { return noop{} }

// NewNoopFactory returns a Factory whose loggers discard all output.
func NewNoopFactory() Factory { return noopFactory{} }
