//go:build !windows

package ws

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenWithOptions binds a TCP listener, optionally setting SO_REUSEADDR
// on the socket before bind, per spec §6's `reuse_address: bool`.
//
// Grounded on the teacher's plain net.Listen/tls.Listen call in
// startWebsocketServer (server/websocket.go), which never sets
// SO_REUSEADDR; wsio adds it via a net.ListenConfig.Control hook backed by
// golang.org/x/sys/unix (a teacher dependency otherwise unwired — see
// DESIGN.md) instead of reaching for a second socket library.
func listenWithOptions(network, addr string, reuseAddr bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reuseAddr {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		}
	}
	return lc.Listen(context.Background(), network, addr)
}
