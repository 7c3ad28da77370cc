//go:build windows

package ws

import (
	"context"
	"net"
)

// listenWithOptions on Windows ignores reuseAddr: SO_REUSEADDR has
// different (and for this library's purposes, unsafe) semantics on
// Windows compared to BSD sockets, so wsio does not attempt to set it
// there rather than silently misbehave.
func listenWithOptions(network, addr string, reuseAddr bool) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), network, addr)
}
