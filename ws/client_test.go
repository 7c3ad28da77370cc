package ws

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClientConnectUnreachableFiresOnErrorOnly covers spec §7's
// "Resolve/connect failure" row: a connect to a closed port never
// constructs an Endpoint, so on_error fires but on_close never does.
func TestClientConnectUnreachableFiresOnErrorOnly(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // frees the port so the connect below is refused

	errCh := make(chan error, 1)
	closed := false
	c := NewClient(Events{
		OnError: func(ep *Endpoint, err error) { errCh <- err },
		OnClose: func(ep *Endpoint, info CloseInfo) { closed = true },
	}, &Options{Protocol: ProtocolV4})

	require.True(t, c.Connect("127.0.0.1", port, ProtocolV4, "/"))

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("client never reported the connect failure")
	}
	require.False(t, closed)
	require.Nil(t, c.Endpoint())
}

// TestClientConnectBadHandshakeFiresUnexpectedHandshakeAndClose covers
// scenario S6 end to end: a server that rejects the upgrade (here, a
// non-101 status) must still fire the client's on_unexpected_handshake
// with the parsed response, then on_close(1002, "Protocol error").
func TestClientConnectBadHandshakeFiresUnexpectedHandshakeAndClose(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Drain the request, then answer with a deliberately bad
		// handshake: 400 instead of the required 101.
		buf := make([]byte, 4096)
		conn.Read(buf)
		resp := &HandshakeResponse{
			Version: "1.1",
			Status:  http.StatusBadRequest,
			Reason:  "Bad Request",
			Headers: http.Header{},
		}
		conn.Write(resp.Build())
	}()

	rejectedCh := make(chan *HandshakeResponse, 1)
	closeCh := make(chan CloseInfo, 1)
	c := NewClient(Events{
		OnUnexpectedHandshake: func(ep *Endpoint, resp *HandshakeResponse) { rejectedCh <- resp },
		OnClose:               func(ep *Endpoint, info CloseInfo) { closeCh <- info },
	}, &Options{Protocol: ProtocolV4})

	require.True(t, c.Connect("127.0.0.1", port, ProtocolV4, "/"))

	select {
	case resp := <-rejectedCh:
		require.Equal(t, http.StatusBadRequest, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("client never fired on_unexpected_handshake")
	}
	select {
	case info := <-closeCh:
		require.Equal(t, CloseProtocolError, info.Code)
		require.Contains(t, info.Reason, "Protocol error")
	case <-time.After(2 * time.Second):
		t.Fatal("client never fired on_close for the rejected handshake")
	}
}
