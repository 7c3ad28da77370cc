package ws

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// acceptorTestPort picks an ephemeral port by actually binding and
// releasing it, avoiding a hardcoded port across parallel test runs.
func acceptorTestPort(t *testing.T) int {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

// TestAcceptorClientServerRoundTrip exercises scenario S1: a client
// connects, sends one text message, and receives the server's echo — end
// to end over a real loopback TCP socket, through the full handshake and
// frame codec.
func TestAcceptorClientServerRoundTrip(t *testing.T) {
	port := acceptorTestPort(t)

	serverGotMsg := make(chan string, 1)
	serverEvents := Events{
		OnMessageReceived: func(ep *Endpoint, payload []byte, isBinary bool) {
			serverGotMsg <- string(payload)
			ep.Write("echo: " + string(payload))
		},
	}
	a := NewAcceptor(serverEvents, AcceptorEvents{}, &Options{Protocol: ProtocolV4, Backlog: 4})
	require.NoError(t, a.Listen("127.0.0.1", port))
	defer a.Close()

	clientGotMsg := make(chan string, 1)
	clientEvents := Events{
		OnMessageReceived: func(ep *Endpoint, payload []byte, isBinary bool) {
			clientGotMsg <- string(payload)
		},
	}
	c := NewClient(clientEvents, &Options{Protocol: ProtocolV4})
	require.True(t, c.Connect("127.0.0.1", port, ProtocolV4, "/"))

	require.Eventually(t, func() bool {
		return c.Endpoint() != nil && c.Endpoint().State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, c.Endpoint().Write("ping"))

	select {
	case msg := <-serverGotMsg:
		require.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received client message")
	}
	select {
	case msg := <-clientGotMsg:
		require.Equal(t, "echo: ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received echo")
	}
}

// TestAcceptorBacklogCap covers spec property 8: connections beyond the
// configured backlog are rejected without firing on_connection.
func TestAcceptorBacklogCap(t *testing.T) {
	port := acceptorTestPort(t)
	a := NewAcceptor(Events{}, AcceptorEvents{}, &Options{Protocol: ProtocolV4, Backlog: 1})
	require.NoError(t, a.Listen("127.0.0.1", port))
	defer a.Close()

	c1 := NewClient(Events{}, &Options{Protocol: ProtocolV4})
	require.True(t, c1.Connect("127.0.0.1", port, ProtocolV4, "/"))
	require.Eventually(t, func() bool { return a.LiveCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	c2 := NewClient(Events{}, &Options{Protocol: ProtocolV4})
	c2.Connect("127.0.0.1", port, ProtocolV4, "/")

	// The second connection's raw socket is accepted and then dropped
	// before a handshake can complete, so live count never exceeds backlog.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, a.LiveCount())
}

// TestAcceptorRejectsHandshakeMissingVersion covers scenario S6's server
// side: a client that omits Sec-WebSocket-Version gets a non-101 response,
// and the rejected Endpoint fires OnHandshakeRejected with the parsed
// request followed by on_close(1002, "Protocol error").
func TestAcceptorRejectsHandshakeMissingVersion(t *testing.T) {
	port := acceptorTestPort(t)

	rejectedCh := make(chan *HandshakeRequest, 1)
	closeCh := make(chan CloseInfo, 1)
	serverEvents := Events{
		OnHandshakeRejected: func(ep *Endpoint, req *HandshakeRequest) { rejectedCh <- req },
		OnClose:             func(ep *Endpoint, info CloseInfo) { closeCh <- info },
	}
	a := NewAcceptor(serverEvents, AcceptorEvents{}, &Options{Protocol: ProtocolV4, Backlog: 4})
	require.NoError(t, a.Listen("127.0.0.1", port))
	defer a.Close()

	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	// Sec-WebSocket-Version is intentionally omitted.
	raw := "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	select {
	case req := <-rejectedCh:
		require.Equal(t, "GET", req.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never fired OnHandshakeRejected")
	}
	select {
	case info := <-closeCh:
		require.Equal(t, CloseProtocolError, info.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never closed the rejected endpoint")
	}
}

// TestAcceptorCloseTeardownsLiveEndpoints covers spec §4.5's acceptor
// teardown: every live Endpoint is closed, the live set drains, on_close
// fires.
func TestAcceptorCloseTeardownsLiveEndpoints(t *testing.T) {
	port := acceptorTestPort(t)

	closedCh := make(chan struct{})
	a := NewAcceptor(Events{}, AcceptorEvents{
		OnClose: func() { close(closedCh) },
	}, &Options{Protocol: ProtocolV4, Backlog: 4})
	require.NoError(t, a.Listen("127.0.0.1", port))

	c := NewClient(Events{}, &Options{Protocol: ProtocolV4})
	require.True(t, c.Connect("127.0.0.1", port, ProtocolV4, "/"))
	require.Eventually(t, func() bool { return a.LiveCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	a.Close()

	select {
	case <-closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor on_close never fired")
	}
	require.Equal(t, 0, a.LiveCount())
}
