package udp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientServerDatagramRoundTrip(t *testing.T) {
	serverGot := make(chan string, 1)
	var serverRemote *Remote
	srv := NewServer(Events{
		OnConnected: func(c *Remote) { serverRemote = c },
		OnDataReceived: func(c *Remote, data []byte) {
			serverGot <- string(data)
			c.Write([]byte("ack: " + string(data)))
		},
	})
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	defer srv.Close()

	addr := srv.listener.Addr().String()

	clientGot := make(chan string, 1)
	cli := NewClient()
	remote, err := cli.Dial(addr, Events{
		OnDataReceived: func(c *Remote, data []byte) { clientGot <- string(data) },
	})
	require.NoError(t, err)
	defer remote.Close()

	_, err = remote.Write([]byte("ping"))
	require.NoError(t, err)

	select {
	case msg := <-serverGot:
		require.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received datagram")
	}
	_ = serverRemote

	select {
	case msg := <-clientGot:
		require.Equal(t, "ack: ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received ack")
	}
}
