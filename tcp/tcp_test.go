package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientServerRoundTrip(t *testing.T) {
	serverGot := make(chan string, 1)
	srv := NewServer(Events{
		OnDataReceived: func(c *Remote, data []byte) { serverGot <- string(data) },
	})
	require.NoError(t, srv.Listen("tcp4", "127.0.0.1:0"))
	defer srv.Close()

	addr := srv.listener.Addr().String()

	cli := NewClient()
	remote, err := cli.Dial("tcp4", addr, Events{})
	require.NoError(t, err)
	defer remote.Close()

	_, err = remote.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case msg := <-serverGot:
		require.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received data")
	}
}

func TestWriteBufferLimitRejectsOversizedWrite(t *testing.T) {
	srv := NewServer(Events{})
	require.NoError(t, srv.Listen("tcp4", "127.0.0.1:0"))
	defer srv.Close()

	cli := NewClient()
	remote, err := cli.Dial("tcp4", srv.listener.Addr().String(), Events{})
	require.NoError(t, err)
	defer remote.Close()

	remote.SetWriteBufferLimit(4)
	_, err = remote.Write([]byte("this payload exceeds the limit"))
	require.Error(t, err)
}
