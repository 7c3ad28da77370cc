// Command wsecho runs an echo WebSocket server, or, given -connect, an
// echo client against one — exercising ws.Acceptor, ws.Client, and the
// full handshake/frame/close stack end to end (SPEC_FULL §0).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/netframe/wsio/ws"
)

func main() {
	host := flag.String("host", "127.0.0.1", "bind or target host")
	port := flag.Int("port", 9981, "bind or target port")
	connect := flag.Bool("connect", false, "run as client instead of server")
	path := flag.String("path", "/echo", "WebSocket path")
	flag.Parse()

	if *connect {
		runClient(*host, *port, *path)
		return
	}
	runServer(*host, *port, *path)
}

func runServer(host string, port int, path string) {
	events := ws.Events{
		OnConnected: func(ep *ws.Endpoint) {
			fmt.Printf("[server] endpoint %s connected\n", ep.ID)
		},
		OnMessageReceived: func(ep *ws.Endpoint, payload []byte, isBinary bool) {
			if isBinary {
				ep.WriteBuffer(payload)
			} else {
				ep.Write(string(payload))
			}
		},
		OnClose: func(ep *ws.Endpoint, info ws.CloseInfo) {
			fmt.Printf("[server] endpoint %s closed: %d %s\n", ep.ID, info.Code, info.Reason)
		},
		OnError: func(ep *ws.Endpoint, err error) {
			fmt.Printf("[server] error: %v\n", err)
		},
	}
	acceptorEvents := ws.AcceptorEvents{
		OnError: func(err error) { fmt.Printf("[server] acceptor error: %v\n", err) },
	}
	opts := &ws.Options{
		Protocol:    ws.ProtocolV4,
		Backlog:     128,
		IdleTimeout: 2 * time.Minute,
	}
	a := ws.NewAcceptor(events, acceptorEvents, opts)
	if err := a.Listen(host, port); err != nil {
		fmt.Fprintln(os.Stderr, "listen:", err)
		os.Exit(1)
	}
	fmt.Printf("echoing on ws://%s:%d%s (ctrl-C to stop)\n", host, port, path)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	a.Close()
}

func runClient(host string, port int, path string) {
	done := make(chan struct{})
	events := ws.Events{
		OnConnected: func(ep *ws.Endpoint) {
			ep.Write("hello from wsecho")
		},
		OnMessageReceived: func(ep *ws.Endpoint, payload []byte, isBinary bool) {
			fmt.Printf("[client] echoed: %s\n", payload)
			ep.End(ws.CloseNormal, "done")
		},
		OnClose: func(ep *ws.Endpoint, info ws.CloseInfo) {
			fmt.Printf("[client] closed: %d %s\n", info.Code, info.Reason)
			close(done)
		},
		OnError: func(ep *ws.Endpoint, err error) {
			fmt.Printf("[client] error: %v\n", err)
			close(done)
		},
	}
	c := ws.NewClient(events, &ws.Options{Protocol: ws.ProtocolV4})
	if ok := c.Connect(host, port, ws.ProtocolV4, path); !ok {
		fmt.Fprintln(os.Stderr, "already connected")
		os.Exit(1)
	}
	<-done
}
