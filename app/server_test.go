package app

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptWithin(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			ch <- c
		}
	}()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no connection routed")
		return nil
	}
}

func TestSocketMux(t *testing.T) {
	mux, err := listenInit(Config{Addr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)
	hello := raftHello("secret")
	raftLn := mux.route(sniffHello(hello))
	respLn := mux.route(nil)
	served := make(chan error, 1)
	go func() { served <- mux.serve() }()
	defer func() {
		require.NoError(t, mux.close())
		assert.NoError(t, <-served)
	}()
	addr := mux.ln.Addr().String()
	assert.Equal(t, addr, raftLn.Addr().String())

	send := func(data string) {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		_, err = c.Write([]byte(data))
		require.NoError(t, err)
	}
	read := func(c net.Conn, n int) string {
		defer c.Close()
		buf := make([]byte, n)
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err := io.ReadFull(c, buf)
		require.NoError(t, err)
		return string(buf)
	}

	// the hello is consumed before raft sees the stream
	send(string(hello) + "rpc")
	assert.Equal(t, "rpc", read(acceptWithin(t, raftLn), 3))

	// everything else reaches the catch-all with nothing consumed
	send("*1\r\n$4\r\nping\r\n")
	assert.Equal(t, "*1\r\n$4\r\nping\r\n", read(acceptWithin(t, respLn), 14))

	send(raftMarker + "wrong")
	assert.Equal(t, raftMarker+"wrong",
		read(acceptWithin(t, respLn), len(raftMarker)+5))
}

func TestTLSInit(t *testing.T) {
	cfg, err := tlsInit(Config{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
	_, err = tlsInit(Config{TLSCertPath: "missing.pem", TLSKeyPath: "missing.key"})
	assert.Error(t, err)
}
