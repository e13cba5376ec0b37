// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "analyzer.sock")
	l, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	return l
}

func dialAndRoundTrip(t *testing.T, addr net.Addr, request string) string {
	t.Helper()
	conn, err := net.Dial(addr.Network(), addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(request + "\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := make([]byte, 64)
	n, err := conn.Read(reply)
	require.NoError(t, err)
	return string(reply[:n])
}

func TestServer_RoundTripsOKCommand(t *testing.T) {
	l := newTestListener(t)
	h := newTestHandler(t)
	srv := NewServer(l, h, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	got := dialAndRoundTrip(t, l.Addr(), "LOADED:42")
	assert.Equal(t, "OK", got)
	assert.True(t, h.Processes.Contains(42))

	cancel()
	<-done
}

func TestServer_GetPIDsRoundTrip(t *testing.T) {
	l := newTestListener(t)
	h := newTestHandler(t)
	srv := NewServer(l, h, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial(l.Addr().Network(), l.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GETPIDS:\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 8)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	conn.Close()

	assert.Equal(t, uint32(111), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(222), binary.LittleEndian.Uint32(buf[4:8]))

	cancel()
	<-done
}

func TestServer_HandlesManyConcurrentConnections(t *testing.T) {
	l := newTestListener(t)
	h := newTestHandler(t)
	srv := NewServer(l, h, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	const clients = 20
	results := make(chan string, clients)
	for i := 0; i < clients; i++ {
		go func() {
			results <- dialAndRoundTrip(t, l.Addr(), "INFO:hi")
		}()
	}
	for i := 0; i < clients; i++ {
		assert.Equal(t, "OK", <-results)
	}

	cancel()
	<-done
}

func TestServer_ServeReturnsWhenContextCancelled(t *testing.T) {
	l := newTestListener(t)
	h := newTestHandler(t)
	srv := NewServer(l, h, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestServer_UnknownCommandGetsNoReply(t *testing.T) {
	l := newTestListener(t)
	h := newTestHandler(t)
	srv := NewServer(l, h, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial(l.Addr().Network(), l.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("BOGUS:x\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	reader := bufio.NewReader(conn)
	_, err = reader.ReadByte()
	assert.Error(t, err) // connection closed with no bytes written
	conn.Close()

	cancel()
	<-done
}
