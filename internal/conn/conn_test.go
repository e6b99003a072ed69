package conn

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		ok   bool
	}{
		{"valid", "localhost", 55555, true},
		{"empty host", "", 55555, false},
		{"whitespace host", "local host", 55555, false},
		{"port zero", "localhost", 0, false},
		{"port negative", "localhost", -1, false},
		{"port too large", "localhost", 70000, false},
		{"max port", "localhost", 65535, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.host, tt.port)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestEnsureConnectedValidatesBeforeDialing(t *testing.T) {
	m := New()
	if err := m.EnsureConnected(context.Background(), "", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if m.Connected() {
		t.Fatal("manager should not be connected")
	}
}

func TestEnsureConnectedRefused(t *testing.T) {
	// Grab a free port, then close the listener so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	m := New()
	if err := m.EnsureConnected(context.Background(), "127.0.0.1", port); !errors.Is(err, ErrConnection) {
		t.Fatalf("got %v, want ErrConnection", err)
	}
	if m.Connected() {
		t.Fatal("manager should not be connected after refusal")
	}
}

func TestSendRecvAgainstEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = c.Close() }()
		buf := make([]byte, 5)
		if _, err := c.Read(buf); err != nil {
			return
		}
		_, _ = c.Write(buf)
	}()

	m := New()
	addr := ln.Addr().(*net.TCPAddr)
	if err := m.EnsureConnected(context.Background(), "127.0.0.1", addr.Port); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.EnsureConnected(context.Background(), "127.0.0.1", addr.Port); err != nil {
		t.Fatalf("idempotent reconnect: %v", err)
	}
	if err := m.SendAll([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := m.RecvExact(5)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("echo mismatch: %q", got)
	}
	// Peer closed after echoing; the next exact read must fail and
	// invalidate the connection.
	if _, err := m.RecvExact(1); !errors.Is(err, ErrConnection) {
		t.Fatalf("got %v, want ErrConnection", err)
	}
	if m.Connected() {
		t.Fatal("connection should be invalidated after short read")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	m := New()
	if err := m.SendAll([]byte("x")); !errors.Is(err, ErrConnection) {
		t.Fatalf("got %v, want ErrConnection", err)
	}
	if _, err := m.RecvExact(1); !errors.Is(err, ErrConnection) {
		t.Fatalf("got %v, want ErrConnection", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := New()
	m.Close()
	m.Close()
	if m.Connected() {
		t.Fatal("closed manager reports connected")
	}
}
