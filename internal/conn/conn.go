package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fxbridge/mlclient/internal/logx"
)

var (
	// ErrValidation reports a bad host or port rejected before any I/O.
	ErrValidation = errors.New("invalid connection parameters")
	// ErrConnection reports a resolution, connect, send, or receive failure.
	// The connection is invalid afterwards; the next EnsureConnected redials.
	ErrConnection = errors.New("connection failed")
)

// DefaultDialTimeout bounds address resolution plus TCP connect.
const DefaultDialTimeout = 10 * time.Second

// Manager owns the socket to the inference server. It is not safe for
// concurrent use; the client serializes access under its own lock.
type Manager struct {
	host      string
	port      int
	conn      net.Conn
	connected bool

	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// New returns a Manager with default timeouts.
func New() *Manager {
	return &Manager{DialTimeout: DefaultDialTimeout}
}

// Connected reports whether a live socket is held.
func (m *Manager) Connected() bool { return m.connected }

// Endpoint returns the host and port of the current (or last attempted)
// connection.
func (m *Manager) Endpoint() (string, int) { return m.host, m.port }

// ValidateEndpoint checks host and port without touching the network.
func ValidateEndpoint(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty host", ErrValidation)
	}
	if strings.ContainsAny(host, " \t") {
		return fmt.Errorf("%w: host %q contains whitespace", ErrValidation, host)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrValidation, port)
	}
	return nil
}

// EnsureConnected returns immediately if already connected to (host, port).
// Otherwise it tears down any existing socket and dials anew. Invalid
// parameters short-circuit with ErrValidation before any socket call.
func (m *Manager) EnsureConnected(ctx context.Context, host string, port int) error {
	if m.connected && m.host == host && m.port == port {
		return nil
	}
	if err := ValidateEndpoint(host, port); err != nil {
		return err
	}
	m.Close()
	m.host = host
	m.port = port

	d := net.Dialer{Timeout: m.DialTimeout}
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: dial %s:%d: %v", ErrConnection, host, port, err)
	}
	m.conn = c
	m.connected = true
	logx.Log.Debug().Str("host", host).Int("port", port).Msg("connected to inference server")
	return nil
}

// SendAll writes the full buffer, looping over partial writes. Any error
// invalidates the connection.
func (m *Manager) SendAll(b []byte) error {
	if !m.connected {
		return fmt.Errorf("%w: not connected", ErrConnection)
	}
	if m.IOTimeout > 0 {
		_ = m.conn.SetWriteDeadline(time.Now().Add(m.IOTimeout))
	}
	for len(b) > 0 {
		n, err := m.conn.Write(b)
		if err != nil {
			m.invalidate()
			return fmt.Errorf("%w: send: %v", ErrConnection, err)
		}
		b = b[n:]
	}
	return nil
}

// RecvExact reads until exactly n bytes are accumulated. A short read from a
// peer close invalidates the connection and fails.
func (m *Manager) RecvExact(n int) ([]byte, error) {
	if !m.connected {
		return nil, fmt.Errorf("%w: not connected", ErrConnection)
	}
	if m.IOTimeout > 0 {
		_ = m.conn.SetReadDeadline(time.Now().Add(m.IOTimeout))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(m.conn, buf); err != nil {
		m.invalidate()
		return nil, fmt.Errorf("%w: recv %d bytes: %v", ErrConnection, n, err)
	}
	return buf, nil
}

// Invalidate drops the connection state so the next EnsureConnected redials.
// Used when the stream position can no longer be trusted.
func (m *Manager) Invalidate() { m.invalidate() }

func (m *Manager) invalidate() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

// Close releases the socket. Safe to call repeatedly.
func (m *Manager) Close() {
	m.invalidate()
}
