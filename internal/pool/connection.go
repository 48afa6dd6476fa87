// Package pool provides a bounded, per-endpoint connection cache with a
// global concurrency cap and per-endpoint circuit breaker isolation.
package pool

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// ConnState represents the lifecycle state of a pooled connection.
type ConnState int32

const (
	// ConnStateIdle indicates the connection is parked in the pool.
	ConnStateIdle ConnState = iota

	// ConnStateActive indicates the connection is lent to a caller.
	ConnStateActive

	// ConnStateOverloaded indicates the endpoint rejected admission.
	ConnStateOverloaded

	// ConnStateFailed indicates the connection could not be established
	// or has failed.
	ConnStateFailed
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case ConnStateIdle:
		return "idle"
	case ConnStateActive:
		return "active"
	case ConnStateOverloaded:
		return "overloaded"
	case ConnStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport is the opaque resource carried by a pooled connection.
// What travels over it is the caller's concern.
type Transport interface {
	io.ReadWriteCloser
	IsClosed() bool
}

// Dialer establishes a transport to an endpoint. The timeout is the
// endpoint's per-call budget taken from its circuit breaker configuration.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, timeout time.Duration) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string, timeout time.Duration) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, endpoint string, timeout time.Duration) (Transport, error) {
	return f(ctx, endpoint, timeout)
}

// NetDialer dials TCP connections. Endpoints are host:port addresses.
type NetDialer struct{}

// Dial implements Dialer.
func (NetDialer) Dial(ctx context.Context, endpoint string, timeout time.Duration) (Transport, error) {
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	return &netTransport{conn: raw}, nil
}

// netTransport wraps a net.Conn with idempotent close tracking.
type netTransport struct {
	conn   net.Conn
	closed atomic.Bool
}

func (t *netTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *netTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *netTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		return t.conn.Close()
	}
	return nil
}

func (t *netTransport) IsClosed() bool {
	return t.closed.Load()
}

// SetWriteDeadline sets the write deadline on the underlying connection.
func (t *netTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (t *netTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

var connIDCounter atomic.Int64

// Connection is a transport resource bound to one endpoint. The pool owns
// it while idle and lends it to a caller while active.
type Connection struct {
	id        int64
	endpoint  string
	transport Transport
	state     atomic.Int32
	createdAt time.Time
}

func newConnection(endpoint string, transport Transport) *Connection {
	c := &Connection{
		id:        connIDCounter.Add(1),
		endpoint:  endpoint,
		transport: transport,
		createdAt: time.Now(),
	}
	c.state.Store(int32(ConnStateIdle))
	return c
}

// ID returns the connection identifier.
func (c *Connection) ID() int64 {
	return c.id
}

// Endpoint returns the endpoint this connection is bound to.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// Transport returns the underlying transport.
func (c *Connection) Transport() Transport {
	return c.transport
}

// State returns the current connection state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Close closes the underlying transport. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.transport.Close()
}

// IsClosed reports whether the underlying transport is closed.
func (c *Connection) IsClosed() bool {
	return c.transport.IsClosed()
}
