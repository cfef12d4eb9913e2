// Package client implements the msgpack-RPC call side (spec §4.8, §6):
// a builder that connects one duplex stream into a Handle, plus a
// DiscoveringClient that spreads calls across several dialed endpoints of
// the same logical service via a registry and load balancer.
//
// Per the Rust source's canonical shape (and spec §9's resolution of the
// construction Open Question), only the builder form is exposed — there is
// no monolithic "dial and configure in one call" constructor.
package client

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/endpoint"
	"github.com/euclio/msgpackrpc/transport"
	"github.com/euclio/msgpackrpc/value"
)

// Client builds Handles. The zero value is not usable; construct with New.
type Client struct {
	dispatcher  dispatch.Dispatcher
	logger      *zap.Logger
	heartbeat   time.Duration
	dialTimeout time.Duration
}

// New returns a Client configured with the package defaults: a dispatcher
// that politely rejects any inbound Request (spec §9 — a connection that
// only ever originates calls still needs a well-defined answer to an
// unexpected one), a no-op logger, no heartbeat, and no dial timeout.
func New() *Client {
	return &Client{
		dispatcher: dispatch.NopDispatcher{},
		logger:     zap.NewNop(),
	}
}

// WithDispatcher sets the Dispatcher that answers Requests and
// Notifications arriving on this connection (the symmetric, bidirectional
// case — spec §9).
func (c *Client) WithDispatcher(d dispatch.Dispatcher) *Client {
	c.dispatcher = d
	return c
}

// WithLogger attaches a structured logger to the resulting endpoint.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	c.logger = l
	return c
}

// WithHeartbeat starts a periodic heartbeat Notification on the connected
// endpoint once interval has elapsed. Zero (the default) disables it.
func (c *Client) WithHeartbeat(interval time.Duration) *Client {
	c.heartbeat = interval
	return c
}

// WithDialTimeout bounds how long ConnectSocket's TCP handshake may take.
// Zero (the default) disables the bound.
func (c *Client) WithDialTimeout(d time.Duration) *Client {
	c.dialTimeout = d
	return c
}

// ConnectSocket dials addr over TCP and returns a Handle for it.
func (c *Client) ConnectSocket(addr string) (*Handle, error) {
	conn, err := transport.DialTCP(addr, c.dialTimeout)
	if err != nil {
		return nil, err
	}
	return c.connect(conn), nil
}

// ConnectPipe wraps an already-established duplex stream (e.g. one half of
// transport.Pipe, or a process's stdio) into a Handle, without dialing
// anything.
func (c *Client) ConnectPipe(conn io.ReadWriteCloser) *Handle {
	return c.connect(conn)
}

func (c *Client) connect(conn io.ReadWriteCloser) *Handle {
	ep := endpoint.New(conn, c.dispatcher, endpoint.WithLogger(c.logger))
	if c.heartbeat > 0 {
		ep.StartHeartbeat(c.heartbeat)
	}
	return &Handle{ep: ep}
}

// Handle is one connected endpoint from the caller's side: the thing
// application code actually calls methods through.
type Handle struct {
	ep *endpoint.Endpoint
}

// Call performs a synchronous remote call, blocking until the Response
// arrives or the connection tears down.
func (h *Handle) Call(method string, params []value.Value) (value.Value, error) {
	return h.ep.Call(method, params)
}

// AsyncCall submits a Request and returns immediately with a channel that
// will receive exactly one CallResult.
func (h *Handle) AsyncCall(method string, params []value.Value) (<-chan endpoint.CallResult, error) {
	return h.ep.AsyncCall(method, params)
}

// Notify sends a one-way Notification.
func (h *Handle) Notify(method string, params []value.Value) error {
	return h.ep.Notify(method, params)
}

// Done returns a channel closed once the underlying endpoint tears down.
func (h *Handle) Done() <-chan struct{} { return h.ep.Done() }

// Err returns the cause of teardown, or nil if still connected.
func (h *Handle) Err() error { return h.ep.Err() }

// Close tears the connection down explicitly.
func (h *Handle) Close() error { return h.ep.Close() }
