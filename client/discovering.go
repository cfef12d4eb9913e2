package client

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/endpoint"
	"github.com/euclio/msgpackrpc/loadbalance"
	"github.com/euclio/msgpackrpc/registry"
	"github.com/euclio/msgpackrpc/transport"
	"github.com/euclio/msgpackrpc/value"
)

// DiscoveringClient spreads calls for "Service.Method" names across
// whichever instances of "Service" the registry currently reports, picking
// one per call via the balancer and reusing a pooled endpoint to that
// instance's address. Each pooled endpoint is a fully-conformant engine in
// its own right (spec §2-§5) — pooling only decides which address a given
// call lands on, not how that connection multiplexes once chosen.
type DiscoveringClient struct {
	registry    registry.Registry
	balancer    loadbalance.Balancer
	poolSize    int
	dialTimeout time.Duration
	dispatcher  dispatch.Dispatcher
	logger      *zap.Logger

	mu    sync.Mutex
	pools map[string]*transport.Pool // instance address -> pool
}

// NewDiscoveringClient creates a client that discovers instances of a
// service via reg, balances across them via bal, and maintains up to
// poolSize endpoints per discovered address.
func NewDiscoveringClient(reg registry.Registry, bal loadbalance.Balancer, poolSize int) *DiscoveringClient {
	return &DiscoveringClient{
		registry:   reg,
		balancer:   bal,
		poolSize:   poolSize,
		dispatcher: dispatch.NopDispatcher{},
		logger:     zap.NewNop(),
		pools:      make(map[string]*transport.Pool),
	}
}

// WithDispatcher sets the Dispatcher each dialed endpoint is constructed
// with (cloned per endpoint, following the teacher's "clone into each
// connection" convention).
func (c *DiscoveringClient) WithDispatcher(d dispatch.Dispatcher) *DiscoveringClient {
	c.dispatcher = d
	return c
}

// WithLogger attaches a structured logger to every dialed endpoint.
func (c *DiscoveringClient) WithLogger(l *zap.Logger) *DiscoveringClient {
	c.logger = l
	return c
}

// WithDialTimeout bounds each pooled endpoint's TCP handshake.
func (c *DiscoveringClient) WithDialTimeout(d time.Duration) *DiscoveringClient {
	c.dialTimeout = d
	return c
}

// Call discovers, balances, and performs a synchronous call to
// "Service.Method".
func (c *DiscoveringClient) Call(serviceMethod string, params []value.Value) (value.Value, error) {
	ep, err := c.endpointFor(serviceMethod)
	if err != nil {
		return value.Nil(), err
	}
	return ep.Call(serviceMethod, params)
}

// AsyncCall is the non-blocking counterpart of Call.
func (c *DiscoveringClient) AsyncCall(serviceMethod string, params []value.Value) (<-chan endpoint.CallResult, error) {
	ep, err := c.endpointFor(serviceMethod)
	if err != nil {
		return nil, err
	}
	return ep.AsyncCall(serviceMethod, params)
}

// Notify discovers, balances, and sends a one-way Notification.
func (c *DiscoveringClient) Notify(serviceMethod string, params []value.Value) error {
	ep, err := c.endpointFor(serviceMethod)
	if err != nil {
		return err
	}
	return ep.Notify(serviceMethod, params)
}

// Close tears down every pooled endpoint across every discovered address.
func (c *DiscoveringClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pools {
		p.Close()
	}
	c.pools = make(map[string]*transport.Pool)
	return nil
}

func (c *DiscoveringClient) endpointFor(serviceMethod string) (*endpoint.Endpoint, error) {
	serviceName, err := splitServiceMethod(serviceMethod)
	if err != nil {
		return nil, err
	}

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return nil, err
	}

	return c.poolFor(instance.Addr).Get()
}

func (c *DiscoveringClient) poolFor(addr string) *transport.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pools[addr]; ok {
		return p
	}

	p := transport.NewPool(c.poolSize, func() (*endpoint.Endpoint, error) {
		conn, err := transport.DialTCP(addr, c.dialTimeout)
		if err != nil {
			return nil, err
		}
		return endpoint.New(conn, c.dispatcher.Clone(), endpoint.WithLogger(c.logger)), nil
	})
	c.pools[addr] = p
	return p
}

func splitServiceMethod(s string) (string, error) {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return "", fmt.Errorf("client: invalid service method %q, want Service.Method", s)
	}
	return s[:idx], nil
}
