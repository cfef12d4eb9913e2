// Package server implements the msgpack-RPC acceptor (spec §4.7, §6):
// bind a listener, wrap every accepted connection in an endpoint running
// the configured Dispatcher, and track them for graceful shutdown.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/endpoint"
	"github.com/euclio/msgpackrpc/registry"
)

// Server accepts connections and turns each into an endpoint running a
// clone of the configured Dispatcher (spec §4.7 "one dispatcher clone per
// accepted connection").
type Server struct {
	dispatcher dispatch.Dispatcher
	logger     *zap.Logger
	heartbeat  time.Duration

	listener net.Listener
	shutdown atomic.Bool

	mu        sync.Mutex
	endpoints map[*endpoint.Endpoint]struct{}

	registry      registry.Registry
	serviceName   string
	advertiseAddr string
}

// New creates a Server that hands every accepted connection to a clone of
// d. The zero Server is not usable; always construct with New.
func New(d dispatch.Dispatcher) *Server {
	return &Server{
		dispatcher: d,
		logger:     zap.NewNop(),
		endpoints:  make(map[*endpoint.Endpoint]struct{}),
	}
}

// WithLogger attaches a structured logger.
func (s *Server) WithLogger(l *zap.Logger) *Server {
	s.logger = l
	return s
}

// WithHeartbeat starts a heartbeat Notification loop on every accepted
// endpoint. Zero (the default) disables it.
func (s *Server) WithHeartbeat(interval time.Duration) *Server {
	s.heartbeat = interval
	return s
}

// WithRegistry makes Bind register serviceName under advertiseAddr in reg,
// and Shutdown deregister it before closing the listener (spec C.4 —
// additive service-discovery support, not part of the core engine).
func (s *Server) WithRegistry(reg registry.Registry, serviceName, advertiseAddr string) *Server {
	s.registry = reg
	s.serviceName = serviceName
	s.advertiseAddr = advertiseAddr
	return s
}

// Bind starts listening on addr and spawns the accept loop in the
// background. Use LocalAddr to recover the actual bound address (useful
// when addr ends in ":0").
func (s *Server) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if s.registry != nil {
		if err := s.registry.Register(s.serviceName, registry.ServiceInstance{Addr: s.advertiseAddr}, 10); err != nil {
			s.logger.Warn("failed to register with discovery registry", zap.Error(err))
		}
	}

	go s.acceptLoop()
	return nil
}

// LocalAddr returns the listener's bound address. Valid only after Bind.
func (s *Server) LocalAddr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			return
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	ep := endpoint.New(conn, s.dispatcher.Clone(), endpoint.WithLogger(s.logger))
	if s.heartbeat > 0 {
		ep.StartHeartbeat(s.heartbeat)
	}

	s.mu.Lock()
	s.endpoints[ep] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ep.Done()
		s.mu.Lock()
		delete(s.endpoints, ep)
		s.mu.Unlock()
	}()
}

// Shutdown deregisters from the discovery registry (if configured), stops
// accepting new connections, and waits up to timeout for every endpoint's
// in-flight dispatch tasks to finish. It does not forcibly close live
// endpoints still within timeout — Go cannot preempt a blocked handler
// goroutine, so "task termination" here means letting it return on its
// own, same as spec §4.6's teardown applied per connection.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		if err := s.registry.Deregister(s.serviceName, s.advertiseAddr); err != nil {
			s.logger.Warn("failed to deregister from discovery registry", zap.Error(err))
		}
	}

	s.shutdown.Store(true)
	s.listener.Close()

	s.mu.Lock()
	endpoints := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for ep := range s.endpoints {
		endpoints = append(endpoints, ep)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, ep := range endpoints {
			ep.WaitDispatch()
			ep.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for %d endpoint(s) to finish", len(endpoints))
	}
}
