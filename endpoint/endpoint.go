// Package endpoint is the multiplexing engine described in spec §2-§5: the
// per-connection reader, writer, and dispatch fan-out that let many
// concurrent calls share one duplex byte stream.
//
// An Endpoint is symmetric — the same type backs both Client and Server
// connections (spec §9 "do not conflate client with initiator of calls").
// What differs between the two is only who owns the listener.
package endpoint

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/message"
	"github.com/euclio/msgpackrpc/rpcerr"
	"github.com/euclio/msgpackrpc/value"
)

// Endpoint owns one duplex stream and the reader/writer/dispatch task trio
// that multiplex it (spec §2, §5).
type Endpoint struct {
	conn       io.ReadWriteCloser
	codec      *value.Codec
	dispatcher dispatch.Dispatcher
	logger     *zap.Logger

	ids     idGenerator
	pending *pendingTable

	writeCh chan message.Message
	closed  chan struct{}
	closeOnce sync.Once
	closeErr  error

	dispatchWG sync.WaitGroup
}

// Option configures an Endpoint at construction time.
type Option func(*Endpoint)

// WithLogger attaches a structured logger. The default is a no-op logger so
// library consumers aren't forced into a particular sink.
func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

// WithWriteQueueDepth sets the writer intake queue's buffer size. The
// default (64) decouples call submitters from writer pace without
// unbounded memory growth under backpressure.
func WithWriteQueueDepth(n int) Option {
	return func(e *Endpoint) { e.writeCh = make(chan message.Message, n) }
}

// New wraps conn in an Endpoint and immediately spawns its reader and
// writer tasks. d handles inbound Requests and Notifications.
func New(conn io.ReadWriteCloser, d dispatch.Dispatcher, opts ...Option) *Endpoint {
	e := &Endpoint{
		conn:       conn,
		codec:      value.NewCodec(conn, conn),
		dispatcher: d,
		logger:     zap.NewNop(),
		pending:    newPendingTable(),
		writeCh:    make(chan message.Message, 64),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.readerLoop()
	go e.writerLoop()
	return e
}

// AsyncCall allocates a fresh ID, registers a completion slot, and enqueues
// the Request onto the writer without blocking for a Response (spec §4.8).
func (e *Endpoint) AsyncCall(method string, params []value.Value) (<-chan CallResult, error) {
	id := e.ids.nextID()
	s := newSlot()

	// Insertion happens-before the enqueue, so a racing early Response
	// always finds its slot (spec §4.3 contracts).
	e.pending.insert(id, s)

	req := &message.Request{ID: id, Method: method, Params: params}
	if err := e.enqueue(req); err != nil {
		e.pending.take(id)
		return nil, err
	}
	return s, nil
}

// Call is AsyncCall followed by a blocking receive on the completion slot.
func (e *Endpoint) Call(method string, params []value.Value) (value.Value, error) {
	ch, err := e.AsyncCall(method, params)
	if err != nil {
		return value.Nil(), err
	}
	res := <-ch
	return res.Value, res.Err
}

// Notify sends a one-way Notification; there is no Response to wait for.
func (e *Endpoint) Notify(method string, params []value.Value) error {
	return e.enqueue(&message.Notification{Method: method, Params: params})
}

// Done returns a channel closed once teardown has begun.
func (e *Endpoint) Done() <-chan struct{} { return e.closed }

// Err returns the cause of teardown, or nil if the endpoint is still live.
func (e *Endpoint) Err() error {
	select {
	case <-e.closed:
		return e.closeErr
	default:
		return nil
	}
}

// Close tears the endpoint down explicitly (spec §4.6 "explicit user
// close"). It is idempotent.
func (e *Endpoint) Close() error {
	e.teardown(rpcerr.ErrTransportClosed)
	return nil
}

// WaitDispatch blocks until every spawned Dispatch/Notify task has
// returned. Used by graceful server shutdown to bound how long in-flight
// handlers are given to finish.
func (e *Endpoint) WaitDispatch() {
	e.dispatchWG.Wait()
}

// enqueue submits msg to the writer, failing with ErrTransportClosed once
// teardown has begun (spec §4.6 "stop accepting new outbound calls").
func (e *Endpoint) enqueue(msg message.Message) error {
	select {
	case <-e.closed:
		return rpcerr.ErrTransportClosed
	default:
	}

	select {
	case e.writeCh <- msg:
		return nil
	case <-e.closed:
		return rpcerr.ErrTransportClosed
	}
}

// writerLoop is the sole writer of the stream (spec §4.4): it drains the
// intake queue in FIFO order and writes one complete message per receive.
func (e *Endpoint) writerLoop() {
	for {
		select {
		case msg := <-e.writeCh:
			if err := message.Pack(e.codec, msg); err != nil {
				e.logger.Warn("writer failed, tearing down endpoint", zap.Error(err))
				e.teardown(err)
				return
			}
		case <-e.closed:
			return
		}
	}
}

// readerLoop is the sole reader of the stream (spec §4.5): it decodes one
// message per iteration and routes it, spawning an independent task for
// every inbound Request/Notification so a slow handler never stalls the
// next decode (spec §5 "head-of-line independence").
func (e *Endpoint) readerLoop() {
	for {
		msg, err := message.Unpack(e.codec)
		if err != nil {
			if err == io.EOF {
				e.logger.Debug("peer closed connection")
			} else {
				e.logger.Warn("reader failed, tearing down endpoint", zap.Error(err))
			}
			e.teardown(err)
			return
		}

		switch m := msg.(type) {
		case *message.Response:
			e.routeResponse(m)
		case *message.Request:
			e.dispatchWG.Add(1)
			go e.handleRequest(m)
		case *message.Notification:
			e.dispatchWG.Add(1)
			go e.handleNotification(m)
		}
	}
}

func (e *Endpoint) routeResponse(resp *message.Response) {
	s, ok := e.pending.take(resp.ID)
	if !ok {
		e.logger.Warn("response id matched no outstanding request",
			zap.Int32("id", resp.ID), zap.Error(rpcerr.ErrUnknownResponseID))
		return
	}
	if resp.IsErr {
		s <- CallResult{Err: rpcerr.NewHandlerError(resp.Err)}
	} else {
		s <- CallResult{Value: resp.Result}
	}
}

func (e *Endpoint) handleRequest(req *message.Request) {
	defer e.dispatchWG.Done()

	result, err := e.dispatcher.Dispatch(req.Method, req.Params)

	var resp *message.Response
	if err != nil {
		errVal, ok := rpcerr.AsHandlerError(err)
		if !ok {
			errVal = value.String(err.Error())
		}
		resp = message.Failed(req.ID, errVal)
	} else {
		resp = message.Ok(req.ID, result)
	}

	if err := e.enqueue(resp); err != nil {
		e.logger.Debug("dropping response, endpoint already closed",
			zap.Int32("id", req.ID), zap.String("method", req.Method))
	}
}

func (e *Endpoint) handleNotification(n *message.Notification) {
	defer e.dispatchWG.Done()
	e.dispatcher.Notify(n.Method, n.Params)
}

// teardown runs the spec §4.6 shutdown sequence exactly once, regardless of
// which of reader failure / writer failure / explicit Close triggers it.
func (e *Endpoint) teardown(cause error) {
	e.closeOnce.Do(func() {
		e.closeErr = cause
		close(e.closed)
		e.pending.drain(rpcerr.ErrTransportClosed)
		_ = e.conn.Close()
	})
}
