// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// handlerQueueSize bounds the backlog of tag-routed nodes awaiting a
// handler, following the buffered-channel idiom from the whatsmeow-style
// client (other_examples) rather than an unbounded queue.
const handlerQueueSize = 2048

// NodeHandler processes one dispatched node. Handlers run on the
// dispatcher's single worker goroutine, so a slow handler delays every node
// behind it; long-running work should be handed off to its own goroutine.
type NodeHandler func(n *Node)

// Dispatcher implements §4.6: incoming nodes are first checked against the
// pending-request table keyed by node id (request/response correlation),
// and only failing that are routed to a tag-registered handler. This order
// matters — a response to an outstanding request always carries the tag of
// its originating request type (e.g. "iq"), which may also have a generic
// handler registered; correlation must win.
type Dispatcher struct {
	mu       sync.Mutex
	pending  map[string]chan *Node
	handlers map[string]NodeHandler
	queue    chan *Node
	logger   *zap.SugaredLogger
	closeErr error
	running  int32 // atomic; set once Run's loop is actually executing

	stop chan struct{}
	done chan struct{}
}

// NewDispatcher returns a dispatcher with its worker goroutine not yet
// started; call Run to start it.
func NewDispatcher(logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		pending:  make(map[string]chan *Node),
		handlers: make(map[string]NodeHandler),
		queue:    make(chan *Node, handlerQueueSize),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// FailAll implements the close-time half of the PendingRequest invariant
// (§3, §4.6, §5): every request blocked in SendAndAwait is woken with err
// instead of hanging forever. Safe to call even if nothing is pending, and
// safe to call more than once (later calls are no-ops against slots already
// drained). Subsequent SendAndAwait calls fail immediately with err.
func (d *Dispatcher) FailAll(err error) {
	d.mu.Lock()
	d.closeErr = err
	pending := d.pending
	d.pending = make(map[string]chan *Node)
	d.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// RegisterHandler associates tag with h, overwriting any prior handler.
func (d *Dispatcher) RegisterHandler(tag string, h NodeHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[tag] = h
}

// Run processes tag-routed nodes on the caller's goroutine until Stop is
// called or ctx is cancelled. Intended to be started with `go dispatcher.Run(ctx)`.
func (d *Dispatcher) Run(ctx context.Context) {
	atomic.StoreInt32(&d.running, 1)
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case n := <-d.queue:
			d.mu.Lock()
			h := d.handlers[n.Tag]
			d.mu.Unlock()
			if h == nil {
				continue
			}
			d.invoke(h, n)
		}
	}
}

// invoke calls h, recovering a panic so one bad handler cannot take down
// the dispatch loop.
func (d *Dispatcher) invoke(h NodeHandler, n *Node) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Errorw("node handler panicked", "tag", n.Tag, "panic", r)
		}
	}()
	h(n)
}

// Stop halts Run; safe to call at most once. If Run was never started (the
// connection closed before or without ever starting its worker goroutine),
// Stop returns immediately instead of waiting on a done channel that would
// never close.
func (d *Dispatcher) Stop() {
	close(d.stop)
	if atomic.LoadInt32(&d.running) == 1 {
		<-d.done
	}
}

// Dispatch delivers an inbound node: correlation against the pending table
// first, then tag-based routing (§4.6). Nodes matching neither are dropped,
// mirroring the teacher's "didn't handle node" debug-only behavior.
func (d *Dispatcher) Dispatch(n *Node) {
	if id := n.ID(); id != "" {
		d.mu.Lock()
		ch, ok := d.pending[id]
		if ok {
			delete(d.pending, id)
		}
		d.mu.Unlock()
		if ok {
			ch <- n
			return
		}
	}

	d.mu.Lock()
	_, ok := d.handlers[n.Tag]
	d.mu.Unlock()
	if !ok {
		return
	}

	select {
	case d.queue <- n:
	default:
		if d.logger != nil {
			d.logger.Warnw("handler queue full, node ordering no longer guaranteed", "tag", n.Tag)
		}
		go func() { d.queue <- n }()
	}
}

// errNoRequestID is returned by SendAndAwait when the outgoing node has no
// id, since there would be nothing to correlate a response against.
type errNoRequestID struct{}

func (errNoRequestID) Error() string { return "core: node has no id to correlate a response against" }

// SendAndAwait implements PendingRequest (§3, §4.6): it registers a
// completion slot keyed by n.ID(), invokes send, and blocks for the
// matching response or ctx cancellation, always cleaning up the slot.
func (d *Dispatcher) SendAndAwait(ctx context.Context, n *Node, send func(*Node) error) (*Node, error) {
	id := n.ID()
	if id == "" {
		return nil, errNoRequestID{}
	}

	ch := make(chan *Node, 1)
	d.mu.Lock()
	if d.closeErr != nil {
		err := d.closeErr
		d.mu.Unlock()
		return nil, err
	}
	d.pending[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	if err := send(n); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			d.mu.Lock()
			err := d.closeErr
			d.mu.Unlock()
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
