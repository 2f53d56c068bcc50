package reqrep

import (
	"context"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/execution"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
)

// channel is the state shared by every client handle and backend instance of
// one service. The request channel itself is never closed: client shutdown and
// backend exit are signalled on their own channels so a late Send can never
// hit a closed channel.
type channel[Req, Rep any] struct {
	id       ID
	requests chan *Message[Req, Rep]

	// shutdown is closed when the last client handle is closed.
	shutdown     chan struct{}
	shutdownOnce sync.Once
	handles      atomic.Int64

	// done is closed when the last backend has exited.
	done     chan struct{}
	doneOnce sync.Once
	backends atomic.Int64

	logger  loggingpkg.ServiceLogger
	metrics *serviceMetrics
}

func newChannel[Req, Rep any](id ID, bufSize int, logger loggingpkg.ServiceLogger, metrics *serviceMetrics) *channel[Req, Rep] {
	if bufSize < 1 {
		bufSize = 1
	}
	return &channel[Req, Rep]{
		id:       id,
		requests: make(chan *Message[Req, Rep], bufSize),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   loggingpkg.OrDefault(logger),
		metrics:  metrics,
	}
}

func (ch *channel[Req, Rep]) attachBackends(n int) {
	ch.backends.Add(int64(n))
}

// detachBackend records that a backend exited. The last one to leave
// disconnects every message still buffered.
func (ch *channel[Req, Rep]) detachBackend() {
	if ch.backends.Add(-1) != 0 {
		return
	}
	ch.doneOnce.Do(func() { close(ch.done) })
	if n := ch.drain(); n > 0 {
		ch.logger.Debug("Disconnected buffered requests", loggingpkg.LogFields{"count": n})
	}
}

func (ch *channel[Req, Rep]) drain() int {
	var n int
	for {
		select {
		case msg := <-ch.requests:
			msg.disconnect()
			n++
		default:
			return n
		}
	}
}

func (ch *channel[Req, Rep]) closeHandle() {
	if ch.handles.Add(-1) == 0 {
		ch.shutdownOnce.Do(func() { close(ch.shutdown) })
	}
}

func (ch *channel[Req, Rep]) disconnected() bool {
	select {
	case <-ch.done:
		return true
	default:
		return false
	}
}

// pushed runs after a message made it into the buffer. A backend may have
// exited in the meantime, in which case nobody else will ever drain it.
func (ch *channel[Req, Rep]) pushed() {
	if ch.metrics != nil {
		ch.metrics.sent.Inc()
	}
	if ch.disconnected() {
		ch.drain()
	}
}

// next blocks until a message arrives. Once every client handle is closed it
// keeps returning buffered messages and then reports false.
func (ch *channel[Req, Rep]) next(ctx context.Context) (*Message[Req, Rep], bool) {
	var (
		msg *Message[Req, Rep]
		ok  bool
	)
	execution.Suspend(ctx, func() {
		select {
		case msg = <-ch.requests:
			ok = true
		case <-ch.shutdown:
			select {
			case msg = <-ch.requests:
				ok = true
			default:
			}
		case <-ctx.Done():
		}
	})
	return msg, ok
}

// Client submits requests to a service. Handles are safe for concurrent use;
// Clone returns another handle onto the same channel and buffer. Every handle
// must be closed: once the last one is, the backends drain what is buffered
// and stop.
type Client[Req, Rep any] struct {
	ch     *channel[Req, Rep]
	closed atomic.Bool
}

func newClient[Req, Rep any](ch *channel[Req, Rep]) *Client[Req, Rep] {
	ch.handles.Add(1)
	return &Client[Req, Rep]{ch: ch}
}

// ID returns the id of the service.
func (c *Client[Req, Rep]) ID() ID { return c.ch.id }

// Cap returns the capacity of the request buffer shared by every clone.
func (c *Client[Req, Rep]) Cap() int { return cap(c.ch.requests) }

// Len returns the number of requests waiting in the buffer.
func (c *Client[Req, Rep]) Len() int { return len(c.ch.requests) }

// Clone returns a new handle sharing the channel. Cloning a closed handle
// returns a closed handle.
func (c *Client[Req, Rep]) Clone() *Client[Req, Rep] {
	if c.closed.Load() {
		clone := &Client[Req, Rep]{ch: c.ch}
		clone.closed.Store(true)
		return clone
	}
	return newClient(c.ch)
}

// Close releases the handle. It is safe to call more than once.
func (c *Client[Req, Rep]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.ch.closeHandle()
	}
}

// Send pushes req onto the request buffer and returns the receiver of its
// reply. When the buffer is full Send waits for room or for ctx. It fails with
// ErrChannelDisconnected once every backend instance has exited.
func (c *Client[Req, Rep]) Send(ctx context.Context, req Req) (*ReplyReceiver[Rep], error) {
	msg, rx, err := c.message(req)
	if err != nil {
		return nil, err
	}
	execution.Suspend(ctx, func() {
		select {
		case c.ch.requests <- msg:
		case <-c.ch.done:
			err = errspkg.ErrChannelDisconnected
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	c.ch.pushed()
	return rx, nil
}

// TrySend is Send without waiting: a full buffer fails with ErrChannelFull.
func (c *Client[Req, Rep]) TrySend(req Req) (*ReplyReceiver[Rep], error) {
	msg, rx, err := c.message(req)
	if err != nil {
		return nil, err
	}
	select {
	case c.ch.requests <- msg:
	default:
		return nil, errspkg.ErrChannelFull
	}
	c.ch.pushed()
	return rx, nil
}

// SendRecv sends req and waits for the reply. If ctx ends first the receiver
// is closed, so the backend drops the reply quietly.
func (c *Client[Req, Rep]) SendRecv(ctx context.Context, req Req) (Rep, error) {
	rx, err := c.Send(ctx, req)
	if err != nil {
		var zero Rep
		return zero, err
	}
	rep, err := rx.Recv(ctx)
	if err != nil {
		rx.Close()
	}
	return rep, err
}

func (c *Client[Req, Rep]) message(req Req) (*Message[Req, Rep], *ReplyReceiver[Rep], error) {
	if c.closed.Load() || c.ch.disconnected() {
		return nil, nil, errspkg.ErrChannelDisconnected
	}
	msg, rx := NewMessage[Req, Rep](c.ch.id, req)
	rx.logger = c.ch.logger
	return msg, rx, nil
}

// Backend is the receiving side of a channel created with NewChannel, for
// callers that drive their own service loop instead of StartService.
type Backend[Req, Rep any] struct {
	ch     *channel[Req, Rep]
	closed atomic.Bool
}

// NewChannel creates a request channel with room for bufSize requests and
// returns its first client handle and its backend. Requests are not counted
// in metrics; StartService does that.
func NewChannel[Req, Rep any](id ID, bufSize int) (*Client[Req, Rep], *Backend[Req, Rep]) {
	ch := newChannel[Req, Rep](id, bufSize, nil, nil)
	ch.attachBackends(1)
	return newClient(ch), &Backend[Req, Rep]{ch: ch}
}

// Recv returns the next request. It reports false when every client handle
// is closed and the buffer is empty, or when ctx is done.
func (b *Backend[Req, Rep]) Recv(ctx context.Context) (*Message[Req, Rep], bool) {
	if b.closed.Load() {
		return nil, false
	}
	return b.ch.next(ctx)
}

// Close detaches the backend. Buffered and future requests are disconnected.
func (b *Backend[Req, Rep]) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.ch.detachBackend()
	}
}

// Disconnect drops msg without replying; its receiver sees ErrDisconnected.
// It has no effect on a message that was already answered.
func (b *Backend[Req, Rep]) Disconnect(msg *Message[Req, Rep]) {
	msg.disconnect()
}
