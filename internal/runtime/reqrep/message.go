package reqrep

import (
	"context"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/execution"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
)

const (
	slotOpen int32 = iota
	slotReplied
	slotDisconnected
)

// replySlot is a one-shot channel carrying at most one reply. Exactly one of
// send or disconnect wins; either way the channel is closed afterwards.
type replySlot[Rep any] struct {
	ch             chan Rep
	state          atomic.Int32
	receiverClosed atomic.Bool
}

func newReplySlot[Rep any]() *replySlot[Rep] {
	return &replySlot[Rep]{ch: make(chan Rep, 1)}
}

func (s *replySlot[Rep]) send(rep Rep) error {
	if !s.state.CompareAndSwap(slotOpen, slotReplied) {
		return errspkg.ErrReplyAlreadySent
	}
	defer close(s.ch)
	if s.receiverClosed.Load() {
		return errspkg.ErrReceiverClosed
	}
	s.ch <- rep
	return nil
}

func (s *replySlot[Rep]) disconnect() bool {
	if !s.state.CompareAndSwap(slotOpen, slotDisconnected) {
		return false
	}
	close(s.ch)
	return true
}

// Message is one request travelling from a client to a backend instance,
// together with the means to answer it.
type Message[Req, Rep any] struct {
	reqrepID ID
	id       MessageID

	mu    sync.Mutex
	req   Req
	taken bool

	reply *replySlot[Rep]
}

// NewMessage wraps req into a message and returns the receiver its reply will
// be delivered to.
func NewMessage[Req, Rep any](reqrepID ID, req Req) (*Message[Req, Rep], *ReplyReceiver[Rep]) {
	msg := &Message[Req, Rep]{
		reqrepID: reqrepID,
		id:       NewMessageID(),
		req:      req,
		reply:    newReplySlot[Rep](),
	}
	return msg, &ReplyReceiver[Rep]{messageID: msg.id, slot: msg.reply}
}

// TakeRequest hands out the request payload. Only the first call returns it;
// later calls return the zero value and false.
func (m *Message[Req, Rep]) TakeRequest() (Req, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero Req
	if m.taken {
		return zero, false
	}
	req := m.req
	m.req = zero
	m.taken = true
	return req, true
}

// Reply delivers rep to the waiting receiver. It fails with
// ErrReplyAlreadySent on any call after the first, and with ErrReceiverClosed
// when the client has stopped listening.
func (m *Message[Req, Rep]) Reply(rep Rep) error {
	return m.reply.send(rep)
}

// ReqRepID returns the id of the service the message was sent to.
func (m *Message[Req, Rep]) ReqRepID() ID { return m.reqrepID }

// MessageID returns the message id.
func (m *Message[Req, Rep]) MessageID() MessageID { return m.id }

// disconnect drops the message without a reply. It is a no-op once a reply
// was sent.
func (m *Message[Req, Rep]) disconnect() bool {
	return m.reply.disconnect()
}

// ReplyReceiver is the client side of a message's one-shot reply channel.
type ReplyReceiver[Rep any] struct {
	messageID MessageID
	slot      *replySlot[Rep]
	received  atomic.Bool
	logger    loggingpkg.ServiceLogger
}

// MessageID returns the id of the message the reply belongs to.
func (r *ReplyReceiver[Rep]) MessageID() MessageID { return r.messageID }

// Recv waits for the reply. It returns ErrDisconnected when the message was
// dropped without a reply and ctx.Err() when ctx is done first. The reply is
// delivered once: calling Recv again afterwards returns
// ErrReplyAlreadyReceived.
func (r *ReplyReceiver[Rep]) Recv(ctx context.Context) (Rep, error) {
	var zero Rep
	if r.received.Load() {
		loggingpkg.OrDefault(r.logger).Info("Reply receiver polled after the reply was received", loggingpkg.LogFields{
			"message_id": r.messageID.String(),
		})
		return zero, errspkg.ErrReplyAlreadyReceived
	}
	if r.slot.receiverClosed.Load() {
		return zero, errspkg.ErrReceiverClosed
	}

	var (
		rep Rep
		ok  bool
		err error
	)
	execution.Suspend(ctx, func() {
		select {
		case rep, ok = <-r.slot.ch:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	if err != nil {
		return zero, err
	}
	if !ok {
		if r.received.Load() {
			return zero, errspkg.ErrReplyAlreadyReceived
		}
		return zero, errspkg.ErrDisconnected
	}
	r.received.Store(true)
	return rep, nil
}

// Close tells the backend the reply is no longer wanted. A reply sent after
// Close fails with ErrReceiverClosed on the backend side; that is expected
// and never fatal to the service.
func (r *ReplyReceiver[Rep]) Close() {
	r.slot.receiverClosed.Store(true)
}
