// Package bus is an in-process transport between the saga engine and the
// ledgers. Commands sent by the engine are queued; Drain hands each one to
// its ledger handler and delivers the resulting event back to the engine.
package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	saga "github.com/grafikui/shareaware-saga"
)

// Inbox receives events and rejections. *saga.Engine is an Inbox.
type Inbox interface {
	Deliver(ctx context.Context, sig saga.Message) error
}

// Direction tells whether a traced message went to a ledger or came back
// from one.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// Entry is one traced message.
type Entry struct {
	Direction Direction
	Message   saga.Message
}

// Local is a FIFO CommandSink. It is safe for concurrent Send; Drain must
// not run concurrently with itself.
type Local struct {
	mu        sync.Mutex
	queue     []saga.Message
	seen      map[string]bool
	handlers  map[string]saga.CommandHandler
	inbox     Inbox
	trace     []Entry
	published []saga.Message
	logger    *zap.Logger
}

// New returns an empty bus. A nil logger disables logging.
func New(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		seen:     make(map[string]bool),
		handlers: make(map[string]saga.CommandHandler),
		logger:   logger,
	}
}

// Handle registers the handler of one command type.
func (b *Local) Handle(messageType string, h saga.CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[messageType] = h
}

// HandleAll registers a handler table.
func (b *Local) HandleAll(handlers map[string]saga.CommandHandler) {
	for t, h := range handlers {
		b.Handle(t, h)
	}
}

// Attach sets the inbox that receives handler results.
func (b *Local) Attach(inbox Inbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbox = inbox
}

// Send queues msg. A message identical to one already sent is dropped.
func (b *Local) Send(_ context.Context, msg saga.Message) error {
	id, err := saga.MessageID(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[id] {
		b.logger.Debug("duplicate message suppressed", zap.String("type", msg.MessageType()), zap.String("message_id", id))
		return nil
	}
	b.seen[id] = true
	b.queue = append(b.queue, msg)
	b.trace = append(b.trace, Entry{Direction: Outbound, Message: msg})
	return nil
}

func (b *Local) next() (saga.Message, saga.CommandHandler, Inbox, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, nil, nil, false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	return msg, b.handlers[msg.MessageType()], b.inbox, true
}

// Drain processes queued messages until the queue is empty, including the
// ones queued while draining. Messages with no handler are published, not
// processed. It stops at the first handler or delivery error.
func (b *Local) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, handler, inbox, ok := b.next()
		if !ok {
			return nil
		}

		if handler == nil {
			b.mu.Lock()
			b.published = append(b.published, msg)
			b.mu.Unlock()
			b.logger.Debug("message published", zap.String("type", msg.MessageType()))
			continue
		}

		result, err := handler(ctx, msg)
		if err != nil {
			b.logger.Error("command failed", zap.String("type", msg.MessageType()), zap.Error(err))
			return fmt.Errorf("handle %s: %w", msg.MessageType(), err)
		}
		if result == nil {
			continue
		}

		b.mu.Lock()
		b.trace = append(b.trace, Entry{Direction: Inbound, Message: result})
		b.mu.Unlock()

		if inbox == nil {
			return fmt.Errorf("no inbox attached for %s", result.MessageType())
		}
		if err := inbox.Deliver(ctx, result); err != nil {
			return fmt.Errorf("deliver %s: %w", result.MessageType(), err)
		}
	}
}

// Pending returns the number of queued messages.
func (b *Local) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Trace returns every message that crossed the bus, in order.
func (b *Local) Trace() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.trace...)
}

// Published returns the messages no handler consumed, such as terminal
// events.
func (b *Local) Published() []saga.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]saga.Message(nil), b.published...)
}

var _ saga.CommandSink = (*Local)(nil)
