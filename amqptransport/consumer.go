package amqptransport

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
)

// ErrPermanent marks a failure that redelivery cannot fix. Such deliveries
// are rejected without requeue.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err with ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler processes one decoded message.
type Handler func(ctx context.Context, msg saga.Message) error

// Decode turns a delivery back into its message value.
func Decode(d amqp.Delivery) (saga.Message, error) {
	if d.Type == "" {
		return nil, fmt.Errorf("delivery %s has no type", d.MessageId)
	}
	v, err := message.Decode(d.Type, d.Body)
	if err != nil {
		return nil, err
	}
	msg, ok := v.(saga.Message)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", d.Type)
	}
	return msg, nil
}

// DefaultDedupWindow is how many handled message ids a consumer remembers.
const DefaultDedupWindow = 4096

// Consumer acknowledges a delivery once its handler succeeds. Handler
// errors requeue the delivery unless they are permanent. A delivery whose
// MessageId was handled recently is acknowledged without calling the
// handler again.
type Consumer struct {
	handler Handler
	logger  *zap.Logger
	seen    *recentIDs
}

// NewConsumer returns a consumer calling h. A nil logger disables logging.
func NewConsumer(h Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{handler: h, logger: logger, seen: newRecentIDs(DefaultDedupWindow)}
}

// Consume processes deliveries until ctx is done or the channel closes.
func (c *Consumer) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	fields := []zap.Field{zap.String("type", d.Type), zap.String("message_id", d.MessageId)}

	msg, err := Decode(d)
	if err != nil {
		c.logger.Error("undecodable delivery rejected", append(fields, zap.Error(err))...)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", append(fields, zap.Error(nackErr))...)
		}
		return
	}

	if d.MessageId != "" && c.seen.contains(d.MessageId) {
		c.logger.Debug("duplicate delivery acknowledged", fields...)
		if err := d.Ack(false); err != nil {
			c.logger.Error("ack failed", append(fields, zap.Error(err))...)
		}
		return
	}

	if err := c.handler(ctx, msg); err != nil {
		requeue := !errors.Is(err, ErrPermanent)
		c.logger.Error("delivery failed", append(fields, zap.Bool("requeue", requeue), zap.Error(err))...)
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			c.logger.Error("nack failed", append(fields, zap.Error(nackErr))...)
		}
		return
	}

	if d.MessageId != "" {
		c.seen.add(d.MessageId)
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", append(fields, zap.Error(err))...)
	}
}

// recentIDs is a fixed-size set that forgets its oldest id first. Only the
// consuming goroutine touches it.
type recentIDs struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

func (r *recentIDs) contains(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *recentIDs) add(id string) {
	if r.contains(id) {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}

// EngineHandler feeds initiating commands to Execute and everything else
// to Deliver. A repeated initiating command is acknowledged and ignored.
func EngineHandler(e *saga.Engine, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, msg saga.Message) error {
		if e.Initiates(msg.MessageType()) {
			id, err := e.Execute(ctx, msg)
			switch {
			case errors.Is(err, saga.ErrInstanceExists):
				logger.Warn("initiating command redelivered", zap.String("type", msg.MessageType()))
				return nil
			case errors.Is(err, saga.ErrInvalidCommand), errors.Is(err, saga.ErrUnknownCommand):
				return Permanent(err)
			case err != nil:
				return err
			}
			logger.Info("saga started from queue", zap.String("saga_id", id), zap.String("type", msg.MessageType()))
			return nil
		}

		err := e.Deliver(ctx, msg)
		if err != nil && deterministic(err) {
			return Permanent(err)
		}
		return err
	}
}

// deterministic reports whether redelivering the signal would fail the same
// way: a definition gap, or a reaction that cannot run on the stored state.
// A joined error is deterministic only if every part is.
func deterministic(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !deterministic(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, saga.ErrUnroutableSignal) ||
		errors.Is(err, saga.ErrNoReaction) ||
		errors.Is(err, saga.ErrReactionFailed)
}

// LedgerHandler runs commands against ledger handlers and publishes each
// resulting event to sink.
func LedgerHandler(handlers map[string]saga.CommandHandler, sink saga.CommandSink) Handler {
	return func(ctx context.Context, msg saga.Message) error {
		h, ok := handlers[msg.MessageType()]
		if !ok {
			return Permanent(fmt.Errorf("no handler for %s", msg.MessageType()))
		}
		result, err := h(ctx, msg)
		if err != nil {
			return Permanent(err)
		}
		if result == nil {
			return nil
		}
		return sink.Send(ctx, result)
	}
}
