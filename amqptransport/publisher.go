package amqptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	saga "github.com/grafikui/shareaware-saga"
)

// Publisher is a saga.CommandSink publishing to a topic exchange. Re-sent
// messages keep their MessageId, so consumers can drop them.
type Publisher struct {
	ch       Channel
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPublisher returns a publisher on ch. A nil logger disables logging.
func NewPublisher(ch Channel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger, now: time.Now}
}

// Encode builds the AMQP publishing of msg.
func Encode(msg saga.Message, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", msg.MessageType(), err)
	}
	id, err := saga.MessageID(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Type:         msg.MessageType(),
		Timestamp:    now,
		Body:         body,
	}, nil
}

// Send publishes msg with its type as routing key.
func (p *Publisher) Send(ctx context.Context, msg saga.Message) error {
	pub, err := Encode(msg, p.now())
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, pub.Type, false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", pub.Type, err)
	}
	p.logger.Debug("message published",
		zap.String("type", pub.Type),
		zap.String("message_id", pub.MessageId),
		zap.String("exchange", p.exchange),
	)
	return nil
}

var _ saga.CommandSink = (*Publisher)(nil)
