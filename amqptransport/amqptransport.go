// Package amqptransport carries saga messages over RabbitMQ.
//
// Every message is published to one topic exchange with its message type as
// routing key, the type in the AMQP Type property and a deterministic
// MessageId. Consumers bind queues to the types they handle.
package amqptransport

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentType of every published body.
const ContentType = "application/json"

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Topology describes the exchange and one queue bound to a set of message
// types.
type Topology struct {
	Exchange string
	Queue    string
	Bindings []string
}

// Connection is an open connection with one channel.
type Connection struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial connects and opens a channel.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Connection{Conn: conn, Channel: ch}, nil
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	if c.Channel != nil {
		c.Channel.Close()
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

// Declare declares the durable topic exchange and queue of t and binds the
// queue to every listed message type.
func Declare(ch *amqp.Channel, t Topology) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if t.Queue == "" {
		return nil
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	for _, key := range t.Bindings {
		if err := ch.QueueBind(q.Name, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
		}
	}
	return nil
}

// Deliveries starts consuming queue with manual acknowledgement.
func Deliveries(ch *amqp.Channel, queue, consumer string) (<-chan amqp.Delivery, error) {
	msgs, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return msgs, nil
}
