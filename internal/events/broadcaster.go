package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

const publishTimeout = 5 * time.Second

// Broadcaster fans expense writes out to every running instance over a
// fanout exchange so each one can drop its cached copies. Every instance
// consumes through its own exclusive queue.
type Broadcaster struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	queue      string
	instanceID string
	mu         sync.Mutex
}

var _ budget.ChangeNotifier = (*Broadcaster)(nil)

func NewBroadcaster(url, exchange string) (*Broadcaster, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	b := &Broadcaster{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		instanceID: uuid.NewString(),
	}

	if err := b.setup(); err != nil {
		b.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return b, nil
}

func (b *Broadcaster) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// server-named, gone with the connection
	queue, err := b.channel.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	b.queue = queue.Name

	if err := b.channel.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (b *Broadcaster) InstanceID() string {
	return b.instanceID
}

func (b *Broadcaster) NotifyExpenseChanged(ctx context.Context, change budget.ExpenseChange) error {
	body, err := NewChangeMessage(b.instanceID, change).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.channel.PublishWithContext(
		ctx,
		b.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	logging.WithTrace(ctx).Debugf("published expense change %s for expense %d", change.Action, change.ExpenseID)
	return nil
}

// Subscribe delivers changes made by other instances to handler until ctx is
// done or the channel closes.
func (b *Broadcaster) Subscribe(ctx context.Context, handler func(budget.ExpenseChange)) error {
	msgs, err := b.channel.Consume(
		b.queue, // queue
		"",      // consumer
		true,    // auto-ack
		true,    // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logging.Logger.Infof("listening for expense changes on exchange %s (instance %s)", b.exchange, b.instanceID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			change, apply, err := b.accept(delivery.Body)
			if err != nil {
				logging.Logger.Warnf("dropping malformed expense change: %v", err)
				continue
			}
			if apply {
				handler(change)
			}
		}
	}
}

// accept decodes a delivery and reports whether it came from another instance.
func (b *Broadcaster) accept(body []byte) (budget.ExpenseChange, bool, error) {
	msg, err := ChangeMessageFromJSON(body)
	if err != nil {
		return budget.ExpenseChange{}, false, err
	}
	if msg.InstanceID == b.instanceID {
		return budget.ExpenseChange{}, false, nil
	}
	return msg.Change(), true, nil
}

func (b *Broadcaster) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
