// Package rabbitmq содержит подключение к RabbitMQ, объявление очередей панели,
// публикацию и потребление сообщений.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
)

const (
	// ExchangeName обменник, через который идут все задачи панели.
	ExchangeName = "panel"
	// DeadLetterExchange обменник для сообщений, отброшенных потребителем.
	DeadLetterExchange = "panel.dead"
)

// Connect подключается к RabbitMQ. Между попытками ждёт delay, ожидание прерывается отменой ctx.
func Connect(ctx context.Context, log *slog.Logger, url string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("rabbitmq dial failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("retries", retries),
			sl.Err(err),
		)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", op, retries, err)
}

// SetupChannel открывает канал и объявляет топологию: рабочий обменник с очередями
// и обменник отброшенных сообщений, где у каждой очереди есть пара <queue>.dead.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	for _, exchange := range []string{ExchangeName, DeadLetterExchange} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: failed to declare exchange %s: %w", op, exchange, err)
		}
	}

	for _, q := range queues {
		if err := declareBound(ch, q.DeadLetterQueue(), q.RoutingKey, DeadLetterExchange, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
		if err := declareBound(ch, q.QueueName, q.RoutingKey, ExchangeName, args); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return ch, nil
}

func declareBound(ch *amqp.Channel, queue, routingKey, exchange string, args amqp.Table) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s with routing key %s: %w", queue, exchange, routingKey, err)
	}
	return nil
}
