package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

const pollInterval = 100 * time.Millisecond

// Queue uses a quorum queue so the broker tracks redeliveries in the
// x-delivery-count header.
type Queue struct {
	conn      *amqp.Connection
	publishCh *amqp.Channel
	consumeCh *amqp.Channel
	queue     string
	deadQueue string
	executor  *resilience.Executor

	mu sync.Mutex
}

type Options struct {
	URL                string
	Queue              string
	DeadLetterQueue    string
	ResilienceExecutor *resilience.Executor
}

func New(opts Options) (*Queue, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	publishCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}
	consumeCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	deadQueue := opts.DeadLetterQueue
	if deadQueue == "" {
		deadQueue = opts.Queue + ".dead"
	}
	if _, err := publishCh.QueueDeclare(opts.Queue, true, false, false, false, amqp.Table{"x-queue-type": "quorum"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare a %s queue: %w", opts.Queue, err)
	}
	if _, err := publishCh.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare a %s queue: %w", deadQueue, err)
	}

	return &Queue{
		conn:      conn,
		publishCh: publishCh,
		consumeCh: consumeCh,
		queue:     opts.Queue,
		deadQueue: deadQueue,
		executor:  opts.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() error {
	return errors.Join(q.consumeCh.Close(), q.publishCh.Close(), q.conn.Close())
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	err := q.publish(ctx, q.queue, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	return resilience.WrapTemporaryIfNeeded("rabbitmq publish", err, classifyAMQPError)
}

func (q *Queue) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	call := func(callCtx context.Context) error {
		if err := q.publishCh.PublishWithContext(callCtx, "", routingKey, false, false, msg); err != nil {
			return fmt.Errorf("failed to publish message in queue: %w", err)
		}
		return nil
	}
	if q.executor != nil {
		return q.executor.Execute(ctx, "rabbitmq.publish", call, classifyAMQPError)
	}
	return call(ctx)
}

// Receive polls basic.get until limit messages are collected or wait elapses
// with nothing received.
func (q *Queue) Receive(ctx context.Context, limit int, wait time.Duration) ([]ports.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	deadline := time.Now().Add(wait)
	out := make([]ports.Delivery, 0, limit)

	for len(out) < limit {
		q.mu.Lock()
		msg, ok, err := q.consumeCh.Get(q.queue, false)
		q.mu.Unlock()
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, resilience.WrapTemporaryIfNeeded("rabbitmq get", fmt.Errorf("failed to get from %s queue: %w", q.queue, err), classifyAMQPError)
		}
		if ok {
			out = append(out, &delivery{queue: q, msg: msg})
			continue
		}
		if len(out) > 0 || !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return out, nil
}

type delivery struct {
	queue *Queue
	msg   amqp.Delivery
}

func (d *delivery) Body() []byte          { return d.msg.Body }
func (d *delivery) EnqueuedAt() time.Time { return d.msg.Timestamp }

// Attempt derives the delivery number from the quorum queue counter, which
// is absent on first delivery.
func (d *delivery) Attempt() int {
	return deliveryAttempt(d.msg.Headers, d.msg.Redelivered)
}

func (d *delivery) Complete(_ context.Context) error {
	if err := d.msg.Ack(false); err != nil {
		return fmt.Errorf("rabbitmq ack: %w", err)
	}
	return nil
}

func (d *delivery) Abandon(_ context.Context) error {
	if err := d.msg.Nack(false, true); err != nil {
		return fmt.Errorf("rabbitmq nack: %w", err)
	}
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	headers := amqp.Table{}
	for k, v := range d.msg.Headers {
		headers[k] = v
	}
	headers["x-dead-letter-reason"] = reason
	headers["x-attempts"] = int64(d.Attempt())

	err := d.queue.publish(ctx, d.queue.deadQueue, amqp.Publishing{
		ContentType:  d.msg.ContentType,
		Body:         d.msg.Body,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("rabbitmq dead-letter", err, classifyAMQPError)
	}
	if err := d.msg.Ack(false); err != nil {
		return fmt.Errorf("rabbitmq ack dead-lettered: %w", err)
	}
	return nil
}

func deliveryAttempt(headers amqp.Table, redelivered bool) int {
	switch v := headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	if redelivered {
		return 2
	}
	return 1
}

func classifyAMQPError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	if errors.Is(err, amqp.ErrClosed) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Recover {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
