package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

// Queue is a JetStream work queue. Jobs live in one stream consumed by a
// durable pull consumer with explicit acks; terminated jobs are copied to a
// separate dead-letter stream.
type Queue struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	subject  string
	deadSubj string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	Stream            string
	Consumer          string
	DeadLetterSubject string
	AckWait           time.Duration

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(ctx context.Context, url, subject string) (*Queue, error) {
	return NewWithOptions(ctx, url, subject, Options{})
}

func NewWithOptions(ctx context.Context, url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	streamName := options.Stream
	if streamName == "" {
		streamName = "JOBS"
	}
	consumerName := options.Consumer
	if consumerName == "" {
		consumerName = "processing-worker"
	}
	deadSubject := options.DeadLetterSubject
	if deadSubject == "" {
		deadSubject = subject + ".dead"
	}
	ackWait := options.AckWait
	if ackWait <= 0 {
		ackWait = 5 * time.Minute
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ai-processing-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName + "_DEAD",
		Subjects: []string{deadSubject},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure dead-letter stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure consumer %s: %w", consumerName, err)
	}

	return &Queue{
		conn:     conn,
		js:       js,
		consumer: consumer,
		subject:  subject,
		deadSubj: deadSubject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(callCtx, q.subject, body); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded("nats publish", err)
}

func (q *Queue) Receive(ctx context.Context, limit int, wait time.Duration) ([]ports.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	if wait < 100*time.Millisecond {
		wait = 100 * time.Millisecond
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, err := q.consumer.Fetch(limit, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats fetch", fmt.Errorf("nats fetch: %w", err))
	}

	out := make([]ports.Delivery, 0, limit)
	for msg := range batch.Messages() {
		out = append(out, q.newDelivery(msg))
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && len(out) == 0 {
		return nil, wrapTemporaryIfNeeded("nats fetch", fmt.Errorf("nats fetch batch: %w", err))
	}
	return out, nil
}

func (q *Queue) newDelivery(msg jetstream.Msg) *delivery {
	d := &delivery{queue: q, msg: msg, attempt: 1}
	if meta, err := msg.Metadata(); err == nil {
		d.attempt = int(meta.NumDelivered)
		d.enqueuedAt = meta.Timestamp
	}
	return d
}

type delivery struct {
	queue      *Queue
	msg        jetstream.Msg
	attempt    int
	enqueuedAt time.Time
}

func (d *delivery) Body() []byte          { return d.msg.Data() }
func (d *delivery) Attempt() int          { return d.attempt }
func (d *delivery) EnqueuedAt() time.Time { return d.enqueuedAt }

func (d *delivery) Complete(ctx context.Context) error {
	if err := d.msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("nats ack: %w", err)
	}
	return nil
}

func (d *delivery) Abandon(_ context.Context) error {
	if err := d.msg.Nak(); err != nil {
		return fmt.Errorf("nats nak: %w", err)
	}
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	out := nats.NewMsg(d.queue.deadSubj)
	out.Data = d.msg.Data()
	out.Header.Set("Dead-Letter-Reason", reason)
	out.Header.Set("Delivery-Count", fmt.Sprintf("%d", d.attempt))
	if _, err := d.queue.js.PublishMsg(ctx, out); err != nil {
		return wrapTemporaryIfNeeded("nats dead-letter", fmt.Errorf("nats dead-letter publish: %w", err))
	}
	if err := d.msg.TermWithReason(reason); err != nil {
		return fmt.Errorf("nats term: %w", err)
	}
	return nil
}
