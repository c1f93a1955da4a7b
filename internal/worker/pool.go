package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

const maxReceiveBackoff = 30 * time.Second

// Observer receives per-delivery and per-batch events for metrics.
type Observer interface {
	BatchReceived(size int)
	StartJob()
	FinishJob(outcome domain.Outcome, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}

type noopObserver struct{}

func (noopObserver) BatchReceived(int)                       {}
func (noopObserver) StartJob()                               {}
func (noopObserver) FinishJob(domain.Outcome, time.Duration) {}
func (noopObserver) ObserveQueueLag(time.Duration)           {}

type Options struct {
	BatchSize      int
	MaxWait        time.Duration
	IdleSleep      time.Duration
	ProcessTimeout time.Duration
	Logger         *slog.Logger
	Observer       Observer
}

// Pool polls the queue and processes every received batch concurrently,
// one goroutine per delivery. A new poll is issued only after the whole
// batch has settled, so concurrency never exceeds the batch size.
type Pool struct {
	receiver  ports.JobReceiver
	processor ports.JobProcessor
	opts      Options
	logger    *slog.Logger
	observer  Observer
	sleep     func(ctx context.Context, d time.Duration)
	now       func() time.Time
}

func NewPool(receiver ports.JobReceiver, processor ports.JobProcessor, opts Options) *Pool {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = time.Second
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Pool{
		receiver:  receiver,
		processor: processor,
		opts:      opts,
		logger:    logger,
		observer:  observer,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Run polls until ctx is canceled. The in-flight batch is allowed to finish
// after cancellation; unsettled messages are redelivered by the broker.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker.started",
		"batch_size", p.opts.BatchSize,
		"max_wait_ms", p.opts.MaxWait.Milliseconds(),
		"process_timeout_ms", p.opts.ProcessTimeout.Milliseconds(),
	)

	failures := 0
	for {
		if ctx.Err() != nil {
			p.logger.Info("worker.stopped")
			return nil
		}

		deliveries, err := p.receiver.Receive(ctx, p.opts.BatchSize, p.opts.MaxWait)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("worker.stopped")
				return nil
			}
			failures++
			backoff := receiveBackoff(p.opts.IdleSleep, failures)
			p.logger.Error("worker.receive_failed", "error", err, "consecutive_failures", failures, "backoff_ms", backoff.Milliseconds())
			p.sleep(ctx, backoff)
			continue
		}
		failures = 0

		if len(deliveries) == 0 {
			p.sleep(ctx, p.opts.IdleSleep)
			continue
		}

		p.RunBatch(ctx, deliveries)
	}
}

// RunBatch handles one batch and returns when every delivery has settled.
func (p *Pool) RunBatch(ctx context.Context, deliveries []ports.Delivery) []domain.Outcome {
	p.observer.BatchReceived(len(deliveries))
	p.logger.Debug("worker.batch_received", "size", len(deliveries))

	outcomes := make([]domain.Outcome, len(deliveries))
	var wg sync.WaitGroup
	for i, delivery := range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = p.handle(ctx, delivery)
		}()
	}
	wg.Wait()
	return outcomes
}

func (p *Pool) handle(ctx context.Context, delivery ports.Delivery) (outcome domain.Outcome) {
	// Settlement must reach the broker even while the process shuts down.
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.ProcessTimeout)
	defer cancel()

	start := p.now()
	if enqueued := delivery.EnqueuedAt(); !enqueued.IsZero() {
		p.observer.ObserveQueueLag(start.Sub(enqueued))
	}
	p.observer.StartJob()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker.task_panic", "panic", r, "attempt", delivery.Attempt())
			if err := delivery.Abandon(taskCtx); err != nil {
				p.logger.Error("job.abandon_failed", "attempt", delivery.Attempt(), "error", err)
			}
			outcome = domain.OutcomeAbandoned
		}
		p.observer.FinishJob(outcome, p.now().Sub(start))
	}()

	return p.processor.Handle(taskCtx, delivery)
}

func receiveBackoff(base time.Duration, failures int) time.Duration {
	backoff := base
	for i := 1; i < failures && backoff < maxReceiveBackoff; i++ {
		backoff *= 2
	}
	return min(backoff, maxReceiveBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
