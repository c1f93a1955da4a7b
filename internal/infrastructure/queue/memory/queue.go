package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

var errLockLost = errors.New("message lock lost")

// DeadLetter is a message moved aside after too many deliveries.
type DeadLetter struct {
	Body     []byte
	Reason   string
	Attempts int
}

type message struct {
	id          string
	body        []byte
	enqueuedAt  time.Time
	deliveries  int
	lockToken   string
	lockedUntil time.Time
}

// Queue is an in-process peek-lock queue with the same settle semantics as
// the broker backed queues. Locks expire after lockDuration and the message
// becomes visible again.
type Queue struct {
	lockDuration time.Duration

	mu       sync.Mutex
	ready    []*message
	inflight map[string]*message
	dead     []DeadLetter
	notify   chan struct{}
	now      func() time.Time
}

func New(lockDuration time.Duration) *Queue {
	if lockDuration <= 0 {
		lockDuration = 5 * time.Minute
	}
	return &Queue{
		lockDuration: lockDuration,
		inflight:     make(map[string]*message),
		notify:       make(chan struct{}, 1),
		now:          time.Now,
	}
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := append([]byte(nil), body...)

	q.mu.Lock()
	q.ready = append(q.ready, &message{id: uuid.NewString(), body: copied, enqueuedAt: q.now()})
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue) Receive(ctx context.Context, limit int, wait time.Duration) ([]ports.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if out := q.take(limit); len(out) > 0 {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return q.take(limit), nil
		case <-q.notify:
		}
	}
}

// Len reports the number of messages waiting for delivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimExpiredLocked()
	return len(q.ready)
}

// DeadLetters returns a snapshot of dead-lettered messages.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

func (q *Queue) take(limit int) []ports.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimExpiredLocked()

	n := min(limit, len(q.ready))
	if n == 0 {
		return nil
	}
	out := make([]ports.Delivery, 0, n)
	now := q.now()
	for _, msg := range q.ready[:n] {
		msg.deliveries++
		msg.lockToken = uuid.NewString()
		msg.lockedUntil = now.Add(q.lockDuration)
		q.inflight[msg.id] = msg
		out = append(out, &delivery{
			queue:      q,
			id:         msg.id,
			token:      msg.lockToken,
			body:       msg.body,
			attempt:    msg.deliveries,
			enqueuedAt: msg.enqueuedAt,
		})
	}
	q.ready = append([]*message(nil), q.ready[n:]...)
	if len(q.ready) > 0 {
		q.signal()
	}
	return out
}

func (q *Queue) reclaimExpiredLocked() {
	now := q.now()
	for id, msg := range q.inflight {
		if now.After(msg.lockedUntil) {
			delete(q.inflight, id)
			msg.lockToken = ""
			q.ready = append(q.ready, msg)
		}
	}
}

func (q *Queue) settle(id, token string, fn func(msg *message)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inflight[id]
	if !ok || msg.lockToken != token {
		return fmt.Errorf("settle message %s: %w", id, errLockLost)
	}
	delete(q.inflight, id)
	msg.lockToken = ""
	fn(msg)
	return nil
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type delivery struct {
	queue      *Queue
	id         string
	token      string
	body       []byte
	attempt    int
	enqueuedAt time.Time
}

func (d *delivery) Body() []byte          { return d.body }
func (d *delivery) Attempt() int          { return d.attempt }
func (d *delivery) EnqueuedAt() time.Time { return d.enqueuedAt }

func (d *delivery) Complete(_ context.Context) error {
	return d.queue.settle(d.id, d.token, func(*message) {})
}

func (d *delivery) Abandon(_ context.Context) error {
	err := d.queue.settle(d.id, d.token, func(msg *message) {
		d.queue.ready = append(d.queue.ready, msg)
	})
	if err == nil {
		d.queue.signal()
	}
	return err
}

func (d *delivery) DeadLetter(_ context.Context, reason string) error {
	return d.queue.settle(d.id, d.token, func(msg *message) {
		d.queue.dead = append(d.queue.dead, DeadLetter{Body: msg.body, Reason: reason, Attempts: msg.deliveries})
	})
}
