package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReceiveReturnsAtMostMax(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, []byte(body)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got, err := q.Receive(ctx, 2, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if string(got[0].Body()) != "a" || got[0].Attempt() != 1 {
		t.Fatalf("unexpected first delivery %q attempt %d", got[0].Body(), got[0].Attempt())
	}
	if q.Len() != 1 {
		t.Fatalf("expected one message left, got %d", q.Len())
	}
}

func TestReceiveEmptyAfterWait(t *testing.T) {
	q := New(time.Minute)
	start := time.Now()
	got, err := q.Receive(context.Background(), 5, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty batch, got %d", len(got))
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected receive to wait for the full window")
	}
}

func TestReceiveWakesOnPublish(t *testing.T) {
	q := New(time.Minute)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Publish(context.Background(), []byte("late"))
	}()
	got, err := q.Receive(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 1 || string(got[0].Body()) != "late" {
		t.Fatalf("expected late message, got %v", got)
	}
}

func TestAbandonRedeliversWithHigherAttempt(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()
	_ = q.Publish(ctx, []byte("job"))

	first, _ := q.Receive(ctx, 1, 10*time.Millisecond)
	if err := first[0].Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	second, _ := q.Receive(ctx, 1, 10*time.Millisecond)
	if len(second) != 1 || second[0].Attempt() != 2 {
		t.Fatalf("expected redelivery with attempt 2, got %v", second)
	}
}

func TestCompleteRemovesMessage(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()
	_ = q.Publish(ctx, []byte("job"))

	got, _ := q.Receive(ctx, 1, 10*time.Millisecond)
	if err := got[0].Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := got[0].Complete(ctx); !errors.Is(err, errLockLost) {
		t.Fatalf("expected second settle to fail with lock lost, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestDeadLetterMovesMessageAside(t *testing.T) {
	q := New(time.Minute)
	ctx := context.Background()
	_ = q.Publish(ctx, []byte("poison"))

	got, _ := q.Receive(ctx, 1, 10*time.Millisecond)
	if err := got[0].DeadLetter(ctx, "too many attempts"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	dead := q.DeadLetters()
	if len(dead) != 1 || dead[0].Reason != "too many attempts" || string(dead[0].Body) != "poison" {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestExpiredLockMakesMessageVisible(t *testing.T) {
	q := New(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return now }
	ctx := context.Background()
	_ = q.Publish(ctx, []byte("job"))

	first, _ := q.Receive(ctx, 1, time.Millisecond)
	now = now.Add(2 * time.Minute)

	second, _ := q.Receive(ctx, 1, time.Millisecond)
	if len(second) != 1 || second[0].Attempt() != 2 {
		t.Fatalf("expected expired lock to redeliver, got %v", second)
	}
	if err := first[0].Complete(ctx); !errors.Is(err, errLockLost) {
		t.Fatalf("expected stale delivery to lose its lock, got %v", err)
	}
}
