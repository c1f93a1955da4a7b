package servicebus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

func TestClassifyServiceBusError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "connection lost", err: &azservicebus.Error{Code: azservicebus.CodeConnectionLost}, retryable: true},
		{name: "timeout", err: &azservicebus.Error{Code: azservicebus.CodeTimeout}, retryable: true},
		{name: "lock lost", err: &azservicebus.Error{Code: azservicebus.CodeLockLost}, retryable: false},
		{name: "unauthorized", err: &azservicebus.Error{Code: azservicebus.CodeUnauthorizedAccess}, retryable: false},
		{name: "canceled", err: context.Canceled, retryable: false},
		{name: "unknown", err: errors.New("boom"), retryable: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyServiceBusError(tc.err).Retryable; got != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, got)
			}
		})
	}
}

func TestDeliveryExposesBrokerMetadata(t *testing.T) {
	enqueued := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &delivery{msg: &azservicebus.ReceivedMessage{
		Body:          []byte(`{"id":"1"}`),
		DeliveryCount: 3,
		EnqueuedTime:  &enqueued,
	}}
	if d.Attempt() != 3 {
		t.Fatalf("expected attempt 3, got %d", d.Attempt())
	}
	if !d.EnqueuedAt().Equal(enqueued) {
		t.Fatalf("expected enqueued time %s, got %s", enqueued, d.EnqueuedAt())
	}
	if string(d.Body()) != `{"id":"1"}` {
		t.Fatalf("unexpected body %q", d.Body())
	}
}

func TestNewRequiresNamespace(t *testing.T) {
	if _, err := New(Options{Queue: "processing"}); err == nil {
		t.Fatalf("expected error without namespace")
	}
}
