package servicebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	FQDN               string
	ConnectionString   string
	Queue              string
	ResilienceExecutor *resilience.Executor
}

// Queue sends to and peek-lock receives from one Service Bus queue.
type Queue struct {
	client   *azservicebus.Client
	sender   *azservicebus.Sender
	receiver *azservicebus.Receiver
	executor *resilience.Executor
}

func New(opts Options) (*Queue, error) {
	if opts.Queue == "" {
		return nil, fmt.Errorf("servicebus: queue name is required")
	}

	var (
		client *azservicebus.Client
		err    error
	)
	switch {
	case opts.ConnectionString != "":
		client, err = azservicebus.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.FQDN != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("servicebus credential: %w", credErr)
		}
		client, err = azservicebus.NewClient(opts.FQDN, cred, nil)
	default:
		return nil, fmt.Errorf("servicebus: SERVICEBUS_FQDN or SERVICEBUS_CONNECTION_STRING is required")
	}
	if err != nil {
		return nil, fmt.Errorf("servicebus client: %w", err)
	}

	sender, err := client.NewSender(opts.Queue, nil)
	if err != nil {
		return nil, fmt.Errorf("servicebus sender: %w", err)
	}
	receiver, err := client.NewReceiverForQueue(opts.Queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, fmt.Errorf("servicebus receiver: %w", err)
	}

	return &Queue{
		client:   client,
		sender:   sender,
		receiver: receiver,
		executor: opts.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close(ctx context.Context) error {
	return errors.Join(
		q.receiver.Close(ctx),
		q.sender.Close(ctx),
		q.client.Close(ctx),
	)
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	call := func(callCtx context.Context) error {
		msg := &azservicebus.Message{
			Body:        body,
			ContentType: to.Ptr("application/json"),
		}
		if err := q.sender.SendMessage(callCtx, msg, nil); err != nil {
			return fmt.Errorf("servicebus send: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "servicebus.send", call, classifyServiceBusError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporaryIfNeeded("servicebus send", err, classifyServiceBusError)
}

// Receive blocks until at least one message arrives or wait elapses. The SDK
// only bounds the wait through the context.
func (q *Queue) Receive(ctx context.Context, limit int, wait time.Duration) ([]ports.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs, err := q.receiver.ReceiveMessages(waitCtx, limit, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, resilience.WrapTemporaryIfNeeded("servicebus receive", fmt.Errorf("servicebus receive: %w", err), classifyServiceBusError)
	}

	out := make([]ports.Delivery, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, &delivery{receiver: q.receiver, msg: msg})
	}
	return out, nil
}

type delivery struct {
	receiver *azservicebus.Receiver
	msg      *azservicebus.ReceivedMessage
}

func (d *delivery) Body() []byte { return d.msg.Body }

func (d *delivery) Attempt() int { return int(d.msg.DeliveryCount) }

func (d *delivery) EnqueuedAt() time.Time {
	if d.msg.EnqueuedTime == nil {
		return time.Time{}
	}
	return *d.msg.EnqueuedTime
}

func (d *delivery) Complete(ctx context.Context) error {
	if err := d.receiver.CompleteMessage(ctx, d.msg, nil); err != nil {
		return fmt.Errorf("servicebus complete: %w", err)
	}
	return nil
}

func (d *delivery) Abandon(ctx context.Context) error {
	if err := d.receiver.AbandonMessage(ctx, d.msg, nil); err != nil {
		return fmt.Errorf("servicebus abandon: %w", err)
	}
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	err := d.receiver.DeadLetterMessage(ctx, d.msg, &azservicebus.DeadLetterOptions{
		Reason:           to.Ptr("MaxDeliveryAttemptsExceeded"),
		ErrorDescription: to.Ptr(reason),
	})
	if err != nil {
		return fmt.Errorf("servicebus dead-letter: %w", err)
	}
	return nil
}

func classifyServiceBusError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeConnectionLost, azservicebus.CodeTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case azservicebus.CodeLockLost, azservicebus.CodeUnauthorizedAccess, azservicebus.CodeNotFound:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

var _ ports.Delivery = (*delivery)(nil)
