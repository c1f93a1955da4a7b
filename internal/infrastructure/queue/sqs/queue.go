package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

const (
	maxBatch       = 10
	maxWaitSeconds = 20
)

// API is the subset of the SQS client the queue uses.
type API interface {
	SendMessage(ctx context.Context, in *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
}

type Options struct {
	QueueURL           string
	DeadLetterQueueURL string
	Region             string
	VisibilityTimeout  time.Duration
	ResilienceExecutor *resilience.Executor
}

// Queue maps peek-lock onto SQS visibility timeouts: an abandoned message is
// made visible again immediately.
type Queue struct {
	client            API
	queueURL          string
	deadURL           string
	visibilityTimeout int32
	executor          *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Queue, error) {
	if opts.QueueURL == "" {
		return nil, fmt.Errorf("sqs: SQS_QUEUE_URL is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(awssqs.NewFromConfig(awsCfg), opts), nil
}

func NewWithClient(client API, opts Options) *Queue {
	visibility := int32(opts.VisibilityTimeout / time.Second)
	if visibility <= 0 {
		visibility = 300
	}
	return &Queue{
		client:            client,
		queueURL:          opts.QueueURL,
		deadURL:           opts.DeadLetterQueueURL,
		visibilityTimeout: visibility,
		executor:          opts.ResilienceExecutor,
	}
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	call := func(callCtx context.Context) error {
		_, err := q.client.SendMessage(callCtx, &awssqs.SendMessageInput{
			QueueUrl:    aws.String(q.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			return fmt.Errorf("sqs send: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "sqs.send", call, classifySQSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporaryIfNeeded("sqs send", err, classifySQSError)
}

func (q *Queue) Receive(ctx context.Context, limit int, wait time.Duration) ([]ports.Delivery, error) {
	limit = min(max(limit, 1), maxBatch)
	waitSeconds := min(int32(wait/time.Second), maxWaitSeconds)

	resp, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     waitSeconds,
		VisibilityTimeout:   q.visibilityTimeout,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("sqs receive", fmt.Errorf("sqs receive: %w", err), classifySQSError)
	}

	out := make([]ports.Delivery, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, &delivery{queue: q, msg: m})
	}
	return out, nil
}

type delivery struct {
	queue *Queue
	msg   sqstypes.Message
}

func (d *delivery) Body() []byte { return []byte(aws.ToString(d.msg.Body)) }

func (d *delivery) Attempt() int {
	n, err := strconv.Atoi(d.msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (d *delivery) EnqueuedAt() time.Time {
	ms, err := strconv.ParseInt(d.msg.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (d *delivery) Complete(ctx context.Context) error {
	_, err := d.queue.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.queue.queueURL),
		ReceiptHandle: d.msg.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

func (d *delivery) Abandon(ctx context.Context) error {
	_, err := d.queue.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(d.queue.queueURL),
		ReceiptHandle:     d.msg.ReceiptHandle,
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("sqs release: %w", err)
	}
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	if d.queue.deadURL == "" {
		return errors.New("sqs dead-letter: SQS_DEAD_LETTER_QUEUE_URL is not configured")
	}
	_, err := d.queue.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(d.queue.deadURL),
		MessageBody: d.msg.Body,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"DeadLetterReason": {DataType: aws.String("String"), StringValue: aws.String(reason)},
			"Attempts":         {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(d.Attempt()))},
		},
	})
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("sqs dead-letter", fmt.Errorf("sqs dead-letter send: %w", err), classifySQSError)
	}
	return d.Complete(ctx)
}

func classifySQSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorFault() {
		case smithy.FaultServer:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case smithy.FaultClient:
			if apiErr.ErrorCode() == "ThrottlingException" || apiErr.ErrorCode() == "RequestThrottled" {
				return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
			}
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
