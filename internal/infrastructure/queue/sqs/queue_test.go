package sqs

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

type sqsFake struct {
	receiveIn   *awssqs.ReceiveMessageInput
	messages    []sqstypes.Message
	sent        []*awssqs.SendMessageInput
	deleted     []string
	visibility  []*awssqs.ChangeMessageVisibilityInput
	sendErr     error
	receivedErr error
}

func (f *sqsFake) SendMessage(_ context.Context, in *awssqs.SendMessageInput, _ ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &awssqs.SendMessageOutput{}, nil
}

func (f *sqsFake) ReceiveMessage(_ context.Context, in *awssqs.ReceiveMessageInput, _ ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	f.receiveIn = in
	if f.receivedErr != nil {
		return nil, f.receivedErr
	}
	return &awssqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *sqsFake) DeleteMessage(_ context.Context, in *awssqs.DeleteMessageInput, _ ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &awssqs.DeleteMessageOutput{}, nil
}

func (f *sqsFake) ChangeMessageVisibility(_ context.Context, in *awssqs.ChangeMessageVisibilityInput, _ ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error) {
	f.visibility = append(f.visibility, in)
	return &awssqs.ChangeMessageVisibilityOutput{}, nil
}

func TestReceiveClampsBatchAndWait(t *testing.T) {
	fake := &sqsFake{}
	q := NewWithClient(fake, Options{QueueURL: "https://sqs/q"})

	if _, err := q.Receive(context.Background(), 50, time.Minute); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if fake.receiveIn.MaxNumberOfMessages != 10 {
		t.Fatalf("expected batch clamped to 10, got %d", fake.receiveIn.MaxNumberOfMessages)
	}
	if fake.receiveIn.WaitTimeSeconds != 20 {
		t.Fatalf("expected wait clamped to 20s, got %d", fake.receiveIn.WaitTimeSeconds)
	}
	if fake.receiveIn.VisibilityTimeout != 300 {
		t.Fatalf("expected default visibility 300s, got %d", fake.receiveIn.VisibilityTimeout)
	}
}

func TestDeliveryAttemptFromReceiveCount(t *testing.T) {
	fake := &sqsFake{messages: []sqstypes.Message{{
		Body:          aws.String(`{"id":"1"}`),
		ReceiptHandle: aws.String("rh-1"),
		Attributes:    map[string]string{"ApproximateReceiveCount": "4", "SentTimestamp": "1700000000000"},
	}}}
	q := NewWithClient(fake, Options{QueueURL: "https://sqs/q"})

	got, err := q.Receive(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 1 || got[0].Attempt() != 4 {
		t.Fatalf("expected one delivery with attempt 4, got %v", got)
	}
	if !got[0].EnqueuedAt().Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected enqueued time %s", got[0].EnqueuedAt())
	}
}

func TestAbandonResetsVisibility(t *testing.T) {
	fake := &sqsFake{messages: []sqstypes.Message{{Body: aws.String("x"), ReceiptHandle: aws.String("rh-1")}}}
	q := NewWithClient(fake, Options{QueueURL: "https://sqs/q"})
	got, _ := q.Receive(context.Background(), 1, time.Second)

	if err := got[0].Abandon(context.Background()); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if len(fake.visibility) != 1 || fake.visibility[0].VisibilityTimeout != 0 {
		t.Fatalf("expected visibility reset to 0, got %+v", fake.visibility)
	}
}

func TestDeadLetterSendsThenDeletes(t *testing.T) {
	fake := &sqsFake{messages: []sqstypes.Message{{
		Body:          aws.String("poison"),
		ReceiptHandle: aws.String("rh-1"),
		Attributes:    map[string]string{"ApproximateReceiveCount": "11"},
	}}}
	q := NewWithClient(fake, Options{QueueURL: "https://sqs/q", DeadLetterQueueURL: "https://sqs/dlq"})
	got, _ := q.Receive(context.Background(), 1, time.Second)

	if err := got[0].DeadLetter(context.Background(), "max attempts"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if len(fake.sent) != 1 || aws.ToString(fake.sent[0].QueueUrl) != "https://sqs/dlq" {
		t.Fatalf("expected send to dlq, got %+v", fake.sent)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "rh-1" {
		t.Fatalf("expected original deleted, got %v", fake.deleted)
	}
}

func TestDeadLetterWithoutQueueKeepsMessage(t *testing.T) {
	fake := &sqsFake{messages: []sqstypes.Message{{Body: aws.String("poison"), ReceiptHandle: aws.String("rh-1")}}}
	q := NewWithClient(fake, Options{QueueURL: "https://sqs/q"})
	got, _ := q.Receive(context.Background(), 1, time.Second)

	if err := got[0].DeadLetter(context.Background(), "max attempts"); err == nil {
		t.Fatalf("expected error without dead-letter queue")
	}
	if len(fake.deleted) != 0 {
		t.Fatalf("expected message to stay, got deletes %v", fake.deleted)
	}
}

func TestClassifySQSError(t *testing.T) {
	server := &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}
	if !classifySQSError(server).Retryable {
		t.Fatalf("expected server fault to be retryable")
	}
	client := &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}
	if classifySQSError(client).Retryable {
		t.Fatalf("expected client fault to be permanent")
	}
}
