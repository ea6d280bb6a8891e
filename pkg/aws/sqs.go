package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the part of *sqs.Client SQSConsumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConsumer receives and sends messages on one queue.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
}

func NewSQSConsumer(cfg sdkaws.Config, queueURL string) *SQSConsumer {
	return NewSQSConsumerFromAPI(sqs.NewFromConfig(cfg), queueURL)
}

func NewSQSConsumerFromAPI(client SQSAPI, queueURL string) *SQSConsumer {
	return &SQSConsumer{client: client, queueURL: queueURL}
}

// MessageHandler processes one message body. A returned error leaves the
// message on the queue to be redelivered after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// StartPolling long-polls the queue until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	zap.L().Info("Starting SQS polling", zap.String("queue_url", c.queueURL))

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("SQS polling stopped")
			return ctx.Err()
		default:
			if err := c.pollOnce(ctx, handler); err != nil && ctx.Err() == nil {
				zap.L().Error("Error polling SQS", zap.Error(err))
			}
		}
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20,
		// ingestion jobs run long; the message reappears only if the worker dies
		VisibilityTimeout: 900,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		if err := handler(ctx, *msg.Body); err != nil {
			zap.L().Error("Failed to process message", zap.Error(err))
			continue
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			zap.L().Error("Failed to delete message", zap.Error(err))
		}
	}
	return nil
}

// SendMessage sends a single message to the queue
func (c *SQSConsumer) SendMessage(ctx context.Context, body string) error {
	_, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(c.queueURL),
		MessageBody: sdkaws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// GetQueueURL retrieves the URL for a queue name
func GetQueueURL(ctx context.Context, cfg sdkaws.Config, queueName string) (string, error) {
	client := sqs.NewFromConfig(cfg)
	result, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: sdkaws.String(queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL: %w", err)
	}
	return sdkaws.ToString(result.QueueUrl), nil
}
