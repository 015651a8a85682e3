package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI abstracts the AWS SQS client for testability.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
	ChangeMessageVisibility(ctx context.Context, input *sqsChangeVisibilityInput) error
	SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error)
}

// sqsReceiveInput mirrors the fields needed for SQS ReceiveMessage.
type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
	VisibilityTimeout   int32
}

// sqsReceiveOutput contains the messages returned by ReceiveMessage.
type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

// sqsReceivedMessage represents a single message received from SQS.
// Attributes merges system attributes with string-typed message attributes.
type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
}

// sqsDeleteInput mirrors the fields needed for SQS DeleteMessage.
type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

// sqsChangeVisibilityInput mirrors the fields needed for SQS ChangeMessageVisibility.
type sqsChangeVisibilityInput struct {
	QueueURL          string
	ReceiptHandle     string
	VisibilityTimeout int32
}

// sqsSendInput mirrors the fields needed for SQS SendMessage. Attributes are
// sent as String message attributes.
type sqsSendInput struct {
	QueueURL     string
	MessageBody  string
	DelaySeconds int32
	Attributes   map[string]string
}

// sqsSendOutput carries the ID SQS assigned to a sent message.
type sqsSendOutput struct {
	MessageID string
}

// awsSQSClient wraps the real AWS SQS SDK client and implements sqsAPI.
type awsSQSClient struct {
	client *sqs.Client
}

// newAWSSQSClient creates an awsSQSClient for the given region. A non-empty
// endpoint overrides the service endpoint (e.g. LocalStack, ElasticMQ).
func newAWSSQSClient(ctx context.Context, region, endpoint string) (*awsSQSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var optFns []func(*sqs.Options)
	if endpoint != "" {
		optFns = append(optFns, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return &awsSQSClient{client: sqs.NewFromConfig(cfg, optFns...)}, nil
}

// ReceiveMessage long-polls the specified SQS queue for messages.
func (c *awsSQSClient) ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    &input.QueueURL,
		MaxNumberOfMessages:         input.MaxNumberOfMessages,
		WaitTimeSeconds:             input.WaitTimeSeconds,
		VisibilityTimeout:           input.VisibilityTimeout,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeName("All")},
	})
	if err != nil {
		return nil, err
	}

	messages := make([]sqsReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.Attributes)+len(m.MessageAttributes))
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		for k, v := range m.MessageAttributes {
			if v.StringValue != nil {
				attrs[k] = *v.StringValue
			}
		}
		messages = append(messages, sqsReceivedMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			Attributes:    attrs,
		})
	}
	return &sqsReceiveOutput{Messages: messages}, nil
}

// DeleteMessage deletes a message from the specified SQS queue.
func (c *awsSQSClient) DeleteMessage(ctx context.Context, input *sqsDeleteInput) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &input.QueueURL,
		ReceiptHandle: &input.ReceiptHandle,
	})
	return err
}

// ChangeMessageVisibility changes the visibility timeout of a message.
func (c *awsSQSClient) ChangeMessageVisibility(ctx context.Context, input *sqsChangeVisibilityInput) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &input.QueueURL,
		ReceiptHandle:     &input.ReceiptHandle,
		VisibilityTimeout: input.VisibilityTimeout,
	})
	return err
}

// SendMessage sends a message to the specified SQS queue.
func (c *awsSQSClient) SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	in := &sqs.SendMessageInput{
		QueueUrl:     &input.QueueURL,
		MessageBody:  &input.MessageBody,
		DelaySeconds: input.DelaySeconds,
	}
	if len(input.Attributes) > 0 {
		in.MessageAttributes = make(map[string]types.MessageAttributeValue, len(input.Attributes))
		for k, v := range input.Attributes {
			in.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := c.client.SendMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	return &sqsSendOutput{MessageID: aws.ToString(out.MessageId)}, nil
}
