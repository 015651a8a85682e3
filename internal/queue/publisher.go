package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/sungwon/lease-worker/internal/metrics"
)

// Publisher puts a message on the queue and returns its provider ID.
type Publisher interface {
	Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error)
}

// SQSPublisher sends messages with SendMessage. Attributes become string
// message attributes.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates an SQSPublisher.
func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish sends one message.
func (p *SQSPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	out, err := p.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    p.queueURL,
		MessageBody: string(body),
		Attributes:  attrs,
	})
	if err != nil {
		return "", transportErr("publish", err)
	}
	metrics.MessagesPublishedTotal.WithLabelValues("sqs").Inc()
	return out.MessageID, nil
}

// RedisPublisher appends entries to the queue's stream. The body goes into
// the data field and each attribute into a field of its own.
type RedisPublisher struct {
	client redis.UniversalClient
	stream string
}

// NewRedisPublisher creates a RedisPublisher for the named queue.
func NewRedisPublisher(client redis.UniversalClient, queueName string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: streamKey(queueName)}
}

// Publish adds one entry with XADD.
func (p *RedisPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	values := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		values[k] = v
	}
	values["data"] = string(body)

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", transportErr("publish", fmt.Errorf("xadd to %s: %w", p.stream, err))
	}
	metrics.MessagesPublishedTotal.WithLabelValues("redis").Inc()
	return id, nil
}

// NATSPublisher publishes to a JetStream subject. Attributes become headers.
type NATSPublisher struct {
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher creates a NATSPublisher.
func NewNATSPublisher(js nats.JetStreamContext, subject string) *NATSPublisher {
	return &NATSPublisher{js: js, subject: subject}
}

// Publish stores one message and returns its stream sequence.
func (p *NATSPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	msg := nats.NewMsg(p.subject)
	msg.Data = body
	for k, v := range attrs {
		msg.Header.Set(k, v)
	}

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return "", transportErr("publish", err)
	}
	metrics.MessagesPublishedTotal.WithLabelValues("nats").Inc()
	return strconv.FormatUint(ack.Sequence, 10), nil
}
