package queue

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// SQS hard limits.
const (
	sqsMaxBatch       = 10
	sqsMaxWaitSeconds = 20
	sqsMaxVisibility  = 12 * time.Hour
)

// sqsThrottleCodes are the API error codes SQS uses when the caller exceeds
// a request or resource limit.
var sqsThrottleCodes = map[string]bool{
	"RequestThrottled":    true,
	"ThrottlingException": true,
	"Throttling":          true,
	"OverLimit":           true,
	"KmsThrottled":        true,
}

// SQSService implements Service on top of an AWS SQS queue. The lease is the
// message's visibility timeout and the token is its receipt handle.
type SQSService struct {
	client   sqsAPI
	queueURL string
	now      func() time.Time
	log      zerolog.Logger
}

// NewSQSService creates an SQSService for the given queue URL.
func NewSQSService(client sqsAPI, queueURL string, log zerolog.Logger) *SQSService {
	return &SQSService{
		client:   client,
		queueURL: queueURL,
		now:      time.Now,
		log:      log,
	}
}

// Receive long-polls the queue once.
func (s *SQSService) Receive(ctx context.Context, req ReceiveRequest) ([]*Message, error) {
	start := s.now()
	out, err := s.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            s.queueURL,
		MaxNumberOfMessages: clampInt32(int64(req.MaxBatch), 1, sqsMaxBatch),
		WaitTimeSeconds:     clampInt32(int64(req.WaitTime/time.Second), 0, sqsMaxWaitSeconds),
		VisibilityTimeout:   visibilitySeconds(req.LeaseDuration),
	})
	if err != nil {
		if isSQSThrottle(err) {
			return nil, overloaded("receive", err)
		}
		return nil, transportErr("receive", err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		receiveCount, err := strconv.Atoi(m.Attributes["ApproximateReceiveCount"])
		if err != nil {
			receiveCount = 1
		}
		msgs = append(msgs, &Message{
			ID:           m.MessageID,
			Body:         []byte(m.Body),
			ReceiveCount: receiveCount,
			Attributes:   m.Attributes,
			Lease:        NewLease(s.queueURL, m.ReceiptHandle, req.LeaseDuration, start),
		})
	}

	if len(msgs) > 0 {
		s.log.Debug().Int("count", len(msgs)).Str("queue_url", s.queueURL).Msg("sqs messages received")
	}
	return msgs, nil
}

// ExtendLease resets the visibility timeout to d from now. SQS keeps the
// receipt handle, so the returned lease carries the same token with a new
// expiry.
func (s *SQSService) ExtendLease(ctx context.Context, lease Lease, d time.Duration) (Lease, error) {
	now := s.now()
	err := s.client.ChangeMessageVisibility(ctx, &sqsChangeVisibilityInput{
		QueueURL:          lease.QueueRef,
		ReceiptHandle:     lease.Token,
		VisibilityTimeout: visibilitySeconds(d),
	})
	if err != nil {
		return lease, transportErr("extend", err)
	}
	return NewLease(lease.QueueRef, lease.Token, d, now), nil
}

// Acknowledge deletes the message.
func (s *SQSService) Acknowledge(ctx context.Context, lease Lease) error {
	err := s.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      lease.QueueRef,
		ReceiptHandle: lease.Token,
	})
	return transportErr("acknowledge", err)
}

func isSQSThrottle(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return sqsThrottleCodes[apiErr.ErrorCode()]
	}
	return false
}

// visibilitySeconds rounds d up to whole seconds within the SQS range.
func visibilitySeconds(d time.Duration) int32 {
	if d > sqsMaxVisibility {
		d = sqsMaxVisibility
	}
	return clampInt32(int64(math.Ceil(d.Seconds())), 0, math.MaxInt32)
}

func clampInt32(v, lo, hi int64) int32 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return int32(v)
}
