package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/jobs"

// mockSQSClient implements sqsAPI for testing.
type mockSQSClient struct {
	mu            sync.Mutex
	receiveOut    *sqsReceiveOutput
	receiveErr    error
	deleteErr     error
	visibilityErr error
	sendErr       error

	receiveCalls    []*sqsReceiveInput
	deleteCalls     []*sqsDeleteInput
	visibilityCalls []*sqsChangeVisibilityInput
	sendCalls       []*sqsSendInput
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveCalls = append(m.receiveCalls, input)
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	if m.receiveOut == nil {
		return &sqsReceiveOutput{}, nil
	}
	return m.receiveOut, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, input *sqsDeleteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, input)
	return m.deleteErr
}

func (m *mockSQSClient) ChangeMessageVisibility(_ context.Context, input *sqsChangeVisibilityInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visibilityCalls = append(m.visibilityCalls, input)
	return m.visibilityErr
}

func (m *mockSQSClient) SendMessage(_ context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, input)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sqsSendOutput{MessageID: fmt.Sprintf("sent-%d", len(m.sendCalls))}, nil
}

func newTestSQSService(client sqsAPI, now time.Time) *SQSService {
	s := NewSQSService(client, testQueueURL, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestSQSService_Receive(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	client := &mockSQSClient{receiveOut: &sqsReceiveOutput{Messages: []sqsReceivedMessage{
		{MessageID: "m-1", ReceiptHandle: "rh-1", Body: `{"n":1}`, Attributes: map[string]string{"ApproximateReceiveCount": "3", "tenant": "acme"}},
		{MessageID: "m-2", ReceiptHandle: "rh-2", Body: "plain"},
	}}}
	s := newTestSQSService(client, now)

	msgs, err := s.Receive(context.Background(), ReceiveRequest{
		WaitTime:      20 * time.Second,
		MaxBatch:      10,
		LeaseDuration: 90 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Len(t, client.receiveCalls, 1)
	in := client.receiveCalls[0]
	assert.Equal(t, testQueueURL, in.QueueURL)
	assert.Equal(t, int32(10), in.MaxNumberOfMessages)
	assert.Equal(t, int32(20), in.WaitTimeSeconds)
	assert.Equal(t, int32(90), in.VisibilityTimeout)

	first := msgs[0]
	assert.Equal(t, "m-1", first.ID)
	assert.Equal(t, []byte(`{"n":1}`), first.Body)
	assert.Equal(t, 3, first.ReceiveCount)
	assert.Equal(t, "acme", first.Attribute("tenant"))
	assert.Equal(t, Lease{QueueRef: testQueueURL, Token: "rh-1", Duration: 90 * time.Second, Expiry: now.Add(90 * time.Second)}, first.Lease)

	assert.Equal(t, 1, msgs[1].ReceiveCount, "missing receive count defaults to a first delivery")
	assert.Equal(t, "", msgs[1].Attribute("tenant"))
}

func TestSQSService_ReceiveClampsToProviderLimits(t *testing.T) {
	tests := []struct {
		name           string
		req            ReceiveRequest
		wantBatch      int32
		wantWait       int32
		wantVisibility int32
	}{
		{"oversized", ReceiveRequest{WaitTime: time.Minute, MaxBatch: 50, LeaseDuration: 24 * time.Hour}, 10, 20, 43200},
		{"zero", ReceiveRequest{}, 1, 0, 0},
		{"fractional lease rounds up", ReceiveRequest{WaitTime: 5 * time.Second, MaxBatch: 3, LeaseDuration: 1500 * time.Millisecond}, 3, 5, 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSQSClient{}
			s := newTestSQSService(client, time.Now())

			msgs, err := s.Receive(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Empty(t, msgs)

			in := client.receiveCalls[0]
			assert.Equal(t, tt.wantBatch, in.MaxNumberOfMessages)
			assert.Equal(t, tt.wantWait, in.WaitTimeSeconds)
			assert.Equal(t, tt.wantVisibility, in.VisibilityTimeout)
		})
	}
}

func TestSQSService_ReceiveThrottled(t *testing.T) {
	for _, code := range []string{"RequestThrottled", "ThrottlingException", "OverLimit", "KmsThrottled"} {
		code := code
		t.Run(code, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: code, Message: "slow down"}
			s := newTestSQSService(&mockSQSClient{receiveErr: apiErr}, time.Now())

			_, err := s.Receive(context.Background(), ReceiveRequest{MaxBatch: 1})
			require.Error(t, err)
			assert.True(t, IsOverloaded(err))
			assert.False(t, IsTransport(err))
			assert.ErrorIs(t, err, apiErr)
		})
	}
}

func TestSQSService_ReceiveTransportError(t *testing.T) {
	for _, cause := range []error{
		errors.New("dial tcp: connection refused"),
		&smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue"},
	} {
		s := newTestSQSService(&mockSQSClient{receiveErr: cause}, time.Now())

		_, err := s.Receive(context.Background(), ReceiveRequest{MaxBatch: 1})
		require.Error(t, err)
		assert.True(t, IsTransport(err))
		assert.False(t, IsOverloaded(err))
		assert.ErrorIs(t, err, cause)
	}
}

func TestSQSService_ExtendLease(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 30, 0, time.UTC)
	client := &mockSQSClient{}
	s := newTestSQSService(client, now)
	lease := NewLease(testQueueURL, "rh-1", time.Minute, now.Add(-30*time.Second))

	next, err := s.ExtendLease(context.Background(), lease, 2*time.Minute)
	require.NoError(t, err)

	require.Len(t, client.visibilityCalls, 1)
	assert.Equal(t, &sqsChangeVisibilityInput{QueueURL: testQueueURL, ReceiptHandle: "rh-1", VisibilityTimeout: 120}, client.visibilityCalls[0])
	assert.Equal(t, "rh-1", next.Token)
	assert.Equal(t, 2*time.Minute, next.Duration)
	assert.Equal(t, now.Add(2*time.Minute), next.Expiry)
}

func TestSQSService_ExtendLeaseFailure(t *testing.T) {
	cause := &smithy.GenericAPIError{Code: "ReceiptHandleIsInvalid"}
	s := newTestSQSService(&mockSQSClient{visibilityErr: cause}, time.Now())
	lease := NewLease(testQueueURL, "rh-1", time.Minute, time.Now())

	got, err := s.ExtendLease(context.Background(), lease, time.Minute)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, lease, got)
}

func TestSQSService_Acknowledge(t *testing.T) {
	client := &mockSQSClient{}
	s := newTestSQSService(client, time.Now())

	require.NoError(t, s.Acknowledge(context.Background(), NewLease(testQueueURL, "rh-9", time.Minute, time.Now())))
	require.Len(t, client.deleteCalls, 1)
	assert.Equal(t, &sqsDeleteInput{QueueURL: testQueueURL, ReceiptHandle: "rh-9"}, client.deleteCalls[0])

	client.deleteErr = errors.New("timeout")
	err := s.Acknowledge(context.Background(), NewLease(testQueueURL, "rh-9", time.Minute, time.Now()))
	assert.True(t, IsTransport(err))
	assert.EqualError(t, err, "queue acknowledge: timeout")
}

func TestLease(t *testing.T) {
	granted := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l := NewLease("q", "t", time.Minute, granted)

	assert.Equal(t, time.Minute, l.Remaining(granted))
	assert.Equal(t, 15*time.Second, l.Remaining(granted.Add(45*time.Second)))
	assert.Equal(t, time.Duration(0), l.Remaining(granted.Add(2*time.Minute)))
	assert.False(t, l.Expired(granted.Add(59*time.Second)))
	assert.True(t, l.Expired(granted.Add(time.Minute)))
}

func TestErrors(t *testing.T) {
	err := overloaded("receive", errors.New("BUSY"))
	assert.True(t, IsOverloaded(err))
	assert.EqualError(t, err, "queue receive: queue: provider overloaded: BUSY")

	assert.Nil(t, transportErr("extend", nil))
	assert.False(t, IsTransport(errors.New("plain")))
}

func TestSQSPublisher_Publish(t *testing.T) {
	client := &mockSQSClient{}
	p := NewSQSPublisher(client, testQueueURL)

	id, err := p.Publish(context.Background(), []byte("hello"), map[string]string{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
	assert.Equal(t, &sqsSendInput{QueueURL: testQueueURL, MessageBody: "hello", Attributes: map[string]string{"tenant": "acme"}}, client.sendCalls[0])

	client.sendErr = errors.New("access denied")
	_, err = p.Publish(context.Background(), []byte("hello"), nil)
	assert.True(t, IsTransport(err))
}
