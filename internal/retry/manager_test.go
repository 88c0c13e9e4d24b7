package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []struct {
		Topic string
		Env   domain.Envelope
	}
}

func (f *fakePublisher) PublishEnvelope(_ context.Context, topic string, _ byte, _ bool, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, struct {
		Topic string
		Env   domain.Envelope
	}{Topic: topic, Env: env})
	return nil
}

func TestDecide_TransientFirstAttemptIsImmediate(t *testing.T) {
	m := NewManager(&fakePublisher{}, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{}, 3)
	action := m.Decide(domain.ErrorTypeTransient, env, false)
	assert.Equal(t, ActionImmediateRetry, action)
}

func TestDecide_TransientSecondAttemptRequeues(t *testing.T) {
	m := NewManager(&fakePublisher{}, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{}, 3)
	action := m.Decide(domain.ErrorTypeTransient, env, true)
	assert.Equal(t, ActionRequeue, action)
}

func TestDecide_PermanentAlwaysDLQ(t *testing.T) {
	m := NewManager(&fakePublisher{}, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{}, 3)
	assert.Equal(t, ActionDLQ, m.Decide(domain.ErrorTypePermanent, env, false))
}

func TestDecide_ExhaustedRetriesDLQ(t *testing.T) {
	m := NewManager(&fakePublisher{}, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{}, 2)
	env.RetryCount = 2
	assert.Equal(t, ActionDLQ, m.Decide(domain.ErrorTypeRetriable, env, false))
}

func TestBackoffDelay_IsTwoToTheN(t *testing.T) {
	assert.Equal(t, 2*time.Second, BackoffDelay(1))
	assert.Equal(t, 4*time.Second, BackoffDelay(2))
	assert.Equal(t, 8*time.Second, BackoffDelay(3))
}

func TestRequeue_AppendsHistoryAndIncrementsRetryCount(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(pub, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{"a": "b"}, 3)
	detail := domain.ErrorDetail{ErrorType: domain.ErrorTypeRetriable, ErrorCode: "RATE_LIMIT_ERROR", Message: "slow down"}

	// Avoid the real backoff sleep dominating test time by pre-cancelling
	// after publish is guaranteed to have been scheduled: instead we just
	// accept the 2s wait for retry_count=1, which is deterministic and
	// small enough for a unit test budget.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Requeue(ctx, domain.VendorHDI, env, detail)
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "bots/queue/hdi", pub.published[0].Topic)
	assert.Equal(t, 1, pub.published[0].Env.RetryCount)
	require.Len(t, pub.published[0].Env.ErrorHistory, 1)
	assert.Equal(t, "RATE_LIMIT_ERROR", pub.published[0].Env.ErrorHistory[0].ErrorCode)
}

func TestSendToDLQ_DoesNotIncrementRetryCount(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(pub, broker.Topics{Prefix: "bots"}, 1)
	env := domain.NewEnvelope("job-1", map[string]any{}, 3)
	env.RetryCount = 3
	detail := domain.ErrorDetail{ErrorType: domain.ErrorTypePermanent, ErrorCode: "AUTH_001"}

	err := m.SendToDLQ(context.Background(), domain.VendorSURA, env, detail)
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "bots/dlq/sura", pub.published[0].Topic)
	assert.Equal(t, 3, pub.published[0].Env.RetryCount)
}
