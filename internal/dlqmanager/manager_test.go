package dlqmanager

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

type fakeSubscriber struct {
	mu        sync.Mutex
	connected bool
	ch        chan broker.Message
	err       error
}

func (f *fakeSubscriber) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSubscriber) Subscribe(context.Context, string, byte) (<-chan broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

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

func newTestManager() (*Manager, *fakeSubscriber, *fakePublisher) {
	sub := &fakeSubscriber{connected: true, ch: make(chan broker.Message, 8)}
	pub := &fakePublisher{}
	m := NewManager(sub, pub, broker.Topics{Prefix: "bots"}, 1)
	return m, sub, pub
}

func TestIngestAndListAll(t *testing.T) {
	m, sub, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	env := domain.NewEnvelope("job-1", map[string]any{"x": 1}, 3)
	sub.ch <- broker.Message{Topic: "bots/dlq/hdi", Envelope: env}

	require.Eventually(t, func() bool {
		return len(m.ListAll()) == 1
	}, time.Second, 10*time.Millisecond)

	entries := m.ListByVendor(domain.VendorHDI)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].Envelope.JobID)
}

func TestRetry_RepublishesAndEvicts(t *testing.T) {
	m, sub, pub := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	env := domain.NewEnvelope("job-2", map[string]any{}, 3)
	env.RetryCount = 3
	sub.ch <- broker.Message{Topic: "bots/dlq/axa", Envelope: env}

	require.Eventually(t, func() bool {
		_, ok := m.Get("job-2")
		return ok
	}, time.Second, 10*time.Millisecond)

	err := m.Retry(context.Background(), "job-2")
	require.NoError(t, err)

	pub.mu.Lock()
	require.Len(t, pub.published, 1)
	assert.Equal(t, "bots/queue/axa", pub.published[0].Topic)
	assert.Equal(t, 0, pub.published[0].Env.RetryCount)
	pub.mu.Unlock()

	_, ok := m.Get("job-2")
	assert.False(t, ok)
}

func TestRetry_NotFoundReturnsErrNotFound(t *testing.T) {
	m, _, _ := newTestManager()
	err := m.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshot_CountsByVendor(t *testing.T) {
	m, sub, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	sub.ch <- broker.Message{Topic: "bots/dlq/hdi", Envelope: domain.NewEnvelope("a", nil, 3)}
	sub.ch <- broker.Message{Topic: "bots/dlq/hdi", Envelope: domain.NewEnvelope("b", nil, 3)}
	sub.ch <- broker.Message{Topic: "bots/dlq/sura", Envelope: domain.NewEnvelope("c", nil, 3)}

	require.Eventually(t, func() bool {
		return m.Snapshot().Total == 3
	}, time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.ByVendor[domain.VendorHDI])
	assert.Equal(t, 1, snap.ByVendor[domain.VendorSURA])
}
