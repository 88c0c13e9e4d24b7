package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

type fakeRawSubscriber struct {
	payload []byte
	err     error
	never   bool
}

func (f *fakeRawSubscriber) SubscribeRaw(ctx context.Context, _ string, _ byte) (<-chan []byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan []byte, 1)
	if !f.never {
		out <- f.payload
	}
	return out, nil
}

func TestSysQueueProber_ParsesNumericPayload(t *testing.T) {
	prober := NewSysQueueProber(&fakeRawSubscriber{payload: []byte("42")}, time.Second)
	depth, ok := prober.QueueDepth(context.Background(), domain.VendorHDI)
	assert.True(t, ok)
	assert.Equal(t, 42, depth)
}

func TestSysQueueProber_SubscribeErrorReturnsNotOK(t *testing.T) {
	prober := NewSysQueueProber(&fakeRawSubscriber{err: assertError{}}, time.Second)
	_, ok := prober.QueueDepth(context.Background(), domain.VendorHDI)
	assert.False(t, ok)
}

func TestSysQueueProber_NonNumericPayloadReturnsNotOK(t *testing.T) {
	prober := NewSysQueueProber(&fakeRawSubscriber{payload: []byte("not-a-number")}, time.Second)
	_, ok := prober.QueueDepth(context.Background(), domain.VendorHDI)
	assert.False(t, ok)
}

func TestSysQueueProber_TimeoutReturnsNotOK(t *testing.T) {
	prober := NewSysQueueProber(&fakeRawSubscriber{never: true}, 10*time.Millisecond)
	_, ok := prober.QueueDepth(context.Background(), domain.VendorHDI)
	assert.False(t, ok)
}

type assertError struct{}

func (assertError) Error() string { return "subscribe failed" }
