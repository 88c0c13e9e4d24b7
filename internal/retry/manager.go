// Package retry implements the multi-tier retry manager: given a
// classified failure and the current envelope's retry state, decide among
// IMMEDIATE_RETRY, REQUEUE, and DLQ, and perform the chosen REQUEUE/DLQ
// publish. DLQ retry is operator/API-triggered only, never automatic.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Action is the decision the manager reaches for a classified failure.
type Action string

const (
	ActionImmediateRetry Action = "IMMEDIATE_RETRY"
	ActionRequeue        Action = "REQUEUE"
	ActionDLQ            Action = "DLQ"
)

// Publisher is the subset of the broker client the retry manager needs.
type Publisher interface {
	PublishEnvelope(ctx context.Context, topic string, qos byte, retained bool, env domain.Envelope) error
}

// Manager decides and performs retry actions.
type Manager struct {
	publisher Publisher
	topics    broker.Topics
	qos       byte
}

// NewManager builds a retry manager publishing through publisher.
func NewManager(publisher Publisher, topics broker.Topics, qos byte) *Manager {
	if qos == 0 {
		qos = 1
	}
	return &Manager{publisher: publisher, topics: topics, qos: qos}
}

// Decide picks among IMMEDIATE_RETRY, REQUEUE, and DLQ. alreadyImmediate
// reflects whether an immediate, in-place retry has already been attempted
// for this handler invocation.
func (m *Manager) Decide(errType domain.ErrorType, env domain.Envelope, alreadyImmediate bool) Action {
	if errType == domain.ErrorTypeTransient && !alreadyImmediate {
		return ActionImmediateRetry
	}
	if errType == domain.ErrorTypePermanent || env.ExhaustedRetries() {
		return ActionDLQ
	}
	return ActionRequeue
}

// BackoffDelay returns 2^retryCountAfterIncrement seconds, fixed with no
// jitter.
func BackoffDelay(retryCountAfterIncrement int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCountAfterIncrement))) * time.Second
}

// Requeue appends detail to the envelope's history, increments
// retry_count, sleeps the backoff delay (honouring cancellation), and
// republishes to the vendor's work queue.
func (m *Manager) Requeue(ctx context.Context, vendor domain.Vendor, env domain.Envelope, detail domain.ErrorDetail) error {
	next := env.WithAppendedError(detail).Requeued()
	delay := BackoffDelay(next.RetryCount)

	slog.Info("requeueing job with backoff",
		slog.String("job_id", next.JobID),
		slog.String("vendor", string(vendor)),
		slog.Int("retry_count", next.RetryCount),
		slog.Duration("delay", delay))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	topic := m.topics.QueueTopic(vendor)
	if err := m.publisher.PublishEnvelope(ctx, topic, m.qos, false, next); err != nil {
		return fmt.Errorf("requeue publish: %w", err)
	}
	return nil
}

// SendToDLQ appends detail to the envelope's history and publishes it to
// the vendor's dead-letter topic, without incrementing retry_count
// further.
func (m *Manager) SendToDLQ(ctx context.Context, vendor domain.Vendor, env domain.Envelope, detail domain.ErrorDetail) error {
	next := env.WithAppendedError(detail)

	slog.Info("moving job to DLQ",
		slog.String("job_id", next.JobID),
		slog.String("vendor", string(vendor)),
		slog.String("error_code", detail.ErrorCode),
		slog.Int("retry_count", next.RetryCount))

	topic := m.topics.DLQTopic(vendor)
	if err := m.publisher.PublishEnvelope(ctx, topic, m.qos, false, next); err != nil {
		return fmt.Errorf("DLQ publish: %w", err)
	}
	return nil
}
