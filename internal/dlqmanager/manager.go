// Package dlqmanager implements the dead-letter store: a persistent-session
// subscriber to the DLQ wildcard topic that keeps every dead-lettered job in
// memory, indexed by job id and by vendor, and supports listing and
// operator-triggered retry.
package dlqmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Subscriber is the subset of the broker client the manager needs to
// receive DLQ messages over a long-lived subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, qos byte) (<-chan broker.Message, error)
	IsConnected() bool
}

// Publisher is the subset of the broker client the manager needs to
// republish a retried job to its vendor queue.
type Publisher interface {
	PublishEnvelope(ctx context.Context, topic string, qos byte, retained bool, env domain.Envelope) error
}

// Entry is one stored DLQ record, decorated with the vendor its topic
// carried so listings don't need to re-derive it.
type Entry struct {
	Vendor   domain.Vendor
	Envelope domain.Envelope
}

// Manager subscribes to the DLQ wildcard topic and holds every
// dead-lettered job in memory until it is retried or the process restarts.
type Manager struct {
	subscriber Subscriber
	publisher  Publisher
	topics     broker.Topics
	qos        byte

	reconnectDelay time.Duration

	mu        sync.RWMutex
	byID      map[string]Entry
	byVendor  map[domain.Vendor][]string
	cancel    context.CancelFunc
	runningWG sync.WaitGroup
}

// NewManager builds a DLQ manager. qos defaults to 1 when zero.
func NewManager(subscriber Subscriber, publisher Publisher, topics broker.Topics, qos byte) *Manager {
	if qos == 0 {
		qos = 1
	}
	return &Manager{
		subscriber:     subscriber,
		publisher:      publisher,
		topics:         topics,
		qos:            qos,
		reconnectDelay: 5 * time.Second,
		byID:           make(map[string]Entry),
		byVendor:       make(map[domain.Vendor][]string),
	}
}

// Start begins the background DLQ subscriber. It is idempotent: calling
// Start twice without an intervening Stop is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.runningWG.Add(1)
	go m.run(runCtx)
	slog.Info("dlq manager started", slog.String("topic", m.topics.DLQWildcard()))
}

// Stop cancels the subscriber and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.runningWG.Wait()
	slog.Info("dlq manager stopped")
}

// run is the subscribe-consume-reconnect loop, reconnecting on a fixed 5s
// delay whenever the subscription itself cannot be established (the
// underlying client's own connect/reconnect loop is out of scope here; this
// only retries the Subscribe call).
func (m *Manager) run(ctx context.Context) {
	defer m.runningWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !m.subscriber.IsConnected() {
			select {
			case <-time.After(m.reconnectDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		msgs, err := m.subscriber.Subscribe(ctx, m.topics.DLQWildcard(), m.qos)
		if err != nil {
			slog.Warn("dlq subscribe failed, retrying", slog.Any("error", err), slog.Duration("delay", m.reconnectDelay))
			select {
			case <-time.After(m.reconnectDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for msg := range msgs {
			m.ingest(msg)
		}

		if ctx.Err() != nil {
			return
		}
		slog.Warn("dlq subscription channel closed, reconnecting", slog.Duration("delay", m.reconnectDelay))
		select {
		case <-time.After(m.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) ingest(msg broker.Message) {
	vendor := broker.VendorFromQueueTopic(msg.Topic)
	jobID := msg.Envelope.JobID
	if jobID == "" {
		slog.Error("dropping dlq message with empty job_id", slog.String("topic", msg.Topic))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[jobID]; !exists {
		m.byVendor[vendor] = append(m.byVendor[vendor], jobID)
	}
	m.byID[jobID] = Entry{Vendor: vendor, Envelope: msg.Envelope}
	slog.Info("dlq message stored", slog.String("job_id", jobID), slog.String("vendor", string(vendor)))
}

// ListAll returns every stored DLQ entry.
func (m *Manager) ListAll() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out
}

// ListByVendor returns the DLQ entries for a single vendor.
func (m *Manager) ListByVendor(vendor domain.Vendor) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byVendor[vendor]
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Get returns a single stored entry by job id.
func (m *Manager) Get(jobID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[jobID]
	return e, ok
}

// Retry resets the stored envelope's retry metadata and republishes it to
// the owning vendor's work queue, then evicts it from the DLQ store. It
// reports domain.ErrNotFound if jobID isn't held.
func (m *Manager) Retry(ctx context.Context, jobID string) error {
	m.mu.RLock()
	entry, ok := m.byID[jobID]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	reset := entry.Envelope.ResetForDLQRetry()
	topic := m.topics.QueueTopic(entry.Vendor)
	if err := m.publisher.PublishEnvelope(ctx, topic, m.qos, false, reset); err != nil {
		return fmt.Errorf("dlq retry publish: %w", err)
	}

	m.mu.Lock()
	delete(m.byID, jobID)
	ids := m.byVendor[entry.Vendor]
	for i, id := range ids {
		if id == jobID {
			m.byVendor[entry.Vendor] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	slog.Info("dlq message requeued", slog.String("job_id", jobID), slog.String("vendor", string(entry.Vendor)), slog.String("topic", topic))
	return nil
}

// Stats is the observability snapshot exposed over the DLQ endpoints.
type Stats struct {
	Total    int
	ByVendor map[domain.Vendor]int
}

// Snapshot reports the current DLQ population.
func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byVendor := make(map[domain.Vendor]int, len(m.byVendor))
	for v, ids := range m.byVendor {
		byVendor[v] = len(ids)
	}
	return Stats{Total: len(m.byID), ByVendor: byVendor}
}
