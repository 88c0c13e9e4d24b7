package health

import (
	"context"
	"strconv"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// RawSubscriber is the subset of *broker.Client a $SYS-topic prober needs: a
// plain-payload subscribe, bypassing the envelope JSON decoding Subscribe
// performs.
type RawSubscriber interface {
	SubscribeRaw(ctx context.Context, topic string, qos byte) (<-chan []byte, error)
}

// SysQueueProber implements QueueDepthProber against the broker's `$SYS`
// stats tree: a best-effort retained-message subscription to
// $SYS/broker/messages/stored with a short grace timeout, reporting ok=false
// on timeout or a non-numeric payload. Standard MQTT brokers expose this
// count broker-wide, not per-vendor, so every vendor reports the same
// figure; there is no `$SYS` topic that breaks it down per work queue.
type SysQueueProber struct {
	sub   RawSubscriber
	topic string
	grace time.Duration
}

// NewSysQueueProber builds a prober reading $SYS/broker/messages/stored
// with a grace timeout (default 2s).
func NewSysQueueProber(sub RawSubscriber, grace time.Duration) *SysQueueProber {
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &SysQueueProber{sub: sub, topic: "$SYS/broker/messages/stored", grace: grace}
}

// QueueDepth ignores vendor: the underlying `$SYS` counter is broker-wide.
func (p *SysQueueProber) QueueDepth(ctx context.Context, _ domain.Vendor) (depth int, ok bool) {
	subCtx, cancel := context.WithTimeout(ctx, p.grace)
	defer cancel()

	msgs, err := p.sub.SubscribeRaw(subCtx, p.topic, 0)
	if err != nil {
		return 0, false
	}

	select {
	case payload, open := <-msgs:
		if !open {
			return 0, false
		}
		n, err := strconv.Atoi(string(payload))
		if err != nil {
			return 0, false
		}
		return n, true
	case <-subCtx.Done():
		return 0, false
	}
}
