// Package broker wraps an MQTT client (github.com/eclipse/paho.mqtt.golang)
// with a connect/publish/subscribe/LWT/ping contract.
package broker

import (
	"fmt"
	"strings"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Topics builds the exact topic strings this system uses, all rooted under
// a configurable prefix (default "bots").
type Topics struct {
	Prefix string
}

// QueueTopic returns the per-vendor work queue topic, e.g. bots/queue/hdi.
func (t Topics) QueueTopic(v domain.Vendor) string {
	return fmt.Sprintf("%s/queue/%s", t.Prefix, v)
}

// QueueWildcard returns the single-level wildcard over all vendor queues.
func (t Topics) QueueWildcard() string {
	return fmt.Sprintf("%s/queue/+", t.Prefix)
}

// SharedQueueTopic returns the shared-subscription form of topic for group,
// e.g. $share/workers/bots/queue/+.
func (t Topics) SharedQueueTopic(group, topic string) string {
	return fmt.Sprintf("$share/%s/%s", group, topic)
}

// DLQTopic returns the per-vendor dead-letter topic, e.g. bots/dlq/hdi.
func (t Topics) DLQTopic(v domain.Vendor) string {
	return fmt.Sprintf("%s/dlq/%s", t.Prefix, v)
}

// DLQWildcard returns the multi-level wildcard over all DLQ topics.
func (t Topics) DLQWildcard() string {
	return fmt.Sprintf("%s/dlq/#", t.Prefix)
}

// StatusTopic returns the retained client-status/LWT topic.
func (t Topics) StatusTopic() string {
	return fmt.Sprintf("%s/clients/status", t.Prefix)
}

// HeartbeatTopic returns the QoS-0 ping topic used by the health cache.
func (t Topics) HeartbeatTopic() string {
	return fmt.Sprintf("%s/heartbeat", t.Prefix)
}

// VendorFromQueueTopic extracts the vendor token from a queue or DLQ
// topic's trailing segment.
func VendorFromQueueTopic(topic string) domain.Vendor {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return domain.CanonicalVendor(parts[len(parts)-1])
}
