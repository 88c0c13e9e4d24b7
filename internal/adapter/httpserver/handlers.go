package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/config"
	"github.com/juanqu261/bots-brokerwiz/internal/dlqmanager"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
	"github.com/juanqu261/bots-brokerwiz/internal/health"
	"github.com/juanqu261/bots-brokerwiz/internal/vendorconfig"
)

// Publisher is the subset of the broker client the ingress layer needs.
type Publisher interface {
	PublishEnvelope(ctx context.Context, topic string, qos byte, retained bool, env domain.Envelope) error
	IsConnected() bool
}

// Server aggregates the dependencies every handler needs: a broker
// publisher for ingress, the DLQ manager and vendor config manager for
// the operations endpoints, and the metrics aggregator for /metrics.
type Server struct {
	Cfg       config.Config
	Publisher Publisher
	Topics    broker.Topics
	QoS       byte
	DLQ       *dlqmanager.Manager
	Vendors   *vendorconfig.Manager
	Metrics   *health.Aggregator
	Version   string
}

// NewServer constructs the ingress/ops HTTP server.
func NewServer(cfg config.Config, publisher Publisher, topics broker.Topics, qos byte, dlq *dlqmanager.Manager, vendors *vendorconfig.Manager, metrics *health.Aggregator, version string) *Server {
	return &Server{
		Cfg:       cfg,
		Publisher: publisher,
		Topics:    topics,
		QoS:       qos,
		DLQ:       dlq,
		Vendors:   vendors,
		Metrics:   metrics,
		Version:   version,
	}
}

type jobResponseData struct {
	JobID    string `json:"job_id"`
	Vendor   string `json:"vendor"`
	Status   string `json:"status"`
	QueuedAt string `json:"queued_at"`
}

// CotizarHandler implements POST /api/{vendor}/cotizar: validate the
// vendor, decode the payload, check it against the vendor's required-key
// schema, build a fresh envelope, and publish it to the vendor's work
// queue.
func (s *Server) CotizarHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendor := domain.CanonicalVendor(chi.URLParam(r, "vendor"))
		if !vendor.Known() {
			writeError(w, domain.ErrInvalidVendor, string(vendor))
			return
		}
		if s.Vendors != nil && !s.Vendors.IsEnabled(vendor) {
			writeError(w, domain.ErrVendorDisabled, string(vendor))
			return
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, domain.ErrSchemaInvalid, err.Error())
			return
		}
		if missing := domain.MissingPayloadKey(vendor, payload); missing != "" {
			writeError(w, domain.ErrSchemaInvalid, "missing required key: "+missing)
			return
		}

		env := domain.NewEnvelope(uuid.NewString(), payload, domain.DefaultMaxRetries)
		topic := s.Topics.QueueTopic(vendor)
		if err := s.Publisher.PublishEnvelope(r.Context(), topic, s.QoS, false, env); err != nil {
			writeError(w, domain.ErrPublishFailed, err.Error())
			return
		}

		writeData(w, http.StatusAccepted, "job queued", jobResponseData{
			JobID:    env.JobID,
			Vendor:   string(vendor),
			Status:   "pending",
			QueuedAt: env.FirstAttemptAt.Format(time.RFC3339),
		})
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Timestamp     string `json:"timestamp"`
}

// HealthHandler implements GET /health. Status is "healthy" when the
// publisher reports a live connection and "degraded" otherwise; the
// handler reads the publisher's connection flag directly and neither
// pings the broker nor consults the cached liveness result.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connected := s.Publisher != nil && s.Publisher.IsConnected()
		status := "healthy"
		if !connected {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        status,
			Service:       "bots-brokerwiz",
			Version:       s.Version,
			MQTTConnected: connected,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type dlqMessageView struct {
	JobID      string              `json:"job_id"`
	Vendor     string              `json:"vendor"`
	RetryCount int                 `json:"retry_count"`
	MaxRetries int                 `json:"max_retries"`
	LastError  *domain.ErrorDetail `json:"last_error"`
}

func toDLQView(entries []dlqmanager.Entry) []dlqMessageView {
	out := make([]dlqMessageView, 0, len(entries))
	for _, e := range entries {
		out = append(out, dlqMessageView{
			JobID:      e.Envelope.JobID,
			Vendor:     string(e.Vendor),
			RetryCount: e.Envelope.RetryCount,
			MaxRetries: e.Envelope.MaxRetries,
			LastError:  e.Envelope.LastError,
		})
	}
	return out
}

// DLQListHandler implements GET /api/dlq.
func (s *Server) DLQListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := s.DLQ.ListAll()
		writeData(w, http.StatusOK, "", map[string]any{
			"count":    len(entries),
			"messages": toDLQView(entries),
		})
	}
}

// DLQListByVendorHandler implements GET /api/dlq/{vendor}.
func (s *Server) DLQListByVendorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendor := domain.CanonicalVendor(chi.URLParam(r, "vendor"))
		entries := s.DLQ.ListByVendor(vendor)
		writeData(w, http.StatusOK, "", map[string]any{
			"vendor":   string(vendor),
			"count":    len(entries),
			"messages": toDLQView(entries),
		})
	}
}

// DLQRetryHandler implements POST /api/dlq/{job_id}/retry.
func (s *Server) DLQRetryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "job_id")
		if err := s.DLQ.Retry(r.Context(), jobID); err != nil {
			writeError(w, err, jobID)
			return
		}
		writeData(w, http.StatusOK, "job requeued", map[string]any{
			"status": "requeued",
			"job_id": jobID,
		})
	}
}

// MetricsHandler implements GET /metrics, a JSON metrics snapshot.
func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.Metrics.Snapshot(r.Context())
		writeJSON(w, http.StatusOK, snap)
	}
}

// PrometheusHandler implements GET /metrics/prometheus.
func (s *Server) PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

type vendorView struct {
	Vendor  string `json:"vendor"`
	Enabled bool   `json:"enabled"`
}

// VendorsHandler implements GET /api/vendors, listing every known vendor
// and whether it is currently enabled.
func (s *Server) VendorsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendors := domain.KnownVendors()
		out := make([]vendorView, 0, len(vendors))
		for _, v := range vendors {
			enabled := true
			if s.Vendors != nil {
				enabled = s.Vendors.IsEnabled(v)
			}
			out = append(out, vendorView{Vendor: string(v), Enabled: enabled})
		}
		writeData(w, http.StatusOK, "", map[string]any{"vendors": out})
	}
}
