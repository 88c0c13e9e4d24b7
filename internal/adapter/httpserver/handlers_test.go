package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/config"
	"github.com/juanqu261/bots-brokerwiz/internal/dlqmanager"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
	"github.com/juanqu261/bots-brokerwiz/internal/health"
)

type fakePublisher struct {
	connected bool
	published []domain.Envelope
	topics    []string
	err       error
}

func (f *fakePublisher) PublishEnvelope(_ context.Context, topic string, _ byte, _ bool, env domain.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.published = append(f.published, env)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Ping(_ context.Context, _ time.Duration) bool { return f.connected }

func newTestServer(pub *fakePublisher) (*Server, *chi.Mux) {
	topics := broker.Topics{Prefix: "bots"}
	srv := NewServer(config.Config{}, pub, topics, 1, dlqmanager.NewManager(nil, pub, topics, 1), nil, health.NewAggregator(health.NewCache(pub), health.NewCounters(), nil, "/nonexistent.log", 1, ""), "test")

	r := chi.NewRouter()
	r.Post("/api/{vendor}/cotizar", srv.CotizarHandler())
	r.Get("/health", srv.HealthHandler())
	r.Get("/api/dlq", srv.DLQListHandler())
	r.Get("/api/dlq/{vendor}", srv.DLQListByVendorHandler())
	r.Post("/api/dlq/{job_id}/retry", srv.DLQRetryHandler())
	r.Get("/api/vendors", srv.VendorsHandler())
	return srv, r
}

func TestCotizarHandler_PublishesAndReturns202(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	body, _ := json.Marshal(map[string]any{
		"in_strIDSolicitudAseguradora": "abc123",
		"in_strNumDoc":                 "1",
		"in_strPlaca":                  "ABC123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/hdi/cotizar", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "bots/queue/hdi", pub.topics[0])

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestCotizarHandler_MissingRequiredKeyReturns422(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	body, _ := json.Marshal(map[string]any{"in_strNumDoc": "1"})
	req := httptest.NewRequest(http.MethodPost, "/api/hdi/cotizar", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, pub.published)
}

func TestCotizarHandler_UnknownVendorReturns400(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	req := httptest.NewRequest(http.MethodPost, "/api/fake/cotizar", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, pub.published)
}

func TestCotizarHandler_MalformedJSONReturns422(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	req := httptest.NewRequest(http.MethodPost, "/api/hdi/cotizar", bytes.NewReader([]byte(`not-json`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthHandler_ReportsMQTTConnected(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.MQTTConnected)
	assert.Equal(t, "healthy", resp.Status)
}

func TestDLQRetryHandler_NotFoundReturns404(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	req := httptest.NewRequest(http.MethodPost, "/api/dlq/missing-job/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVendorsHandler_ListsAllKnownVendors(t *testing.T) {
	pub := &fakePublisher{connected: true}
	_, r := newTestServer(pub)

	req := httptest.NewRequest(http.MethodGet, "/api/vendors", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}
