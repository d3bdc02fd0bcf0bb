package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/pfai-go/internal/cache"
)

func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		chat:  &fakeChatter{response: "ok", id: uuid.New()},
		cache: cache.New(reg),
		cfg: &Config{
			ChatTimeout:     5 * time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

func Test_Metrics_EndpointServesTextFormat(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ChatOutcomeCounter(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"show my holdings"}`))
	req.Header.Set("Content-Type", "application/json")
	s.handleChat(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(s.metrics.chatRequestsTotal.WithLabelValues("ok"))
	if got != 1 {
		t.Errorf("chat_requests_total{outcome=ok}: want 1, got %v", got)
	}
	if errs := testutil.ToFloat64(s.metrics.chatRequestsTotal.WithLabelValues("error")); errs != 0 {
		t.Errorf("chat_requests_total{outcome=error}: want 0, got %v", errs)
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t)

	s.metrics.chatActiveStreams.Inc()
	s.metrics.chatActiveStreams.Inc()

	if got := testutil.ToFloat64(s.metrics.chatActiveStreams); got != 2 {
		t.Errorf("active streams gauge: want 2, got %v", got)
	}
}
