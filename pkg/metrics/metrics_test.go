package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestConnectionMetrics(t *testing.T) {
	DialsTotal.Reset()

	DialsTotal.WithLabelValues("success").Inc()
	DialsTotal.WithLabelValues("success").Inc()
	DialsTotal.WithLabelValues("unresolved").Inc()

	if got := testutil.ToFloat64(DialsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful dials, got %v", got)
	}
	if got := testutil.ToFloat64(DialsTotal.WithLabelValues("unresolved")); got != 1 {
		t.Errorf("Expected 1 unresolved dial, got %v", got)
	}

	before := testutil.ToFloat64(ConnectionsCurrent)
	ConnectionsCurrent.Inc()
	ConnectionsCurrent.Inc()
	ConnectionsCurrent.Dec()

	var m dto.Metric
	if err := ConnectionsCurrent.Write(&m); err != nil {
		t.Fatalf("Failed to read gauge: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != before+1 {
		t.Errorf("Expected current connections %v, got %v", before+1, got)
	}
	ConnectionsCurrent.Dec()
}

func TestResponseHistograms(t *testing.T) {
	ResponseLines.Observe(3)
	ResponseWaitDuration.Observe(0.02)

	var m dto.Metric
	if err := ResponseLines.Write(&m); err != nil {
		t.Fatalf("Failed to read histogram: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("Expected at least one response line sample")
	}
	if m.GetHistogram().GetSampleSum() < 3 {
		t.Errorf("Expected sample sum >= 3, got %v", m.GetHistogram().GetSampleSum())
	}
}

func TestPrometheusHTTPHandler(t *testing.T) {
	ResponsesTotal.Reset()
	BytesTotal.Reset()

	ResponsesTotal.WithLabelValues("timeout").Add(2)
	BytesTotal.WithLabelValues("in").Add(128)

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	bodyStr := string(body)

	for _, want := range []string{
		`sieveconn_responses_total{result="timeout"} 2`,
		`sieveconn_bytes_total{direction="in"} 128`,
		"sieveconn_connections_current",
		"sieveconn_response_wait_seconds_bucket",
	} {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
