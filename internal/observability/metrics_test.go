package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// counterValue sums a counter family from the default registry over the
// series matching labels.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("busdecode-api", "GET", "/health", 200, 12*time.Millisecond)
	RecordStageDuration("decode", 40*time.Millisecond)
	RecordQualityColumns("high nulls", 2)

	labels := map[string]string{"catalog": "can1", "result": "decoded"}
	before := counterValue(t, "busdecode_decode_frames_total", labels)
	RecordFrames("can1", "decoded", 3)
	RecordFrames("can1", "decoded", 0)
	if got := counterValue(t, "busdecode_decode_frames_total", labels) - before; got != 3 {
		t.Fatalf("expected 3 frames recorded, got %v", got)
	}

	fileLabels := map[string]string{"stage": "merge", "status": "empty"}
	beforeFiles := counterValue(t, "busdecode_pipeline_files_total", fileLabels)
	RecordStageFile("merge", "empty")
	if got := counterValue(t, "busdecode_pipeline_files_total", fileLabels) - beforeFiles; got != 1 {
		t.Fatalf("expected one stage file, got %v", got)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(log.Logger), RequestMetricsMiddleware("test"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	labels := map[string]string{"service": "test", "path": "/ping", "status": "418"}
	before := counterValue(t, "busdecode_http_requests_total", labels)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	if got := counterValue(t, "busdecode_http_requests_total", labels) - before; got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("request id not echoed: %q", got)
	}
}
