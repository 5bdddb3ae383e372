package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busdecode",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "busdecode",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	decodeFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busdecode",
			Subsystem: "decode",
			Name:      "frames_total",
			Help:      "Frames consumed by the decoder, by result tag.",
		},
		[]string{"catalog", "result"},
	)
	stageFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busdecode",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files processed per stage, by outcome status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "busdecode",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of one pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"stage"},
	)
	qualityColumns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busdecode",
			Subsystem: "quality",
			Name:      "columns_total",
			Help:      "Signal columns seen by the quality filter, by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, decodeFrames, stageFiles, stageDuration, qualityColumns)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrames adds n frames with the given result tag.
func RecordFrames(catalog, result string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	decodeFrames.WithLabelValues(catalog, result).Add(float64(n))
}

func RecordStageFile(stage, status string) {
	RegisterMetrics()
	stageFiles.WithLabelValues(stage, status).Inc()
}

func RecordStageDuration(stage string, duration time.Duration) {
	RegisterMetrics()
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordQualityColumns counts columns by outcome: kept, labeled, label_failed
// or a drop reason.
func RecordQualityColumns(outcome string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	qualityColumns.WithLabelValues(outcome).Add(float64(n))
}
