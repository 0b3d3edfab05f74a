// Package metrics provides Prometheus metrics for VSP conversion sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vspfilter"

var (
	framesConverted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "converted_total",
		Help:      "Frames converted",
	}, []string{"topology"})

	framesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "failed_total",
		Help:      "Frames that failed, by error code",
	}, []string{"code"})

	bytesConverted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "bytes_total",
		Help:      "Bytes written by the converter",
	})

	conversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "duration_seconds",
		Help:      "Wall time of one conversion including queueing and wait",
		Buckets:   []float64{.001, .002, .005, .01, .02, .05, .1, .25, .5, 1, 2},
	}, []string{"topology"})

	setups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "setups_total",
		Help:      "Link setups by result (topology or error code)",
	}, []string{"result"})

	streaming = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "streaming",
		Help:      "1 while a session is streaming",
	})

	// Local totals for the SSE exporter and the status API.
	cache   Snapshot
	cacheMu sync.RWMutex
)

// Snapshot holds process-wide totals.
type Snapshot struct {
	FramesConverted uint64
	FramesFailed    uint64
	BytesConverted  uint64
	DurationSeconds float64
	Setups          uint64
	SetupFailures   uint64
	Streaming       bool
}

// AvgDurationSeconds is the mean conversion time, or 0 before the first frame.
func (s Snapshot) AvgDurationSeconds() float64 {
	if s.FramesConverted == 0 {
		return 0
	}
	return s.DurationSeconds / float64(s.FramesConverted)
}

// RecordFrame counts one converted frame.
func RecordFrame(topology string, bytes uint64, seconds float64) {
	framesConverted.WithLabelValues(topology).Inc()
	bytesConverted.Add(float64(bytes))
	conversionDuration.WithLabelValues(topology).Observe(seconds)
	update(func(s *Snapshot) {
		s.FramesConverted++
		s.BytesConverted += bytes
		s.DurationSeconds += seconds
	})
}

// RecordFrameFailure counts one failed frame.
func RecordFrameFailure(code string) {
	framesFailed.WithLabelValues(code).Inc()
	update(func(s *Snapshot) { s.FramesFailed++ })
}

// RecordSetup counts a successful link setup.
func RecordSetup(topology string) {
	setups.WithLabelValues(topology).Inc()
	update(func(s *Snapshot) { s.Setups++ })
}

// RecordSetupFailure counts a setup that broke its session.
func RecordSetupFailure(code string) {
	setups.WithLabelValues(code).Inc()
	update(func(s *Snapshot) { s.SetupFailures++ })
}

// SetStreaming records whether a session is streaming.
func SetStreaming(on bool) {
	if on {
		streaming.Set(1)
	} else {
		streaming.Set(0)
	}
	update(func(s *Snapshot) { s.Streaming = on })
}

// Current returns a copy of the totals.
func Current() Snapshot {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return cache
}

func update(fn func(*Snapshot)) {
	cacheMu.Lock()
	fn(&cache)
	cacheMu.Unlock()
}
