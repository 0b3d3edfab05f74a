package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/metrics"
)

// EventPublisher publishes events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes a SessionMetricsEvent for SSE clients.
type SSEExporter struct {
	bus      EventPublisher
	interval time.Duration
	snapshot func() metrics.Snapshot
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	last     metrics.Snapshot
	lastTime time.Time
}

// NewSSEExporter creates an exporter publishing once per second.
func NewSSEExporter(bus EventPublisher) *SSEExporter {
	return &SSEExporter{
		bus:      bus,
		interval: time.Second,
		snapshot: metrics.Current,
	}
}

// SetInterval changes the publish period. Non-positive values are ignored.
// It must be called before Start.
func (s *SSEExporter) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.last = s.snapshot()
	s.lastTime = time.Now()
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for it.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.publish(now)
		}
	}
}

func (s *SSEExporter) publish(now time.Time) {
	cur := s.snapshot()

	var fps float64
	if elapsed := now.Sub(s.lastTime).Seconds(); elapsed > 0 && cur.FramesConverted >= s.last.FramesConverted {
		fps = float64(cur.FramesConverted-s.last.FramesConverted) / elapsed
	}
	s.last = cur
	s.lastTime = now

	s.bus.Publish(SnapshotEvent(cur, fps, now))
}

// SnapshotEvent converts totals to the event sent to SSE clients.
func SnapshotEvent(cur metrics.Snapshot, fps float64, now time.Time) events.SessionMetricsEvent {
	return events.SessionMetricsEvent{
		FramesConverted:    cur.FramesConverted,
		FramesFailed:       cur.FramesFailed,
		BytesConverted:     cur.BytesConverted,
		FPS:                fps,
		AvgDurationSeconds: cur.AvgDurationSeconds(),
		Streaming:          cur.Streaming,
		Timestamp:          now.UTC().Format(time.RFC3339),
	}
}
