// Package collectors feeds the metrics package from session events.
package collectors

import (
	"sync"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/smazurov/vspfilter/internal/metrics"
)

// SessionCollector turns bus events into metric updates.
type SessionCollector struct {
	bus      *events.Bus
	logger   logging.Logger
	mu       sync.Mutex
	unsubs   []func()
	stopOnce sync.Once
}

// NewSessionCollector creates a collector for bus. Nothing is recorded
// until Start.
func NewSessionCollector(bus *events.Bus) *SessionCollector {
	return &SessionCollector{
		bus:    bus,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to the session events.
func (c *SessionCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(func(e events.SessionLinkedEvent) {
			metrics.RecordSetup(e.Topology)
		}),
		c.bus.Subscribe(func(e events.SetupFailedEvent) {
			metrics.RecordSetupFailure(e.Code)
		}),
		c.bus.Subscribe(func(events.StreamingStartedEvent) {
			metrics.SetStreaming(true)
		}),
		c.bus.Subscribe(func(e events.FrameConvertedEvent) {
			metrics.RecordFrame(e.Topology, e.BytesUsed, e.DurationSeconds)
		}),
		c.bus.Subscribe(func(e events.FrameFailedEvent) {
			metrics.RecordFrameFailure(e.Code)
		}),
		c.bus.Subscribe(func(events.SessionClosedEvent) {
			metrics.SetStreaming(false)
		}),
	)
	c.logger.Debug("Session metrics collection started")
}

// Stop removes the subscriptions.
func (c *SessionCollector) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, u := range c.unsubs {
			u()
		}
		c.unsubs = nil
	})
}
