package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/metrics"
	"github.com/smazurov/vspfilter/internal/metrics/exporters"
)

// registerMetricsRoutes registers the periodic metrics stream. A client
// gets the current totals on connect, then whatever the exporter publishes.
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics stream",
		Description: "Session throughput and latency snapshots",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-metrics": events.SessionMetricsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribe := events.SubscribeToChannel[events.SessionMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if err := send.Data(exporters.SnapshotEvent(metrics.Current(), 0, time.Now())); err != nil {
			return
		}
		forward(ctx, eventCh, send)
	})
}
