package api

import (
	"context"
	"time"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/vsp"
	"github.com/smazurov/vspfilter/pkg/linuxav/hotplug"
)

// WatchDevices tears the session down when one of its nodes disappears, so
// the next request locates the converter again. It returns when ctx is done
// or devices is closed.
func (s *Server) WatchDevices(ctx context.Context, devices <-chan hotplug.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-devices:
			if !ok {
				return
			}
			s.deviceEvent(ev)
		}
	}
}

func (s *Server) deviceEvent(ev hotplug.Event) {
	node := ev.Node()
	if !ev.Gone() || node == "" || s.session == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session.Status()
	if !st.Opened || !usesNode(st, node) {
		return
	}

	s.logger.Warn("Session device removed, tearing down", "device", node, "action", ev.Action)
	s.session.Teardown()
	s.eventBus.Publish(events.DeviceRemovedEvent{
		Device:    node,
		Action:    ev.Action,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func usesNode(st vsp.Status, node string) bool {
	if node == st.MediaDevice || node == st.ResizeSubdev {
		return true
	}
	for _, stage := range st.Stages {
		if node == stage.DevicePath || node == stage.SubdevPath {
			return true
		}
	}
	return false
}
