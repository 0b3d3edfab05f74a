package vsp

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/vspfilter/pkg/linuxav/media"
)

// Topology is the link layout chosen for a Session.
type Topology int

// Topologies.
const (
	TopologyNone Topology = iota
	// TopologyDirect links input to output.
	TopologyDirect
	// TopologyResize routes input through the scaler to output.
	TopologyResize
)

func (t Topology) String() string {
	switch t {
	case TopologyDirect:
		return "direct"
	case TopologyResize:
		return "resize"
	default:
		return "none"
	}
}

// MarshalText renders the topology by name.
func (t Topology) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// decideTopology selects the resize path iff the geometry changes.
func decideTopology(g geometry) Topology {
	if g.inWidth != g.outWidth || g.inHeight != g.outHeight {
		return TopologyResize
	}
	return TopologyDirect
}

// PlanTopology resolves the geometry of req and returns the topology it
// would link, without touching any device.
func PlanTopology(req Request) (Topology, error) {
	g, err := resolveGeometry(req)
	if err != nil {
		return TopologyNone, err
	}
	return decideTopology(g), nil
}

const (
	resizeEntity = "uds.0"
	// maxLinkDepth bounds the walk over enabled links. A VSP pipeline is a
	// handful of entities deep, anything longer is a misreported graph.
	maxLinkDepth = 16
)

// linker edits the link state of one media graph.
type linker struct {
	graph  MediaGraph
	logger *slog.Logger
}

func (l *linker) entity(name string) (media.Entity, error) {
	e, err := l.graph.EntityByName(name)
	if err != nil {
		return media.Entity{}, newError(ErrCodeEntityNotFound, StageMedia, err, "no media entity %q", name)
	}
	return e, nil
}

func (l *linker) links(e media.Entity) ([]media.Link, error) {
	links, err := l.graph.Links(e)
	if err != nil {
		return nil, newError(ErrCodeLinkSetupFailed, StageMedia, err, "cannot enumerate links of %s", e.Name)
	}
	return links, nil
}

// activate enables the link from src to sink. Another enabled link leaving
// src is a conflict: fan-out is never resolved silently.
func (l *linker) activate(src, sink media.Entity) error {
	links, err := l.links(src)
	if err != nil {
		return err
	}

	var target *media.Link
	for i := range links {
		switch {
		case links[i].Sink.Entity == sink.ID:
			target = &links[i]
		case links[i].Enabled():
			return newError(ErrCodeTopologyConflict, StageMedia, nil,
				"%s already has an enabled link to entity %d", src.Name, links[i].Sink.Entity)
		}
	}
	if target == nil {
		return newError(ErrCodeTopologyConflict, StageMedia, nil, "no link from %s to %s", src.Name, sink.Name)
	}
	if target.Enabled() {
		l.logger.Debug("Link already enabled", "source", src.Name, "sink", sink.Name)
		return nil
	}

	if err := l.graph.SetupLink(target.WithEnabled(true)); err != nil {
		return newError(ErrCodeLinkSetupFailed, StageMedia, err, "cannot enable %s -> %s", src.Name, sink.Name)
	}
	l.logger.Debug("Link enabled", "source", src.Name, "sink", sink.Name)
	return nil
}

// deactivate clears every enabled, mutable link reachable from src,
// downstream links first. Immutable links are left alone.
func (l *linker) deactivate(src media.Entity) error {
	return l.deactivateFrom(src, make(map[uint32]bool), 0)
}

func (l *linker) deactivateFrom(src media.Entity, visited map[uint32]bool, depth int) error {
	if depth > maxLinkDepth {
		return newError(ErrCodeTopologyConflict, StageMedia, nil,
			"enabled path from %s deeper than %d entities", src.Name, maxLinkDepth)
	}
	if visited[src.ID] {
		return nil
	}
	visited[src.ID] = true

	links, err := l.links(src)
	if err != nil {
		return err
	}

	for _, link := range links {
		if !link.Enabled() || link.Immutable() {
			continue
		}

		next, err := l.graph.EntityByID(link.Sink.Entity)
		if err != nil {
			return newError(ErrCodeLinkSetupFailed, StageMedia, err, "cannot resolve entity %d", link.Sink.Entity)
		}
		if err := l.deactivateFrom(next, visited, depth+1); err != nil {
			return err
		}

		if err := l.graph.SetupLink(link.WithEnabled(false)); err != nil {
			return newError(ErrCodeLinkSetupFailed, StageMedia, err, "cannot disable %s -> %s", src.Name, next.Name)
		}
		l.logger.Debug("Link disabled", "source", src.Name, "sink", next.Name)
	}
	return nil
}

// GraphLink is one outgoing link as reported to API clients.
type GraphLink struct {
	Sink      string `json:"sink" example:"fe9a0000.vsp1 wpf.0" doc:"Sink entity"`
	SourcePad uint16 `json:"source_pad" doc:"Source pad index"`
	SinkPad   uint16 `json:"sink_pad" doc:"Sink pad index"`
	Enabled   bool   `json:"enabled" doc:"Link carries data"`
	Immutable bool   `json:"immutable" doc:"Link state is fixed"`
}

// GraphEntity is one media entity with its outgoing links.
type GraphEntity struct {
	ID    uint32      `json:"id" doc:"Entity id"`
	Name  string      `json:"name" example:"fe9a0000.vsp1 rpf.0" doc:"Entity name"`
	Pads  uint16      `json:"pads" doc:"Pad count"`
	Links []GraphLink `json:"links" doc:"Outgoing links"`
}

// describe lists all entities and their outgoing links.
func describe(graph MediaGraph) ([]GraphEntity, error) {
	entities, err := graph.Entities()
	if err != nil {
		return nil, fmt.Errorf("enumerate entities: %w", err)
	}

	names := make(map[uint32]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.Name
	}

	out := make([]GraphEntity, 0, len(entities))
	for _, e := range entities {
		ge := GraphEntity{ID: e.ID, Name: e.Name, Pads: e.Pads, Links: []GraphLink{}}
		links, err := graph.Links(e)
		if err != nil {
			return nil, fmt.Errorf("enumerate links of %s: %w", e.Name, err)
		}
		for _, link := range links {
			ge.Links = append(ge.Links, GraphLink{
				Sink:      names[link.Sink.Entity],
				SourcePad: link.Source.Index,
				SinkPad:   link.Sink.Index,
				Enabled:   link.Enabled(),
				Immutable: link.Immutable(),
			})
		}
		out = append(out, ge)
	}
	return out, nil
}
