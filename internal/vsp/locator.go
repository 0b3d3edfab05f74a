package vsp

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// Stage names used in errors, logs and events.
const (
	StageInput  = "input"
	StageOutput = "output"
	StageResize = "resize"
	StageMedia  = "media"
)

// stage is one side of the memory-to-memory converter.
type stage struct {
	name     string
	path     string
	bufType  uint32
	required uint32

	node   VideoNode
	card   string
	entity string // entity token of the card string, e.g. "rpf.0"

	subdevPath string
	subdev     Subdev

	// set by the negotiator
	format formatInfo
	width  uint32
	height uint32
	planes []v4l2.PlaneFormat
	memory uint32
}

func newStage(name, path string, bufType, required uint32) *stage {
	return &stage{
		name:     name,
		path:     path,
		bufType:  bufType,
		required: required | v4l2.CapStreaming,
	}
}

// StageInfo describes a located stage.
type StageInfo struct {
	Name       string   `json:"name" example:"input" doc:"Stage name"`
	DevicePath string   `json:"device_path" example:"/dev/video0" doc:"Video node"`
	Card       string   `json:"card" example:"fe9a0000.vsp1 rpf.0 input" doc:"Driver card string"`
	Entity     string   `json:"entity" example:"fe9a0000.vsp1 rpf.0" doc:"Media entity name"`
	SubdevPath string   `json:"subdev_path" example:"/dev/v4l-subdev0" doc:"Subdevice node"`
	Strides    []uint32 `json:"strides,omitempty" doc:"Committed per-plane stride"`
	Sizes      []uint32 `json:"sizes,omitempty" doc:"Committed per-plane image size"`
	Width      uint32   `json:"width,omitempty" doc:"Committed width"`
	Height     uint32   `json:"height,omitempty" doc:"Committed height"`
}

func (st *stage) info(ip string) StageInfo {
	info := StageInfo{
		Name:       st.name,
		DevicePath: st.path,
		Card:       st.card,
		SubdevPath: st.subdevPath,
		Width:      st.width,
		Height:     st.height,
	}
	if st.entity != "" {
		info.Entity = ip + " " + st.entity
	}
	for _, p := range st.planes {
		info.Strides = append(info.Strides, p.BytesPerLine)
		info.Sizes = append(info.Sizes, p.SizeImage)
	}
	return info
}

func (st *stage) close(logger *slog.Logger) {
	if st.subdev != nil {
		if err := st.subdev.Close(); err != nil {
			logger.Warn("Failed to close subdevice", "stage", st.name, "path", st.subdevPath, "error", err)
		}
		st.subdev = nil
	}
	if st.node != nil {
		if err := st.node.Close(); err != nil {
			logger.Warn("Failed to close video node", "stage", st.name, "path", st.path, "error", err)
		}
		st.node = nil
	}
}

// locator resolves the kernel objects behind one IP block.
type locator struct {
	backend Backend
	logger  *slog.Logger
}

// selectNode opens the stage's video node and returns its IP name. A
// configured path must qualify. Without one, every node with the stage's
// capabilities is tried in order and the first whose card names an entity
// on ip (or on any IP when ip is "") is kept.
func (l *locator) selectNode(st *stage, ip string) (string, error) {
	if st.path != "" {
		return l.tryNode(st, st.path, ip)
	}
	paths, err := l.backend.FindVideo(st.required)
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "scan for video nodes failed")
	}

	var mismatch error
	for _, path := range paths {
		stageIP, err := l.tryNode(st, path, ip)
		if err == nil {
			l.logger.Debug("Selected video node by scan", "stage", st.name, "path", path)
			return stageIP, nil
		}
		l.logger.Debug("Skipping video node", "stage", st.name, "path", path, "error", err)
		st.close(l.logger)
		st.path, st.card, st.entity = "", "", ""
		if mismatch == nil && HasCode(err, ErrCodeIPNameMismatch) {
			mismatch = err
		}
	}
	if mismatch != nil {
		return "", mismatch
	}
	if ip != "" {
		return "", newError(ErrCodeDeviceNotFound, st.name, nil, "no video node with capabilities 0x%08x on %s", st.required, ip)
	}
	return "", newError(ErrCodeDeviceNotFound, st.name, nil, "no video node with capabilities 0x%08x", st.required)
}

// tryNode opens path and checks its capabilities and card.
func (l *locator) tryNode(st *stage, path, ip string) (string, error) {
	st.path = path
	node, err := l.backend.OpenVideo(path)
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "cannot open %s", path)
	}
	st.node = node

	caps, err := node.QueryCap()
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "%s: QUERYCAP failed", path)
	}
	if !caps.Has(st.required) {
		return "", newError(ErrCodeDeviceNotFound, st.name, nil,
			"%s lacks capabilities 0x%08x (has 0x%08x)", path, st.required, caps.EffectiveCaps())
	}
	st.card = caps.Card

	stageIP, entity, err := parseCard(caps.Card)
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "%s", path)
	}
	if ip != "" && stageIP != ip {
		return "", newError(ErrCodeIPNameMismatch, st.name, nil, "%s belongs to %q, expected %q", path, stageIP, ip)
	}
	st.entity = entity
	return stageIP, nil
}

// open opens the stage's video node and subdevice. ip is the IP name fixed
// by an earlier stage, or "" for the first one. It returns the stage's IP name.
func (l *locator) open(st *stage, ip string) (string, error) {
	stageIP, err := l.selectNode(st, ip)
	if err != nil {
		return "", err
	}
	entity := st.entity

	st.subdevPath, err = l.backend.FindSubdev(stageIP, entity)
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "no subdevice for %s %s", stageIP, entity)
	}
	st.subdev, err = l.backend.OpenSubdev(st.subdevPath)
	if err != nil {
		return "", newError(ErrCodeDeviceNotFound, st.name, err, "cannot open %s", st.subdevPath)
	}

	l.logger.Debug("Stage located",
		"stage", st.name,
		"path", st.path,
		"ip", stageIP,
		"entity", entity,
		"subdev", st.subdevPath)
	return stageIP, nil
}

// openMedia opens the media-controller device of ip.
func (l *locator) openMedia(ip string) (MediaGraph, error) {
	path, err := l.backend.FindMedia(ip)
	if err != nil {
		return nil, newError(ErrCodeDeviceNotFound, StageMedia, err, "no media device for %s", ip)
	}
	graph, err := l.backend.OpenMedia(path)
	if err != nil {
		return nil, newError(ErrCodeDeviceNotFound, StageMedia, err, "cannot open %s", path)
	}
	return graph, nil
}

// parseCard splits a card string of the form "<ip-name> <entity-name> ...".
func parseCard(card string) (ip, entity string, err error) {
	fields := strings.Fields(card)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("card %q has no entity name", card)
	}
	return fields[0], fields[1], nil
}
