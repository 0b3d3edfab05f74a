package vsp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/smazurov/vspfilter/pkg/linuxav/media"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

const testIP = "fe9a0000.vsp1"

// opLog records every kernel call made through the fake backend.
type opLog struct {
	ops []string
}

func (l *opLog) add(format string, args ...any) {
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
}

func (l *opLog) count(prefix string) int {
	n := 0
	for _, op := range l.ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

// topologyOps counts calls that negotiate formats or touch the graph.
func (l *opLog) topologyOps() int {
	n := 0
	for _, p := range []string{"TRY_FMT", "S_FMT", "REQBUFS", "ENUM_LINKS", "SETUP_LINK", "SUBDEV_S_FMT", "ENUM_ENTITIES"} {
		n += l.count(p)
	}
	return n
}

type fakeNode struct {
	log  *opLog
	path string
	caps v4l2.Capability

	tryErr     error
	tryAdjust  func(f *v4l2.PixFormat)
	setErr     error
	reqErr     error
	qbufErr    error
	dqbufErr   error
	streamErr  error
	waitReady  bool
	waitErr    error
	committed  v4l2.PixFormat
	memory     uint32
	streamOns  int
	streamOffs int
	queued     [][]v4l2.Plane
	closed     bool
}

func (n *fakeNode) Path() string { return n.path }

func (n *fakeNode) QueryCap() (v4l2.Capability, error) { return n.caps, nil }

func (n *fakeNode) TryFormat(_ uint32, f *v4l2.PixFormat) error {
	n.log.add("TRY_FMT %s %dx%d", n.path, f.Width, f.Height)
	if n.tryErr != nil {
		return n.tryErr
	}
	if n.tryAdjust != nil {
		n.tryAdjust(f)
	}
	return nil
}

func (n *fakeNode) SetFormat(_ uint32, f *v4l2.PixFormat) error {
	n.log.add("S_FMT %s %dx%d", n.path, f.Width, f.Height)
	if n.setErr != nil {
		return n.setErr
	}
	for i := range f.Planes {
		f.Planes[i] = v4l2.PlaneFormat{BytesPerLine: f.Width, SizeImage: f.Width * f.Height}
	}
	n.committed = *f
	return nil
}

func (n *fakeNode) RequestBuffers(_, memory, count uint32) (uint32, error) {
	n.log.add("REQBUFS %s %d", n.path, memory)
	if n.reqErr != nil {
		return 0, n.reqErr
	}
	n.memory = memory
	return count, nil
}

func (n *fakeNode) QueueBuffer(_, memory uint32, planes []v4l2.Plane) error {
	n.log.add("QBUF %s", n.path)
	if n.qbufErr != nil {
		return n.qbufErr
	}
	if memory != n.memory {
		return fmt.Errorf("memory %d queued on %d queue: %w", memory, n.memory, os.ErrInvalid)
	}
	n.queued = append(n.queued, planes)
	return nil
}

func (n *fakeNode) DequeueBuffer(_, _ uint32, planes []v4l2.Plane) error {
	n.log.add("DQBUF %s", n.path)
	if n.dqbufErr != nil {
		return n.dqbufErr
	}
	for i := range planes {
		planes[i].BytesUsed = 100
	}
	return nil
}

func (n *fakeNode) StreamOn(uint32) error {
	n.log.add("STREAMON %s", n.path)
	if n.streamErr != nil {
		return n.streamErr
	}
	n.streamOns++
	return nil
}

func (n *fakeNode) StreamOff(uint32) error {
	n.log.add("STREAMOFF %s", n.path)
	n.streamOffs++
	return nil
}

func (n *fakeNode) WaitReadable(time.Duration) (bool, error) {
	n.log.add("POLL %s", n.path)
	return n.waitReady, n.waitErr
}

func (n *fakeNode) Close() error {
	n.closed = true
	return nil
}

type fakeSubdev struct {
	log    *opLog
	path   string
	pads   map[uint32]v4l2.PadFormat
	err    error
	adjust func(f *v4l2.PadFormat)
	closed bool
}

func (s *fakeSubdev) Path() string { return s.path }

func (s *fakeSubdev) SetPadFormat(f *v4l2.PadFormat) error {
	s.log.add("SUBDEV_S_FMT %s %d", s.path, f.Pad)
	if s.err != nil {
		return s.err
	}
	if s.adjust != nil {
		s.adjust(f)
	}
	s.pads[f.Pad] = *f
	return nil
}

func (s *fakeSubdev) Close() error {
	s.closed = true
	return nil
}

type fakeGraph struct {
	log      *opLog
	entities []media.Entity
	links    []media.Link
	linksErr map[uint32]error
	setupErr error
	closed   bool
}

func (g *fakeGraph) Path() string { return "/dev/media0" }

func (g *fakeGraph) Entities() ([]media.Entity, error) {
	g.log.add("ENUM_ENTITIES")
	return append([]media.Entity(nil), g.entities...), nil
}

func (g *fakeGraph) EntityByID(id uint32) (media.Entity, error) {
	g.log.add("ENUM_ENTITIES %d", id)
	for _, e := range g.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return media.Entity{}, os.ErrNotExist
}

func (g *fakeGraph) EntityByName(name string) (media.Entity, error) {
	g.log.add("ENUM_ENTITIES %s", name)
	for _, e := range g.entities {
		if e.Name == name {
			return e, nil
		}
	}
	return media.Entity{}, os.ErrNotExist
}

func (g *fakeGraph) Links(e media.Entity) ([]media.Link, error) {
	g.log.add("ENUM_LINKS %s", e.Name)
	if err := g.linksErr[e.ID]; err != nil {
		return nil, err
	}
	var out []media.Link
	for _, l := range g.links {
		if l.Source.Entity == e.ID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (g *fakeGraph) SetupLink(l media.Link) error {
	g.log.add("SETUP_LINK %d->%d %v", l.Source.Entity, l.Sink.Entity, l.Enabled())
	if g.setupErr != nil {
		return g.setupErr
	}
	for i := range g.links {
		cur := &g.links[i]
		if cur.Source == l.Source && cur.Sink.Entity == l.Sink.Entity && cur.Sink.Index == l.Sink.Index {
			if cur.Immutable() && cur.Enabled() != l.Enabled() {
				return errors.New("immutable link modified")
			}
			cur.Flags = l.Flags
			return nil
		}
	}
	return os.ErrNotExist
}

func (g *fakeGraph) Close() error {
	g.closed = true
	return nil
}

// link returns the link between two entities, by name suffix.
func (g *fakeGraph) link(src, sink string) media.Link {
	s, k := g.id(src), g.id(sink)
	for _, l := range g.links {
		if l.Source.Entity == s && l.Sink.Entity == k {
			return l
		}
	}
	panic("no link " + src + " -> " + sink)
}

func (g *fakeGraph) setLink(src, sink string, flags uint32) {
	s, k := g.id(src), g.id(sink)
	for i := range g.links {
		if g.links[i].Source.Entity == s && g.links[i].Sink.Entity == k {
			g.links[i].Flags = flags
			return
		}
	}
	panic("no link " + src + " -> " + sink)
}

func (g *fakeGraph) addLink(src, sink string, flags uint32) {
	g.links = append(g.links, media.Link{
		Source: media.Pad{Entity: g.id(src), Index: 1, Flags: media.PadFlSource},
		Sink:   media.Pad{Entity: g.id(sink), Index: 0, Flags: media.PadFlSink},
		Flags:  flags,
	})
}

func (g *fakeGraph) id(name string) uint32 {
	for _, e := range g.entities {
		if e.Name == testIP+" "+name {
			return e.ID
		}
	}
	panic("no entity " + name)
}

type fakeBackend struct {
	log        *opLog
	nodes      map[string]*fakeNode
	nodeNames  map[string]string
	subdevs    map[string]*fakeSubdev
	subdevName map[string]string
	graph      *fakeGraph
	mediaErr   error
	opened     []string
}

// newFakeBackend models a VSP1 instance:
//
//	rpf.0 input -> rpf.0 -> {uds.0, bru, wpf.0}
//	uds.0 -> {wpf.0, bru}, bru -> wpf.0, wpf.0 -> wpf.0 output
func newFakeBackend() *fakeBackend {
	log := &opLog{}
	b := &fakeBackend{
		log: log,
		nodes: map[string]*fakeNode{
			"/dev/video0": {
				log:       log,
				path:      "/dev/video0",
				caps:      v4l2.Capability{Card: testIP + " rpf.0 input", Capabilities: v4l2.CapVideoOutputMplane | v4l2.CapStreaming},
				waitReady: true,
			},
			"/dev/video1": {
				log:       log,
				path:      "/dev/video1",
				caps:      v4l2.Capability{Card: testIP + " wpf.0 output", Capabilities: v4l2.CapVideoCaptureMplane | v4l2.CapStreaming},
				waitReady: true,
			},
		},
		nodeNames: map[string]string{
			"/dev/video0": testIP + " rpf.0 input",
			"/dev/video1": testIP + " wpf.0 output",
		},
		subdevs:    map[string]*fakeSubdev{},
		subdevName: map[string]string{},
	}

	for i, name := range []string{"rpf.0", "uds.0", "wpf.0", "bru"} {
		path := fmt.Sprintf("/dev/v4l-subdev%d", i)
		b.subdevs[path] = &fakeSubdev{log: log, path: path, pads: map[uint32]v4l2.PadFormat{}}
		b.subdevName[path] = testIP + " " + name
	}

	g := &fakeGraph{log: log, linksErr: map[uint32]error{}}
	for i, name := range []string{"rpf.0 input", "rpf.0", "uds.0", "bru", "wpf.0", "wpf.0 output"} {
		g.entities = append(g.entities, media.Entity{ID: uint32(i + 1), Name: testIP + " " + name, Pads: 2, Links: 3})
	}
	g.addLink("rpf.0 input", "rpf.0", media.LinkFlEnabled|media.LinkFlImmutable)
	g.addLink("rpf.0", "uds.0", 0)
	g.addLink("rpf.0", "bru", 0)
	g.addLink("rpf.0", "wpf.0", 0)
	g.addLink("uds.0", "wpf.0", 0)
	g.addLink("uds.0", "bru", 0)
	g.addLink("bru", "wpf.0", 0)
	g.addLink("wpf.0", "wpf.0 output", 0)
	b.graph = g

	return b
}

func (b *fakeBackend) FindVideo(required uint32) ([]string, error) {
	var paths []string
	for path, n := range b.nodes {
		if n.caps.Has(required) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *fakeBackend) OpenVideo(path string) (VideoNode, error) {
	n, ok := b.nodes[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	b.opened = append(b.opened, path)
	return n, nil
}

func (b *fakeBackend) NodeName(path string) (string, error) {
	name, ok := b.nodeNames[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return name, nil
}

func (b *fakeBackend) FindSubdev(ip, entity string) (string, error) {
	paths := make([]string, 0, len(b.subdevName))
	for p := range b.subdevName {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		name := b.subdevName[p]
		if strings.HasPrefix(name, ip) && strings.Contains(name, entity) {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

func (b *fakeBackend) OpenSubdev(path string) (Subdev, error) {
	sd, ok := b.subdevs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	b.opened = append(b.opened, path)
	return sd, nil
}

func (b *fakeBackend) FindMedia(ip string) (string, error) {
	if ip != testIP {
		return "", os.ErrNotExist
	}
	return "/dev/media0", nil
}

func (b *fakeBackend) OpenMedia(string) (MediaGraph, error) {
	if b.mediaErr != nil {
		return nil, b.mediaErr
	}
	return b.graph, nil
}

func (b *fakeBackend) node(path string) *fakeNode { return b.nodes[path] }

func (b *fakeBackend) subdev(entity string) *fakeSubdev {
	for p, name := range b.subdevName {
		if name == testIP+" "+entity {
			return b.subdevs[p]
		}
	}
	panic("no subdev " + entity)
}

func (b *fakeBackend) openCount(path string) int {
	n := 0
	for _, p := range b.opened {
		if p == path {
			n++
		}
	}
	return n
}

func newTestSession(b *fakeBackend) *Session {
	return NewSession(Options{
		InputDevice:  "/dev/video0",
		OutputDevice: "/dev/video1",
		Backend:      b,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// request builds a request with tightly packed user buffers.
func request(inFmt Format, inW, inH int, outFmt Format, outW, outH int) Request {
	inPlanes, err := AllocPlanes(inFmt, inW, inH)
	if err != nil {
		panic(err)
	}
	outPlanes, err := AllocPlanes(outFmt, outW, outH)
	if err != nil {
		panic(err)
	}
	return Request{
		In:  Frame{Format: inFmt, Width: inW, Height: inH, Buffers: UserPlanes(inPlanes...)},
		Out: Frame{Format: outFmt, Width: outW, Height: outH, Buffers: UserPlanes(outPlanes...)},
	}
}
