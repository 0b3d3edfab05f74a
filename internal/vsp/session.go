package vsp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// Frame is one side of a conversion request.
type Frame struct {
	Format  Format
	Width   int
	Height  int
	Buffers FrameBuffers
}

// Request asks for one frame to be converted. OutStride is the byte stride
// of output plane 0; zero means tightly packed.
type Request struct {
	In        Frame
	Out       Frame
	OutStride int
}

// Result describes a converted frame.
type Result struct {
	Topology  Topology
	Width     uint32
	Height    uint32
	BytesUsed []uint32
	Duration  time.Duration
}

// Options configures a Session. Empty device paths are resolved by
// scanning for a node with the required capabilities.
type Options struct {
	InputDevice  string
	OutputDevice string
	Backend      Backend
	Bus          *events.Bus
	Logger       *slog.Logger
}

// Session owns the devices and link state of one converter. It is not safe
// for concurrent use: exactly one caller drives it.
type Session struct {
	opts    Options
	backend Backend
	logger  *slog.Logger
	bus     *events.Bus
	locator locator

	input  *stage
	output *stage
	ip     string
	graph  MediaGraph

	resize     Subdev
	resizePath string

	opened     bool
	linked     bool
	streaming  bool
	topology   Topology
	broken     error
	setupCount int

	converted uint64
	failed    uint64
}

// NewSession creates an idle Session. No device is touched until Setup or
// the first Convert.
func NewSession(opts Options) *Session {
	if opts.Backend == nil {
		opts.Backend = SystemBackend()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("vsp")
	}
	s := &Session{
		opts:    opts,
		backend: opts.Backend,
		logger:  opts.Logger,
		bus:     opts.Bus,
		locator: locator{backend: opts.Backend, logger: opts.Logger},
	}
	s.reset()
	return s
}

func (s *Session) reset() {
	s.input = newStage(StageInput, s.opts.InputDevice, v4l2.BufTypeVideoOutputMplane, v4l2.CapVideoOutputMplane)
	s.output = newStage(StageOutput, s.opts.OutputDevice, v4l2.BufTypeVideoCaptureMplane, v4l2.CapVideoCaptureMplane)
	s.ip = ""
	s.graph = nil
	s.resize = nil
	s.resizePath = ""
	s.opened = false
	s.linked = false
	s.streaming = false
	s.topology = TopologyNone
	s.broken = nil
	s.setupCount = 0
	s.converted = 0
	s.failed = 0
}

// Setup locates and opens both stages, their subdevices and the media
// device. It is idempotent; after a failure the Session stays broken until
// Teardown.
func (s *Session) Setup() error {
	if s.broken != nil {
		return s.broken
	}
	if s.opened {
		return nil
	}

	if err := s.open(); err != nil {
		s.markBroken(err)
		return err
	}
	s.opened = true
	s.logger.Info("Devices opened",
		"ip", s.ip,
		"input", s.input.path,
		"output", s.output.path,
		"media", s.graph.Path())
	return nil
}

func (s *Session) open() error {
	ip, err := s.locator.open(s.input, "")
	if err != nil {
		return err
	}
	if _, err := s.locator.open(s.output, ip); err != nil {
		return err
	}
	s.ip = ip

	graph, err := s.locator.openMedia(ip)
	if err != nil {
		return err
	}
	s.graph = graph
	return nil
}

// Validate runs the trial format check for req on both stages without
// changing any state. It opens the devices if needed.
func (s *Session) Validate(req Request) error {
	if err := s.Setup(); err != nil {
		return err
	}
	g, err := resolveGeometry(req)
	if err != nil {
		return err
	}
	return s.trial(g)
}

func (s *Session) trial(g geometry) error {
	if err := s.input.try(g.in, g.inWidth, g.inHeight); err != nil {
		return err
	}
	return s.output.try(g.out, g.outWidth, g.outHeight)
}

// Convert converts one frame. The first accepted call negotiates formats and
// links the graph; the topology chosen then is kept for the Session's
// lifetime. A request rejected before any format is committed leaves the
// Session unlinked and usable. A timed out frame does not tear the Session
// down, but its buffers stay queued with the driver: with a single buffer
// per queue, recovering needs Teardown and a fresh setup.
func (s *Session) Convert(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	if err := s.Setup(); err != nil {
		return Result{}, err
	}
	if !s.linked {
		s.setupCount++
		g, memory, err := s.plan(req)
		if err != nil {
			// Nothing was committed; a later request may still set up.
			return Result{}, err
		}
		if err := s.configure(req, g, memory); err != nil {
			s.markBroken(err)
			return Result{}, err
		}
	}

	res, err := s.exchange(req)
	if err != nil {
		s.failed++
		s.logger.Warn("Frame conversion failed", "error", err)
		s.publish(events.FrameFailedEvent{
			Code:      string(CodeOf(err)),
			Stage:     stageOf(err),
			Error:     err.Error(),
			Timestamp: timestamp(),
		})
		return Result{}, err
	}

	res.Duration = time.Since(start)
	s.converted++
	s.publish(events.FrameConvertedEvent{
		Topology:        res.Topology.String(),
		BytesUsed:       sum(res.BytesUsed),
		DurationSeconds: res.Duration.Seconds(),
		Timestamp:       timestamp(),
	})
	return res, nil
}

// plan checks req against the format table, the stride rule, the trial
// format calls and the buffer memory constraints. It changes no device state.
func (s *Session) plan(req Request) (geometry, uint32, error) {
	g, err := resolveGeometry(req)
	if err != nil {
		return geometry{}, 0, err
	}
	if err := s.trial(g); err != nil {
		return geometry{}, 0, err
	}

	if req.In.Buffers.IsDMABuf() {
		return geometry{}, 0, newError(ErrCodeQueueRequestFailed, StageInput, nil, "input frames must be user memory")
	}
	memory := req.Out.Buffers.memory()
	if memory == v4l2.MemoryDMABuf && g.out.planes != 1 {
		return geometry{}, 0, newError(ErrCodeQueueRequestFailed, StageOutput, nil,
			"dmabuf capture needs a single-plane format, %s has %d planes", req.Out.Format, g.out.planes)
	}
	return g, memory, nil
}

// configure is the one-time setup after plan: commit, link, pads. A failure
// here leaves the devices half configured and breaks the Session.
func (s *Session) configure(req Request, g geometry, memory uint32) error {
	if err := s.input.commit(g.in, g.inWidth, g.inHeight, v4l2.MemoryUserPtr); err != nil {
		return err
	}
	if err := s.output.commit(g.out, g.outWidth, g.outHeight, memory); err != nil {
		return err
	}

	if err := s.link(g); err != nil {
		return err
	}
	s.linked = true

	s.logger.Info("Pipeline linked",
		"ip", s.ip,
		"topology", s.topology,
		"in", req.In.Format,
		"in_size", [2]uint32{g.inWidth, g.inHeight},
		"out", req.Out.Format,
		"out_size", [2]uint32{g.outWidth, g.outHeight})
	s.publish(events.SessionLinkedEvent{
		IPName:       s.ip,
		InputDevice:  s.input.path,
		OutputDevice: s.output.path,
		Topology:     s.topology.String(),
		InFormat:     string(req.In.Format),
		InWidth:      g.inWidth,
		InHeight:     g.inHeight,
		OutFormat:    string(req.Out.Format),
		OutWidth:     g.outWidth,
		OutHeight:    g.outHeight,
		Timestamp:    timestamp(),
	})
	return nil
}

// link builds input -> [resize] -> output -> terminal and configures every
// pad along it.
func (s *Session) link(g geometry) error {
	l := &linker{graph: s.graph, logger: s.logger}

	inEnt, err := l.entity(s.ip + " " + s.input.entity)
	if err != nil {
		return err
	}
	outEnt, err := l.entity(s.ip + " " + s.output.entity)
	if err != nil {
		return err
	}

	if err := l.deactivate(inEnt); err != nil {
		return err
	}

	topology := decideTopology(g)
	// code arriving at the output entity's sink pad
	var outSinkCode uint32

	switch topology {
	case TopologyResize:
		path, err := s.backend.FindSubdev(s.ip, resizeEntity)
		if err != nil {
			return newError(ErrCodeDeviceNotFound, StageResize, err, "no subdevice for %s %s", s.ip, resizeEntity)
		}
		sd, err := s.backend.OpenSubdev(path)
		if err != nil {
			return newError(ErrCodeDeviceNotFound, StageResize, err, "cannot open %s", path)
		}
		s.resize = sd
		s.resizePath = path

		rszEnt, err := l.entity(s.ip + " " + resizeEntity)
		if err != nil {
			return err
		}
		if err := l.activate(inEnt, rszEnt); err != nil {
			return err
		}
		if err := l.activate(rszEnt, outEnt); err != nil {
			return err
		}

		if _, err := configurePad(sd, StageResize, padSink, g.inWidth, g.inHeight, g.in.code); err != nil {
			return err
		}
		outSinkCode, err = configurePad(sd, StageResize, padSource, g.outWidth, g.outHeight, g.out.code)
		if err != nil {
			return err
		}
	default:
		if err := l.activate(inEnt, outEnt); err != nil {
			return err
		}
	}

	terminal, err := s.backend.NodeName(s.output.path)
	if err != nil {
		return newError(ErrCodeEntityNotFound, StageOutput, err, "cannot read entity name of %s", s.output.path)
	}
	termEnt, err := l.entity(terminal)
	if err != nil {
		return err
	}
	if err := l.activate(outEnt, termEnt); err != nil {
		return err
	}

	in, out := s.input, s.output
	if _, err := configurePad(in.subdev, in.name, padSink, g.inWidth, g.inHeight, g.in.code); err != nil {
		return err
	}
	inSourceCode, err := configurePad(in.subdev, in.name, padSource, g.inWidth, g.inHeight, g.in.code)
	if err != nil {
		return err
	}
	if topology == TopologyDirect {
		outSinkCode = inSourceCode
	}
	if _, err := configurePad(out.subdev, out.name, padSink, g.outWidth, g.outHeight, outSinkCode); err != nil {
		return err
	}
	if _, err := configurePad(out.subdev, out.name, padSource, g.outWidth, g.outHeight, g.out.code); err != nil {
		return err
	}

	s.topology = topology
	return nil
}

// Teardown stops streaming and closes every device. Stop failures are
// logged only. The Session may be set up again afterwards.
func (s *Session) Teardown() {
	wasOpen := s.opened || s.broken != nil

	if s.streaming {
		for _, st := range []*stage{s.input, s.output} {
			if err := st.node.StreamOff(st.bufType); err != nil {
				s.logger.Warn("STREAMOFF failed", "stage", st.name, "path", st.path, "error", err)
			}
		}
	}

	if s.resize != nil {
		if err := s.resize.Close(); err != nil {
			s.logger.Warn("Failed to close subdevice", "stage", StageResize, "path", s.resizePath, "error", err)
		}
	}
	s.input.close(s.logger)
	s.output.close(s.logger)
	if s.graph != nil {
		if err := s.graph.Close(); err != nil {
			s.logger.Warn("Failed to close media device", "path", s.graph.Path(), "error", err)
		}
	}

	if wasOpen {
		s.logger.Info("Session closed", "frames", s.converted, "failed", s.failed)
		s.publish(events.SessionClosedEvent{
			FramesConverted: s.converted,
			FramesFailed:    s.failed,
			Timestamp:       timestamp(),
		})
	}
	s.reset()
}

func (s *Session) markBroken(err error) {
	s.broken = err
	s.logger.Error("Session setup failed", "error", err)
	s.publish(events.SetupFailedEvent{
		Code:      string(CodeOf(err)),
		Stage:     stageOf(err),
		Error:     err.Error(),
		Timestamp: timestamp(),
	})
}

// SetupCount returns how many times the one-time link setup has run.
func (s *Session) SetupCount() int { return s.setupCount }

// Linked reports whether the graph has been linked.
func (s *Session) Linked() bool { return s.linked }

// Streaming reports whether both queues are streaming.
func (s *Session) Streaming() bool { return s.streaming }

// Topology returns the topology chosen at link time.
func (s *Session) Topology() Topology { return s.topology }

// Err returns the setup error that broke the Session, if any.
func (s *Session) Err() error { return s.broken }

// Status is a snapshot of a Session.
type Status struct {
	IPName          string      `json:"ip_name" example:"fe9a0000.vsp1" doc:"IP block name"`
	Opened          bool        `json:"opened" doc:"Devices are open"`
	Linked          bool        `json:"linked" doc:"Graph is linked"`
	Streaming       bool        `json:"streaming" doc:"Queues are streaming"`
	Topology        string      `json:"topology" example:"resize" doc:"direct, resize or none"`
	SetupCount      int         `json:"setup_count" doc:"Link setup runs"`
	FramesConverted uint64      `json:"frames_converted" doc:"Frames converted"`
	FramesFailed    uint64      `json:"frames_failed" doc:"Frames failed"`
	Error           string      `json:"error,omitempty" doc:"Setup error"`
	ErrorCode       ErrorCode   `json:"error_code,omitempty" doc:"Setup error code"`
	Stages          []StageInfo `json:"stages" doc:"Located stages"`
	ResizeSubdev    string      `json:"resize_subdev,omitempty" doc:"Scaler subdevice"`
	MediaDevice     string      `json:"media_device,omitempty" example:"/dev/media0" doc:"Media controller node"`
}

// Status returns a snapshot of the Session.
func (s *Session) Status() Status {
	st := Status{
		IPName:          s.ip,
		Opened:          s.opened,
		Linked:          s.linked,
		Streaming:       s.streaming,
		Topology:        s.topology.String(),
		SetupCount:      s.setupCount,
		FramesConverted: s.converted,
		FramesFailed:    s.failed,
		Stages:          []StageInfo{s.input.info(s.ip), s.output.info(s.ip)},
		ResizeSubdev:    s.resizePath,
	}
	if s.graph != nil {
		st.MediaDevice = s.graph.Path()
	}
	if s.broken != nil {
		st.Error = s.broken.Error()
		st.ErrorCode = CodeOf(s.broken)
	}
	return st
}

// Graph lists the entities and links of the media device.
func (s *Session) Graph() ([]GraphEntity, error) {
	if err := s.Setup(); err != nil {
		return nil, err
	}
	return describe(s.graph)
}

func (s *Session) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func stageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func sum(v []uint32) uint64 {
	var n uint64
	for _, x := range v {
		n += uint64(x)
	}
	return n
}
