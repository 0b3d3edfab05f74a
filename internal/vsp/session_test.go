package vsp

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/pkg/linuxav/media"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

func TestConvert_DirectTopology(t *testing.T) {
	tests := []struct {
		name   string
		in     Format
		out    Format
		width  int
		height int
	}{
		{name: "I420 to UYVY", in: FormatI420, out: FormatUYVY, width: 640, height: 480},
		{name: "NV12 to BGRA", in: FormatNV12, out: FormatBGRA, width: 1920, height: 1080},
		{name: "YUY2 to RGB16", in: FormatYUY2, out: FormatRGB16, width: 320, height: 240},
		{name: "same format", in: FormatUYVY, out: FormatUYVY, width: 1280, height: 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			s := newTestSession(b)
			defer s.Teardown()

			res, err := s.Convert(context.Background(), request(tt.in, tt.width, tt.height, tt.out, tt.width, tt.height))
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if res.Topology != TopologyDirect || s.Topology() != TopologyDirect {
				t.Errorf("topology = %v, want direct", res.Topology)
			}
			if n := b.openCount("/dev/v4l-subdev1"); n != 0 {
				t.Errorf("resize subdevice opened %d times, want 0", n)
			}
			if !b.graph.link("rpf.0", "wpf.0").Enabled() {
				t.Error("rpf.0 -> wpf.0 not enabled")
			}
			if b.graph.link("rpf.0", "uds.0").Enabled() {
				t.Error("rpf.0 -> uds.0 enabled in direct topology")
			}
			if !b.graph.link("wpf.0", "wpf.0 output").Enabled() {
				t.Error("terminal link not enabled")
			}
			if !s.Linked() {
				t.Error("session not linked")
			}
		})
	}
}

func TestConvert_ResizeTopology(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	res, err := s.Convert(context.Background(), request(FormatI420, 1280, 720, FormatUYVY, 640, 480))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Topology != TopologyResize {
		t.Fatalf("topology = %v, want resize", res.Topology)
	}
	if n := b.openCount("/dev/v4l-subdev1"); n != 1 {
		t.Errorf("resize subdevice opened %d times, want 1", n)
	}

	if !b.graph.link("rpf.0", "uds.0").Enabled() || !b.graph.link("uds.0", "wpf.0").Enabled() {
		t.Error("input -> resize -> output not enabled")
	}
	if b.graph.link("rpf.0", "wpf.0").Enabled() {
		t.Error("direct link enabled in resize topology")
	}

	uds := b.subdev("uds.0")
	sink, source := uds.pads[padSink], uds.pads[padSource]
	if sink.Width != 1280 || sink.Height != 720 {
		t.Errorf("resize sink = %dx%d, want 1280x720", sink.Width, sink.Height)
	}
	if source.Width != 640 || source.Height != 480 {
		t.Errorf("resize source = %dx%d, want 640x480", source.Width, source.Height)
	}
	if sink.Code != v4l2.MbusFmtAYUV8 || source.Code != v4l2.MbusFmtAYUV8 {
		t.Errorf("resize codes = 0x%x/0x%x", sink.Code, source.Code)
	}
	if sink.Field != v4l2.FieldNone || sink.Colorspace != v4l2.ColorspaceSRGB {
		t.Errorf("resize sink field/colorspace = %d/%d", sink.Field, sink.Colorspace)
	}

	if w := b.node("/dev/video1").committed.Width; w != 640 {
		t.Errorf("committed capture width = %d, want 640", w)
	}
	if f := b.node("/dev/video0").committed; f.PixelFormat != v4l2.PixFmtYUV420M || len(f.Planes) != 3 {
		t.Errorf("input committed %s with %d planes", v4l2.FormatFourCC(f.PixelFormat), len(f.Planes))
	}
}

func TestConvert_PadCodes(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	// direct RGB -> YUV: the output entity converts
	if _, err := s.Convert(context.Background(), request(FormatBGRA, 640, 480, FormatNV12, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	rpf, wpf := b.subdev("rpf.0"), b.subdev("wpf.0")
	if rpf.pads[padSink].Code != v4l2.MbusFmtARGB8888 || rpf.pads[padSource].Code != v4l2.MbusFmtARGB8888 {
		t.Errorf("rpf codes = 0x%x/0x%x", rpf.pads[padSink].Code, rpf.pads[padSource].Code)
	}
	if wpf.pads[padSink].Code != v4l2.MbusFmtARGB8888 {
		t.Errorf("wpf sink code = 0x%x, want rpf source code", wpf.pads[padSink].Code)
	}
	if wpf.pads[padSource].Code != v4l2.MbusFmtAYUV8 {
		t.Errorf("wpf source code = 0x%x, want AYUV", wpf.pads[padSource].Code)
	}
}

func TestConvert_ResizeForwardsAppliedCode(t *testing.T) {
	b := newFakeBackend()
	// the scaler keeps its sink code on the source pad
	uds := b.subdev("uds.0")
	uds.adjust = func(f *v4l2.PadFormat) {
		if f.Pad == padSource {
			f.Code = uds.pads[padSink].Code
		}
	}
	s := newTestSession(b)
	defer s.Teardown()

	if _, err := s.Convert(context.Background(), request(FormatBGRA, 640, 480, FormatNV12, 320, 240)); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if code := b.subdev("wpf.0").pads[padSink].Code; code != v4l2.MbusFmtARGB8888 {
		t.Errorf("wpf sink code = 0x%x, want the code applied on the scaler source", code)
	}
}

func TestConvert_StrideRule(t *testing.T) {
	tests := []struct {
		name      string
		inW       int
		outW      int
		stride    int
		wantWidth uint32
		wantTopo  Topology
	}{
		{name: "no stride", inW: 1280, outW: 640, stride: 0, wantWidth: 640, wantTopo: TopologyResize},
		{name: "packed stride", inW: 1280, outW: 640, stride: 1280, wantWidth: 640, wantTopo: TopologyResize},
		{name: "wide stride", inW: 1280, outW: 640, stride: 1600, wantWidth: 800, wantTopo: TopologyResize},
		{name: "stride forces resize", inW: 640, outW: 640, stride: 1600, wantWidth: 800, wantTopo: TopologyResize},
		{name: "stride matches input", inW: 800, outW: 640, stride: 1600, wantWidth: 800, wantTopo: TopologyDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			s := newTestSession(b)
			defer s.Teardown()

			req := request(FormatI420, tt.inW, 480, FormatUYVY, tt.outW, 480)
			req.OutStride = tt.stride
			res, err := s.Convert(context.Background(), req)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if w := b.node("/dev/video1").committed.Width; w != tt.wantWidth {
				t.Errorf("committed capture width = %d, want %d", w, tt.wantWidth)
			}
			if res.Topology != tt.wantTopo {
				t.Errorf("topology = %v, want %v", res.Topology, tt.wantTopo)
			}
			if tt.wantTopo == TopologyResize {
				if w := b.subdev("uds.0").pads[padSource].Width; w != tt.wantWidth {
					t.Errorf("resize source width = %d, want %d", w, tt.wantWidth)
				}
			}
			if w := b.subdev("wpf.0").pads[padSink].Width; w != tt.wantWidth {
				t.Errorf("output sink width = %d, want %d", w, tt.wantWidth)
			}
		})
	}
}

func TestConvert_NarrowStrideRejected(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	req := request(FormatI420, 640, 480, FormatUYVY, 640, 480)
	req.OutStride = 1000
	_, err := s.Convert(context.Background(), req)
	if !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("err = %v, want UNSUPPORTED_GEOMETRY", err)
	}
	if b.log.count("SETUP_LINK") != 0 {
		t.Error("graph touched for a rejected request")
	}
}

func TestConvert_RejectedRequestKeepsSessionUsable(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(b *fakeBackend)
		bad     func() Request
		wantErr error
	}{
		{
			name: "narrow stride",
			bad: func() Request {
				req := request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)
				req.OutStride = 100
				return req
			},
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "unknown format",
			bad: func() Request {
				return Request{In: Frame{Format: "P010", Width: 64, Height: 64}, Out: Frame{Format: FormatUYVY, Width: 64, Height: 64}}
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "trial rejected",
			setup: func(b *fakeBackend) {
				b.node("/dev/video1").tryAdjust = func(f *v4l2.PixFormat) { f.Width &^= 15 }
			},
			bad:     func() Request { return request(FormatUYVY, 641, 480, FormatUYVY, 641, 480) },
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "multi-plane dmabuf capture",
			bad: func() Request {
				in, _ := AllocPlanes(FormatUYVY, 640, 480)
				return Request{
					In:  Frame{Format: FormatUYVY, Width: 640, Height: 480, Buffers: UserPlanes(in...)},
					Out: Frame{Format: FormatNV12, Width: 640, Height: 480, Buffers: DMABuf(7)},
				}
			},
			wantErr: ErrQueueRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			if tt.setup != nil {
				tt.setup(b)
			}
			s := newTestSession(b)
			defer s.Teardown()
			ctx := context.Background()

			if _, err := s.Convert(ctx, tt.bad()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("first Convert err = %v, want %v", err, tt.wantErr)
			}
			if s.Err() != nil || s.Linked() {
				t.Fatalf("rejected request changed the session: err %v, linked %v", s.Err(), s.Linked())
			}
			if b.log.count("SETUP_LINK") != 0 {
				t.Error("graph touched for a rejected request")
			}

			if _, err := s.Convert(ctx, request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); err != nil {
				t.Fatalf("valid Convert after rejection: %v", err)
			}
			if !s.Linked() || s.Topology() != TopologyDirect {
				t.Errorf("linked %v, topology %v", s.Linked(), s.Topology())
			}
			if s.SetupCount() != 2 {
				t.Errorf("SetupCount = %d, want 2", s.SetupCount())
			}
		})
	}
}

func TestConvert_CommitFailureBreaksSession(t *testing.T) {
	b := newFakeBackend()
	b.node("/dev/video1").setErr = syscall.EBUSY
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()

	if _, err := s.Convert(ctx, request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("err = %v, want UNSUPPORTED_GEOMETRY", err)
	}
	b.node("/dev/video1").setErr = nil
	if _, err := s.Convert(ctx, request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Errorf("broken session returned %v, want the recorded setup error", err)
	}
	if s.Err() == nil {
		t.Error("commit failure did not break the session")
	}
}

func TestConvert_SetupRunsOnce(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()

	if _, err := s.Convert(ctx, request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	ops := b.log.topologyOps()

	// different geometry, same plane layout: the linked topology stays
	if _, err := s.Convert(ctx, request(FormatI420, 640, 480, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if s.SetupCount() != 1 {
		t.Errorf("SetupCount = %d, want 1", s.SetupCount())
	}
	if s.Topology() != TopologyResize {
		t.Errorf("topology changed to %v", s.Topology())
	}
	if got := b.log.topologyOps(); got != ops {
		t.Errorf("second Convert made %d topology calls", got-ops)
	}
}

func TestConvert_RepeatedRequest(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()
	req := request(FormatNV12, 1920, 1080, FormatRGB, 1280, 720)

	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	ops := b.log.topologyOps()
	qbufs := b.log.count("QBUF")

	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if got := b.log.topologyOps(); got != ops {
		t.Errorf("second Convert made %d topology calls, want 0", got-ops)
	}
	if got := b.log.count("QBUF") - qbufs; got != 2 {
		t.Errorf("second Convert queued %d buffers, want 2", got)
	}
}

func TestConvert_TopologyConflictBreaksSession(t *testing.T) {
	b := newFakeBackend()
	// a fixed path the linker may not clear
	b.graph.setLink("rpf.0", "bru", media.LinkFlEnabled|media.LinkFlImmutable)
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()
	req := request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)

	_, err := s.Convert(ctx, req)
	if !errors.Is(err, ErrTopologyConflict) {
		t.Fatalf("err = %v, want TOPOLOGY_CONFLICT", err)
	}
	if s.Linked() {
		t.Error("session linked after failed setup")
	}

	_, again := s.Convert(ctx, req)
	if again != err {
		t.Errorf("second Convert = %v, want recorded setup error", again)
	}
	if s.SetupCount() != 1 {
		t.Errorf("SetupCount = %d, want 1", s.SetupCount())
	}
	if st := s.Status(); st.ErrorCode != ErrCodeTopologyConflict {
		t.Errorf("status error code = %q", st.ErrorCode)
	}
}

func TestConvert_StaleChainDeactivated(t *testing.T) {
	b := newFakeBackend()
	// left over from a previous user: rpf.0 -> bru -> wpf.0
	b.graph.setLink("rpf.0", "bru", media.LinkFlEnabled)
	b.graph.setLink("bru", "wpf.0", media.LinkFlEnabled)
	s := newTestSession(b)
	defer s.Teardown()

	if _, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if b.graph.link("rpf.0", "bru").Enabled() || b.graph.link("bru", "wpf.0").Enabled() {
		t.Error("stale chain still enabled")
	}
	if !b.graph.link("rpf.0", "wpf.0").Enabled() {
		t.Error("direct link not enabled")
	}
}

func TestConvert_StreamOnOnce(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()
	req := request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)
	out := b.node("/dev/video1")

	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !s.Streaming() {
		t.Fatal("not streaming after first frame")
	}

	out.waitReady = false
	if _, err := s.Convert(ctx, req); !errors.Is(err, ErrConversionTimeout) {
		t.Fatalf("err = %v, want CONVERSION_TIMEOUT", err)
	}
	if !s.Streaming() {
		t.Error("timeout changed streaming state")
	}

	out.waitReady = true
	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("Convert after timeout: %v", err)
	}

	if in := b.node("/dev/video0"); in.streamOns != 1 || out.streamOns != 1 {
		t.Errorf("STREAMON count = %d/%d, want 1/1", in.streamOns, out.streamOns)
	}
}

func TestConvert_TimeoutBeforeStreaming(t *testing.T) {
	b := newFakeBackend()
	b.node("/dev/video1").waitReady = false
	s := newTestSession(b)
	defer s.Teardown()

	_, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480))
	if !HasCode(err, ErrCodeConversionTimeout) {
		t.Fatalf("err = %v, want CONVERSION_TIMEOUT", err)
	}
	if !s.Linked() {
		t.Error("timeout unlinked the session")
	}
	if s.Err() != nil {
		t.Errorf("timeout broke the session: %v", s.Err())
	}
}

func TestConvert_QueueFailureBeforeStreaming(t *testing.T) {
	b := newFakeBackend()
	in := b.node("/dev/video0")
	in.qbufErr = syscall.EINVAL
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()
	req := request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)

	if _, err := s.Convert(ctx, req); !errors.Is(err, ErrQueueRequestFailed) {
		t.Fatalf("err = %v, want QUEUE_REQUEST_FAILED", err)
	}
	if s.Streaming() {
		t.Error("streaming after failed submission")
	}

	in.qbufErr = nil
	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !s.Streaming() || in.streamOns != 1 {
		t.Errorf("streaming=%v streamOns=%d, want true/1", s.Streaming(), in.streamOns)
	}
}

func TestConvert_WaitError(t *testing.T) {
	b := newFakeBackend()
	b.node("/dev/video1").waitErr = syscall.EIO
	s := newTestSession(b)
	defer s.Teardown()

	_, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480))
	if !errors.Is(err, ErrConversionIO) {
		t.Fatalf("err = %v, want CONVERSION_IO_ERROR", err)
	}
	if !errors.Is(err, syscall.EIO) {
		t.Error("cause not preserved")
	}
}

func TestConvert_Dequeue(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "would block is success", err: syscall.EAGAIN},
		{name: "io error fails frame", err: syscall.EIO, wantErr: ErrConversionIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.node("/dev/video1").dqbufErr = tt.err
			s := newTestSession(b)
			defer s.Teardown()

			_, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConvert_DequeueOrder(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	if _, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	var order []string
	for _, op := range b.log.ops {
		switch op {
		case "QBUF /dev/video0", "QBUF /dev/video1", "STREAMON /dev/video0", "STREAMON /dev/video1",
			"POLL /dev/video1", "DQBUF /dev/video1", "DQBUF /dev/video0":
			order = append(order, op)
		}
	}
	want := []string{
		"QBUF /dev/video0", "QBUF /dev/video1",
		"STREAMON /dev/video0", "STREAMON /dev/video1",
		"POLL /dev/video1",
		"DQBUF /dev/video1", "DQBUF /dev/video0",
	}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestConvert_DMABufCapture(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()
	ctx := context.Background()

	in, err := AllocPlanes(FormatNV12, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{
		In:  Frame{Format: FormatNV12, Width: 640, Height: 480, Buffers: UserPlanes(in...)},
		Out: Frame{Format: FormatBGRA, Width: 640, Height: 480, Buffers: DMABuf(42)},
	}
	if _, err := s.Convert(ctx, req); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	out := b.node("/dev/video1")
	if out.memory != v4l2.MemoryDMABuf {
		t.Errorf("capture memory = %d, want DMABUF", out.memory)
	}
	queued := out.queued[len(out.queued)-1]
	if len(queued) != 1 || queued[0].FD != 42 {
		t.Errorf("queued planes = %+v", queued)
	}

	// the memory type is fixed by the first request
	req.Out.Buffers = UserPlanes(make([]byte, 640*480*4))
	if _, err := s.Convert(ctx, req); !errors.Is(err, ErrQueueRequestFailed) {
		t.Errorf("err = %v, want QUEUE_REQUEST_FAILED", err)
	}
}

func TestConvert_DMABufNeedsSinglePlane(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	in, _ := AllocPlanes(FormatUYVY, 640, 480)
	req := Request{
		In:  Frame{Format: FormatUYVY, Width: 640, Height: 480, Buffers: UserPlanes(in...)},
		Out: Frame{Format: FormatNV12, Width: 640, Height: 480, Buffers: DMABuf(7)},
	}
	if _, err := s.Convert(context.Background(), req); !errors.Is(err, ErrQueueRequestFailed) {
		t.Fatalf("err = %v, want QUEUE_REQUEST_FAILED", err)
	}
}

func TestConvert_PlaneCountMismatch(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	req := request(FormatI420, 640, 480, FormatUYVY, 640, 480)
	req.In.Buffers.Planes = req.In.Buffers.Planes[:2]
	if _, err := s.Convert(context.Background(), req); !errors.Is(err, ErrQueueRequestFailed) {
		t.Fatalf("err = %v, want QUEUE_REQUEST_FAILED", err)
	}
}

func TestConvert_FormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(b *fakeBackend)
		req     Request
		wantErr error
	}{
		{
			name:    "unknown format",
			req:     Request{In: Frame{Format: "P010", Width: 64, Height: 64}, Out: Frame{Format: FormatUYVY, Width: 64, Height: 64}},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "trial rejected",
			setup:   func(b *fakeBackend) { b.node("/dev/video0").tryErr = syscall.EINVAL },
			req:     request(FormatI420, 640, 480, FormatUYVY, 640, 480),
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name: "trial adjusted",
			setup: func(b *fakeBackend) {
				b.node("/dev/video1").tryAdjust = func(f *v4l2.PixFormat) { f.Width &^= 15 }
			},
			req:     request(FormatI420, 641, 480, FormatUYVY, 641, 480),
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name:    "commit rejected",
			setup:   func(b *fakeBackend) { b.node("/dev/video1").setErr = syscall.EBUSY },
			req:     request(FormatI420, 640, 480, FormatUYVY, 640, 480),
			wantErr: ErrUnsupportedGeometry,
		},
		{
			name:    "buffer request rejected",
			setup:   func(b *fakeBackend) { b.node("/dev/video0").reqErr = syscall.ENOMEM },
			req:     request(FormatI420, 640, 480, FormatUYVY, 640, 480),
			wantErr: ErrQueueRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			if tt.setup != nil {
				tt.setup(b)
			}
			s := newTestSession(b)
			defer s.Teardown()

			_, err := s.Convert(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if b.log.count("SETUP_LINK") != 0 {
				t.Error("graph touched before formats were accepted")
			}
		})
	}
}

func TestConvert_PadRejected(t *testing.T) {
	b := newFakeBackend()
	// unsupported scale ratio: the scaler clamps its output
	b.subdev("uds.0").adjust = func(f *v4l2.PadFormat) {
		if f.Pad == padSource && f.Width < 100 {
			f.Width = 100
		}
	}
	s := newTestSession(b)
	defer s.Teardown()

	_, err := s.Convert(context.Background(), request(FormatUYVY, 1920, 1080, FormatUYVY, 32, 32))
	if !errors.Is(err, ErrPadConfigRejected) {
		t.Fatalf("err = %v, want PAD_CONFIG_REJECTED", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Stage != StageResize {
		t.Errorf("stage = %q, want %q", e.Stage, StageResize)
	}
}

func TestConvert_ResizeEntityMissing(t *testing.T) {
	b := newFakeBackend()
	delete(b.subdevName, "/dev/v4l-subdev1")
	s := newTestSession(b)
	defer s.Teardown()

	_, err := s.Convert(context.Background(), request(FormatUYVY, 1280, 720, FormatUYVY, 640, 480))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("err = %v, want DEVICE_NOT_FOUND", err)
	}
	if s.Linked() {
		t.Error("session linked after failed setup")
	}
}

func TestConvert_TerminalMissing(t *testing.T) {
	b := newFakeBackend()
	b.nodeNames["/dev/video1"] = testIP + " wpf.3 output"
	s := newTestSession(b)
	defer s.Teardown()

	_, err := s.Convert(context.Background(), request(FormatUYVY, 640, 480, FormatUYVY, 640, 480))
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("err = %v, want ENTITY_NOT_FOUND", err)
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Convert(ctx, request(FormatUYVY, 640, 480, FormatUYVY, 640, 480)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(b.opened) != 0 {
		t.Error("devices opened for a canceled request")
	}
}

func TestValidate(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	if err := s.Validate(request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.Linked() || b.log.count("S_FMT") != 0 || b.log.count("SETUP_LINK") != 0 {
		t.Error("Validate changed device state")
	}
	if b.log.count("TRY_FMT") != 2 {
		t.Errorf("TRY_FMT count = %d, want 2", b.log.count("TRY_FMT"))
	}

	b.node("/dev/video1").tryErr = syscall.EINVAL
	if err := s.Validate(request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Errorf("err = %v, want UNSUPPORTED_GEOMETRY", err)
	}
	if s.Err() != nil {
		t.Error("failed validation broke the session")
	}
}

func TestTeardown(t *testing.T) {
	b := newFakeBackend()
	bus := events.New()
	closed := make(chan events.SessionClosedEvent, 2)
	unsub := bus.Subscribe(func(e events.SessionClosedEvent) { closed <- e })
	defer unsub()

	s := newTestSession(b)
	s.bus = bus

	if _, err := s.Convert(context.Background(), request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	s.Teardown()

	in, out := b.node("/dev/video0"), b.node("/dev/video1")
	if in.streamOffs != 1 || out.streamOffs != 1 {
		t.Errorf("STREAMOFF = %d/%d, want 1/1", in.streamOffs, out.streamOffs)
	}
	if !in.closed || !out.closed || !b.graph.closed {
		t.Error("devices left open")
	}
	for _, name := range []string{"rpf.0", "uds.0", "wpf.0"} {
		if !b.subdev(name).closed {
			t.Errorf("subdevice %s left open", name)
		}
	}
	if s.Linked() || s.Streaming() || s.SetupCount() != 0 {
		t.Error("state not reset")
	}

	s.Teardown()
	if in.streamOffs != 1 {
		t.Error("second Teardown stopped streaming again")
	}

	select {
	case e := <-closed:
		if e.FramesConverted != 1 {
			t.Errorf("FramesConverted = %d, want 1", e.FramesConverted)
		}
	case <-time.After(time.Second):
		t.Fatal("no SessionClosedEvent")
	}
	select {
	case <-closed:
		t.Error("second Teardown published again")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSessionEvents(t *testing.T) {
	b := newFakeBackend()
	bus := events.New()
	ch := make(chan any, 16)
	unsub := events.SubscribeAll(bus, ch)
	defer unsub()

	s := newTestSession(b)
	s.bus = bus
	defer s.Teardown()

	if _, err := s.Convert(context.Background(), request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	seen := map[uint32]bool{}
	deadline := time.After(time.Second)
	for !(seen[events.TypeSessionLinked] && seen[events.TypeStreamingStarted] && seen[events.TypeFrameConverted]) {
		select {
		case e := <-ch:
			if linked, ok := e.(events.SessionLinkedEvent); ok {
				if linked.Topology != "resize" || linked.OutWidth != 640 {
					t.Errorf("linked event = %+v", linked)
				}
			}
			seen[e.(events.Event).Type()] = true
		case <-deadline:
			t.Fatalf("events seen: %v", seen)
		}
	}
}

func TestStatus(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	if _, err := s.Convert(context.Background(), request(FormatI420, 1280, 720, FormatUYVY, 640, 480)); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	st := s.Status()
	if st.IPName != testIP || st.Topology != "resize" || st.FramesConverted != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.ResizeSubdev != "/dev/v4l-subdev1" {
		t.Errorf("resize subdev = %q", st.ResizeSubdev)
	}
	if len(st.Stages) != 2 || st.Stages[0].Entity != testIP+" rpf.0" || st.Stages[1].Width != 640 {
		t.Errorf("stages = %+v", st.Stages)
	}
}

func TestGraph(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Teardown()

	entities, err := s.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(entities) != 6 {
		t.Fatalf("entities = %d, want 6", len(entities))
	}
	rpf := entities[1]
	if rpf.Name != testIP+" rpf.0" || len(rpf.Links) != 3 {
		t.Errorf("rpf.0 = %+v", rpf)
	}
	if rpf.Links[0].Sink != testIP+" uds.0" {
		t.Errorf("first rpf.0 link sink = %q", rpf.Links[0].Sink)
	}
}
