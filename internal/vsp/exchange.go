package vsp

import (
	"errors"
	"syscall"
	"time"

	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// captureWaitTimeout bounds the wait for a converted frame.
const captureWaitTimeout = 2 * time.Second

// FrameBuffers is the memory of one frame: user planes, or a single DMABUF
// handle for zero-copy capture.
type FrameBuffers struct {
	Planes [][]byte
	FD     int
	dmabuf bool
}

// UserPlanes wraps one byte slice per plane.
func UserPlanes(planes ...[]byte) FrameBuffers {
	return FrameBuffers{Planes: planes, FD: -1}
}

// DMABuf wraps an exported dmabuf file descriptor.
func DMABuf(fd int) FrameBuffers {
	return FrameBuffers{FD: fd, dmabuf: true}
}

// IsDMABuf reports whether the buffers are a dmabuf handle.
func (b FrameBuffers) IsDMABuf() bool { return b.dmabuf }

func (b FrameBuffers) memory() uint32 {
	if b.dmabuf {
		return v4l2.MemoryDMABuf
	}
	return v4l2.MemoryUserPtr
}

// planesFor builds the queue descriptors of b for a committed stage.
func (st *stage) planesFor(b FrameBuffers) ([]v4l2.Plane, error) {
	if b.memory() != st.memory {
		return nil, newError(ErrCodeQueueRequestFailed, st.name, nil,
			"queue was set up for memory type %d, frame uses %d", st.memory, b.memory())
	}

	if b.dmabuf {
		if b.FD < 0 {
			return nil, newError(ErrCodeQueueRequestFailed, st.name, nil, "invalid dmabuf fd %d", b.FD)
		}
		return []v4l2.Plane{{FD: b.FD, Length: st.planes[0].SizeImage}}, nil
	}

	if len(b.Planes) != st.format.planes {
		return nil, newError(ErrCodeQueueRequestFailed, st.name, nil,
			"frame has %d planes, format needs %d", len(b.Planes), st.format.planes)
	}
	planes := make([]v4l2.Plane, len(b.Planes))
	for i, p := range b.Planes {
		if len(p) == 0 {
			return nil, newError(ErrCodeQueueRequestFailed, st.name, nil, "plane %d is empty", i)
		}
		planes[i] = v4l2.Plane{Data: p}
	}
	return planes, nil
}

// exchange runs one queue/stream/wait/dequeue cycle.
func (s *Session) exchange(req Request) (Result, error) {
	in, out := s.input, s.output

	inPlanes, err := in.planesFor(req.In.Buffers)
	if err != nil {
		return Result{}, err
	}
	outPlanes, err := out.planesFor(req.Out.Buffers)
	if err != nil {
		return Result{}, err
	}

	if err := in.node.QueueBuffer(in.bufType, in.memory, inPlanes); err != nil {
		return Result{}, newError(ErrCodeQueueRequestFailed, in.name, err, "%s: QBUF failed", in.path)
	}
	if err := out.node.QueueBuffer(out.bufType, out.memory, outPlanes); err != nil {
		return Result{}, newError(ErrCodeQueueRequestFailed, out.name, err, "%s: QBUF failed", out.path)
	}

	if !s.streaming {
		if err := s.streamOn(); err != nil {
			return Result{}, err
		}
	}

	ready, err := out.node.WaitReadable(captureWaitTimeout)
	if err != nil {
		return Result{}, newError(ErrCodeConversionIO, out.name, err, "%s: wait failed", out.path)
	}
	if !ready {
		return Result{}, newError(ErrCodeConversionTimeout, out.name, nil,
			"%s: no frame within %s", out.path, captureWaitTimeout)
	}

	if err := dequeue(out, outPlanes); err != nil {
		return Result{}, err
	}
	if err := dequeue(in, inPlanes); err != nil {
		return Result{}, err
	}

	res := Result{
		Topology:  s.topology,
		Width:     out.width,
		Height:    out.height,
		BytesUsed: make([]uint32, len(outPlanes)),
	}
	for i, p := range outPlanes {
		res.BytesUsed[i] = p.BytesUsed
	}
	return res, nil
}

// dequeue takes the buffer back. Nothing ready is not an error.
func dequeue(st *stage, planes []v4l2.Plane) error {
	err := st.node.DequeueBuffer(st.bufType, st.memory, planes)
	if err == nil || errors.Is(err, syscall.EAGAIN) {
		return nil
	}
	return newError(ErrCodeConversionIO, st.name, err, "%s: DQBUF failed", st.path)
}

// streamOn starts both queues, output direction first. It runs once per
// Session; a half-started pair is stopped again.
func (s *Session) streamOn() error {
	in, out := s.input, s.output
	if err := in.node.StreamOn(in.bufType); err != nil {
		return newError(ErrCodeQueueRequestFailed, in.name, err, "%s: STREAMON failed", in.path)
	}
	if err := out.node.StreamOn(out.bufType); err != nil {
		if offErr := in.node.StreamOff(in.bufType); offErr != nil {
			s.logger.Warn("Failed to stop input queue", "path", in.path, "error", offErr)
		}
		return newError(ErrCodeQueueRequestFailed, out.name, err, "%s: STREAMON failed", out.path)
	}

	s.streaming = true
	s.logger.Info("Streaming started", "input", in.path, "output", out.path)
	s.publish(events.StreamingStartedEvent{
		InputDevice:  in.path,
		OutputDevice: out.path,
		Timestamp:    timestamp(),
	})
	return nil
}
