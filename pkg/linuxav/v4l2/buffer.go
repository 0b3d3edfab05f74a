//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RequestBuffers allocates count buffers of the given memory type on a queue
// and returns the number the driver granted.
func (d *Device) RequestBuffers(bufType, memory, count uint32) (uint32, error) {
	req := v4l2RequestBuffers{
		count:  count,
		typ:    bufType,
		memory: memory,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

// QueueBuffer enqueues buffer index 0 built from planes.
// The memory behind user pointer planes must stay alive until the buffer
// has been dequeued.
func (d *Device) QueueBuffer(bufType, memory uint32, planes []Plane) error {
	raw, err := rawPlanes(bufType, memory, planes)
	if err != nil {
		return err
	}

	buf := v4l2Buffer{
		typ:    bufType,
		memory: memory,
		planes: unsafe.Pointer(&raw[0]),
		length: uint32(len(raw)),
	}
	err = ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(raw)
	runtime.KeepAlive(planes)
	return err
}

// DequeueBuffer dequeues a buffer. The raw errno is returned so callers can
// tell EAGAIN (nothing ready on a non-blocking node) from real failures.
func (d *Device) DequeueBuffer(bufType, memory uint32, planes []Plane) error {
	if len(planes) == 0 || len(planes) > MaxPlanes {
		return fmt.Errorf("invalid plane count %d", len(planes))
	}
	raw := make([]v4l2Plane, len(planes))

	buf := v4l2Buffer{
		typ:    bufType,
		memory: memory,
		planes: unsafe.Pointer(&raw[0]),
		length: uint32(len(raw)),
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return err
	}
	for i := range planes {
		planes[i].BytesUsed = raw[i].bytesused
	}
	return nil
}

// StreamOn starts streaming on a queue.
func (d *Device) StreamOn(bufType uint32) error {
	typ := int32(bufType)
	return ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ))
}

// StreamOff stops streaming on a queue and releases queued buffers.
func (d *Device) StreamOff(bufType uint32) error {
	typ := int32(bufType)
	return ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
}

// WaitReadable blocks until the node has a buffer ready to dequeue or the
// timeout elapses. It returns false on timeout. Interrupted polls are
// resumed with the remaining time.
func (d *Device) WaitReadable(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}

	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		n, err := unix.Poll(fds, int(remaining.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("poll %s: revents 0x%x: %w", d.path, fds[0].Revents, unix.EIO)
		}
		return true, nil
	}
}

func rawPlanes(bufType, memory uint32, planes []Plane) ([]v4l2Plane, error) {
	if len(planes) == 0 || len(planes) > MaxPlanes {
		return nil, fmt.Errorf("invalid plane count %d", len(planes))
	}

	raw := make([]v4l2Plane, len(planes))
	for i, p := range planes {
		switch memory {
		case MemoryUserPtr:
			if len(p.Data) == 0 {
				return nil, fmt.Errorf("plane %d has no memory", i)
			}
			raw[i].setUserPtr(uintptr(unsafe.Pointer(&p.Data[0])))
			raw[i].length = uint32(len(p.Data))
		case MemoryDMABuf:
			raw[i].setFD(p.FD)
			raw[i].length = p.Length
		default:
			return nil, fmt.Errorf("unsupported memory type %d", memory)
		}

		raw[i].bytesused = p.BytesUsed
		if IsOutput(bufType) && raw[i].bytesused == 0 {
			raw[i].bytesused = raw[i].length
		}
	}
	return raw, nil
}
