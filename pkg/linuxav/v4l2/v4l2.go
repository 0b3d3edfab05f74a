//go:build linux

// Package v4l2 provides pure Go bindings to the multi-planar Video4Linux2
// (V4L2) API used by memory-to-memory converters: capability queries,
// format negotiation, buffer queueing, streaming and subdevice pad formats.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover video nodes exposing a capability:
//
//	devices, err := v4l2.FindDevices(v4l2.CapVideoCaptureMplane)
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Format Negotiation
//
// Query a format without committing it, then commit it:
//
//	dev, _ := v4l2.Open("/dev/video1")
//	f := v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtUYVY, Field: v4l2.FieldNone}
//	if err := dev.TryFormat(v4l2.BufTypeVideoCaptureMplane, &f); err != nil {
//	    // geometry rejected
//	}
//	_ = dev.SetFormat(v4l2.BufTypeVideoCaptureMplane, &f)
//	fmt.Println(f.Planes[0].BytesPerLine)
//
// # Buffer Exchange
//
// User pointer buffers are queued, streaming is started once and the
// capture queue is polled before dequeueing:
//
//	_ = dev.QueueBuffer(v4l2.BufTypeVideoCaptureMplane, v4l2.MemoryUserPtr, planes)
//	_ = dev.StreamOn(v4l2.BufTypeVideoCaptureMplane)
//	ready, _ := dev.WaitReadable(2 * time.Second)
//
// # Subdevices
//
// Pad formats are pushed through v4l-subdev nodes:
//
//	path, _ := v4l2.FindSubdev("fe928000.vsp1", "uds.0")
//	sd, _ := v4l2.OpenSubdev(path)
//	_ = sd.SetPadFormat(&v4l2.PadFormat{Pad: 0, Width: 1280, Height: 720, Code: v4l2.MbusFmtAYUV8})
package v4l2
