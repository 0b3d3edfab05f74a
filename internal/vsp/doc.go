// Package vsp drives a VSP-style colorspace and scale converter exposed by
// the kernel as a media-controller graph plus a pair of multi-planar V4L2
// memory-to-memory queues.
//
// A Session locates the input (output-direction) and output
// (capture-direction) video nodes of one IP block, negotiates formats on
// the first conversion request, links
//
//	input entity -> [uds.0] -> output entity -> terminal
//
// and then runs one queue/wait/dequeue cycle per frame. Topology is decided
// once per Session and never revisited.
//
//	s := vsp.NewSession(vsp.Options{InputDevice: "/dev/video0", OutputDevice: "/dev/video1"})
//	defer s.Teardown()
//	res, err := s.Convert(ctx, vsp.Request{
//		In:  vsp.Frame{Format: vsp.FormatI420, Width: 1280, Height: 720, Buffers: vsp.UserPlanes(y, u, v)},
//		Out: vsp.Frame{Format: vsp.FormatUYVY, Width: 640, Height: 480, Buffers: vsp.UserPlanes(out)},
//	})
//
// Errors are *Error values carrying an ErrorCode; use errors.Is with the
// Err* sentinels or HasCode to branch on them.
package vsp
