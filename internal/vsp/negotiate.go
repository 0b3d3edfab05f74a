package vsp

import (
	"errors"

	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// geometry is the negotiated description of one conversion.
type geometry struct {
	in, out             formatInfo
	inWidth, inHeight   uint32
	outWidth, outHeight uint32
}

// resolveGeometry maps a request onto hardware formats. The output width is
// the logical width: a caller stride wider than the frame cannot be passed
// to the driver, so the stride expressed in pixels is committed instead.
func resolveGeometry(req Request) (geometry, error) {
	in, err := lookupFormat(req.In.Format)
	if err != nil {
		return geometry{}, withStage(err, StageInput)
	}
	out, err := lookupFormat(req.Out.Format)
	if err != nil {
		return geometry{}, withStage(err, StageOutput)
	}

	if req.In.Width <= 0 || req.In.Height <= 0 {
		return geometry{}, newError(ErrCodeUnsupportedGeometry, StageInput, nil,
			"invalid frame size %dx%d", req.In.Width, req.In.Height)
	}
	if req.Out.Width <= 0 || req.Out.Height <= 0 {
		return geometry{}, newError(ErrCodeUnsupportedGeometry, StageOutput, nil,
			"invalid frame size %dx%d", req.Out.Width, req.Out.Height)
	}

	width, err := logicalWidth(req.Out.Width, req.OutStride, out.pixelStride)
	if err != nil {
		return geometry{}, err
	}

	return geometry{
		in:        in,
		out:       out,
		inWidth:   uint32(req.In.Width),
		inHeight:  uint32(req.In.Height),
		outWidth:  uint32(width),
		outHeight: uint32(req.Out.Height),
	}, nil
}

// logicalWidth applies the stride rule: a positive stride gives
// stride/pixelStride, otherwise the nominal width stands.
func logicalWidth(width, stride, pixelStride int) (int, error) {
	if stride <= 0 {
		return width, nil
	}
	logical := stride / pixelStride
	if logical < width {
		return 0, newError(ErrCodeUnsupportedGeometry, StageOutput, nil,
			"stride %d is narrower than %d pixels of %d bytes", stride, width, pixelStride)
	}
	return logical, nil
}

func withStage(err error, stage string) error {
	var e *Error
	if errors.As(err, &e) && e.Stage == "" {
		e.Stage = stage
	}
	return err
}

func (st *stage) pixFormat(f formatInfo, width, height uint32) v4l2.PixFormat {
	return v4l2.PixFormat{
		Width:       width,
		Height:      height,
		PixelFormat: f.fourcc,
		Field:       v4l2.FieldNone,
		Planes:      make([]v4l2.PlaneFormat, f.planes),
	}
}

// try issues TRY_FMT. A driver that adjusts the pixel format or geometry
// would not convert what was asked, so adjustment counts as rejection.
func (st *stage) try(f formatInfo, width, height uint32) error {
	pix := st.pixFormat(f, width, height)
	if err := st.node.TryFormat(st.bufType, &pix); err != nil {
		return newError(ErrCodeUnsupportedGeometry, st.name, err,
			"%s rejected %s %dx%d", st.path, v4l2.FormatFourCC(f.fourcc), width, height)
	}
	if pix.PixelFormat != f.fourcc || pix.Width != width || pix.Height != height {
		return newError(ErrCodeUnsupportedGeometry, st.name, nil,
			"%s adjusted %s %dx%d to %s %dx%d", st.path,
			v4l2.FormatFourCC(f.fourcc), width, height,
			v4l2.FormatFourCC(pix.PixelFormat), pix.Width, pix.Height)
	}
	return nil
}

// commit issues S_FMT and requests a single buffer of the given memory
// type. The driver's per-plane stride and size are recorded.
func (st *stage) commit(f formatInfo, width, height, memory uint32) error {
	pix := st.pixFormat(f, width, height)
	if err := st.node.SetFormat(st.bufType, &pix); err != nil {
		return newError(ErrCodeUnsupportedGeometry, st.name, err,
			"%s refused %s %dx%d", st.path, v4l2.FormatFourCC(f.fourcc), width, height)
	}
	if pix.PixelFormat != f.fourcc {
		return newError(ErrCodeUnsupportedGeometry, st.name, nil,
			"%s committed %s instead of %s", st.path,
			v4l2.FormatFourCC(pix.PixelFormat), v4l2.FormatFourCC(f.fourcc))
	}

	st.format = f
	st.width = pix.Width
	st.height = pix.Height
	st.planes = pix.Planes
	st.memory = memory

	granted, err := st.node.RequestBuffers(st.bufType, memory, 1)
	if err != nil {
		return newError(ErrCodeQueueRequestFailed, st.name, err, "%s: REQBUFS failed", st.path)
	}
	if granted < 1 {
		return newError(ErrCodeQueueRequestFailed, st.name, nil, "%s granted no buffers", st.path)
	}
	return nil
}
