package vsp

import (
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// Pad indices of the VSP entities.
const (
	padSink   uint32 = 0
	padSource uint32 = 1
)

// configurePad pushes one active pad format, progressive and sRGB. The
// driver may substitute the bus code (a scaler forwards its sink code); the
// applied code is returned. Any geometry adjustment is a rejection.
func configurePad(sd Subdev, stage string, pad, width, height, code uint32) (uint32, error) {
	f := v4l2.PadFormat{
		Pad:        pad,
		Width:      width,
		Height:     height,
		Code:       code,
		Field:      v4l2.FieldNone,
		Colorspace: v4l2.ColorspaceSRGB,
	}
	if err := sd.SetPadFormat(&f); err != nil {
		return 0, newError(ErrCodePadConfigRejected, stage, err,
			"%s pad %d rejected %dx%d code 0x%04x", sd.Path(), pad, width, height, code)
	}
	if f.Width != width || f.Height != height {
		return 0, newError(ErrCodePadConfigRejected, stage, nil,
			"%s pad %d adjusted %dx%d to %dx%d", sd.Path(), pad, width, height, f.Width, f.Height)
	}
	return f.Code, nil
}
