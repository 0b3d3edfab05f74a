//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"
)

// Subdev is an open v4l-subdev node.
type Subdev struct {
	path string
	fd   int
}

// OpenSubdev opens a subdevice node.
func OpenSubdev(path string) (*Subdev, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return &Subdev{path: path, fd: fd}, nil
}

// Path returns the subdevice node path.
func (s *Subdev) Path() string { return s.path }

// SetPadFormat sets the active media bus format of one pad. On success f
// holds the format the driver applied.
func (s *Subdev) SetPadFormat(f *PadFormat) error {
	raw := f.toRaw()
	if err := ioctl(s.fd, vidiocSubdevSFmt, unsafe.Pointer(&raw)); err != nil {
		return err
	}
	f.Width = raw.format.width
	f.Height = raw.format.height
	f.Code = raw.format.code
	f.Field = raw.format.field
	f.Colorspace = raw.format.colorspace
	return nil
}

// PadFormat reads the active format of a pad.
func (s *Subdev) PadFormat(pad uint32) (PadFormat, error) {
	raw := v4l2SubdevFormat{which: SubdevFormatActive, pad: pad}
	if err := ioctl(s.fd, vidiocSubdevGFmt, unsafe.Pointer(&raw)); err != nil {
		return PadFormat{}, err
	}
	return PadFormat{
		Pad:        pad,
		Width:      raw.format.width,
		Height:     raw.format.height,
		Code:       raw.format.code,
		Field:      raw.format.field,
		Colorspace: raw.format.colorspace,
	}, nil
}

// Close closes the subdevice. Calling Close more than once is safe.
func (s *Subdev) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := close(s.fd)
	s.fd = -1
	return err
}
