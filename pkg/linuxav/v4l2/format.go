//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// EnumFormats returns all pixel formats a queue of the given buffer type supports.
func (d *Device) EnumFormats(bufType uint32) ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   bufType,
		}

		if ioctlErr := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); ioctlErr != nil {
			if errors.Is(ioctlErr, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, ioctlErr)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&v4l2FmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// TryFormat asks the driver whether f would be accepted without committing it.
// On success f is updated with the adjusted format.
func (d *Device) TryFormat(bufType uint32, f *PixFormat) error {
	return d.format(vidiocTryFmt, bufType, f)
}

// SetFormat commits f. On success f carries the driver's authoritative
// per-plane stride and image size.
func (d *Device) SetFormat(bufType uint32, f *PixFormat) error {
	return d.format(vidiocSFmt, bufType, f)
}

// GetFormat reads back the current format.
func (d *Device) GetFormat(bufType uint32) (PixFormat, error) {
	var f PixFormat
	err := d.format(vidiocGFmt, bufType, &f)
	return f, err
}

func (d *Device) format(req uint, bufType uint32, f *PixFormat) error {
	raw := v4l2Format{typ: bufType, pix: f.toRaw()}
	if err := ioctl(d.fd, req, unsafe.Pointer(&raw)); err != nil {
		return err
	}
	f.fromRaw(&raw.pix)
	return nil
}
