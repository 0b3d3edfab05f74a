//go:build linux

package v4l2

import "unsafe"

// Compile-time struct size assertions for layouts shared by all architectures.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2PlanePixFormat{})]byte{}
	_ [192]byte = [unsafe.Sizeof(v4l2PixFormatMplane{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2MbusFramefmt{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2SubdevFormat{})]byte{}
)

// IOCTL constants whose argument size does not depend on the architecture.
const (
	vidiocQuerycap   = 0x80685600
	vidiocEnumFmt    = 0xc0405602
	vidiocReqbufs    = 0xc0145608
	vidiocStreamon   = 0x40045612
	vidiocStreamoff  = 0x40045613
	vidiocSubdevGFmt = 0xc0585604
	vidiocSubdevSFmt = 0xc0585605
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2PlanePixFormat is packed in the kernel; all members are naturally aligned here.
type v4l2PlanePixFormat struct {
	sizeimage    uint32    // offset 0
	bytesperline uint32    // offset 4
	reserved     [6]uint16 // offset 8
}

// v4l2PixFormatMplane has size 192 bytes.
type v4l2PixFormatMplane struct {
	width        uint32                        // offset 0
	height       uint32                        // offset 4
	pixelformat  uint32                        // offset 8
	field        uint32                        // offset 12
	colorspace   uint32                        // offset 16
	planeFmt     [MaxPlanes]v4l2PlanePixFormat // offset 20
	numPlanes    uint8                         // offset 180
	flags        uint8                         // offset 181
	ycbcrEnc     uint8                         // offset 182
	quantization uint8                         // offset 183
	xferFunc     uint8                         // offset 184
	reserved     [7]uint8                      // offset 185
}

// v4l2RequestBuffers has size 20 bytes.
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2MbusFramefmt has size 48 bytes.
type v4l2MbusFramefmt struct {
	width        uint32     // offset 0
	height       uint32     // offset 4
	code         uint32     // offset 8
	field        uint32     // offset 12
	colorspace   uint32     // offset 16
	ycbcrEnc     uint16     // offset 20
	quantization uint16     // offset 22
	xferFunc     uint16     // offset 24
	flags        uint16     // offset 26
	reserved     [10]uint16 // offset 28
}

// v4l2SubdevFormat has size 88 bytes.
type v4l2SubdevFormat struct {
	which    uint32           // offset 0
	pad      uint32           // offset 4
	format   v4l2MbusFramefmt // offset 8
	stream   uint32           // offset 56
	reserved [7]uint32        // offset 60
}

func (f *PixFormat) toRaw() v4l2PixFormatMplane {
	raw := v4l2PixFormatMplane{
		width:       f.Width,
		height:      f.Height,
		pixelformat: f.PixelFormat,
		field:       f.Field,
		colorspace:  f.Colorspace,
		numPlanes:   uint8(len(f.Planes)),
	}
	for i, p := range f.Planes {
		if i >= MaxPlanes {
			break
		}
		raw.planeFmt[i].sizeimage = p.SizeImage
		raw.planeFmt[i].bytesperline = p.BytesPerLine
	}
	return raw
}

func (f *PixFormat) fromRaw(raw *v4l2PixFormatMplane) {
	f.Width = raw.width
	f.Height = raw.height
	f.PixelFormat = raw.pixelformat
	f.Field = raw.field
	f.Colorspace = raw.colorspace

	n := int(raw.numPlanes)
	if n > MaxPlanes {
		n = MaxPlanes
	}
	f.Planes = make([]PlaneFormat, n)
	for i := 0; i < n; i++ {
		f.Planes[i] = PlaneFormat{
			SizeImage:    raw.planeFmt[i].sizeimage,
			BytesPerLine: raw.planeFmt[i].bytesperline,
		}
	}
}

func (f *PadFormat) toRaw() v4l2SubdevFormat {
	return v4l2SubdevFormat{
		which: SubdevFormatActive,
		pad:   f.Pad,
		format: v4l2MbusFramefmt{
			width:      f.Width,
			height:     f.Height,
			code:       f.Code,
			field:      f.Field,
			colorspace: f.Colorspace,
		},
	}
}
