//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [60]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM.
// The format, plane and buffer structs shrink because unsigned long,
// pointers and struct timeval are 4 bytes wide.
const (
	vidiocGFmt   = 0xc0cc5604
	vidiocSFmt   = 0xc0cc5605
	vidiocTryFmt = 0xc0cc5640
	vidiocQbuf   = 0xc044560f
	vidiocDqbuf  = 0xc0445611
)

// v4l2Format - size 204 bytes
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormatMplane
	_   [8]byte
}

// v4l2Plane - size 60 bytes
type v4l2Plane struct {
	bytesused  uint32
	length     uint32
	m          uint32
	dataOffset uint32
	reserved   [11]uint32
}

// v4l2Buffer - size 68 bytes
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp [8]byte // struct timeval - 8 bytes on 32-bit
	timecode  v4l2Timecode
	sequence  uint32
	memory    uint32
	planes    unsafe.Pointer
	length    uint32
	reserved2 uint32
	requestFD int32
}

func (p *v4l2Plane) setUserPtr(addr uintptr) { p.m = uint32(addr) }

func (p *v4l2Plane) setFD(fd int) { p.m = uint32(int32(fd)) }
