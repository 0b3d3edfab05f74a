//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocGFmt   = 0xc0d05604
	vidiocSFmt   = 0xc0d05605
	vidiocTryFmt = 0xc0d05640
	vidiocQbuf   = 0xc058560f
	vidiocDqbuf  = 0xc0585611
)

// v4l2Format has size 208 bytes; the union is 8-byte aligned on 64-bit.
type v4l2Format struct {
	typ uint32              // offset 0
	_   [4]byte             // padding
	pix v4l2PixFormatMplane // offset 8 (union fmt, 200 bytes)
	_   [8]byte             // rest of the union
}

// v4l2Plane has size 64 bytes.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint64     // offset 8 - union of mem_offset, userptr, fd
	dataOffset uint32     // offset 16
	reserved   [11]uint32 // offset 20
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index     uint32         // offset 0
	typ       uint32         // offset 4
	bytesused uint32         // offset 8
	flags     uint32         // offset 12
	field     uint32         // offset 16
	_         [4]byte        // padding
	timestamp [16]byte       // offset 24 - struct timeval
	timecode  v4l2Timecode   // offset 40
	sequence  uint32         // offset 56
	memory    uint32         // offset 60
	planes    unsafe.Pointer // offset 64 - union m, planes for mplane types
	length    uint32         // offset 72
	reserved2 uint32         // offset 76
	requestFD int32          // offset 80
	_         [4]byte        // padding to 88
}

func (p *v4l2Plane) setUserPtr(addr uintptr) { p.m = uint64(addr) }

func (p *v4l2Plane) setFD(fd int) { p.m = uint64(uint32(int32(fd))) }
