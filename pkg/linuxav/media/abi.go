//go:build linux

package media

import "unsafe"

// Kernel struct layouts from include/uapi/linux/media.h.
// mediaLinksEnum carries two user pointers, so its size and therefore the
// ENUM_LINKS request number differ between 32-bit and 64-bit builds.

type mediaDeviceInfo struct {
	driver        [16]byte
	model         [32]byte
	serial        [40]byte
	busInfo       [32]byte
	mediaVersion  uint32
	hwRevision    uint32
	driverVersion uint32
	reserved      [31]uint32
}

type mediaEntityDesc struct {
	id       uint32
	name     [32]byte
	typ      uint32
	revision uint32
	flags    uint32
	groupID  uint32
	pads     uint16
	links    uint16
	reserved [4]uint32
	dev      [184]byte // union; dev.major and dev.minor are its first two words
}

type mediaPadDesc struct {
	entity   uint32
	index    uint16
	flags    uint32
	reserved [2]uint32
}

type mediaLinkDesc struct {
	source   mediaPadDesc
	sink     mediaPadDesc
	flags    uint32
	reserved [2]uint32
}

type mediaLinksEnum struct {
	entity   uint32
	pads     unsafe.Pointer
	links    unsafe.Pointer
	reserved [4]uint32
}

const (
	iocWrite = 1
	iocRead  = 2
)

func iowr(nr, size uintptr) uint {
	return uint((iocRead|iocWrite)<<30 | size<<16 | uintptr('|')<<8 | nr)
}

var (
	mediaIocDeviceInfo   = iowr(0x00, unsafe.Sizeof(mediaDeviceInfo{}))
	mediaIocEnumEntities = iowr(0x01, unsafe.Sizeof(mediaEntityDesc{}))
	mediaIocEnumLinks    = iowr(0x02, unsafe.Sizeof(mediaLinksEnum{}))
	mediaIocSetupLink    = iowr(0x03, unsafe.Sizeof(mediaLinkDesc{}))
)

// Compile-time layout checks.
var (
	_ [256 - unsafe.Sizeof(mediaDeviceInfo{})]struct{}
	_ [unsafe.Sizeof(mediaDeviceInfo{}) - 256]struct{}
	_ [256 - unsafe.Sizeof(mediaEntityDesc{})]struct{}
	_ [unsafe.Sizeof(mediaEntityDesc{}) - 256]struct{}
	_ [20 - unsafe.Sizeof(mediaPadDesc{})]struct{}
	_ [unsafe.Sizeof(mediaPadDesc{}) - 20]struct{}
	_ [52 - unsafe.Sizeof(mediaLinkDesc{})]struct{}
	_ [unsafe.Sizeof(mediaLinkDesc{}) - 52]struct{}
)

func (d *mediaEntityDesc) entity() Entity {
	dev := (*[2]uint32)(unsafe.Pointer(&d.dev[0]))
	return Entity{
		ID:    d.id,
		Name:  cstr(d.name[:]),
		Type:  d.typ,
		Flags: d.flags,
		Pads:  d.pads,
		Links: d.links,
		Major: dev[0],
		Minor: dev[1],
	}
}

func (p *mediaPadDesc) pad() Pad {
	return Pad{Entity: p.entity, Index: p.index, Flags: p.flags}
}

func (l *mediaLinkDesc) link() Link {
	return Link{Source: l.source.pad(), Sink: l.sink.pad(), Flags: l.flags}
}

func padDesc(p Pad) mediaPadDesc {
	return mediaPadDesc{entity: p.Entity, index: p.Index, flags: p.Flags}
}

func linkDesc(l Link) mediaLinkDesc {
	return mediaLinkDesc{source: padDesc(l.Source), sink: padDesc(l.Sink), flags: l.Flags}
}
