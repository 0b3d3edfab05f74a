//go:build linux

// Package media provides pure Go bindings to the Linux media-controller API:
// entity and link enumeration and link setup on /dev/mediaN nodes.
//
// Typical use resolves entities by name and toggles links between them:
//
//	path, _ := media.FindDevice("fe9a0000.vsp1")
//	dev, _ := media.Open(path)
//	rpf, _ := dev.EntityByName("fe9a0000.vsp1 rpf.0")
//	links, _ := dev.Links(rpf)
//	for _, l := range links {
//	    if l.Enabled() && !l.Immutable() {
//	        _ = dev.SetupLink(l.WithEnabled(false))
//	    }
//	}
package media

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open media-controller node.
type Device struct {
	path string
	fd   int
}

// Open opens a media device node.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// FindDevice returns the /dev/mediaN node registered by a platform device.
func FindDevice(platformName string) (string, error) {
	return findDeviceIn("/sys/devices/platform", platformName)
}

func findDeviceIn(root, platformName string) (string, error) {
	for i := 0; i < 256; i++ {
		node := fmt.Sprintf("media%d", i)
		if _, err := os.Stat(filepath.Join(root, platformName, node)); err == nil {
			return "/dev/" + node, nil
		}
	}
	return "", fmt.Errorf("no media device for %s: %w", platformName, os.ErrNotExist)
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Close closes the device. Calling Close more than once is safe.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// Info issues MEDIA_IOC_DEVICE_INFO.
func (d *Device) Info() (Info, error) {
	raw := mediaDeviceInfo{}
	if err := ioctl(d.fd, mediaIocDeviceInfo, unsafe.Pointer(&raw)); err != nil {
		return Info{}, err
	}
	return Info{
		Driver:        cstr(raw.driver[:]),
		Model:         cstr(raw.model[:]),
		Serial:        cstr(raw.serial[:]),
		BusInfo:       cstr(raw.busInfo[:]),
		MediaVersion:  raw.mediaVersion,
		HWRevision:    raw.hwRevision,
		DriverVersion: raw.driverVersion,
	}, nil
}

// Entities enumerates every entity of the graph in id order.
func (d *Device) Entities() ([]Entity, error) {
	var entities []Entity
	id := uint32(0)
	for {
		desc := mediaEntityDesc{id: id | EntIDFlagNext}
		if err := ioctl(d.fd, mediaIocEnumEntities, unsafe.Pointer(&desc)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break
			}
			return nil, fmt.Errorf("enumerate entities after %d: %w", id, err)
		}
		entities = append(entities, desc.entity())
		id = desc.id
	}
	return entities, nil
}

// EntityByID looks an entity up by its id.
func (d *Device) EntityByID(id uint32) (Entity, error) {
	desc := mediaEntityDesc{id: id}
	if err := ioctl(d.fd, mediaIocEnumEntities, unsafe.Pointer(&desc)); err != nil {
		return Entity{}, fmt.Errorf("entity %d: %w", id, err)
	}
	return desc.entity(), nil
}

// EntityByName returns the entity whose name matches exactly.
func (d *Device) EntityByName(name string) (Entity, error) {
	entities, err := d.Entities()
	if err != nil {
		return Entity{}, err
	}
	for _, e := range entities {
		if e.Name == name {
			return e, nil
		}
	}
	return Entity{}, fmt.Errorf("entity %q: %w", name, os.ErrNotExist)
}

// Links returns the outgoing links of an entity, i.e. links leaving one of
// its source pads. Pad flags are filled in from the same enumeration.
func (d *Device) Links(e Entity) ([]Link, error) {
	var pads []mediaPadDesc
	var links []mediaLinkDesc

	enum := mediaLinksEnum{entity: e.ID}
	if e.Pads > 0 {
		pads = make([]mediaPadDesc, e.Pads)
		enum.pads = unsafe.Pointer(&pads[0])
	}
	if e.Links > 0 {
		links = make([]mediaLinkDesc, e.Links)
		enum.links = unsafe.Pointer(&links[0])
	}

	if err := ioctl(d.fd, mediaIocEnumLinks, unsafe.Pointer(&enum)); err != nil {
		return nil, fmt.Errorf("enumerate links of %s: %w", e.Name, err)
	}

	var out []Link
	for _, raw := range links {
		l := raw.link()
		if l.Source.Entity != e.ID {
			continue
		}
		if int(l.Source.Index) < len(pads) {
			l.Source.Flags = pads[l.Source.Index].flags
		}
		if !l.Source.IsSource() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// SetupLink applies the flags of l to the matching link in the graph.
func (d *Device) SetupLink(l Link) error {
	raw := linkDesc(l)
	return ioctl(d.fd, mediaIocSetupLink, unsafe.Pointer(&raw))
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
