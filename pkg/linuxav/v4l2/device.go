//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"
)

const sysfsVideo4Linux = "/sys/class/video4linux"

// Device is an open V4L2 video node.
type Device struct {
	path string
	fd   int
}

// Open opens a V4L2 video node for non-blocking I/O.
// The path must name a character device.
func Open(path string) (*Device, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot identify %s: %w", path, err)
	}
	if st.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%s is no device", path)
	}

	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Fd returns the underlying file descriptor, or -1 once closed.
func (d *Device) Fd() int { return d.fd }

// Close closes the device. Calling Close more than once is safe.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := close(d.fd)
	d.fd = -1
	return err
}

// QueryCap issues VIDIOC_QUERYCAP.
func (d *Device) QueryCap() (Capability, error) {
	raw := v4l2Capability{}
	if err := ioctl(d.fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, err
	}
	return Capability{
		Driver:       cstr(raw.driver[:]),
		Card:         cstr(raw.card[:]),
		BusInfo:      cstr(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}, nil
}

// FindDevices finds all V4L2 video nodes whose effective capabilities
// include every bit of required. Nodes are returned in index order.
func FindDevices(required uint32) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsVideo4Linux)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "video") {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return nodeIndex(names[i], "video") < nodeIndex(names[j], "video")
	})

	var devices []DeviceInfo

	for _, name := range names {
		devicePath := "/dev/" + name

		dev, err := Open(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}

		caps, err := dev.QueryCap()
		dev.Close()
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}

		if !caps.Has(required) {
			continue
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: caps.Card,
			Driver:     caps.Driver,
			BusInfo:    caps.BusInfo,
			Caps:       caps.EffectiveCaps(),
		})
	}

	return devices, nil
}

// NodeName returns the driver-exposed name of a video4linux node, e.g. the
// media entity name of a video device.
func NodeName(devicePath string) (string, error) {
	return nodeNameIn(sysfsVideo4Linux, devicePath)
}

func nodeNameIn(root, devicePath string) (string, error) {
	path := filepath.Join(root, filepath.Base(devicePath), "name")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// FindSubdev returns the /dev path of the first v4l-subdev whose name starts
// with prefix (when non-empty) and contains target.
func FindSubdev(prefix, target string) (string, error) {
	return findSubdevIn(sysfsVideo4Linux, prefix, target)
}

func findSubdevIn(root, prefix, target string) (string, error) {
	for i := 0; i < 256; i++ {
		node := fmt.Sprintf("v4l-subdev%d", i)
		data, err := os.ReadFile(filepath.Join(root, node, "name"))
		if err != nil {
			break
		}
		name := strings.TrimRight(string(data), "\n")
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.Contains(name, target) {
			return "/dev/" + node, nil
		}
	}
	return "", fmt.Errorf("no subdevice for %q %q: %w", prefix, target, os.ErrNotExist)
}

// nodeIndex extracts N from names like "video12".
func nodeIndex(name, prefix string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return -1
	}
	return n
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
