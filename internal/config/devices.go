package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Device override file.
const (
	DeviceFileName   = "vspfilter.conf"
	DeviceFileDirEnv = EnvPrefix + "CONFIG_DIR"
	DefaultConfigDir = "/etc"

	keyInputDevice  = "input-device="
	keyOutputDevice = "output-device="
)

// Default device nodes of the first VSP instance.
const (
	DefaultInputDevice  = "/dev/video0"
	DefaultOutputDevice = "/dev/video1"
)

// AutoDevice as a device path asks the session to scan for a node with the
// stage's capabilities.
const AutoDevice = "auto"

// DeviceFile is the content of the override file. Empty means not set.
type DeviceFile struct {
	InputDevice  string
	OutputDevice string
}

// DeviceFilePath returns $VSPFILTER_CONFIG_DIR/vspfilter.conf, /etc when unset.
func DeviceFilePath() string {
	dir := os.Getenv(DeviceFileDirEnv)
	if dir == "" {
		dir = DefaultConfigDir
	}
	return filepath.Join(dir, DeviceFileName)
}

// ParseDeviceFile reads input-device=<path> and output-device=<path> lines.
// Unknown lines are ignored and the last occurrence of a key wins.
func ParseDeviceFile(r io.Reader) (DeviceFile, error) {
	var f DeviceFile
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, keyInputDevice):
			f.InputDevice = strings.TrimSpace(line[len(keyInputDevice):])
		case strings.HasPrefix(line, keyOutputDevice):
			f.OutputDevice = strings.TrimSpace(line[len(keyOutputDevice):])
		}
	}
	if err := sc.Err(); err != nil {
		return DeviceFile{}, fmt.Errorf("failed to read device file: %w", err)
	}
	return f, nil
}

// LoadDeviceFile parses the file at path. A missing file yields an empty
// DeviceFile and no error.
func LoadDeviceFile(path string) (DeviceFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DeviceFile{}, nil
		}
		return DeviceFile{}, err
	}
	defer fh.Close()
	return ParseDeviceFile(fh)
}

// ResolveDevicePaths picks the device node of each stage. Explicit values
// win over the file, the file over the defaults. "auto" resolves to "",
// which the session treats as scan.
func ResolveDevicePaths(input, output string, file DeviceFile) (string, string) {
	pick := func(explicit, fromFile, def string) string {
		p := def
		switch {
		case explicit != "":
			p = explicit
		case fromFile != "":
			p = fromFile
		}
		if strings.EqualFold(p, AutoDevice) {
			return ""
		}
		return p
	}
	return pick(input, file.InputDevice, DefaultInputDevice),
		pick(output, file.OutputDevice, DefaultOutputDevice)
}
