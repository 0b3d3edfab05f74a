package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Driver     string
	BusInfo    string
	Caps       uint32
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// EffectiveCaps returns the per-node capabilities when the driver reports
// them, falling back to the physical device capabilities.
func (c Capability) EffectiveCaps() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Has reports whether every bit of mask is present in the effective caps.
func (c Capability) Has(mask uint32) bool {
	return c.EffectiveCaps()&mask == mask
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// PlaneFormat describes the memory layout of one plane as reported by the driver.
type PlaneFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
}

// PixFormat is the multi-planar image format exchanged with TRY_FMT and S_FMT.
// Planes is filled in by the driver on return.
type PixFormat struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Field       uint32
	Colorspace  uint32
	Planes      []PlaneFormat
}

// Plane is one memory region queued to or dequeued from a buffer queue.
// Data is used for user pointer memory, FD for DMABUF memory.
type Plane struct {
	Data      []byte
	FD        int
	Length    uint32
	BytesUsed uint32
}

// PadFormat is the media bus format of a subdevice pad.
type PadFormat struct {
	Pad        uint32
	Width      uint32
	Height     uint32
	Code       uint32
	Field      uint32
	Colorspace uint32
}

// Capability flags.
const (
	CapVideoCapture       = 0x00000001
	CapVideoCaptureMplane = 0x00001000
	CapVideoOutputMplane  = 0x00002000
	CapVideoM2MMplane     = 0x00004000
	CapStreaming          = 0x04000000
	CapDeviceCaps         = 0x80000000
)

// Format flags.
const (
	v4l2FmtFlagEmulated = 0x0002
)

// Buffer types.
const (
	BufTypeVideoCapture       uint32 = 1
	BufTypeVideoCaptureMplane uint32 = 9
	BufTypeVideoOutputMplane  uint32 = 10
)

// Memory types.
const (
	MemoryMMAP    uint32 = 1
	MemoryUserPtr uint32 = 2
	MemoryDMABuf  uint32 = 4
)

// Field orders and colorspaces.
const (
	FieldNone      uint32 = 1
	ColorspaceSRGB uint32 = 8
)

// SubdevFormatActive selects the active (not try) subdevice format.
const SubdevFormatActive uint32 = 1

// MaxPlanes is VIDEO_MAX_PLANES.
const MaxPlanes = 8

// Fourcc builds a V4L2 pixel format code.
func Fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats.
var (
	PixFmtRGB565  = Fourcc('R', 'G', 'B', 'P')
	PixFmtRGB24   = Fourcc('R', 'G', 'B', '3')
	PixFmtBGR24   = Fourcc('B', 'G', 'R', '3')
	PixFmtRGB32   = Fourcc('R', 'G', 'B', '4')
	PixFmtBGR32   = Fourcc('B', 'G', 'R', '4')
	PixFmtYUV420M = Fourcc('Y', 'M', '1', '2')
	PixFmtYVU420M = Fourcc('Y', 'M', '2', '1')
	PixFmtNV12M   = Fourcc('N', 'M', '1', '2')
	PixFmtNV21M   = Fourcc('N', 'M', '2', '1')
	PixFmtNV16M   = Fourcc('N', 'M', '1', '6')
	PixFmtUYVY    = Fourcc('U', 'Y', 'V', 'Y')
	PixFmtYUYV    = Fourcc('Y', 'U', 'Y', 'V')
)

// Media bus codes.
const (
	MbusFmtARGB8888 uint32 = 0x100d // MEDIA_BUS_FMT_ARGB8888_1X32
	MbusFmtAYUV8    uint32 = 0x2017 // MEDIA_BUS_FMT_AYUV8_1X32
)

// IsOutput reports whether a buffer type feeds data into the device.
func IsOutput(bufType uint32) bool {
	return bufType == BufTypeVideoOutputMplane
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}
