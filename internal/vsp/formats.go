package vsp

import (
	"sort"
	"strings"

	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// Format is an abstract pixel format name.
type Format string

// Supported formats.
const (
	FormatRGB16 Format = "RGB16"
	FormatRGB   Format = "RGB"
	FormatBGR   Format = "BGR"
	FormatARGB  Format = "ARGB"
	FormatXRGB  Format = "xRGB"
	FormatBGRA  Format = "BGRA"
	FormatBGRX  Format = "BGRx"
	FormatI420  Format = "I420"
	FormatYV12  Format = "YV12"
	FormatNV12  Format = "NV12"
	FormatNV21  Format = "NV21"
	FormatNV16  Format = "NV16"
	FormatUYVY  Format = "UYVY"
	FormatYUY2  Format = "YUY2"
)

// formatInfo is the hardware description of a Format. pixelStride is the
// byte distance between horizontally adjacent pixels of plane 0.
type formatInfo struct {
	fourcc      uint32
	code        uint32
	planes      int
	pixelStride int
	// chroma subsampling of planes 1..n
	hsub, vsub int
}

var formatTable = map[Format]formatInfo{
	FormatRGB16: {fourcc: v4l2.PixFmtRGB565, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 2},
	FormatRGB:   {fourcc: v4l2.PixFmtRGB24, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 3},
	FormatBGR:   {fourcc: v4l2.PixFmtBGR24, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 3},
	FormatARGB:  {fourcc: v4l2.PixFmtRGB32, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 4},
	FormatXRGB:  {fourcc: v4l2.PixFmtRGB32, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 4},
	FormatBGRA:  {fourcc: v4l2.PixFmtBGR32, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 4},
	FormatBGRX:  {fourcc: v4l2.PixFmtBGR32, code: v4l2.MbusFmtARGB8888, planes: 1, pixelStride: 4},
	FormatI420:  {fourcc: v4l2.PixFmtYUV420M, code: v4l2.MbusFmtAYUV8, planes: 3, pixelStride: 1, hsub: 2, vsub: 2},
	FormatYV12:  {fourcc: v4l2.PixFmtYVU420M, code: v4l2.MbusFmtAYUV8, planes: 3, pixelStride: 1, hsub: 2, vsub: 2},
	FormatNV12:  {fourcc: v4l2.PixFmtNV12M, code: v4l2.MbusFmtAYUV8, planes: 2, pixelStride: 1, hsub: 2, vsub: 2},
	FormatNV21:  {fourcc: v4l2.PixFmtNV21M, code: v4l2.MbusFmtAYUV8, planes: 2, pixelStride: 1, hsub: 2, vsub: 2},
	FormatNV16:  {fourcc: v4l2.PixFmtNV16M, code: v4l2.MbusFmtAYUV8, planes: 2, pixelStride: 1, hsub: 2, vsub: 1},
	FormatUYVY:  {fourcc: v4l2.PixFmtUYVY, code: v4l2.MbusFmtAYUV8, planes: 1, pixelStride: 2},
	FormatYUY2:  {fourcc: v4l2.PixFmtYUYV, code: v4l2.MbusFmtAYUV8, planes: 1, pixelStride: 2},
}

func lookupFormat(f Format) (formatInfo, error) {
	info, ok := formatTable[f]
	if !ok {
		return formatInfo{}, newError(ErrCodeUnsupportedFormat, "", nil, "format %q has no hardware mapping", string(f))
	}
	return info, nil
}

// Formats lists every supported format in name order.
func Formats() []Format {
	out := make([]Format, 0, len(formatTable))
	for f := range formatTable {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseFormat resolves a format name case-insensitively.
func ParseFormat(name string) (Format, error) {
	for f := range formatTable {
		if strings.EqualFold(string(f), name) {
			return f, nil
		}
	}
	return "", newError(ErrCodeUnsupportedFormat, "", nil, "unknown format %q", name)
}

// FourCC returns the V4L2 pixel format code of f.
func (f Format) FourCC() (uint32, error) {
	info, err := lookupFormat(f)
	return info.fourcc, err
}

// Planes returns the number of memory planes f occupies.
func (f Format) Planes() int {
	return formatTable[f].planes
}

// PixelStride returns the bytes per pixel of plane 0, or 0 when unknown.
func (f Format) PixelStride() int {
	return formatTable[f].pixelStride
}

// PlaneSizes returns the byte size of each plane of a tightly packed
// width x height frame.
func PlaneSizes(f Format, width, height int) ([]int, error) {
	info, err := lookupFormat(f)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, newError(ErrCodeUnsupportedGeometry, "", nil, "invalid frame size %dx%d", width, height)
	}

	if info.planes == 1 {
		if info.fourcc == v4l2.PixFmtUYVY || info.fourcc == v4l2.PixFmtYUYV {
			// 4:2:2 packed: pixels come in pairs
			return []int{(width + 1) / 2 * 4 * height}, nil
		}
		return []int{width * info.pixelStride * height}, nil
	}

	cw := (width + info.hsub - 1) / info.hsub
	ch := (height + info.vsub - 1) / info.vsub
	sizes := []int{width * height}
	if info.planes == 2 {
		// interleaved CbCr
		return append(sizes, cw*2*ch), nil
	}
	return append(sizes, cw*ch, cw*ch), nil
}

// AllocPlanes allocates tightly packed user memory for one frame.
func AllocPlanes(f Format, width, height int) ([][]byte, error) {
	sizes, err := PlaneSizes(f, width, height)
	if err != nil {
		return nil, err
	}
	planes := make([][]byte, len(sizes))
	for i, n := range sizes {
		planes[i] = make([]byte, n)
	}
	return planes, nil
}
