package models

import (
	"github.com/smazurov/vspfilter/internal/vsp"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Device models
type DevicesData struct {
	IPName      string          `json:"ip_name" example:"fe9a0000.vsp1" doc:"IP block both stages belong to"`
	MediaDevice string          `json:"media_device" example:"/dev/media0" doc:"Media controller node"`
	Stages      []vsp.StageInfo `json:"stages" doc:"Input and output stages"`
}

type DevicesResponse struct {
	Body DevicesData
}

// Format models
type FormatsData struct {
	Formats []FormatInfo `json:"formats" doc:"Supported pixel formats"`
	Count   int          `json:"count" example:"14" doc:"Number of formats"`
}

type FormatInfo struct {
	Name        string `json:"name" example:"NV12" doc:"Format name"`
	FourCC      string `json:"fourcc" example:"NM12" doc:"V4L2 pixel format code"`
	Planes      int    `json:"planes" example:"2" doc:"Memory planes"`
	PixelStride int    `json:"pixel_stride" example:"1" doc:"Bytes per pixel of plane 0"`
}

type FormatsResponse struct {
	Body FormatsData
}

// Graph models
type GraphData struct {
	MediaDevice string            `json:"media_device" example:"/dev/media0" doc:"Media controller node"`
	Entities    []vsp.GraphEntity `json:"entities" doc:"Media entities with their outgoing links"`
}

type GraphResponse struct {
	Body GraphData
}

// Validation models
type FrameSpec struct {
	Format string `json:"format" example:"I420" doc:"Pixel format name"`
	Width  int    `json:"width" example:"1280" minimum:"1" doc:"Frame width in pixels"`
	Height int    `json:"height" example:"720" minimum:"1" doc:"Frame height in pixels"`
}

type ValidateRequestData struct {
	Input     FrameSpec `json:"input" doc:"Frame fed to the converter"`
	Output    FrameSpec `json:"output" doc:"Frame produced by the converter"`
	OutStride int       `json:"out_stride,omitempty" example:"1280" minimum:"0" doc:"Byte stride of output plane 0, 0 for packed"`
}

type ValidateRequest struct {
	Body ValidateRequestData
}

type ValidateData struct {
	Valid    bool   `json:"valid" example:"true" doc:"Both stages accept the formats"`
	Topology string `json:"topology" example:"resize" doc:"Topology the request would link"`
}

type ValidateResponse struct {
	Body ValidateData
}

// Session models
type SessionResponse struct {
	Body vsp.Status
}

type SessionDeleteData struct {
	Message         string `json:"message" example:"Session closed" doc:"Status message"`
	FramesConverted uint64 `json:"frames_converted" doc:"Frames converted before teardown"`
	FramesFailed    uint64 `json:"frames_failed" doc:"Frames failed before teardown"`
}

type SessionDeleteResponse struct {
	Body SessionDeleteData
}
