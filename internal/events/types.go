package events

// Event type constants for kelindar/event.
const (
	TypeSessionLinked uint32 = iota + 1
	TypeSetupFailed
	TypeStreamingStarted
	TypeFrameConverted
	TypeFrameFailed
	TypeSessionClosed
	TypeSessionMetrics
	TypeDeviceRemoved
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionLinkedEvent is published once the graph of a session is linked.
type SessionLinkedEvent struct {
	IPName       string `json:"ip_name" example:"fe9a0000.vsp1" doc:"IP block name"`
	InputDevice  string `json:"input_device" example:"/dev/video0" doc:"Input video node"`
	OutputDevice string `json:"output_device" example:"/dev/video1" doc:"Output video node"`
	Topology     string `json:"topology" example:"resize" doc:"direct or resize"`
	InFormat     string `json:"in_format" example:"I420" doc:"Input format"`
	InWidth      uint32 `json:"in_width" example:"1280" doc:"Input width"`
	InHeight     uint32 `json:"in_height" example:"720" doc:"Input height"`
	OutFormat    string `json:"out_format" example:"UYVY" doc:"Output format"`
	OutWidth     uint32 `json:"out_width" example:"640" doc:"Committed output width"`
	OutHeight    uint32 `json:"out_height" example:"480" doc:"Output height"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionLinkedEvent.
func (e SessionLinkedEvent) Type() uint32 { return TypeSessionLinked }

// SetupFailedEvent is published when a session breaks during setup.
type SetupFailedEvent struct {
	Code      string `json:"code" example:"TOPOLOGY_CONFLICT" doc:"Error code"`
	Stage     string `json:"stage" example:"media" doc:"Failing stage"`
	Error     string `json:"error" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SetupFailedEvent.
func (e SetupFailedEvent) Type() uint32 { return TypeSetupFailed }

// StreamingStartedEvent is published when both queues start streaming.
type StreamingStartedEvent struct {
	InputDevice  string `json:"input_device" example:"/dev/video0" doc:"Input video node"`
	OutputDevice string `json:"output_device" example:"/dev/video1" doc:"Output video node"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingStartedEvent.
func (e StreamingStartedEvent) Type() uint32 { return TypeStreamingStarted }

// FrameConvertedEvent is published per converted frame.
type FrameConvertedEvent struct {
	Topology        string  `json:"topology" example:"direct" doc:"Session topology"`
	BytesUsed       uint64  `json:"bytes_used" example:"614400" doc:"Bytes written by the converter"`
	DurationSeconds float64 `json:"duration_seconds" example:"0.004" doc:"Wall time of the conversion"`
	Timestamp       string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameConvertedEvent.
func (e FrameConvertedEvent) Type() uint32 { return TypeFrameConverted }

// FrameFailedEvent is published when a single frame fails.
type FrameFailedEvent struct {
	Code      string `json:"code" example:"CONVERSION_TIMEOUT" doc:"Error code"`
	Stage     string `json:"stage" example:"output" doc:"Failing stage"`
	Error     string `json:"error" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameFailedEvent.
func (e FrameFailedEvent) Type() uint32 { return TypeFrameFailed }

// SessionClosedEvent is published on teardown.
type SessionClosedEvent struct {
	FramesConverted uint64 `json:"frames_converted" doc:"Frames converted during the session"`
	FramesFailed    uint64 `json:"frames_failed" doc:"Frames failed during the session"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// SessionMetricsEvent is a periodic summary of the conversion counters.
type SessionMetricsEvent struct {
	FramesConverted    uint64  `json:"frames_converted" doc:"Frames converted since start"`
	FramesFailed       uint64  `json:"frames_failed" doc:"Frames failed since start"`
	BytesConverted     uint64  `json:"bytes_converted" doc:"Bytes written by the converter since start"`
	FPS                float64 `json:"fps" example:"29.97" doc:"Frames converted per second over the last interval"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds" example:"0.004" doc:"Mean conversion time"`
	Streaming          bool    `json:"streaming" doc:"A session is streaming"`
	Timestamp          string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }

// DeviceRemovedEvent is published when a node in use by the session goes
// away and the session is torn down.
type DeviceRemovedEvent struct {
	Device    string `json:"device" example:"/dev/video1" doc:"Removed node"`
	Action    string `json:"action" example:"remove" doc:"Kernel uevent action"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceRemovedEvent.
func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }
