package vsp

import (
	"time"

	"github.com/smazurov/vspfilter/pkg/linuxav/media"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// VideoNode is an open multi-planar V4L2 video node.
type VideoNode interface {
	Path() string
	QueryCap() (v4l2.Capability, error)
	TryFormat(bufType uint32, f *v4l2.PixFormat) error
	SetFormat(bufType uint32, f *v4l2.PixFormat) error
	RequestBuffers(bufType, memory, count uint32) (uint32, error)
	QueueBuffer(bufType, memory uint32, planes []v4l2.Plane) error
	DequeueBuffer(bufType, memory uint32, planes []v4l2.Plane) error
	StreamOn(bufType uint32) error
	StreamOff(bufType uint32) error
	WaitReadable(timeout time.Duration) (bool, error)
	Close() error
}

// Subdev is an open v4l-subdev node.
type Subdev interface {
	Path() string
	SetPadFormat(f *v4l2.PadFormat) error
	Close() error
}

// MediaGraph is an open media-controller device.
type MediaGraph interface {
	Path() string
	Entities() ([]media.Entity, error)
	EntityByID(id uint32) (media.Entity, error)
	EntityByName(name string) (media.Entity, error)
	Links(e media.Entity) ([]media.Link, error)
	SetupLink(l media.Link) error
	Close() error
}

// Backend opens kernel objects and answers sysfs lookups. SystemBackend
// talks to the running kernel; tests substitute their own.
type Backend interface {
	// FindVideo lists video nodes whose capabilities include required.
	FindVideo(required uint32) ([]string, error)
	OpenVideo(path string) (VideoNode, error)
	// NodeName returns the driver name of a video node.
	NodeName(path string) (string, error)
	// FindSubdev returns the subdevice whose name starts with ip and
	// contains entity.
	FindSubdev(ip, entity string) (string, error)
	OpenSubdev(path string) (Subdev, error)
	// FindMedia returns the media device registered by platform device ip.
	FindMedia(ip string) (string, error)
	OpenMedia(path string) (MediaGraph, error)
}
