//go:build linux

package vsp

import (
	"github.com/smazurov/vspfilter/pkg/linuxav/media"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

type systemBackend struct{}

// SystemBackend returns the Backend for the running kernel.
func SystemBackend() Backend { return systemBackend{} }

func (systemBackend) FindVideo(required uint32) ([]string, error) {
	devices, err := v4l2.FindDevices(required)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(devices))
	for i, d := range devices {
		paths[i] = d.DevicePath
	}
	return paths, nil
}

func (systemBackend) OpenVideo(path string) (VideoNode, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (systemBackend) NodeName(path string) (string, error) {
	return v4l2.NodeName(path)
}

func (systemBackend) FindSubdev(ip, entity string) (string, error) {
	return v4l2.FindSubdev(ip, entity)
}

func (systemBackend) OpenSubdev(path string) (Subdev, error) {
	sd, err := v4l2.OpenSubdev(path)
	if err != nil {
		return nil, err
	}
	return sd, nil
}

func (systemBackend) FindMedia(ip string) (string, error) {
	return media.FindDevice(ip)
}

func (systemBackend) OpenMedia(path string) (MediaGraph, error) {
	dev, err := media.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
