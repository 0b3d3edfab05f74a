//go:build !linux

package vsp

import (
	"errors"
	"os"
)

var errUnsupportedPlatform = errors.New("vsp: V4L2 is only available on linux")

type systemBackend struct{}

// SystemBackend returns a Backend that fails every lookup on this platform.
func SystemBackend() Backend { return systemBackend{} }

func (systemBackend) FindVideo(uint32) ([]string, error) { return nil, nil }

func (systemBackend) OpenVideo(string) (VideoNode, error) { return nil, errUnsupportedPlatform }

func (systemBackend) NodeName(string) (string, error) { return "", errUnsupportedPlatform }

func (systemBackend) FindSubdev(string, string) (string, error) { return "", os.ErrNotExist }

func (systemBackend) OpenSubdev(string) (Subdev, error) { return nil, errUnsupportedPlatform }

func (systemBackend) FindMedia(string) (string, error) { return "", os.ErrNotExist }

func (systemBackend) OpenMedia(string) (MediaGraph, error) { return nil, errUnsupportedPlatform }
