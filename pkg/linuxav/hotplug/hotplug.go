// Package hotplug reports video and media device nodes appearing and
// disappearing, read from kernel uevents over netlink.
package hotplug

import (
	"bytes"
	"strings"
)

// Actions the converter cares about.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems of the converter's nodes.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemMedia       = "media"
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path below /sys
	Subsystem string
	DevName   string // node name relative to /dev, e.g. "video0"
	Env       map[string]string
}

// Node returns the /dev path the event refers to, or "" when it has none.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// Gone reports whether the device behind the event can no longer be used.
func (e Event) Gone() bool {
	return e.Action == ActionRemove || e.Action == ActionUnbind
}

// Parse decodes a kernel uevent of the form "ACTION@KOBJ\0KEY=VALUE\0...".
func Parse(data []byte) (Event, bool) {
	header, rest, _ := bytes.Cut(data, []byte{0})
	action, kobj, ok := strings.Cut(string(header), "@")
	if !ok || action == "" {
		return Event{}, false
	}

	ev := Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, field := range bytes.Split(rest, []byte{0}) {
		key, value, ok := strings.Cut(string(field), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev, true
}
