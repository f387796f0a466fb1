package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Facing is the preferred camera orientation.
type Facing int

const (
	// FacingEnvironment prefers the rear camera. This is the default.
	FacingEnvironment Facing = iota
	// FacingUser prefers the front (selfie) camera.
	FacingUser
)

// String returns the facing name used on the command line.
func (f Facing) String() string {
	if f == FacingUser {
		return "user"
	}
	return "environment"
}

// ParseFacing parses "environment"/"rear" or "user"/"front".
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "", "environment", "rear", "back":
		return FacingEnvironment, nil
	case "user", "front":
		return FacingUser, nil
	}
	return FacingEnvironment, fmt.Errorf("unknown facing %q", s)
}

// Device describes an enumerated video input.
type Device struct {
	ID    string // stable id, the device node path on Linux
	Label string // human readable name, may be empty
	Index int    // OpenCV capture index
}

// DeviceLister enumerates video input devices.
type DeviceLister interface {
	VideoInputs() ([]Device, error)
}

// SelectDevice picks a device following the facing preference.
//
// Label matching is unreliable across platforms, so this is best effort:
// for FacingEnvironment the first device whose label does not mention
// "front" wins, then the first front-labeled device, then the first
// enumerated device. FacingUser inverts the label test. An empty list
// yields ErrDeviceUnavailable.
func SelectDevice(devices []Device, facing Facing) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrDeviceUnavailable
	}

	wantFront := facing == FacingUser
	for _, d := range devices {
		if isFrontLabel(d.Label) == wantFront {
			return d, nil
		}
	}
	// Every device carries the other label kind, so the first one is both
	// the fallback label match and the first enumerated device.
	return devices[0], nil
}

func isFrontLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "front")
}

// DefaultSysfsRoot is where Linux exposes V4L2 devices.
const DefaultSysfsRoot = "/sys/class/video4linux"

// SysfsLister enumerates V4L2 capture nodes from sysfs.
type SysfsLister struct {
	Root    string // defaults to DefaultSysfsRoot
	DevRoot string // defaults to /dev
}

// VideoInputs lists capture nodes ordered by device number. Nodes whose
// sysfs index is not 0 are metadata nodes of the same camera and are skipped.
func (l SysfsLister) VideoInputs() ([]Device, error) {
	root := l.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	devRoot := l.DevRoot
	if devRoot == "" {
		devRoot = "/dev"
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	var devices []Device
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		if idx, err := os.ReadFile(filepath.Join(root, name, "index")); err == nil {
			if strings.TrimSpace(string(idx)) != "0" {
				continue
			}
		}

		label := ""
		if data, err := os.ReadFile(filepath.Join(root, name, "name")); err == nil {
			label = strings.TrimSpace(string(data))
		}

		devices = append(devices, Device{
			ID:    filepath.Join(devRoot, name),
			Label: label,
			Index: n,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

// StaticLister returns a fixed device list.
type StaticLister []Device

// VideoInputs returns the list as is.
func (l StaticLister) VideoInputs() ([]Device, error) {
	return append([]Device(nil), l...), nil
}
