// Package devices enumerates V4L2 video capture devices via sysfs and
// classifies them as infrared, RGB, or unknown capture hardware.
package devices

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/glance-auth/glance/pkg/logging"
)

// Kind identifies the broad category of a capture device.
type Kind int

const (
	Unknown Kind = iota
	IR
	RGB
)

func (k Kind) String() string {
	switch k {
	case IR:
		return "IR"
	case RGB:
		return "RGB"
	default:
		return "Unknown"
	}
}

// Info describes a single enumerated camera. Immutable once produced.
type Info struct {
	DeviceID   int
	DevicePath string
	Name       string
	Kind       Kind
}

const sysfsRoot = "/sys/class/video4linux"

// List enumerates cameras via sysfs only; it never opens a device. This is
// the fast path used by the authenticator: it trusts sysfs classification
// and returns immediately even if a device turns out not to deliver frames.
//
// Nodes whose "index" file exists and is non-zero are metadata sub-devices
// of a multi-function camera and are skipped. Absence of the index file is
// not treated as an error.
func List() []Info {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		return nil
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		nodeDir := filepath.Join(sysfsRoot, name)
		if idx, ok := readIndex(nodeDir); ok && idx != 0 {
			logging.Debugf("devices: skipping video%d (index %d), metadata sub-device", id, idx)
			continue
		}

		cameraName := readName(nodeDir, id)
		infos = append(infos, Info{
			DeviceID:   id,
			DevicePath: "/dev/video" + strconv.Itoa(id),
			Name:       cameraName,
			Kind:       classify(cameraName),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		pi, pj := groupOrder(infos[i].Kind), groupOrder(infos[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return infos[i].DeviceID < infos[j].DeviceID
	})

	return infos
}

// OrderedFor returns cameras ordered by the auth engine's priority rule:
// the preferred kind first, then the other, then Unknown.
func OrderedFor(infos []Info, preferIR bool) []Info {
	var first, second Kind
	if preferIR {
		first, second = IR, RGB
	} else {
		first, second = RGB, IR
	}

	var ordered []Info
	for _, k := range []Kind{first, second, Unknown} {
		for _, info := range infos {
			if info.Kind == k {
				ordered = append(ordered, info)
			}
		}
	}
	return ordered
}

func groupOrder(k Kind) int {
	switch k {
	case IR:
		return 0
	case RGB:
		return 1
	default:
		return 2
	}
}

func readIndex(nodeDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(nodeDir, "index"))
	if err != nil {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return idx, true
}

func readName(nodeDir string, id int) string {
	data, err := os.ReadFile(filepath.Join(nodeDir, "name"))
	if err != nil {
		return "Camera " + strconv.Itoa(id)
	}
	return strings.TrimSpace(string(data))
}

var irKeywords = []string{"infrared", "ir camera", "ir sensor", "infra red", "depth", "tof"}
var rgbKeywords = []string{"rgb", "color", "webcam", "hd camera", "usb camera"}

// classify applies the spec's name-based, case-insensitive heuristic.
func classify(name string) Kind {
	lower := strings.ToLower(name)

	if strings.HasSuffix(lower, " i") || strings.HasSuffix(lower, ": i") {
		return IR
	}
	for _, kw := range irKeywords {
		if strings.Contains(lower, kw) {
			return IR
		}
	}

	if strings.HasSuffix(lower, " c") || strings.HasSuffix(lower, ": c") {
		return RGB
	}
	for _, kw := range rgbKeywords {
		if strings.Contains(lower, kw) {
			return RGB
		}
	}

	return Unknown
}

// FrameReader is the minimal capability the slow/verify path needs from a
// camera handle: open a device, read one frame, then release it.
type FrameReader interface {
	Open(devicePath string) error
	Read() (width, height int, rgb []byte, err error)
	Close() error
}

// Verify confirms a sysfs-classified node is actually a capture device by
// opening it and reading one frame. Some sysfs nodes classify as capture
// devices but never deliver frames; this is the slow path used by the
// enrollment-side single-camera selector, never by the authenticator's fast
// path.
func Verify(info Info, newHandle func() FrameReader) bool {
	cam := newHandle()
	defer func() { _ = cam.Close() }()

	if err := cam.Open(info.DevicePath); err != nil {
		return false
	}
	_, _, rgb, err := cam.Read()
	return err == nil && len(rgb) > 0
}
