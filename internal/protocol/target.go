package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TargetFrame identifies the measured frame of a target at a telescope
// position. Index is the 1-based measurement index.
type TargetFrame struct {
	Target    string
	Elevation float64
	Azimuth   float64
	CamRot    float64
	Index     int
}

// TargetFrameName formats the frame name for a measurement query. The two
// halves around "::" carry the same point group and telescope position.
func TargetFrameName(target string, elevation, azimuth, camRot float64, index int) string {
	head := fmt.Sprintf("%s_%.2f_%.2f_%.2f%d", target, elevation, azimuth, camRot, index)
	return "Meas_" + head + "::Frame" + head
}

// frameHeadPattern parses one half of a frame name. The underscore before
// the index is optional; some firmware writes the index joined to the
// rotator angle. Angles always carry two decimals, which is what separates
// the rotator value from the index.
var frameHeadPattern = regexp.MustCompile(
	`^(?P<target>.+)_(?P<el>-?\d+\.\d{2})_(?P<az>-?\d+\.\d{2})_(?P<rot>-?\d+\.\d{2})_?(?P<index>\d+)$`)

// ParseTargetFrameName is the inverse of TargetFrameName. The Meas and
// Frame halves must agree after their prefixes are stripped.
func ParseTargetFrameName(name string) (TargetFrame, error) {
	measHalf, frameHalf, found := strings.Cut(name, "::")
	if !found {
		return TargetFrame{}, fmt.Errorf("%w: %q has no frame half", ErrInvalidFrameName, name)
	}
	head, ok := strings.CutPrefix(measHalf, "Meas_")
	if !ok {
		return TargetFrame{}, fmt.Errorf("%w: %q does not start with Meas_", ErrInvalidFrameName, name)
	}
	frameHead, ok := strings.CutPrefix(frameHalf, "Frame")
	if !ok {
		return TargetFrame{}, fmt.Errorf("%w: %q does not start with Frame", ErrInvalidFrameName, frameHalf)
	}
	if head != frameHead {
		return TargetFrame{}, fmt.Errorf("%w: halves disagree in %q", ErrInvalidFrameName, name)
	}

	m := frameHeadPattern.FindStringSubmatch(head)
	if m == nil {
		return TargetFrame{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidFrameName, head)
	}
	names := make(map[string]int, frameHeadPattern.NumSubexp())
	for i, sub := range frameHeadPattern.SubexpNames() {
		if sub != "" {
			names[sub] = i
		}
	}

	out := TargetFrame{Target: m[names["target"]]}
	el, err := strconv.ParseFloat(m[names["el"]], 64)
	if err != nil {
		return TargetFrame{}, fmt.Errorf("%w: elevation in %q", ErrInvalidFrameName, name)
	}
	az, err := strconv.ParseFloat(m[names["az"]], 64)
	if err != nil {
		return TargetFrame{}, fmt.Errorf("%w: azimuth in %q", ErrInvalidFrameName, name)
	}
	rot, err := strconv.ParseFloat(m[names["rot"]], 64)
	if err != nil {
		return TargetFrame{}, fmt.Errorf("%w: rotator in %q", ErrInvalidFrameName, name)
	}
	idx, err := strconv.Atoi(m[names["index"]])
	if err != nil {
		return TargetFrame{}, fmt.Errorf("%w: index in %q", ErrInvalidFrameName, name)
	}
	out.Elevation, out.Azimuth, out.CamRot, out.Index = el, az, rot, idx
	return out, nil
}
