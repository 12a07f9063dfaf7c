package protocol

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/danmuck/trackerctl/internal/geometry"
)

// SinglePointMeasurement is a parsed single point payload. Coordinates are
// as reported by the instrument, in millimeters.
type SinglePointMeasurement struct {
	Point string
	Pos   geometry.Coordinate
}

// OffsetReport is a parsed object offset payload. Values are as reported,
// positions in meters and rotations in degrees.
type OffsetReport struct {
	Frame string
	DX    float64
	DY    float64
	DZ    float64
	DRX   float64
	DRY   float64
	DRZ   float64
}

// Payload dialects. Current firmware writes the "Single Point Measurement"
// and "Object Offset Report" forms; older firmware writes "Measured single
// pt" and "RefFrame:" forms for the same logical values.
var (
	singlePointPattern = regexp.MustCompile(
		`^Single Point Measurement (?P<point>.*) result (?P<x>.*),(?P<y>.*),(?P<z>.*) (.*) (.*) (.*)$`)
	singlePointLegacyPattern = regexp.MustCompile(
		`^Measured single pt (?P<point>.*) result: X:(?P<x>.*);Y:(?P<y>.*);Z:(?P<z>.*);(.*) (.*) (.*)$`)

	offsetPattern = regexp.MustCompile(
		`^Object Offset Report (?P<frame>.*);X:(?P<dx>.*);Y:(?P<dy>.*);Z:(?P<dz>.*);` +
			`Rx:(?P<drx>.*);Ry:(?P<dry>.*);Rz:(?P<drz>.*);(.*) (.*)$`)
	offsetLegacyPattern = regexp.MustCompile(
		`^RefFrame:(?P<frame>.*);X:(?P<dx>.*);Y:(?P<dy>.*);Z:(?P<dz>.*);` +
			`Rx:(?P<drx>.*);Ry:(?P<dry>.*);Rz:(?P<drz>.*);(.*) (.*)$`)
)

// ParseSinglePoint parses a single point payload in either dialect.
func ParseSinglePoint(body string) (SinglePointMeasurement, error) {
	m, names := matchEither(body, singlePointPattern, singlePointLegacyPattern)
	if m == nil {
		return SinglePointMeasurement{}, fmt.Errorf("%w: single point %q", ErrMalformedPayload, body)
	}
	var out SinglePointMeasurement
	out.Point = m[names["point"]]
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"x", &out.Pos.X},
		{"y", &out.Pos.Y},
		{"z", &out.Pos.Z},
	} {
		v, err := strconv.ParseFloat(m[names[f.name]], 64)
		if err != nil {
			return SinglePointMeasurement{}, fmt.Errorf("%w: %s in %q: %v", ErrMalformedPayload, f.name, body, err)
		}
		*f.dst = v
	}
	return out, nil
}

// ParseOffsetReport parses an object offset payload in either dialect.
func ParseOffsetReport(body string) (OffsetReport, error) {
	m, names := matchEither(body, offsetPattern, offsetLegacyPattern)
	if m == nil {
		return OffsetReport{}, fmt.Errorf("%w: offset report %q", ErrMalformedPayload, body)
	}
	var out OffsetReport
	out.Frame = m[names["frame"]]
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"dx", &out.DX},
		{"dy", &out.DY},
		{"dz", &out.DZ},
		{"drx", &out.DRX},
		{"dry", &out.DRY},
		{"drz", &out.DRZ},
	} {
		v, err := strconv.ParseFloat(m[names[f.name]], 64)
		if err != nil {
			return OffsetReport{}, fmt.Errorf("%w: %s in %q: %v", ErrMalformedPayload, f.name, body, err)
		}
		*f.dst = v
	}
	return out, nil
}

// matchEither returns the first pattern's submatches, or the second's, with
// a name to index map for the pattern that matched.
func matchEither(body string, patterns ...*regexp.Regexp) ([]string, map[string]int) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); m != nil {
			names := make(map[string]int, re.NumSubexp())
			for i, name := range re.SubexpNames() {
				if name != "" {
					names[name] = i
				}
			}
			return m, names
		}
	}
	return nil, nil
}
