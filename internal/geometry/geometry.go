// Package geometry computes world-frame positions of measurement targets
// mounted on rigid bodies. All functions are pure: results are derived
// from the arguments on every call so externally updated poses are
// reflected immediately.
package geometry

import (
	"fmt"
	"math"
)

// Coordinate is a position in the instrument working frame, in meters.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns c translated by v.
func (c Coordinate) Add(v Coordinate) Coordinate {
	return Coordinate{X: c.X + v.X, Y: c.Y + v.Y, Z: c.Z + v.Z}
}

// Sub returns c - v componentwise.
func (c Coordinate) Sub(v Coordinate) Coordinate {
	return Coordinate{X: c.X - v.X, Y: c.Y - v.Y, Z: c.Z - v.Z}
}

// Scale returns c with every component multiplied by f.
func (c Coordinate) Scale(f float64) Coordinate {
	return Coordinate{X: c.X * f, Y: c.Y * f, Z: c.Z * f}
}

// Rotation is a body orientation expressed as a rotation vector: the
// direction of (U, V, W) is the rotation axis and its magnitude is the
// rotation angle. Components are in degrees, matching the convention of
// the pose telemetry feeds; they are converted to radians internally.
type Rotation struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
	W float64 `json:"w"`
}

// Sub returns r - o componentwise.
func (r Rotation) Sub(o Rotation) Rotation {
	return Rotation{U: r.U - o.U, V: r.V - o.V, W: r.W - o.W}
}

// BodyPose is the mutable world-frame pose of a rigid body.
type BodyPose struct {
	Origin   Coordinate `json:"origin"`
	Rotation Rotation   `json:"rotation"`
}

// TargetDefinition is a named offset from a body origin, fixed at
// configuration time.
type TargetDefinition struct {
	Name   string
	Offset Coordinate
}

// Body is an immutable set of target definitions attached to one rigid
// assembly. The pose positioning the body lives elsewhere; a Body only
// describes where its targets sit relative to the body origin.
type Body struct {
	Name    string
	Radius  float64
	Targets []TargetDefinition
}

// DefaultFiducials is the number of targets NewBody lays out when the
// configuration does not say otherwise.
const DefaultFiducials = 3

// NewBody builds a body with n fiducial targets evenly spaced on a circle
// of the given radius in the body's local XY plane. Target i sits at
// angle i*360/n degrees from local +Y and is named <name>_P<i+1>.
func NewBody(name string, radius float64, fiducials int) Body {
	if fiducials <= 0 {
		fiducials = DefaultFiducials
	}
	targets := make([]TargetDefinition, 0, fiducials)
	for i := 0; i < fiducials; i++ {
		angle := 2 * math.Pi * float64(i) / float64(fiducials)
		targets = append(targets, TargetDefinition{
			Name: fmt.Sprintf("%s_P%d", name, i+1),
			Offset: Coordinate{
				X: radius * math.Sin(angle),
				Y: radius * math.Cos(angle),
				Z: 0,
			},
		})
	}
	return Body{Name: name, Radius: radius, Targets: targets}
}

// Target returns the definition at 0-based index i.
func (b Body) Target(i int) (TargetDefinition, error) {
	if i < 0 || i >= len(b.Targets) {
		return TargetDefinition{}, fmt.Errorf("geometry: body %s has no target index %d (targets: %d)", b.Name, i, len(b.Targets))
	}
	return b.Targets[i], nil
}

// Matrix3 is a 3x3 rotation matrix in row-major order.
type Matrix3 [3][3]float64

// Apply returns m * v.
func (m Matrix3) Apply(v Coordinate) Coordinate {
	return Coordinate{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// identity is the zero-rotation matrix.
var identity = Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// RotationMatrix converts a rotation vector to its matrix via the
// Rodrigues formula. A zero-magnitude rotation yields the identity.
func RotationMatrix(r Rotation) Matrix3 {
	vx := r.U * math.Pi / 180
	vy := r.V * math.Pi / 180
	vz := r.W * math.Pi / 180
	theta := math.Sqrt(vx*vx + vy*vy + vz*vz)
	if theta == 0 {
		return identity
	}
	kx, ky, kz := vx/theta, vy/theta, vz/theta
	s := math.Sin(theta)
	c := math.Cos(theta)
	t := 1 - c
	return Matrix3{
		{c + kx*kx*t, kx*ky*t - kz*s, kx*kz*t + ky*s},
		{ky*kx*t + kz*s, c + ky*ky*t, ky*kz*t - kx*s},
		{kz*kx*t - ky*s, kz*ky*t + kx*s, c + kz*kz*t},
	}
}

// TargetPosition returns the world-frame position of one target: the
// local offset rotated by the body rotation, then translated by the body
// origin. Rotation is always applied before translation.
func TargetPosition(pose BodyPose, def TargetDefinition) Coordinate {
	return RotationMatrix(pose.Rotation).Apply(def.Offset).Add(pose.Origin)
}

// TargetPositions returns the world-frame positions of every target on
// the body, in definition order.
func TargetPositions(pose BodyPose, body Body) []Coordinate {
	rot := RotationMatrix(pose.Rotation)
	out := make([]Coordinate, 0, len(body.Targets))
	for _, def := range body.Targets {
		out = append(out, rot.Apply(def.Offset).Add(pose.Origin))
	}
	return out
}

// Centroid returns the mean of the body's target world positions. For
// the symmetric fiducial layout of NewBody this coincides with the pose
// origin.
func Centroid(pose BodyPose, body Body) Coordinate {
	if len(body.Targets) == 0 {
		return pose.Origin
	}
	var sum Coordinate
	for _, p := range TargetPositions(pose, body) {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(body.Targets)))
}

// PoseDelta returns the componentwise difference a - b of two poses.
func PoseDelta(a, b BodyPose) (Coordinate, Rotation) {
	return a.Origin.Sub(b.Origin), a.Rotation.Sub(b.Rotation)
}
