package config

import (
	"github.com/danmuck/trackerctl/internal/geometry"
)

// GeometryBodies converts body specs into geometry bodies paired with
// their nominal poses, in spec order.
func GeometryBodies(specs []BodySpec) ([]geometry.Body, []geometry.BodyPose) {
	bodies := make([]geometry.Body, 0, len(specs))
	poses := make([]geometry.BodyPose, 0, len(specs))
	for _, spec := range specs {
		bodies = append(bodies, geometry.NewBody(spec.Name, spec.Radius, spec.Fiducials))
		poses = append(poses, geometry.BodyPose{
			Origin:   geometry.Coordinate{X: spec.Origin.X, Y: spec.Origin.Y, Z: spec.Origin.Z},
			Rotation: geometry.Rotation{U: spec.Rotation.U, V: spec.Rotation.V, W: spec.Rotation.W},
		})
	}
	return bodies, poses
}
