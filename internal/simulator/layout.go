package simulator

import "github.com/danmuck/trackerctl/internal/geometry"

// BodySite is one rigid body under the tracker, with the pose it holds
// when perfectly aligned.
type BodySite struct {
	Body    geometry.Body
	Nominal geometry.BodyPose
}

// DefaultLayout returns the telescope optics groups at their aligned
// positions: the primary mirror cell at the origin, the secondary mirror
// and the camera above it on the optical axis.
func DefaultLayout() []BodySite {
	return []BodySite{
		{Body: geometry.NewBody("m1m3", 8.40, 3)},
		{
			Body:    geometry.NewBody("m2", 1.74, 3),
			Nominal: geometry.BodyPose{Origin: geometry.Coordinate{Z: 3.0}},
		},
		{
			Body:    geometry.NewBody("cam", 0.85, 3),
			Nominal: geometry.BodyPose{Origin: geometry.Coordinate{Z: 2.0}},
		},
	}
}
