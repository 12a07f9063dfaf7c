package simulator

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/trackerctl/internal/geometry"
)

// Snapshot is a point-in-time view of the instrument for the admin API.
type Snapshot struct {
	Status           string            `json:"status"`
	Laser            string            `json:"laser"`
	MeasurementIndex int               `json:"measurement_index"`
	SimulationMode   bool              `json:"simulation_mode"`
	RandomizePoints  bool              `json:"randomize_points"`
	ReferenceGroup   string            `json:"reference_group"`
	WorkingFrame     string            `json:"working_frame"`
	Telescope        TelescopePosition `json:"telescope"`
	PlanGroup        string            `json:"plan_group,omitempty"`
	PlanCancelled    bool              `json:"plan_cancelled"`
	ForcedBusy       []string          `json:"forced_busy,omitempty"`
	Bodies           []string          `json:"bodies"`
}

// BodyState describes one body's placement and where its targets sit now.
type BodyState struct {
	Name    string                `json:"name"`
	Radius  float64               `json:"radius"`
	Nominal geometry.BodyPose     `json:"nominal"`
	Current geometry.BodyPose     `json:"current"`
	Targets []geometry.Coordinate `json:"targets"`
}

// Snapshot reports instrument state without disturbing pending replies; a
// plan that finished but has not been delivered yet still shows as busy.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promoteLaserLocked(now)

	status := c.status
	if status == statusBusy {
		status = "BUSY"
	}
	snap := Snapshot{
		Status:           status,
		Laser:            c.laser,
		MeasurementIndex: c.measIndex,
		SimulationMode:   c.simulationMode,
		RandomizePoints:  c.randomizePoints,
		ReferenceGroup:   c.referenceGroup,
		WorkingFrame:     c.workingFrame,
		Telescope:        c.telescope,
		PlanCancelled:    c.planCancelled,
		Bodies:           c.bodyNamesLocked(),
	}
	if c.plan != nil {
		snap.PlanGroup = c.plan.rawGroup
	}
	for name := range c.forcedBusy {
		snap.ForcedBusy = append(snap.ForcedBusy, name)
	}
	return snap
}

// BodyNames lists the configured bodies in sorted order.
func (c *Controller) BodyNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bodyNamesLocked()
}

// BodyState returns the pose and target positions of one body.
func (c *Controller) BodyState(name string) (BodyState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	body, ok := c.bodies[key]
	if !ok {
		return BodyState{}, fmt.Errorf("%w: %s", ErrUnknownBody, name)
	}
	return BodyState{
		Name:    body.Name,
		Radius:  body.Radius,
		Nominal: c.nominal[key],
		Current: c.current[key],
		Targets: geometry.TargetPositions(c.current[key], body),
	}, nil
}

// SetBodyPose moves a body, so the next measurement of it reports the new
// placement.
func (c *Controller) SetBodyPose(name string, pose geometry.BodyPose) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := c.bodies[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBody, name)
	}
	c.current[key] = pose
	c.log.Info().Str("body", key).
		Float64("x", pose.Origin.X).Float64("y", pose.Origin.Y).Float64("z", pose.Origin.Z).
		Msg("body pose set")
	return nil
}

// ForceBusy makes the instrument reject status queries and measurement
// plans for the named groups. The name "*" rejects every group.
func (c *Controller) ForceBusy(groups ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, group := range groups {
		if group == "*" {
			c.forcedBusy["*"] = struct{}{}
			continue
		}
		c.forcedBusy[strings.ToLower(group)] = struct{}{}
	}
	c.log.Info().Strs("groups", groups).Msg("forced busy")
}

// ClearForcedBusy lifts every forced busy rejection.
func (c *Controller) ClearForcedBusy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forcedBusy = make(map[string]struct{})
	c.log.Info().Msg("forced busy cleared")
}

// RandomizeAll scatters every body around its nominal pose.
func (c *Controller) RandomizeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.current {
		c.current[key] = c.randomizedLocked(c.nominal[key])
	}
	c.log.Info().Msg("all bodies randomized")
}
