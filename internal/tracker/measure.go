package tracker

import (
	"context"
	"fmt"

	"github.com/danmuck/trackerctl/internal/geometry"
	"github.com/danmuck/trackerctl/internal/protocol"
)

// defaultCollection is the instrument's default point collection name.
const defaultCollection = "A"

// MeasurementResult is one measured pose of a target relative to the
// current working frame. Pos is in meters, Rot in degrees.
type MeasurementResult struct {
	Target string
	Frame  string
	Pos    geometry.Coordinate
	Rot    geometry.Rotation
}

// TargetName returns the frame name a measurement of target is filed under
// at the current telescope position and measurement index.
func (c *Client) TargetName(target string) string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return protocol.TargetFrameName(target, c.elevation, c.azimuth, c.camRot, c.measIndex)
}

// MeasureTarget waits for a ready instrument, runs the measurement plan for
// target, then queries the measured pose from the resulting frame.
func (c *Client) MeasureTarget(ctx context.Context, target string) (MeasurementResult, error) {
	if err := c.runPlan(ctx, protocol.CmdMeasurePlan(target)); err != nil {
		return MeasurementResult{}, err
	}
	return c.GetTargetPosition(ctx, target)
}

// GetTargetPosition queries the measured pose of target. The target must
// have been measured at the current telescope position first.
func (c *Client) GetTargetPosition(ctx context.Context, target string) (MeasurementResult, error) {
	frame := c.TargetName(target)
	reply, err := c.SendCommand(ctx, protocol.CmdTargetPosition(frame))
	if err != nil {
		return MeasurementResult{}, err
	}
	report, err := protocol.ParseOffsetReport(reply.Body)
	if err != nil {
		return MeasurementResult{}, err
	}
	return resultFromReport(target, report), nil
}

// GetTargetOffset queries the offset of target from nominal in the frame of
// referenceGroup. Empty referenceGroup measures against the target's own
// group.
func (c *Client) GetTargetOffset(ctx context.Context, target, referenceGroup string) (MeasurementResult, error) {
	if referenceGroup == "" {
		referenceGroup = target
	}
	reply, err := c.SendCommand(ctx, protocol.CmdTargetOffset(target, referenceGroup))
	if err != nil {
		return MeasurementResult{}, err
	}
	report, err := protocol.ParseOffsetReport(reply.Body)
	if err != nil {
		return MeasurementResult{}, err
	}
	return resultFromReport(target, report), nil
}

// MeasureSinglePoint points the tracker at one reflector and measures it.
// The reply arrives only once the measurement finishes.
func (c *Client) MeasureSinglePoint(ctx context.Context, collection, group, point string) (protocol.SinglePointMeasurement, error) {
	if collection == "" {
		collection = defaultCollection
	}
	reply, err := c.SendCommand(ctx, protocol.CmdSinglePoint(collection, group, point))
	if err != nil {
		return protocol.SinglePointMeasurement{}, err
	}
	return protocol.ParseSinglePoint(reply.Body)
}

// GetPointPosition queries a previously measured point.
func (c *Client) GetPointPosition(ctx context.Context, collection, group, point string) (protocol.SinglePointMeasurement, error) {
	if collection == "" {
		collection = defaultCollection
	}
	reply, err := c.SendCommand(ctx, protocol.CmdPointPosition(collection, group, point))
	if err != nil {
		return protocol.SinglePointMeasurement{}, err
	}
	return protocol.ParseSinglePoint(reply.Body)
}

// GetPointDelta queries the separation between two measured points.
func (c *Client) GetPointDelta(ctx context.Context, p1Collection, p1Group, p1, p2Collection, p2Group, p2 string) (protocol.SinglePointMeasurement, error) {
	if p1Collection == "" {
		p1Collection = defaultCollection
	}
	if p2Collection == "" {
		p2Collection = defaultCollection
	}
	reply, err := c.SendCommand(ctx, protocol.CmdPointDelta(p1Collection, p1Group, p1, p2Collection, p2Group, p2))
	if err != nil {
		return protocol.SinglePointMeasurement{}, err
	}
	return protocol.ParseSinglePoint(reply.Body)
}

// TwoFaceCheck runs the two face check plan for one point group.
func (c *Client) TwoFaceCheck(ctx context.Context, group string) error {
	return c.runPlan(ctx, protocol.CmdTwoFaceCheck(group))
}

// MeasureDrift runs the drift scan plan for one point group.
func (c *Client) MeasureDrift(ctx context.Context, group string) error {
	return c.runPlan(ctx, protocol.CmdMeasureDrift(group))
}

// HealthCheck runs the two face check and the drift scan for every group.
func (c *Client) HealthCheck(ctx context.Context, groups []string) error {
	for _, group := range groups {
		c.log.Info().Str("group", group).Msg("two face check")
		if err := c.TwoFaceCheck(ctx, group); err != nil {
			return fmt.Errorf("two face check %s: %w", group, err)
		}
		c.log.Info().Str("group", group).Msg("drift scan")
		if err := c.MeasureDrift(ctx, group); err != nil {
			return fmt.Errorf("drift scan %s: %w", group, err)
		}
	}
	return nil
}

// SetTelescopePosition reports the telescope's position to the instrument
// so measurement plans aim correctly, and records it for frame names.
func (c *Client) SetTelescopePosition(ctx context.Context, elevation, azimuth, camRot float64) error {
	for _, cmd := range []string{
		protocol.CmdPublishTelescopePosition(elevation, azimuth, camRot),
		protocol.CmdApplyTelescopePosition(elevation, azimuth, camRot),
		protocol.CmdCamRotPlan(elevation, azimuth, camRot),
	} {
		if _, err := c.SendCommand(ctx, cmd); err != nil {
			return err
		}
	}
	c.stateMu.Lock()
	c.elevation = elevation
	c.azimuth = azimuth
	c.camRot = camRot
	c.stateMu.Unlock()
	return nil
}

// Halt aborts the running measurement plan, if any. The write bypasses the
// exchange lock so it reaches an instrument still answering a plan; the
// cancelled plan reports its error to its own caller, then the halt reply
// arrives.
func (c *Client) Halt(ctx context.Context) (protocol.Reply, error) {
	if err := c.StartCommand(ctx, protocol.CmdHalt); err != nil {
		return protocol.Reply{}, err
	}
	return c.AwaitReply(ctx, protocol.CmdHalt)
}

// IncrementMeasuredIndex advances the instrument's measurement index and
// keeps the local copy used in frame names in step. inc 0 advances by 1.
func (c *Client) IncrementMeasuredIndex(ctx context.Context, inc int) error {
	if inc == 0 {
		inc = 1
	}
	if _, err := c.SendCommand(ctx, protocol.CmdIncMeasIndex(inc)); err != nil {
		return err
	}
	c.stateMu.Lock()
	c.measIndex += inc
	c.stateMu.Unlock()
	return nil
}

// SetMeasuredIndex sets the instrument's measurement index and the local
// copy used in frame names.
func (c *Client) SetMeasuredIndex(ctx context.Context, idx int) error {
	if _, err := c.SendCommand(ctx, protocol.CmdSetMeasIndex(idx)); err != nil {
		return err
	}
	c.stateMu.Lock()
	c.measIndex = idx
	c.stateMu.Unlock()
	return nil
}

// runPlan waits for a ready instrument and executes one plan command. The
// exchange lock is held across the wait and the plan so no other command
// slips in between.
func (c *Client) runPlan(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.waitForReadyLocked(ctx); err != nil {
		return err
	}
	_, err := c.exchangeLocked(ctx, cmd)
	return err
}

func resultFromReport(target string, report protocol.OffsetReport) MeasurementResult {
	return MeasurementResult{
		Target: target,
		Frame:  report.Frame,
		Pos:    geometry.Coordinate{X: report.DX, Y: report.DY, Z: report.DZ},
		Rot:    geometry.Rotation{U: report.DRX, V: report.DRY, W: report.DRZ},
	}
}
