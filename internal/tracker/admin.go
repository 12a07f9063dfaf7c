package tracker

import (
	"context"

	"github.com/danmuck/trackerctl/internal/protocol"
)

// LaserStatus queries the laser state. The body is "LON", "LOFF", or a
// warmup countdown such as "WARM, 32.50 seconds".
func (c *Client) LaserStatus(ctx context.Context) (string, error) {
	reply, err := c.SendCommand(ctx, protocol.CmdLaserStatus)
	if err != nil {
		return "", err
	}
	return reply.Body, nil
}

// LaserOn turns the laser on to start its warmup.
func (c *Client) LaserOn(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdLaserOn)
	return err
}

// LaserOff turns the laser off.
func (c *Client) LaserOff(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdLaserOff)
	return err
}

// TrackerOff shuts the instrument down completely. It must be powered back
// on at the hardware afterwards.
func (c *Client) TrackerOff(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdTrackerOff)
	return err
}

// LoadTemplateFile loads a measurement template on the far side.
func (c *Client) LoadTemplateFile(ctx context.Context, path string) error {
	_, err := c.SendCommand(ctx, protocol.CmdLoadTemplateFile(path))
	return err
}

// SetReferenceGroup sets the point group used as the frame of reference
// for offsets.
func (c *Client) SetReferenceGroup(ctx context.Context, group string) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetReferenceGroup(group))
	return err
}

// SetWorkingFrame sets the frame measurements are reported in.
func (c *Client) SetWorkingFrame(ctx context.Context, frame string) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetWorkingFrame(frame))
	return err
}

// NewStation starts a new station and makes it the active one.
func (c *Client) NewStation(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdNewStation)
	return err
}

// SaveJobFile saves the measurement job on the far side.
func (c *Client) SaveJobFile(ctx context.Context, path string) error {
	_, err := c.SendCommand(ctx, protocol.CmdSaveJobFile(path))
	return err
}

// SetStationLock pins measurements to the current station when locked.
func (c *Client) SetStationLock(ctx context.Context, locked bool) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetStationLock(locked))
	return err
}

// Reset reboots the instrument's control software.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdReset)
	return err
}

// SetRandomizePoints toggles randomized simulated measurements.
func (c *Client) SetRandomizePoints(ctx context.Context, randomize bool) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetRandomizePoints(randomize))
	return err
}

// SetPowerLock toggles the tracker's camera-driven target locking.
func (c *Client) SetPowerLock(ctx context.Context, locked bool) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetPowerLock(locked))
	return err
}

// SetNumSamples sets how many samples are averaged per point.
func (c *Client) SetNumSamples(ctx context.Context, n int) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetNumSamples(n))
	return err
}

// SetNumIterations sets how many times a point group measurement repeats.
func (c *Client) SetNumIterations(ctx context.Context, n int) error {
	_, err := c.SendCommand(ctx, protocol.CmdSetNumIterations(n))
	return err
}

// SetMeasurementProfile selects the single point measurement profile.
func (c *Client) SetMeasurementProfile(ctx context.Context, profile string) error {
	_, err := c.SendCommand(ctx, protocol.CmdMeasurementProfile(profile))
	return err
}

// SetTwoFaceTolerances sets the azimuth, elevation and range tolerances
// for the two face check.
func (c *Client) SetTwoFaceTolerances(ctx context.Context, azTol, elTol, rangeTol float64) error {
	_, err := c.SendCommand(ctx, protocol.CmdTwoFaceTolerances(azTol, elTol, rangeTol))
	return err
}

// SetDriftTolerance sets the RMS and maximum tolerances for drift scans.
func (c *Client) SetDriftTolerance(ctx context.Context, rmsTol, maxTol float64) error {
	_, err := c.SendCommand(ctx, protocol.CmdDriftTolerance(rmsTol, maxTol))
	return err
}

// SetLSTolerance sets the RMS and maximum tolerances for least squares
// fitting.
func (c *Client) SetLSTolerance(ctx context.Context, rmsTol, maxTol float64) error {
	_, err := c.SendCommand(ctx, protocol.CmdLSTolerance(rmsTol, maxTol))
	return err
}

// LoadTrackerCompensation loads a tracker compensation profile.
func (c *Client) LoadTrackerCompensation(ctx context.Context, path string) error {
	_, err := c.SendCommand(ctx, protocol.CmdLoadTrackerCompensation(path))
	return err
}

// GenerateReport generates a measurement report on the far side.
func (c *Client) GenerateReport(ctx context.Context, name string) error {
	_, err := c.SendCommand(ctx, protocol.CmdGenerateReport(name))
	return err
}

// SaveSettings persists the instrument's settings.
func (c *Client) SaveSettings(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdSaveSettings)
	return err
}

// ClearErrors clears latched errors on the instrument.
func (c *Client) ClearErrors(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdClearErrors)
	return err
}
