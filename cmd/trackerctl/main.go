package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/logging"
	"github.com/danmuck/trackerctl/internal/protocol/session"
	"github.com/danmuck/trackerctl/internal/tracker"
)

type options struct {
	op         string
	target     string
	group      string
	ref        string
	point      string
	collection string
	value      string
	timeout    time.Duration
}

func main() {
	var o options
	configPath := flag.String("config", "", "path to trackerctl TOML config (blank = built-in defaults)")
	flag.StringVar(&o.op, "op", "status",
		"operation: status watch measure position offset point delta laser-on laser-off laser-status halt health-check set-index inc-index telescope reset")
	flag.StringVar(&o.target, "target", "", "target body, e.g. M1M3")
	flag.StringVar(&o.group, "group", "", "point group (defaults to -target)")
	flag.StringVar(&o.ref, "ref", "", "reference group for offset queries")
	flag.StringVar(&o.point, "point", "", "point name, e.g. M2_P1; two comma-separated names for delta")
	flag.StringVar(&o.collection, "collection", "", "point collection (blank = fresh uuid collection)")
	flag.StringVar(&o.value, "value", "", "op argument: index count, or telescope position \"el;az;rot\"")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Minute, "overall operation deadline")
	flag.Parse()

	if err := run(*configPath, o); err != nil {
		fmt.Fprintf(os.Stderr, "trackerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, o options) error {
	cfg, err := loadBridgeConfig(configPath)
	if err != nil {
		return err
	}
	profile, _ := logging.ParseProfile(cfg.Log.Profile)
	log := logging.Configure(profile)
	applyLevel(log, cfg.Log.Level)
	opLog := log.With().Str("op", o.op).Str("run_id", uuid.NewString()).Logger()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		discCtx, discCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer discCancel()
		_ = client.Disconnect(discCtx)
	}()

	return dispatch(ctx, opLog, client, cfg, o)
}

func newClient(cfg bridgeConfig) (*tracker.Client, error) {
	return tracker.NewClient(tracker.ClientConfig{
		Host:           cfg.Tracker.Host,
		Port:           cfg.Tracker.Port,
		SimulationMode: cfg.Tracker.SimulationMode,
		Elevation:      cfg.Telescope.Elevation,
		Azimuth:        cfg.Telescope.Azimuth,
		CamRot:         cfg.Telescope.CamRot,
		Session:        cfg.Session,
	})
}

func dispatch(ctx context.Context, log zerolog.Logger, client *tracker.Client, cfg bridgeConfig, o options) error {
	switch o.op {
	case "status":
		return opStatus(ctx, log, client)
	case "watch":
		return opWatch(ctx, log, client, cfg)
	case "measure":
		return opMeasure(ctx, log, client, o)
	case "position":
		return opPosition(ctx, log, client, o)
	case "offset":
		return opOffset(ctx, log, client, o)
	case "point":
		return opPoint(ctx, log, client, o)
	case "delta":
		return opDelta(ctx, log, client, o)
	case "laser-on":
		return opLaserOn(ctx, log, client)
	case "laser-off":
		return opLaserOff(ctx, log, client)
	case "laser-status":
		return opLaserStatus(ctx, log, client)
	case "halt":
		return opHalt(ctx, log, client)
	case "health-check":
		return opHealthCheck(ctx, log, client, cfg, o)
	case "set-index":
		return opSetIndex(ctx, log, client, o)
	case "inc-index":
		return opIncIndex(ctx, log, client, o)
	case "telescope":
		return opTelescope(ctx, log, client, o)
	case "reset":
		return opReset(ctx, log, client)
	default:
		return fmt.Errorf("unknown op: %s", o.op)
	}
}

func opStatus(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("status", status.String()).Msg("instrument status")
	return nil
}

// opWatch polls the instrument status until the deadline, backing off
// while the status is unchanged and resetting on a change.
func opWatch(ctx context.Context, log zerolog.Logger, client *tracker.Client, cfg bridgeConfig) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	last := ""
	for {
		status, err := client.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if status.String() != last {
			log.Info().Str("status", status.String()).Msg("instrument status")
			last = status.String()
			attempt = 0
		}
		attempt++
		delay := session.NextBackoffDelay(cfg.Session.Backoff, attempt, rng)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func opMeasure(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	if o.target == "" {
		return errors.New("-target is required for op measure")
	}
	result, err := client.MeasureTarget(ctx, o.target)
	if err != nil {
		return err
	}
	logResult(log, "measured target", result)
	return nil
}

func opPosition(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	if o.target == "" {
		return errors.New("-target is required for op position")
	}
	result, err := client.GetTargetPosition(ctx, o.target)
	if err != nil {
		return err
	}
	logResult(log, "target position", result)
	return nil
}

func opOffset(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	if o.target == "" {
		return errors.New("-target is required for op offset")
	}
	result, err := client.GetTargetOffset(ctx, o.target, o.ref)
	if err != nil {
		return err
	}
	logResult(log, "target offset from nominal", result)
	return nil
}

// opPoint measures one reflector into a collection and reads it back.
func opPoint(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	group := pointGroup(o)
	if group == "" || o.point == "" {
		return errors.New("-group (or -target) and -point are required for op point")
	}
	collection := o.collection
	if collection == "" {
		collection = uuid.NewString()
	}
	if _, err := client.MeasureSinglePoint(ctx, collection, group, o.point); err != nil {
		return err
	}
	measured, err := client.GetPointPosition(ctx, collection, group, o.point)
	if err != nil {
		return err
	}
	log.Info().
		Str("collection", collection).
		Str("point", measured.Point).
		Float64("x_mm", measured.Pos.X).
		Float64("y_mm", measured.Pos.Y).
		Float64("z_mm", measured.Pos.Z).
		Msg("point measured")
	return nil
}

// opDelta measures two reflectors of one group into a collection and
// reports their separation.
func opDelta(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	group := pointGroup(o)
	points := splitPoints(o.point)
	if group == "" || len(points) != 2 {
		return errors.New("-group (or -target) and -point \"P1,P2\" are required for op delta")
	}
	collection := o.collection
	if collection == "" {
		collection = uuid.NewString()
	}
	for _, point := range points {
		if _, err := client.MeasureSinglePoint(ctx, collection, group, point); err != nil {
			return err
		}
	}
	delta, err := client.GetPointDelta(ctx, collection, group, points[0], collection, group, points[1])
	if err != nil {
		return err
	}
	log.Info().
		Str("collection", collection).
		Str("p1", points[0]).
		Str("p2", points[1]).
		Float64("dx_m", delta.Pos.X).
		Float64("dy_m", delta.Pos.Y).
		Float64("dz_m", delta.Pos.Z).
		Msg("point delta")
	return nil
}

func opLaserOn(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	if err := client.LaserOn(ctx); err != nil {
		return err
	}
	log.Info().Msg("laser on requested")
	return nil
}

func opLaserOff(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	if err := client.LaserOff(ctx); err != nil {
		return err
	}
	log.Info().Msg("laser off requested")
	return nil
}

func opLaserStatus(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	status, err := client.LaserStatus(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("laser", status).Msg("laser status")
	return nil
}

func opHalt(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	reply, err := client.Halt(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("reply", reply.Body).Msg("halted")
	return nil
}

func opHealthCheck(ctx context.Context, log zerolog.Logger, client *tracker.Client, cfg bridgeConfig, o options) error {
	groups := cfg.Targets
	if o.group != "" {
		groups = []string{o.group}
	}
	if err := client.HealthCheck(ctx, groups); err != nil {
		return err
	}
	log.Info().Strs("groups", groups).Msg("health check passed")
	return nil
}

func opSetIndex(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	idx, err := strconv.Atoi(strings.TrimSpace(o.value))
	if err != nil {
		return fmt.Errorf("-value must be a measurement index: %w", err)
	}
	if err := client.SetMeasuredIndex(ctx, idx); err != nil {
		return err
	}
	log.Info().Int("index", idx).Msg("measurement index set")
	return nil
}

func opIncIndex(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	inc := 1
	if strings.TrimSpace(o.value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(o.value))
		if err != nil {
			return fmt.Errorf("-value must be an increment: %w", err)
		}
		inc = parsed
	}
	if err := client.IncrementMeasuredIndex(ctx, inc); err != nil {
		return err
	}
	log.Info().Int("increment", inc).Msg("measurement index incremented")
	return nil
}

func opTelescope(ctx context.Context, log zerolog.Logger, client *tracker.Client, o options) error {
	elevation, azimuth, camRot, err := parseTelescopeValue(o.value)
	if err != nil {
		return err
	}
	if err := client.SetTelescopePosition(ctx, elevation, azimuth, camRot); err != nil {
		return err
	}
	log.Info().
		Float64("elevation", elevation).
		Float64("azimuth", azimuth).
		Float64("cam_rot", camRot).
		Msg("telescope position published")
	return nil
}

func opReset(ctx context.Context, log zerolog.Logger, client *tracker.Client) error {
	if err := client.Reset(ctx); err != nil {
		return err
	}
	log.Info().Msg("instrument reset")
	return nil
}

func logResult(log zerolog.Logger, msg string, r tracker.MeasurementResult) {
	log.Info().
		Str("target", r.Target).
		Str("frame", r.Frame).
		Float64("x_m", r.Pos.X).
		Float64("y_m", r.Pos.Y).
		Float64("z_m", r.Pos.Z).
		Float64("rx_deg", r.Rot.U).
		Float64("ry_deg", r.Rot.V).
		Float64("rz_deg", r.Rot.W).
		Msg(msg)
}

func pointGroup(o options) string {
	if o.group != "" {
		return o.group
	}
	return o.target
}

func splitPoints(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// parseTelescopeValue parses "el;az;rot" with the wire's separator.
func parseTelescopeValue(raw string) (elevation, azimuth, camRot float64, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ";")
	if len(parts) != 3 {
		return 0, 0, 0, errors.New(`-value must be "el;az;rot" for op telescope`)
	}
	values := make([]float64, 3)
	for i, part := range parts {
		values[i], err = strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("telescope position %q: %w", raw, err)
		}
	}
	return values[0], values[1], values[2], nil
}

func applyLevel(log zerolog.Logger, level string) {
	if strings.TrimSpace(level) == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping profile default")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
