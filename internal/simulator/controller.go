package simulator

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/geometry"
	"github.com/danmuck/trackerctl/internal/logging"
	"github.com/danmuck/trackerctl/internal/protocol"
)

var ErrUnknownBody = errors.New("simulator: unknown body")

// Instrument status tokens. statusBusy is internal only; the wire reports
// busy with an error rejection instead.
const (
	statusReady   = "READY"
	statusTwoFace = "2FACE"
	statusDrift   = "DRIFT"
	statusBusy    = "_BUSY_"
)

// Laser state tokens as written by ?LSTA.
const (
	laserOff  = "LOFF"
	laserWarm = "WARM"
	laserOn   = "LON"
)

// Pose noise applied when randomizing bodies: a millimeter of position
// scatter and a few millidegrees of rotation scatter.
const (
	noiseOriginStddev   = 1e-3
	noiseRotationStddev = 6e-3
)

// saTemplateDir is the only directory the instrument accepts measurement
// templates from. The doubled backslashes are part of the required path.
const saTemplateDir = `C:\\Program Files (x86)\\New River Kinematics\\T2SA\\`

const wireTimeLayout = "01/02/2006 15:04:05"

// Config configures a Controller.
type Config struct {
	// MeasurementDuration is how long a measurement plan pretends to run.
	MeasurementDuration time.Duration
	// LaserWarmupDuration is how long the laser takes to warm up.
	LaserWarmupDuration time.Duration
	// Seed seeds pose randomization; 0 draws a seed from the clock.
	Seed int64
	// RandomizeOnStart scatters every body around its nominal pose at
	// construction, so a fresh instrument reports a misaligned telescope.
	RandomizeOnStart bool
	Layout           []BodySite
}

// WithDefaults fills zero fields with the instrument's stock behavior.
func (c Config) WithDefaults() Config {
	if c.MeasurementDuration == 0 {
		c.MeasurementDuration = 2 * time.Second
	}
	if c.LaserWarmupDuration == 0 {
		c.LaserWarmupDuration = 60 * time.Second
	}
	if len(c.Layout) == 0 {
		c.Layout = DefaultLayout()
	}
	return c
}

// pendingPlan is a measurement plan in flight. Its reply is delivered when
// doneAt passes, or replaced with an error when halted.
type pendingPlan struct {
	group     string
	rawGroup  string
	doneAt    time.Time
	reply     string
	randomize bool
}

// handler answers one parsed command. Arguments arrive as the pattern's
// named captures; handlers run with the controller lock held.
type handler func(now time.Time, caps map[string]string) []string

// command binds a dispatch verb's argument pattern to its handler.
type command struct {
	args *regexp.Regexp
	fn   handler
}

// Argument patterns for the dispatch table, one per verb shape. All are
// anchored; a known verb whose arguments fail its pattern is answered as
// an unsupported command rather than guessed at.
var (
	reNoArgs    = regexp.MustCompile(`^$`)
	reValue     = regexp.MustCompile(`^(?P<value>.*)$`)
	reSwitch    = regexp.MustCompile(`^(?P<value>[01])$`)
	rePlan      = regexp.MustCompile(`^(?P<point_group>.*)$`)
	reTarget    = regexp.MustCompile(`^(?P<target>.*)$`)
	rePath      = regexp.MustCompile(`^(?P<file_path>.*)$`)
	reRefGroup  = regexp.MustCompile(`^(?P<reference_group>.*)$`)
	reFrame     = regexp.MustCompile(`^(?P<working_frame>.*)$`)
	reAltAzRot  = regexp.MustCompile(`^(?P<alt>[^;]*);(?P<az>[^;]*);(?P<rot>[^;]*)$`)
	rePoint     = regexp.MustCompile(`^(?P<collection>[^;]*);(?P<point_group>[^;]*);(?P<point_n>[^;]*)$`)
	rePointPair = regexp.MustCompile(`^(?P<p1collection>[^;]*);(?P<p1group>[^;]*);(?P<p1>[^;]*);(?P<p2collection>[^;]*);(?P<p2group>[^;]*);(?P<p2>[^;]*)$`)
	reOffset    = regexp.MustCompile(`^(?P<point_group>[^;]*);(?P<reference_group>[^;]*)$`)
	reTol2      = regexp.MustCompile(`^(?P<rms_tol>[^;]*);(?P<max_tol>[^;]*)$`)
	reTol3      = regexp.MustCompile(`^(?P<az_tol>[^;]*);(?P<el_tol>[^;]*);(?P<range_tol>[^;]*)$`)
)

// Controller holds all instrument state and answers one command line at a
// time. It does no I/O; the server feeds it lines and delivers replies.
type Controller struct {
	cfg Config
	log zerolog.Logger

	// dispatch and canned are fixed at construction and never written
	// again. dispatch keys are verbs, canned keys are whole lines and are
	// consulted only when the verb has no dispatcher.
	dispatch map[string]command
	canned   map[string]string

	mu              sync.Mutex
	rng             *rand.Rand
	status          string
	laser           string
	warmupDoneAt    time.Time
	simulationMode  bool
	randomizePoints bool
	measIndex       int
	referenceGroup  string
	workingFrame    string
	validFrames     map[string]struct{}
	bodies          map[string]geometry.Body
	nominal         map[string]geometry.BodyPose
	current         map[string]geometry.BodyPose
	settings        map[string]string
	forcedBusy      map[string]struct{}
	telescope       TelescopePosition
	plan            *pendingPlan
	planCancelled   bool
}

// TelescopePosition is the alignment the telescope last published, in
// degrees.
type TelescopePosition struct {
	Elevation float64 `json:"elevation"`
	Azimuth   float64 `json:"azimuth"`
	Rotator   float64 `json:"rotator"`
}

// NewController builds an instrument in its power-on state: laser off,
// status ready, measurement index 1.
func NewController(cfg Config) *Controller {
	cfg = cfg.WithDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := &Controller{
		cfg:         cfg,
		log:         logging.Component("simulator"),
		rng:         rand.New(rand.NewSource(seed)),
		status:      statusReady,
		laser:       laserOff,
		measIndex:   1,
		validFrames: map[string]struct{}{"": {}},
		bodies:      make(map[string]geometry.Body, len(cfg.Layout)),
		nominal:     make(map[string]geometry.BodyPose, len(cfg.Layout)),
		current:     make(map[string]geometry.BodyPose, len(cfg.Layout)),
		settings:    make(map[string]string),
		forcedBusy:  make(map[string]struct{}),
	}
	for _, site := range cfg.Layout {
		key := strings.ToLower(site.Body.Name)
		c.bodies[key] = site.Body
		c.nominal[key] = site.Nominal
		c.current[key] = site.Nominal
	}
	if len(cfg.Layout) > 0 {
		c.referenceGroup = strings.ToUpper(cfg.Layout[0].Body.Name)
	}
	if cfg.RandomizeOnStart {
		for key := range c.current {
			c.current[key] = c.randomizedLocked(c.nominal[key])
		}
	}
	c.canned = map[string]string{
		"!NEW_STATION":   "ACK300",
		"!SAVE_SETTINGS": statusReady,
	}
	c.dispatch = map[string]command{
		"?STAT":                      {reNoArgs, c.statLocked},
		"?LSTA":                      {reNoArgs, c.laserStatusLocked},
		"!LST":                       {reValue, c.setPowerLocked},
		"!SET_SIM":                   {reSwitch, c.setSimulationLocked},
		"SET_RANDOMIZE_POINTS":       {reSwitch, c.setRandomizeLocked},
		"!RESET_T2SA":                {reNoArgs, c.resetLocked},
		"!CMDEXE":                    {rePlan, c.measurePlanLocked},
		"!2FACE_CHECK":               {rePlan, c.twoFaceLocked},
		"!MEAS_DRIFT":                {rePlan, c.driftLocked},
		"!HALT":                      {reNoArgs, c.haltLocked},
		"?POS":                       {reTarget, c.positionLocked},
		"?OFFSET":                    {reOffset, c.offsetLocked},
		"!MEAS_SINGLE_POINT":         {rePoint, c.measurePointLocked},
		"?POINT_POS":                 {rePoint, c.pointPositionLocked},
		"?POINT_DELTA":               {rePointPair, c.pointDeltaLocked},
		"!PUBLISH_ALT_AZ_ROT":        {reAltAzRot, c.setTelescopeLocked},
		"!APPLY_ALT_AZ_ROT":          {reAltAzRot, c.setTelescopeLocked},
		"!LOAD_SA_TEMPLATE_FILE":     {rePath, c.loadTemplateLocked},
		"!SAVE_SA_JOBFILE":           {rePath, c.saveJobfileLocked},
		"!SET_REFERENCE_GROUP":       {reRefGroup, c.setReferenceGroupLocked},
		"!SET_WORKING_FRAME":         {reFrame, c.setWorkingFrameLocked},
		"!INC_MEAS_INDEX":            {reValue, c.incIndexLocked},
		"!SET_MEAS_INDEX":            {reValue, c.setIndexLocked},
		"SET_POWER_LOCK":             {reSwitch, c.storeSetting("power_lock")},
		"!SET_STATION_LOCK":          {reSwitch, c.storeSetting("station_lock")},
		"SET_NUM_SAMPLES":            {reValue, c.storeIntSetting("set_num_samples")},
		"SET_NUM_ITERATIONS":         {reValue, c.storeIntSetting("set_num_iterations")},
		"!SINGLE_POINT_MEAS_PROFILE": {reValue, c.storeSetting("measurement_profile")},
		"!SET_2FACE_TOL":             {reTol3, c.storeTolerance("two_face_tolerance", "az_tol", "el_tol", "range_tol")},
		"!SET_DRIFT_TOL":             {reTol2, c.storeTolerance("drift_tolerance", "rms_tol", "max_tol")},
		"!SET_LS_TOL":                {reTol2, c.storeTolerance("ls_tolerance", "rms_tol", "max_tol")},
		"!LOAD_TRACKER_COMPENSATION": {reValue, c.storeSetting("tracker_compensation")},
		"!GEN_REPORT":                {reValue, c.storeSetting("last_report")},
		"!CLERCL":                    {reNoArgs, c.clearErrorsLocked},
	}
	// A canned line whose verb also has a dispatcher could never be
	// reached.
	for line := range c.canned {
		verb, _ := splitCommand(line)
		if _, ok := c.dispatch[verb]; ok {
			panic("simulator: canned line shadowed by dispatcher: " + line)
		}
	}
	return c
}

// HandleLine answers one command line. Replies that fell due since the
// last call, such as a finished measurement plan, are delivered first so
// the wire stays in request order.
func (c *Controller) HandleLine(now time.Time, line string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies := c.collectDueLocked(now)
	line = strings.TrimSpace(line)
	if line == "" {
		return replies
	}
	return append(replies, c.dispatchLocked(now, line)...)
}

// DueReplies returns replies whose deadline has passed without any new
// command arriving, for delivery by a timer.
func (c *Controller) DueReplies(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectDueLocked(now)
}

// NextDue reports when the next deferred reply falls due.
func (c *Controller) NextDue() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan == nil {
		return time.Time{}, false
	}
	return c.plan.doneAt, true
}

func (c *Controller) collectDueLocked(now time.Time) []string {
	c.promoteLaserLocked(now)
	if c.plan == nil || now.Before(c.plan.doneAt) {
		return nil
	}
	plan := c.plan
	c.plan = nil
	c.status = statusReady
	if plan.randomize {
		c.current[plan.group] = c.randomizedLocked(c.nominal[plan.group])
	}
	c.log.Debug().Str("group", plan.rawGroup).Msg("measurement plan complete")
	return []string{plan.reply}
}

// dispatchLocked routes one line through the dispatch table. The verb
// picks the entry, the entry's pattern parses the arguments; lines that
// match neither a dispatcher nor a canned reply are unsupported.
func (c *Controller) dispatchLocked(now time.Time, line string) []string {
	verb, args := splitCommand(line)
	if cmd, ok := c.dispatch[verb]; ok {
		caps, ok := captures(cmd.args, args)
		if !ok {
			return c.unsupportedLocked(line)
		}
		return cmd.fn(now, caps)
	}
	if body, ok := c.canned[line]; ok {
		return good(body)
	}
	return c.unsupportedLocked(line)
}

// captures matches args against a command's pattern and returns its named
// groups. A failed match means the arguments are malformed for the verb.
func captures(re *regexp.Regexp, args string) (map[string]string, bool) {
	m := re.FindStringSubmatch(args)
	if m == nil {
		return nil, false
	}
	caps := make(map[string]string, len(m)-1)
	for i, name := range re.SubexpNames() {
		if i > 0 && name != "" {
			caps[name] = m[i]
		}
	}
	return caps, true
}

func (c *Controller) unsupportedLocked(line string) []string {
	c.log.Warn().Str("line", line).Msg("unsupported command")
	return errReply(protocol.CodeCommandRejected, fmt.Sprintf("Unsupported command %q", line))
}

func (c *Controller) setSimulationLocked(_ time.Time, caps map[string]string) []string {
	c.simulationMode = caps["value"] == "1"
	return good("ACK300")
}

func (c *Controller) setRandomizeLocked(_ time.Time, caps map[string]string) []string {
	c.randomizePoints = caps["value"] == "1"
	return good("ACK300")
}

func (c *Controller) resetLocked(_ time.Time, _ map[string]string) []string {
	var replies []string
	cancelled := false
	if c.plan != nil {
		replies = append(replies, errReply(protocol.CodeCommandToHaltT2SASucceeded,
			"Error executing measure plan for "+c.plan.rawGroup)...)
		c.plan = nil
		cancelled = true
	}
	c.planCancelled = cancelled
	c.status = statusReady
	c.laser = laserOff
	c.warmupDoneAt = time.Time{}
	c.measIndex = 1
	c.settings = make(map[string]string)
	c.forcedBusy = make(map[string]struct{})
	c.log.Info().Msg("instrument reset")
	return append(replies, good("ACK300")...)
}

func (c *Controller) statLocked(_ time.Time, _ map[string]string) []string {
	if len(c.forcedBusy) > 0 || c.status == statusBusy {
		return errReply(protocol.CodeCommandRejectedBusy, "Command rejected. SA is busy.")
	}
	return good(fmt.Sprintf("%s, measurement index %d", c.status, c.measIndex))
}

func (c *Controller) laserStatusLocked(now time.Time, _ map[string]string) []string {
	if c.laser == laserWarm {
		remaining := c.warmupDoneAt.Sub(now).Seconds()
		return good(fmt.Sprintf("WARM, %.2f seconds", remaining))
	}
	return good(c.laser)
}

func (c *Controller) setPowerLocked(now time.Time, caps map[string]string) []string {
	value := caps["value"]
	switch value {
	case "0", "2":
		c.laser = laserOff
		c.warmupDoneAt = time.Time{}
		return good("Tracker Interface Stopped: True")
	case "1":
		c.laser = laserWarm
		c.warmupDoneAt = now.Add(c.cfg.LaserWarmupDuration)
		c.log.Debug().Dur("warmup", c.cfg.LaserWarmupDuration).Msg("laser warming up")
		return good("Tracker Interface Started: True")
	}
	return errReply(protocol.CodeCommandRejected, fmt.Sprintf("Invalid input argument: %s.", value))
}

// measurePlanLocked handles !CMDEXE. The camera rotator pseudo group is an
// immediate alignment update, every other group runs as a timed plan.
func (c *Controller) measurePlanLocked(now time.Time, caps map[string]string) []string {
	group := caps["point_group"]
	if rest, ok := strings.CutPrefix(group, "CAM_ROT:"); ok {
		fields := strings.Split(rest, ";")
		if len(fields) != 3 {
			return errReply(protocol.CodeCommandRejected,
				fmt.Sprintf("Failed to convert a value to float: %s.", rest))
		}
		return c.applyAlignmentLocked(fields[0], fields[1], fields[2])
	}
	return c.startPlanLocked(now, statusBusy, group,
		"ACK-106 Successfully ran CMD "+group, c.randomizePoints)
}

func (c *Controller) twoFaceLocked(now time.Time, caps map[string]string) []string {
	group := caps["point_group"]
	return c.startPlanLocked(now, statusTwoFace, group,
		"ACK-106 Successfully ran two face check for "+group, false)
}

func (c *Controller) driftLocked(now time.Time, caps map[string]string) []string {
	group := caps["point_group"]
	return c.startPlanLocked(now, statusDrift, group,
		"ACK-106 Successfully ran drift scan for "+group, false)
}

func (c *Controller) startPlanLocked(now time.Time, action, group, doneReply string, randomize bool) []string {
	if c.plan != nil || c.forcedBusyMatchLocked(group) {
		return errReply(protocol.CodeCommandRejected, "Ongoing measurement.")
	}
	if !c.isReadyLocked() {
		return errReply(protocol.CodeCommandRejected,
			fmt.Sprintf("T2SA not ready: %s", c.readinessLocked()))
	}
	key := strings.ToLower(group)
	if _, ok := c.bodies[key]; !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No point group %s.", group))
	}
	c.status = action
	c.planCancelled = false
	c.plan = &pendingPlan{
		group:     key,
		rawGroup:  group,
		doneAt:    now.Add(c.cfg.MeasurementDuration),
		reply:     doneReply,
		randomize: randomize,
	}
	c.log.Debug().Str("group", group).Str("action", action).Msg("measurement plan started")
	return nil
}

func (c *Controller) haltLocked(_ time.Time, _ map[string]string) []string {
	var replies []string
	if c.plan != nil {
		replies = append(replies, errReply(protocol.CodeCommandToHaltT2SASucceeded,
			"Error executing measure plan for "+c.plan.rawGroup)...)
		c.plan = nil
		c.planCancelled = true
		c.log.Debug().Msg("measurement plan halted")
	}
	c.status = statusReady
	return append(replies, good(statusReady)...)
}

func (c *Controller) positionLocked(now time.Time, caps map[string]string) []string {
	target := caps["target"]
	if c.plan != nil {
		return errReply(protocol.CodeCommandRejected, "Command rejected. SA is busy.")
	}
	if c.planCancelled {
		return errReply(protocol.CodeFailedPointGroupMeasurement, "Measurement failed.")
	}
	frame, err := protocol.ParseTargetFrameName(target)
	if err != nil {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No point group %s.", target))
	}
	key := strings.ToLower(frame.Target)
	pose, ok := c.current[key]
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No point group %s.", frame.Target))
	}
	return good(fmt.Sprintf(
		"Object Offset Report Frame%s_%s;X:%v;Y:%v;Z:%v;Rx:%v;Ry:%v;Rz:%v;%s",
		strings.ToUpper(key), c.measurementIDLocked(),
		pose.Origin.X, pose.Origin.Y, pose.Origin.Z,
		pose.Rotation.U, pose.Rotation.V, pose.Rotation.W,
		now.Format(wireTimeLayout)))
}

// offsetLocked answers ?OFFSET. Both arguments may be plain group names or
// full frame names; the report is the deviation of the point group from
// its nominal placement relative to the reference group.
func (c *Controller) offsetLocked(now time.Time, caps map[string]string) []string {
	pointArg, refArg := caps["point_group"], caps["reference_group"]
	pointKey, ok := c.resolveGroupLocked(pointArg)
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No point group %s.", pointArg))
	}
	refKey, ok := c.resolveGroupLocked(refArg)
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No reference point group %s.", refArg))
	}

	nomPos, nomRot := geometry.PoseDelta(c.nominal[pointKey], c.nominal[refKey])
	curPos, curRot := geometry.PoseDelta(c.current[pointKey], c.current[refKey])
	dp := curPos.Sub(nomPos)
	dr := curRot.Sub(nomRot)
	return good(fmt.Sprintf(
		"Object Offset Report Frame%s_%s;X:%v;Y:%v;Z:%v;Rx:%v;Ry:%v;Rz:%v;%s",
		strings.ToUpper(pointKey), c.measurementIDLocked(),
		dp.X, dp.Y, dp.Z, dr.U, dr.V, dr.W,
		now.Format(wireTimeLayout)))
}

func (c *Controller) measurePointLocked(now time.Time, caps map[string]string) []string {
	return c.singlePointLocked(now, caps, true)
}

func (c *Controller) pointPositionLocked(now time.Time, caps map[string]string) []string {
	return c.singlePointLocked(now, caps, false)
}

// singlePointLocked answers !MEAS_SINGLE_POINT and ?POINT_POS. Measuring
// requires a warm laser and an idle instrument; reading a stored point
// does not.
func (c *Controller) singlePointLocked(now time.Time, caps map[string]string, measure bool) []string {
	group, point := caps["point_group"], caps["point_n"]
	if measure {
		if c.plan != nil {
			return errReply(protocol.CodeCommandRejected, "Ongoing measurement.")
		}
		if !c.isReadyLocked() {
			return errReply(protocol.CodeCommandRejected,
				fmt.Sprintf("T2SA not ready: %s", c.readinessLocked()))
		}
	}
	key := strings.ToLower(group)
	body, ok := c.bodies[key]
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName,
			fmt.Sprintf("No point group %s.", group))
	}
	idx, errMsg := parsePointName(point, group, len(body.Targets))
	if errMsg != "" {
		return errReply(protocol.CodeFailedPointGroupMeasurement, errMsg)
	}
	pos := geometry.TargetPosition(c.current[key], body.Targets[idx-1])
	return good(fmt.Sprintf("Single Point Measurement %s result %.6f,%.6f,%.6f %s True",
		point, pos.X*1e3, pos.Y*1e3, pos.Z*1e3, now.Format(wireTimeLayout)))
}

func (c *Controller) pointDeltaLocked(now time.Time, caps map[string]string) []string {
	p1Group, p1 := caps["p1group"], caps["p1"]
	p2Group, p2 := caps["p2group"], caps["p2"]
	key1 := strings.ToLower(p1Group)
	body1, ok := c.bodies[key1]
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName, "No group "+p1Group)
	}
	key2 := strings.ToLower(p2Group)
	body2, ok := c.bodies[key2]
	if !ok {
		return errReply(protocol.CodeDidFindOrSetPointGroupAndTargetName, "No group "+p2Group)
	}
	idx1, errMsg := parsePointName(p1, p1Group, len(body1.Targets))
	if errMsg != "" {
		return errReply(protocol.CodeFailedPointGroupMeasurement, errMsg)
	}
	idx2, errMsg := parsePointName(p2, p2Group, len(body2.Targets))
	if errMsg != "" {
		return errReply(protocol.CodeFailedPointGroupMeasurement, errMsg)
	}
	pos1 := geometry.TargetPosition(c.current[key1], body1.Targets[idx1-1])
	pos2 := geometry.TargetPosition(c.current[key2], body2.Targets[idx2-1])
	delta := pos2.Sub(pos1)
	return good(fmt.Sprintf("Single Point Measurement %s result %v,%v,%v %s False",
		p2, delta.X, delta.Y, delta.Z, now.Format(wireTimeLayout)))
}

func (c *Controller) setTelescopeLocked(_ time.Time, caps map[string]string) []string {
	return c.applyAlignmentLocked(caps["alt"], caps["az"], caps["rot"])
}

func (c *Controller) applyAlignmentLocked(alt, az, rot string) []string {
	fields := [3]string{alt, az, rot}
	var values [3]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return errReply(protocol.CodeCommandRejected,
				fmt.Sprintf("Failed to convert a value to float: %s/%s/%s.", alt, az, rot))
		}
		values[i] = v
	}
	c.telescope = TelescopePosition{Elevation: values[0], Azimuth: values[1], Rotator: values[2]}
	return good(statusReady)
}

func (c *Controller) loadTemplateLocked(_ time.Time, caps map[string]string) []string {
	path := caps["file_path"]
	if strings.HasPrefix(path, saTemplateDir) && strings.HasSuffix(path, ".xit64") {
		return good(statusReady)
	}
	return errReply(protocol.CodeSATemplateFileNotFound, "SA Template file not found or loaded.")
}

func (c *Controller) saveJobfileLocked(_ time.Time, caps map[string]string) []string {
	if strings.HasPrefix(caps["file_path"], "C:") {
		return good(statusReady)
	}
	return errReply(protocol.CodeSaveSAJobFileFailed, "Save SA job file failed.")
}

func (c *Controller) setReferenceGroupLocked(_ time.Time, caps map[string]string) []string {
	group := caps["reference_group"]
	if _, ok := c.bodies[strings.ToLower(group)]; !ok {
		return errReply(protocol.CodeRefGroupNotFoundInTemplateFile,
			fmt.Sprintf("No group %s. Must be one of %s.", group,
				strings.Join(c.bodyNamesLocked(), " ")))
	}
	c.referenceGroup = group
	return good(statusReady)
}

func (c *Controller) setWorkingFrameLocked(_ time.Time, caps map[string]string) []string {
	frame := caps["working_frame"]
	if _, ok := c.validFrames[frame]; !ok {
		return errReply(protocol.CodeWorkingFrameNotFound, "POS: NotFound")
	}
	c.workingFrame = frame
	return good(statusReady)
}

func (c *Controller) incIndexLocked(_ time.Time, caps map[string]string) []string {
	return c.adjustIndexLocked(caps["value"], true)
}

func (c *Controller) setIndexLocked(_ time.Time, caps map[string]string) []string {
	return c.adjustIndexLocked(caps["value"], false)
}

func (c *Controller) adjustIndexLocked(args string, increment bool) []string {
	n, err := strconv.Atoi(args)
	if increment {
		if err != nil {
			return errReply(protocol.CodeFailedToIncMeasIndex,
				fmt.Sprintf("Measurement index increment %s not valid.", args))
		}
		c.measIndex += n
		return good(statusReady)
	}
	if err != nil || n < 1 {
		return errReply(protocol.CodeInstrumentIdxNotValid,
			fmt.Sprintf("Measurement index %s not valid.", args))
	}
	c.measIndex = n
	return good(statusReady)
}

// storeSetting returns a handler that records the value capture under the
// given settings key.
func (c *Controller) storeSetting(name string) handler {
	return func(_ time.Time, caps map[string]string) []string {
		c.settings[name] = caps["value"]
		return good(statusReady)
	}
}

// storeIntSetting is storeSetting for values that must parse as integers.
func (c *Controller) storeIntSetting(name string) handler {
	return func(_ time.Time, caps map[string]string) []string {
		value := caps["value"]
		if _, err := strconv.Atoi(value); err != nil {
			return errReply(protocol.CodeCommandRejected,
				fmt.Sprintf("Failed to convert a value to int: %s.", value))
		}
		c.settings[name] = value
		return good(statusReady)
	}
}

// storeTolerance returns a handler that validates the named captures as
// floats and records them, semicolon joined, under the settings key.
func (c *Controller) storeTolerance(name string, keys ...string) handler {
	return func(_ time.Time, caps map[string]string) []string {
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = caps[key]
		}
		joined := strings.Join(parts, ";")
		for _, part := range parts {
			if _, err := strconv.ParseFloat(part, 64); err != nil {
				return errReply(protocol.CodeCommandRejected,
					fmt.Sprintf("Failed to convert a value to float: %s.", joined))
			}
		}
		c.settings[name] = joined
		return good(statusReady)
	}
}

func (c *Controller) clearErrorsLocked(_ time.Time, _ map[string]string) []string {
	c.planCancelled = false
	return good(statusReady)
}

// resolveGroupLocked maps a wire argument to a body key. Full frame names
// resolve to their target group, anything else is taken as a group name.
func (c *Controller) resolveGroupLocked(arg string) (string, bool) {
	name := arg
	if frame, err := protocol.ParseTargetFrameName(arg); err == nil {
		name = frame.Target
	}
	key := strings.ToLower(name)
	_, ok := c.bodies[key]
	return key, ok
}

func (c *Controller) forcedBusyMatchLocked(group string) bool {
	if _, ok := c.forcedBusy["*"]; ok {
		return true
	}
	_, ok := c.forcedBusy[strings.ToLower(group)]
	return ok
}

func (c *Controller) promoteLaserLocked(now time.Time) {
	if c.laser == laserWarm && !now.Before(c.warmupDoneAt) {
		c.laser = laserOn
		c.log.Debug().Msg("laser warmup complete")
	}
}

func (c *Controller) isReadyLocked() bool {
	return c.laser == laserOn
}

func (c *Controller) readinessLocked() string {
	if c.laser != laserOn {
		return fmt.Sprintf("Laser status %s. Should be 'LON'.", c.laser)
	}
	return statusReady
}

func (c *Controller) measurementIDLocked() string {
	return fmt.Sprintf("%.2f_%.2f_%.2f1",
		c.telescope.Azimuth, c.telescope.Elevation, c.telescope.Rotator)
}

func (c *Controller) randomizedLocked(nominal geometry.BodyPose) geometry.BodyPose {
	return geometry.BodyPose{
		Origin: geometry.Coordinate{
			X: nominal.Origin.X + c.rng.NormFloat64()*noiseOriginStddev,
			Y: nominal.Origin.Y + c.rng.NormFloat64()*noiseOriginStddev,
			Z: nominal.Origin.Z + c.rng.NormFloat64()*noiseOriginStddev,
		},
		Rotation: geometry.Rotation{
			U: nominal.Rotation.U + c.rng.NormFloat64()*noiseRotationStddev,
			V: nominal.Rotation.V + c.rng.NormFloat64()*noiseRotationStddev,
			W: nominal.Rotation.W + c.rng.NormFloat64()*noiseRotationStddev,
		},
	}
}

func (c *Controller) bodyNamesLocked() []string {
	names := make([]string, 0, len(c.bodies))
	for name := range c.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parsePointName parses "<group>_P<n>" (the P is optional) and validates
// the 1-based index against the group's point count.
func parsePointName(point, group string, count int) (int, string) {
	badFormat := fmt.Sprintf(
		"Unable to parse point %s. Must be in the format %s_PN, where N goes from 1 to %d.",
		point, group, count)
	i := strings.LastIndex(point, "_")
	if i < 0 || !strings.EqualFold(point[:i], group) {
		return 0, badFormat
	}
	tail := strings.TrimPrefix(point[i+1:], "P")
	n, err := strconv.Atoi(tail)
	if err != nil || n < 1 || n > count {
		return 0, badFormat
	}
	return n, ""
}

func splitCommand(line string) (verb, args string) {
	if strings.HasPrefix(line, "?POS") {
		verb, args, _ = strings.Cut(line, " ")
		return verb, args
	}
	verb, args, _ = strings.Cut(line, ":")
	return verb, args
}

func good(body string) []string {
	return []string{"ACK-300 " + body}
}

func errReply(code protocol.ErrorCode, reason string) []string {
	return []string{fmt.Sprintf("ERR-%03d %s", int(code), reason)}
}
