package protocol

import (
	"fmt"
	"strings"
)

// Fixed commands.
const (
	CmdStatus       = "?STAT"
	CmdLaserStatus  = "?LSTA"
	CmdLaserOn      = "!LST:1"
	CmdLaserOff     = "!LST:0"
	CmdTrackerOff   = "!LST:2"
	CmdHalt         = "!HALT"
	CmdNewStation   = "!NEW_STATION"
	CmdReset        = "!RESET_T2SA"
	CmdClearErrors  = "!CLERCL"
	CmdSaveSettings = "!SAVE_SETTINGS"
)

// FormatCommand joins a verb with its colon-separated argument list. The
// position query is the one verb whose argument follows a space instead.
func FormatCommand(verb string, args ...string) string {
	if len(args) == 0 {
		return verb
	}
	joined := strings.Join(args, ";")
	if verb == "?POS" {
		return verb + " " + joined
	}
	return verb + ":" + joined
}

func onOff(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func CmdSetSimulation(on bool) string { return "!SET_SIM:" + onOff(on) }

func CmdMeasurePlan(target string) string { return "!CMDEXE:" + target }

func CmdTargetPosition(frame string) string { return "?POS " + frame }

func CmdTargetOffset(frame, referenceFrame string) string {
	return fmt.Sprintf("?OFFSET:%s;%s", frame, referenceFrame)
}

func CmdSinglePoint(collection, group, point string) string {
	return fmt.Sprintf("!MEAS_SINGLE_POINT:%s;%s;%s", collection, group, point)
}

func CmdPointPosition(collection, group, point string) string {
	return fmt.Sprintf("?POINT_POS:%s;%s;%s", collection, group, point)
}

func CmdPointDelta(p1Collection, p1Group, p1, p2Collection, p2Group, p2 string) string {
	return fmt.Sprintf("?POINT_DELTA:%s;%s;%s;%s;%s;%s",
		p1Collection, p1Group, p1, p2Collection, p2Group, p2)
}

func CmdTwoFaceCheck(group string) string { return "!2FACE_CHECK:" + group }

func CmdMeasureDrift(group string) string { return "!MEAS_DRIFT:" + group }

func CmdPublishTelescopePosition(elevation, azimuth, camRot float64) string {
	return fmt.Sprintf("!PUBLISH_ALT_AZ_ROT:%v;%v;%v", elevation, azimuth, camRot)
}

func CmdApplyTelescopePosition(elevation, azimuth, camRot float64) string {
	return fmt.Sprintf("!APPLY_ALT_AZ_ROT:%v;%v;%v", elevation, azimuth, camRot)
}

func CmdCamRotPlan(elevation, azimuth, camRot float64) string {
	return fmt.Sprintf("!CMDEXE:CAM_ROT:%v;%v;%v", elevation, azimuth, camRot)
}

func CmdLoadTemplateFile(path string) string { return "!LOAD_SA_TEMPLATE_FILE:" + path }

func CmdSetReferenceGroup(group string) string { return "!SET_REFERENCE_GROUP:" + group }

func CmdSetWorkingFrame(frame string) string { return "!SET_WORKING_FRAME:" + frame }

func CmdSaveJobFile(path string) string { return "!SAVE_SA_JOBFILE:" + path }

func CmdSetStationLock(locked bool) string { return "!SET_STATION_LOCK:" + onOff(locked) }

func CmdSetRandomizePoints(randomize bool) string { return "SET_RANDOMIZE_POINTS:" + onOff(randomize) }

func CmdSetPowerLock(locked bool) string { return "SET_POWER_LOCK:" + onOff(locked) }

func CmdSetNumSamples(n int) string { return fmt.Sprintf("SET_NUM_SAMPLES:%d", n) }

func CmdSetNumIterations(n int) string { return fmt.Sprintf("SET_NUM_ITERATIONS:%d", n) }

func CmdMeasurementProfile(profile string) string { return "!SINGLE_POINT_MEAS_PROFILE:" + profile }

func CmdGenerateReport(name string) string { return "!GEN_REPORT:" + name }

func CmdTwoFaceTolerances(azTol, elTol, rangeTol float64) string {
	return fmt.Sprintf("!SET_2FACE_TOL:%v;%v;%v", azTol, elTol, rangeTol)
}

func CmdDriftTolerance(rmsTol, maxTol float64) string {
	return fmt.Sprintf("!SET_DRIFT_TOL:%v;%v", rmsTol, maxTol)
}

func CmdLSTolerance(rmsTol, maxTol float64) string {
	return fmt.Sprintf("!SET_LS_TOL:%v;%v", rmsTol, maxTol)
}

func CmdLoadTrackerCompensation(path string) string { return "!LOAD_TRACKER_COMPENSATION:" + path }

func CmdIncMeasIndex(n int) string { return fmt.Sprintf("!INC_MEAS_INDEX:%d", n) }

func CmdSetMeasIndex(n int) string { return fmt.Sprintf("!SET_MEAS_INDEX:%d", n) }
