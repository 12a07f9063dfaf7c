package protocol

import (
	"errors"
	"testing"
)

func TestParseReplyClassification(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Reply
	}{
		{"ack", "ACK-300 READY", Reply{ReplySuccess, CodeNoError, "READY"}},
		{"ack payload", "ACK-106 Successfully ran CMD M1M3", Reply{ReplySuccess, ErrorCode(106), "Successfully ran CMD M1M3"}},
		{"err", "ERR-201 Command rejected. SA is busy.", Reply{ReplyError, CodeCommandRejectedBusy, "Command rejected. SA is busy."}},
		{"err legacy colon", "ERR-312: SA Template file not found or loaded.", Reply{ReplyError, CodeSATemplateFileNotFound, "SA Template file not found or loaded."}},
		{"unprefixed", "EMP", Reply{ReplySuccess, CodeNoError, "EMP"}},
		{"unprefixed sentence", "Instrument is connected", Reply{ReplySuccess, CodeNoError, "Instrument is connected"}},
		{"trailing terminator", "ACK-300 READY\r\n", Reply{ReplySuccess, CodeNoError, "READY"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReply(tc.line)
			if err != nil {
				t.Fatalf("ParseReply(%q): %v", tc.line, err)
			}
			if got != tc.want {
				t.Fatalf("ParseReply(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseReplyColonDialectsAgree(t *testing.T) {
	withColon, err := ParseReply("ERR-204: reason text")
	if err != nil {
		t.Fatalf("with colon: %v", err)
	}
	without, err := ParseReply("ERR-204 reason text")
	if err != nil {
		t.Fatalf("without colon: %v", err)
	}
	if withColon != without {
		t.Fatalf("dialects disagree: %+v vs %+v", withColon, without)
	}
}

func TestReplyToErrorBusySubtype(t *testing.T) {
	reply, err := ParseReply("ERR-201 Command rejected. SA is busy.")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	derr := ReplyToError(reply)
	if derr == nil {
		t.Fatalf("expected error for ERR reply")
	}
	var busy *DeviceBusyError
	if !errors.As(derr, &busy) {
		t.Fatalf("expected DeviceBusyError, got %v", derr)
	}
	var dev *DeviceError
	if !errors.As(derr, &dev) {
		t.Fatalf("busy error should match DeviceError too, got %v", derr)
	}
	if dev.Code != CodeCommandRejectedBusy {
		t.Fatalf("expected code 201, got %v", dev.Code)
	}
	if !IsBusy(derr) {
		t.Fatalf("IsBusy should report true")
	}
}

func TestReplyToErrorPlainDevice(t *testing.T) {
	reply, err := ParseReply("ERR-306 No point group FOO.")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	derr := ReplyToError(reply)
	var busy *DeviceBusyError
	if errors.As(derr, &busy) {
		t.Fatalf("code 306 must not be busy")
	}
	var dev *DeviceError
	if !errors.As(derr, &dev) {
		t.Fatalf("expected DeviceError, got %v", derr)
	}
	if dev.Code != CodeDidFindOrSetPointGroupAndTargetName {
		t.Fatalf("expected code 306, got %v", dev.Code)
	}
	if dev.Reason != "No point group FOO." {
		t.Fatalf("unexpected reason: %q", dev.Reason)
	}
	if IsBusy(derr) {
		t.Fatalf("IsBusy should report false for code 306")
	}
}

func TestReplyToErrorNilForSuccess(t *testing.T) {
	reply, err := ParseReply("ACK-300 READY")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if derr := ReplyToError(reply); derr != nil {
		t.Fatalf("expected nil for success, got %v", derr)
	}
}

func TestParseSinglePointDialects(t *testing.T) {
	current := "Single Point Measurement M1M3_P1 result 1234.567890,-0.123456,8.900000 08/22/2026 01:02:03 True"
	legacy := "Measured single pt M1M3_P1 result: X:1234.567890;Y:-0.123456;Z:8.900000;08/22/2026 01:02:03 True"

	a, err := ParseSinglePoint(current)
	if err != nil {
		t.Fatalf("current dialect: %v", err)
	}
	b, err := ParseSinglePoint(legacy)
	if err != nil {
		t.Fatalf("legacy dialect: %v", err)
	}
	if a != b {
		t.Fatalf("dialects disagree: %+v vs %+v", a, b)
	}
	if a.Point != "M1M3_P1" {
		t.Fatalf("unexpected point: %q", a.Point)
	}
	if a.Pos.X != 1234.567890 || a.Pos.Y != -0.123456 || a.Pos.Z != 8.9 {
		t.Fatalf("unexpected coordinates: %+v", a.Pos)
	}
}

func TestParseSinglePointMalformed(t *testing.T) {
	_, err := ParseSinglePoint("READY")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	_, err = ParseSinglePoint("Single Point Measurement P1 result a,b,c 08/22/2026 01:02:03 True")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for bad floats, got %v", err)
	}
}

func TestParseOffsetReportDialects(t *testing.T) {
	current := "Object Offset Report FrameM1M3_0.00_60.00_0.001;X:0.001;Y:-0.002;Z:0.003;Rx:0.01;Ry:-0.02;Rz:0.03;08/22/2026 01:02:03"
	legacy := "RefFrame:FrameM1M3_0.00_60.00_0.001;X:0.001;Y:-0.002;Z:0.003;Rx:0.01;Ry:-0.02;Rz:0.03;08/22/2026 01:02:03"

	a, err := ParseOffsetReport(current)
	if err != nil {
		t.Fatalf("current dialect: %v", err)
	}
	b, err := ParseOffsetReport(legacy)
	if err != nil {
		t.Fatalf("legacy dialect: %v", err)
	}
	if a != b {
		t.Fatalf("dialects disagree: %+v vs %+v", a, b)
	}
	if a.Frame != "FrameM1M3_0.00_60.00_0.001" {
		t.Fatalf("unexpected frame: %q", a.Frame)
	}
	if a.DX != 0.001 || a.DY != -0.002 || a.DZ != 0.003 {
		t.Fatalf("unexpected origin deltas: %+v", a)
	}
	if a.DRX != 0.01 || a.DRY != -0.02 || a.DRZ != 0.03 {
		t.Fatalf("unexpected rotation deltas: %+v", a)
	}
}

func TestParseOffsetReportMalformed(t *testing.T) {
	_, err := ParseOffsetReport("Object Offset Report broken")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestTargetFrameNameRoundTrip(t *testing.T) {
	name := TargetFrameName("M1M3", 60, 0, 0, 1)
	want := "Meas_M1M3_60.00_0.00_0.001::FrameM1M3_60.00_0.00_0.001"
	if name != want {
		t.Fatalf("TargetFrameName = %q, want %q", name, want)
	}
	frame, err := ParseTargetFrameName(name)
	if err != nil {
		t.Fatalf("ParseTargetFrameName(%q): %v", name, err)
	}
	expect := TargetFrame{Target: "M1M3", Elevation: 60, Azimuth: 0, CamRot: 0, Index: 1}
	if frame != expect {
		t.Fatalf("round trip mismatch: %+v", frame)
	}
}

func TestParseTargetFrameNameUnderscoreIndex(t *testing.T) {
	// Some firmware joins the index with an underscore.
	name := "Meas_M2_45.50_-12.25_3.10_7::FrameM2_45.50_-12.25_3.10_7"
	frame, err := ParseTargetFrameName(name)
	if err != nil {
		t.Fatalf("ParseTargetFrameName(%q): %v", name, err)
	}
	expect := TargetFrame{Target: "M2", Elevation: 45.5, Azimuth: -12.25, CamRot: 3.1, Index: 7}
	if frame != expect {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestParseTargetFrameNameUnderscoredTarget(t *testing.T) {
	name := TargetFrameName("TMA_CENTRAL", 60, 0, 0, 2)
	frame, err := ParseTargetFrameName(name)
	if err != nil {
		t.Fatalf("ParseTargetFrameName(%q): %v", name, err)
	}
	if frame.Target != "TMA_CENTRAL" || frame.Index != 2 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestParseTargetFrameNameRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"halves disagree", "Meas_M1M3_60.00_0.00_0.001::FrameM2_60.00_0.00_0.001"},
		{"no frame half", "Meas_M1M3_60.00_0.00_0.001"},
		{"wrong prefix", "Pos_M1M3_60.00_0.00_0.001::FrameM1M3_60.00_0.00_0.001"},
		{"not a frame name", "M1M3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTargetFrameName(tc.in); !errors.Is(err, ErrInvalidFrameName) {
				t.Fatalf("expected ErrInvalidFrameName, got %v", err)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		body string
		want Status
	}{
		{"READY", StatusReady},
		{"READY, measurement index 4", StatusReady},
		{"EMP", StatusReady},
		{"2FACE", StatusReady},
		{"DRIFT", StatusReady},
		{"Instrument is connected", StatusReady},
		{"BUSY", StatusBusy},
		{"busy", StatusBusy},
	}
	for _, tc := range cases {
		if got := ParseStatus(tc.body); got != tc.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{FormatCommand("?STAT"), "?STAT"},
		{FormatCommand("!CMDEXE", "M1M3"), "!CMDEXE:M1M3"},
		{FormatCommand("?POS", "Meas_A::FrameA"), "?POS Meas_A::FrameA"},
		{FormatCommand("!MEAS_SINGLE_POINT", "c", "g", "p"), "!MEAS_SINGLE_POINT:c;g;p"},
		{CmdSetSimulation(true), "!SET_SIM:1"},
		{CmdSetSimulation(false), "!SET_SIM:0"},
		{CmdTargetOffset("Meas_A::FrameA", "Meas_B::FrameB"), "?OFFSET:Meas_A::FrameA;Meas_B::FrameB"},
		{CmdPointDelta("c1", "g1", "p1", "c2", "g2", "p2"), "?POINT_DELTA:c1;g1;p1;c2;g2;p2"},
		{CmdPublishTelescopePosition(60, 0, 0), "!PUBLISH_ALT_AZ_ROT:60;0;0"},
		{CmdCamRotPlan(60, 0.5, 0), "!CMDEXE:CAM_ROT:60;0.5;0"},
		{CmdSetRandomizePoints(true), "SET_RANDOMIZE_POINTS:1"},
		{CmdSetNumSamples(5), "SET_NUM_SAMPLES:5"},
		{CmdIncMeasIndex(1), "!INC_MEAS_INDEX:1"},
		{CmdSetMeasIndex(12), "!SET_MEAS_INDEX:12"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("command = %q, want %q", tc.got, tc.want)
		}
	}
}

func TestErrorCodeString(t *testing.T) {
	if got := CodeCommandRejectedBusy.String(); got != "CommandRejectedBusy" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := ErrorCode(999).String(); got != "ErrorCode(999)" {
		t.Fatalf("unexpected fallback: %q", got)
	}
}
