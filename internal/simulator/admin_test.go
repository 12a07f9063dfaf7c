package simulator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/trackerctl/internal/testutil/testlog"
)

func newAdminHarness(t *testing.T) (*Controller, *AdminServer) {
	t.Helper()
	testlog.Start(t)
	ctrl := NewController(Config{Seed: 3})
	return ctrl, NewAdminServer(AdminConfig{ListenAddr: "127.0.0.1:0"}, ctrl)
}

func adminRequest(t *testing.T, srv *AdminServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestAdminStatusEndpoint(t *testing.T) {
	_, srv := newAdminHarness(t)

	rr := adminRequest(t, srv, http.MethodGet, "/v1/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["status"] != "READY" || body["laser"] != "LOFF" {
		t.Fatalf("status body = %v", body)
	}
	if body["measurement_index"] != float64(1) {
		t.Fatalf("measurement_index = %v", body["measurement_index"])
	}
	bodies, ok := body["bodies"].([]any)
	if !ok || len(bodies) != 3 {
		t.Fatalf("bodies = %v", body["bodies"])
	}
}

func TestAdminBodyPoseRoundTrip(t *testing.T) {
	ctrl, srv := newAdminHarness(t)

	rr := adminRequest(t, srv, http.MethodGet, "/v1/bodies", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list bodies code = %d", rr.Code)
	}

	rr = adminRequest(t, srv, http.MethodPut, "/v1/bodies/m2/pose",
		`{"origin":{"x":0.004,"y":-0.002,"z":3},"rotation":{"u":0.01,"v":0,"w":0}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put pose code = %d body=%s", rr.Code, rr.Body.String())
	}

	state, err := ctrl.BodyState("m2")
	if err != nil {
		t.Fatalf("BodyState: %v", err)
	}
	if state.Current.Origin.X != 0.004 || state.Current.Rotation.U != 0.01 {
		t.Fatalf("current pose = %+v", state.Current)
	}

	rr = adminRequest(t, srv, http.MethodGet, "/v1/bodies/m2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get body code = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "m2" {
		t.Fatalf("body name = %v", body["name"])
	}
}

func TestAdminBodyErrors(t *testing.T) {
	_, srv := newAdminHarness(t)

	rr := adminRequest(t, srv, http.MethodGet, "/v1/bodies/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown body code = %d", rr.Code)
	}
	rr = adminRequest(t, srv, http.MethodPut, "/v1/bodies/nope/pose",
		`{"origin":{"x":0,"y":0,"z":0}}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown body pose code = %d", rr.Code)
	}
	rr = adminRequest(t, srv, http.MethodPut, "/v1/bodies/m2/pose", `{"origin":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed pose code = %d", rr.Code)
	}
}

func TestAdminBusyInjection(t *testing.T) {
	ctrl, srv := newAdminHarness(t)
	now := time.Now()

	rr := adminRequest(t, srv, http.MethodPost, "/v1/busy", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("force busy code = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := ctrl.HandleLine(now, "?STAT"); len(got) != 1 || got[0] != "ERR-201 Command rejected. SA is busy." {
		t.Fatalf("status while forced busy = %v", got)
	}

	rr = adminRequest(t, srv, http.MethodDelete, "/v1/busy", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("clear busy code = %d", rr.Code)
	}
	if got := ctrl.HandleLine(now, "?STAT"); len(got) != 1 || got[0] != "ACK-300 READY, measurement index 1" {
		t.Fatalf("status after clear = %v", got)
	}
}

func TestAdminRandomize(t *testing.T) {
	ctrl, srv := newAdminHarness(t)

	rr := adminRequest(t, srv, http.MethodPost, "/v1/randomize", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("randomize code = %d", rr.Code)
	}
	state, err := ctrl.BodyState("m1m3")
	if err != nil {
		t.Fatalf("BodyState: %v", err)
	}
	if state.Current == state.Nominal {
		t.Fatal("pose unchanged after randomize")
	}
}

func TestAdminHealthAndMetrics(t *testing.T) {
	_, srv := newAdminHarness(t)

	rr := adminRequest(t, srv, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health code = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}

	rr = adminRequest(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "trackerctl_sim") {
		t.Fatal("metrics exposition missing simulator series")
	}
}

func TestAdminTokenGuard(t *testing.T) {
	testlog.Start(t)
	ctrl := NewController(Config{Seed: 3})
	srv := NewAdminServer(AdminConfig{ListenAddr: "127.0.0.1:0", Token: "hunter2"}, ctrl)

	rr := adminRequest(t, srv, http.MethodGet, "/v1/status", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token code = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token code = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("good token code = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = adminRequest(t, srv, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health should stay open, code = %d", rr.Code)
	}
}
