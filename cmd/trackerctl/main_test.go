package main

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/simulator"
	"github.com/danmuck/trackerctl/internal/testutil/testlog"
	"github.com/danmuck/trackerctl/internal/tracker"
)

// startBridge runs a simulated instrument on a loopback port and returns
// a connected client plus the config it was built from.
func startBridge(t *testing.T) (bridgeConfig, *tracker.Client, zerolog.Logger) {
	t.Helper()
	log := testlog.Start(t)

	ctrl := simulator.NewController(simulator.Config{
		Seed:                11,
		MeasurementDuration: 50 * time.Millisecond,
		LaserWarmupDuration: 50 * time.Millisecond,
	})
	srv := simulator.NewServer(simulator.ServerConfig{}, ctrl)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	cfg := defaultBridgeConfig()
	cfg.Tracker.Host = host
	cfg.Tracker.Port = port
	cfg.Tracker.SimulationMode = true
	cfg.Session.ReadTimeout = 2 * time.Second
	cfg.Session.Backoff.InitialDelay = 5 * time.Millisecond
	cfg.Session.Backoff.Jitter = false

	client, err := newClient(cfg)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return cfg, client, log
}

func warmBridge(t *testing.T, client *tracker.Client) {
	t.Helper()
	ctx := context.Background()
	if err := client.LaserOn(ctx); err != nil {
		t.Fatalf("LaserOn: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := client.LaserStatus(ctx)
		if err == nil && status == "LON" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for laser warmup")
}

func TestDispatchStatus(t *testing.T) {
	cfg, client, log := startBridge(t)
	err := dispatch(context.Background(), log, client, cfg, options{op: "status"})
	if err != nil {
		t.Fatalf("status op: %v", err)
	}
}

func TestDispatchTelescopeAndLaserStatus(t *testing.T) {
	cfg, client, log := startBridge(t)
	ctx := context.Background()
	if err := dispatch(ctx, log, client, cfg, options{op: "telescope", value: "30;120;-7.5"}); err != nil {
		t.Fatalf("telescope op: %v", err)
	}
	if err := dispatch(ctx, log, client, cfg, options{op: "laser-status"}); err != nil {
		t.Fatalf("laser-status op: %v", err)
	}
}

func TestDispatchMeasure(t *testing.T) {
	cfg, client, log := startBridge(t)
	warmBridge(t, client)
	err := dispatch(context.Background(), log, client, cfg, options{op: "measure", target: "M1M3"})
	if err != nil {
		t.Fatalf("measure op: %v", err)
	}
}

func TestDispatchPointAndDelta(t *testing.T) {
	cfg, client, log := startBridge(t)
	warmBridge(t, client)
	ctx := context.Background()
	if err := dispatch(ctx, log, client, cfg, options{op: "point", group: "M2", point: "M2_P1"}); err != nil {
		t.Fatalf("point op: %v", err)
	}
	if err := dispatch(ctx, log, client, cfg, options{op: "delta", group: "M2", point: "M2_P1,M2_P2"}); err != nil {
		t.Fatalf("delta op: %v", err)
	}
}

func TestDispatchHealthCheckSingleGroup(t *testing.T) {
	cfg, client, log := startBridge(t)
	warmBridge(t, client)
	err := dispatch(context.Background(), log, client, cfg, options{op: "health-check", group: "M2"})
	if err != nil {
		t.Fatalf("health-check op: %v", err)
	}
}

func TestDispatchWatchEndsAtDeadline(t *testing.T) {
	cfg, client, log := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := dispatch(ctx, log, client, cfg, options{op: "watch"}); err != nil {
		t.Fatalf("watch op: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("watch did not stop at deadline: %v", elapsed)
	}
}

func TestDispatchUnknownOp(t *testing.T) {
	cfg, client, log := startBridge(t)
	err := dispatch(context.Background(), log, client, cfg, options{op: "levitate"})
	if err == nil || !strings.Contains(err.Error(), "unknown op") {
		t.Fatalf("expected unknown op error, got %v", err)
	}
}

func TestDispatchSetIndexRequiresValue(t *testing.T) {
	cfg, client, log := startBridge(t)
	err := dispatch(context.Background(), log, client, cfg, options{op: "set-index"})
	if err == nil {
		t.Fatalf("expected value error")
	}
}
