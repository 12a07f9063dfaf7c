package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tracker":
		return trackerTemplate, nil
	case "simulator":
		return simulatorTemplate, nil
	case "bodies":
		return bodiesTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const trackerTemplate = `targets = ["CAM", "M1M3", "M2"]

[tracker]
host = "127.0.0.1"
port = 50051
simulation_mode = true

[telescope]
elevation = 60.0
azimuth = 0.0
cam_rot = 0.0

[log]
profile = "dev"
level = "info"

[session]
dial_timeout = "5s"
read_timeout = "60s"
write_timeout = "15s"
slow_reply_threshold = "5s"
ready_poll_max = 10

[session.backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true
`

const simulatorTemplate = `device_addr = ":50051"
admin_addr = ":8800"
admin_token = ""
measurement_duration = "2s"
laser_warmup_duration = "60s"
bodies_file = "bodies.yaml"
seed = 0
randomize_on_start = false
log_profile = "service"
log_level = "info"
cors_origins = ["http://localhost:3000"]
`

const bodiesTemplate = `bodies:
  - name: m1m3
    radius: 8.40
    fiducials: 3
    origin: {x: 0.0, y: 0.0, z: 0.0}
    rotation: {u: 0.0, v: 0.0, w: 0.0}
  - name: m2
    radius: 1.74
    fiducials: 3
    origin: {x: 0.0, y: 0.0, z: 3.0}
    rotation: {u: 0.0, v: 0.0, w: 0.0}
  - name: cam
    radius: 0.85
    fiducials: 3
    origin: {x: 0.0, y: 0.0, z: 2.0}
    rotation: {u: 0.0, v: 0.0, w: 0.0}
`
