package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/serialmux"
	"github.com/banshee-data/robosim/internal/simerr"
	"github.com/banshee-data/robosim/internal/worldmap"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptySimConfig_Defaults(t *testing.T) {
	cfg := EmptySimConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
	if cfg.GetMapWidth() != 100 || cfg.GetMapHeight() != 100 {
		t.Errorf("map size = %dx%d, want 100x100", cfg.GetMapWidth(), cfg.GetMapHeight())
	}
	if cfg.GetMapResolution() != 0.1 {
		t.Errorf("GetMapResolution() = %f, want 0.1", cfg.GetMapResolution())
	}
	if cfg.GetLineWalk() != worldmap.StepWalk {
		t.Errorf("GetLineWalk() = %v, want step", cfg.GetLineWalk())
	}
	if cfg.GetTickInterval() != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 50ms", cfg.GetTickInterval())
	}
	if cfg.GetDefaultMode() != device.Simulation {
		t.Errorf("GetDefaultMode() = %q, want simulation", cfg.GetDefaultMode())
	}
	if cfg.GetDefaultHz() != 10 || cfg.GetDefaultQueueSize() != 5 {
		t.Errorf("device defaults = %v Hz / %d, want 10 Hz / 5", cfg.GetDefaultHz(), cfg.GetDefaultQueueSize())
	}
	if cfg.GetStartPose() != (kinematics.Pose{X: 1, Y: 1}) {
		t.Errorf("GetStartPose() = %v", cfg.GetStartPose())
	}
	if cfg.GetTelemetryDBPath() != "" {
		t.Errorf("telemetry should be off by default, got %q", cfg.GetTelemetryDBPath())
	}
	if cfg.GetSeed() != 1 {
		t.Errorf("GetSeed() = %d, want 1", cfg.GetSeed())
	}
	if cfg.GetAdminListen() != "localhost:8081" || cfg.GetGRPCListen() != "localhost:50051" {
		t.Errorf("listen defaults = %q / %q", cfg.GetAdminListen(), cfg.GetGRPCListen())
	}
	if got := cfg.DeviceDescriptors(); len(got) != 0 {
		t.Errorf("DeviceDescriptors() = %v, want none", got)
	}
}

func TestLoadSimConfig_YAML(t *testing.T) {
	path := writeConfig(t, "sim.yaml", `
seed: 7
map:
  width: 10
  height: 10
  resolution: 1
  line_walk: bresenham
  obstacles:
    - [5, 0, 5, 9]
robot:
  start: {x: 0, y: 5, theta: 0}
  tick_interval: 100ms
device_defaults:
  hz: 4
  queue_size: 8
devices:
  sonar:
    - id: sonar_front
      place: front
      max_range: 3
  IMU:
    - {id: imu, place: body, mode: mock, hz: 20, enabled: false}
    - id: imu_real
      mode: real
      driver: /dev/ttyUSB1
      serial: {baud_rate: 9600}
actors:
  - {id: alice, kind: Human, x: 2, y: 3}
`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatalf("LoadSimConfig() error = %v", err)
	}

	if cfg.GetSeed() != 7 {
		t.Errorf("GetSeed() = %d, want 7", cfg.GetSeed())
	}
	if cfg.GetLineWalk() != worldmap.BresenhamWalk {
		t.Errorf("GetLineWalk() = %v, want bresenham", cfg.GetLineWalk())
	}
	if cfg.GetTickInterval() != 100*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 100ms", cfg.GetTickInterval())
	}
	if cfg.GetStartPose() != (kinematics.Pose{X: 0, Y: 5}) {
		t.Errorf("GetStartPose() = %v", cfg.GetStartPose())
	}

	want := []device.Descriptor{
		{ID: "imu", Type: device.IMU, Place: "body", Mode: device.Mock, Hz: 20, QueueSize: 8, Enabled: false},
		{ID: "imu_real", Type: device.IMU, Mode: device.Real, Hz: 4, QueueSize: 8, Enabled: true, Driver: "/dev/ttyUSB1"},
		{ID: "sonar_front", Type: device.Sonar, Place: "front", Mode: device.Simulation, Hz: 4, QueueSize: 8, Enabled: true, MaxRange: 3},
	}
	if diff := cmp.Diff(want, cfg.DeviceDescriptors()); diff != "" {
		t.Errorf("DeviceDescriptors() mismatch (-want +got):\n%s", diff)
	}

	opts := cfg.SerialOptions()
	if diff := cmp.Diff(map[string]serialmux.PortOptions{"imu_real": {BaudRate: 9600}}, opts); diff != "" {
		t.Errorf("SerialOptions() mismatch (-want +got):\n%s", diff)
	}

	m, err := cfg.BuildMap()
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	if m.Query(5, 4) != worldmap.Occupied {
		t.Error("expected the obstacle at cell (5, 4)")
	}
	if m.Walker() != worldmap.BresenhamWalk {
		t.Errorf("map walker = %v, want bresenham", m.Walker())
	}

	actors, err := cfg.ActorSet()
	if err != nil {
		t.Fatalf("ActorSet() error = %v", err)
	}
	all := actors.All()
	if len(all) != 1 || all[0].Kind != actor.Human || all[0].Position.X != 2 {
		t.Errorf("ActorSet() = %+v", all)
	}
}

func TestLoadSimConfig_JSON(t *testing.T) {
	path := writeConfig(t, "sim.json", `{
  "map": {"width": 20, "height": 10, "resolution": 0.5, "obstacles": [[1, 1, 4, 1]]},
  "devices": {"LED": [{"id": "led"}]},
  "admin": {"listen": "", "grpc_listen": ":9000"}
}`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatalf("LoadSimConfig() error = %v", err)
	}
	if diff := cmp.Diff([]worldmap.Segment{{X0: 1, Y0: 1, X1: 4, Y1: 1}}, cfg.MapSegments()); diff != "" {
		t.Errorf("MapSegments() mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetAdminListen() != "" {
		t.Errorf("GetAdminListen() = %q, want disabled", cfg.GetAdminListen())
	}
	if cfg.GetGRPCListen() != ":9000" {
		t.Errorf("GetGRPCListen() = %q, want :9000", cfg.GetGRPCListen())
	}
	descs := cfg.DeviceDescriptors()
	if len(descs) != 1 || descs[0].Type != device.LED {
		t.Errorf("DeviceDescriptors() = %+v", descs)
	}
}

func TestLoadSimConfig_EmptyYAML(t *testing.T) {
	cfg, err := LoadSimConfig(writeConfig(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("LoadSimConfig() error = %v", err)
	}
	if cfg.GetMapWidth() != 100 {
		t.Errorf("GetMapWidth() = %d, want default", cfg.GetMapWidth())
	}
}

func TestLoadSimConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "sim.toml", "seed = 1", "extension"},
		{"bad json", "sim.json", "{", "parse config JSON"},
		{"unknown yaml field", "sim.yaml", "mapp: {}", "parse config YAML"},
		{"unknown type", "sim.yaml", "devices:\n  WARP_DRIVE:\n    - {id: w}", "unknown device type"},
		{"duplicate id", "sim.yaml", "devices:\n  SONAR:\n    - {id: a}\n  IR:\n    - {id: a}", "duplicate device id"},
		{"missing id", "sim.yaml", "devices:\n  SONAR:\n    - {place: front}", "has no id"},
		{"bad mode", "sim.yaml", "devices:\n  SONAR:\n    - {id: a, mode: ghost}", "unknown device mode"},
		{"bad hz", "sim.yaml", "device_defaults: {hz: 0}", "hz must be positive"},
		{"bad queue", "sim.yaml", "devices:\n  SONAR:\n    - {id: a, queue_size: -1}", "queue_size"},
		{"bad walk", "sim.yaml", "map: {line_walk: spiral}", "line_walk"},
		{"bad tick", "sim.yaml", "robot: {tick_interval: soon}", "tick_interval"},
		{"bad resolution", "sim.yaml", "map: {resolution: 0}", "resolution"},
		{"start outside", "sim.yaml", "map: {width: 10, height: 10, resolution: 1}\nrobot: {start: {x: 11, y: 1}}", "outside"},
		{"bad actor", "sim.yaml", "actors:\n  - {id: x, kind: ghost}", "unknown actor kind"},
		{"bad parity", "sim.yaml", "devices:\n  IMU:\n    - {id: a, serial: {parity: Q}}", "parity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSimConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
			if !simerr.IsFatal(err) || !errors.Is(err, simerr.ErrConfiguration) {
				t.Errorf("error %v should be a fatal configuration error", err)
			}
		})
	}
}

func TestLoadSimConfig_UnknownTypeIsClassified(t *testing.T) {
	_, err := LoadSimConfig(writeConfig(t, "sim.yaml", "devices:\n  WARP_DRIVE:\n    - {id: w}"))
	if !errors.Is(err, simerr.ErrUnknownDeviceType) {
		t.Errorf("expected ErrUnknownDeviceType, got %v", err)
	}
}

func TestLoadSimConfig_TooLarge(t *testing.T) {
	body := "seed: 1\n" + strings.Repeat("# padding\n", 110*1024)
	_, err := LoadSimConfig(writeConfig(t, "big.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected a size error, got %v", err)
	}
}

func TestLoadSimConfig_Missing(t *testing.T) {
	_, err := LoadSimConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "stat") {
		t.Errorf("expected a stat error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	descs := cfg.DeviceDescriptors()
	if len(descs) == 0 {
		t.Fatal("default config should list devices")
	}
	seen := make(map[device.Type]bool)
	for _, d := range descs {
		seen[d.Type] = true
	}
	for _, typ := range device.BuiltinTypes() {
		if !seen[typ] && typ != device.TOF && typ != device.IR {
			t.Errorf("default config has no %s device", typ)
		}
	}

	m, err := cfg.BuildMap()
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	start := cfg.GetStartPose()
	c := m.Cell(start.X, start.Y)
	if m.Query(c.X, c.Y) != worldmap.Free {
		t.Errorf("default start pose %v is not free", start)
	}
	if _, err := cfg.ActorSet(); err != nil {
		t.Errorf("ActorSet() error = %v", err)
	}
}
