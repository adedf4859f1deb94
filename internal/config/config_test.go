package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCamera(t *testing.T) {
	c := DefaultCamera()

	if !c.Enabled {
		t.Error("Expected default camera to be enabled")
	}
	if c.Width != DefaultWidth || c.Height != DefaultHeight {
		t.Errorf("Expected default size %dx%d, got %dx%d", DefaultWidth, DefaultHeight, c.Width, c.Height)
	}
	if c.Timeout() != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", c.Timeout())
	}
	if c.ReconnectInterval() != 5*time.Second {
		t.Errorf("Expected 5s reconnect interval, got %v", c.ReconnectInterval())
	}
}

func TestCameraValidate(t *testing.T) {
	c := DefaultCamera()
	c.URL = "rtsp://192.168.1.101:554/Streaming/Channels/101"
	if errs := c.Validate(); len(errs) != 0 {
		t.Errorf("Expected valid config, got errors: %v", errs)
	}

	c.URL = ""
	if errs := c.Validate(); len(errs) == 0 {
		t.Error("Expected error for empty URL")
	}

	c.URL = "not a url"
	if errs := c.Validate(); len(errs) == 0 {
		t.Error("Expected error for malformed URL")
	}

	c = DefaultCamera()
	c.URL = "rtsp://host/stream"
	c.MaxRetries = -1
	if errs := c.Validate(); len(errs) == 0 {
		t.Error("Expected error for negative max_retries")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	raw := `
log_level: debug
listen_addr: ":9090"
telemetry:
  enabled: true
  url: ws://collector:7000/ingest
cameras:
  - name: rougher
    url: rtsp://admin:pw@192.168.1.101:554/Streaming/Channels/101
    enabled: true
  - url: rtsp://admin:pw@192.168.1.102:554/Streaming/Channels/101
    enabled: false
    width: 320
    height: 240
`
	path := filepath.Join(t.TempDir(), "frothwatch.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level debug, got %q", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("Expected listen_addr :9090, got %q", cfg.ListenAddr)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.URL != "ws://collector:7000/ingest" {
		t.Errorf("Unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.BufferSize != 256 {
		t.Errorf("Expected default telemetry buffer 256, got %d", cfg.Telemetry.BufferSize)
	}

	if len(cfg.Cameras) != 2 {
		t.Fatalf("Expected 2 cameras, got %d", len(cfg.Cameras))
	}

	cam := cfg.Cameras[0]
	if cam.Width != DefaultWidth || cam.Height != DefaultHeight {
		t.Errorf("Expected default frame size, got %dx%d", cam.Width, cam.Height)
	}
	if cam.TimeoutSec != DefaultTimeoutSec || cam.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected connection defaults, got timeout=%d retries=%d", cam.TimeoutSec, cam.MaxRetries)
	}

	if cfg.Cameras[1].Width != 320 || cfg.Cameras[1].Height != 240 {
		t.Errorf("Expected explicit size to be kept, got %dx%d", cfg.Cameras[1].Width, cfg.Cameras[1].Height)
	}
	if cfg.Cameras[1].Name == "" {
		t.Error("Expected generated name for unnamed camera")
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	raw := `
cameras:
  - url: rtsp://bad-host/stream
    enabled: true
    reconnect_interval_sec: 0
    max_retries: 0
    width: 0
    height: 0
`
	path := filepath.Join(t.TempDir(), "frothwatch.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cam := cfg.Cameras[0]
	if cam.ReconnectIntervalSec != 0 {
		t.Errorf("Expected explicit zero reconnect interval to survive, got %d", cam.ReconnectIntervalSec)
	}
	if cam.MaxRetries != 0 {
		t.Errorf("Expected explicit zero max_retries to survive, got %d", cam.MaxRetries)
	}
	if cam.Width != 0 || cam.Height != 0 {
		t.Errorf("Expected explicit zero frame size to survive, got %dx%d", cam.Width, cam.Height)
	}
	// Absent keys still get defaults.
	if cam.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("Expected default timeout for absent key, got %d", cam.TimeoutSec)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/frothwatch.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}
