package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
tv_devices:
  living-room:
    ip: 192.168.1.50
  bedroom:
    ip: 192.168.1.51
    port: 5556
    name: Bedroom TV
`)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("ADB_PATH", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ADBPath != "adb" {
		t.Errorf("ADBPath = %q", cfg.ADBPath)
	}

	lr := cfg.TVDevices["living-room"]
	if lr.Port != 5555 {
		t.Errorf("default port = %d, want 5555", lr.Port)
	}
	if lr.Name != "living-room" {
		t.Errorf("default name = %q", lr.Name)
	}
	br := cfg.TVDevices["bedroom"]
	if br.Port != 5556 || br.Name != "Bedroom TV" {
		t.Errorf("bedroom = %+v", br)
	}

	if cfg.Tuning.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d", cfg.Tuning.RetryAttempts)
	}
	if cfg.Tuning.StatusTTL != 2*time.Second {
		t.Errorf("StatusTTL = %s", cfg.Tuning.StatusTTL)
	}
	if cfg.Tuning.AppCacheTTL != time.Hour {
		t.Errorf("AppCacheTTL = %s", cfg.Tuning.AppCacheTTL)
	}
}

func TestLoadTuningOverrides(t *testing.T) {
	path := writeConfig(t, `
tv_devices:
  tv:
    ip: 10.0.0.2
tuning:
  retry_attempts: 5
  retry_backoff: 250ms
  max_queue_wait: 10s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tuning.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d", cfg.Tuning.RetryAttempts)
	}
	if cfg.Tuning.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %s", cfg.Tuning.RetryBackoff)
	}
	if cfg.Tuning.MaxQueueWait != 10*time.Second {
		t.Errorf("MaxQueueWait = %s", cfg.Tuning.MaxQueueWait)
	}
	// Omitted knobs still get defaults.
	if cfg.Tuning.StatusTTL != 2*time.Second {
		t.Errorf("StatusTTL = %s", cfg.Tuning.StatusTTL)
	}
}

func TestLoadRejectsDeviceWithoutIP(t *testing.T) {
	path := writeConfig(t, `
tv_devices:
  broken:
    name: No Address
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDevicesConversion(t *testing.T) {
	cfg := &Config{
		TVDevices: map[string]TVDevice{
			"tv": {IP: "10.0.0.2", Port: 5555, Name: "TV"},
		},
	}
	devices := cfg.Devices()
	if len(devices) != 1 {
		t.Fatalf("devices = %+v", devices)
	}
	d := devices[0]
	if d.ID != "tv" || d.Addr() != "10.0.0.2:5555" {
		t.Errorf("device = %+v", d)
	}
}
