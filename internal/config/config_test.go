package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

func TestNewDefaultValidates(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Global.LogLevel != "warning" {
		t.Errorf("default log level = %q, want warning", cfg.Global.LogLevel)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics enabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zbc.yaml")
	content := `
global:
  log_level: debug
device:
  backend: emulated
  test_mode: true
emulation:
  logical_block_size: 4096
  physical_block_size: 4096
metrics:
  enabled: true
  port: 9100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded configuration invalid: %v", err)
	}

	if cfg.Global.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Global.LogLevel)
	}
	if cfg.Device.Backend != "emulated" {
		t.Errorf("backend = %q, want emulated", cfg.Device.Backend)
	}
	if !cfg.Device.TestMode {
		t.Error("test mode not loaded")
	}
	if cfg.Emulation.LogicalBlockSize != 4096 {
		t.Errorf("logical block size = %d, want 4096", cfg.Emulation.LogicalBlockSize)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9100 {
		t.Errorf("metrics = %+v, want enabled on 9100", cfg.Metrics)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/zbc.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZBC_LOG_LEVEL", "info")
	t.Setenv("ZBC_BACKEND", "scsi")
	t.Setenv("ZBC_TEST_MODE", "true")
	t.Setenv("ZBC_METRICS_PORT", "9999")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Global.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.Global.LogLevel)
	}
	if cfg.Device.Backend != "scsi" {
		t.Errorf("backend = %q, want scsi", cfg.Device.Backend)
	}
	if !cfg.Device.TestMode {
		t.Error("test mode not applied")
	}
	if cfg.Metrics.Port != 9999 || !cfg.Metrics.Enabled {
		t.Errorf("metrics = %+v, want enabled on 9999", cfg.Metrics)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("ZBC_TEST_MODE", "maybe")
	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("bad boolean accepted")
	}

	t.Setenv("ZBC_TEST_MODE", "")
	t.Setenv("ZBC_METRICS_PORT", "not-a-port")
	cfg = NewDefault()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("bad port accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad log level", func(c *Configuration) { c.Global.LogLevel = "loud" }},
		{"bad backend", func(c *Configuration) { c.Device.Backend = "floppy" }},
		{"bad emulation geometry", func(c *Configuration) {
			c.Emulation.LogicalBlockSize = 4096
			c.Emulation.PhysicalBlockSize = 512
		}},
		{"bad metrics port", func(c *Configuration) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}},
		{"bad metrics path", func(c *Configuration) { c.Metrics.Path = "metrics" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid configuration accepted")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zbc.yaml")
	cfg := NewDefault()
	cfg.Device.Backend = "block"
	cfg.Device.Exclusive = true
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Device.Backend != "block" || !loaded.Device.Exclusive {
		t.Errorf("round trip lost fields: %+v", loaded.Device)
	}
}

func TestOpenFlags(t *testing.T) {
	cfg := NewDefault()
	f := cfg.OpenFlags()
	if !f.Has(types.OpenReadWrite) {
		t.Error("default flags not read-write")
	}

	cfg.Device.ReadOnly = true
	cfg.Device.Exclusive = true
	cfg.Device.Direct = true
	cfg.Device.TestMode = true
	f = cfg.OpenFlags()
	if f.Has(types.OpenReadWrite) {
		t.Error("read-only config produced a writable flag set")
	}
	for _, want := range []types.OpenFlag{types.OpenExclusive, types.OpenDirect, types.OpenTestMode} {
		if !f.Has(want) {
			t.Errorf("flag %b missing", want)
		}
	}
}
