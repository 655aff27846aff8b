// Package config loads the tool configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	"github.com/vijayvenkateshjana/libzbc/internal/metrics"
	"github.com/vijayvenkateshjana/libzbc/internal/zlog"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
)

// Configuration represents the complete tool configuration.
type Configuration struct {
	Global    GlobalConfig    `yaml:"global"`
	Device    DeviceConfig    `yaml:"device"`
	Emulation EmulationConfig `yaml:"emulation"`
	Metrics   metrics.Config  `yaml:"metrics"`
}

// GlobalConfig represents settings shared by all commands.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DeviceConfig represents how devices are opened.
type DeviceConfig struct {
	// Backend forces a backend instead of probing. Empty means auto.
	Backend string `yaml:"backend"`

	// ReadOnly opens devices without write access.
	ReadOnly bool `yaml:"read_only"`

	// Exclusive requests exclusive device access.
	Exclusive bool `yaml:"exclusive"`

	// Direct bypasses the page cache for data I/O.
	Direct bool `yaml:"direct"`

	// TestMode relaxes alignment validation. Conformance testing only.
	TestMode bool `yaml:"test_mode"`
}

// EmulationConfig represents the geometry of file-backed emulated devices.
type EmulationConfig struct {
	LogicalBlockSize  uint32 `yaml:"logical_block_size"`
	PhysicalBlockSize uint32 `yaml:"physical_block_size"`
}

// NewDefault returns the default configuration.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "warning",
		},
		Emulation: EmulationConfig{
			LogicalBlockSize:  geometry.SectorSize,
			PhysicalBlockSize: 4096,
		},
		Metrics: metrics.Config{
			Enabled:   false,
			Port:      9198,
			Path:      "/metrics",
			Namespace: "zbc",
		},
	}
}

// LoadFromFile merges a YAML configuration file into c.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

// LoadFromEnv merges ZBC_* environment variables into c. Environment values
// override file values.
func (c *Configuration) LoadFromEnv() error {
	if v := os.Getenv("ZBC_LOG_LEVEL"); v != "" {
		c.Global.LogLevel = v
	}
	if v := os.Getenv("ZBC_BACKEND"); v != "" {
		c.Device.Backend = v
	}
	if v := os.Getenv("ZBC_TEST_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ZBC_TEST_MODE value %q: %w", v, err)
		}
		c.Device.TestMode = b
	}
	if v := os.Getenv("ZBC_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ZBC_METRICS_PORT value %q: %w", v, err)
		}
		c.Metrics.Port = p
		c.Metrics.Enabled = true
	}
	return nil
}

// SaveToFile writes the configuration as YAML.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Configuration) Validate() error {
	if _, err := zlog.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if _, err := types.ParseBackendKind(c.Device.Backend); err != nil {
		return fmt.Errorf("invalid backend: %w", err)
	}
	if c.Emulation.LogicalBlockSize != 0 || c.Emulation.PhysicalBlockSize != 0 {
		if err := geometry.ValidateBlockSizes(c.Emulation.LogicalBlockSize, c.Emulation.PhysicalBlockSize); err != nil {
			return fmt.Errorf("invalid emulation geometry: %w", err)
		}
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port %d", c.Metrics.Port)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}
	return nil
}

// OpenFlags translates the device settings to open flags.
func (c *Configuration) OpenFlags() types.OpenFlag {
	var f types.OpenFlag
	if !c.Device.ReadOnly {
		f |= types.OpenReadWrite
	}
	if c.Device.Exclusive {
		f |= types.OpenExclusive
	}
	if c.Device.Direct {
		f |= types.OpenDirect
	}
	if c.Device.TestMode {
		f |= types.OpenTestMode
	}
	return f
}
