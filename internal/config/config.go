// Package config loads and validates the daemon's YAML configuration: the
// sole source of typed configuration values consumed by cmd/gridfand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	DefaultDevicePath   = "/dev/GridPlus0"
	DefaultBaudRate     = 4800
	DefaultSensorName   = "CPU Temperature"
	DefaultStatusSocket = "/run/gridfand.sock"
	DefaultSNMPPort     = 161
	DefaultSNMPInterval = 30 * time.Second
)

// Config is the daemon's full typed configuration, loaded from YAML.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Sensor       SensorConfig       `yaml:"sensor"`
	Transfer     TransferConfig     `yaml:"transfer"`
	Logger       LoggerConfig       `yaml:"logger"`
	StatusSocket StatusSocketConfig `yaml:"status_socket"`
	SNMP         SNMPConfig         `yaml:"snmp"`
}

type DeviceConfig struct {
	Path     string `yaml:"path"`
	BaudRate int    `yaml:"baud_rate"`
}

type SensorConfig struct {
	Name string `yaml:"name"`
}

type TransferConfig struct {
	Algorithm string  `yaml:"algorithm"`
	MinTemp   float64 `yaml:"min_temp"`
	MaxTemp   float64 `yaml:"max_temp"`
	MinDuty   int     `yaml:"min_duty"`
	MaxDuty   int     `yaml:"max_duty"`
	Steepness float64 `yaml:"steepness"`
}

type LoggerConfig struct {
	Sink string `yaml:"sink"`
}

type StatusSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SNMPConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        uint16        `yaml:"port"`
	Community   string        `yaml:"community"`
	Interval    time.Duration `yaml:"interval"`
	TempOIDBase string        `yaml:"temp_oid_base"`
	FanOIDBase  string        `yaml:"fan_oid_base"`
}

// Default returns the daemon's default configuration: the linear transfer
// function over 25..70 degrees, the stderr logger, the status socket
// enabled, and SNMP export disabled.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Path:     DefaultDevicePath,
			BaudRate: DefaultBaudRate,
		},
		Sensor: SensorConfig{
			Name: DefaultSensorName,
		},
		Transfer: TransferConfig{
			Algorithm: "linear",
			MinTemp:   25.0,
			MaxTemp:   70.0,
			MinDuty:   10,
			MaxDuty:   100,
		},
		Logger: LoggerConfig{
			Sink: "stderr",
		},
		StatusSocket: StatusSocketConfig{
			Enabled: true,
			Path:    DefaultStatusSocket,
		},
		SNMP: SNMPConfig{
			Enabled:     false,
			Port:        DefaultSNMPPort,
			Community:   "public",
			Interval:    DefaultSNMPInterval,
			TempOIDBase: "1.3.6.1.4.1.99999.1.1",
			FanOIDBase:  "1.3.6.1.4.1.99999.1.2",
		},
	}
}

// Load reads the configuration at path. If the file does not exist, a
// default configuration is generated, validated, and written back so a
// fresh install has a legible starting point.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: default configuration is invalid: %w", err)
		}
		if err := Save(cfg, path); err != nil {
			return nil, fmt.Errorf("config: writing default configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating any missing parent directory.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate enforces every invariant in the configuration record: a
// violation is a fatal *Configuration* error per the error-handling design.
func Validate(cfg *Config) error {
	if cfg.Device.Path == "" {
		return fmt.Errorf("device.path must not be empty")
	}
	if cfg.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be greater than 0")
	}
	if cfg.Sensor.Name == "" {
		return fmt.Errorf("sensor.name must not be empty")
	}

	switch cfg.Transfer.Algorithm {
	case "linear", "softplus", "logistic":
	default:
		return fmt.Errorf("transfer.algorithm %q is not one of linear, softplus, logistic", cfg.Transfer.Algorithm)
	}
	if cfg.Transfer.MinTemp >= cfg.Transfer.MaxTemp {
		return fmt.Errorf("transfer.min_temp must be less than transfer.max_temp")
	}
	if cfg.Transfer.MinDuty < 0 || cfg.Transfer.MaxDuty > 100 || cfg.Transfer.MinDuty > cfg.Transfer.MaxDuty {
		return fmt.Errorf("transfer duty range [%d,%d] is invalid", cfg.Transfer.MinDuty, cfg.Transfer.MaxDuty)
	}

	switch cfg.Logger.Sink {
	case "stderr", "syslog", "":
	default:
		return fmt.Errorf("logger.sink %q is not one of stderr, syslog", cfg.Logger.Sink)
	}

	if cfg.StatusSocket.Enabled && cfg.StatusSocket.Path == "" {
		return fmt.Errorf("status_socket.path must not be empty when enabled")
	}

	if cfg.SNMP.Enabled {
		if cfg.SNMP.Host == "" {
			return fmt.Errorf("snmp.host must not be empty when enabled")
		}
		if cfg.SNMP.Community == "" {
			return fmt.Errorf("snmp.community must not be empty when enabled")
		}
		if cfg.SNMP.Interval <= 0 {
			return fmt.Errorf("snmp.interval must be greater than 0")
		}
		if cfg.SNMP.TempOIDBase == "" || cfg.SNMP.FanOIDBase == "" {
			return fmt.Errorf("snmp oid base values must not be empty when enabled")
		}
	}

	return nil
}
