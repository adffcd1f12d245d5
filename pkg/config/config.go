package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/uhfsession/session"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UHFSESSION_"

// Driver kinds.
const (
	DriverSim = "sim"
	DriverBLE = "ble"
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Session  SessionConfig `yaml:"session"`
	Driver   DriverConfig  `yaml:"driver"`
	Server   ServerConfig  `yaml:"server"`
}

// SessionConfig configures the mediator.
type SessionConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval" default:"10s"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"0s"`
	PendingPolicy  string        `yaml:"pending_policy" default:"replace"`
	PowerLevels    []int         `yaml:"power_levels"`
	// NamePrefix filters discovered readers; set it to "" to accept all.
	NamePrefix   string `yaml:"name_prefix" default:"UR"`
	EventBuffer  int    `yaml:"event_buffer" default:"256"`
	StreamBuffer int    `yaml:"stream_buffer" default:"128"`
}

// DriverConfig selects and configures the reader driver.
type DriverConfig struct {
	Kind string    `yaml:"kind" default:"sim"`
	BLE  BLEConfig `yaml:"ble"`
	Sim  SimConfig `yaml:"sim"`
}

// BLEConfig configures the go-ble driver.
type BLEConfig struct {
	ServiceUUID    string        `yaml:"service_uuid" default:"0000fff0-0000-1000-8000-00805f9b34fb"`
	WriteCharUUID  string        `yaml:"write_char_uuid" default:"0000fff2-0000-1000-8000-00805f9b34fb"`
	NotifyCharUUID string        `yaml:"notify_char_uuid" default:"0000fff1-0000-1000-8000-00805f9b34fb"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s"`
	BufferSize     int           `yaml:"buffer_size" default:"8192"`
}

// SimConfig configures the simulated reader.
type SimConfig struct {
	Latency     time.Duration `yaml:"latency" default:"20ms"`
	TagInterval time.Duration `yaml:"tag_interval" default:"150ms"`
	// LinkLossAfter makes the simulated reader drop the link after every
	// connect. Zero keeps it up.
	LinkLossAfter time.Duration `yaml:"link_loss_after"`
}

// ServerConfig configures the method-channel server.
type ServerConfig struct {
	Listen      string `yaml:"listen" default:":8765"`
	MDNSEnabled bool   `yaml:"mdns_enabled" default:"false"`
	MDNSName    string `yaml:"mdns_name" default:"uhfsession"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Session.PowerLevels = append([]int(nil), session.DefaultPowerLevels...)
	return cfg
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies UHFSESSION_* variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("DRIVER"); ok {
		cfg.Driver.Kind = v
	}
	if v, ok := lookup("LISTEN"); ok {
		cfg.Server.Listen = v
	}
	if v, ok := lookup("PENDING_POLICY"); ok {
		cfg.Session.PendingPolicy = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "NAME_PREFIX"); ok {
		cfg.Session.NamePrefix = v
	}
	if err := durationEnv("POLL_INTERVAL", &cfg.Session.PollInterval); err != nil {
		return err
	}
	if err := durationEnv("REQUEST_TIMEOUT", &cfg.Session.RequestTimeout); err != nil {
		return err
	}
	if v, ok := lookup("MDNS"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMDNS: %w", EnvPrefix, err)
		}
		cfg.Server.MDNSEnabled = enabled
	}
	return nil
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	return v, v != ""
}

func durationEnv(name string, dst *time.Duration) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be positive, got %s", c.Session.PollInterval)
	}
	if c.Session.RequestTimeout < 0 {
		return fmt.Errorf("session.request_timeout must not be negative, got %s", c.Session.RequestTimeout)
	}
	if _, err := session.ParsePendingPolicy(c.Session.PendingPolicy); err != nil {
		return fmt.Errorf("session.pending_policy: %w", err)
	}
	if len(c.Session.PowerLevels) == 0 {
		return errors.New("session.power_levels must not be empty")
	}
	for _, lvl := range c.Session.PowerLevels {
		if lvl <= 0 {
			return fmt.Errorf("session.power_levels: invalid level %d", lvl)
		}
	}
	if c.Session.EventBuffer <= 0 || c.Session.StreamBuffer <= 0 {
		return errors.New("session buffers must be positive")
	}
	switch c.Driver.Kind {
	case DriverSim, DriverBLE:
	default:
		return fmt.Errorf("driver.kind must be %q or %q, got %q", DriverSim, DriverBLE, c.Driver.Kind)
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen must not be empty")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions converts the session settings into mediator options.
func (c *Config) SessionOptions(logger *logrus.Logger) *session.Options {
	policy, err := session.ParsePendingPolicy(c.Session.PendingPolicy)
	if err != nil {
		policy = session.PolicyReplace
	}

	opts := session.DefaultOptions()
	opts.PollInterval = c.Session.PollInterval
	opts.RequestTimeout = c.Session.RequestTimeout
	opts.PendingPolicy = policy
	opts.AllowedPowerLevels = append([]int(nil), c.Session.PowerLevels...)
	opts.NamePrefix = c.Session.NamePrefix
	opts.EventBuffer = c.Session.EventBuffer
	opts.Logger = logger
	return opts
}
