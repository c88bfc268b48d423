package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"homecontrol/models"
)

const defaultControlPort = 5555

// Config is the full application configuration, loaded once at startup.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	ADBPath  string `yaml:"adb_path"`

	// CachePath is the sqlite file backing the app-inventory cache across
	// restarts. Empty disables persistence.
	CachePath string `yaml:"cache_path"`

	TVDevices map[string]TVDevice `yaml:"tv_devices"`

	Tuning Tuning `yaml:"tuning"`
}

// TVDevice is one configured TV endpoint. The map key in the config file is
// the device id.
type TVDevice struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// Tuning holds retry, timeout and cache knobs. Zero values are filled with
// defaults by ApplyDefaults.
type Tuning struct {
	RetryAttempts int           `yaml:"-"`
	RetryBackoff  time.Duration `yaml:"-"`
	MaxQueueWait  time.Duration `yaml:"-"`
	StatusTTL     time.Duration `yaml:"-"`
	AppCacheTTL   time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts durations in Go syntax ("500ms", "1h") since the
// yaml package cannot decode them into time.Duration on its own.
func (t *Tuning) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RetryAttempts int    `yaml:"retry_attempts"`
		RetryBackoff  string `yaml:"retry_backoff"`
		MaxQueueWait  string `yaml:"max_queue_wait"`
		StatusTTL     string `yaml:"status_ttl"`
		AppCacheTTL   string `yaml:"app_cache_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	t.RetryAttempts = raw.RetryAttempts
	for _, field := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"retry_backoff", raw.RetryBackoff, &t.RetryBackoff},
		{"max_queue_wait", raw.MaxQueueWait, &t.MaxQueueWait},
		{"status_ttl", raw.StatusTTL, &t.StatusTTL},
		{"app_cache_ttl", raw.AppCacheTTL, &t.AppCacheTTL},
	} {
		if field.in == "" {
			continue
		}
		d, err := time.ParseDuration(field.in)
		if err != nil {
			return fmt.Errorf("tuning.%s: %w", field.name, err)
		}
		*field.out = d
	}
	return nil
}

// DefaultTuning gives the baseline knobs used when the config omits them.
func DefaultTuning() Tuning {
	return Tuning{
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
		MaxQueueWait:  30 * time.Second,
		StatusTTL:     2 * time.Second,
		AppCacheTTL:   time.Hour,
	}
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates the device set.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields, with environment variables taking
// precedence over built-in defaults for the operational knobs.
func (c *Config) ApplyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = EnvOr("HTTP_ADDR", ":8080")
	}
	if c.LogLevel == "" {
		c.LogLevel = EnvOr("LOG_LEVEL", "info")
	}
	if c.ADBPath == "" {
		c.ADBPath = EnvOr("ADB_PATH", "adb")
	}

	def := DefaultTuning()
	if c.Tuning.RetryAttempts <= 0 {
		c.Tuning.RetryAttempts = def.RetryAttempts
	}
	if c.Tuning.RetryBackoff <= 0 {
		c.Tuning.RetryBackoff = def.RetryBackoff
	}
	if c.Tuning.MaxQueueWait <= 0 {
		c.Tuning.MaxQueueWait = def.MaxQueueWait
	}
	if c.Tuning.StatusTTL <= 0 {
		c.Tuning.StatusTTL = def.StatusTTL
	}
	if c.Tuning.AppCacheTTL <= 0 {
		c.Tuning.AppCacheTTL = def.AppCacheTTL
	}

	for id, tv := range c.TVDevices {
		if tv.Port == 0 {
			tv.Port = defaultControlPort
		}
		if tv.Name == "" {
			tv.Name = id
		}
		c.TVDevices[id] = tv
	}
}

// Validate rejects configs with unusable device entries.
func (c *Config) Validate() error {
	for id, tv := range c.TVDevices {
		if id == "" {
			return fmt.Errorf("tv device with empty id")
		}
		if tv.IP == "" {
			return fmt.Errorf("tv device %s: missing ip", id)
		}
	}
	return nil
}

// Devices converts the configured TV map into the immutable device set.
func (c *Config) Devices() []models.Device {
	out := make([]models.Device, 0, len(c.TVDevices))
	for id, tv := range c.TVDevices {
		out = append(out, models.Device{
			ID:   id,
			Name: tv.Name,
			IP:   tv.IP,
			Port: tv.Port,
		})
	}
	return out
}

// EnvOr gets an environment variable with a fallback default.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
