package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/claude/repcounter/internal/repcount"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Counter   CounterConfig   `yaml:"counter"`
	Live      LiveConfig      `yaml:"live"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// CounterConfig tunes the repetition counter. Zero values fall back to the
// stock 160/90 thresholds, 0.5 minimum visibility and the left side.
type CounterConfig struct {
	Upper         float64 `yaml:"upper"`
	Lower         float64 `yaml:"lower"`
	MinVisibility float64 `yaml:"min_visibility"`
	Side          string  `yaml:"side"`
}

// LiveConfig controls how long idle live sessions are kept.
type LiveConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Options converts the counter section into tracker options.
func (c CounterConfig) Options() (repcount.Options, error) {
	opts := repcount.DefaultOptions()
	if c.Upper != 0 {
		opts.Thresholds.Upper = c.Upper
	}
	if c.Lower != 0 {
		opts.Thresholds.Lower = c.Lower
	}
	if c.MinVisibility != 0 {
		opts.MinVisibility = c.MinVisibility
	}

	side, err := repcount.ParseSideMode(c.Side)
	if err != nil {
		return opts, err
	}
	opts.Side = side

	if err := opts.Thresholds.Validate(); err != nil {
		return opts, err
	}
	if opts.MinVisibility < 0 || opts.MinVisibility > 1 {
		return opts, fmt.Errorf("min_visibility %v out of range [0, 1]", opts.MinVisibility)
	}
	return opts, nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPCOUNTER_ and underscore-separated paths:
//
//	REPCOUNTER_SERVER_HOST, REPCOUNTER_SERVER_PORT,
//	REPCOUNTER_DB_HOST, REPCOUNTER_DB_PORT, REPCOUNTER_DB_NAME,
//	REPCOUNTER_DB_USER, REPCOUNTER_DB_PASSWORD, REPCOUNTER_DB_SSLMODE,
//	REPCOUNTER_AUTH_API_KEY,
//	REPCOUNTER_TAILSCALE_ENABLED, REPCOUNTER_TAILSCALE_HOSTNAME,
//	REPCOUNTER_COUNTER_UPPER, REPCOUNTER_COUNTER_LOWER,
//	REPCOUNTER_COUNTER_MIN_VISIBILITY, REPCOUNTER_COUNTER_SIDE,
//	REPCOUNTER_LIVE_IDLE_TIMEOUT
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPCOUNTER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPCOUNTER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPCOUNTER_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPCOUNTER_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPCOUNTER_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPCOUNTER_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPCOUNTER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPCOUNTER_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPCOUNTER_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPCOUNTER_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("REPCOUNTER_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("REPCOUNTER_COUNTER_UPPER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Counter.Upper = f
		}
	}
	if v := os.Getenv("REPCOUNTER_COUNTER_LOWER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Counter.Lower = f
		}
	}
	if v := os.Getenv("REPCOUNTER_COUNTER_MIN_VISIBILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Counter.MinVisibility = f
		}
	}
	if v := os.Getenv("REPCOUNTER_COUNTER_SIDE"); v != "" {
		cfg.Counter.Side = v
	}
	if v := os.Getenv("REPCOUNTER_LIVE_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Live.IdleTimeout = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "repcounter"
	}
	if cfg.Tailscale.StateDir == "" {
		cfg.Tailscale.StateDir = "tsnet-state"
	}
	if cfg.Live.IdleTimeout == 0 {
		cfg.Live.IdleTimeout = 30 * time.Minute
	}
	if cfg.Live.SweepInterval == 0 {
		cfg.Live.SweepInterval = time.Minute
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if _, err := c.Counter.Options(); err != nil {
		return fmt.Errorf("counter: %w", err)
	}
	// time.NewTicker panics on a non-positive interval
	if c.Live.SweepInterval <= 0 {
		return fmt.Errorf("live.sweep_interval must be positive, got %v", c.Live.SweepInterval)
	}
	if c.Live.IdleTimeout <= 0 {
		return fmt.Errorf("live.idle_timeout must be positive, got %v", c.Live.IdleTimeout)
	}
	return nil
}
