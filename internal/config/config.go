// Package config loads orchestrator configuration from defaults, an
// optional YAML file, and DEMO_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Leads   LeadsConfig   `mapstructure:"leads"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr"`
}

// SessionConfig controls session admission and lifetime.
type SessionConfig struct {
	// Duration is the fixed session lifetime; expiry is never extended.
	Duration time.Duration `mapstructure:"duration"`
	// MaxConcurrent caps sessions in provisioning/running/expiring states.
	// It is also the port pool size.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// BasePort is the first port of the pool handed to workers.
	BasePort int `mapstructure:"base_port"`
}

// WorkerConfig controls the container runtime driver.
type WorkerConfig struct {
	// Image is the demo container image.
	Image string `mapstructure:"image"`
	// StartTimeout bounds how long a worker may take to come up.
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	// StopTimeout bounds inline teardown before falling back to the sweep.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// MemoryLimit and CPULimit are passed straight to docker run.
	MemoryLimit string `mapstructure:"memory_limit"`
	CPULimit    string `mapstructure:"cpu_limit"`
}

// SweepConfig controls the background reaper.
type SweepConfig struct {
	// Interval between sweep passes, independent of session duration.
	Interval time.Duration `mapstructure:"interval"`
}

// AdminConfig holds the privileged lead-export credential.
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SlackConfig holds the optional new-session notification webhook.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// LeadsConfig selects the lead store backend. When PostgresDSN is set
// it takes precedence over the JSON file.
type LeadsConfig struct {
	Path        string `mapstructure:"path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("session.duration", 15*time.Minute)
	v.SetDefault("session.max_concurrent", 10)
	v.SetDefault("session.base_port", 7700)
	v.SetDefault("worker.image", "autonops/infraiq-demo:latest")
	v.SetDefault("worker.start_timeout", 30*time.Second)
	v.SetDefault("worker.stop_timeout", 10*time.Second)
	v.SetDefault("worker.memory_limit", "512m")
	v.SetDefault("worker.cpu_limit", "0.5")
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("admin.api_key", "")
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("leads.path", "demo-leads.json")
	v.SetDefault("leads.postgres_dsn", "")
	v.SetDefault("log.level", "info")
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Session.MaxConcurrent <= 0 {
		return fmt.Errorf("session.max_concurrent must be positive, got %d", c.Session.MaxConcurrent)
	}
	if c.Session.Duration <= 0 {
		return fmt.Errorf("session.duration must be positive, got %s", c.Session.Duration)
	}
	if c.Session.BasePort <= 0 || c.Session.BasePort+c.Session.MaxConcurrent > 65536 {
		return fmt.Errorf("port pool [%d, %d) is out of range", c.Session.BasePort, c.Session.BasePort+c.Session.MaxConcurrent)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.Worker.Image == "" {
		return fmt.Errorf("worker.image is required")
	}
	if c.Worker.StartTimeout <= 0 {
		return fmt.Errorf("worker.start_timeout must be positive, got %s", c.Worker.StartTimeout)
	}
	return nil
}
