package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	SentryEnabled  bool `toml:"sentry_enabled"`
	TracingEnabled bool `toml:"tracing_enabled"`

	// json file stores
	MessagesFilePath    string `toml:"messages_file_path"`
	RegistrantsFilePath string `toml:"registrants_file_path"`
	// strict: a corrupt messages/registrants file is an error;
	// lenient (default): it is treated as an empty collection
	StrictReadErrors bool `toml:"strict_read_errors"`

	// redis (admin session tokens)
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	PrometheusMetricsHost string `toml:"prom_metrics_host"`
	PrometheusMetricsPort string `toml:"prom_metrics_port"`

	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	// session guard timeouts, in seconds
	GuardIdleTimeoutSec   int `toml:"guard_idle_timeout_sec"`
	GuardHiddenTimeoutSec int `toml:"guard_hidden_timeout_sec"`
	GuardBlurTimeoutSec   int `toml:"guard_blur_timeout_sec"`
	GuardOfflineGraceSec  int `toml:"guard_offline_grace_sec"`
	GuardMaxSessionSec    int `toml:"guard_max_session_sec"`
	GuardHeartbeatSec     int `toml:"guard_heartbeat_sec"`

	// navigation within this path prefix counts as staying on the admin
	// panel, everything else triggers a navigation_away logout
	AdminPathPrefix string `toml:"admin_path_prefix"`
}

func (c *Config) GuardIdleTimeout() time.Duration {
	return time.Duration(c.GuardIdleTimeoutSec) * time.Second
}

func (c *Config) GuardHiddenTimeout() time.Duration {
	return time.Duration(c.GuardHiddenTimeoutSec) * time.Second
}

func (c *Config) GuardBlurTimeout() time.Duration {
	return time.Duration(c.GuardBlurTimeoutSec) * time.Second
}

func (c *Config) GuardOfflineGrace() time.Duration {
	return time.Duration(c.GuardOfflineGraceSec) * time.Second
}

func (c *Config) GuardMaxSession() time.Duration {
	return time.Duration(c.GuardMaxSessionSec) * time.Second
}

func (c *Config) GuardHeartbeat() time.Duration {
	return time.Duration(c.GuardHeartbeatSec) * time.Second
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlFile Toml
	if _, err := toml.DecodeFile(path, &tomlFile); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlFile.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env %s missing in %s", env, path)
	}

	cfg.Environment = env
	return cfg, nil
}
