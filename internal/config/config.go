package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds everything the orchestrator needs beyond the request itself.
// Values come from built-in defaults, then /etc/mkwebuser/config.yaml (if
// present), then MKWEBUSER_* environment variables.
type Config struct {
	LogLevel       zerolog.Level
	MaxQuotaMiB    uint64
	DefaultBase    string
	DefaultMount   string
	SSHDConfigPath string
	StateDir       string
	CommandTimeout time.Duration
}

// fileConfig is the on-disk YAML shape; durations are written as strings
// ("90s"), absent keys keep their defaults.
type fileConfig struct {
	MaxQuotaMiB    *uint64 `yaml:"max_quota_mib"`
	DefaultBase    string  `yaml:"default_base"`
	DefaultMount   string  `yaml:"default_mountbase"`
	SSHDConfigPath string  `yaml:"sshd_config"`
	StateDir       string  `yaml:"state_dir"`
	CommandTimeout string  `yaml:"command_timeout"`
}

const DefaultConfigPath = "/etc/mkwebuser/config.yaml"

func Defaults() Config {
	return Config{
		LogLevel:       zerolog.InfoLevel,
		MaxQuotaMiB:    65536,
		DefaultBase:    "/home",
		DefaultMount:   "/srv/mnt",
		SSHDConfigPath: "/etc/ssh/sshd_config",
		StateDir:       "/var/lib/mkwebuser",
		CommandTimeout: 60 * time.Second,
	}
}

// Load builds the effective configuration. A missing config file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = DefaultConfigPath
	}
	if b, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		if fc.MaxQuotaMiB != nil && *fc.MaxQuotaMiB > 0 {
			cfg.MaxQuotaMiB = *fc.MaxQuotaMiB
		}
		if fc.DefaultBase != "" {
			cfg.DefaultBase = fc.DefaultBase
		}
		if fc.DefaultMount != "" {
			cfg.DefaultMount = fc.DefaultMount
		}
		if fc.SSHDConfigPath != "" {
			cfg.SSHDConfigPath = fc.SSHDConfigPath
		}
		if fc.StateDir != "" {
			cfg.StateDir = fc.StateDir
		}
		if fc.CommandTimeout != "" {
			d, err := time.ParseDuration(fc.CommandTimeout)
			if err != nil {
				return cfg, fmt.Errorf("parse %s: command_timeout: %w", path, err)
			}
			cfg.CommandTimeout = d
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MKWEBUSER_LOG"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			cfg.LogLevel = l
		}
	}
	if v := os.Getenv("MKWEBUSER_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("MKWEBUSER_MAX_QUOTA_MIB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.MaxQuotaMiB = n
		}
	}
	if v := os.Getenv("MKWEBUSER_SSHD_CONFIG"); v != "" {
		cfg.SSHDConfigPath = v
	}
}
