package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.MaxQuotaMiB != 65536 {
		t.Fatalf("max quota: %d", cfg.MaxQuotaMiB)
	}
	if cfg.DefaultBase != "/home" || cfg.DefaultMount != "/srv/mnt" {
		t.Fatalf("bases: %s %s", cfg.DefaultBase, cfg.DefaultMount)
	}
	if cfg.SSHDConfigPath != "/etc/ssh/sshd_config" {
		t.Fatalf("sshd config: %s", cfg.SSHDConfigPath)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config file must not error: %v", err)
	}
	if cfg.MaxQuotaMiB != Defaults().MaxQuotaMiB {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "max_quota_mib: 2048\nstate_dir: /tmp/mkwebuser-test\ncommand_timeout: 90s\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MKWEBUSER_LOG", "debug")
	t.Setenv("MKWEBUSER_MAX_QUOTA_MIB", "4096")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/tmp/mkwebuser-test" {
		t.Fatalf("state dir: %s", cfg.StateDir)
	}
	if cfg.CommandTimeout != 90*time.Second {
		t.Fatalf("timeout: %s", cfg.CommandTimeout)
	}
	// env wins over file
	if cfg.MaxQuotaMiB != 4096 {
		t.Fatalf("max quota: %d", cfg.MaxQuotaMiB)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Fatalf("log level: %s", cfg.LogLevel)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_quota_mib: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed config must error")
	}
}
