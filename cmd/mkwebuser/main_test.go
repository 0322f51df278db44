package main

import (
	"path/filepath"
	"testing"
)

func nonexistentConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func TestDryRunPrintsPlan(t *testing.T) {
	code := run([]string{
		"--username", "alice",
		"--quota", "500",
		"--base", "/srv/users",
		"--mountbase", "/srv/mnt",
		"--config", nonexistentConfig(t),
		"--dry-run",
	})
	if code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
}

func TestMissingUsernameIsValidationError(t *testing.T) {
	code := run([]string{"--quota", "500", "--config", nonexistentConfig(t), "--dry-run"})
	if code != exitValidation {
		t.Fatalf("expected exit %d, got %d", exitValidation, code)
	}
}

func TestInvalidRequestIsValidationError(t *testing.T) {
	cases := [][]string{
		{"--username", "Not Valid"},
		{"--username", "alice", "--quota", "0"},
		{"--username", "alice", "--base", "relative/path"},
		{"--username", "alice", "--base", "/same", "--mountbase", "/same"},
	}
	for _, args := range cases {
		args = append(args, "--config", nonexistentConfig(t), "--dry-run")
		if code := run(args); code != exitValidation {
			t.Fatalf("args %v: expected exit %d, got %d", args, exitValidation, code)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	if code := run([]string{"--version"}); code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
	if code := run([]string{"-V"}); code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
}
