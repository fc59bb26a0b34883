// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackwarden.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
openstack:
  auth_url: https://cloud.example.com:5000
  username: steward
  project_id: abc123
  preferred_public_network: ext-net
telegram:
  allowlist_path: /etc/stackwarden/allowlist.jsonc
log_level: debug
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.OpenStack.AuthURL != "https://cloud.example.com:5000" {
		t.Errorf("unexpected auth_url: %s", cfg.OpenStack.AuthURL)
	}
	if cfg.OpenStack.UserDomainName != "Default" {
		t.Errorf("default user_domain_name not applied: %s", cfg.OpenStack.UserDomainName)
	}
	if cfg.RequestTimeoutDuration() != 30*time.Second {
		t.Errorf("default request_timeout not applied: %v", cfg.RequestTimeoutDuration())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected log_level: %s", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on a complete config: %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors for empty config")
	}
	for _, want := range []string{"auth_url", "username", "project_id", "allowlist_path", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
