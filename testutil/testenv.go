// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by live tests.
const (
	EnvAllowedTenants = "GRAPHSYNC_ALLOWED_TEST_TENANTS"
	EnvTenantID       = "GRAPHSYNC_TENANT_ID"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// CheckAllowedTenant returns an error unless the tenant in
// GRAPHSYNC_TENANT_ID is listed in GRAPHSYNC_ALLOWED_TEST_TENANTS. Live
// tests create subscriptions and read the directory, so they only run
// against tenants someone opted in.
func CheckAllowedTenant() error {
	allowlist := os.Getenv(EnvAllowedTenants)
	if allowlist == "" {
		return fmt.Errorf("%s not set (example: %s=11111111-2222-3333-4444-555555555555)",
			EnvAllowedTenants, EnvAllowedTenants)
	}

	tenant := os.Getenv(EnvTenantID)
	if tenant == "" {
		return fmt.Errorf("%s not set", EnvTenantID)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(a), tenant) {
			return nil
		}
	}

	return fmt.Errorf("%s=%q is not in %s=%q", EnvTenantID, tenant, EnvAllowedTenants, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
