package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	// Clear environment for testing
	envVars := []string{
		"SPANCACHE_SERVER_URL", "SPANCACHE_ENVIRONMENT",
		"SPANCACHE_FORMAT", "SPANCACHE_VERBOSE",
	}
	originalValues := make(map[string]string)
	for _, key := range envVars {
		originalValues[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, val := range originalValues {
			if val == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, val)
			}
		}
	}()

	t.Run("default values", func(t *testing.T) {
		cfg := DefaultConfig()

		if cfg.ServerURL != "http://localhost:8080" {
			t.Errorf("ServerURL = %v, want http://localhost:8080", cfg.ServerURL)
		}
		if cfg.Environment != "" {
			t.Errorf("Environment = %v, want empty", cfg.Environment)
		}
		if cfg.Format != "table" {
			t.Errorf("Format = %v, want table", cfg.Format)
		}
		if cfg.Verbose {
			t.Error("Verbose = true, want false")
		}
	})

	t.Run("from environment", func(t *testing.T) {
		os.Setenv("SPANCACHE_SERVER_URL", "http://cache.example.com:8080")
		os.Setenv("SPANCACHE_ENVIRONMENT", "env-prod")
		os.Setenv("SPANCACHE_FORMAT", "json")
		os.Setenv("SPANCACHE_VERBOSE", "true")

		cfg := DefaultConfig()

		if cfg.ServerURL != "http://cache.example.com:8080" {
			t.Errorf("ServerURL = %v, want http://cache.example.com:8080", cfg.ServerURL)
		}
		if cfg.Environment != "env-prod" {
			t.Errorf("Environment = %v, want env-prod", cfg.Environment)
		}
		if cfg.Format != "json" {
			t.Errorf("Format = %v, want json", cfg.Format)
		}
		if !cfg.Verbose {
			t.Error("Verbose = false, want true")
		}
	})
}

func TestGetEnv(t *testing.T) {
	os.Unsetenv("TEST_GET_ENV")

	t.Run("unset returns default", func(t *testing.T) {
		result := getEnv("TEST_GET_ENV", "default-value")
		if result != "default-value" {
			t.Errorf("getEnv() = %v, want default-value", result)
		}
	})

	t.Run("set returns value", func(t *testing.T) {
		os.Setenv("TEST_GET_ENV", "custom-value")
		defer os.Unsetenv("TEST_GET_ENV")

		result := getEnv("TEST_GET_ENV", "default-value")
		if result != "custom-value" {
			t.Errorf("getEnv() = %v, want custom-value", result)
		}
	})
}

func TestGetEnvBool(t *testing.T) {
	os.Unsetenv("TEST_GET_ENV_BOOL")

	t.Run("unset returns default", func(t *testing.T) {
		result := getEnvBool("TEST_GET_ENV_BOOL", true)
		if !result {
			t.Error("getEnvBool() = false, want true")
		}

		result = getEnvBool("TEST_GET_ENV_BOOL", false)
		if result {
			t.Error("getEnvBool() = true, want false")
		}
	})

	t.Run("valid bool values", func(t *testing.T) {
		tests := []struct {
			value string
			want  bool
		}{
			{"true", true},
			{"false", false},
			{"1", true},
			{"0", false},
			{"TRUE", true},
			{"FALSE", false},
		}

		for _, tt := range tests {
			os.Setenv("TEST_GET_ENV_BOOL", tt.value)
			result := getEnvBool("TEST_GET_ENV_BOOL", !tt.want)
			if result != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, result, tt.want)
			}
		}
		os.Unsetenv("TEST_GET_ENV_BOOL")
	})

	t.Run("invalid bool returns default", func(t *testing.T) {
		os.Setenv("TEST_GET_ENV_BOOL", "not-a-bool")
		defer os.Unsetenv("TEST_GET_ENV_BOOL")

		result := getEnvBool("TEST_GET_ENV_BOOL", true)
		if !result {
			t.Error("getEnvBool() with invalid value = false, want true (default)")
		}
	})
}
