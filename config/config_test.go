package config

import (
	"os"
	"testing"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range GetEnvVars() {
		if v, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, v) })
			_ = os.Unsetenv(key)
		}
	}
}

func TestLoadWithDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.InferenceBackend)
	assert.Equal(t, []entities.BackendName{entities.BackendLocal}, cfg.Backends,
		"auto keeps only the local backend without a remote URL")
	assert.Equal(t, RegistryModeLive, cfg.RegistryMode)
	assert.Equal(t, 5, cfg.AlternativesLimit)
	assert.Equal(t, 120*time.Second, cfg.BackendTimeout)
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8002")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("INFERENCE_BACKEND", "auto")
	t.Setenv("REMOTE_INFERENCE_URL", "https://gpu.example.org/extract")
	t.Setenv("BACKEND_TIMEOUT", "45s")
	t.Setenv("REGISTRY_MODE", "snapshot")
	t.Setenv("SNAPSHOT_SCHEDULE", "05:30")
	t.Setenv("ENRICH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8002", cfg.Port)
	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []entities.BackendName{entities.BackendRemote, entities.BackendLocal}, cfg.Backends)
	assert.Equal(t, 45*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 8, cfg.EnrichWorkers)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"non numeric port", map[string]string{"PORT": "abc"}, "PORT"},
		{"privileged port", map[string]string{"PORT": "80"}, "PORT"},
		{"port too high", map[string]string{"PORT": "70000"}, "PORT"},
		{"bad address", map[string]string{"ADDRESS": "not-an-ip"}, "ADDRESS"},
		{"public address", map[string]string{"ADDRESS": "8.8.8.8"}, "ADDRESS"},
		{"bad env", map[string]string{"ENV": "qa"}, "ENV"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"unknown backend mode", map[string]string{"INFERENCE_BACKEND": "modal"}, "INFERENCE_BACKEND"},
		{"mode is case sensitive", map[string]string{"INFERENCE_BACKEND": "AUTO"}, "INFERENCE_BACKEND"},
		{"remote without url", map[string]string{"INFERENCE_BACKEND": "remote"}, "INFERENCE_BACKEND"},
		{"local with bad url", map[string]string{"LOCAL_INFERENCE_URL": "localhost:8001"}, "INFERENCE_BACKEND"},
		{"auto with bad remote url", map[string]string{"REMOTE_INFERENCE_URL": "gpu.example.org"}, "INFERENCE_BACKEND"},
		{"auto without any url", map[string]string{"LOCAL_INFERENCE_URL": " "}, "INFERENCE_BACKEND"},
		{"bad timeout", map[string]string{"BACKEND_TIMEOUT": "soon"}, "BACKEND_TIMEOUT"},
		{"bad registry mode", map[string]string{"REGISTRY_MODE": "offline"}, "REGISTRY_MODE"},
		{"bad schedule", map[string]string{"REGISTRY_MODE": "snapshot", "SNAPSHOT_SCHEDULE": "6pm"}, "SNAPSHOT_SCHEDULE"},
		{"bad workers", map[string]string{"ENRICH_WORKERS": "0"}, "ENRICH_WORKERS"},
		{"bad alternatives", map[string]string{"ALTERNATIVES_LIMIT": "many"}, "ALTERNATIVES_LIMIT"},
		{"body too large", map[string]string{"MAX_REQUEST_BODY": "999999999999"}, "MAX_REQUEST_BODY"},
		{"log file too small", map[string]string{"MAX_LOG_FILE_SIZE": "10"}, "MAX_LOG_FILE_SIZE"},
		{"retention too long", map[string]string{"LOG_RETENTION_WEEKS": "100"}, "LOG_RETENTION_WEEKS"},
		{"missing interaction table", map[string]string{"INTERACTION_TABLE": "/nonexistent/interactions.json"}, "INTERACTION_TABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err, "env %v", tt.env)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		input    string
		expected Environment
		hasError bool
	}{
		{"dev", EnvDevelopment, false},
		{"development", EnvDevelopment, false},
		{"staging", EnvStaging, false},
		{"prod", EnvProduction, false},
		{"production", EnvProduction, false},
		{"test", EnvTest, false},
		{"invalid", EnvDevelopment, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			env, err := ParseEnvironment(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, env)
		})
	}
}

func TestEnvironmentString(t *testing.T) {
	tests := []struct {
		env      Environment
		expected string
	}{
		{EnvDevelopment, "dev"},
		{EnvStaging, "staging"},
		{EnvProduction, "prod"},
		{EnvTest, "test"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.env.String())
	}
}
