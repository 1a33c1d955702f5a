package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir string, settings map[string]interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(settings, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingFileName), data, 0o644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range settingKeys {
		name := "DEEFLOW_" + upper(key)
		if old, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, old) })
		}
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name        string
		settings    map[string]interface{}
		envVars     map[string]string
		wantAgent   string
		wantTimeout int
		wantRetries int
		wantSource  string
	}{
		{
			name:        "defaults only",
			wantAgent:   "claude-code-cli",
			wantTimeout: 900,
			wantRetries: 3,
			wantSource:  "default",
		},
		{
			name: "environment only",
			envVars: map[string]string{
				"DEEFLOW_AGENT_TYPE":             "mock",
				"DEEFLOW_TIMEOUT_SEC":            "120",
				"DEEFLOW_MAX_VALIDATION_RETRIES": "0",
			},
			wantAgent:   "mock",
			wantTimeout: 120,
			wantRetries: 0,
			wantSource:  "env",
		},
		{
			name: "json file only",
			settings: map[string]interface{}{
				"agent_type":             "mock",
				"timeout_sec":            180,
				"max_validation_retries": 5,
			},
			wantAgent:   "mock",
			wantTimeout: 180,
			wantRetries: 5,
			wantSource:  "json",
		},
		{
			name: "environment overrides json",
			settings: map[string]interface{}{
				"agent_type":  "mock",
				"timeout_sec": 180,
			},
			envVars: map[string]string{
				"DEEFLOW_TIMEOUT_SEC": "30",
			},
			wantAgent:   "mock",
			wantTimeout: 30,
			wantRetries: 3,
			wantSource:  "json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.settings != nil {
				writeSettings(t, dir, tt.settings)
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadSettings(dir)
			require.NoError(t, err)

			assert.Equal(t, dir, cfg.Home())
			assert.Equal(t, tt.wantAgent, cfg.AgentType())
			assert.Equal(t, tt.wantTimeout, cfg.TimeoutSec())
			assert.Equal(t, time.Duration(tt.wantTimeout)*time.Second, cfg.Timeout())
			assert.Equal(t, tt.wantRetries, cfg.MaxValidationRetries())
			assert.Equal(t, tt.wantSource, cfg.ConfigSource())
		})
	}
}

func TestLoadSettings_DerivedPaths(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "deeflow.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.LogDir())
	assert.Equal(t, "origin", cfg.GitRemote())
	assert.Equal(t, "local", cfg.StorageType())
	assert.Equal(t, "warn", cfg.StderrLevel())
	assert.False(t, cfg.TraceStdout())
	assert.Empty(t, cfg.SettingPath())

	writeSettings(t, dir, map[string]interface{}{
		"db_path":      "/var/lib/deeflow/state.db",
		"log_dir":      "/var/log/deeflow",
		"trace_stdout": true,
	})
	cfg, err = LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/deeflow/state.db", cfg.DBPath())
	assert.Equal(t, "/var/log/deeflow", cfg.LogDir())
	assert.True(t, cfg.TraceStdout())
	assert.Equal(t, filepath.Join(dir, SettingFileName), cfg.SettingPath())
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		raw      string
		wantErr  string
	}{
		{name: "malformed json", raw: "{not json", wantErr: "failed to parse"},
		{name: "zero timeout", settings: map[string]interface{}{"timeout_sec": 0}, wantErr: "timeout_sec"},
		{name: "negative retries", settings: map[string]interface{}{"max_validation_retries": -1}, wantErr: "max_validation_retries"},
		{name: "s3 without bucket", settings: map[string]interface{}{"storage_type": "s3"}, wantErr: "s3_bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.raw != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, SettingFileName), []byte(tt.raw), 0o644))
			} else {
				writeSettings(t, dir, tt.settings)
			}

			_, err := LoadSettings(dir)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCreateDefaultSettings(t *testing.T) {
	var settings RawSettings
	require.NoError(t, json.Unmarshal(CreateDefaultSettings(".deeflow"), &settings))

	require.NotNil(t, settings.Home)
	assert.Equal(t, ".deeflow", *settings.Home)
	require.NotNil(t, settings.AgentBin)
	assert.Equal(t, "claude", *settings.AgentBin)
	require.NotNil(t, settings.TimeoutSec)
	assert.Equal(t, 900, *settings.TimeoutSec)
	require.NotNil(t, settings.TraceStdout)
	assert.False(t, *settings.TraceStdout)
}
