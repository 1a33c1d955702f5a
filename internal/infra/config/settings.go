package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/YoshitsuguKoike/deeflow/internal/app/config"
)

// SettingFileName is the settings file inside the deeflow home
const SettingFileName = "setting.json"

// EnvPrefix prefixes every environment override, e.g. DEEFLOW_AGENT_TYPE
const EnvPrefix = "DEEFLOW"

// RawSettings represents the structure of setting.json file.
// Nil fields were not set by any source and receive defaults.
type RawSettings struct {
	// Core settings
	Home       *string `json:"home" mapstructure:"home"`
	AgentType  *string `json:"agent_type" mapstructure:"agent_type"`
	AgentBin   *string `json:"agent_bin" mapstructure:"agent_bin"`
	TimeoutSec *int    `json:"timeout_sec" mapstructure:"timeout_sec"`

	// Persistence and workers
	DBPath    *string `json:"db_path" mapstructure:"db_path"`
	WorkerBin *string `json:"worker_bin" mapstructure:"worker_bin"`
	LogDir    *string `json:"log_dir" mapstructure:"log_dir"`

	// Workflow
	MaxValidationRetries *int    `json:"max_validation_retries" mapstructure:"max_validation_retries"`
	BaseBranch           *string `json:"base_branch" mapstructure:"base_branch"`
	GitRemote            *string `json:"git_remote" mapstructure:"git_remote"`

	// Artifact storage
	StorageType *string `json:"storage_type" mapstructure:"storage_type"`
	S3Bucket    *string `json:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix    *string `json:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region    *string `json:"s3_region" mapstructure:"s3_region"`

	// Logging and tracing
	StderrLevel *string `json:"stderr_level" mapstructure:"stderr_level"`
	TraceStdout *bool   `json:"trace_stdout" mapstructure:"trace_stdout"`
}

// settingKeys lists every key that may be overridden from the environment
var settingKeys = []string{
	"home", "agent_type", "agent_bin", "timeout_sec",
	"db_path", "worker_bin", "log_dir",
	"max_validation_retries", "base_branch", "git_remote",
	"storage_type", "s3_bucket", "s3_prefix", "s3_region",
	"stderr_level", "trace_stdout",
}

// LoadSettings loads configuration from <baseDir>/setting.json and DEEFLOW_*
// environment variables.
// Priority: ENV > setting.json > defaults
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range settingKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, SettingFileName)
	if _, err := os.Stat(jsonPath); err == nil {
		v.SetConfigFile(jsonPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}
	if configSource == "default" && envOverridden() {
		configSource = "env"
	}

	settings := &RawSettings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	applyDefaults(settings, baseDir)
	if err := validate(settings); err != nil {
		return nil, err
	}

	return buildAppConfig(settings, configSource, settingPath), nil
}

func envOverridden() bool {
	for _, key := range settingKeys {
		if _, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); ok {
			return true
		}
	}
	return false
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings, baseDir string) {
	setString := func(p **string, def string) {
		if *p == nil {
			*p = &def
		}
	}
	setInt := func(p **int, def int) {
		if *p == nil {
			*p = &def
		}
	}

	setString(&settings.Home, baseDir)
	setString(&settings.AgentType, "claude-code-cli")
	setString(&settings.AgentBin, "claude")
	setInt(&settings.TimeoutSec, 900) // 15 minutes for long implementation phases

	setString(&settings.DBPath, "")
	setString(&settings.WorkerBin, "")
	setString(&settings.LogDir, "")

	setInt(&settings.MaxValidationRetries, 3)
	setString(&settings.BaseBranch, "")
	setString(&settings.GitRemote, "origin")

	setString(&settings.StorageType, "local")
	setString(&settings.S3Bucket, "")
	setString(&settings.S3Prefix, "")
	setString(&settings.S3Region, "")

	setString(&settings.StderrLevel, "warn")
	if settings.TraceStdout == nil {
		v := false
		settings.TraceStdout = &v
	}
}

func validate(settings *RawSettings) error {
	if *settings.TimeoutSec <= 0 {
		return fmt.Errorf("timeout_sec must be positive, got %d", *settings.TimeoutSec)
	}
	if *settings.MaxValidationRetries < 0 {
		return fmt.Errorf("max_validation_retries cannot be negative, got %d", *settings.MaxValidationRetries)
	}
	if *settings.StorageType == "s3" && *settings.S3Bucket == "" {
		return errors.New("storage_type s3 requires s3_bucket")
	}
	return nil
}

// buildAppConfig converts RawSettings to AppConfig
func buildAppConfig(settings *RawSettings, configSource, settingPath string) *config.AppConfig {
	return config.NewAppConfig(config.Values{
		Home:                 *settings.Home,
		AgentType:            *settings.AgentType,
		AgentBin:             *settings.AgentBin,
		TimeoutSec:           *settings.TimeoutSec,
		DBPath:               *settings.DBPath,
		WorkerBin:            *settings.WorkerBin,
		LogDir:               *settings.LogDir,
		MaxValidationRetries: *settings.MaxValidationRetries,
		BaseBranch:           *settings.BaseBranch,
		GitRemote:            *settings.GitRemote,
		StorageType:          *settings.StorageType,
		S3Bucket:             *settings.S3Bucket,
		S3Prefix:             *settings.S3Prefix,
		S3Region:             *settings.S3Region,
		StderrLevel:          *settings.StderrLevel,
		TraceStdout:          *settings.TraceStdout,
	}, configSource, settingPath)
}

// CreateDefaultSettings creates a default setting.json content
func CreateDefaultSettings(baseDir string) []byte {
	settings := &RawSettings{}
	applyDefaults(settings, baseDir)

	data, _ := json.MarshalIndent(settings, "", "  ")
	return data
}
