package config

import (
	"path/filepath"
	"time"
)

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (JSON, ENV, defaults)
// and ensures the app layer doesn't depend on infrastructure details.
type Config interface {
	// Core settings
	Home() string           // Base directory for deeflow state (DEEFLOW_HOME)
	AgentType() string      // Agent gateway type: claude-code-cli or mock
	AgentBin() string       // Agent binary path
	TimeoutSec() int        // Per agent call timeout in seconds
	Timeout() time.Duration // Per agent call timeout as Duration

	// Persistence and workers
	DBPath() string    // SQLite database file
	WorkerBin() string // Binary re-executed for workers; current executable when empty
	LogDir() string    // Directory of per-run worker logs

	// Workflow
	MaxValidationRetries() int // Re-runs allowed after invalid structured output
	BaseBranch() string        // Branch features merge into; detected when empty
	GitRemote() string         // Remote used for fetch and merge verification

	// Artifact storage
	StorageType() string // none, local or s3
	S3Bucket() string
	S3Prefix() string
	S3Region() string

	// Logging and tracing
	StderrLevel() string // Stderr log level
	TraceStdout() bool   // Export workflow spans to stdout

	// Metadata
	ConfigSource() string // Source of configuration: "json", "env", or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// Values are the resolved settings an AppConfig is built from
type Values struct {
	Home                 string
	AgentType            string
	AgentBin             string
	TimeoutSec           int
	DBPath               string
	WorkerBin            string
	LogDir               string
	MaxValidationRetries int
	BaseBranch           string
	GitRemote            string
	StorageType          string
	S3Bucket             string
	S3Prefix             string
	S3Region             string
	StderrLevel          string
	TraceStdout          bool
}

// AppConfig is the concrete implementation of Config interface.
type AppConfig struct {
	v Values

	configSource string
	settingPath  string
}

// NewAppConfig creates a new AppConfig with the given values.
// This is typically called by the infrastructure layer after loading and merging configurations.
func NewAppConfig(v Values, configSource, settingPath string) *AppConfig {
	return &AppConfig{v: v, configSource: configSource, settingPath: settingPath}
}

// Home returns the base directory
func (c *AppConfig) Home() string {
	return c.v.Home
}

// AgentType returns the agent gateway type
func (c *AppConfig) AgentType() string {
	return c.v.AgentType
}

// AgentBin returns the agent binary path
func (c *AppConfig) AgentBin() string {
	return c.v.AgentBin
}

// TimeoutSec returns the timeout in seconds
func (c *AppConfig) TimeoutSec() int {
	return c.v.TimeoutSec
}

// Timeout returns the timeout as a Duration
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.v.TimeoutSec) * time.Second
}

// DBPath returns the database file, <home>/deeflow.db unless configured
func (c *AppConfig) DBPath() string {
	if c.v.DBPath != "" {
		return c.v.DBPath
	}
	return filepath.Join(c.v.Home, "deeflow.db")
}

// WorkerBin returns the worker binary
func (c *AppConfig) WorkerBin() string {
	return c.v.WorkerBin
}

// LogDir returns the worker log directory, <home>/logs unless configured
func (c *AppConfig) LogDir() string {
	if c.v.LogDir != "" {
		return c.v.LogDir
	}
	return filepath.Join(c.v.Home, "logs")
}

// MaxValidationRetries returns the validation retry ceiling
func (c *AppConfig) MaxValidationRetries() int {
	return c.v.MaxValidationRetries
}

// BaseBranch returns the configured base branch
func (c *AppConfig) BaseBranch() string {
	return c.v.BaseBranch
}

// GitRemote returns the git remote name
func (c *AppConfig) GitRemote() string {
	return c.v.GitRemote
}

// StorageType returns the artifact storage type
func (c *AppConfig) StorageType() string {
	return c.v.StorageType
}

// S3Bucket returns the artifact bucket
func (c *AppConfig) S3Bucket() string {
	return c.v.S3Bucket
}

// S3Prefix returns the artifact key prefix
func (c *AppConfig) S3Prefix() string {
	return c.v.S3Prefix
}

// S3Region returns the bucket region
func (c *AppConfig) S3Region() string {
	return c.v.S3Region
}

// StderrLevel returns the stderr log level
func (c *AppConfig) StderrLevel() string {
	return c.v.StderrLevel
}

// TraceStdout returns whether spans are exported to stdout
func (c *AppConfig) TraceStdout() bool {
	return c.v.TraceStdout
}

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string {
	return c.configSource
}

// SettingPath returns the path to setting.json if loaded from file
func (c *AppConfig) SettingPath() string {
	return c.settingPath
}

// SpecRoot returns the directory holding one spec directory per feature
func SpecRoot(c Config) string {
	return filepath.Join(c.Home(), "specs")
}

// WorktreeRoot returns the directory holding one worktree per feature
func WorktreeRoot(c Config) string {
	return filepath.Join(c.Home(), "worktrees")
}
