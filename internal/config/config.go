package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// EnvPrefix is the prefix of environment variables overriding settings,
// e.g. MERGEPIPE_LOGGING_LEVEL.
const EnvPrefix = "MERGEPIPE"

// Config represents the complete mergepipe settings
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Git      GitConfig      `mapstructure:"git" yaml:"git"`
	Merge    MergeConfig    `mapstructure:"merge" yaml:"merge"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn" or "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where mergepipe.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// GitConfig controls how git is invoked
type GitConfig struct {
	// Binary is the git executable, looked up on PATH when not absolute
	Binary string `mapstructure:"binary" yaml:"binary"`
}

// MergeConfig holds defaults for the built-in operations
type MergeConfig struct {
	// DefaultStrategy is used by git-merge steps that name no strategy
	DefaultStrategy string `mapstructure:"default_strategy" yaml:"default_strategy"`
	// CommandTimeoutSeconds bounds command-line-merge steps that give no timeout
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`
}

// PipelineConfig locates the pipeline document
type PipelineConfig struct {
	// File is an explicit pipeline document. Empty means discover one.
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the default settings
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Git: GitConfig{
			Binary: vcs.DefaultBinary,
		},
		Merge: MergeConfig{
			DefaultStrategy:       vcs.DefaultStrategy,
			CommandTimeoutSeconds: 60,
		},
	}
}

// CommandTimeout returns the command timeout as a time.Duration
func (c *MergeConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	viper.SetDefault("git.binary", defaults.Git.Binary)

	viper.SetDefault("merge.default_strategy", defaults.Merge.DefaultStrategy)
	viper.SetDefault("merge.command_timeout_seconds", defaults.Merge.CommandTimeoutSeconds)

	viper.SetDefault("pipeline.file", defaults.Pipeline.File)
}

// Load reads the settings from viper into a Config struct and validates them
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError("failed to decode settings", err).WithSource(viper.ConfigFileUsed())
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.NewConfigError("invalid settings", ValidationErrors(errs)).WithSource(viper.ConfigFileUsed())
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mergepipe")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mergepipe"
	}
	return filepath.Join(home, ".config", "mergepipe")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
