package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mergepipe/internal/config"
	"github.com/Iron-Ham/mergepipe/internal/errors"
)

// Exit codes reported by the mergepipe binary.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// errMergeFailed reports a merge that did not succeed. The details have
// already been logged.
var errMergeFailed = errors.New("merge failed")

var rootCmd = &cobra.Command{
	Use:   "mergepipe",
	Short: "Rule-driven merge pipelines for git",
	Long: `mergepipe resolves merges file by file through configurable pipelines.

Each pipeline is a list of rule-gated steps (git-merge, take-current,
take-other, keep-base, command-line-merge). mergepipe can run as a git
merge driver, as a git mergetool, to re-merge a single file, or to fold
several branches into the working tree.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which long-running
// commands such as logs --follow watch for cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an error returned by Execute to a process exit code.
// Configuration errors and the plain errors cobra returns for bad flags or
// arguments are usage errors. Any other mergepipe error failed the merge.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errMergeFailed):
		return ExitFailed
	case errors.IsConfigurationError(err):
		return ExitUsage
	case errors.IsUserFacing(err):
		return ExitFailed
	default:
		return ExitUsage
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/mergepipe/config.yaml)")
	rootCmd.PersistentFlags().StringP("pipeline", "p", "", "pipeline document (default: discovered)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("pipeline.file", rootCmd.PersistentFlags().Lookup("pipeline"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g., MERGEPIPE_MERGE_DEFAULT_STRATEGY for merge.default_strategy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
