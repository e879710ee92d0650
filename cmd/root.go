// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/observability"
)

// contextKey scopes the values this package stores on a command context.
type contextKey string

// configKey carries the loaded *config.Config from PersistentPreRunE to the
// subcommand RunE functions.
const configKey contextKey = "config"

var (
	cfgFile  string
	logLevel string
	logFile  string
	headless bool
)

// NewRootCommand builds a pristine root command with all subcommands
// attached. Every call returns an independent instance, so tests never share
// cobra state.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptq",
		Short: "promptq feeds a list of prompts through a chat-style interface, one at a time.",
		Long: `promptq drives an ordered list of prompts through a browser-hosted chat
interface (or a direct image-generation API), submitting each prompt only
after the previous response has finished. Prompt sequences can be stored and
replayed, and a local control server exposes the same operations over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "promptq"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "promptq"})
				return err
			}
			applyRootOverrides(cmd, cfg)

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting promptq.", zap.String("version", Version))

			// Subcommands read the validated config back out of the context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "override the configured log file path")
	root.PersistentFlags().BoolVar(&headless, "headless", false, "run the browser headless")
	root.SetVersionTemplate(`{{.Name}} version {{.Version}}
`)

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newSequenceCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs a fresh root command under the given signal-aware context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		return err
	}
	return nil
}

// applyRootOverrides folds the persistent flags into the loaded config.
// Flags win over both file and environment, but only when explicitly set.
func applyRootOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logger.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logger.LogFile = logFile
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
}

// initializeConfig points viper at the config file and the environment.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.promptq")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PROMPTQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and environment apply.
	}
	return nil
}

// getConfigFromContext retrieves the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}
