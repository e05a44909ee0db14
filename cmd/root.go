// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
	"github.com/xkilldash9x/mediflow-e2e/internal/harness"
	"github.com/xkilldash9x/mediflow-e2e/internal/observability"
	"github.com/xkilldash9x/mediflow-e2e/internal/scenario"
)

type contextKey string

const configKey contextKey = "config"

const envPrefix = "MEDIFLOW_E2E"

// Runner is what the run and provision commands drive.
type Runner interface {
	Run(ctx context.Context) (*scenario.Report, error)
	Provision(ctx context.Context, ready func(*environment.Environment)) error
}

// RunnerProvider builds a Runner for the loaded configuration.
type RunnerProvider func(cfg config.Interface, logger *zap.Logger) Runner

// DefaultRunnerProvider wires the real environment and browser.
func DefaultRunnerProvider(cfg config.Interface, logger *zap.Logger) Runner {
	return harness.New(cfg, logger)
}

// ErrRunFailed marks a completed run that did not pass. The details were
// already logged and written to the report.
var ErrRunFailed = errors.New("acceptance run failed")

// Execute runs the root command with the signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrRunFailed) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// NewRootCommand creates the command tree with production collaborators.
func NewRootCommand() *cobra.Command {
	return newRootCmd(DefaultRunnerProvider)
}

func newRootCmd(provider RunnerProvider) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "mediflow-e2e",
		Short:         "End-to-end acceptance harness for the MediFlow clinic application.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting mediflow-e2e", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(newRunCmd(provider))
	rootCmd.AddCommand(newProvisionCmd(provider))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// initializeConfig reads the config file, if any, and layers environment
// variables over it.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
