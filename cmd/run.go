// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/observability"
)

type runOptions struct {
	baseURL     string
	headless    bool
	screenshots string
	report      string
	aiTimeout   time.Duration
	tokenReplay string
}

// newRunCmd creates the `run` command, which executes the full acceptance
// journey once and exits non-zero unless it passes.
func newRunCmd(provider RunnerProvider) *cobra.Command {
	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Provisions a fresh environment and runs the acceptance journey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, opts); err != nil {
				return err
			}
			return runAcceptance(cmd, cfg, provider(cfg, observability.GetLogger()))
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.baseURL, "base-url", "", "URL the application server listens on")
	flags.BoolVar(&opts.headless, "headless", true, "run the browser without a window")
	flags.StringVar(&opts.screenshots, "screenshots", "", "directory for checkpoint screenshots")
	flags.StringVar(&opts.report, "report", "", "path of the JSON run report")
	flags.DurationVar(&opts.aiTimeout, "ai-timeout", 0, "how long to wait for the AI summary")
	flags.StringVar(&opts.tokenReplay, "token-replay", "", "consent token replay policy: report, enforce or skip")
	return runCmd
}

// applyRunFlags overrides configuration with the flags the user set
// explicitly, then revalidates.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.SetBaseURL(opts.baseURL)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("screenshots") {
		cfg.SetScreenshotDir(opts.screenshots)
	}
	if flags.Changed("report") {
		cfg.SetReportPath(opts.report)
	}
	if flags.Changed("ai-timeout") {
		cfg.SetAITimeout(opts.aiTimeout)
	}
	if flags.Changed("token-replay") {
		cfg.SetTokenReplay(opts.tokenReplay)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runAcceptance(cmd *cobra.Command, cfg config.Interface, runner Runner) error {
	logger := observability.GetLogger()
	report, err := runner.Run(cmd.Context())

	if report != nil {
		status := "PASSED"
		if !report.Passed {
			status = "FAILED"
		}
		printf(cmd, "\nAcceptance run %s. Run ID: %s\n", status, report.RunID)
		if report.Database != "" {
			printf(cmd, "Test database: %s\n", report.Database)
		}
		if report.FailedStep != "" {
			printf(cmd, "Failed step: %s (after %s)\n", report.FailedStep, report.FailedAfter)
		}
		printf(cmd, "Screenshots: %d written, %d failed\n", len(report.Screenshots), len(report.ScreenshotFailures))
		if path := cfg.Scenario().ReportPath; path != "" {
			printf(cmd, "Report: %s\n", path)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Acceptance run aborted by signal.")
			return err
		}
		return fmt.Errorf("%w: %w", ErrRunFailed, err)
	}
	logger.Info("Acceptance run complete.", zap.Bool("passed", report.Passed))
	return nil
}
