// File: internal/harness/harness.go
// Package harness wires one acceptance run together: it provisions the
// environment, opens the browser, runs the scenario and always releases
// both, then writes the run report.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/actor"
	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
	"github.com/xkilldash9x/mediflow-e2e/internal/handoff"
	"github.com/xkilldash9x/mediflow-e2e/internal/scenario"
)

const defaultShutdownTimeout = 30 * time.Second

// ErrIncomplete is returned when every step succeeded but the run never
// reached the logged-out state.
var ErrIncomplete = errors.New("scenario ended before logout")

// Harness runs the acceptance journey against a freshly provisioned
// environment. One Harness runs one scenario at a time.
type Harness struct {
	cfg    config.Interface
	logger *zap.Logger

	newProvisioner  func(config.Interface, *zap.Logger) Provisioner
	newBrowser      func(config.Interface, *zap.Logger) Browser
	steps           []scenario.Step
	rng             *rand.Rand
	newRunID        func() string
	now             func() time.Time
	shutdownTimeout time.Duration
}

// Option customizes a Harness.
type Option func(*Harness)

// WithProvisioner replaces the environment provisioner factory.
func WithProvisioner(f func(config.Interface, *zap.Logger) Provisioner) Option {
	return func(h *Harness) { h.newProvisioner = f }
}

// WithBrowser replaces the browser factory.
func WithBrowser(f func(config.Interface, *zap.Logger) Browser) Option {
	return func(h *Harness) { h.newBrowser = f }
}

// WithSteps runs steps instead of the acceptance journey.
func WithSteps(steps ...scenario.Step) Option {
	return func(h *Harness) { h.steps = steps }
}

// WithRand fixes the source of fixture suffixes.
func WithRand(r *rand.Rand) Option { return func(h *Harness) { h.rng = r } }

// WithShutdownTimeout bounds the final cleanup.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Harness) { h.shutdownTimeout = d }
}

// New creates a Harness with production collaborators.
func New(cfg config.Interface, logger *zap.Logger, opts ...Option) *Harness {
	h := &Harness{
		cfg:    cfg,
		logger: logger,
		newProvisioner: func(cfg config.Interface, logger *zap.Logger) Provisioner {
			return environment.NewProvisioner(cfg, logger)
		},
		newBrowser: func(cfg config.Interface, logger *zap.Logger) Browser {
			return browser.NewManager(cfg, logger)
		},
		steps:           scenario.AcceptanceJourney(),
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		newRunID:        uuid.NewString,
		now:             time.Now,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes one complete acceptance run. The returned report is never
// nil; it is also written to the configured report path. The error joins
// the scenario failure, if any, with cleanup and report failures.
func (h *Harness) Run(ctx context.Context) (*scenario.Report, error) {
	runID := h.newRunID()
	logger := h.logger.With(zap.String("run_id", runID))
	rc := scenario.NewRunContext(h.cfg, runID, logger)
	report := rc.Report

	engine, err := scenario.NewEngine(logger, h.steps...)
	if err != nil {
		return h.finish(logger, report, nil, err)
	}
	fixtures, err := scenario.NewFixtures(h.cfg, h.rng)
	if err != nil {
		return h.finish(logger, report, nil, err)
	}
	rc.Fixtures = fixtures

	components := &Components{logger: logger.Named("shutdown"), shutdownTimeout: h.shutdownTimeout}
	// Covers panics in a step; the explicit call below is the normal path.
	defer components.Shutdown(ctx)

	prov := h.newProvisioner(h.cfg, logger)
	components.Provisioner = prov
	env, err := prov.Provision(ctx)
	if err != nil {
		logger.Error("Provisioning failed.", zap.Error(err))
		return h.finish(logger, report, nil, errors.Join(err, components.Shutdown(ctx)))
	}
	rc.Environment = env
	report.Database = env.ID
	report.BaseURL = env.BaseURL
	_ = rc.Advance(scenario.Provisioned)

	br := h.newBrowser(h.cfg, logger)
	if err := br.Open(ctx); err != nil {
		logger.Error("Browser failed to start, tearing the environment down.", zap.Error(err))
		return h.finish(logger, report, nil, errors.Join(err, components.Shutdown(ctx)))
	}
	components.Browser = br
	_ = rc.Advance(scenario.BrowserOpen)

	creds := h.cfg.Credentials().Admin
	rc.Browser = br
	rc.Admin = actor.NewSession(br, br.Primary(), actor.Credentials(creds.Email, creds.Password, actor.RoleAdmin), env.BaseURL, logger)
	rc.Handoff = handoff.New(rc.Admin, h.cfg.Scenario(), logger)

	logger.Info("Running scenario.",
		zap.String("database", env.ID),
		zap.String("base_url", env.BaseURL),
		zap.String("user", fixtures.User.Name),
		zap.String("patient", fixtures.Patient.Name))
	runErr := engine.Run(ctx, rc)

	shutdownErr := components.Shutdown(ctx)
	if err := rc.Advance(scenario.TornDown); err != nil {
		logger.Debug("Could not record teardown.", zap.Error(err))
	}
	return h.finish(logger, report, br.Recorder(), errors.Join(runErr, shutdownErr))
}

// finish completes and writes the report.
func (h *Harness) finish(logger *zap.Logger, report *scenario.Report, rec *browser.Recorder, runErr error) (*scenario.Report, error) {
	if rec != nil {
		if files := rec.Files(); files != nil {
			report.Screenshots = files
		}
		report.ScreenshotFailures = rec.Failures()
		if n := len(report.ScreenshotFailures); n > 0 {
			names := make([]string, 0, n)
			for _, f := range report.ScreenshotFailures {
				names = append(names, browser.Filename(f.Sequence, f.Name))
			}
			logger.Warn("Some screenshots could not be written.",
				zap.Int("failed", n),
				zap.Int("total", rec.Count()),
				zap.Strings("files", names))
		}
	}
	report.Finish(h.now(), runErr)
	if runErr == nil && !report.Passed {
		runErr = ErrIncomplete
		report.Error = runErr.Error()
	}

	if path := h.cfg.Scenario().ReportPath; path != "" {
		if err := report.WriteFile(path); err != nil {
			logger.Error("Failed to write run report.", zap.String("path", path), zap.Error(err))
			runErr = errors.Join(runErr, err)
		} else {
			logger.Info("Run report written.", zap.String("path", path))
		}
	}

	if report.Database != "" {
		logger.Info("Test database retained for inspection.", zap.String("database", report.Database))
	}
	if runErr != nil {
		logger.Error("Acceptance run failed.", zap.String("failed_step", report.FailedStep), zap.Error(runErr))
		return report, runErr
	}
	logger.Info("Acceptance run passed.", zap.Int("screenshots", len(report.Screenshots)))
	return report, nil
}

// Provision brings an environment up for manual use, reports it through
// ready and keeps it running until ctx is canceled.
func (h *Harness) Provision(ctx context.Context, ready func(*environment.Environment)) error {
	prov := h.newProvisioner(h.cfg, h.logger)
	env, err := prov.Provision(ctx)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(env)
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()
	if err := prov.Teardown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to tear the environment down: %w", err)
	}
	return nil
}
