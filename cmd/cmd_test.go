// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
	"github.com/xkilldash9x/mediflow-e2e/internal/observability"
	"github.com/xkilldash9x/mediflow-e2e/internal/scenario"
)

type fakeRunner struct {
	report       *scenario.Report
	err          error
	env          *environment.Environment
	provisionErr error
	runs         int
}

func (f *fakeRunner) Run(context.Context) (*scenario.Report, error) {
	f.runs++
	return f.report, f.err
}

func (f *fakeRunner) Provision(ctx context.Context, ready func(*environment.Environment)) error {
	if f.provisionErr != nil {
		return f.provisionErr
	}
	ready(f.env)
	return nil
}

// resetForTest isolates each test from the global logger and from any
// config.yaml or environment on the developer's machine.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Setenv("MEDIFLOW_E2E_LOGGER_LOG_FILE", filepath.Join(t.TempDir(), "harness.log"))
	t.Setenv("MEDIFLOW_E2E_LOGGER_LEVEL", "error")
	t.Chdir(t.TempDir())
}

// executeCommand runs the command tree with runner standing in for the
// harness and returns the combined output and the configuration the runner
// was built with.
func executeCommand(t *testing.T, runner *fakeRunner, args ...string) (string, *config.Config, error) {
	t.Helper()
	resetForTest(t)

	var captured *config.Config
	root := newRootCmd(func(cfg config.Interface, _ *zap.Logger) Runner {
		captured = cfg.(*config.Config)
		return runner
	})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), captured, err
}

func passedReport() *scenario.Report {
	r := scenario.NewReport("run-1", "http://127.0.0.1:8080", time.Now())
	r.Database = "mediflow_test_abc"
	r.Passed = true
	r.Screenshots = []string{"photos/01_dashboard_inicial.png"}
	return r
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, _, err := executeCommand(t, &fakeRunner{}, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "mediflow-e2e version Alpha")
}

func TestVersionCmd_SkipsConfig(t *testing.T) {
	// A broken config file must not stop the version command.
	out, _, err := executeCommand(t, &fakeRunner{}, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "mediflow-e2e Alpha\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, _, err := executeCommand(t, &fakeRunner{})
	require.NoError(t, err)
	assert.Contains(t, out, "End-to-end acceptance harness")
}

func TestRunCmd_Passed(t *testing.T) {
	runner := &fakeRunner{report: passedReport()}
	out, cfg, err := executeCommand(t, runner, "run")
	require.NoError(t, err)
	assert.Equal(t, 1, runner.runs)
	assert.Contains(t, out, "Acceptance run PASSED. Run ID: run-1")
	assert.Contains(t, out, "Test database: mediflow_test_abc")
	assert.Contains(t, out, "Screenshots: 1 written, 0 failed")

	require.NotNil(t, cfg)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Environment().BaseURL)
	assert.Equal(t, config.TokenReplayReport, cfg.Scenario().TokenReplay)
}

func TestRunCmd_Failed(t *testing.T) {
	report := passedReport()
	report.Passed = false
	report.FailedStep = "patient consent"
	report.FailedAfter = "TokenExtracted"
	stepErr := errors.New("timed out waiting for url contains /portal/success")
	runner := &fakeRunner{report: report, err: stepErr}

	out, _, err := executeCommand(t, runner, "run")
	require.ErrorIs(t, err, ErrRunFailed)
	require.ErrorIs(t, err, stepErr)
	assert.Contains(t, out, "Acceptance run FAILED")
	assert.Contains(t, out, "Failed step: patient consent (after TokenExtracted)")
}

func TestRunCmd_Canceled(t *testing.T) {
	runner := &fakeRunner{report: passedReport(), err: context.Canceled}
	_, _, err := executeCommand(t, runner, "run")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRunFailed)
}

func TestRunCmd_FlagsOverrideConfig(t *testing.T) {
	runner := &fakeRunner{report: passedReport()}
	_, cfg, err := executeCommand(t, runner, "run",
		"--base-url", "http://localhost:9090/",
		"--headless=false",
		"--screenshots", "shots",
		"--report", "out/report.json",
		"--ai-timeout", "45s",
		"--token-replay", "enforce",
	)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:9090", cfg.Environment().BaseURL)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "shots", cfg.Screenshots().Dir)
	assert.Equal(t, "out/report.json", cfg.Scenario().ReportPath)
	assert.Equal(t, 45*time.Second, cfg.Scenario().AITimeout)
	assert.Equal(t, config.TokenReplayEnforce, cfg.Scenario().TokenReplay)
}

func TestRunCmd_InvalidFlag(t *testing.T) {
	runner := &fakeRunner{report: passedReport()}
	_, _, err := executeCommand(t, runner, "run", "--token-replay", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_replay must be one of")
	assert.Zero(t, runner.runs)
}

func TestRunCmd_RejectsArgs(t *testing.T) {
	runner := &fakeRunner{report: passedReport()}
	_, _, err := executeCommand(t, runner, "run", "extra")
	require.Error(t, err)
	assert.Zero(t, runner.runs)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "e2e.yaml")
	content := `
environment:
  base_url: http://10.0.0.5:8080
scenario:
  token_replay: skip
  appointment:
    date: "2026-01-15"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	runner := &fakeRunner{report: passedReport()}
	_, cfg, err := executeCommand(t, runner, "run", "--config", path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "http://10.0.0.5:8080", cfg.Environment().BaseURL)
	assert.Equal(t, config.TokenReplaySkip, cfg.Scenario().TokenReplay)
	assert.Equal(t, "2026-01-15", cfg.Scenario().Appointment.Date)
	// Untouched keys keep their defaults.
	assert.Equal(t, "admin@mediflow.com", cfg.Credentials().Admin.Email)
}

func TestConfigFile_Missing(t *testing.T) {
	runner := &fakeRunner{report: passedReport()}
	_, _, err := executeCommand(t, runner, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
	assert.Zero(t, runner.runs)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MEDIFLOW_E2E_SCENARIO_TOKEN_REPLAY", "skip")
	runner := &fakeRunner{report: passedReport()}
	_, cfg, err := executeCommand(t, runner, "run")
	require.NoError(t, err)
	assert.Equal(t, config.TokenReplaySkip, cfg.Scenario().TokenReplay)
}

func TestProvisionCmd(t *testing.T) {
	runner := &fakeRunner{env: &environment.Environment{ID: "mediflow_test_abc", BaseURL: "http://127.0.0.1:8080"}}
	out, _, err := executeCommand(t, runner, "provision")
	require.NoError(t, err)
	assert.Contains(t, out, "Database: mediflow_test_abc")
	assert.Contains(t, out, "Application: http://127.0.0.1:8080")
}

func TestProvisionCmd_Failure(t *testing.T) {
	runner := &fakeRunner{provisionErr: &environment.ProvisionError{Stage: environment.StageSeedDatabase, Err: errors.New("exit status 1")}}
	_, _, err := executeCommand(t, runner, "provision")
	var perr *environment.ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, environment.StageSeedDatabase, perr.Stage)
}
