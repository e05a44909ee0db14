// File: internal/scenario/report.go
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/handoff"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Transition is one state reached during the run.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Report is the machine-readable outcome of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Database   string    `json:"database,omitempty"`
	BaseURL    string    `json:"base_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Passed     bool      `json:"passed"`

	Transitions []Transition `json:"transitions"`
	FailedStep  string       `json:"failed_step,omitempty"`
	FailedAfter string       `json:"failed_after,omitempty"`
	Error       string       `json:"error,omitempty"`

	Screenshots        []string                    `json:"screenshots"`
	ScreenshotFailures []browser.ScreenshotFailure `json:"screenshot_failures,omitempty"`

	Handoff *handoff.Result `json:"handoff,omitempty"`
}

// NewReport starts an empty report.
func NewReport(runID, baseURL string, started time.Time) *Report {
	return &Report{RunID: runID, BaseURL: baseURL, StartedAt: started, Transitions: []Transition{}, Screenshots: []string{}}
}

func (r *Report) record(s State, at time.Time) {
	r.Transitions = append(r.Transitions, Transition{State: s, At: at})
}

func (r *Report) fail(err *StepError) {
	r.FailedStep = err.Step
	r.FailedAfter = err.State.String()
	r.Error = err.Err.Error()
}

// Reached reports whether the run got to s.
func (r *Report) Reached(s State) bool {
	for _, t := range r.Transitions {
		if t.State == s {
			return true
		}
	}
	return false
}

// Finish stamps the end of the run. A run passes when no step failed, no
// other error was recorded and every state up to LoggedOut was reached.
func (r *Report) Finish(at time.Time, err error) {
	r.FinishedAt = at
	if err != nil && r.Error == "" {
		r.Error = err.Error()
	}
	r.Passed = err == nil && r.FailedStep == "" && r.Reached(LoggedOut)
}

// WriteFile writes the report as indented JSON, creating parent directories.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
