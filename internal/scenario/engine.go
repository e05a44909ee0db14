// File: internal/scenario/engine.go
// Package scenario encodes the acceptance journey as an ordered, fail-fast
// sequence of steps. Each step moves the run forward to one State.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/actor"
	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
	"github.com/xkilldash9x/mediflow-e2e/internal/handoff"
)

// State is a point in the life of one run. States only move forward.
type State int

const (
	StateNone State = iota
	Provisioned
	BrowserOpen
	AdminAuthenticated
	NavigationVerified
	UserCreated
	UserDeleted
	PatientCreated
	TokenExtracted
	PatientConsented
	ConsentStatusVerified
	AppointmentScheduled
	PaymentMarked
	AISummaryGenerated
	PatientDeleted
	LoggedOut
	TornDown
)

var stateNames = [...]string{
	StateNone:             "None",
	Provisioned:           "Provisioned",
	BrowserOpen:           "BrowserOpen",
	AdminAuthenticated:    "AdminAuthenticated",
	NavigationVerified:    "NavigationVerified",
	UserCreated:           "UserCreated",
	UserDeleted:           "UserDeleted",
	PatientCreated:        "PatientCreated",
	TokenExtracted:        "TokenExtracted",
	PatientConsented:      "PatientConsented",
	ConsentStatusVerified: "ConsentStatusVerified",
	AppointmentScheduled:  "AppointmentScheduled",
	PaymentMarked:         "PaymentMarked",
	AISummaryGenerated:    "AISummaryGenerated",
	PatientDeleted:        "PatientDeleted",
	LoggedOut:             "LoggedOut",
	TornDown:              "TornDown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Step is one action plus its assertions. Run must leave the run in Target.
type Step struct {
	Name   string
	Target State
	Run    func(ctx context.Context, rc *RunContext) error
}

// StepError reports the step that aborted a run.
type StepError struct {
	Step string
	// State is the last state reached before the failure.
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed after %s: %v", e.Step, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunContext is everything a step may touch. It is passed explicitly to
// every step; nothing is shared through package state.
type RunContext struct {
	Config      config.Interface
	Environment *environment.Environment
	Browser     browser.Controller
	Admin       *actor.Session
	Handoff     *handoff.Protocol
	Fixtures    *Fixtures
	Report      *Report
	Logger      *zap.Logger

	// Token is the consent token carried from the administrator to the patient.
	Token string

	state State
	now   func() time.Time
}

// NewRunContext creates a RunContext whose report is stamped with runID.
func NewRunContext(cfg config.Interface, runID string, logger *zap.Logger) *RunContext {
	rc := &RunContext{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}
	rc.Report = NewReport(runID, cfg.Environment().BaseURL, rc.now())
	return rc
}

// State is the last state reached.
func (rc *RunContext) State() State { return rc.state }

// Advance records that the run reached s. Moving backwards is a bug in the
// step list and is rejected.
func (rc *RunContext) Advance(s State) error {
	if s <= rc.state {
		return fmt.Errorf("cannot move from %s back to %s", rc.state, s)
	}
	rc.state = s
	if rc.Report != nil {
		rc.Report.record(s, rc.now())
	}
	if rc.Logger != nil {
		rc.Logger.Info("State reached.", zap.Stringer("state", s))
	}
	return nil
}

// Engine executes steps strictly in order.
type Engine struct {
	steps  []Step
	logger *zap.Logger
}

// NewEngine validates that steps are named, runnable and target strictly
// increasing states.
func NewEngine(logger *zap.Logger, steps ...Step) (*Engine, error) {
	if len(steps) == 0 {
		return nil, errors.New("scenario has no steps")
	}
	var prev State
	for i, s := range steps {
		if s.Name == "" || s.Run == nil {
			return nil, fmt.Errorf("step %d is incomplete", i)
		}
		if s.Target <= prev {
			return nil, fmt.Errorf("step %q targets %s, which does not follow %s", s.Name, s.Target, prev)
		}
		prev = s.Target
	}
	return &Engine{steps: steps, logger: logger.Named("scenario")}, nil
}

// Steps returns a copy of the step list.
func (e *Engine) Steps() []Step {
	return append([]Step(nil), e.steps...)
}

// Run executes every step and stops at the first failure, which is returned
// as a *StepError and recorded in the report. Teardown is the caller's job.
func (e *Engine) Run(ctx context.Context, rc *RunContext) error {
	if first := e.steps[0].Target; rc.State() >= first {
		return fmt.Errorf("run is already at %s, past the first step target %s", rc.State(), first)
	}

	for i, step := range e.steps {
		log := e.logger.With(zap.String("step", step.Name), zap.Int("index", i+1), zap.Int("total", len(e.steps)))
		if err := ctx.Err(); err != nil {
			return e.fail(rc, step, err)
		}

		log.Info("Step started.")
		start := time.Now()
		if err := step.Run(ctx, rc); err != nil {
			log.Error("Step failed.", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return e.fail(rc, step, err)
		}
		if err := rc.Advance(step.Target); err != nil {
			return e.fail(rc, step, err)
		}
		log.Info("Step passed.", zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func (e *Engine) fail(rc *RunContext, step Step, err error) error {
	serr := &StepError{Step: step.Name, State: rc.State(), Err: err}
	if rc.Report != nil {
		rc.Report.fail(serr)
	}
	return serr
}
