// internal/environment/environment.go
// Package environment provisions the disposable database and application
// server a scenario runs against, and tears the server down afterwards.
// Databases are never dropped so a failed run can be inspected.
package environment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

// Provisioning stages reported in ProvisionError.
const (
	StageCreateDatabase = "create-database"
	StageSeedDatabase   = "seed-database"
	StageVerifyFixtures = "verify-fixtures"
	StageStartServer    = "start-server"
	StageServerReady    = "server-ready"
)

// ProvisionError is a fatal failure while bringing the environment up.
type ProvisionError struct {
	Stage string
	// ExitCode is the tooling exit status; 0 when no sub-process was involved
	// and -1 when the command could not be run.
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s: %v", e.Stage, e.Err)
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr:\n%s", e.Stderr)
	}
	return msg
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Environment is one provisioned database plus the server bound to it.
type Environment struct {
	ID        string    `json:"database"`
	BaseURL   string    `json:"base_url"`
	StartedAt time.Time `json:"started_at"`
}

// DatabaseCreator produces a new, uniquely named database.
type DatabaseCreator interface {
	CreateDatabase(ctx context.Context) (string, error)
}

// Verifier checks the seeded database before the server starts.
type Verifier interface {
	Verify(ctx context.Context, database string) error
}

// Provisioner owns the environment for one run. At most one server is live
// per Provisioner.
type Provisioner struct {
	cfg    config.EnvironmentConfig
	logger *zap.Logger

	runner   CommandRunner
	creator  DatabaseCreator
	verifier Verifier
	client   *http.Client
	baseEnv  func() []string

	mu     sync.Mutex
	env    *Environment
	server *serverProcess
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithRunner replaces the sub-process runner used for tooling commands.
func WithRunner(r CommandRunner) Option { return func(p *Provisioner) { p.runner = r } }

// WithCreator replaces the database creator chosen from configuration.
func WithCreator(c DatabaseCreator) Option { return func(p *Provisioner) { p.creator = c } }

// WithVerifier enables a fixture check after seeding.
func WithVerifier(v Verifier) Option { return func(p *Provisioner) { p.verifier = v } }

// WithHTTPClient sets the client used for readiness probes.
func WithHTTPClient(c *http.Client) Option { return func(p *Provisioner) { p.client = c } }

// NewProvisioner builds a Provisioner from configuration.
func NewProvisioner(cfg config.Interface, logger *zap.Logger, opts ...Option) *Provisioner {
	ec := cfg.Environment()
	p := &Provisioner{
		cfg:     ec,
		logger:  logger.Named("provisioner"),
		runner:  ExecRunner{},
		client:  &http.Client{Timeout: 5 * time.Second},
		baseEnv: os.Environ,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.creator == nil {
		switch ec.Creator {
		case config.CreatorPostgres:
			p.creator = &PostgresCreator{
				AdminURL: cfg.Database().AdminURL,
				Prefix:   ec.DatabasePrefix,
				Connect:  ConnectPool,
				Logger:   p.logger,
			}
		default:
			p.creator = &CommandCreator{Runner: p.runner, Dir: ec.Workdir, Env: p.baseEnv(), Argv: ec.CreateCommand, Logger: p.logger}
		}
	}
	if p.verifier == nil && cfg.Database().VerifyFixtures {
		p.verifier = &FixtureVerifier{URLTemplate: cfg.Database().URLTemplate, Connect: ConnectPool, Logger: p.logger}
	}
	return p
}

// Provision creates and seeds a database, starts the server against it and
// blocks until the server answers HTTP. Any failure is a *ProvisionError and
// leaves no server running.
func (p *Provisioner) Provision(ctx context.Context) (*Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return nil, errors.New("environment already provisioned")
	}

	started := time.Now()
	database, err := p.creator.CreateDatabase(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Test database created.", zap.String("database", database))

	seed := expandArgs(p.cfg.SeedCommand, database)
	if _, err := runTooling(ctx, p.runner, p.logger, StageSeedDatabase, p.cfg.Workdir, p.baseEnv(), seed); err != nil {
		return nil, err
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, database); err != nil {
			return nil, err
		}
	}

	env := append(p.baseEnv(), p.cfg.DatabaseEnvVar+"="+database)
	env = append(env, p.cfg.ServerEnv...)
	server, err := startServer(p.cfg.Workdir, env, expandArgs(p.cfg.ServerCommand, database), p.cfg.ServerLog, database, p.logger)
	if err != nil {
		return nil, &ProvisionError{Stage: StageStartServer, Err: err}
	}

	if err := server.waitReady(ctx, p.client, p.cfg.BaseURL, p.cfg.StartupTimeout, p.cfg.PollInterval); err != nil {
		if stopErr := server.terminate(context.WithoutCancel(ctx), p.cfg.ShutdownGrace); stopErr != nil {
			p.logger.Error("Failed to stop server after readiness failure.", zap.Error(stopErr))
		}
		return nil, &ProvisionError{Stage: StageServerReady, Err: err}
	}

	p.server = server
	p.env = &Environment{ID: database, BaseURL: p.cfg.BaseURL, StartedAt: started}
	p.logger.Info("Environment ready.",
		zap.String("database", database),
		zap.String("base_url", p.cfg.BaseURL),
		zap.Duration("elapsed", time.Since(started)))
	return p.env, nil
}

// Environment returns the provisioned environment, or nil.
func (p *Provisioner) Environment() *Environment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env
}

// Teardown stops the server. The database is retained. It is a no-op when
// nothing was provisioned and safe to call repeatedly.
func (p *Provisioner) Teardown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server == nil {
		p.logger.Debug("Teardown requested with no running server.")
		return nil
	}

	err := p.server.terminate(ctx, p.cfg.ShutdownGrace)
	p.server = nil
	if err != nil {
		return fmt.Errorf("failed to stop application server: %w", err)
	}
	p.logger.Info("Application server stopped; database retained for inspection.", zap.String("database", p.env.ID))
	return nil
}
