// File: internal/harness/components.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
)

// Provisioner is the environment lifecycle the harness drives.
type Provisioner interface {
	Provision(ctx context.Context) (*environment.Environment, error)
	Teardown(ctx context.Context) error
}

// Browser is the browser lifecycle plus the controller handed to the
// scenario.
type Browser interface {
	browser.Controller
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Recorder() *browser.Recorder
}

// Components holds the resources acquired for one run so they can be
// released in reverse order of acquisition.
type Components struct {
	Provisioner Provisioner
	Browser     Browser

	logger          *zap.Logger
	shutdownTimeout time.Duration
	once            sync.Once
	err             error
}

// Shutdown closes the browser, then stops the application server. It runs
// on a context detached from ctx so that cancellation of the run (Ctrl-C)
// still lets cleanup finish. Only the first call does any work.
func (c *Components) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.shutdownTimeout)
		defer cancel()

		var errs []error
		if c.Browser != nil {
			if err := c.Browser.Close(shutdownCtx); err != nil {
				c.logger.Warn("Error while closing the browser.", zap.Error(err))
				errs = append(errs, fmt.Errorf("browser close: %w", err))
			} else {
				c.logger.Debug("Browser closed.")
			}
		}
		if c.Provisioner != nil {
			if err := c.Provisioner.Teardown(shutdownCtx); err != nil {
				c.logger.Warn("Error while tearing the environment down.", zap.Error(err))
				errs = append(errs, fmt.Errorf("environment teardown: %w", err))
			} else {
				c.logger.Debug("Environment torn down.")
			}
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}
