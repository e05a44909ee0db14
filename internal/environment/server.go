// internal/environment/server.go
package environment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/wait"
)

// serverProcess is the running application server.
type serverProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
	logger  *zap.Logger

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
}

// startServer launches argv detached from ctx so it lives until terminate.
// Its combined output is appended to logPath rather than the harness log,
// under a header naming database, so earlier runs stay readable.
func startServer(dir string, env, argv []string, logPath, database string, logger *zap.Logger) (*serverProcess, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty server command")
	}

	var out io.Writer = io.Discard
	var logFile *os.File
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("create server log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open server log: %w", err)
		}
		if _, err := fmt.Fprintf(f, "==== %s server for %s ====\n", time.Now().Format(time.RFC3339), database); err != nil {
			f.Close()
			return nil, fmt.Errorf("write server log header: %w", err)
		}
		logFile, out = f, f
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = out
	cmd.Stderr = out
	detach(cmd)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	s := &serverProcess{cmd: cmd, logFile: logFile, logger: logger, exited: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	logger.Info("Application server started.", zap.Int("pid", cmd.Process.Pid), zap.String("log", logPath))
	return s, nil
}

func (s *serverProcess) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// waitReady polls url until the server answers with anything but a 5xx.
// An early exit of the process aborts the wait at once.
func (s *serverProcess) waitReady(ctx context.Context, client *http.Client, url string, timeout, interval time.Duration) error {
	return wait.Until(ctx, fmt.Sprintf("server responds at %s", url), timeout, interval, func(ctx context.Context) (bool, error) {
		if s.hasExited() {
			return false, wait.Permanent(fmt.Errorf("server process exited before becoming ready: %v", s.waitErr))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, wait.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return false, fmt.Errorf("status %d", resp.StatusCode)
		}
		return true, nil
	})
}

// terminate asks the process group to stop, escalating to SIGKILL after
// grace. It blocks until the process has been reaped or ctx is done.
func (s *serverProcess) terminate(ctx context.Context, grace time.Duration) error {
	var err error
	s.stopOnce.Do(func() {
		defer func() {
			if s.logFile != nil {
				s.logFile.Close()
			}
		}()
		if s.hasExited() {
			return
		}

		if sigErr := signalGroup(s.cmd, false); sigErr != nil {
			s.logger.Debug("Graceful stop signal failed.", zap.Error(sigErr))
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-s.exited:
			return
		case <-timer.C:
			s.logger.Warn("Server did not stop within grace period, killing.", zap.Duration("grace", grace))
		case <-ctx.Done():
		}

		if killErr := signalGroup(s.cmd, true); killErr != nil && !s.hasExited() {
			err = fmt.Errorf("kill server process: %w", killErr)
		}
		select {
		case <-s.exited:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	})
	return err
}
