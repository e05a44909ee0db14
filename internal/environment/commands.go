// internal/environment/commands.go
package environment

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

// CommandResult is the captured outcome of one tooling sub-process.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs a sub-process to completion and captures its output.
// A non-zero exit is reported through ExitCode with a nil error; err is for
// failures to run the command at all.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, argv []string) (CommandResult, error)
}

// ExecRunner is the CommandRunner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, env []string, argv []string) (CommandResult, error) {
	if len(argv) == 0 {
		return CommandResult{}, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// expandArgs substitutes the database placeholder in every argument.
func expandArgs(argv []string, database string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, config.DatabasePlaceholder, database)
	}
	return out
}

// lastLine returns the last non-blank line of out.
func lastLine(out []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

// logOutput replays captured sub-process output through the logger, one
// entry per line, after the process has finished.
func logOutput(logger *zap.Logger, stream string, out []byte) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			logger.Debug(line, zap.String("stream", stream))
		}
	}
}

// runTooling runs one tooling command and converts failures into a
// *ProvisionError for stage.
func runTooling(ctx context.Context, runner CommandRunner, logger *zap.Logger, stage, dir string, env, argv []string) (CommandResult, error) {
	log := logger.With(zap.String("stage", stage))
	log.Info("Running environment tooling.", zap.Strings("command", argv))

	res, err := runner.Run(ctx, dir, env, argv)
	logOutput(log, "stdout", res.Stdout)
	logOutput(log, "stderr", res.Stderr)

	if err != nil {
		return res, &ProvisionError{Stage: stage, ExitCode: -1, Stderr: string(res.Stderr), Err: err}
	}
	if res.ExitCode != 0 {
		log.Error("Environment tooling failed.", zap.Int("exit_code", res.ExitCode), zap.ByteString("stderr", res.Stderr))
		return res, &ProvisionError{
			Stage:    stage,
			ExitCode: res.ExitCode,
			Stderr:   string(res.Stderr),
			Err:      fmt.Errorf("%s exited with status %d", argv[0], res.ExitCode),
		}
	}
	return res, nil
}

// CommandCreator creates the database by running the environment's own
// tooling, which prints the generated name on its final output line.
type CommandCreator struct {
	Runner CommandRunner
	Dir    string
	Env    []string
	Argv   []string
	Logger *zap.Logger
}

func (c *CommandCreator) CreateDatabase(ctx context.Context) (string, error) {
	res, err := runTooling(ctx, c.Runner, c.Logger, StageCreateDatabase, c.Dir, c.Env, c.Argv)
	if err != nil {
		return "", err
	}
	name := lastLine(res.Stdout)
	if name == "" {
		return "", &ProvisionError{Stage: StageCreateDatabase, Err: errors.New("tooling printed no database name")}
	}
	return name, nil
}
