// internal/browser/screenshots.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Capturer is anything that can render the current viewport.
type Capturer interface {
	CaptureScreenshot(ctx context.Context) ([]byte, error)
}

// ScreenshotFailure records a checkpoint whose image could not be written.
type ScreenshotFailure struct {
	Sequence int    `json:"sequence"`
	Name     string `json:"name"`
	File     string `json:"file"`
	Error    string `json:"error"`
}

// Recorder writes the numbered screenshot audit trail for one browser
// session. The counter advances on every call, including failed ones, so a
// given sequence of calls always yields the same sequence of filenames.
type Recorder struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	counter  int
	files    []string
	failures []ScreenshotFailure

	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewRecorder creates a Recorder writing into dir. The directory is created
// on first use.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	return &Recorder{
		dir:       dir,
		logger:    logger.Named("screenshots"),
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
	}
}

// Filename returns the file name for the n-th checkpoint.
func Filename(n int, name string) string {
	return fmt.Sprintf("%02d_%s.png", n, name)
}

// Capture takes a screenshot through c and writes it as the next checkpoint.
// It returns the written path, or "" when the capture or write failed.
// Failures are logged and recorded, never returned.
func (r *Recorder) Capture(ctx context.Context, c Capturer, name string) string {
	r.mu.Lock()
	r.counter++
	seq := r.counter
	r.mu.Unlock()

	path := filepath.Join(r.dir, Filename(seq, name))

	err := r.write(ctx, c, path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Error("Failed to save screenshot.", zap.String("file", path), zap.Error(err))
		r.failures = append(r.failures, ScreenshotFailure{Sequence: seq, Name: name, File: path, Error: err.Error()})
		return ""
	}
	r.logger.Info("Screenshot saved.", zap.String("file", path))
	r.files = append(r.files, path)
	return path
}

func (r *Recorder) write(ctx context.Context, c Capturer, path string) error {
	if c == nil {
		return fmt.Errorf("no active tab to capture")
	}
	buf, err := c.CaptureScreenshot(ctx)
	if err != nil {
		return err
	}
	if err := r.mkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create screenshot directory: %w", err)
	}
	return r.writeFile(path, buf, 0o644)
}

// Count returns the number of checkpoints requested so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// Files returns the paths written so far, in order.
func (r *Recorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Failures returns the checkpoints that could not be written.
func (r *Recorder) Failures() []ScreenshotFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScreenshotFailure(nil), r.failures...)
}
