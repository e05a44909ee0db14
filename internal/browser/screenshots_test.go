// internal/browser/screenshots_test.go
package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCapturer struct {
	data []byte
	err  error
}

func (f fakeCapturer) CaptureScreenshot(context.Context) ([]byte, error) { return f.data, f.err }

func TestFilename(t *testing.T) {
	assert.Equal(t, "01_dashboard_inicial.png", Filename(1, "dashboard_inicial"))
	assert.Equal(t, "12_logout_final.png", Filename(12, "logout_final"))
	assert.Equal(t, "100_extra.png", Filename(100, "extra"))
}

func TestRecorder_Sequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	r := NewRecorder(dir, zaptest.NewLogger(t))
	png := fakeCapturer{data: []byte("\x89PNG")}
	ctx := context.Background()

	names := []string{"dashboard_inicial", "agenda", "gerenciar_usuarios"}
	for _, n := range names {
		require.NotEmpty(t, r.Capture(ctx, png, n))
	}

	want := []string{
		filepath.Join(dir, "01_dashboard_inicial.png"),
		filepath.Join(dir, "02_agenda.png"),
		filepath.Join(dir, "03_gerenciar_usuarios.png"),
	}
	if diff := cmp.Diff(want, r.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
	for _, f := range want {
		content, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), content)
	}
	assert.Equal(t, 3, r.Count())
	assert.Empty(t, r.Failures())
}

func TestRecorder_FailuresAreRecordedAndNonFatal(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, zaptest.NewLogger(t))
	ctx := context.Background()

	r.writeFile = func(name string, data []byte, perm os.FileMode) error {
		if filepath.Base(name) == "02_agenda.png" {
			return errors.New("disk full")
		}
		return os.WriteFile(name, data, perm)
	}

	ok := fakeCapturer{data: []byte("img")}
	assert.NotEmpty(t, r.Capture(ctx, ok, "dashboard_inicial"))
	assert.Empty(t, r.Capture(ctx, ok, "agenda"))
	assert.Empty(t, r.Capture(ctx, fakeCapturer{err: errors.New("target closed")}, "monitoramento"))
	assert.Empty(t, r.Capture(ctx, nil, "no_tab"))
	assert.NotEmpty(t, r.Capture(ctx, ok, "logs_auditoria"))

	// A failed checkpoint still consumes its number.
	assert.Equal(t, []string{
		filepath.Join(dir, "01_dashboard_inicial.png"),
		filepath.Join(dir, "05_logs_auditoria.png"),
	}, r.Files())

	failures := r.Failures()
	require.Len(t, failures, 3)
	assert.Equal(t, 2, failures[0].Sequence)
	assert.Equal(t, "agenda", failures[0].Name)
	assert.Contains(t, failures[0].Error, "disk full")
	assert.Equal(t, "monitoramento", failures[1].Name)
	assert.Equal(t, "no_tab", failures[2].Name)
}

func TestRecorder_SameCallsSameNames(t *testing.T) {
	run := func() []string {
		r := NewRecorder(t.TempDir(), zaptest.NewLogger(t))
		var bases []string
		for _, n := range []string{"a", "b", "c"} {
			bases = append(bases, filepath.Base(r.Capture(context.Background(), fakeCapturer{data: []byte("x")}, n)))
		}
		return bases
	}
	assert.Equal(t, run(), run())
}
