// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

// ErrClosed is returned by tab operations after Close.
var ErrClosed = errors.New("browser session is closed")

// StartError means the browser engine could not be launched.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return fmt.Sprintf("browser failed to start: %v", e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// Controller is the browser surface the actors and the scenario depend on.
// Switching the active tab is always explicit and keyed by TabID.
type Controller interface {
	NewTab(ctx context.Context) (TabID, error)
	SwitchTo(ctx context.Context, id TabID) (Page, error)
	CloseTab(ctx context.Context, id TabID) error
	Active() TabID
	Primary() TabID
	Waits() *Waiter
	// Screenshot records a numbered checkpoint of the active tab. It never fails
	// the caller; the written path is returned, or "" on failure.
	Screenshot(ctx context.Context, name string) string
}

type tab struct {
	id     TabID
	ctx    context.Context
	cancel context.CancelFunc
	page   *cdpPage
}

// Manager owns one browser process and its tabs for the lifetime of a run.
type Manager struct {
	cfg      config.BrowserConfig
	logger   *zap.Logger
	waiter   *Waiter
	recorder *Recorder
	// closeTarget closes the target behind a tab context.
	closeTarget func(ctx context.Context) error

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabs          map[TabID]*tab
	primary       TabID
	active        TabID
	closed        bool
}

var _ Controller = (*Manager)(nil)

// NewManager creates a Manager. Nothing is launched until Open.
func NewManager(cfg config.Interface, logger *zap.Logger) *Manager {
	bc := cfg.Browser()
	return &Manager{
		cfg:      bc,
		logger:   logger.Named("browser"),
		waiter:   NewWaiter(bc.DefaultTimeout, bc.PollInterval),
		recorder: NewRecorder(cfg.Screenshots().Dir, logger),
		tabs:     make(map[TabID]*tab),

		closeTarget: chromedp.Cancel,
	}
}

// allocatorOptions builds the exec allocator flags from configuration.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// Open launches the browser and registers its first tab as the primary tab.
// The browser outlives ctx; it is released by Close.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserCtx != nil {
		return fmt.Errorf("browser already open")
	}

	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, allocatorOptions(m.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser, and canceling its context would
	// kill the process, so the start timeout is enforced from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	startTimeout := m.cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-started:
	case <-timer.C:
		err = fmt.Errorf("no response after %s", startTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return &StartError{Err: err}
	}

	id := TabID(chromedp.FromContext(browserCtx).Target.TargetID)
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.tabs[id] = &tab{id: id, ctx: browserCtx, page: newCDPPage(browserCtx, id, m.cfg.DefaultTimeout, m.logger)}
	m.primary = id
	m.active = id

	m.logger.Info("Browser started.",
		zap.String("tab", string(id)),
		zap.Bool("headless", m.cfg.Headless),
		zap.Int("width", m.cfg.WindowWidth),
		zap.Int("height", m.cfg.WindowHeight))
	return nil
}

// NewTab opens a new tab in the running browser. The active tab is not changed.
func (m *Manager) NewTab(ctx context.Context) (TabID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return "", err
	}

	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	created := make(chan error, 1)
	go func() { created <- chromedp.Run(tabCtx) }()
	select {
	case err := <-created:
		if err != nil {
			cancel()
			return "", fmt.Errorf("open tab: %w", err)
		}
	case <-ctx.Done():
		cancel()
		return "", fmt.Errorf("open tab: %w", ctx.Err())
	}

	id := TabID(chromedp.FromContext(tabCtx).Target.TargetID)
	m.tabs[id] = &tab{id: id, ctx: tabCtx, cancel: cancel, page: newCDPPage(tabCtx, id, m.cfg.DefaultTimeout, m.logger)}
	m.logger.Debug("Tab opened.", zap.String("tab", string(id)))
	return id, nil
}

// SwitchTo brings the tab to the front and makes it the active tab.
func (m *Manager) SwitchTo(ctx context.Context, id TabID) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return nil, err
	}
	t, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("switch to tab %s: unknown tab", id)
	}

	activate := chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return target.ActivateTarget(target.ID(id)).Do(cdp.WithExecutor(ctx, c.Browser))
	})
	if err := t.page.runActionsFunc(ctx, activate); err != nil {
		return nil, fmt.Errorf("switch to tab %s: %w", id, err)
	}
	if m.active != id {
		m.logger.Debug("Switched tab.", zap.String("from", string(m.active)), zap.String("to", string(id)))
	}
	m.active = id
	return t.page, nil
}

// CloseTab closes a secondary tab. The primary tab lives as long as the
// browser. Closing the active tab leaves no tab active until SwitchTo.
func (m *Manager) CloseTab(_ context.Context, id TabID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return err
	}
	if id == m.primary {
		return fmt.Errorf("close tab %s: the primary tab is closed with the browser", id)
	}
	t, ok := m.tabs[id]
	if !ok {
		return fmt.Errorf("close tab %s: unknown tab", id)
	}
	t.cancel()
	delete(m.tabs, id)
	if m.active == id {
		m.active = ""
	}
	m.logger.Debug("Tab closed.", zap.String("tab", string(id)))
	return nil
}

// Active returns the tab most recently switched to, or "" if it was closed.
func (m *Manager) Active() TabID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Primary returns the first tab of the browser.
func (m *Manager) Primary() TabID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primary
}

// Tabs returns the number of open tabs.
func (m *Manager) Tabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

func (m *Manager) Waits() *Waiter { return m.waiter }

// Recorder exposes the session's screenshot trail.
func (m *Manager) Recorder() *Recorder { return m.recorder }

func (m *Manager) Screenshot(ctx context.Context, name string) string {
	m.mu.Lock()
	var c Capturer
	if t, ok := m.tabs[m.active]; ok && !m.closed {
		c = t.page
	}
	m.mu.Unlock()
	return m.recorder.Capture(ctx, c, name)
}

// Close closes every tab, then the browser process. It is safe to call more
// than once and on a Manager that never opened.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	if m.closed || m.browserCtx == nil {
		m.closed = true
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	secondary := make([]*tab, 0, len(m.tabs))
	for id, t := range m.tabs {
		if id != m.primary {
			secondary = append(secondary, t)
		}
	}
	m.tabs = map[TabID]*tab{}
	m.active = ""
	m.mu.Unlock()

	var g errgroup.Group
	for _, t := range secondary {
		g.Go(func() error {
			defer t.cancel()
			if err := m.closeTarget(t.ctx); err != nil {
				return fmt.Errorf("close tab %s: %w", t.id, err)
			}
			return nil
		})
	}
	tabErr := g.Wait()

	// Cancelling the first context closes the browser gracefully; the
	// allocator cancel then waits for the process to exit.
	m.browserCancel()
	m.allocCancel()
	if tabErr != nil {
		m.logger.Warn("Browser closed, but a tab did not close cleanly.", zap.Error(tabErr))
		return tabErr
	}
	m.logger.Info("Browser closed.", zap.Int("secondary_tabs", len(secondary)))
	return nil
}

func (m *Manager) usable() error {
	if m.closed {
		return ErrClosed
	}
	if m.browserCtx == nil {
		return fmt.Errorf("browser not open")
	}
	return nil
}
