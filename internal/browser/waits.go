// internal/browser/waits.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/mediflow-e2e/internal/wait"
)

// Waiter holds the default bounds for UI waits. Every method is a
// specialization of wait.Until.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given default timeout and poll interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// Timeout returns the default wait bound.
func (w *Waiter) Timeout() time.Duration { return w.timeout }

// WithTimeout returns a copy of w with a different bound for one call site.
func (w *Waiter) WithTimeout(d time.Duration) *Waiter {
	return &Waiter{timeout: d, interval: w.interval}
}

// Until is the raw primitive with this waiter's bounds.
func (w *Waiter) Until(ctx context.Context, description string, cond wait.Condition) error {
	return wait.Until(ctx, description, w.timeout, w.interval, cond)
}

// URLContains waits until the tab's URL contains fragment and returns it.
func (w *Waiter) URLContains(ctx context.Context, p Page, fragment string) (string, error) {
	return wait.UntilValue(ctx, fmt.Sprintf("URL contains %q", fragment), w.timeout, w.interval,
		func(ctx context.Context) (string, bool, error) {
			loc, err := p.Location(ctx)
			if err != nil {
				return "", false, err
			}
			return loc, strings.Contains(loc, fragment), nil
		})
}

// Present waits until xpath matches a node.
func (w *Waiter) Present(ctx context.Context, p Page, xpath string) error {
	return w.Until(ctx, fmt.Sprintf("element %s present", xpath), func(ctx context.Context) (bool, error) {
		return p.Exists(ctx, xpath)
	})
}

// Clickable waits until xpath matches a visible, enabled node.
func (w *Waiter) Clickable(ctx context.Context, p Page, xpath string) error {
	return w.Until(ctx, fmt.Sprintf("element %s clickable", xpath), func(ctx context.Context) (bool, error) {
		return p.Clickable(ctx, xpath)
	})
}

// AlertPresent waits until a JavaScript dialog is open on the tab.
func (w *Waiter) AlertPresent(ctx context.Context, p Page) error {
	return w.Until(ctx, "alert present", func(context.Context) (bool, error) {
		return p.DialogOpen(), nil
	})
}

// Stale waits until the node previously tagged with marker is gone.
func (w *Waiter) Stale(ctx context.Context, p Page, marker string) error {
	return w.Until(ctx, fmt.Sprintf("element marked %s stale", marker), func(ctx context.Context) (bool, error) {
		present, err := p.MarkerPresent(ctx, marker)
		if err != nil {
			return false, err
		}
		return !present, nil
	})
}

// Track waits for xpath to be present, tags it, and returns the marker to
// pass to Stale later.
func (w *Waiter) Track(ctx context.Context, p Page, xpath string) (string, error) {
	if err := w.Present(ctx, p, xpath); err != nil {
		return "", err
	}
	marker := uuid.NewString()
	if err := p.Mark(ctx, xpath, marker); err != nil {
		return "", err
	}
	return marker, nil
}

// Text waits until the text of xpath satisfies match and returns it. A
// missing node counts as "not yet".
func (w *Waiter) Text(ctx context.Context, p Page, xpath, description string, match func(string) bool) (string, error) {
	return wait.UntilValue(ctx, description, w.timeout, w.interval,
		func(ctx context.Context) (string, bool, error) {
			text, err := p.Text(ctx, xpath)
			if err != nil {
				return "", false, err
			}
			return text, match(text), nil
		})
}

// TextContains waits until the text of xpath contains every one of want.
func (w *Waiter) TextContains(ctx context.Context, p Page, xpath string, want ...string) (string, error) {
	desc := fmt.Sprintf("text of %s contains %q", xpath, want)
	return w.Text(ctx, p, xpath, desc, func(text string) bool {
		for _, s := range want {
			if !strings.Contains(text, s) {
				return false
			}
		}
		return true
	})
}

// ContentStabilized waits for asynchronously generated content: the text of
// xpath must no longer contain placeholder and must be longer than minLen.
// It runs with its own timeout, independent of the waiter default.
func (w *Waiter) ContentStabilized(ctx context.Context, p Page, xpath, placeholder string, minLen int, timeout time.Duration) (string, error) {
	desc := fmt.Sprintf("content of %s without %q and longer than %d characters", xpath, placeholder, minLen)
	return w.WithTimeout(timeout).Text(ctx, p, xpath, desc, func(text string) bool {
		return Stabilized(text, placeholder, minLen)
	})
}

// Stabilized is the content predicate used by ContentStabilized. The
// placeholder match is case-sensitive: the loading text is lowercase, while a
// finished summary may well start a sentence with "Aguarde".
func Stabilized(text, placeholder string, minLen int) bool {
	trimmed := strings.TrimSpace(text)
	if placeholder != "" && strings.Contains(trimmed, placeholder) {
		return false
	}
	return len([]rune(trimmed)) > minLen
}

// IsNotFound reports whether err means a locator matched nothing.
func IsNotFound(err error) bool { return errors.Is(err, ErrElementNotFound) }
