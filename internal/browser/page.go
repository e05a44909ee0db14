// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrElementNotFound is returned by page queries when the locator matches nothing.
var ErrElementNotFound = errors.New("element not found")

// MarkerAttribute tags nodes so their removal from the DOM can be observed.
const MarkerAttribute = "data-e2e-marker"

// TabID identifies one browser tab. It is the CDP target ID.
type TabID string

// Page is the set of primitives available on one tab. Locators are XPath
// expressions. Query methods never block waiting for a node; waiting is the
// Waiter's job.
type Page interface {
	ID() TabID

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Location(ctx context.Context) (string, error)

	Exists(ctx context.Context, xpath string) (bool, error)
	Clickable(ctx context.Context, xpath string) (bool, error)
	Text(ctx context.Context, xpath string) (string, error)
	Attribute(ctx context.Context, xpath, name string) (string, error)

	Click(ctx context.Context, xpath string) error
	// ClickDeferred schedules the click inside the page and returns at once,
	// so a confirm() raised by the click cannot block the caller.
	ClickDeferred(ctx context.Context, xpath string) error
	Type(ctx context.Context, xpath, text string) error
	Clear(ctx context.Context, xpath string) error
	SelectByText(ctx context.Context, xpath, text string) error
	Submit(ctx context.Context, xpath string) error

	// Mark tags the node with marker; MarkerPresent turns false once the
	// node leaves the DOM.
	Mark(ctx context.Context, xpath, marker string) error
	MarkerPresent(ctx context.Context, marker string) (bool, error)

	DialogOpen() bool
	AcceptDialog(ctx context.Context) error

	CaptureScreenshot(ctx context.Context) ([]byte, error)
}

// cdpPage implements Page on top of a chromedp tab context.
type cdpPage struct {
	id            TabID
	ctx           context.Context // the tab's chromedp context
	logger        *zap.Logger
	actionTimeout time.Duration
	dialog        atomic.Bool

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

var _ Page = (*cdpPage)(nil)

func newCDPPage(tabCtx context.Context, id TabID, actionTimeout time.Duration, logger *zap.Logger) *cdpPage {
	p := &cdpPage{
		id:            id,
		ctx:           tabCtx,
		logger:        logger.With(zap.String("tab", string(id))),
		actionTimeout: actionTimeout,
	}
	p.runActionsFunc = p.runActions

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			p.dialog.Store(true)
			p.logger.Debug("JavaScript dialog opened.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		case *page.EventJavascriptDialogClosed:
			p.dialog.Store(false)
		}
	})
	return p
}

// runActions executes actions on this tab, bounded by both the tab's
// lifetime and the caller's context. Calls without a deadline get the
// default action timeout.
func (p *cdpPage) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if _, ok := ctx.Deadline(); !ok && p.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.actionTimeout)
		defer cancel()
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) ID() TabID { return p.id }

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	if err := p.runActionsFunc(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *cdpPage) Reload(ctx context.Context) error {
	if err := p.runActionsFunc(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *cdpPage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.runActionsFunc(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// jsNode is prepended to every query script.
const jsNode = `function __node(xp) {
	return document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
}
`

func (p *cdpPage) eval(ctx context.Context, body string, out interface{}, args ...interface{}) error {
	encoded := make([]interface{}, len(args))
	for i, a := range args {
		encoded[i] = jsonEncode(a)
	}
	script := "(function() {\n" + jsNode + fmt.Sprintf(body, encoded...) + "\n})()"
	return p.runActionsFunc(ctx, chromedp.Evaluate(script, out))
}

func (p *cdpPage) Exists(ctx context.Context, xpath string) (bool, error) {
	var found bool
	if err := p.eval(ctx, `return __node(%s) !== null;`, &found, xpath); err != nil {
		return false, fmt.Errorf("query %s: %w", xpath, err)
	}
	return found, nil
}

func (p *cdpPage) Clickable(ctx context.Context, xpath string) (bool, error) {
	var ok bool
	err := p.eval(ctx, `const n = __node(%s);
	if (!n) return false;
	const style = window.getComputedStyle(n);
	const visible = n.getClientRects().length > 0 && style.visibility !== 'hidden' && style.display !== 'none';
	return visible && !n.disabled;`, &ok, xpath)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", xpath, err)
	}
	return ok, nil
}

type textResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (p *cdpPage) Text(ctx context.Context, xpath string) (string, error) {
	var res textResult
	err := p.eval(ctx, `const n = __node(%s);
	if (!n) return {found: false, value: ""};
	const t = (n.innerText !== undefined && n.innerText !== null) ? n.innerText : n.textContent;
	return {found: true, value: t || ""};`, &res, xpath)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", xpath, err)
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", xpath, ErrElementNotFound)
	}
	return res.Value, nil
}

func (p *cdpPage) Attribute(ctx context.Context, xpath, name string) (string, error) {
	var res textResult
	err := p.eval(ctx, `const n = __node(%s);
	if (!n) return {found: false, value: ""};
	return {found: true, value: n.getAttribute(%s) || ""};`, &res, xpath, name)
	if err != nil {
		return "", fmt.Errorf("read attribute %s of %s: %w", name, xpath, err)
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", xpath, ErrElementNotFound)
	}
	return res.Value, nil
}

func (p *cdpPage) Click(ctx context.Context, xpath string) error {
	if err := p.runActionsFunc(ctx, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	return nil
}

func (p *cdpPage) ClickDeferred(ctx context.Context, xpath string) error {
	var scheduled bool
	err := p.eval(ctx, `const n = __node(%s);
	if (!n) return false;
	setTimeout(function() { n.click(); }, 0);
	return true;`, &scheduled, xpath)
	if err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	if !scheduled {
		return fmt.Errorf("click %s: %w", xpath, ErrElementNotFound)
	}
	return nil
}

func (p *cdpPage) Type(ctx context.Context, xpath, text string) error {
	if err := p.runActionsFunc(ctx, chromedp.SendKeys(xpath, text, chromedp.BySearch)); err != nil {
		return fmt.Errorf("type into %s: %w", xpath, err)
	}
	return nil
}

func (p *cdpPage) Clear(ctx context.Context, xpath string) error {
	if err := p.runActionsFunc(ctx, chromedp.Clear(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("clear %s: %w", xpath, err)
	}
	return nil
}

func (p *cdpPage) SelectByText(ctx context.Context, xpath, text string) error {
	var res textResult
	err := p.eval(ctx, `const sel = __node(%s);
	if (!sel) return {found: false, value: ""};
	const want = %s;
	for (const opt of sel.options) {
		if (opt.text.trim() === want) {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('input', {bubbles: true}));
			sel.dispatchEvent(new Event('change', {bubbles: true}));
			return {found: true, value: opt.value};
		}
	}
	return {found: true, value: ""};`, &res, xpath, text)
	if err != nil {
		return fmt.Errorf("select %q in %s: %w", text, xpath, err)
	}
	if !res.Found {
		return fmt.Errorf("select %q in %s: %w", text, xpath, ErrElementNotFound)
	}
	if res.Value == "" {
		return fmt.Errorf("select %s has no option with text %q", xpath, text)
	}
	return nil
}

func (p *cdpPage) Submit(ctx context.Context, xpath string) error {
	if err := p.runActionsFunc(ctx, chromedp.Submit(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("submit %s: %w", xpath, err)
	}
	return nil
}

func (p *cdpPage) Mark(ctx context.Context, xpath, marker string) error {
	var ok bool
	err := p.eval(ctx, `const n = __node(%s);
	if (!n) return false;
	n.setAttribute(%s, %s);
	return true;`, &ok, xpath, MarkerAttribute, marker)
	if err != nil {
		return fmt.Errorf("mark %s: %w", xpath, err)
	}
	if !ok {
		return fmt.Errorf("mark %s: %w", xpath, ErrElementNotFound)
	}
	return nil
}

func (p *cdpPage) MarkerPresent(ctx context.Context, marker string) (bool, error) {
	var present bool
	err := p.eval(ctx, `const want = %s;
	for (const n of document.querySelectorAll('[' + %s + ']')) {
		if (n.getAttribute(%s) === want) return true;
	}
	return false;`, &present, marker, MarkerAttribute, MarkerAttribute)
	if err != nil {
		return false, fmt.Errorf("query marker %s: %w", marker, err)
	}
	return present, nil
}

func (p *cdpPage) DialogOpen() bool { return p.dialog.Load() }

func (p *cdpPage) AcceptDialog(ctx context.Context) error {
	if err := p.runActionsFunc(ctx, page.HandleJavaScriptDialog(true)); err != nil {
		return fmt.Errorf("accept dialog: %w", err)
	}
	p.dialog.Store(false)
	return nil
}

func (p *cdpPage) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.runActionsFunc(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// jsonEncode renders v as a JavaScript literal for safe script injection.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
