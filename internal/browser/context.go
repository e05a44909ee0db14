// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context that carries the values of tabCtx (the
// chromedp target) and is canceled when either tabCtx or opCtx is done.
// The operation's deadline is honored through its cancellation.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
