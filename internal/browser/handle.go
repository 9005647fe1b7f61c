// internal/browser/handle.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Handle wraps one live browser, local or remote. Local handles own the
// Chrome process; remote handles own a CDP connection to a hosted session
// that must be released, not terminated, on close.
type Handle struct {
	browserCtx context.Context
	cancels    []context.CancelFunc

	remote      bool
	liveViewURL string
	// releaseFn returns the remote session to the control plane after the
	// CDP connection is torn down. Nil for local handles.
	releaseFn func(ctx context.Context) error

	navTimeout time.Duration
	opTimeout  time.Duration

	closeOnce sync.Once
	closeErr  error

	logger *zap.Logger
}

// Remote reports whether this handle drives a hosted browser.
func (h *Handle) Remote() bool { return h.remote }

// LiveViewURL is the URL a human can open to watch and drive a remote
// session. Empty for local handles.
func (h *Handle) LiveViewURL() string { return h.liveViewURL }

// Context exposes the chromedp target context for listeners.
func (h *Handle) Context() context.Context { return h.browserCtx }

// Close tears the browser down exactly once. For local handles this kills
// the Chrome process; for remote handles it detaches CDP and then releases
// the session so the control plane can reclaim it.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		for i := len(h.cancels) - 1; i >= 0; i-- {
			h.cancels[i]()
		}
		if h.releaseFn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := h.releaseFn(ctx); err != nil {
				h.logger.Warn("Failed to release remote session.", zap.Error(err))
				h.closeErr = err
			}
		}
		h.logger.Debug("Browser handle closed.", zap.Bool("remote", h.remote))
	})
	return h.closeErr
}

// run executes chromedp actions against this browser, bounded by the
// caller's context and the given timeout.
func (h *Handle) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(h.browserCtx, ctx)
	defer cancel()

	if timeout > 0 {
		var tcancel context.CancelFunc
		combined, tcancel = context.WithTimeout(combined, timeout)
		defer tcancel()
	}

	return chromedp.Run(combined, actions...)
}

// Navigate loads the URL and waits for the document body.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.logger.Debug("Navigating.", zap.String("url", url))
	err := h.run(ctx, h.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the page's location.
func (h *Handle) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := h.run(ctx, h.opTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return url, nil
}

// Evaluate runs the expression and unmarshals its value into out, which
// may be nil when the result is irrelevant.
func (h *Handle) Evaluate(ctx context.Context, expr string, out interface{}) error {
	action := chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	})
	if err := h.run(ctx, h.opTimeout, action); err != nil {
		return fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return nil
}

// Click clicks the first visible match for the selector.
func (h *Handle) Click(ctx context.Context, selector string) error {
	err := h.run(ctx, h.opTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

// typeChunkSize keeps each synthetic keystroke burst small enough that the
// editor's input handlers keep up.
const typeChunkSize = 200

// TypeChunked types text into the focused element in small bursts with
// short pauses, the way the editor expects a human to type.
func (h *Handle) TypeChunked(ctx context.Context, text string) error {
	runes := []rune(text)
	for start := 0; start < len(runes); start += typeChunkSize {
		end := start + typeChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])

		if err := h.run(ctx, h.opTimeout, chromedp.KeyEvent(chunk)); err != nil {
			return fmt.Errorf("failed to type chunk at offset %d: %w", start, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// FindFirst returns the first selector from candidates that matches a
// visible element, or "" when none do.
func (h *Handle) FindFirst(ctx context.Context, candidates []string) (string, error) {
	encoded, err := json.MarshalToString(candidates)
	if err != nil {
		return "", fmt.Errorf("failed to encode selector candidates: %w", err)
	}

	expr := fmt.Sprintf(`(() => {
		const candidates = %s;
		for (const sel of candidates) {
			let el = null;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (el && (el.offsetParent !== null || el.offsetWidth > 0 || el.offsetHeight > 0)) {
				return sel;
			}
		}
		return "";
	})()`, encoded)

	var matched string
	if err := h.Evaluate(ctx, expr, &matched); err != nil {
		return "", err
	}
	return matched, nil
}

// WaitVisibleAny polls until one of the candidate selectors matches a
// visible element, returning the winner.
func (h *Handle) WaitVisibleAny(ctx context.Context, candidates []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		matched, err := h.FindFirst(ctx, candidates)
		if err != nil {
			return "", err
		}
		if matched != "" {
			return matched, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no selector became visible within %s: %v", timeout, candidates)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
