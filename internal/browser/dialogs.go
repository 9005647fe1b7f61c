// internal/browser/dialogs.go
package browser

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// dismissMarkers identify the editor's draft-restore prompts. Accepting one
// would resurrect an old draft on top of the post being written, so these
// are dismissed; every other dialog is accepted.
var dismissMarkers = []string{"이어서", "저장된 글"}

// ShouldDismissDialog reports whether a dialog message is a draft-restore
// prompt.
func ShouldDismissDialog(message string) bool {
	for _, marker := range dismissMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// InstallDialogPolicy answers native dialogs automatically. Must be called
// before the first navigation so no prompt can block the page load.
func (h *Handle) InstallDialogPolicy() {
	chromedp.ListenTarget(h.browserCtx, func(ev interface{}) {
		opening, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}

		accept := !ShouldDismissDialog(opening.Message)
		h.logger.Info("Answering dialog.",
			zap.String("message", opening.Message),
			zap.Bool("accept", accept))

		// The handler runs on the listener goroutine; dispatching the
		// answer must not block it.
		go func() {
			action := page.HandleJavaScriptDialog(accept)
			if err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
				return action.Do(ctx)
			})); err != nil {
				h.logger.Warn("Failed to answer dialog.", zap.Error(err))
			}
		}()
	})
}
