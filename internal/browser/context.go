// internal/browser/context.go
package browser

import "context"

// CombineContext derives a context from parentCtx that is additionally
// canceled when secondaryCtx finishes. Values and deadline come from
// parentCtx, which for CDP work must be the context carrying the target.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
