// internal/browser/interface.go
package browser

import (
	"context"
	"time"

	"github.com/tistorylab/autopub/api/schemas"
)

// Page is the driving surface of a live browser. *Handle implements it;
// the managers depend on this interface so tests can substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expr string, out interface{}) error
	Click(ctx context.Context, selector string) error
	TypeChunked(ctx context.Context, text string) error
	FindFirst(ctx context.Context, candidates []string) (string, error)
	WaitVisibleAny(ctx context.Context, candidates []string, timeout time.Duration) (string, error)
	SetCookies(ctx context.Context, cookies []schemas.Cookie) error
	DumpCookies(ctx context.Context) ([]schemas.Cookie, error)
	InstallDialogPolicy()
	Remote() bool
	LiveViewURL() string
	Close() error
}
