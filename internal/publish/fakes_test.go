// internal/publish/fakes_test.go
package publish

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/browser"
)

// fakePage scripts a compose page. Navigation rewrites the current URL
// through urlByNav so tests can simulate redirects, and Evaluate defers
// to evalFn so each test controls what the page "contains".
type fakePage struct {
	mu       sync.Mutex
	url      string
	urlByNav map[string]string
	remote   bool
	liveView string

	// onNavigate, when set, decides the landing URL instead of urlByNav.
	onNavigate func(url string) string

	// findBySel maps a candidate selector to itself; FindFirst returns
	// the first candidate present in the map.
	findBySel map[string]bool
	evalFn    func(expr string, out interface{}) error
	onClick   func(selector string)

	typed      []string
	clicked    []string
	setCookies []schemas.Cookie
	dumped     []schemas.Cookie

	closeCalls  atomic.Int32
	dialogCalls atomic.Int32
}

var _ browser.Page = (*fakePage)(nil)

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.onNavigate != nil:
		f.url = f.onNavigate(url)
	case f.urlByNav[url] != "":
		f.url = f.urlByNav[url]
	default:
		f.url = url
	}
	return nil
}

func (f *fakePage) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakePage) setURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

func (f *fakePage) Evaluate(ctx context.Context, expr string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.evalFn != nil {
		return f.evalFn(expr, out)
	}
	setBool(out, false)
	return nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.clicked = append(f.clicked, selector)
	onClick := f.onClick
	f.mu.Unlock()
	if onClick != nil {
		onClick(selector)
	}
	return nil
}

func (f *fakePage) TypeChunked(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakePage) FindFirst(ctx context.Context, candidates []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range candidates {
		if f.findBySel[c] {
			return c, nil
		}
	}
	return "", nil
}

func (f *fakePage) WaitVisibleAny(ctx context.Context, candidates []string, timeout time.Duration) (string, error) {
	return f.FindFirst(ctx, candidates)
}

func (f *fakePage) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCookies = append(f.setCookies, cookies...)
	return nil
}

func (f *fakePage) DumpCookies(ctx context.Context) ([]schemas.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dumped, nil
}

func (f *fakePage) InstallDialogPolicy() { f.dialogCalls.Add(1) }
func (f *fakePage) Remote() bool        { return f.remote }
func (f *fakePage) LiveViewURL() string { return f.liveView }
func (f *fakePage) Close() error {
	f.closeCalls.Add(1)
	return nil
}

// setBool writes v through an Evaluate out pointer when one was given.
func setBool(out interface{}, v bool) {
	if p, ok := out.(*bool); ok && p != nil {
		*p = v
	}
}

// fakeProvisioner hands out pre-built pages in order.
type fakeProvisioner struct {
	mu    sync.Mutex
	pages []*fakePage
}

func (f *fakeProvisioner) Acquire(ctx context.Context) (browser.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return nil, fmt.Errorf("no pages scripted")
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

// fakeCredStore is an in-memory auth.CredentialStore.
type fakeCredStore struct {
	mu      sync.Mutex
	cookies map[string][]schemas.Cookie
	saved   map[string]time.Time
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{
		cookies: make(map[string][]schemas.Cookie),
		saved:   make(map[string]time.Time),
	}
}

func (s *fakeCredStore) LoadCookies(ctx context.Context, blogName string) ([]schemas.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookies[blogName], nil
}

func (s *fakeCredStore) SaveCookies(ctx context.Context, blogName string, cookies []schemas.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[blogName] = cookies
	s.saved[blogName] = time.Now()
	return nil
}

func (s *fakeCredStore) ClearCookies(ctx context.Context, blogName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, blogName)
	delete(s.saved, blogName)
	return nil
}

func (s *fakeCredStore) HasCookies(ctx context.Context, blogName string) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cookies[blogName]
	return ok && len(c) > 0, s.saved[blogName], nil
}
