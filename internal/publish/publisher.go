// internal/publish/publisher.go
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/auth"
	"github.com/tistorylab/autopub/internal/browser"
	"github.com/tistorylab/autopub/internal/config"
)

// ErrReloginRequired means stored cookies are missing or stale and only an
// interactive login can fix it. On remote browsers there is no human at
// the keyboard, so publishing stops here.
var ErrReloginRequired = errors.New("stored login cookies are missing or stale; interactive login required")

var (
	titleSelectors = []string{
		`input[name="title"]`,
		"#post-title-inp",
		".title-input",
		`input[placeholder*="제목"]`,
		".tit_post input",
		"#title",
	}
	titleFallbackSelectors = []string{`input[type="text"]`}

	tagSelectors = []string{
		`input[name="tag"]`,
		"#tagText",
		".tag-input",
	}

	publishButtonSelectors = []string{
		"button.btn_publish",
		"#publish-btn",
		`button[data-action="publish"]`,
		".btn_save",
		".publish-btn",
		"#publish-layer-btn",
		"button.btn-primary",
	}

	// publishButtonTexts matches by visible text when no known selector
	// is present.
	publishButtonTexts = []string{"발행", "공개 발행", "완료"}

	// confirmButtonText is matched EXACTLY in the confirmation layer. A
	// substring match would also hit the draft-save button, which quietly
	// saves instead of publishing.
	confirmButtonText = "공개 발행"
)

const (
	// composeWaitBudget is how long a local, visible browser waits for a
	// human to finish logging in and reach the editor.
	composeWaitBudget = 180 * time.Second
	// postNavigationWait bounds the wait for the editor to navigate to
	// the published post.
	postNavigationWait = 15 * time.Second
)

// Publisher drives the compose page end to end: authentication, title,
// body injection, tags and the publish confirmation.
type Publisher struct {
	provisioner browser.Provisioner
	auth        *auth.Authenticator
	cfg         *config.Config
	logger      *zap.Logger

	// Overridable in tests.
	navSettle     time.Duration
	confirmSettle time.Duration
	postNavWait   time.Duration
	manualWait    time.Duration
	pollEvery     time.Duration
}

// NewPublisher builds a publisher.
func NewPublisher(provisioner browser.Provisioner, authenticator *auth.Authenticator, cfg *config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		provisioner:   provisioner,
		auth:          authenticator,
		cfg:           cfg,
		logger:        logger.Named("publisher"),
		navSettle:     2 * time.Second,
		confirmSettle: 1500 * time.Millisecond,
		postNavWait:   postNavigationWait,
		manualWait:    composeWaitBudget,
		pollEvery:     2 * time.Second,
	}
}

// Publish posts the content to the configured blog and returns the post
// URL. The browser is torn down exactly once in every path.
func (p *Publisher) Publish(ctx context.Context, content *schemas.GeneratedContent, tags []string) (*schemas.PublishResult, error) {
	page, err := p.provisioner.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			p.logger.Warn("Browser teardown reported an error.", zap.Error(err))
		}
	}()

	// Dialog policy goes in before any navigation; the editor's
	// draft-restore prompt appears during page load.
	page.InstallDialogPolicy()

	if err := p.ensureLoggedIn(ctx, page); err != nil {
		return nil, err
	}

	if err := page.Navigate(ctx, p.cfg.Tistory.NewPostURL()); err != nil {
		return nil, err
	}
	p.settle(ctx, p.navSettle)

	if err := p.verifyComposeSurface(ctx, page); err != nil {
		return nil, err
	}

	if err := p.fillTitle(ctx, page, content.Title); err != nil {
		return nil, err
	}

	method, err := injectContent(ctx, page, content.HTML, p.logger)
	if err != nil {
		return nil, err
	}

	p.fillTags(ctx, page, tags)

	if err := p.clickPublish(ctx, page); err != nil {
		return nil, err
	}

	postURL := p.waitForPostURL(ctx, page)

	// Refresh stored cookies with whatever the editor session rotated.
	if err := p.auth.SaveSessionCookies(ctx, page); err != nil {
		p.logger.Warn("Failed to refresh cookies after publish.", zap.Error(err))
	}

	p.logger.Info("Published post.",
		zap.String("title", content.Title),
		zap.String("url", postURL),
		zap.String("injection_method", method))

	return &schemas.PublishResult{
		Success:    true,
		TistoryURL: postURL,
		Title:      content.Title,
	}, nil
}

// ensureLoggedIn establishes an authenticated session. Remote browsers
// must already have valid stored cookies; stale ones are deleted so the
// next attempt starts clean. Local browsers fall back to password login
// and finally to a human completing the login in the visible window.
func (p *Publisher) ensureLoggedIn(ctx context.Context, page browser.Page) error {
	loggedIn, err := p.auth.IsLoggedIn(ctx, page)
	if err != nil {
		return err
	}
	if loggedIn {
		return nil
	}

	if page.Remote() {
		if err := p.auth.Clear(ctx); err != nil {
			p.logger.Warn("Failed to clear stale cookies.", zap.Error(err))
		}
		return ErrReloginRequired
	}

	cred := schemas.Credential{
		Username: p.cfg.Tistory.KakaoEmail,
		Password: p.cfg.Tistory.KakaoPassword,
	}
	if cred.Username != "" && cred.Password != "" {
		if err := p.auth.PasswordLogin(ctx, page, cred); err == nil {
			return nil
		} else {
			p.logger.Warn("Password login failed; waiting for manual login.", zap.Error(err))
		}
	}

	return p.waitForManualLogin(ctx, page)
}

// verifyComposeSurface confirms the navigation actually landed on the
// editor. A session can expire between the login probe and the compose
// navigation; remote browsers fail over to re-authentication, local ones
// hand the window to a human.
func (p *Publisher) verifyComposeSurface(ctx context.Context, page browser.Page) error {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if auth.ClassifyURL(url, p.cfg.Tistory.BlogName) == auth.StateLoggedIn {
		return nil
	}
	p.logger.Warn("Compose page redirected away.", zap.String("url", url))

	if page.Remote() {
		if err := p.auth.Clear(ctx); err != nil {
			p.logger.Warn("Failed to clear stale cookies.", zap.Error(err))
		}
		return ErrReloginRequired
	}
	return p.waitForManualLogin(ctx, page)
}

// waitForManualLogin leaves the login page open and polls until a human
// reaches the editor or the budget runs out.
func (p *Publisher) waitForManualLogin(ctx context.Context, page browser.Page) error {
	if err := page.Navigate(ctx, p.cfg.Tistory.NewPostURL()); err != nil {
		return err
	}
	p.logger.Info("Waiting for manual login in the browser window.",
		zap.Duration("budget", p.manualWait))

	deadline := time.Now().Add(p.manualWait)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollEvery):
		}

		url, err := page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if auth.ClassifyURL(url, p.cfg.Tistory.BlogName) == auth.StateLoggedIn {
			if err := p.auth.SaveSessionCookies(ctx, page); err != nil {
				p.logger.Warn("Failed to save cookies after manual login.", zap.Error(err))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("manual login was not completed within %s", p.manualWait)
		}
	}
}

func (p *Publisher) fillTitle(ctx context.Context, page browser.Page, title string) error {
	sel, err := page.FindFirst(ctx, titleSelectors)
	if err != nil {
		return err
	}
	if sel == "" {
		if sel, err = page.FindFirst(ctx, titleFallbackSelectors); err != nil {
			return err
		}
	}
	if sel == "" {
		return fmt.Errorf("no title input found on the compose page")
	}

	if err := page.Click(ctx, sel); err != nil {
		return err
	}
	clearExpr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
		setter.call(el, '');
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})()`, sel)
	if err := page.Evaluate(ctx, clearExpr, nil); err != nil {
		return err
	}
	return page.TypeChunked(ctx, title)
}

// fillTags is best-effort: a post without tags is still a post.
func (p *Publisher) fillTags(ctx context.Context, page browser.Page, tags []string) {
	if len(tags) == 0 {
		return
	}

	sel, err := page.FindFirst(ctx, tagSelectors)
	if err != nil || sel == "" {
		p.logger.Debug("No tag input found; skipping tags.")
		return
	}
	if err := page.Click(ctx, sel); err != nil {
		p.logger.Debug("Tag input not clickable; skipping tags.", zap.Error(err))
		return
	}
	if err := page.TypeChunked(ctx, strings.Join(tags, ",")+"\n"); err != nil {
		p.logger.Debug("Typing tags failed; continuing without them.", zap.Error(err))
	}
}

// clickPublish clicks the editor's publish control and then the exact
// make-public button in the confirmation layer.
func (p *Publisher) clickPublish(ctx context.Context, page browser.Page) error {
	sel, err := page.FindFirst(ctx, publishButtonSelectors)
	if err != nil {
		return err
	}
	if sel != "" {
		if err := page.Click(ctx, sel); err != nil {
			return err
		}
	} else {
		clicked, err := p.clickButtonByText(ctx, page, publishButtonTexts, false)
		if err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("no publish button found on the compose page")
		}
	}

	// Give the confirmation layer time to render.
	p.settle(ctx, p.confirmSettle)

	confirmed, err := p.clickButtonByText(ctx, page, []string{confirmButtonText}, true)
	if err != nil {
		return err
	}
	if confirmed {
		p.logger.Debug("Confirmed make-public in the publish layer.")
	} else {
		// Some themes publish directly without a confirmation layer.
		p.logger.Debug("No confirmation layer appeared.")
	}
	return nil
}

// clickButtonByText clicks the first visible button whose text matches.
// With exact set, only a trimmed exact match qualifies.
func (p *Publisher) clickButtonByText(ctx context.Context, page browser.Page, texts []string, exact bool) (bool, error) {
	quoted := make([]string, len(texts))
	for i, t := range texts {
		quoted[i] = fmt.Sprintf("%q", t)
	}

	expr := fmt.Sprintf(`(() => {
		const texts = [%s];
		const exact = %t;
		const nodes = document.querySelectorAll('button, a.btn, [role="button"]');
		for (const el of nodes) {
			if (el.offsetParent === null) continue;
			const label = (el.textContent || '').trim();
			for (const want of texts) {
				if (exact ? label === want : label.includes(want)) {
					el.click();
					return true;
				}
			}
		}
		return false;
	})()`, strings.Join(quoted, ", "), exact)

	var clicked bool
	if err := page.Evaluate(ctx, expr, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// waitForPostURL polls until the editor navigates away, falling back to
// the blog home when it never does.
func (p *Publisher) waitForPostURL(ctx context.Context, page browser.Page) string {
	deadline := time.Now().Add(p.postNavWait)
	for {
		select {
		case <-ctx.Done():
			return p.cfg.Tistory.BlogURL()
		case <-time.After(p.pollEvery):
		}

		url, err := page.CurrentURL(ctx)
		if err == nil && url != "" && !strings.Contains(url, "newpost") && !strings.Contains(url, "/manage") {
			return url
		}
		if time.Now().After(deadline) {
			return p.cfg.Tistory.BlogURL()
		}
	}
}

// settle waits briefly, respecting cancellation.
func (p *Publisher) settle(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
