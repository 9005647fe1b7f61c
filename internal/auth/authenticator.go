// internal/auth/authenticator.go
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/browser"
	"github.com/tistorylab/autopub/internal/config"
)

// CredentialStore persists login cookies keyed by blog name.
type CredentialStore interface {
	LoadCookies(ctx context.Context, blogName string) ([]schemas.Cookie, error)
	SaveCookies(ctx context.Context, blogName string, cookies []schemas.Cookie) error
	ClearCookies(ctx context.Context, blogName string) error
	HasCookies(ctx context.Context, blogName string) (bool, time.Time, error)
}

// SessionState classifies where a navigation attempt landed.
type SessionState string

const (
	// StateLoggedIn means the editor or management pages are reachable.
	StateLoggedIn SessionState = "logged_in"
	// StateLoggedOut means we were bounced to a login flow.
	StateLoggedOut SessionState = "logged_out"
	// StateExpired means stored cookies were accepted for the public blog
	// but rejected for management pages.
	StateExpired SessionState = "expired"
)

// ClassifyURL decides the session state from the URL an authentication
// probe ended up at. Login-flow markers win over management markers: a
// Kakao login page URL can carry a continue-param pointing back at the
// editor.
func ClassifyURL(rawURL, blogName string) SessionState {
	u := strings.ToLower(rawURL)

	for _, marker := range []string{"login", "auth", "kakao"} {
		if strings.Contains(u, marker) {
			return StateLoggedOut
		}
	}

	for _, marker := range []string{"newpost", "manage", "write"} {
		if strings.Contains(u, marker) {
			return StateLoggedIn
		}
	}

	home := fmt.Sprintf("https://%s.tistory.com", strings.ToLower(blogName))
	if strings.TrimSuffix(u, "/") == home {
		return StateExpired
	}

	return StateLoggedOut
}

// Selector candidates for the Kakao login flow, most specific first.
var (
	kakaoButtonSelectors = []string{
		".btn_login.link_kakao_id",
		`a[href*="kakao"]`,
		".link_kakao_id",
		".btn_kakao",
	}
	emailFieldSelectors = []string{
		`input[name="loginId"]`,
		`input[type="email"]`,
		"#loginId--1",
		"#id_email_2",
	}
	passwordFieldSelectors = []string{
		`input[name="password"]`,
		`input[type="password"]`,
		"#password--2",
	}
	submitButtonSelectors = []string{
		`button[type="submit"]`,
		".btn_confirm.submit",
		".submit",
	}
)

// Authenticator probes and establishes login state for the configured blog.
type Authenticator struct {
	store  CredentialStore
	cfg    config.TistoryConfig
	logger *zap.Logger
}

// NewAuthenticator builds an authenticator.
func NewAuthenticator(store CredentialStore, cfg config.TistoryConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("auth"),
	}
}

// settleDelay gives the editor's redirect chain time to finish before the
// URL is classified.
const settleDelay = 3 * time.Second

// IsLoggedIn installs stored cookies and probes the editor URL. With no
// stored cookies it answers false without touching the browser.
func (a *Authenticator) IsLoggedIn(ctx context.Context, page browser.Page) (bool, error) {
	cookies, err := a.store.LoadCookies(ctx, a.cfg.BlogName)
	if err != nil {
		// A broken cookie record reads as logged out so the caller
		// falls through to a fresh login.
		a.logger.Warn("Failed to load stored cookies.", zap.Error(err))
		return false, nil
	}
	if len(cookies) == 0 {
		a.logger.Debug("No stored cookies; skipping probe.")
		return false, nil
	}

	if err := page.SetCookies(ctx, cookies); err != nil {
		return false, err
	}
	if err := page.Navigate(ctx, a.cfg.NewPostURL()); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(settleDelay):
	}

	url, err := page.CurrentURL(ctx)
	if err != nil {
		return false, err
	}

	state := ClassifyURL(url, a.cfg.BlogName)
	a.logger.Info("Probed login state.", zap.String("url", url), zap.String("state", string(state)))
	return state == StateLoggedIn, nil
}

// PasswordLogin drives the Kakao password flow and saves the resulting
// cookies. It assumes the dialog policy is already installed on the page.
func (a *Authenticator) PasswordLogin(ctx context.Context, page browser.Page, cred schemas.Credential) error {
	if cred.Username == "" || cred.Password == "" {
		return fmt.Errorf("kakao credentials are not configured")
	}

	if err := page.Navigate(ctx, a.cfg.NewPostURL()); err != nil {
		return err
	}

	url, err := page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if ClassifyURL(url, a.cfg.BlogName) == StateLoggedIn {
		return nil
	}

	// The Tistory login page offers several providers; pick Kakao.
	if sel, err := page.FindFirst(ctx, kakaoButtonSelectors); err != nil {
		return err
	} else if sel != "" {
		if err := page.Click(ctx, sel); err != nil {
			return err
		}
	}

	emailSel, err := page.WaitVisibleAny(ctx, emailFieldSelectors, 15*time.Second)
	if err != nil {
		return fmt.Errorf("kakao email field never appeared: %w", err)
	}
	if err := page.Click(ctx, emailSel); err != nil {
		return err
	}
	if err := page.TypeChunked(ctx, cred.Username); err != nil {
		return err
	}

	passwordSel, err := page.WaitVisibleAny(ctx, passwordFieldSelectors, 10*time.Second)
	if err != nil {
		return fmt.Errorf("kakao password field never appeared: %w", err)
	}
	if err := page.Click(ctx, passwordSel); err != nil {
		return err
	}
	if err := page.TypeChunked(ctx, cred.Password); err != nil {
		return err
	}

	submitSel, err := page.WaitVisibleAny(ctx, submitButtonSelectors, 10*time.Second)
	if err != nil {
		return fmt.Errorf("kakao submit button never appeared: %w", err)
	}
	if err := page.Click(ctx, submitSel); err != nil {
		return err
	}

	// Two-factor prompts and consent screens make the post-submit time
	// unpredictable; poll the URL instead of waiting a fixed delay.
	deadline := time.Now().Add(45 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}

		url, err := page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if ClassifyURL(url, a.cfg.BlogName) == StateLoggedIn {
			return a.SaveSessionCookies(ctx, page)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("password login did not reach the editor, stuck at %s", url)
		}
	}
}

// SaveSessionCookies persists the page's current tistory cookies.
func (a *Authenticator) SaveSessionCookies(ctx context.Context, page browser.Page) error {
	cookies, err := page.DumpCookies(ctx)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no tistory cookies present to save")
	}
	return a.store.SaveCookies(ctx, a.cfg.BlogName, cookies)
}

// Status reports whether stored cookies exist for the configured blog.
func (a *Authenticator) Status(ctx context.Context) (schemas.CredentialStatus, error) {
	ok, savedAt, err := a.store.HasCookies(ctx, a.cfg.BlogName)
	if err != nil {
		return schemas.CredentialStatus{}, err
	}
	status := schemas.CredentialStatus{BlogName: a.cfg.BlogName, HasCookies: ok}
	if ok {
		status.SavedAt = savedAt.UTC().Format(time.RFC3339)
	}
	return status, nil
}

// Clear removes stored cookies for the configured blog.
func (a *Authenticator) Clear(ctx context.Context) error {
	return a.store.ClearCookies(ctx, a.cfg.BlogName)
}
