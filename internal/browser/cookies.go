// internal/browser/cookies.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/tistorylab/autopub/api/schemas"
)

// SetCookies installs the cookies into the browser before navigation.
func (h *Handle) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(strings.ToLower(string(c.SameSite)))
		}
		if c.Expires > 0 {
			ts := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &ts
		}
		params = append(params, p)
	}

	err := h.run(ctx, h.opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set %d cookies: %w", len(params), err)
	}
	return nil
}

// DumpCookies reads the browser's cookie jar, keeping only tistory.com
// cookies, which are the ones worth persisting.
func (h *Handle) DumpCookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := h.run(ctx, h.opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to dump cookies: %w", err)
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		if !strings.Contains(c.Domain, "tistory.com") {
			continue
		}
		cookies = append(cookies, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: sameSiteFromCDP(c.SameSite),
		})
	}
	return cookies, nil
}

func sameSiteFromCDP(s network.CookieSameSite) schemas.CookieSameSite {
	switch s {
	case network.CookieSameSiteStrict:
		return schemas.CookieSameSiteStrict
	case network.CookieSameSiteLax:
		return schemas.CookieSameSiteLax
	case network.CookieSameSiteNone:
		return schemas.CookieSameSiteNone
	default:
		return ""
	}
}
