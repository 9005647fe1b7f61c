// internal/publish/publisher_test.go
package publish

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/auth"
	"github.com/tistorylab/autopub/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tistory.BlogName = "myblog"
	return cfg
}

func newTestPublisher(t *testing.T, prov *fakeProvisioner, store *fakeCredStore) *Publisher {
	t.Helper()
	cfg := testConfig()
	authenticator := auth.NewAuthenticator(store, cfg.Tistory, zap.NewNop())
	p := NewPublisher(prov, authenticator, cfg, zap.NewNop())
	p.navSettle = time.Millisecond
	p.confirmSettle = time.Millisecond
	p.postNavWait = 200 * time.Millisecond
	p.manualWait = 100 * time.Millisecond
	p.pollEvery = 10 * time.Millisecond
	return p
}

func seedCookies(store *fakeCredStore) {
	store.cookies["myblog"] = []schemas.Cookie{{Name: "TSSESSION", Value: "abc", Domain: ".tistory.com"}}
	store.saved["myblog"] = time.Now()
}

func TestPublishRemoteWithoutCookies(t *testing.T) {
	store := newFakeCredStore()
	page := &fakePage{remote: true}
	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	_, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.ErrorIs(t, err, ErrReloginRequired)
	assert.Equal(t, int32(1), page.closeCalls.Load())
	assert.Equal(t, int32(1), page.dialogCalls.Load())
}

func TestPublishRemoteStaleCookiesCleared(t *testing.T) {
	store := newFakeCredStore()
	seedCookies(store)

	// Cookies install but the probe lands on the login page.
	page := &fakePage{
		remote: true,
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://www.tistory.com/auth/login",
		},
	}
	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	_, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.ErrorIs(t, err, ErrReloginRequired)

	has, _, _ := store.HasCookies(context.Background(), "myblog")
	assert.False(t, has, "stale cookies should be cleared")
	assert.Equal(t, int32(1), page.closeCalls.Load())
}

func TestPublishRemoteSessionExpiresBeforeCompose(t *testing.T) {
	store := newFakeCredStore()
	seedCookies(store)

	// The login probe passes, then the compose navigation bounces to
	// the login page.
	editorVisits := 0
	page := &fakePage{remote: true}
	page.onNavigate = func(url string) string {
		if url == "https://myblog.tistory.com/manage/newpost" {
			editorVisits++
			if editorVisits > 1 {
				return "https://www.tistory.com/auth/login"
			}
		}
		return url
	}
	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	_, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.ErrorIs(t, err, ErrReloginRequired)

	has, _, _ := store.HasCookies(context.Background(), "myblog")
	assert.False(t, has, "expired cookies should be cleared")
	assert.Empty(t, page.typed, "nothing should be typed into the login page")
	assert.Equal(t, int32(1), page.closeCalls.Load())
}

func TestPublishLocalSessionExpiresBeforeCompose(t *testing.T) {
	store := newFakeCredStore()
	seedCookies(store)

	editorVisits := 0
	page := &fakePage{}
	page.onNavigate = func(url string) string {
		if url == "https://myblog.tistory.com/manage/newpost" {
			editorVisits++
			if editorVisits > 1 {
				return "https://www.tistory.com/auth/login"
			}
		}
		return url
	}
	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	_, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual login")
	assert.Empty(t, page.typed)
	assert.Equal(t, int32(1), page.closeCalls.Load())
}

func TestPublishLocalManualLoginTimeout(t *testing.T) {
	store := newFakeCredStore()

	// Every navigation to the editor bounces to the login page and a
	// human never completes it.
	page := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://www.tistory.com/auth/login",
		},
	}
	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	_, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual login")
	assert.Equal(t, int32(1), page.closeCalls.Load())
}

func TestPublishHappyPath(t *testing.T) {
	store := newFakeCredStore()
	seedCookies(store)

	page := &fakePage{
		findBySel: map[string]bool{
			`input[name="title"]`: true,
			".ProseMirror":        true,
			`input[name="tag"]`:   true,
			"button.btn_publish":  true,
		},
		dumped: []schemas.Cookie{{Name: "TSSESSION", Value: "rotated", Domain: ".tistory.com"}},
	}
	page.evalFn = func(expr string, out interface{}) error {
		switch {
		case strings.Contains(expr, injectionProbe):
			setBool(out, true)
		case strings.Contains(expr, "length > 0"):
			setBool(out, true)
		case strings.Contains(expr, "offsetParent"):
			// Confirmation layer click.
			setBool(out, true)
			page.setURL("https://myblog.tistory.com/42")
		}
		return nil
	}

	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	content := &schemas.GeneratedContent{Title: "포스트 제목", HTML: "<p>본문</p>"}
	result, err := pub.Publish(context.Background(), content, []string{"go", "tistory"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "포스트 제목", result.Title)
	assert.Equal(t, "https://myblog.tistory.com/42", result.TistoryURL)

	// Title, probe, body, tags all went through the keyboard.
	require.Len(t, page.typed, 4)
	assert.Equal(t, "포스트 제목", page.typed[0])
	assert.Equal(t, injectionProbe, page.typed[1])
	assert.Equal(t, "본문", page.typed[2])
	assert.Equal(t, "go,tistory\n", page.typed[3])

	assert.Contains(t, page.clicked, "button.btn_publish")

	// Rotated cookies were persisted.
	saved, _ := store.LoadCookies(context.Background(), "myblog")
	require.Len(t, saved, 1)
	assert.Equal(t, "rotated", saved[0].Value)
}

func TestPublishFallsBackToBlogHomeURL(t *testing.T) {
	store := newFakeCredStore()
	seedCookies(store)

	// The editor never navigates away after publishing.
	page := &fakePage{
		findBySel: map[string]bool{
			`input[name="title"]`: true,
			"button.btn_publish":  true,
		},
		dumped: []schemas.Cookie{{Name: "TSSESSION", Value: "abc", Domain: ".tistory.com"}},
	}
	page.evalFn = func(expr string, out interface{}) error {
		// No rich editor; the textarea strategy lands the body.
		setBool(out, strings.Contains(expr, "textarea") || strings.Contains(expr, "offsetParent"))
		return nil
	}

	pub := newTestPublisher(t, &fakeProvisioner{pages: []*fakePage{page}}, store)

	result, err := pub.Publish(context.Background(), &schemas.GeneratedContent{Title: "t", HTML: "<p>b</p>"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://myblog.tistory.com", result.TistoryURL)
}
