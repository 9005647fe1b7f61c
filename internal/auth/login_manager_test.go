// internal/auth/login_manager_test.go
package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/browser"
)

// fakeProvisioner hands out the pages it was seeded with, in order.
type fakeProvisioner struct {
	mu    sync.Mutex
	pages []*fakePage
	next  int
}

func (f *fakeProvisioner) Acquire(context.Context) (browser.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.pages[f.next]
	if f.next < len(f.pages)-1 {
		f.next++
	}
	return page, nil
}

func newTestLoginManager(t *testing.T, pages ...*fakePage) (*LoginManager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	a := NewAuthenticator(store, testTistoryCfg, zaptest.NewLogger(t))
	m := NewLoginManager(&fakeProvisioner{pages: pages}, a, testTistoryCfg, zaptest.NewLogger(t))
	m.waitBudget = 2 * time.Second
	m.pollInterval = 20 * time.Millisecond
	t.Cleanup(m.Close)
	return m, store
}

func waitForStatus(t *testing.T, m *LoginManager, id string, want schemas.LoginStatus) schemas.LoginSession {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := m.LoginStatus(id)
		if s.Status == want {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s never reached %s (last: %s)", id, want, s.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoginManagerSuccess(t *testing.T) {
	// The page starts on the kakao login URL; flipping it to the editor
	// simulates the human completing the login.
	page := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
		dumped:      []schemas.Cookie{{Name: "TSSESSION", Domain: ".tistory.com"}},
		remote:      true,
		liveViewURL: "https://live.example/full",
	}
	m, store := newTestLoginManager(t, page)

	session, err := m.StartLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.LoginPending, session.Status)

	inProgress := waitForStatus(t, m, session.ID, schemas.LoginInProgress)
	assert.Equal(t, "https://live.example/full", inProgress.LiveViewURL)

	page.setURL("https://myblog.tistory.com/manage/newpost")

	waitForStatus(t, m, session.ID, schemas.LoginSuccess)

	got, _ := store.LoadCookies(context.Background(), "myblog")
	assert.NotEmpty(t, got, "cookies must be saved on success")
	assert.EqualValues(t, 1, page.closeCalls.Load(), "browser torn down exactly once")
}

func TestLoginManagerTimeout(t *testing.T) {
	page := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
	}
	m, _ := newTestLoginManager(t, page)
	m.waitBudget = 100 * time.Millisecond

	session, err := m.StartLogin(context.Background())
	require.NoError(t, err)

	s := waitForStatus(t, m, session.ID, schemas.LoginTimeout)
	assert.True(t, s.Status.Terminal())
	assert.EqualValues(t, 1, page.closeCalls.Load())
}

func TestLoginManagerCancel(t *testing.T) {
	page := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
	}
	m, _ := newTestLoginManager(t, page)

	session, err := m.StartLogin(context.Background())
	require.NoError(t, err)
	waitForStatus(t, m, session.ID, schemas.LoginInProgress)

	m.CancelLogin(session.ID)

	// The loop notices the deregistration and closes the browser.
	require.Eventually(t, func() bool {
		return page.closeCalls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, schemas.LoginNotFound, m.LoginStatus(session.ID).Status)

	// Cancelling again, or an unknown id, is a no-op.
	m.CancelLogin(session.ID)
	m.CancelLogin("ghost")
}

func TestStartLoginClearsStoredCookies(t *testing.T) {
	page := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
	}
	m, store := newTestLoginManager(t, page)
	require.NoError(t, store.SaveCookies(context.Background(), "myblog",
		[]schemas.Cookie{{Name: "TSSESSION", Value: "old", Domain: ".tistory.com"}}))

	// A fresh manual login drops the old record first.
	_, err := m.StartLogin(context.Background())
	require.NoError(t, err)

	has, _, err := store.HasCookies(context.Background(), "myblog")
	require.NoError(t, err)
	assert.False(t, has, "starting a fresh manual login must clear the stored credential record")
}

func TestFinishAfterCancelStaysEvicted(t *testing.T) {
	m, _ := newTestLoginManager(t, &fakePage{})

	entry := &loginEntry{data: schemas.LoginSession{
		ID:     "sess-x",
		Status: schemas.LoginInProgress,
	}}
	m.sessions.Put("sess-x", entry)
	m.CancelLogin("sess-x")

	// A terminal transition racing the cancel must not resurrect the
	// session as a pollable record.
	m.finish("sess-x", entry, schemas.LoginTimeout, "too late")
	assert.Equal(t, schemas.LoginNotFound, m.LoginStatus("sess-x").Status)
}

func TestLoginManagerAtMostOneLive(t *testing.T) {
	first := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
	}
	second := &fakePage{
		urlByNav: map[string]string{
			"https://myblog.tistory.com/manage/newpost": "https://accounts.kakao.com/login",
		},
	}
	m, _ := newTestLoginManager(t, first, second)

	s1, err := m.StartLogin(context.Background())
	require.NoError(t, err)
	waitForStatus(t, m, s1.ID, schemas.LoginInProgress)

	s2, err := m.StartLogin(context.Background())
	require.NoError(t, err)

	// Starting the second session evicts the first; its loop closes the
	// first browser exactly once.
	require.Eventually(t, func() bool {
		return first.closeCalls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, schemas.LoginNotFound, m.LoginStatus(s1.ID).Status)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestLoginStatusUnknownID(t *testing.T) {
	m, _ := newTestLoginManager(t, &fakePage{})
	s := m.LoginStatus("does-not-exist")
	assert.Equal(t, schemas.LoginNotFound, s.Status)
	assert.True(t, s.Completed)
}
