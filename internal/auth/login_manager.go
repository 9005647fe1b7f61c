// internal/auth/login_manager.go
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/browser"
	"github.com/tistorylab/autopub/internal/config"
	"github.com/tistorylab/autopub/internal/registry"
)

const (
	// loginWaitBudget is how long a human gets to finish logging in.
	loginWaitBudget = 2 * time.Minute
	// loginPollInterval paces the URL checks during the wait.
	loginPollInterval = 2 * time.Second
	// loginRetention keeps finished sessions pollable before eviction.
	loginRetention = 10 * time.Minute
)

// loginEntry is the mutable registry record for one login session.
type loginEntry struct {
	mu   sync.Mutex
	data schemas.LoginSession
}

func (e *loginEntry) snapshot() schemas.LoginSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

func (e *loginEntry) update(fn func(*schemas.LoginSession)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.data)
	e.data.UpdatedAt = time.Now().UTC()
}

// LoginManager runs interactive login sessions: it opens a browser on the
// login page, hands the human a window (or remote live view) and waits for
// the editor to become reachable, saving cookies when it does. At most one
// session is live at a time.
type LoginManager struct {
	provisioner browser.Provisioner
	auth        *Authenticator
	cfg         config.TistoryConfig
	sessions    *registry.Registry[*loginEntry]
	logger      *zap.Logger
	wg          sync.WaitGroup

	waitBudget   time.Duration
	pollInterval time.Duration
}

// NewLoginManager builds the manager.
func NewLoginManager(provisioner browser.Provisioner, auth *Authenticator, cfg config.TistoryConfig, logger *zap.Logger) *LoginManager {
	log := logger.Named("login_manager")
	return &LoginManager{
		provisioner:  provisioner,
		auth:         auth,
		cfg:          cfg,
		sessions:     registry.New[*loginEntry](log),
		logger:       log,
		waitBudget:   loginWaitBudget,
		pollInterval: loginPollInterval,
	}
}

// StartLogin cancels any live session and starts a fresh one. The returned
// snapshot carries the session id; the live view URL appears once the
// browser is up.
func (m *LoginManager) StartLogin(ctx context.Context) (schemas.LoginSession, error) {
	cancelled := m.sessions.DeleteWhere(func(_ string, e *loginEntry) bool {
		return !e.snapshot().Status.Terminal()
	})
	for _, id := range cancelled {
		m.logger.Info("Cancelled previous login session.", zap.String("session_id", id))
	}

	// A fresh manual login starts from a clean slate: drop whatever
	// cookie record is on file before the human signs in again.
	if err := m.auth.Clear(ctx); err != nil {
		m.logger.Warn("Failed to clear stored cookies before login.", zap.Error(err))
	}

	now := time.Now().UTC()
	entry := &loginEntry{data: schemas.LoginSession{
		ID:        uuid.NewString(),
		Status:    schemas.LoginPending,
		Message:   "Starting browser...",
		CreatedAt: now,
		UpdatedAt: now,
	}}
	id := entry.data.ID
	m.sessions.Put(id, entry)

	m.wg.Add(1)
	go m.run(id, entry)

	return entry.snapshot(), nil
}

// LoginStatus returns the session snapshot, or a not_found status for
// unknown or evicted ids.
func (m *LoginManager) LoginStatus(id string) schemas.LoginSession {
	entry, ok := m.sessions.Get(id)
	if !ok {
		return schemas.LoginSession{ID: id, Status: schemas.LoginNotFound, Completed: true}
	}
	session := entry.snapshot()
	session.Completed = session.Status.Completed()
	return session
}

// CancelLogin deregisters the session; its run loop notices the absence on
// the next poll and tears the browser down. Unknown ids are a no-op.
func (m *LoginManager) CancelLogin(id string) {
	m.sessions.Delete(id)
}

// Close cancels live sessions and waits for their loops to finish.
func (m *LoginManager) Close() {
	m.sessions.DeleteWhere(func(_ string, e *loginEntry) bool {
		return !e.snapshot().Status.Terminal()
	})
	m.wg.Wait()
	m.sessions.Close()
}

// run drives one login session to a terminal state.
func (m *LoginManager) run(id string, entry *loginEntry) {
	defer m.wg.Done()

	// The browser must survive for the whole human wait budget plus the
	// cookie-saving tail.
	ctx, cancel := context.WithTimeout(context.Background(), m.waitBudget+2*time.Minute)
	defer cancel()

	page, err := m.provisioner.Acquire(ctx)
	if err != nil {
		m.logger.Error("Failed to acquire browser for login.", zap.Error(err))
		m.finish(id, entry, schemas.LoginFailed, "Failed to start browser: "+err.Error())
		return
	}
	defer func() {
		if err := page.Close(); err != nil {
			m.logger.Warn("Browser teardown reported an error.", zap.Error(err))
		}
	}()

	page.InstallDialogPolicy()

	if err := page.Navigate(ctx, m.cfg.NewPostURL()); err != nil {
		m.finish(id, entry, schemas.LoginFailed, "Failed to open login page: "+err.Error())
		return
	}

	entry.update(func(s *schemas.LoginSession) {
		s.Status = schemas.LoginInProgress
		s.Message = "Waiting for login to complete."
		s.LiveViewURL = page.LiveViewURL()
	})

	deadline := time.Now().Add(m.waitBudget)
	for {
		select {
		case <-ctx.Done():
			m.finish(id, entry, schemas.LoginTimeout, "Login wait aborted.")
			return
		case <-time.After(m.pollInterval):
		}

		// A deregistered session means the caller cancelled it.
		if _, ok := m.sessions.Get(id); !ok {
			m.logger.Info("Login session cancelled.", zap.String("session_id", id))
			return
		}

		url, err := page.CurrentURL(ctx)
		if err != nil {
			m.finish(id, entry, schemas.LoginFailed, "Lost the browser: "+err.Error())
			return
		}

		if ClassifyURL(url, m.cfg.BlogName) == StateLoggedIn {
			m.saveAndFinish(ctx, id, entry, page)
			return
		}

		if time.Now().After(deadline) {
			m.finish(id, entry, schemas.LoginTimeout, "Login was not completed in time.")
			return
		}
	}
}

// saveAndFinish captures cookies from the editor page and again from the
// blog home, where the remaining session cookies get set.
func (m *LoginManager) saveAndFinish(ctx context.Context, id string, entry *loginEntry, page browser.Page) {
	if err := m.auth.SaveSessionCookies(ctx, page); err != nil {
		m.finish(id, entry, schemas.LoginFailed, "Logged in but saving cookies failed: "+err.Error())
		return
	}

	if err := page.Navigate(ctx, m.cfg.BlogURL()); err == nil {
		if err := m.auth.SaveSessionCookies(ctx, page); err != nil {
			m.logger.Warn("Second cookie save failed.", zap.Error(err))
		}
	}

	m.finish(id, entry, schemas.LoginSuccess, "Login complete; cookies saved.")
}

// finish records the terminal state and schedules eviction.
func (m *LoginManager) finish(id string, entry *loginEntry, status schemas.LoginStatus, message string) {
	entry.update(func(s *schemas.LoginSession) {
		s.Status = status
		s.Message = message
	})
	// Re-register with a retention deadline so the last poll still sees
	// the outcome. A deregistered session was cancelled and stays gone.
	if _, ok := m.sessions.Get(id); ok {
		m.sessions.PutWithTTL(id, entry, loginRetention)
	}
	m.logger.Info("Login session finished.",
		zap.String("session_id", id),
		zap.String("status", string(status)))
}
