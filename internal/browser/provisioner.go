// internal/browser/provisioner.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/internal/config"
	"github.com/tistorylab/autopub/internal/remote"
)

// Provisioner hands out browser pages. The implementation decides where
// the browser actually runs.
type Provisioner interface {
	Acquire(ctx context.Context) (Page, error)
}

// NewProvisioner selects the backend from config.
func NewProvisioner(cfg *config.Config, logger *zap.Logger) Provisioner {
	if cfg.Remote.Enabled {
		return NewRemoteProvisioner(cfg, remote.NewClient(cfg.Remote, logger), logger)
	}
	return NewLocalProvisioner(cfg, logger)
}

// LocalProvisioner launches Chrome on this machine.
type LocalProvisioner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLocalProvisioner builds the local backend.
func NewLocalProvisioner(cfg *config.Config, logger *zap.Logger) *LocalProvisioner {
	return &LocalProvisioner{cfg: cfg, logger: logger.Named("browser.local")}
}

// Acquire starts a Chrome process and connects to it.
func (p *LocalProvisioner) Acquire(ctx context.Context) (Page, error) {
	opts := DefaultAllocatorOptions(p.cfg.Browser)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so a broken Chrome install
	// fails here instead of on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start local browser: %w", err)
	}

	p.logger.Info("Acquired local browser.", zap.Bool("headless", p.cfg.Browser.Headless))

	return &Handle{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{allocCancel, browserCancel},
		navTimeout: p.cfg.Browser.NavigationTimeout,
		opTimeout:  p.cfg.Browser.OperationTimeout,
		logger:     p.logger,
	}, nil
}

// SessionClient is the control-plane surface the remote provisioner needs.
type SessionClient interface {
	CreateSession(ctx context.Context) (*remote.Session, error)
	LiveViewURL(ctx context.Context, sessionID string) (string, error)
	Release(ctx context.Context, sessionID string) error
}

// RemoteProvisioner connects to hosted browser sessions over CDP.
type RemoteProvisioner struct {
	cfg    *config.Config
	client SessionClient
	logger *zap.Logger
}

// NewRemoteProvisioner builds the remote backend.
func NewRemoteProvisioner(cfg *config.Config, client SessionClient, logger *zap.Logger) *RemoteProvisioner {
	return &RemoteProvisioner{cfg: cfg, client: client, logger: logger.Named("browser.remote")}
}

// Acquire creates a hosted session, fetches its live view URL, and attaches
// over CDP. The returned handle releases the session on Close.
func (p *RemoteProvisioner) Acquire(ctx context.Context) (Page, error) {
	session, err := p.client.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	liveView, err := p.client.LiveViewURL(ctx, session.ID)
	if err != nil {
		// The session exists but has no live view; it is still usable for
		// headless publish work.
		p.logger.Warn("No live view URL for remote session.",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), session.ConnectURL, chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if relErr := p.client.Release(releaseCtx, session.ID); relErr != nil {
			p.logger.Warn("Failed to release unattachable session.", zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to attach to remote session %q: %w", session.ID, err)
	}

	p.logger.Info("Acquired remote browser.",
		zap.String("session_id", session.ID),
		zap.String("live_view", liveView))

	sessionID := session.ID
	return &Handle{
		browserCtx:  browserCtx,
		cancels:     []context.CancelFunc{allocCancel, browserCancel},
		remote:      true,
		liveViewURL: liveView,
		releaseFn: func(ctx context.Context) error {
			return p.client.Release(ctx, sessionID)
		},
		navTimeout: p.cfg.Browser.NavigationTimeout,
		opTimeout:  p.cfg.Browser.OperationTimeout,
		logger:     p.logger,
	}, nil
}
