// internal/remote/client.go
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tistorylab/autopub/internal/config"
)

// Session statuses reported by the control plane.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
	StatusTimedOut  = "TIMED_OUT"
)

// Session is a hosted browser session.
type Session struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Status     string `json:"status"`
	ConnectURL string `json:"connectUrl"`
	Region     string `json:"region,omitempty"`
}

// createSessionRequest is the session creation payload.
type createSessionRequest struct {
	ProjectID string `json:"projectId"`
	Region    string `json:"region,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// updateSessionRequest asks the control plane to release a session.
type updateSessionRequest struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

// debugResponse carries the live view URLs for a session.
type debugResponse struct {
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
	DebuggerURL           string `json:"debuggerUrl"`
}

// Client talks to the hosted-browser control plane. Sessions it creates are
// detached and released, never terminated, so a human can keep driving the
// live view while we are disconnected.
type Client struct {
	http      *resty.Client
	projectID string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient builds a control-plane client from config.
func NewClient(cfg config.RemoteConfig, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("X-BB-API-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= 500
		})

	return &Client{
		http:      http,
		projectID: cfg.ProjectID,
		timeout:   cfg.SessionTimeout,
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		logger:    logger.Named("remote"),
	}
}

// CreateSession provisions a fresh hosted browser and returns it once the
// control plane reports a connect URL.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var session Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createSessionRequest{
			ProjectID: c.projectID,
			Timeout:   int(c.timeout.Seconds()),
		}).
		SetResult(&session).
		Post("/v1/sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to create remote session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote session creation returned %d: %s", resp.StatusCode(), resp.String())
	}
	if session.ConnectURL == "" {
		return nil, fmt.Errorf("remote session %q has no connect URL", session.ID)
	}

	c.logger.Info("Created remote browser session.",
		zap.String("session_id", session.ID),
		zap.String("status", session.Status))
	return &session, nil
}

// LiveViewURL fetches the fullscreen debugger URL a human can watch and
// drive in a normal browser tab.
func (c *Client) LiveViewURL(ctx context.Context, sessionID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var debug debugResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&debug).
		Get("/v1/sessions/" + sessionID + "/debug")
	if err != nil {
		return "", fmt.Errorf("failed to fetch live view for session %q: %w", sessionID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("live view request returned %d: %s", resp.StatusCode(), resp.String())
	}

	if debug.DebuggerFullscreenURL != "" {
		return debug.DebuggerFullscreenURL, nil
	}
	return debug.DebuggerURL, nil
}

// Release asks the control plane to release the session. Releasing an
// already-finished session is not an error.
func (c *Client) Release(ctx context.Context, sessionID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(updateSessionRequest{ProjectID: c.projectID, Status: "REQUEST_RELEASE"}).
		Post("/v1/sessions/" + sessionID)
	if err != nil {
		return fmt.Errorf("failed to release session %q: %w", sessionID, err)
	}
	if resp.IsError() && resp.StatusCode() != 404 && resp.StatusCode() != 409 {
		return fmt.Errorf("session release returned %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("Released remote browser session.", zap.String("session_id", sessionID))
	return nil
}
