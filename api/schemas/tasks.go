package schemas

import "time"

// TaskStatus tracks a publish task through its pipeline.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskGenerating TaskStatus = "generating"
	TaskPublishing TaskStatus = "publishing"
	TaskSuccess    TaskStatus = "success"
	TaskFailed     TaskStatus = "failed"
	TaskNotFound   TaskStatus = "not_found"
)

// Terminal reports whether the task has finished, successfully or not.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// Completed reports whether callers should stop polling. An unknown id
// counts as completed with no further information.
func (s TaskStatus) Completed() bool {
	return s.Terminal() || s == TaskNotFound
}

// PublishResult is the outcome of a successful publish.
type PublishResult struct {
	Success    bool   `json:"success"`
	PostID     string `json:"post_id,omitempty"`
	TistoryURL string `json:"tistory_url"`
	Title      string `json:"title"`
}

// Task is the unit of work for the generate-and-publish pipeline.
type Task struct {
	ID        string         `json:"task_id"`
	Status    TaskStatus     `json:"status"`
	Completed bool           `json:"completed"`
	Progress  string         `json:"progress,omitempty"`
	Result    *PublishResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LoginStatus tracks an interactive login session.
type LoginStatus string

const (
	LoginPending    LoginStatus = "pending"
	LoginInProgress LoginStatus = "in_progress"
	LoginSuccess    LoginStatus = "success"
	LoginFailed     LoginStatus = "failed"
	LoginTimeout    LoginStatus = "timeout"
	LoginNotFound   LoginStatus = "not_found"
)

// Terminal reports whether the login session has finished.
func (s LoginStatus) Terminal() bool {
	return s == LoginSuccess || s == LoginFailed || s == LoginTimeout
}

// Completed reports whether callers should stop polling the session.
func (s LoginStatus) Completed() bool {
	return s.Terminal() || s == LoginNotFound
}

// LoginSession is one interactive login attempt driven by a human
// through the browser (local window or remote live view).
type LoginSession struct {
	ID          string      `json:"session_id"`
	Status      LoginStatus `json:"status"`
	Completed   bool        `json:"completed"`
	Message     string      `json:"message,omitempty"`
	LiveViewURL string      `json:"live_view_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
