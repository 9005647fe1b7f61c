// internal/publish/orchestrator.go
package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/generate"
	"github.com/tistorylab/autopub/internal/htmlutil"
	"github.com/tistorylab/autopub/internal/registry"
	"github.com/tistorylab/autopub/internal/scrape"
)

const (
	// taskRetention keeps finished tasks pollable for a while before the
	// registry sweeps them.
	taskRetention = 30 * time.Minute
	// taskTimeout bounds a full generate-and-publish run.
	taskTimeout = 15 * time.Minute
)

// ContentPublisher posts finished content to the blog.
type ContentPublisher interface {
	Publish(ctx context.Context, content *schemas.GeneratedContent, tags []string) (*schemas.PublishResult, error)
}

// PostStore archives generated posts.
type PostStore interface {
	CreatePost(ctx context.Context, content *schemas.GeneratedContent) (string, error)
	UpdatePostStatus(ctx context.Context, id string, status schemas.PostStatus, tistoryURL string) error
	ListPosts(ctx context.Context, limit int) ([]schemas.Post, error)
}

// ReferenceScraper fetches source material for generation.
type ReferenceScraper interface {
	Fetch(ctx context.Context, url string) (*scrape.Result, error)
}

type taskEntry struct {
	mu   sync.Mutex
	data schemas.Task
}

func (e *taskEntry) snapshot() schemas.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

func (e *taskEntry) update(fn func(*schemas.Task)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.data)
	e.data.UpdatedAt = time.Now()
}

// TaskManager runs generate and publish pipelines as pollable background
// tasks.
type TaskManager struct {
	generator generate.Generator
	scraper   ReferenceScraper
	publisher ContentPublisher
	posts     PostStore
	tasks     *registry.Registry[*taskEntry]
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewTaskManager builds a task manager.
func NewTaskManager(generator generate.Generator, scraper ReferenceScraper, publisher ContentPublisher, posts PostStore, logger *zap.Logger) *TaskManager {
	return &TaskManager{
		generator: generator,
		scraper:   scraper,
		publisher: publisher,
		posts:     posts,
		tasks:     registry.New[*taskEntry](logger),
		logger:    logger.Named("tasks"),
	}
}

func newTaskID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("task_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

func (m *TaskManager) newTask() (*taskEntry, string) {
	now := time.Now()
	entry := &taskEntry{data: schemas.Task{
		ID:        newTaskID(),
		Status:    schemas.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.tasks.Put(entry.data.ID, entry)
	return entry, entry.data.ID
}

// StartGenerate kicks off content generation, optionally followed by a
// publish, and returns the task id to poll.
func (m *TaskManager) StartGenerate(req schemas.GenerateRequest) string {
	entry, id := m.newTask()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		m.runGenerate(ctx, entry, req)
	}()
	return id
}

// StartPublishContent publishes caller-supplied content in the
// background and returns the task id to poll.
func (m *TaskManager) StartPublishContent(req schemas.PublishContentRequest) string {
	entry, id := m.newTask()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		content := &schemas.GeneratedContent{
			Title: req.Title,
			HTML:  htmlutil.CleanHTML(req.HTML),
		}
		m.runPublish(ctx, entry, content, req.Tags)
	}()
	return id
}

// GenerateAndPublish runs the full pipeline synchronously and returns
// the publish result.
func (m *TaskManager) GenerateAndPublish(ctx context.Context, req schemas.GenerateRequest) (*schemas.PublishResult, error) {
	entry, _ := m.newTask()
	req.Publish = true
	m.runGenerate(ctx, entry, req)

	task := entry.snapshot()
	if task.Status != schemas.TaskSuccess {
		return nil, fmt.Errorf("generate and publish failed: %s", task.Error)
	}
	return task.Result, nil
}

// Preview generates content without publishing or archiving it.
func (m *TaskManager) Preview(ctx context.Context, req schemas.GenerateRequest) (*schemas.GeneratedContent, error) {
	return m.generate(ctx, req)
}

// TaskStatus returns the current task state, or a not_found placeholder
// for ids the registry no longer holds.
func (m *TaskManager) TaskStatus(id string) schemas.Task {
	entry, ok := m.tasks.Get(id)
	if !ok {
		return schemas.Task{ID: id, Status: schemas.TaskNotFound, Completed: true}
	}
	task := entry.snapshot()
	task.Completed = task.Status.Completed()
	return task
}

// ListPosts returns the most recent archived posts.
func (m *TaskManager) ListPosts(ctx context.Context, limit int) ([]schemas.Post, error) {
	return m.posts.ListPosts(ctx, limit)
}

// Close waits for running tasks and stops the registry janitor.
func (m *TaskManager) Close() {
	m.wg.Wait()
	m.tasks.Close()
}

func (m *TaskManager) generate(ctx context.Context, req schemas.GenerateRequest) (*schemas.GeneratedContent, error) {
	genReq := generate.Request{Topic: req.Topic, Tags: req.Tags}
	if req.SourceURL != "" {
		res, err := m.scraper.Fetch(ctx, req.SourceURL)
		if err != nil {
			m.logger.Warn("Reference scrape failed; generating without it.",
				zap.String("url", req.SourceURL), zap.Error(err))
		} else {
			genReq.Reference = res.Text
			if genReq.Topic == "" {
				genReq.Topic = res.Title
			}
		}
	}
	return m.generator.Generate(ctx, genReq)
}

func (m *TaskManager) runGenerate(ctx context.Context, entry *taskEntry, req schemas.GenerateRequest) {
	entry.update(func(t *schemas.Task) {
		t.Status = schemas.TaskGenerating
		t.Progress = "generating content"
	})

	content, err := m.generate(ctx, req)
	if err != nil {
		m.fail(entry, fmt.Errorf("content generation failed: %w", err))
		return
	}

	if !req.Publish {
		postID := m.archive(content)
		entry.update(func(t *schemas.Task) {
			t.Status = schemas.TaskSuccess
			t.Progress = "content generated"
			t.Result = &schemas.PublishResult{Success: true, PostID: postID, Title: content.Title}
		})
		m.finishWithRetention(entry)
		return
	}

	m.runPublish(ctx, entry, content, req.Tags)
}

func (m *TaskManager) runPublish(ctx context.Context, entry *taskEntry, content *schemas.GeneratedContent, tags []string) {
	postID := m.archive(content)

	entry.update(func(t *schemas.Task) {
		t.Status = schemas.TaskPublishing
		t.Progress = "publishing to tistory"
	})

	result, err := m.publisher.Publish(ctx, content, tags)
	if err != nil {
		m.markPost(postID, schemas.PostFailed, "")
		m.fail(entry, fmt.Errorf("publish failed: %w", err))
		return
	}
	result.PostID = postID
	m.markPost(postID, schemas.PostPublished, result.TistoryURL)

	entry.update(func(t *schemas.Task) {
		t.Status = schemas.TaskSuccess
		t.Progress = "published"
		t.Result = result
	})
	m.finishWithRetention(entry)
}

// archive stores the post, tolerating a missing or failing store.
func (m *TaskManager) archive(content *schemas.GeneratedContent) string {
	if m.posts == nil {
		return ""
	}
	// Persistence uses its own context so a cancelled task still leaves
	// an archive record behind.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := m.posts.CreatePost(ctx, content)
	if err != nil {
		m.logger.Warn("Failed to archive post.", zap.Error(err))
		return ""
	}
	return id
}

func (m *TaskManager) markPost(id string, status schemas.PostStatus, tistoryURL string) {
	if m.posts == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.posts.UpdatePostStatus(ctx, id, status, tistoryURL); err != nil {
		m.logger.Warn("Failed to update post status.", zap.String("post_id", id), zap.Error(err))
	}
}

func (m *TaskManager) fail(entry *taskEntry, err error) {
	m.logger.Error("Task failed.", zap.String("task_id", entry.snapshot().ID), zap.Error(err))
	entry.update(func(t *schemas.Task) {
		t.Status = schemas.TaskFailed
		t.Error = err.Error()
	})
	// Re-put with a retention TTL so the failure stays pollable but gets
	// swept eventually.
	m.tasks.PutWithTTL(entry.snapshot().ID, entry, taskRetention)
}

func (m *TaskManager) finishWithRetention(entry *taskEntry) {
	m.tasks.PutWithTTL(entry.snapshot().ID, entry, taskRetention)
}
