// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/config"
)

// TaskService runs content pipelines as pollable tasks.
type TaskService interface {
	StartGenerate(req schemas.GenerateRequest) string
	StartPublishContent(req schemas.PublishContentRequest) string
	GenerateAndPublish(ctx context.Context, req schemas.GenerateRequest) (*schemas.PublishResult, error)
	Preview(ctx context.Context, req schemas.GenerateRequest) (*schemas.GeneratedContent, error)
	TaskStatus(id string) schemas.Task
	ListPosts(ctx context.Context, limit int) ([]schemas.Post, error)
}

// LoginService manages interactive login sessions.
type LoginService interface {
	StartLogin(ctx context.Context) (schemas.LoginSession, error)
	LoginStatus(id string) schemas.LoginSession
	CancelLogin(id string)
}

// AuthService reports and clears the stored credential state.
type AuthService interface {
	Status(ctx context.Context) (schemas.CredentialStatus, error)
	Clear(ctx context.Context) error
}

// Server is the HTTP API in front of the publishing pipelines.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	cfg    config.ServerConfig
	tasks  TaskService
	logins LoginService
	auth   AuthService
	logger *zap.Logger
}

// NewServer wires the router. The caller owns the lifecycle of the
// injected services.
func NewServer(cfg config.ServerConfig, tasks TaskService, logins LoginService, auth AuthService, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine: engine,
		cfg:    cfg,
		tasks:  tasks,
		logins: logins,
		auth:   auth,
		logger: logger.Named("http"),
	}

	engine.Use(recovery(s.logger))
	engine.Use(requestLogger(s.logger))

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsCfg))

	s.registerRoutes()

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	blog := s.engine.Group("/api/blog")
	{
		blog.POST("/generate", s.handleGenerate)
		blog.GET("/generate/status/:taskId", s.handleTaskStatus)
		blog.POST("/publish-content", s.handlePublishContent)
		blog.POST("/generate-and-publish", s.handleGenerateAndPublish)
		blog.POST("/preview", s.handlePreview)
		blog.GET("/posts", s.handleListPosts)
	}

	authGroup := s.engine.Group("/api/auth")
	{
		authGroup.POST("/login/start", s.handleLoginStart)
		authGroup.GET("/login/status/:sessionId", s.handleLoginStatus)
		authGroup.POST("/login/cancel", s.handleLoginCancel)
		authGroup.GET("/status", s.handleAuthStatus)
		authGroup.DELETE("/cookies", s.handleClearCookies)
	}
}

// Run serves until ctx is cancelled, then drains within the shutdown
// timeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Listening.", zap.String("addr", s.cfg.ListenAddr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req schemas.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Topic == "" && req.SourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic or source_url is required"})
		return
	}

	id := s.tasks.StartGenerate(req)
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": schemas.TaskPending})
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	task := s.tasks.TaskStatus(c.Param("taskId"))
	if task.Status == schemas.TaskNotFound {
		c.JSON(http.StatusNotFound, task)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handlePublishContent(c *gin.Context) {
	var req schemas.PublishContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" || req.HTML == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content are required"})
		return
	}

	id := s.tasks.StartPublishContent(req)
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": schemas.TaskPending})
}

func (s *Server) handleGenerateAndPublish(c *gin.Context) {
	var req schemas.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Topic == "" && req.SourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic or source_url is required"})
		return
	}

	result, err := s.tasks.GenerateAndPublish(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePreview(c *gin.Context) {
	var req schemas.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Topic == "" && req.SourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic or source_url is required"})
		return
	}

	content, err := s.tasks.Preview(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) handleListPosts(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	posts, err := s.tasks.ListPosts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (s *Server) handleLoginStart(c *gin.Context) {
	session, err := s.logins.StartLogin(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, session)
}

func (s *Server) handleLoginStatus(c *gin.Context) {
	session := s.logins.LoginStatus(c.Param("sessionId"))
	if session.Status == schemas.LoginNotFound {
		c.JSON(http.StatusNotFound, session)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleLoginCancel(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	s.logins.CancelLogin(req.SessionID)
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	status, err := s.auth.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleClearCookies(c *gin.Context) {
	if err := s.auth.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
