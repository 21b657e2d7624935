package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/config"
	"github.com/ifuryst/postpilot/internal/models"
	"github.com/ifuryst/postpilot/internal/service"
	"github.com/ifuryst/postpilot/internal/service/content"
	"github.com/ifuryst/postpilot/internal/service/recurrence"
	"github.com/ifuryst/postpilot/internal/service/scheduler"
	"github.com/ifuryst/postpilot/internal/service/storage"
	"github.com/ifuryst/postpilot/pkg/util"
)

const knowledgePreviewLen = 200

// Store is the part of storage the admin API reads and writes through.
type Store interface {
	ScheduleStore
	ListPosts(ctx context.Context, filter storage.PostFilter) ([]models.GeneratedPost, error)
	ListKnowledgeDocs(ctx context.Context, userID uint) ([]models.KnowledgeDoc, error)
	CreateKnowledgeDoc(ctx context.Context, doc *models.KnowledgeDoc) error
	DeleteKnowledgeDoc(ctx context.Context, id uint) error
}

type ScheduleStore interface {
	GetSchedule(ctx context.Context, id uint) (*models.Schedule, error)
	ListSchedules(ctx context.Context, userID uint) ([]models.Schedule, error)
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	SetScheduleActive(ctx context.Context, id uint, active bool) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id uint) error
}

// JobControl arms and disarms schedules after the API changes them.
type JobControl interface {
	ArmSchedule(ctx context.Context, scheduleID, userID uint) error
	DisarmSchedule(scheduleID uint) int
	Jobs() []scheduler.JobInfo
}

// ContentGenerator produces post text on demand, outside any schedule.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (string, error)
}

// MonitoringReader exposes recorded firing errors and platform stats.
type MonitoringReader interface {
	GetRecentErrors(limit int) ([]models.ErrorLog, error)
	GetPlatformStats(days int) ([]models.PlatformStats, error)
}

type Server struct {
	Config *config.ServerConfig
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	store      Store
	scheduler  JobControl
	generator  ContentGenerator
	monitoring MonitoringReader
	auth       *service.AuthService
}

// NewServer wires the admin API. generator and monitoring may be nil, in which
// case their routes are not registered.
func NewServer(cfg *config.ServerConfig, store Store, sched JobControl, generator ContentGenerator, monitoring MonitoringReader, auth *service.AuthService, logger *zap.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	srv := &Server{
		Config:     cfg,
		Router:     gin.New(),
		Logger:     logger,
		store:      store,
		scheduler:  sched,
		generator:  generator,
		monitoring: monitoring,
		auth:       auth,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	srv.Server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Router,
	}

	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+service.TOTPHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	api.Use(s.auth.AuthMiddleware())
	{
		schedules := api.Group("/schedules")
		{
			schedules.GET("", s.handleListSchedules)
			schedules.POST("", s.handleCreateSchedule)
			schedules.PUT("/:id/toggle", s.handleToggleSchedule)
			schedules.DELETE("/:id", s.handleDeleteSchedule)
		}

		api.GET("/scheduler/jobs", s.handleListJobs)

		posts := api.Group("/posts")
		{
			posts.GET("", s.handleListPosts)
			if s.generator != nil {
				posts.POST("/generate", s.handleGeneratePost)
			}
		}

		knowledge := api.Group("/knowledge")
		{
			knowledge.GET("", s.handleListKnowledge)
			knowledge.POST("", s.handleCreateKnowledge)
			knowledge.DELETE("/:id", s.handleDeleteKnowledge)
		}

		if s.monitoring != nil {
			monitoring := api.Group("/monitoring")
			{
				monitoring.GET("/errors", s.handleRecentErrors)
				monitoring.GET("/stats", s.handlePlatformStats)
			}
		}
	}
}

type createScheduleRequest struct {
	UserID           uint             `json:"user_id" binding:"required"`
	Name             string           `json:"name" binding:"required"`
	Platform         models.Platform  `json:"platform" binding:"required"`
	Frequency        models.Frequency `json:"frequency_type" binding:"required"`
	FrequencyValue   *int             `json:"frequency_value"`
	TimeSlots        []string         `json:"time_slots"`
	UseTrendingData  bool             `json:"use_trending_data"`
	UseKnowledgeBase bool             `json:"use_knowledge_base"`
	ContentTemplate  string           `json:"content_template"`
	IsActive         *bool            `json:"is_active"`
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Frequency {
	case models.FrequencyHourly, models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyCustom:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown frequency_type %q", req.Frequency)})
		return
	}
	for _, raw := range req.TimeSlots {
		if _, err := recurrence.ParseSlot(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	schedule := &models.Schedule{
		UserID:           req.UserID,
		Name:             req.Name,
		Platform:         req.Platform,
		Frequency:        req.Frequency,
		FrequencyValue:   req.FrequencyValue,
		TimeSlots:        req.TimeSlots,
		IsActive:         req.IsActive == nil || *req.IsActive,
		UseTrendingData:  req.UseTrendingData,
		UseKnowledgeBase: req.UseKnowledgeBase,
		ContentTemplate:  req.ContentTemplate,
	}

	ctx := c.Request.Context()
	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		s.Logger.Error("Failed to create schedule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create schedule"})
		return
	}

	resp := gin.H{"schedule": schedule}
	if err := s.scheduler.ArmSchedule(ctx, schedule.ID, schedule.UserID); err != nil {
		// The row is stored either way; the caller sees why nothing was armed.
		s.Logger.Warn("Schedule created but not armed", zap.Uint("schedule_id", schedule.ID), zap.Error(err))
		resp["warning"] = err.Error()
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleListSchedules(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	schedules, err := s.store.ListSchedules(c.Request.Context(), userID)
	if err != nil {
		s.Logger.Error("Failed to list schedules", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list schedules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// toggleRequest sets the active flag explicitly. Without is_active the stored
// flag is flipped.
type toggleRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) handleToggleSchedule(c *gin.Context) {
	id, ok := pathID(c, "schedule")
	if !ok {
		return
	}
	var req toggleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	active := req.IsActive
	if active == nil {
		current, err := s.store.GetSchedule(ctx, id)
		if err != nil {
			s.respondStoreError(c, "toggle schedule", "Schedule", err)
			return
		}
		flipped := !current.IsActive
		active = &flipped
	}

	schedule, err := s.store.SetScheduleActive(ctx, id, *active)
	if err != nil {
		s.respondStoreError(c, "toggle schedule", "Schedule", err)
		return
	}

	resp := gin.H{"schedule": schedule}
	if schedule.IsActive {
		if err := s.scheduler.ArmSchedule(ctx, schedule.ID, schedule.UserID); err != nil {
			s.Logger.Warn("Schedule activated but not armed", zap.Uint("schedule_id", schedule.ID), zap.Error(err))
			resp["warning"] = err.Error()
		}
	} else {
		s.scheduler.DisarmSchedule(schedule.ID)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	id, ok := pathID(c, "schedule")
	if !ok {
		return
	}

	s.scheduler.DisarmSchedule(id)
	if err := s.store.DeleteSchedule(c.Request.Context(), id); err != nil {
		s.respondStoreError(c, "delete schedule", "Schedule", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.scheduler.Jobs()})
}

func (s *Server) handleListPosts(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	filter := storage.PostFilter{
		UserID:   userID,
		Status:   models.PostStatus(c.Query("status")),
		Platform: models.Platform(c.Query("platform")),
		Limit:    queryInt(c, "limit", 50, 500),
	}
	switch filter.Status {
	case "", models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusPosted, models.PostStatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", filter.Status)})
		return
	}

	posts, err := s.store.ListPosts(c.Request.Context(), filter)
	if err != nil {
		s.Logger.Error("Failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

type generateRequest struct {
	UserID           uint            `json:"user_id" binding:"required"`
	Platform         models.Platform `json:"platform" binding:"required"`
	UseKnowledgeBase *bool           `json:"use_knowledge_base"`
	UseTrending      *bool           `json:"use_trending"`
	CustomPrompt     string          `json:"custom_prompt"`
	Tone             string          `json:"tone"`
}

// handleGeneratePost returns generated text without storing or publishing it.
func (s *Server) handleGeneratePost(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := s.generator.Generate(c.Request.Context(), content.Request{
		UserID:           req.UserID,
		Platform:         req.Platform,
		UseKnowledgeBase: req.UseKnowledgeBase == nil || *req.UseKnowledgeBase,
		UseTrending:      req.UseTrending == nil || *req.UseTrending,
		Template:         req.CustomPrompt,
		Tone:             req.Tone,
	})
	if err != nil {
		s.Logger.Warn("On-demand generation failed", zap.Uint("user_id", req.UserID), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, content.ErrGenerationFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "Content generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"content": text, "platform": req.Platform})
}

func (s *Server) handleListKnowledge(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	docs, err := s.store.ListKnowledgeDocs(c.Request.Context(), userID)
	if err != nil {
		s.Logger.Error("Failed to list knowledge docs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list knowledge docs"})
		return
	}

	for i := range docs {
		docs[i].Content = util.Truncate(docs[i].Content, knowledgePreviewLen)
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type createKnowledgeRequest struct {
	UserID    uint     `json:"user_id" binding:"required"`
	Title     string   `json:"title" binding:"required"`
	Content   string   `json:"content" binding:"required"`
	SourceURL string   `json:"source_url"`
	Category  string   `json:"category"`
	Keywords  []string `json:"keywords"`
}

func (s *Server) handleCreateKnowledge(c *gin.Context) {
	var req createKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &models.KnowledgeDoc{
		UserID:    req.UserID,
		Title:     req.Title,
		Content:   req.Content,
		SourceURL: req.SourceURL,
		Category:  req.Category,
		Keywords:  models.StringArray(req.Keywords),
		IsActive:  true,
	}
	if doc.Keywords == nil {
		doc.Keywords = models.StringArray{}
	}
	if err := s.store.CreateKnowledgeDoc(c.Request.Context(), doc); err != nil {
		s.Logger.Error("Failed to create knowledge doc", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create knowledge doc"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": doc.ID, "document": doc})
}

func (s *Server) handleDeleteKnowledge(c *gin.Context) {
	id, ok := pathID(c, "document")
	if !ok {
		return
	}

	if err := s.store.DeleteKnowledgeDoc(c.Request.Context(), id); err != nil {
		s.respondStoreError(c, "delete knowledge doc", "Document", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (s *Server) handleRecentErrors(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 500)
	logs, err := s.monitoring.GetRecentErrors(limit)
	if err != nil {
		s.Logger.Error("Failed to get recent errors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recent errors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

func (s *Server) handlePlatformStats(c *gin.Context) {
	days := queryInt(c, "days", 7, 90)
	stats, err := s.monitoring.GetPlatformStats(days)
	if err != nil {
		s.Logger.Error("Failed to get platform stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get platform stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func (s *Server) respondStoreError(c *gin.Context, op, subject string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": subject + " not found"})
		return
	}
	s.Logger.Error("Failed to "+op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
}

func pathID(c *gin.Context, subject string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + subject + " id"})
		return 0, false
	}
	return uint(id), true
}

func queryUserID(c *gin.Context) (uint, bool) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return 0, false
	}
	return uint(userID), true
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.Logger.Info("Starting HTTP server", zap.String("addr", s.Server.Addr))

	var err error
	if s.Config.CertFile != "" && s.Config.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.CertFile, s.Config.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
