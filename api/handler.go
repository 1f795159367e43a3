package api

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/server"
	"github.com/kbukum/whisper-subtitle/server/middleware"
	"github.com/kbukum/whisper-subtitle/service"
	"github.com/kbukum/whisper-subtitle/validation"
)

// Config configures the API routes.
type Config struct {
	// UploadDir holds multipart uploads while they are transcribed.
	UploadDir string `yaml:"upload_dir" mapstructure:"upload_dir"`
	// KeepUploads keeps uploaded files after a synchronous transcription.
	KeepUploads bool `yaml:"keep_uploads" mapstructure:"keep_uploads"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(os.TempDir(), "whisper-subtitle", "uploads")
	}
}

// Handler serves the API.
type Handler struct {
	svc *service.Service
	cfg Config
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *service.Service, cfg Config, log *logger.Logger) *Handler {
	cfg.ApplyDefaults()
	return &Handler{svc: svc, cfg: cfg, log: log.WithComponent("api")}
}

// Register mounts the routes under /api/v1. Extra middleware, such as auth
// and rate limiting, applies to every route in the group.
func (h *Handler) Register(r gin.IRouter, mw ...gin.HandlerFunc) *gin.RouterGroup {
	v1 := r.Group("/api/v1", mw...)

	v1.GET("/engines", h.listEngines)
	v1.GET("/engines/available", h.listAvailableEngines)
	v1.GET("/engines/:name", h.getEngine)
	v1.POST("/engines/:name/initialize", h.initializeEngine)

	v1.POST("/transcriptions", h.transcribe)
	v1.POST("/transcriptions/async", h.transcribeAsync)

	v1.GET("/tasks", h.listTasks)
	v1.GET("/tasks/stats", h.taskStats)
	v1.GET("/tasks/history", h.taskHistory)
	v1.POST("/tasks/cleanup", h.cleanupTasks)
	v1.GET("/tasks/:id", h.getTask)
	v1.DELETE("/tasks/:id", h.cancelTask)

	v1.GET("/channels", h.listChannels)
	v1.POST("/channels", h.addChannel)
	v1.POST("/channels/check", h.checkAllChannels)
	v1.GET("/channels/status", h.processingStatus)
	v1.GET("/channels/:id", h.getChannel)
	v1.PATCH("/channels/:id", h.updateChannel)
	v1.DELETE("/channels/:id", h.removeChannel)
	v1.POST("/channels/:id/check", h.checkChannel)
	v1.GET("/channels/:id/videos", h.listVideos)

	v1.POST("/files/cleanup", h.cleanupFiles)
	v1.POST("/subtitles/convert", h.convertSubtitle)
	return v1
}

// Middleware builds the /api group middleware from the auth and rate
// limit settings. A nil parser disables auth.
func Middleware(parser middleware.TokenParser, perMinute int) []gin.HandlerFunc {
	var mw []gin.HandlerFunc
	if perMinute > 0 {
		mw = append(mw, middleware.RateLimit(perMinute))
	}
	if parser != nil {
		mw = append(mw, middleware.Auth(parser))
	}
	return mw
}

// bindJSON decodes and validates the request body into dst.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", "malformed JSON: "+err.Error()))
		return false
	}
	if err := validation.Validate(dst); err != nil {
		server.RespondWithError(c, err)
		return false
	}
	return true
}
