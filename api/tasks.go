package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/server"
	"github.com/kbukum/whisper-subtitle/validation"
)

const (
	defaultTaskLimit   = 100
	defaultRetention   = 7 * 24 * time.Hour
	defaultFileMaxAge  = 30 * 24 * time.Hour
	maxHistoryPageSize = 500
)

type cleanupBody struct {
	OlderThan string `json:"older_than"`
}

func (h *Handler) listTasks(c *gin.Context) {
	v := validation.New()
	limit := v.Int("limit", c.Query("limit"), defaultTaskLimit)
	v.Range("limit", limit, 1, 10000)
	if err := v.Validate(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	tasks, err := h.svc.ListTasks(c.Query("status"), limit)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOKWithMeta(c, tasks, &server.Meta{Total: int64(len(tasks)), Limit: limit})
}

func (h *Handler) taskStats(c *gin.Context) {
	server.RespondOK(c, h.svc.TaskStats())
}

func (h *Handler) getTask(c *gin.Context) {
	t, err := h.svc.GetTask(c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, t)
}

func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.svc.CancelTask(c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"task_id": c.Param("id"), "status": "cancelled"})
}

func (h *Handler) cleanupTasks(c *gin.Context) {
	olderThan, ok := olderThanFrom(c, defaultRetention)
	if !ok {
		return
	}
	removed := h.svc.CleanupTasks(c.Request.Context(), olderThan)
	server.RespondOK(c, gin.H{"removed": removed, "older_than": olderThan.String()})
}

func (h *Handler) taskHistory(c *gin.Context) {
	v := validation.New()
	limit := v.Int("limit", c.Query("limit"), 50)
	offset := v.Int("offset", c.Query("offset"), 0)
	v.Range("limit", limit, 1, maxHistoryPageSize)
	v.Custom(offset >= 0, "offset", "must not be negative")
	if err := v.Validate(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	records, total, err := h.svc.TaskHistory(c.Request.Context(), c.Query("status"), c.Query("kind"), limit, offset)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOKWithMeta(c, records, &server.Meta{Total: total, Limit: limit, Offset: offset})
}

// olderThanFrom reads an optional {"older_than": "7d"} body.
func olderThanFrom(c *gin.Context, def time.Duration) (time.Duration, bool) {
	var body cleanupBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			server.RespondWithError(c, errors.InvalidInput("body", "malformed JSON: "+err.Error()))
			return 0, false
		}
	}
	v := validation.New()
	d := v.Duration("older_than", body.OlderThan, def)
	if err := v.Validate(); err != nil {
		server.RespondWithError(c, err)
		return 0, false
	}
	return d, true
}
