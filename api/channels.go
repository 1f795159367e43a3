package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/server"
)

type addChannelBody struct {
	ID     string                       `json:"id" validate:"required,channel_id"`
	Name   string                       `json:"name" validate:"max=200"`
	Config *monitor.TranscriptionConfig `json:"transcription_config"`
}

type updateChannelBody struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *Handler) listChannels(c *gin.Context) {
	server.RespondOK(c, h.svc.ListChannels())
}

func (h *Handler) addChannel(c *gin.Context) {
	var body addChannelBody
	if !bindJSON(c, &body) {
		return
	}
	ch, err := h.svc.AddChannel(c.Request.Context(), body.ID, body.Name, body.Config)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondCreated(c, ch)
}

func (h *Handler) getChannel(c *gin.Context) {
	ch, err := h.svc.GetChannel(c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, ch)
}

func (h *Handler) updateChannel(c *gin.Context) {
	var body updateChannelBody
	if !bindJSON(c, &body) {
		return
	}
	ch, err := h.svc.EnableChannel(c.Param("id"), *body.Enabled)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, ch)
}

func (h *Handler) removeChannel(c *gin.Context) {
	if err := h.svc.RemoveChannel(c.Request.Context(), c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func (h *Handler) checkChannel(c *gin.Context) {
	videos, err := h.svc.CheckChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"channel_id": c.Param("id"), "new_videos": videos})
}

func (h *Handler) checkAllChannels(c *gin.Context) {
	found := h.svc.CheckAllChannels(c.Request.Context())
	total := 0
	for _, v := range found {
		total += len(v)
	}
	server.RespondOK(c, gin.H{"new_videos": found, "total": total})
}

func (h *Handler) listVideos(c *gin.Context) {
	if _, err := h.svc.GetChannel(c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, h.svc.ListVideos(c.Param("id")))
}

func (h *Handler) processingStatus(c *gin.Context) {
	server.RespondOK(c, h.svc.ProcessingStatus(c.Request.Context()))
}

func (h *Handler) cleanupFiles(c *gin.Context) {
	olderThan, ok := olderThanFrom(c, defaultFileMaxAge)
	if !ok {
		return
	}
	removed, err := h.svc.CleanupOldFiles(c.Request.Context(), olderThan)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"removed": removed, "older_than": olderThan.String()})
}
