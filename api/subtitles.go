package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/server"
)

type convertBody struct {
	Content string `json:"content" validate:"required"`
	From    string `json:"from" validate:"required,subtitle_format"`
	To      string `json:"to" validate:"required,subtitle_format"`
}

func (h *Handler) convertSubtitle(c *gin.Context) {
	var body convertBody
	if !bindJSON(c, &body) {
		return
	}
	out, err := h.svc.ConvertSubtitle(body.Content, body.From, body.To)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"format": body.To, "content": out})
}
