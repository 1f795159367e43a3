package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/server"
)

func (h *Handler) listEngines(c *gin.Context) {
	server.RespondOK(c, h.svc.ListEngines(c.Request.Context()))
}

func (h *Handler) listAvailableEngines(c *gin.Context) {
	server.RespondOK(c, h.svc.ListAvailableEngines(c.Request.Context()))
}

func (h *Handler) getEngine(c *gin.Context) {
	d, err := h.svc.DescribeEngine(c.Request.Context(), c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, d)
}

func (h *Handler) initializeEngine(c *gin.Context) {
	id, err := h.svc.InitializeEngine(c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Header("Location", "/api/v1/tasks/"+id)
	server.RespondAccepted(c, gin.H{"task_id": id, "status": "pending"})
}
