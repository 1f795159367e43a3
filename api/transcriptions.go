package api

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/server"
	"github.com/kbukum/whisper-subtitle/service"
	"github.com/kbukum/whisper-subtitle/validation"
)

type transcribeBody struct {
	FilePath     string `json:"file_path" validate:"required"`
	Engine       string `json:"engine"`
	Model        string `json:"model"`
	Language     string `json:"language" validate:"omitempty,max=16"`
	OutputFormat string `json:"output_format" validate:"omitempty,subtitle_format"`
}

func (b transcribeBody) request() service.TranscribeRequest {
	return service.TranscribeRequest{
		FilePath:     b.FilePath,
		Engine:       b.Engine,
		Model:        b.Model,
		Language:     b.Language,
		OutputFormat: b.OutputFormat,
	}
}

// readRequest accepts a multipart upload in the "file" field or a JSON
// body naming a server-side path. The returned upload path is non-empty
// when a file was stored.
func (h *Handler) readRequest(c *gin.Context) (service.TranscribeRequest, string, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var body transcribeBody
		if !bindJSON(c, &body) {
			return service.TranscribeRequest{}, "", false
		}
		return body.request(), "", true
	}

	body := transcribeBody{
		Engine:       c.PostForm("engine"),
		Model:        c.PostForm("model"),
		Language:     c.PostForm("language"),
		OutputFormat: c.PostForm("output_format"),
		FilePath:     "upload",
	}
	if err := validation.Validate(body); err != nil {
		server.RespondWithError(c, err)
		return service.TranscribeRequest{}, "", false
	}
	fh, err := c.FormFile("file")
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("file", "multipart field \"file\" is required"))
		return service.TranscribeRequest{}, "", false
	}
	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		server.RespondWithError(c, errors.Internal(fmt.Errorf("create upload dir: %w", err)))
		return service.TranscribeRequest{}, "", false
	}
	dst := filepath.Join(h.cfg.UploadDir, uuid.NewString()+filepath.Ext(filepath.Base(fh.Filename)))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		server.RespondWithError(c, errors.Internal(fmt.Errorf("store upload: %w", err)))
		return service.TranscribeRequest{}, "", false
	}
	h.log.Debug("upload stored", logger.Fields("name", fh.Filename, "size", fh.Size, "path", dst))
	body.FilePath = dst
	return body.request(), dst, true
}

func (h *Handler) transcribe(c *gin.Context) {
	req, upload, ok := h.readRequest(c)
	if !ok {
		return
	}
	if upload != "" && !h.cfg.KeepUploads {
		defer os.Remove(upload)
	}
	res, err := h.svc.TranscribeFile(c.Request.Context(), req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if !res.Success {
		server.RespondWithError(c, errors.ExternalServiceError(res.Engine, stderrors.New(res.Error)).
			WithDetail("error", res.Error))
		return
	}
	server.RespondOK(c, res)
}

func (h *Handler) transcribeAsync(c *gin.Context) {
	// uploads outlive the request here; the file stays for the task
	req, _, ok := h.readRequest(c)
	if !ok {
		return
	}
	id, err := h.svc.SubmitTranscription(c.Request.Context(), req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Header("Location", "/api/v1/tasks/"+id)
	server.RespondAccepted(c, gin.H{"task_id": id, "status": "pending"})
}
