// handlers_ingest.go - Session lifecycle and drop-batch ingestion handlers
package api

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/formpair/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// HandleCreateSession creates a fresh pairing session.
func (h *Handler) HandleCreateSession(c echo.Context) error {
	state, err := h.sessions.Create()
	if err != nil {
		return NewServiceUnavailableError(err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":        state.ID,
		"createdAt": state.CreatedAt,
	})
}

// HandleDeleteSession drops a session and all of its pairing state.
func (h *Handler) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleIngest accepts one drop/selection batch and starts async processing.
func (h *Handler) HandleIngest(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.Sources) == 0 {
		return NewValidationError("sources")
	}

	sources := make([]models.RawSource, 0, len(req.Sources))
	for i, src := range req.Sources {
		if src.Name == "" {
			return NewValidationError(fmt.Sprintf("sources[%d].name", i))
		}
		decoded, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("invalid base64 data in sources[%d]", i), err)
		}
		sources = append(sources, models.RawSource{
			Name:         src.Name,
			RelativePath: src.RelativePath,
			LastModified: src.LastModified,
			ContentType:  src.ContentType,
			Data:         decoded,
		})
	}

	job := h.ingestMgr.StartJob(state.ID, state.Pipeline, sources)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleIngestJobStatus returns the status of an ingest job.
func (h *Handler) HandleIngestJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	job, ok := h.ingestMgr.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// Request types

type ingestSource struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath,omitempty"`
	LastModified int64  `json:"lastModified"`
	ContentType  string `json:"contentType,omitempty"`
	Data         string `json:"data"` // Base64-encoded content
}

type ingestRequest struct {
	Sources []ingestSource `json:"sources"`
}
