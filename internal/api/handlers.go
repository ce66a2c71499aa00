package api

import (
	"net/http"

	"github.com/formpair/backend/internal/ingest"
	"github.com/formpair/backend/internal/session"
	"github.com/formpair/backend/internal/transform"
	"github.com/labstack/echo/v4"
)

// Handler handles API requests.
type Handler struct {
	sessions  *session.Manager
	ingestMgr *ingest.Manager
	renderer  transform.Invoker
	hub       *EventHub
}

// NewHandler creates a new API handler. renderer and hub may be nil; the
// render endpoint then reports the collaborator as unavailable and no
// events are pushed.
func NewHandler(sessions *session.Manager, ingestMgr *ingest.Manager, renderer transform.Invoker, hub *EventHub) *Handler {
	return &Handler{
		sessions:  sessions,
		ingestMgr: ingestMgr,
		renderer:  renderer,
		hub:       hub,
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Count(),
	})
}

// state resolves the :sessionId path parameter.
func (h *Handler) state(c echo.Context) (*session.State, *APIError) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}
	state, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return state, nil
}
