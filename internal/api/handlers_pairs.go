// handlers_pairs.go - Completed-pair listing, selection and render handlers
package api

import (
	"encoding/base64"
	"net/http"

	"github.com/formpair/backend/internal/transform"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// HandleListPairs returns the completed pairs for a session in creation
// order, plus the pending-pool depth and the current selection.
func (h *Handler) HandleListPairs(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pairs":    state.Pairing.Pairs(),
		"pending":  state.Pairing.PendingCount(),
		"selected": state.Pairing.Selected(),
	})
}

// HandleListPairsMsgpack returns the pair listing msgpack-encoded for the
// canvas front end.
func (h *Handler) HandleListPairsMsgpack(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	data, err := msgpack.Marshal(map[string]interface{}{
		"pairs":    state.Pairing.Pairs(),
		"pending":  state.Pairing.PendingCount(),
		"selected": state.Pairing.Selected(),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetPair returns one pair including its base64 XML/XSL documents,
// the input for the external render step.
func (h *Handler) HandleGetPair(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	key := c.Param("key")
	pair, ok := state.Pairing.Get(key)
	if !ok {
		return NewNotFoundError("pair", key)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pair":    pair,
		"xmlData": base64.StdEncoding.EncodeToString(pair.XMLData),
		"xslData": base64.StdEncoding.EncodeToString(pair.XSLData),
	})
}

// HandleDeletePair removes a pair by key.
func (h *Handler) HandleDeletePair(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	key := c.Param("key")
	if !state.Pairing.Delete(key) {
		return NewNotFoundError("pair", key)
	}

	if h.hub != nil {
		h.hub.PairDeleted(state.ID, key)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetSelection returns the currently selected pair key.
func (h *Handler) HandleGetSelection(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, map[string]string{
		"selected": state.Pairing.Selected(),
	})
}

// HandleSetSelection makes the given pair the current selection.
func (h *Handler) HandleSetSelection(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Key == "" {
		return NewValidationError("key")
	}

	if err := state.Pairing.Select(req.Key); err != nil {
		return NewNotFoundError("pair", req.Key)
	}

	if h.hub != nil {
		h.hub.SelectionChanged(state.ID, req.Key)
	}
	return c.JSON(http.StatusOK, map[string]string{"selected": req.Key})
}

// HandleRenderPair hands a pair to the external transform collaborator and
// passes the returned markup through uninterpreted. A transform failure is
// a recoverable error state, not a session crash.
func (h *Handler) HandleRenderPair(c echo.Context) error {
	state, apiErr := h.state(c)
	if apiErr != nil {
		return apiErr
	}

	key := c.Param("key")
	pair, ok := state.Pairing.Get(key)
	if !ok {
		return NewNotFoundError("pair", key)
	}

	if h.renderer == nil {
		return NewServiceUnavailableError("no render collaborator configured")
	}

	markup, err := h.renderer.Render(c.Request().Context(), pair)
	if err != nil {
		if err == transform.ErrNotConfigured {
			return NewServiceUnavailableError("no render collaborator configured")
		}
		return NewInternalError("transform failed", err)
	}
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", markup)
}
