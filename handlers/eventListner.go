package handlers

import (
	"net/http"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/labstack/echo/v4"
)

// ListenerHandler exposes the order change listener to operators. The
// listener is nil when the store has no change streams (memory mode).
type ListenerHandler struct {
	listener *utils.OrderEventListener
}

func NewListenerHandler(listener *utils.OrderEventListener) *ListenerHandler {
	return &ListenerHandler{listener: listener}
}

func (h *ListenerHandler) Health(c echo.Context) error {
	if h.listener == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Listener not configured"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"health":  h.listener.GetHealth(),
		"metrics": h.listener.GetMetrics(),
	})
}

// RestartListener restarts the order change listener
func (h *ListenerHandler) RestartListener(c echo.Context) error {
	if h.listener == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Listener not initialized"})
	}
	err := h.listener.Restart()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "Listener restarted"})
}
