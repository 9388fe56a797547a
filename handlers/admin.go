package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/jobs"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/labstack/echo/v4"
)

type ReconcileRunner interface {
	Run(ctx context.Context) jobs.Summary
	LastSummary() *jobs.Summary
}

type AdminHandler struct {
	reconciler ReconcileRunner
	ledger     *LedgerSynchronizer
	timeout    time.Duration
}

func NewAdminHandler(reconciler ReconcileRunner, ledger *LedgerSynchronizer, timeout time.Duration) *AdminHandler {
	return &AdminHandler{reconciler: reconciler, ledger: ledger, timeout: timeout}
}

// RunReconcile triggers an out-of-schedule reconciliation and waits for it.
func (h *AdminHandler) RunReconcile(c echo.Context) error {
	// Detached from the request so a dropped connection does not cut a run
	// short between batches.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	summary := h.reconciler.Run(ctx)
	switch {
	case errors.Is(summary.Err, models.ErrRunInProgress):
		return c.JSON(http.StatusConflict, summary)
	case summary.Err != nil:
		return c.JSON(http.StatusInternalServerError, summary)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *AdminHandler) LastReconcile(c echo.Context) error {
	last := h.reconciler.LastSummary()
	if last == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No reconciliation has run yet"})
	}
	return c.JSON(http.StatusOK, last)
}

func (h *AdminHandler) VerifyLedger(c echo.Context) error {
	orderID := c.Param("orderId")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid order ID"})
	}

	result, err := h.ledger.Verify(c.Request().Context(), orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to verify ledger entry"})
	}
	return c.JSON(http.StatusOK, result)
}
