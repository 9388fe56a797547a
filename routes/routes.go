package routes

import (
	"net/http"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/handlers"
	customMiddleware "github.com/Madhav-Gupta-28/0xmart-reconciler/middleware"
	"github.com/labstack/echo/v4"
)

// SetupRoutes registers the operator surface. Everything under /admin needs
// an admin bearer token.
func SetupRoutes(e *echo.Echo, jwtSecret string, admin *handlers.AdminHandler, listener *handlers.ListenerHandler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", customMiddleware.PrometheusHandler())

	api := e.Group("/admin")
	api.Use(customMiddleware.AdminAuth(jwtSecret))

	// Reconciliation
	api.POST("/reconcile", admin.RunReconcile)
	api.GET("/reconcile/last", admin.LastReconcile)

	// Hash ledger
	api.GET("/ledger/:orderId/verify", admin.VerifyLedger)

	// Change listener
	api.GET("/listener/health", listener.Health)
	api.POST("/listener/restart", listener.RestartListener)
}
