package middleware

import (
	"net/http"
	"strings"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/labstack/echo/v4"
)

// AdminAuth accepts only bearer tokens signed with secret that carry the
// admin role.
func AdminAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Admin API disabled"})
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing authorization header"})
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid authorization header format"})
			}

			claims, err := utils.ValidateJWT(secret, tokenParts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			}
			if claims.Role != utils.AdminRole {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Admin role required"})
			}

			c.Set("operator", claims.Subject)
			return next(c)
		}
	}
}
