package middleware

import (
	"net/http"
	"strings"

	"github.com/jonlee90/thepuppyday-sub014/core/cache"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/utils"

	"github.com/labstack/echo/v4"
)

const ContextKeyAdminID = "admin_id"

type Middleware struct {
	cache cache.Cache
}

func NewMiddleware(c cache.Cache) *Middleware {
	return &Middleware{cache: c}
}

// AuthMiddleware validates the bearer token and stores the admin id on the
// echo context under ContextKeyAdminID.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, string(errors.ErrMissingAuthorizationHeader))
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, string(errors.ErrInvalidTokenFormat))
			}
			token := parts[1]

			blacklisted, err := m.cache.IsTokenBlacklisted(c.Request().Context(), token)
			if err != nil {
				logger.Error("Middleware:Auth:IsTokenBlacklisted:Error", "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "auth check failed")
			}
			if blacklisted {
				return echo.NewHTTPError(http.StatusUnauthorized, string(errors.ErrUnauthorized))
			}

			claims, err := utils.ValidateAndParseToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, string(errors.ErrTokenExpired))
			}

			c.Set(ContextKeyAdminID, claims.AdminID)
			return next(c)
		}
	}
}
