package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

const principalContextKey = "principal"

// RequireToken authenticates requests carrying "Authorization: Bearer <token>"
// and stores the verified principal on the context.
func (h *Handlers) RequireToken() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, c echo.Context) (bool, error) {
			p, err := h.identity.Verify(token)
			if err != nil {
				return false, err
			}
			c.Set(principalContextKey, p)
			return true, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			message := "missing or invalid bearer token"
			if errors.Is(err, identity.ErrTokenExpired) {
				message = "token expired"
			}
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   models.ErrorAuth,
				Message: message,
				Code:    http.StatusUnauthorized,
			})
		},
	})
}

// RequireAdmin must run after RequireToken.
func (h *Handlers) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := principalFrom(c)
		if !ok || !p.IsAdmin() {
			return c.JSON(http.StatusForbidden, models.ErrorResponse{
				Error:   models.ErrorForbidden,
				Message: "admin role required",
				Code:    http.StatusForbidden,
			})
		}
		return next(c)
	}
}

func principalFrom(c echo.Context) (identity.Principal, bool) {
	p, ok := c.Get(principalContextKey).(identity.Principal)
	return p, ok
}
