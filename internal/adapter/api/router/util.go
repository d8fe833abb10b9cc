package router

import (
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

// VerifyToken sets the caller's uid when a valid Bearer token is present but
// lets the request through either way; the handler decides what anonymous
// access means.
func VerifyToken(authClient *auth.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return next(c)
			}

			firebaseToken, err := authClient.VerifyIDToken(c.Request().Context(), parts[1])
			if err != nil {
				return next(c)
			}

			c.Set("uid", firebaseToken.UID)

			return next(c)
		}
	}
}
