package router

import (
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"tradetalk/internal/adapter/api/handler"
)

// SetupWebSocketRouter mounts the live feed endpoint. Auth is optimistic here:
// the handler falls back to a query-parameter token for browser clients.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authClient *auth.Client) {
	e.GET("/ws", wsHandler.HandleWebSocket, VerifyToken(authClient))
}
