package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"tradetalk/internal/adapter/api/middleware"
	ws "tradetalk/internal/infrastructure/websocket"
	"tradetalk/pkg/errors"
	"tradetalk/pkg/logger"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to known frontend origins before exposing publicly
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket upgrades the connection and attaches it to the manager.
// Browsers cannot set headers on WebSocket dials, so the token may arrive as
// a query parameter instead of a Bearer header.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		token := c.QueryParam("token")
		if token == "" {
			return response401(c)
		}

		uid, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
		if err != nil {
			logger.Warn("WebSocket: token verification failed: %v", err)
			return response401(c)
		}
		userID = uid
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := h.wsManager.NewClient(userID, conn)
	h.wsManager.Register <- client

	go client.ReadPump(h.wsManager)
	go client.WritePump()

	return nil
}

func response401(c echo.Context) error {
	return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
}
