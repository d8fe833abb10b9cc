package router

import (
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"tradetalk/internal/adapter/api/handler"
	"tradetalk/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, discussionHandler *handler.DiscussionHandler, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware, authClient *auth.Client) {
	SetupDiscussionRouter(e, discussionHandler, authMiddleware)
	SetupWebSocketRouter(e, wsHandler, authClient)
	SetupHealthRouter(e)
}
