package router

import (
	"github.com/labstack/echo/v4"

	"tradetalk/internal/adapter/api/handler"
	"tradetalk/internal/adapter/api/middleware"
)

// SetupDiscussionRouter mounts the discussion REST surface.
func SetupDiscussionRouter(e *echo.Echo, discussionHandler *handler.DiscussionHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/discussions")
	group.Use(authMiddleware.Authenticate)

	group.POST("", discussionHandler.StartDiscussion)  // POST /v1/discussions - resolve or create
	group.GET("", discussionHandler.ListDiscussions)   // GET /v1/discussions - caller's discussions
	group.GET("/:id", discussionHandler.GetDiscussion) // GET /v1/discussions/:id
	group.PUT("/:id/read", discussionHandler.MarkRead) // PUT /v1/discussions/:id/read

	group.POST("/:id/messages", discussionHandler.SendMessage) // POST /v1/discussions/:id/messages
	group.GET("/:id/messages", discussionHandler.GetMessages)  // GET /v1/discussions/:id/messages
	group.PUT("/:id/messages/:messageId/read", discussionHandler.MarkMessageRead)
}
