package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/usecase"
	"tradetalk/pkg/response"
	"tradetalk/pkg/utils"
)

type DiscussionHandler struct {
	discussionUC *usecase.DiscussionUseCase
}

func NewDiscussionHandler(discussionUC *usecase.DiscussionUseCase) *DiscussionHandler {
	return &DiscussionHandler{
		discussionUC: discussionUC,
	}
}

type startDiscussionRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=direct marketplace"`
	OtherID   string `json:"other_id"`
	ProductID string `json:"product_id"`
}

type sendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// StartDiscussion resolves or creates the discussion for the caller and the
// requested counterpart. Repeated calls return the same record.
func (h *DiscussionHandler) StartDiscussion(c echo.Context) error {
	var req startDiscussionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	discussion, err := h.discussionUC.StartDiscussion(c.Request().Context(), userID, usecase.StartDiscussionInput{
		Kind:      entity.DiscussionKind(req.Kind),
		OtherID:   req.OtherID,
		ProductID: req.ProductID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, discussion)
}

// ListDiscussions returns the caller's discussions, most recently active first.
func (h *DiscussionHandler) ListDiscussions(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c, 20)

	discussions, total, err := h.discussionUC.ListDiscussions(c.Request().Context(), userID, pagination.Limit, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, discussions, total, pagination.Limit, pagination.Offset)
}

func (h *DiscussionHandler) GetDiscussion(c echo.Context) error {
	discussionID := c.Param("id")
	userID := c.Get("uid").(string)

	discussion, err := h.discussionUC.GetDiscussion(c.Request().Context(), userID, discussionID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, discussion)
}

// SendMessage appends a message to the discussion.
func (h *DiscussionHandler) SendMessage(c echo.Context) error {
	discussionID := c.Param("id")
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.discussionUC.SendMessage(c.Request().Context(), discussionID, userID, req.Body)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages returns the ordered message history.
func (h *DiscussionHandler) GetMessages(c echo.Context) error {
	discussionID := c.Param("id")
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c, 50)

	messages, total, err := h.discussionUC.GetMessages(c.Request().Context(), userID, discussionID, pagination.Limit, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, pagination.Limit, pagination.Offset)
}

// MarkRead zeroes the caller's unread counter for the discussion.
func (h *DiscussionHandler) MarkRead(c echo.Context) error {
	discussionID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.discussionUC.MarkRead(c.Request().Context(), discussionID, userID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// MarkMessageRead flags a single message as read.
func (h *DiscussionHandler) MarkMessageRead(c echo.Context) error {
	discussionID := c.Param("id")
	messageID := c.Param("messageId")
	userID := c.Get("uid").(string)

	if err := h.discussionUC.MarkMessageRead(c.Request().Context(), userID, discussionID, messageID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}
