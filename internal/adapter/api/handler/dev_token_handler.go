package handler

import (
	"github.com/labstack/echo/v4"

	"tradetalk/internal/infrastructure/firebase"
	"tradetalk/pkg/errors"
	"tradetalk/pkg/response"
)

// DevTokenHandler mints Firebase custom tokens for local development. Only
// mounted when the environment is "development".
type DevTokenHandler struct {
	firebaseAuth *firebase.AuthClient
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(firebaseAuth *firebase.AuthClient) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth: firebaseAuth,
	}
}

func SetupDevTokenHandler(firebaseAuth *firebase.AuthClient) {
	devTokenHandler = NewDevTokenHandler(firebaseAuth)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

// GenerateToken mints a custom token for the uid in the path.
func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return response.Error(c, errors.BadRequest("uid is required", nil))
	}

	token, err := h.firebaseAuth.GenerateToken(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{
		"uid":   uid,
		"token": token,
	})
}
