package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"consultline/pkg/jwt"
	"consultline/pkg/logger"
	"consultline/pkg/response"
)

// Handler mints bearer tokens for local development. There are no accounts;
// any user id is accepted.
type Handler struct {
	tokens *jwt.JWTManager
}

// NewHandler creates a new dev token handler
func NewHandler(tokens *jwt.JWTManager) *Handler {
	return &Handler{
		tokens: tokens,
	}
}

// TokenRequest represents a dev token request body
type TokenRequest struct {
	UserID string `json:"userId" binding:"required,max=64"`
	Name   string `json:"name" binding:"max=100"`
}

// TokenResponse carries the minted access token
type TokenResponse struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

// IssueToken mints an access token for the requested user
// POST /dev/token
func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token, err := h.tokens.GenerateAccessToken(req.UserID, req.Name)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to mint token", zap.Error(err))
		response.InternalError(c, "Failed to issue token")
		return
	}

	response.Success(c, http.StatusCreated, TokenResponse{UserID: req.UserID, AccessToken: token})
}
