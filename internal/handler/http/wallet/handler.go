package wallet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"consultline/internal/devstore"
	"consultline/internal/middleware"
	"consultline/pkg/logger"
	"consultline/pkg/response"
)

// Handler exposes the caller's call balance
type Handler struct {
	wallet devstore.Wallet
}

// NewHandler creates a new wallet handler
func NewHandler(wallet devstore.Wallet) *Handler {
	return &Handler{wallet: wallet}
}

// RechargeRequest represents a top-up request body
type RechargeRequest struct {
	Amount int `json:"amount" binding:"required,gt=0,lte=100000"`
}

// BalanceResponse is returned by both endpoints
type BalanceResponse struct {
	Balance int `json:"balance"`
}

// Balance returns the caller's balance
// GET /wallet/balance
func (h *Handler) Balance(c *gin.Context) {
	b, err := h.wallet.Balance(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to read balance", zap.Error(err))
		response.InternalError(c, "Failed to read balance")
		return
	}
	response.Success(c, http.StatusOK, BalanceResponse{Balance: b})
}

// Recharge credits the caller's balance
// POST /wallet/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	b, err := h.wallet.TopUp(c.Request.Context(), middleware.UserID(c), req.Amount)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to top up", zap.Error(err))
		response.InternalError(c, "Failed to recharge")
		return
	}
	response.Success(c, http.StatusOK, BalanceResponse{Balance: b})
}
