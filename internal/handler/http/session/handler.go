package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultline/internal/devstore"
	"consultline/internal/domain"
	"consultline/internal/middleware"
	"consultline/pkg/constants"
	"consultline/pkg/errors"
	"consultline/pkg/jwt"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
	"consultline/pkg/response"
)

// CallLog records a finished call in the participants' conversation
type CallLog interface {
	Append(conversationID string, sender domain.Sender, content string, msgType domain.MessageType) domain.Message
}

// Handler issues and ends call sessions
type Handler struct {
	sessions devstore.SessionStore
	wallet   devstore.Wallet
	callLog  CallLog
	tokens   *jwt.JWTManager
	metrics  *metrics.Metrics
	callCost int
	now      func() time.Time
}

// NewHandler creates a new session handler. callLog may be nil.
func NewHandler(sessions devstore.SessionStore, wallet devstore.Wallet, callLog CallLog, tokens *jwt.JWTManager, m *metrics.Metrics, callCost int) *Handler {
	return &Handler{
		sessions: sessions,
		wallet:   wallet,
		callLog:  callLog,
		tokens:   tokens,
		metrics:  m,
		callCost: callCost,
		now:      time.Now,
	}
}

// Start charges the caller and issues a session with a channel-scoped rtc token
// POST /communication/session/start
func (h *Handler) Start(c *gin.Context) {
	var req domain.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordSessionRejected("validation")
		response.SessionFail(c, http.StatusBadRequest, string(errors.ErrCodeValidation), err.Error())
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	callerID := middleware.UserID(c)

	if req.RemotePartyID == callerID {
		h.metrics.RecordSessionRejected("party_unavailable")
		response.SessionFromError(c, errors.PartyUnavailableError("Cannot call yourself"))
		return
	}

	if _, err := h.wallet.Charge(ctx, callerID, h.callCost); err != nil {
		if errors.IsInsufficientBalance(err) {
			h.metrics.RecordSessionRejected("insufficient_balance")
			log.Info("Session refused for balance", zap.String("user_id", callerID))
			response.SessionFromError(c, err)
			return
		}
		log.Error("Failed to charge wallet", zap.String("user_id", callerID), zap.Error(err))
		response.SessionFail(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Failed to start call session")
		return
	}

	id := uuid.New().String()
	rec := &devstore.SessionRecord{
		ID:            id,
		CallerID:      callerID,
		RemotePartyID: req.RemotePartyID,
		ChannelName:   "call-" + id,
		CallType:      req.Type,
		CreatedAt:     h.now().UTC(),
	}

	token, err := h.tokens.GenerateRTCToken(callerID, rec.ChannelName)
	if err != nil {
		h.refund(c, callerID)
		log.Error("Failed to issue rtc token", zap.Error(err))
		response.SessionFail(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Failed to start call session")
		return
	}

	if err := h.sessions.Save(ctx, rec, constants.MaxCallDuration); err != nil {
		h.refund(c, callerID)
		log.Error("Failed to save session", zap.String("session_id", id), zap.Error(err))
		response.SessionFail(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Failed to start call session")
		return
	}

	h.metrics.RecordSessionStarted(string(req.Type))
	log.Info("Session started",
		zap.String("session_id", id),
		zap.String("caller_id", callerID),
		zap.String("remote_party_id", req.RemotePartyID),
		zap.String("type", string(req.Type)))

	response.SessionOK(c, domain.CallSession{
		SessionID:   id,
		ChannelName: rec.ChannelName,
		RTCToken:    token,
		CallType:    req.Type,
	})
}

// Join admits the called party to a session's channel with its own rtc token
// POST /communication/session/join
func (h *Handler) Join(c *gin.Context) {
	var req domain.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SessionFail(c, http.StatusBadRequest, string(errors.ErrCodeValidation), err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	rec, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		response.SessionFromError(c, err)
		return
	}
	if rec.RemotePartyID != userID {
		response.SessionFail(c, http.StatusForbidden, string(errors.ErrCodeForbidden), "Only the called party can join this session")
		return
	}

	token, err := h.tokens.GenerateRTCToken(userID, rec.ChannelName)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to issue rtc token", zap.Error(err))
		response.SessionFail(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Failed to join call session")
		return
	}

	logger.FromContext(ctx).Info("Session joined",
		zap.String("session_id", rec.ID),
		zap.String("user_id", userID))

	response.SessionOK(c, domain.CallSession{
		SessionID:   rec.ID,
		ChannelName: rec.ChannelName,
		RTCToken:    token,
		CallType:    rec.CallType,
		CallerID:    rec.CallerID,
	})
}

// End releases a session and logs the call in the direct conversation
// POST /communication/session/end
func (h *Handler) End(c *gin.Context) {
	var req domain.EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SessionFail(c, http.StatusBadRequest, string(errors.ErrCodeValidation), err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	rec, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		response.SessionFromError(c, err)
		return
	}
	if rec.CallerID != userID && rec.RemotePartyID != userID {
		response.SessionFail(c, http.StatusForbidden, string(errors.ErrCodeForbidden), "Not a participant of this session")
		return
	}

	if err := h.sessions.Delete(ctx, rec); err != nil {
		logger.FromContext(ctx).Error("Failed to delete session", zap.String("session_id", rec.ID), zap.Error(err))
		response.SessionFail(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Failed to end call session")
		return
	}
	h.metrics.RecordSessionEnded()

	if h.callLog != nil {
		h.callLog.Append(
			domain.DirectConversationID(rec.CallerID, rec.RemotePartyID),
			domain.Sender{ID: rec.CallerID},
			callSummary(rec.CallType, h.now().Sub(rec.CreatedAt)),
			domain.MessageTypeCallLog,
		)
	}

	response.Raw(c, http.StatusOK, response.SessionEnvelope{OK: true})
}

func (h *Handler) refund(c *gin.Context, userID string) {
	if _, err := h.wallet.TopUp(c.Request.Context(), userID, h.callCost); err != nil {
		logger.FromContext(c.Request.Context()).Warn("Failed to refund call cost", zap.String("user_id", userID), zap.Error(err))
	}
}

func callSummary(t domain.CallType, d time.Duration) string {
	kind := "Voice"
	if t.WantsVideo() {
		kind = "Video"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%s call ended (%02d:%02d)", kind, int(d.Minutes()), int(d.Seconds())%60)
}
