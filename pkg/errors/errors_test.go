package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionErrorDefaults(t *testing.T) {
	err := SessionError("", "", http.StatusBadGateway)
	assert.Equal(t, ErrCodeSession, err.Code)
	assert.Equal(t, "Failed to start call session", err.Message)

	err = SessionError("INSUFFICIENT_BALANCE", "top up", http.StatusPaymentRequired)
	assert.True(t, IsInsufficientBalance(err))
	assert.Equal(t, http.StatusPaymentRequired, err.StatusCode)
}

func TestIsCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("starting call: %w", InsufficientBalanceError("no credit"))
	assert.True(t, IsCode(wrapped, ErrCodeInsufficientBalance))
	assert.Equal(t, ErrCodeInsufficientBalance, CodeOf(wrapped))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeInsufficientBalance))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestGetAppError(t *testing.T) {
	app := GetAppError(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, app.Code)
	assert.Equal(t, http.StatusInternalServerError, app.StatusCode)

	cause := fmt.Errorf("dial tcp: refused")
	te := TransportError("join failed", cause)
	assert.ErrorIs(t, te, cause)
	assert.Contains(t, te.Error(), "TRANSPORT_ERROR")
}
