package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Chat.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Call.DebounceWindow)
	assert.Equal(t, 20, cfg.Chat.PageSize)
	assert.False(t, cfg.Call.AutoIdleOnRemoteLeft)
	assert.Equal(t, time.Duration(0), cfg.Call.SetupTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL", "500ms")
	t.Setenv("RTC_ICE_SERVERS", "stun:a:3478, ,turn:b:3478")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Chat.PollInterval)
	assert.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.Media.ICEServers)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("CHAT_PAGE_SIZE", "500")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateProductionSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}
