package database

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestHealthCheck_TogglesDegradedMode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := &RedisClient{Client: db}

	mock.ExpectPing().SetErr(assert.AnError)
	mock.ExpectPing().SetVal("PONG")

	assert.Error(t, r.HealthCheck(context.Background()))
	assert.True(t, r.IsDegraded())

	assert.NoError(t, r.HealthCheck(context.Background()))
	assert.False(t, r.IsDegraded())
	assert.NoError(t, mock.ExpectationsWereMet())
}
