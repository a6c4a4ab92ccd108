package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

func TestNewClient_EmptyURL_ReturnsError(t *testing.T) {
	client, err := NewClient("", logging.NewNoOpLogger())
	assert.Nil(t, client)
	assert.EqualError(t, err, "redis URL is not set")
}

func TestNewClient_InvalidScheme_ReturnsParseError(t *testing.T) {
	client, err := NewClient("http://localhost:6379", logging.NewNoOpLogger())
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestNewClient_Unreachable_ReturnsConnectionError(t *testing.T) {
	logger := new(logging.MockLogger)
	logger.SetupDefaultExpectations()

	client, err := NewClient("redis://127.0.0.1:1/0", logger)
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
