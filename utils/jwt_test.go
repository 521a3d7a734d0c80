package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/config"
	"outreach/models"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	user := &models.User{TokenVersion: 3}
	user.ID = 42

	token, err := GenerateJWTToken(user)
	require.NoError(t, err)

	claims, err := ParseJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, 3, claims.TokenVersion)

	config.AppConfig.JWTSecret = "rotated"
	_, err = ParseJWTToken(token)
	assert.Error(t, err)
}
