package jwttoken_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizdeck/internal/jwttoken"
	"quizdeck/pkg/domain"
)

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := jwttoken.NewJWTService("test-signing-key", "quizdeck", "quizdeck-api")
	userID := domain.UserID(uuid.New())

	token, err := svc.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc := jwttoken.NewJWTService("test-signing-key", "quizdeck", "quizdeck-api")

	token, err := svc.GenerateAccessToken(domain.UserID(uuid.New()), -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorContains(t, err, "expired")
}

func TestJWTService_RejectsWrongKey(t *testing.T) {
	issuing := jwttoken.NewJWTService("key-one", "quizdeck", "quizdeck-api")
	validating := jwttoken.NewJWTService("key-two", "quizdeck", "quizdeck-api")

	token, err := issuing.GenerateAccessToken(domain.UserID(uuid.New()), time.Hour)
	require.NoError(t, err)

	_, err = validating.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsGarbage(t *testing.T) {
	svc := jwttoken.NewJWTService("test-signing-key", "quizdeck", "quizdeck-api")

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		_, err := svc.ValidateToken(token)
		assert.Error(t, err, "token %q", token)
	}
}
