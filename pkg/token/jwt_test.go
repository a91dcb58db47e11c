package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_AccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	tok, err := m.GenerateToken(42, "jane@psvpec.in", "USER")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "jane@psvpec.in", claims.Email)
	assert.Equal(t, "USER", claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestJWTManager_KindsAreNotInterchangeable(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	access, err := m.GenerateToken(1, "a@psvpec.in", "USER")
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken(1, "a@psvpec.in", "USER")
	require.NoError(t, err)

	_, err = m.VerifyToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := m.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
}

func TestJWTManager_RejectsForeignSignature(t *testing.T) {
	tok, err := NewJWTManager("other", 1, 7).GenerateToken(1, "a@psvpec.in", "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1, 7).VerifyToken(tok)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)
	claims := CustomClaims{
		UserID: 1,
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
