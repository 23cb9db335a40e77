package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyTokenReturnsSubject(t *testing.T) {
	Init("test-secret")

	token := signed(t, "test-secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest("GET", "/v1/files", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	userID, err := VerifyToken(r)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestVerifyTokenRejections(t *testing.T) {
	Init("test-secret")

	expired := signed(t, "test-secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signed(t, "other-secret", jwt.MapClaims{"sub": "user-42"})
	noSubject := signed(t, "test-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no subject", "Bearer " + noSubject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/files", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			_, err := VerifyToken(r)
			assert.Error(t, err)
		})
	}
}
