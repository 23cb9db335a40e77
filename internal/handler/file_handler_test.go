package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitdrive/internal/auth"
)

func bearerToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestUploadFileRejectsOversizedBody(t *testing.T) {
	auth.Init("test-secret")
	// The size check fires before the body is touched, so the handler needs
	// no backing service.
	h := NewFileHandler(nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/files", nil)
	r.Header.Set("Authorization", bearerToken(t, "test-secret", "u1"))
	r.ContentLength = maxUploadBytes + 1

	w := httptest.NewRecorder()
	h.UploadFile(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadFileRejectsMissingToken(t *testing.T) {
	auth.Init("test-secret")
	h := NewFileHandler(nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/files", nil)
	w := httptest.NewRecorder()
	h.UploadFile(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
