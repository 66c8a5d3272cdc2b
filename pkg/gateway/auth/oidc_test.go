package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Discard()
}

func userInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/userinfo", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Write([]byte(`{"sub":"user-1","email":"a@b.c"}`))
		case "Bearer anonymous":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOIDCAuthenticatorRequiresIssuerAndClient(t *testing.T) {
	_, err := NewOIDCAuthenticator("", "client", "")
	assert.Error(t, err)
	_, err = NewOIDCAuthenticator("https://issuer", "", "")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	srv := userInfoServer(t)
	a, err := NewOIDCAuthenticator(srv.URL+"/", "client", "secret")
	require.NoError(t, err)

	claims, err := a.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])

	_, err = a.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken(context.Background(), "anonymous")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
