package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/OpenInverterCore/internal/config"
)

// fastHasher keeps tests quick; production parameters live in NewKeyHasher.
func fastHasher() *KeyHasher {
	return &KeyHasher{memory: 1024, iterations: 1, parallelism: 1, saltLength: 16, keyLength: 32}
}

func TestKeyHasher(t *testing.T) {
	h := fastHasher()
	hash, err := h.Hash("secret")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.Verify("secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Secret", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("secret", "plain")
	assert.Error(t, err)
}

func TestAPIKeyFormat(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, ValidAPIKeyFormat(key))
	assert.Len(t, APIKeyID(key), 36)

	assert.False(t, ValidAPIKeyFormat("oic_short"))
	assert.Equal(t, "", APIKeyID("nope"))
}

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWTHandler("0123456789abcdef0123456789abcdef", time.Minute)
	token, expires, err := j.GenerateAccessToken("key-1", ScopeRead)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := j.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "key-1", claims.Subject)
	assert.True(t, claims.HasScope(ScopeRead))
	assert.False(t, claims.HasScope(ScopeWrite))

	other := NewJWTHandler("another-secret-another-secret-123", time.Minute)
	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)

	j.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = j.ValidateAccessToken(token)
	assert.Error(t, err, "expired")
}

func TestIssueToken(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	hash, err := fastHasher().Hash(key)
	require.NoError(t, err)

	a := NewAuthService(config.AuthConfig{JWTSecretEnv: "AUTH_TEST_SECRET", APIKeyHash: hash}, zaptest.NewLogger(t))

	token, _, err := a.IssueToken(key, "127.0.0.1")
	require.NoError(t, err)
	claims, err := a.JWT().ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasScope(ScopeWrite))
	assert.Equal(t, APIKeyID(key), claims.Subject)

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	_, _, err = a.IssueToken(other, "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	none := NewAuthService(config.AuthConfig{}, zaptest.NewLogger(t))
	_, _, err = none.IssueToken(key, "127.0.0.1")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := NewJWTHandler("0123456789abcdef0123456789abcdef", time.Minute)

	router := gin.New()
	router.POST("/write", Middleware(j), RequireScope(ScopeWrite), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer abc").Code)

	readOnly, _, err := j.GenerateAccessToken("reader", ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+readOnly).Code)

	writer, _, err := j.GenerateAccessToken("writer", ScopeRead, ScopeWrite)
	require.NoError(t, err)
	w := do("Bearer " + writer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "writer", w.Body.String())
}
