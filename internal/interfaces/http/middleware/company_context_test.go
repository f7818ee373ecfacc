package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService() *auth.TokenService {
	return auth.NewTokenService(config.JWTConfig{Secret: "middleware-test-secret", Issuer: "settlement-test"})
}

func companyRouter(tokens TokenValidator, captured *shared.CommandContext) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), CompanyContext(tokens, nil))
	router.GET("/whoami", func(c *gin.Context) {
		cc, ok := CommandContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*captured = cc
		c.Status(http.StatusOK)
	})
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestCompanyContext_ValidToken(t *testing.T) {
	tokens := newTokenService()
	companyID, actorID := uuid.New(), uuid.New()
	token, err := tokens.Issue(companyID, actorID, time.Hour)
	require.NoError(t, err)

	var cc shared.CommandContext
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	req.Header.Set("User-Agent", "allocctl/1.0")
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	companyRouter(tokens, &cc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, companyID, cc.CompanyID)
	assert.Equal(t, actorID, cc.ActorID)
	assert.Equal(t, "req-7", cc.RequestID)
	assert.Equal(t, "allocctl/1.0", cc.UserAgent)
	assert.NotEmpty(t, cc.IPAddress)
}

func TestCompanyContext_MissingToken(t *testing.T) {
	var cc shared.CommandContext
	w := httptest.NewRecorder()
	companyRouter(newTokenService(), &cc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenInvalid, errorCode(t, w))
}

func TestCompanyContext_ExpiredToken(t *testing.T) {
	tokens := newTokenService()
	token, err := tokens.Issue(uuid.New(), uuid.New(), -time.Minute)
	require.NoError(t, err)

	var cc shared.CommandContext
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	companyRouter(tokens, &cc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenExpired, errorCode(t, w))
}

func TestCompanyContext_ForeignSignature(t *testing.T) {
	other := auth.NewTokenService(config.JWTConfig{Secret: "someone-else", Issuer: "settlement-test"})
	token, err := other.Issue(uuid.New(), uuid.New(), time.Hour)
	require.NoError(t, err)

	var cc shared.CommandContext
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	companyRouter(newTokenService(), &cc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenInvalid, errorCode(t, w))
}

func TestGetCompanyID_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetCompanyID(c)
	assert.False(t, ok)

	c.Set(CompanyIDKey, uuid.Nil)
	_, ok = GetCompanyID(c)
	assert.False(t, ok)
}
