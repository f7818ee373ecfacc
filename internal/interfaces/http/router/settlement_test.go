package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type settlementServer struct {
	engine *gin.Engine
	tokens *auth.TokenService
}

func newSettlementServer(t *testing.T, readiness handler.Pinger) *settlementServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })

	repos := persistence.NewRepositorySet(db)
	scope := persistence.NewGormTransactionScope(db)
	log := zap.NewNop()
	allocations := appfinance.NewAllocationService(repos, scope, log)
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "router-test-secret", Issuer: "settlement"})

	engine := NewEngine(EngineConfig{ServiceName: "settlement", Logger: log, Tokens: tokens}, Handlers{
		Documents:   handler.NewDocumentHandler(appfinance.NewDocumentService(repos, scope, log)),
		Payments:    handler.NewPaymentHandler(appfinance.NewPaymentService(repos, scope, log), allocations),
		CreditNotes: handler.NewCreditNoteHandler(appfinance.NewCreditNoteService(repos, scope, allocations, log)),
		Allocations: handler.NewAllocationHandler(allocations),
		System:      handler.NewSystemHandler("settlement", "test", map[string]handler.Pinger{"database": readiness}),
	})
	return &settlementServer{engine: engine, tokens: tokens}
}

func (s *settlementServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func healthy(context.Context) error { return nil }

func TestNewEngine_HealthProbesAreUnauthenticated(t *testing.T) {
	s := newSettlementServer(t, handler.PingFunc(healthy))

	w := s.request(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = s.request(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_ReadinessFailure(t *testing.T) {
	s := newSettlementServer(t, handler.PingFunc(func(context.Context) error { return errors.New("down") }))

	w := s.request(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewEngine_APIRequiresBearerToken(t *testing.T) {
	s := newSettlementServer(t, handler.PingFunc(healthy))

	w := s.request(t, http.MethodGet, "/api/v1/allocations/strategies", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := s.tokens.Issue(uuid.New(), uuid.New(), time.Minute)
	require.NoError(t, err)
	w = s.request(t, http.MethodGet, "/api/v1/allocations/strategies", token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNewEngine_CompanyIsolation(t *testing.T) {
	s := newSettlementServer(t, handler.PingFunc(healthy))
	owner, err := s.tokens.Issue(uuid.New(), uuid.New(), time.Minute)
	require.NoError(t, err)
	stranger, err := s.tokens.Issue(uuid.New(), uuid.New(), time.Minute)
	require.NoError(t, err)

	w := s.request(t, http.MethodPost, "/api/v1/payments", owner, map[string]any{
		"payment_number": "PAY-ISO",
		"counterpart_id": uuid.NewString(),
		"amount":         "12.00",
		"method":         "cash",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data appfinance.PaymentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = s.request(t, http.MethodGet, "/api/v1/payments/"+created.Data.ID.String(), owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.request(t, http.MethodGet, "/api/v1/payments/"+created.Data.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewEngine_OversizedBody(t *testing.T) {
	s := newSettlementServer(t, handler.PingFunc(healthy))
	token, err := s.tokens.Issue(uuid.New(), uuid.New(), time.Minute)
	require.NoError(t, err)

	notes := bytes.Repeat([]byte("x"), int(DefaultMaxBodyBytes)+1)
	w := s.request(t, http.MethodPost, "/api/v1/allocations", token, map[string]any{"notes": string(notes)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
