package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testAPI serves the settlement handlers over an in-memory sqlite ledger
type testAPI struct {
	t         *testing.T
	engine    *gin.Engine
	companyID uuid.UUID
	actorID   uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
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
	documents := appfinance.NewDocumentService(repos, scope, log)
	payments := appfinance.NewPaymentService(repos, scope, log)
	creditNotes := appfinance.NewCreditNoteService(repos, scope, allocations, log)

	api := &testAPI{t: t, companyID: uuid.New(), actorID: uuid.New()}
	middleware.SetupValidator()
	engine := gin.New()
	engine.Use(middleware.RequestID())
	v1 := engine.Group("/api/v1")
	v1.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Anonymous") == "" {
			c.Set(middleware.CompanyIDKey, api.companyID)
			c.Set(middleware.ActorIDKey, api.actorID)
		}
		c.Next()
	})

	dh := NewDocumentHandler(documents)
	v1.POST("/documents", dh.CreateDocument)
	v1.GET("/documents", dh.ListDocuments)
	v1.GET("/documents/:id", dh.GetDocument)
	v1.PUT("/documents/:id/lines", dh.ReplaceLines)
	v1.POST("/documents/:id/submit", dh.SubmitDocument)
	v1.POST("/documents/:id/approve", dh.ApproveDocument)
	v1.POST("/documents/:id/reject", dh.RejectDocument)
	v1.POST("/documents/:id/post", dh.PostDocument)
	v1.POST("/documents/:id/cancel", dh.CancelDocument)
	v1.GET("/documents/:id/tax-components", dh.GetTaxComponents)

	ph := NewPaymentHandler(payments, allocations)
	v1.POST("/payments", ph.RegisterPayment)
	v1.GET("/payments", ph.ListPayments)
	v1.GET("/payments/:id", ph.GetPayment)
	v1.POST("/payments/:id/void", ph.VoidPayment)
	v1.GET("/payments/:id/summary", ph.GetPaymentSummary)

	ch := NewCreditNoteHandler(creditNotes)
	v1.POST("/credit-notes", ch.CreateCreditNote)
	v1.GET("/credit-notes", ch.ListCreditNotes)
	v1.GET("/credit-notes/statistics", ch.GetCreditNoteStatistics)
	v1.GET("/credit-notes/:id", ch.GetCreditNote)
	v1.POST("/credit-notes/:id/post", ch.PostCreditNote)
	v1.POST("/credit-notes/:id/apply", ch.ApplyCreditNote)
	v1.POST("/credit-notes/:id/cancel", ch.CancelCreditNote)

	ah := NewAllocationHandler(allocations)
	v1.POST("/allocations", ah.Allocate)
	v1.POST("/allocations/preview", ah.PreviewAllocation)
	v1.GET("/allocations", ah.ListAllocations)
	v1.GET("/allocations/strategies", ah.ListStrategies)
	v1.GET("/allocations/statistics", ah.GetAllocationStatistics)
	v1.GET("/allocations/:id", ah.GetAllocation)
	v1.POST("/allocations/:id/reverse", ah.ReverseAllocation)
	v1.GET("/counterparts/:id/balance", ah.GetCounterpartBalance)
	v1.GET("/audit/:entity/:id", ah.GetAuditTrail)

	api.engine = engine
	return api
}

// envelope is dto.Response with the payload kept raw
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

func (a *testAPI) do(method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// postedInvoice creates, submits, approves and posts an invoice through the API
func (a *testAPI) postedInvoice(counterpartID uuid.UUID, number, amount, dueDate string) appfinance.DocumentResponse {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/documents", map[string]any{
		"kind":            "invoice",
		"document_number": number,
		"counterpart_id":  counterpartID.String(),
		"currency":        "USD",
		"issue_date":      "2026-01-05",
		"due_date":        dueDate,
		"lines": []map[string]any{
			{"description": "Consulting", "quantity": "1", "unit_price": amount},
		},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	doc := decodeData[appfinance.DocumentResponse](a.t, env)

	for _, step := range []string{"submit", "approve", "post"} {
		w, _ = a.do(http.MethodPost, "/documents/"+doc.ID.String()+"/"+step, nil)
		require.Equal(a.t, http.StatusOK, w.Code, step+": "+w.Body.String())
	}
	_, env = a.do(http.MethodGet, "/documents/"+doc.ID.String(), nil)
	return decodeData[appfinance.DocumentResponse](a.t, env)
}

func (a *testAPI) registerPayment(counterpartID uuid.UUID, number, amount string) appfinance.PaymentResponse {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/payments", map[string]any{
		"payment_number": number,
		"counterpart_id": counterpartID.String(),
		"amount":         amount,
		"currency":       "USD",
		"payment_date":   "2026-02-01",
		"method":         "bank_transfer",
		"reference":      "WIRE-" + number,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeData[appfinance.PaymentResponse](a.t, env)
}
