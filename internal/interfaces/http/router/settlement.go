package router

import (
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes int64 = 10 << 20

// Handlers groups the settlement HTTP handlers
type Handlers struct {
	Documents   *handler.DocumentHandler
	Payments    *handler.PaymentHandler
	CreditNotes *handler.CreditNoteHandler
	Allocations *handler.AllocationHandler
	System      *handler.SystemHandler
}

// EngineConfig configures the gin engine built by NewEngine
type EngineConfig struct {
	ServiceName    string
	APIVersion     string
	MaxBodyBytes   int64
	TracingEnabled bool
	TrustedProxies []string
	Meter          metric.Meter
	Logger         *zap.Logger
	Tokens         middleware.TokenValidator
}

// DocumentRoutes registers the payable document lifecycle
func DocumentRoutes(h *handler.DocumentHandler) *DomainGroup {
	g := NewDomainGroup("documents", "/documents")
	g.POST("", h.CreateDocument).
		GET("", h.ListDocuments).
		GET("/:id", h.GetDocument).
		PUT("/:id/lines", h.ReplaceLines).
		POST("/:id/submit", h.SubmitDocument).
		POST("/:id/approve", h.ApproveDocument).
		POST("/:id/reject", h.RejectDocument).
		POST("/:id/post", h.PostDocument).
		POST("/:id/cancel", h.CancelDocument).
		GET("/:id/tax-components", h.GetTaxComponents)
	return g
}

// PaymentRoutes registers payment registration and queries
func PaymentRoutes(h *handler.PaymentHandler) *DomainGroup {
	g := NewDomainGroup("payments", "/payments")
	g.POST("", h.RegisterPayment).
		GET("", h.ListPayments).
		GET("/:id", h.GetPayment).
		POST("/:id/void", h.VoidPayment).
		GET("/:id/summary", h.GetPaymentSummary)
	return g
}

// CreditNoteRoutes registers the credit note lifecycle
func CreditNoteRoutes(h *handler.CreditNoteHandler) *DomainGroup {
	g := NewDomainGroup("credit-notes", "/credit-notes")
	g.POST("", h.CreateCreditNote).
		GET("", h.ListCreditNotes).
		GET("/statistics", h.GetCreditNoteStatistics).
		GET("/:id", h.GetCreditNote).
		POST("/:id/post", h.PostCreditNote).
		POST("/:id/apply", h.ApplyCreditNote).
		POST("/:id/cancel", h.CancelCreditNote)
	return g
}

// AllocationRoutes registers the allocation engine, counterpart balances
// and the audit trail
func AllocationRoutes(h *handler.AllocationHandler) []*DomainGroup {
	allocations := NewDomainGroup("allocations", "/allocations")
	allocations.POST("", h.Allocate).
		POST("/preview", h.PreviewAllocation).
		GET("", h.ListAllocations).
		GET("/strategies", h.ListStrategies).
		GET("/statistics", h.GetAllocationStatistics).
		GET("/:id", h.GetAllocation).
		POST("/:id/reverse", h.ReverseAllocation)

	counterparts := NewDomainGroup("counterparts", "/counterparts")
	counterparts.GET("/:id/balance", h.GetCounterpartBalance)

	audit := NewDomainGroup("audit", "/audit")
	audit.GET("/:entity/:id", h.GetAuditTrail)

	return []*DomainGroup{allocations, counterparts, audit}
}

// SettlementGroups returns every versioned route group
func SettlementGroups(h Handlers) []*DomainGroup {
	groups := []*DomainGroup{
		DocumentRoutes(h.Documents),
		PaymentRoutes(h.Payments),
		CreditNoteRoutes(h.CreditNotes),
	}
	groups = append(groups, AllocationRoutes(h.Allocations)...)
	if h.System != nil {
		system := NewDomainGroup("system", "/system")
		system.GET("/info", h.System.GetSystemInfo)
		groups = append(groups, system)
	}
	return groups
}

// NewEngine builds the gin engine with the global middleware chain, the
// unauthenticated health probes and the authenticated settlement API.
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	middleware.SetupValidator()
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.BodyLimit(maxBody),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(cfg.Meter, log),
	)

	if h.System != nil {
		engine.GET("/health/live", h.System.Live)
		engine.GET("/health/ready", h.System.Ready)
	}

	opts := []RouterOption{WithAPIMiddleware(middleware.CompanyContext(cfg.Tokens, log))}
	if cfg.APIVersion != "" {
		opts = append(opts, WithAPIVersion(cfg.APIVersion))
	}
	r := NewRouter(engine, opts...)
	for _, group := range SettlementGroups(h) {
		r.Register(group)
	}
	r.Setup()
	return engine
}
