package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// useSQLiteLedger points the configuration at a fresh sqlite file
func useSQLiteLedger(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SETTLEMENT_DATABASE_DRIVER", "sqlite")
	t.Setenv("SETTLEMENT_DATABASE_DBNAME", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("SETTLEMENT_JWT_SECRET", "allocctl-test-secret")
	t.Setenv("SETTLEMENT_JWT_ISSUER", "settlement")
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	return cfg
}

type seeded struct {
	company  uuid.UUID
	actor    uuid.UUID
	payment  uuid.UUID
	document uuid.UUID
}

func seedLedger(t *testing.T, cfg *config.Config) seeded {
	t.Helper()
	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repos := persistence.NewRepositorySet(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)
	documents := appfinance.NewDocumentService(repos, scope, zap.NewNop())
	payments := appfinance.NewPaymentService(repos, scope, zap.NewNop())

	s := seeded{company: uuid.New(), actor: uuid.New()}
	cc := shared.NewCommandContext(s.company, s.actor)
	counterpart := uuid.New()
	ctx := context.Background()
	due := time.Now().AddDate(0, 0, 30)

	doc, err := documents.Create(ctx, cc, appfinance.CreateDocumentRequest{
		Kind:           finance.DocumentKindInvoice,
		DocumentNumber: "INV-CLI-1",
		CounterpartID:  counterpart,
		DueDate:        &due,
		Lines: []appfinance.DocumentLineInput{
			{Description: "Service", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(90)},
		},
	})
	require.NoError(t, err)
	_, err = documents.Submit(ctx, cc, doc.ID, appfinance.DocumentTransitionRequest{})
	require.NoError(t, err)
	_, err = documents.Approve(ctx, cc, doc.ID, appfinance.DocumentTransitionRequest{})
	require.NoError(t, err)
	s.document = doc.ID

	payment, err := payments.Register(ctx, cc, appfinance.RegisterPaymentRequest{
		PaymentNumber: "PAY-CLI-1",
		CounterpartID: counterpart,
		Amount:        decimal.NewFromInt(60),
		Method:        finance.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	s.payment = payment.ID
	return s
}

func TestParsePlan(t *testing.T) {
	docID := uuid.New()

	plan, err := parsePlan([]string{docID.String() + "=12.50"})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, docID, plan[0].DocumentID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(plan[0].Amount))

	_, err = parsePlan([]string{docID.String()})
	assert.Error(t, err)
	_, err = parsePlan([]string{"nope=1"})
	assert.Error(t, err)
	_, err = parsePlan([]string{docID.String() + "=abc"})
	assert.Error(t, err)
}

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	for _, name := range []string{"manual", "fifo", "proportional", "overdue_first"} {
		assert.Contains(t, out, name)
	}
}

func TestTokenCommand(t *testing.T) {
	cfg := useSQLiteLedger(t)
	company, actor := uuid.New(), uuid.New()

	out, err := execute(t, "token", "--company", company.String(), "--actor", actor.String(), "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.NewTokenService(cfg.JWT).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	got, err := claims.CompanyUUID()
	require.NoError(t, err)
	assert.Equal(t, company, got)
}

func TestSessionCommandsRequireIdentity(t *testing.T) {
	useSQLiteLedger(t)

	_, err := execute(t, "stats", "--company", "not-a-uuid", "--actor", uuid.NewString())
	assert.ErrorContains(t, err, "--company")
}

func TestPostAllocateAndReverse(t *testing.T) {
	cfg := useSQLiteLedger(t)
	s := seedLedger(t, cfg)
	identity := []string{"--company", s.company.String(), "--actor", s.actor.String()}

	out, err := execute(t, append([]string{"post", s.document.String()}, identity...)...)
	require.NoError(t, err)
	var posted appfinance.DocumentCommandResult
	require.NoError(t, json.Unmarshal([]byte(out), &posted))
	assert.Equal(t, finance.DocumentStatusPosted, posted.NewStatus)

	out, err = execute(t, append([]string{"allocate", s.payment.String(), "--preview", "--strategy", "fifo"}, identity...)...)
	require.NoError(t, err)
	var preview appfinance.AllocationPreview
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	assert.True(t, decimal.NewFromInt(60).Equal(preview.Total))

	out, err = execute(t, append([]string{"allocate", s.payment.String(), "--plan", s.document.String() + "=60"}, identity...)...)
	require.NoError(t, err)
	var result appfinance.AllocationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, finance.StrategyManual, result.Strategy)
	require.Len(t, result.Allocations, 1)

	out, err = execute(t, append([]string{"reverse", result.Allocations[0].ID.String(), "--reason", "wrong customer"}, identity...)...)
	require.NoError(t, err)
	var reversed appfinance.ReverseResult
	require.NoError(t, json.Unmarshal([]byte(out), &reversed))
	assert.True(t, decimal.NewFromInt(90).Equal(reversed.DocumentBalance))

	out, err = execute(t, append([]string{"cancel", s.payment.String(), "--kind", "payment", "--reason", "refunded"}, identity...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "cancelled"`)

	out, err = execute(t, append([]string{"stats"}, identity...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"allocations"`)
	assert.Contains(t, out, `"credit_notes"`)
}
