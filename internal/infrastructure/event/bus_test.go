package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingHandler struct {
	types   []string
	err     error
	panics  bool
	mu      sync.Mutex
	handled []shared.DomainEvent
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func allocationEvent(eventType string) *finance.AllocationEvent {
	return &finance.AllocationEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, finance.AggregateTypeAllocation, uuid.New(), uuid.New()),
		SourceType:      finance.SourceTypePayment,
		SourceID:        uuid.New(),
		DocumentID:      uuid.New(),
		Amount:          decimal.RequireFromString("125.50"),
		Strategy:        finance.StrategyFIFO,
	}
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	created := &recordingHandler{types: []string{finance.EventTypeAllocationCreated}}
	all := &recordingHandler{}
	bus.Subscribe(created)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		allocationEvent(finance.EventTypeAllocationCreated),
		allocationEvent(finance.EventTypeAllocationReversed),
	))

	assert.Equal(t, 1, created.count())
	assert.Equal(t, 2, all.count())
	published, failed := bus.Stats()
	assert.EqualValues(t, 2, published)
	assert.Zero(t, failed)
}

func TestInMemoryEventBus_FailingHandlersDoNotStopOthers(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	failing := &recordingHandler{err: errors.New("downstream unavailable")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, allocationEvent(finance.EventTypeAllocationCreated)))

	assert.Equal(t, 1, healthy.count())
	_, failed := bus.Stats()
	assert.EqualValues(t, 2, failed)
	assert.Equal(t, 2, recorded.FilterMessage("event handler failed").Len())
}

func TestInMemoryEventBus_UnsubscribeAndStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := &recordingHandler{}
	bus.Subscribe(h)
	bus.Unsubscribe(h)
	require.NoError(t, bus.Publish(context.Background(), allocationEvent(finance.EventTypeAllocationCreated)))
	assert.Zero(t, h.count())

	bus.Subscribe(h)
	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), allocationEvent(finance.EventTypeAllocationCreated)))
	assert.Zero(t, h.count())
}

func TestHandlerRegistry_Count(t *testing.T) {
	r := NewHandlerRegistry()
	h := &recordingHandler{}
	r.Register(h, "a", "b")
	r.Register(&recordingHandler{})
	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.GetHandlers("a"), 2)
	assert.Len(t, r.GetHandlers("c"), 1)

	r.Unregister(h)
	assert.Equal(t, 1, r.Count())
}

func TestLoggingHandler(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	h := NewLoggingHandler(zap.New(core))
	assert.Empty(t, h.EventTypes())

	event := allocationEvent(finance.EventTypeAllocationCreated)
	require.NoError(t, h.Handle(context.Background(), event))

	logs := recorded.FilterMessage("domain event").All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, finance.EventTypeAllocationCreated, fields["event_type"])
	assert.Equal(t, "125.5", fields["amount"])
	assert.Equal(t, "fifo", fields["strategy"])
	assert.Equal(t, event.CompanyID().String(), fields["company_id"])
}
