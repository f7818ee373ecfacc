package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Command outcomes used as metric labels
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeReplayed = "replayed"
)

// AllocationMetrics records settlement engine activity.
// A nil *AllocationMetrics is valid and records nothing.
type AllocationMetrics struct {
	commandTotal     *Counter
	allocationTotal  *Counter
	allocatedMinor   *Counter
	reversalTotal    *Counter
	commandDurations *Histogram
}

// NewAllocationMetrics registers the settlement instruments on meter
func NewAllocationMetrics(meter metric.Meter) (*AllocationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &AllocationMetrics{}
	var err error

	if m.commandTotal, err = NewCounter(meter,
		"settlement_command_total",
		"Settlement commands by command and outcome",
		"{commands}",
	); err != nil {
		return nil, err
	}
	if m.allocationTotal, err = NewCounter(meter,
		"settlement_allocation_total",
		"Allocation rows created",
		"{allocations}",
	); err != nil {
		return nil, err
	}
	if m.allocatedMinor, err = NewCounter(meter,
		"settlement_allocated_amount_minor_total",
		"Allocated amount in minor currency units",
		"{minor_units}",
	); err != nil {
		return nil, err
	}
	if m.reversalTotal, err = NewCounter(meter,
		"settlement_reversal_total",
		"Allocations reversed",
		"{allocations}",
	); err != nil {
		return nil, err
	}
	if m.commandDurations, err = NewHistogram(meter, HistogramOpts{
		Name:        "settlement_command_duration_seconds",
		Description: "Settlement command latency",
		Unit:        "s",
		Boundaries:  CommandDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCommand counts a finished command and its latency
func (m *AllocationMetrics) RecordCommand(ctx context.Context, command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrCommand.String(command), AttrOutcome.String(outcome)}
	m.commandTotal.Inc(ctx, attrs...)
	m.commandDurations.RecordDuration(ctx, elapsed, attrs...)
}

// RecordAllocations counts allocation rows and their total amount
func (m *AllocationMetrics) RecordAllocations(ctx context.Context, strategy, sourceType string, rows int, total decimal.Decimal) {
	if m == nil || rows == 0 {
		return
	}
	attrs := []attribute.KeyValue{AttrStrategy.String(strategy), AttrSourceType.String(sourceType)}
	m.allocationTotal.Add(ctx, int64(rows), attrs...)
	m.allocatedMinor.Add(ctx, total.Shift(2).IntPart(), attrs...)
}

// RecordReversal counts one reversed allocation
func (m *AllocationMetrics) RecordReversal(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.reversalTotal.Inc(ctx, AttrStrategy.String(strategy))
}

// ErrMeterNil is returned when meter is nil
var ErrMeterNil = &MetricsError{Op: "NewAllocationMetrics", Err: "meter cannot be nil"}

// MetricsError reports a metrics setup failure
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
