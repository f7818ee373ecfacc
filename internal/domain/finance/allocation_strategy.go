package finance

import (
	"sort"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StrategyType names the policy that splits a funding amount across documents
type StrategyType string

const (
	StrategyManual       StrategyType = "manual"
	StrategyFIFO         StrategyType = "fifo"
	StrategyProportional StrategyType = "proportional"
	StrategyOverdueFirst StrategyType = "overdue_first"
)

// IsValid checks if the strategy type is known
func (t StrategyType) IsValid() bool {
	switch t {
	case StrategyManual, StrategyFIFO, StrategyProportional, StrategyOverdueFirst:
		return true
	}
	return false
}

// String returns the string representation
func (t StrategyType) String() string {
	return string(t)
}

// Description returns a human-readable description
func (t StrategyType) Description() string {
	switch t {
	case StrategyManual:
		return "Caller supplies the amount for each document"
	case StrategyFIFO:
		return "Oldest due date first, then oldest created"
	case StrategyProportional:
		return "Split in proportion to each balance due, largest remainder gets the residual cents"
	case StrategyOverdueFirst:
		return "Overdue documents first by FIFO, then current documents by FIFO"
	}
	return ""
}

// AllStrategyTypes returns all valid strategy types
func AllStrategyTypes() []StrategyType {
	return []StrategyType{StrategyManual, StrategyFIFO, StrategyProportional, StrategyOverdueFirst}
}

// AllocationCandidate is an open document a strategy may allocate to
type AllocationCandidate struct {
	DocumentID     uuid.UUID
	DocumentNumber string
	BalanceDue     decimal.Decimal
	DueDate        *time.Time
	CreatedAt      time.Time
}

// CandidateFromDocument builds a candidate from a document
func CandidateFromDocument(d *PayableDocument) AllocationCandidate {
	return AllocationCandidate{
		DocumentID:     d.ID,
		DocumentNumber: d.DocumentNumber,
		BalanceDue:     d.BalanceDue,
		DueDate:        d.DueDate,
		CreatedAt:      d.CreatedAt,
	}
}

// PlanEntry is one proposed {document, amount} pair
type PlanEntry struct {
	DocumentID uuid.UUID
	Amount     decimal.Decimal
}

// AllocationPlan is the output of strategy selection
type AllocationPlan struct {
	Strategy StrategyType
	Entries  []PlanEntry
}

// Total returns the sum of all entry amounts
func (p AllocationPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

// IsEmpty returns true if the plan allocates nothing
func (p AllocationPlan) IsEmpty() bool {
	return len(p.Entries) == 0
}

// AllocationStrategy turns an amount and candidates into plan entries.
// Implementations are pure and never exceed the amount or any balance.
type AllocationStrategy interface {
	Type() StrategyType
	Plan(amount decimal.Decimal, candidates []AllocationCandidate) ([]PlanEntry, error)
}

// sortFIFO orders by due date ascending (no due date last), then created_at, then ID
func sortFIFO(candidates []AllocationCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.DocumentID.String() < b.DocumentID.String()
	})
}

func greedy(amount decimal.Decimal, ordered []AllocationCandidate) []PlanEntry {
	entries := make([]PlanEntry, 0, len(ordered))
	remaining := amount
	for _, c := range ordered {
		if !remaining.IsPositive() {
			break
		}
		portion := decimal.Min(remaining, c.BalanceDue)
		if !portion.IsPositive() {
			continue
		}
		entries = append(entries, PlanEntry{DocumentID: c.DocumentID, Amount: portion})
		remaining = remaining.Sub(portion)
	}
	return entries
}

// FIFOStrategy allocates to the oldest due documents first
type FIFOStrategy struct{}

// Type implements AllocationStrategy
func (FIFOStrategy) Type() StrategyType { return StrategyFIFO }

// Plan implements AllocationStrategy
func (FIFOStrategy) Plan(amount decimal.Decimal, candidates []AllocationCandidate) ([]PlanEntry, error) {
	ordered := append([]AllocationCandidate(nil), candidates...)
	sortFIFO(ordered)
	return greedy(amount, ordered), nil
}

// OverdueFirstStrategy runs FIFO over overdue documents, then over current ones.
// A document is overdue when its due date is before the start of Now's day.
type OverdueFirstStrategy struct {
	Now time.Time
}

// Type implements AllocationStrategy
func (OverdueFirstStrategy) Type() StrategyType { return StrategyOverdueFirst }

// Plan implements AllocationStrategy
func (s OverdueFirstStrategy) Plan(amount decimal.Decimal, candidates []AllocationCandidate) ([]PlanEntry, error) {
	today := StartOfDay(s.Now)
	var overdue, current []AllocationCandidate
	for _, c := range candidates {
		if c.DueDate != nil && c.DueDate.Before(today) {
			overdue = append(overdue, c)
		} else {
			current = append(current, c)
		}
	}
	sortFIFO(overdue)
	sortFIFO(current)
	return greedy(amount, append(overdue, current...)), nil
}

// ProportionalStrategy splits the amount by balance weight using the
// largest-remainder method. Ties on remainder go to the earlier due date.
// When the amount covers every balance each document is paid in full.
type ProportionalStrategy struct {
	Scale int32
}

// Type implements AllocationStrategy
func (ProportionalStrategy) Type() StrategyType { return StrategyProportional }

// Plan implements AllocationStrategy
func (s ProportionalStrategy) Plan(amount decimal.Decimal, candidates []AllocationCandidate) ([]PlanEntry, error) {
	ordered := append([]AllocationCandidate(nil), candidates...)
	sortFIFO(ordered)

	sum := decimal.Zero
	for _, c := range ordered {
		sum = sum.Add(c.BalanceDue)
	}
	if sum.LessThanOrEqual(amount) {
		return greedy(sum, ordered), nil
	}

	weights := make([]decimal.Decimal, len(ordered))
	for i, c := range ordered {
		weights[i] = c.BalanceDue
	}
	shares, err := valueobject.AllocateByWeights(amount, weights, s.Scale)
	if err != nil {
		return nil, shared.NewDomainError(CodeInvalidAmount, err.Error())
	}
	entries := make([]PlanEntry, 0, len(ordered))
	for i, c := range ordered {
		if shares[i].IsPositive() {
			entries = append(entries, PlanEntry{DocumentID: c.DocumentID, Amount: shares[i]})
		}
	}
	return entries, nil
}

// StrategySelector picks the strategy for a command and produces a plan
type StrategySelector struct {
	scale int32
	clock func() time.Time
}

// SelectorOption configures a StrategySelector
type SelectorOption func(*StrategySelector)

// WithSelectorClock sets the clock used to decide what is overdue
func WithSelectorClock(clock func() time.Time) SelectorOption {
	return func(s *StrategySelector) { s.clock = clock }
}

// WithSelectorScale sets the precision of proportional shares
func WithSelectorScale(scale int32) SelectorOption {
	return func(s *StrategySelector) { s.scale = scale }
}

// NewStrategySelector creates a selector with the default amount scale
func NewStrategySelector(opts ...SelectorOption) *StrategySelector {
	s := &StrategySelector{scale: valueobject.AmountScale, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strategy returns the automatic strategy implementation for a type
func (s *StrategySelector) Strategy(t StrategyType) (AllocationStrategy, error) {
	switch t {
	case StrategyFIFO:
		return FIFOStrategy{}, nil
	case StrategyProportional:
		return ProportionalStrategy{Scale: s.scale}, nil
	case StrategyOverdueFirst:
		return OverdueFirstStrategy{Now: s.clock()}, nil
	}
	return nil, shared.NewDomainErrorf(CodeUnknownStrategy, "Unknown allocation strategy %q", t)
}

// Select produces a plan. Manual plans pass through untouched for the engine
// to validate; automatic strategies only see candidates with a positive balance.
func (s *StrategySelector) Select(t StrategyType, amount decimal.Decimal, candidates []AllocationCandidate, manual []PlanEntry) (AllocationPlan, error) {
	if t == StrategyManual {
		return AllocationPlan{Strategy: StrategyManual, Entries: append([]PlanEntry(nil), manual...)}, nil
	}
	strategy, err := s.Strategy(t)
	if err != nil {
		return AllocationPlan{}, err
	}
	if !amount.IsPositive() {
		return AllocationPlan{}, shared.NewDomainError(CodeInvalidAmount, "Allocation amount must be positive")
	}
	open := make([]AllocationCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.BalanceDue.IsPositive() {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return AllocationPlan{Strategy: t, Entries: []PlanEntry{}}, nil
	}
	entries, err := strategy.Plan(amount, open)
	if err != nil {
		return AllocationPlan{}, err
	}
	return AllocationPlan{Strategy: t, Entries: entries}, nil
}
