package finance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore keeps aggregates as copies so services only see what they saved
type memStore struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]finance.PayableDocument
	payments map[uuid.UUID]finance.Payment
	notes    map[uuid.UUID]finance.CreditNote
	allocs   map[uuid.UUID]finance.PaymentAllocation
	taxes    map[uuid.UUID]finance.TaxComponent
	audit    []finance.AuditEntry
	idem     map[string]shared.IdempotencyRecord
	seq      int
	order    map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		docs:     map[uuid.UUID]finance.PayableDocument{},
		payments: map[uuid.UUID]finance.Payment{},
		notes:    map[uuid.UUID]finance.CreditNote{},
		allocs:   map[uuid.UUID]finance.PaymentAllocation{},
		taxes:    map[uuid.UUID]finance.TaxComponent{},
		idem:     map[string]shared.IdempotencyRecord{},
		order:    map[uuid.UUID]int{},
	}
}

type memSnapshot struct {
	docs     map[uuid.UUID]finance.PayableDocument
	payments map[uuid.UUID]finance.Payment
	notes    map[uuid.UUID]finance.CreditNote
	allocs   map[uuid.UUID]finance.PaymentAllocation
	taxes    map[uuid.UUID]finance.TaxComponent
	audit    []finance.AuditEntry
	idem     map[string]shared.IdempotencyRecord
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		docs:     copyMap(s.docs),
		payments: copyMap(s.payments),
		notes:    copyMap(s.notes),
		allocs:   copyMap(s.allocs),
		taxes:    copyMap(s.taxes),
		audit:    append([]finance.AuditEntry(nil), s.audit...),
		idem:     copyMap(s.idem),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs, s.payments, s.notes = snap.docs, snap.payments, snap.notes
	s.allocs, s.taxes, s.audit, s.idem = snap.allocs, snap.taxes, snap.audit, snap.idem
}

func (s *memStore) next(id uuid.UUID) {
	if _, ok := s.order[id]; !ok {
		s.seq++
		s.order[id] = s.seq
	}
}

func (s *memStore) repos() RepositorySet {
	return RepositorySet{
		DocumentRepo:     &memDocuments{s},
		PaymentRepo:      &memPayments{s},
		CreditNoteRepo:   &memCreditNotes{s},
		AllocationRepo:   &memAllocations{s},
		TaxComponentRepo: &memTaxes{s},
		AuditRepo:        &memAudit{s},
		IdempotencyRepo:  &memIdempotency{s},
	}
}

// memTxScope rolls the whole store back when fn fails
type memTxScope struct {
	store *memStore
	repos RepositorySet
}

func (t *memTxScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	snap := t.store.snapshot()
	if err := fn(t.repos); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func cloneDoc(d finance.PayableDocument) *finance.PayableDocument {
	d.Lines = append([]finance.DocumentLine(nil), d.Lines...)
	d.ClearDomainEvents()
	return &d
}

func clonePayment(p finance.Payment) *finance.Payment {
	p.ClearDomainEvents()
	return &p
}

func cloneNote(c finance.CreditNote) *finance.CreditNote {
	c.Items = append([]finance.CreditNoteItem(nil), c.Items...)
	c.ClearDomainEvents()
	return &c
}

// ---- documents ----

type memDocuments struct{ s *memStore }

func (r *memDocuments) find(companyID, id uuid.UUID) (*finance.PayableDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok || d.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (r *memDocuments) FindByIDForCompany(_ context.Context, companyID, id uuid.UUID) (*finance.PayableDocument, error) {
	return r.find(companyID, id)
}

func (r *memDocuments) FindByIDForUpdate(_ context.Context, companyID, id uuid.UUID) (*finance.PayableDocument, error) {
	return r.find(companyID, id)
}

func (r *memDocuments) FindByIDsForUpdate(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]*finance.PayableDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*finance.PayableDocument, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.s.docs[id]; ok && d.CompanyID == companyID {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

func (r *memDocuments) FindOpenByCounterpart(_ context.Context, companyID, counterpartID uuid.UUID) ([]finance.PayableDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.PayableDocument, 0)
	for _, d := range r.s.docs {
		if d.CompanyID == companyID && d.CounterpartID == counterpartID && d.IsPayable() {
			out = append(out, *cloneDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *memDocuments) FindAllForCompany(_ context.Context, companyID uuid.UUID, filter finance.DocumentFilter) ([]finance.PayableDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.PayableDocument, 0)
	for _, d := range r.s.docs {
		if d.CompanyID != companyID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && d.Kind != *filter.Kind {
			continue
		}
		out = append(out, *cloneDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *memDocuments) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.DocumentFilter) (int64, error) {
	all, _ := r.FindAllForCompany(ctx, companyID, filter)
	return int64(len(all)), nil
}

func (r *memDocuments) ExistsByNumber(_ context.Context, companyID uuid.UUID, kind finance.DocumentKind, number string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.docs {
		if d.CompanyID == companyID && d.Kind == kind && d.DocumentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memDocuments) Create(_ context.Context, doc *finance.PayableDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.next(doc.ID)
	r.s.docs[doc.ID] = *cloneDoc(*doc)
	return nil
}

func (r *memDocuments) SaveWithLock(_ context.Context, doc *finance.PayableDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.docs[doc.ID]
	if !ok || stored.Version != doc.Version {
		return shared.ErrConcurrencyConflict
	}
	doc.Version++
	r.s.docs[doc.ID] = *cloneDoc(*doc)
	return nil
}

func (r *memDocuments) SaveLines(_ context.Context, doc *finance.PayableDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.docs[doc.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Lines = append([]finance.DocumentLine(nil), doc.Lines...)
	r.s.docs[doc.ID] = stored
	return nil
}

// ---- payments ----

type memPayments struct{ s *memStore }

func (r *memPayments) find(companyID, id uuid.UUID) (*finance.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *memPayments) FindByIDForCompany(_ context.Context, companyID, id uuid.UUID) (*finance.Payment, error) {
	return r.find(companyID, id)
}

func (r *memPayments) FindByIDForUpdate(_ context.Context, companyID, id uuid.UUID) (*finance.Payment, error) {
	return r.find(companyID, id)
}

func (r *memPayments) FindAllForCompany(_ context.Context, companyID uuid.UUID, filter finance.PaymentFilter) ([]finance.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.Payment, 0)
	for _, p := range r.s.payments {
		if p.CompanyID == companyID && (filter.Status == nil || p.Status == *filter.Status) {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *memPayments) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.PaymentFilter) (int64, error) {
	all, _ := r.FindAllForCompany(ctx, companyID, filter)
	return int64(len(all)), nil
}

func (r *memPayments) SumUnallocated(_ context.Context, companyID, counterpartID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.s.payments {
		if p.CompanyID == companyID && p.CounterpartID == counterpartID && p.Status == finance.PaymentStatusPending {
			sum = sum.Add(p.RemainingAmount)
		}
	}
	return sum, nil
}

func (r *memPayments) Create(_ context.Context, p *finance.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.next(p.ID)
	r.s.payments[p.ID] = *clonePayment(*p)
	return nil
}

func (r *memPayments) SaveWithLock(_ context.Context, p *finance.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.payments[p.ID]
	if !ok || stored.Version != p.Version {
		return shared.ErrConcurrencyConflict
	}
	p.Version++
	r.s.payments[p.ID] = *clonePayment(*p)
	return nil
}

// ---- credit notes ----

type memCreditNotes struct{ s *memStore }

func (r *memCreditNotes) find(companyID, id uuid.UUID) (*finance.CreditNote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.notes[id]
	if !ok || c.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return cloneNote(c), nil
}

func (r *memCreditNotes) FindByIDForCompany(_ context.Context, companyID, id uuid.UUID) (*finance.CreditNote, error) {
	return r.find(companyID, id)
}

func (r *memCreditNotes) FindByIDForUpdate(_ context.Context, companyID, id uuid.UUID) (*finance.CreditNote, error) {
	return r.find(companyID, id)
}

func (r *memCreditNotes) FindAllForCompany(_ context.Context, companyID uuid.UUID, filter finance.CreditNoteFilter) ([]finance.CreditNote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.CreditNote, 0)
	for _, c := range r.s.notes {
		if c.CompanyID == companyID && (filter.Status == nil || c.Status == *filter.Status) {
			out = append(out, *cloneNote(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *memCreditNotes) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.CreditNoteFilter) (int64, error) {
	all, _ := r.FindAllForCompany(ctx, companyID, filter)
	return int64(len(all)), nil
}

func (r *memCreditNotes) NextSequence(_ context.Context, companyID uuid.UUID, year int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.notes {
		if c.CompanyID == companyID && c.IssueDate.Year() == year {
			n++
		}
	}
	return n + 1, nil
}

func (r *memCreditNotes) Totals(_ context.Context, companyID uuid.UUID) (*finance.CreditNoteTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := &finance.CreditNoteTotals{CountByStatus: map[finance.CreditNoteStatus]int64{}}
	for _, c := range r.s.notes {
		if c.CompanyID != companyID {
			continue
		}
		t.CountByStatus[c.Status]++
		if c.Status == finance.CreditNoteStatusPosted {
			t.TotalIssued = t.TotalIssued.Add(c.TotalAmount)
			t.TotalApplied = t.TotalApplied.Add(c.AppliedAmount())
			t.TotalOpen = t.TotalOpen.Add(c.RemainingAmount)
		}
	}
	return t, nil
}

func (r *memCreditNotes) Create(_ context.Context, c *finance.CreditNote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.next(c.ID)
	r.s.notes[c.ID] = *cloneNote(*c)
	return nil
}

func (r *memCreditNotes) SaveWithLock(_ context.Context, c *finance.CreditNote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.notes[c.ID]
	if !ok || stored.Version != c.Version {
		return shared.ErrConcurrencyConflict
	}
	c.Version++
	r.s.notes[c.ID] = *cloneNote(*c)
	return nil
}

// ---- allocations ----

type memAllocations struct{ s *memStore }

func (r *memAllocations) find(companyID, id uuid.UUID) (*finance.PaymentAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.allocs[id]
	if !ok || a.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return &a, nil
}

func (r *memAllocations) FindByIDForCompany(_ context.Context, companyID, id uuid.UUID) (*finance.PaymentAllocation, error) {
	return r.find(companyID, id)
}

func (r *memAllocations) FindByIDForUpdate(_ context.Context, companyID, id uuid.UUID) (*finance.PaymentAllocation, error) {
	return r.find(companyID, id)
}

func (r *memAllocations) FindAll(_ context.Context, companyID uuid.UUID, f finance.AllocationFilter) ([]finance.PaymentAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.PaymentAllocation, 0)
	for _, a := range r.s.allocs {
		switch {
		case a.CompanyID != companyID,
			f.SourceType != nil && a.SourceType != *f.SourceType,
			f.SourceID != nil && a.SourceID != *f.SourceID,
			f.DocumentID != nil && a.DocumentID != *f.DocumentID,
			f.Strategy != nil && a.Strategy != *f.Strategy,
			f.Status != nil && a.Status() != *f.Status,
			f.CommandID != nil && a.CommandID != *f.CommandID:
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return r.s.order[out[i].ID] < r.s.order[out[j].ID] })
	return out, nil
}

func (r *memAllocations) Count(ctx context.Context, companyID uuid.UUID, f finance.AllocationFilter) (int64, error) {
	all, _ := r.FindAll(ctx, companyID, f)
	return int64(len(all)), nil
}

func (r *memAllocations) HasActiveForDocument(ctx context.Context, companyID, documentID uuid.UUID) (bool, error) {
	active := finance.AllocationStatusActive
	n, _ := r.Count(ctx, companyID, finance.AllocationFilter{DocumentID: &documentID, Status: &active})
	return n > 0, nil
}

func (r *memAllocations) HasActiveForSource(ctx context.Context, companyID uuid.UUID, t finance.SourceType, id uuid.UUID) (bool, error) {
	active := finance.AllocationStatusActive
	n, _ := r.Count(ctx, companyID, finance.AllocationFilter{SourceType: &t, SourceID: &id, Status: &active})
	return n > 0, nil
}

func (r *memAllocations) Statistics(ctx context.Context, companyID uuid.UUID) (*finance.AllocationStatistics, error) {
	all, _ := r.FindAll(ctx, companyID, finance.AllocationFilter{})
	stats := &finance.AllocationStatistics{ByStrategy: map[finance.StrategyType]finance.StrategyStatistics{}}
	for _, a := range all {
		st := stats.ByStrategy[a.Strategy]
		st.Count++
		stats.Total++
		if a.IsReversed {
			st.Reversed++
			stats.Reversed++
			stats.ReversedAmount = stats.ReversedAmount.Add(a.AllocatedAmount)
		} else {
			st.Active++
			st.ActiveAmount = st.ActiveAmount.Add(a.AllocatedAmount)
			stats.Active++
			stats.ActiveAmount = stats.ActiveAmount.Add(a.AllocatedAmount)
		}
		stats.ByStrategy[a.Strategy] = st
	}
	return stats, nil
}

func (r *memAllocations) Create(_ context.Context, a *finance.PaymentAllocation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.next(a.ID)
	r.s.allocs[a.ID] = *a
	return nil
}

func (r *memAllocations) SaveReversal(_ context.Context, a *finance.PaymentAllocation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.allocs[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.IsReversed {
		return shared.NewDomainError(finance.CodeAlreadyReversed, "Allocation has already been reversed")
	}
	stored.IsReversed, stored.ReversedAt, stored.ReversedBy, stored.ReversalReason = true, a.ReversedAt, a.ReversedBy, a.ReversalReason
	r.s.allocs[a.ID] = stored
	return nil
}

// ---- tax components, audit, idempotency ----

type memTaxes struct{ s *memStore }

func (r *memTaxes) FindByDocument(_ context.Context, companyID, documentID uuid.UUID) ([]*finance.TaxComponent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*finance.TaxComponent, 0)
	for _, c := range r.s.taxes {
		if c.CompanyID == companyID && c.DocumentID == documentID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}

func (r *memTaxes) CreateBatch(_ context.Context, components []*finance.TaxComponent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range components {
		r.s.taxes[c.ID] = *c
	}
	return nil
}

func (r *memTaxes) Save(_ context.Context, c *finance.TaxComponent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.taxes[c.ID] = *c
	return nil
}

type memAudit struct{ s *memStore }

func (r *memAudit) Create(_ context.Context, e *finance.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r *memAudit) FindByEntity(_ context.Context, companyID uuid.UUID, entityType string, entityID uuid.UUID) ([]finance.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]finance.AuditEntry, 0)
	for _, e := range r.s.audit {
		if e.CompanyID == companyID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memIdempotency struct{ s *memStore }

func idemKey(companyID uuid.UUID, key string) string { return companyID.String() + "/" + key }

func (r *memIdempotency) FindByKey(_ context.Context, companyID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.idem[idemKey(companyID, key)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rec, nil
}

func (r *memIdempotency) Create(_ context.Context, rec *shared.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := idemKey(rec.CompanyID, rec.Key)
	if _, ok := r.s.idem[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	r.s.idem[k] = *rec
	return nil
}

func (r *memIdempotency) SaveResult(_ context.Context, rec *shared.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.idem[idemKey(rec.CompanyID, rec.Key)] = *rec
	return nil
}

// ---- fixtures ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// fixture wires every service to one in-memory store
type fixture struct {
	store       *memStore
	repos       RepositorySet
	cc          shared.CommandContext
	counterpart uuid.UUID
	now         time.Time
	publisher   *recordingPublisher
	allocations *AllocationService
	documents   *DocumentService
	payments    *PaymentService
	creditNotes *CreditNoteService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	repos := store.repos()
	tx := &memTxScope{store: store, repos: repos}
	logger := zap.NewNop()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	pub := &recordingPublisher{}

	alloc := NewAllocationService(repos, tx, logger)
	alloc.SetClock(clock)
	alloc.SetEventPublisher(pub)
	docs := NewDocumentService(repos, tx, logger)
	docs.SetClock(clock)
	docs.SetEventPublisher(pub)
	pays := NewPaymentService(repos, tx, logger)
	pays.SetClock(clock)
	pays.SetEventPublisher(pub)
	notes := NewCreditNoteService(repos, tx, alloc, logger)
	notes.SetClock(clock)
	notes.SetEventPublisher(pub)

	cc := shared.NewCommandContext(uuid.New(), uuid.New())
	cc.IPAddress = "10.0.0.1"
	cc.UserAgent = "test"
	return &fixture{
		store:       store,
		repos:       repos,
		cc:          cc,
		counterpart: uuid.New(),
		now:         now,
		publisher:   pub,
		allocations: alloc,
		documents:   docs,
		payments:    pays,
		creditNotes: notes,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// postedInvoice creates an untaxed invoice through the document service and posts it
func (f *fixture) postedInvoice(t *testing.T, total string, dueInDays int) *DocumentResponse {
	t.Helper()
	return f.postedDocument(t, f.counterpart, total, dueInDays)
}

func (f *fixture) postedDocument(t *testing.T, counterpart uuid.UUID, total string, dueInDays int) *DocumentResponse {
	t.Helper()
	ctx := context.Background()
	due := f.now.AddDate(0, 0, dueInDays)
	doc, err := f.documents.Create(ctx, f.cc, CreateDocumentRequest{
		Kind:           finance.DocumentKindInvoice,
		DocumentNumber: "INV-" + uuid.NewString()[:8],
		CounterpartID:  counterpart,
		Currency:       "USD",
		IssueDate:      f.now.AddDate(0, -2, 0),
		DueDate:        &due,
		Lines: []DocumentLineInput{
			{Description: "Services", Quantity: dec("1"), UnitPrice: dec(total)},
		},
	})
	require.NoError(t, err)
	for _, step := range []func(context.Context, shared.CommandContext, uuid.UUID, DocumentTransitionRequest) (*DocumentCommandResult, error){
		f.documents.Submit, f.documents.Approve, f.documents.Post,
	} {
		_, err := step(ctx, f.cc, doc.ID, DocumentTransitionRequest{})
		require.NoError(t, err)
	}
	posted, err := f.documents.GetByID(ctx, f.cc.CompanyID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, finance.DocumentStatusPosted, posted.Status)
	return posted
}

func (f *fixture) payment(t *testing.T, amount string) *PaymentResponse {
	t.Helper()
	p, err := f.payments.Register(context.Background(), f.cc, RegisterPaymentRequest{
		PaymentNumber: "PAY-" + uuid.NewString()[:8],
		CounterpartID: f.counterpart,
		Amount:        dec(amount),
		Currency:      "USD",
		Method:        finance.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) document(t *testing.T, id uuid.UUID) *DocumentResponse {
	t.Helper()
	d, err := f.documents.GetByID(context.Background(), f.cc.CompanyID, id)
	require.NoError(t, err)
	return d
}

func (f *fixture) paymentByID(t *testing.T, id uuid.UUID) *PaymentResponse {
	t.Helper()
	p, err := f.payments.GetByID(context.Background(), f.cc.CompanyID, id)
	require.NoError(t, err)
	return p
}

func (f *fixture) auditActions() []finance.AuditAction {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]finance.AuditAction, len(f.store.audit))
	for i, e := range f.store.audit {
		out[i] = e.Action
	}
	return out
}

func (f *fixture) allocationCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return len(f.store.allocs)
}

func requireCode(t *testing.T, err error, code string) *shared.DomainError {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, code, de.Code, de.Message)
	return de
}

var errBoom = errors.New("boom")
