package finance

// DocumentKind identifies which kind of payable document an aggregate is
type DocumentKind string

const (
	DocumentKindInvoice       DocumentKind = "invoice"
	DocumentKindBill          DocumentKind = "bill"
	DocumentKindPurchaseOrder DocumentKind = "purchase_order"
	DocumentKindTaxReturn     DocumentKind = "tax_return"
)

// IsValid checks if the kind is known
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindInvoice, DocumentKindBill, DocumentKindPurchaseOrder, DocumentKindTaxReturn:
		return true
	}
	return false
}

// String returns the string representation
func (k DocumentKind) String() string {
	return string(k)
}

// EditableWhilePending reports whether lines may still change in pending_approval
func (k DocumentKind) EditableWhilePending() bool {
	return k == DocumentKindBill || k == DocumentKindPurchaseOrder
}

// DocumentStatus is the lifecycle state of a payable document
type DocumentStatus string

const (
	DocumentStatusDraft           DocumentStatus = "draft"
	DocumentStatusPendingApproval DocumentStatus = "pending_approval"
	DocumentStatusApproved        DocumentStatus = "approved"
	DocumentStatusPosted          DocumentStatus = "posted"
	DocumentStatusPartiallyPaid   DocumentStatus = "partially_paid"
	DocumentStatusPaid            DocumentStatus = "paid"
	DocumentStatusCancelled       DocumentStatus = "cancelled"
	DocumentStatusRejected        DocumentStatus = "rejected"
)

// documentTransitions is the complete transition table for payable documents.
// Moves into and out of partially_paid and paid are balance-driven and are
// only taken by ApplyAllocation and RestoreAllocation.
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusDraft:           {DocumentStatusPendingApproval, DocumentStatusCancelled},
	DocumentStatusPendingApproval: {DocumentStatusApproved, DocumentStatusRejected, DocumentStatusCancelled},
	DocumentStatusApproved:        {DocumentStatusPosted, DocumentStatusCancelled},
	DocumentStatusPosted:          {DocumentStatusPartiallyPaid, DocumentStatusPaid, DocumentStatusCancelled},
	DocumentStatusPartiallyPaid:   {DocumentStatusPartiallyPaid, DocumentStatusPaid, DocumentStatusPosted, DocumentStatusCancelled},
	DocumentStatusPaid:            {DocumentStatusPartiallyPaid, DocumentStatusPosted},
	DocumentStatusCancelled:       {},
	DocumentStatusRejected:        {},
}

// IsValid checks if the status is known
func (s DocumentStatus) IsValid() bool {
	_, ok := documentTransitions[s]
	return ok
}

// String returns the string representation
func (s DocumentStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the table allows moving to next
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range documentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true when no further lifecycle transition is possible
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCancelled || s == DocumentStatusRejected
}

// AcceptsAllocations returns true if payments and credits can be applied
func (s DocumentStatus) AcceptsAllocations() bool {
	return s == DocumentStatusPosted || s == DocumentStatusPartiallyPaid
}

// AllDocumentStatuses returns every document status
func AllDocumentStatuses() []DocumentStatus {
	return []DocumentStatus{
		DocumentStatusDraft,
		DocumentStatusPendingApproval,
		DocumentStatusApproved,
		DocumentStatusPosted,
		DocumentStatusPartiallyPaid,
		DocumentStatusPaid,
		DocumentStatusCancelled,
		DocumentStatusRejected,
	}
}
