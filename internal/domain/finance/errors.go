package finance

// Finance error codes
const (
	CodeAmountExceedsBalance = "AMOUNT_EXCEEDS_BALANCE"
	CodePlanExceedsRemaining = "PLAN_EXCEEDS_REMAINING"
	CodeCounterpartMismatch  = "COUNTERPART_MISMATCH"
	CodeCurrencyMismatch     = "CURRENCY_MISMATCH"
	CodeAlreadyReversed      = "ALREADY_REVERSED"
	CodeNoLineItems          = "NO_LINE_ITEMS"
	CodeNotEditable          = "NOT_EDITABLE"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeHasActiveAllocations = "HAS_ACTIVE_ALLOCATIONS"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeDocumentNotPayable   = "DOCUMENT_NOT_PAYABLE"
	CodeDocumentNotPosted    = "DOCUMENT_NOT_POSTED"
	CodeSourceNotAvailable   = "SOURCE_NOT_AVAILABLE"
	CodeCreditExceedsBalance = "CREDIT_EXCEEDS_BALANCE"
	CodeCreditTargetMismatch = "CREDIT_TARGET_MISMATCH"
	CodeUnknownStrategy      = "UNKNOWN_STRATEGY"
	CodeEmptyPlan            = "EMPTY_PLAN"
	CodeDuplicateTarget      = "DUPLICATE_TARGET"
	CodeInvalidTax           = "INVALID_TAX"
	CodeTaxOverApplied       = "TAX_OVER_APPLIED"
)
