/*
store.go - Persistence contracts for the records collaborator

PURPOSE:
  The engine itself is pure and owns no durable state. These interfaces
  describe what the records layer must provide so the service package can
  orchestrate engine calls against stored policies, requests and entries.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:         Ledger entry persistence (append, load, exists)
  PolicyStore:   Policy snapshots with optimistic versioning
  RequestStore:  Withdrawal requests with status transitions
  TaxRecordStore: Tax deducted on each payout, for annual summaries
  AuditLog:      Who did what when
  TxRepository:  All of the above with atomic multi-table writes

APPEND-ONLY CONTRACT:
  Ledger entries are never updated or deleted. Append rejects a repeated
  idempotency key with ErrDuplicateIdempotencyKey, so a retried accrual
  post or payout never double-counts.

OPTIMISTIC VERSIONING:
  UpdatePolicy succeeds only when the stored Version equals the caller's
  Version; the stored Version is then incremented. A mismatch returns
  ErrConcurrentModification. Together with per-policy serialization in the
  service this makes evaluate-then-debit safe.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Idempotent wrapper over Store
  - service/service.go: The only caller of TxRepository
*/
package generic

import "context"

// =============================================================================
// STORE - Ledger entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via Adjustment entries.
type Store interface {
	// Append persists an entry. Returns error if idempotency key exists.
	Append(ctx context.Context, entry LedgerEntry) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, entries []LedgerEntry) error

	// Load returns all entries for the policy ordered by date then sequence.
	Load(ctx context.Context, policyID PolicyID) ([]LedgerEntry, error)

	// LoadRange returns entries dated in [from, to].
	LoadRange(ctx context.Context, policyID PolicyID, from, to TimePoint) ([]LedgerEntry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// POLICY & REQUEST STORES
// =============================================================================

type PolicyStore interface {
	// CreatePolicy stores a new policy at Version 1.
	CreatePolicy(ctx context.Context, policy Policy) error

	GetPolicy(ctx context.Context, id PolicyID) (Policy, error)

	// UpdatePolicy writes policy if its Version matches the stored one.
	UpdatePolicy(ctx context.Context, policy Policy) error

	ListPolicies(ctx context.Context, status PolicyStatus) ([]Policy, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, req WithdrawalRequest) error
	GetRequest(ctx context.Context, id RequestID) (WithdrawalRequest, error)

	// UpdateRequestStatus persists a transition only if the stored status
	// still equals from. Otherwise it returns a *TransitionError.
	UpdateRequestStatus(ctx context.Context, req WithdrawalRequest, from RequestStatus) error

	ListRequests(ctx context.Context, policyID PolicyID) ([]WithdrawalRequest, error)
}

// =============================================================================
// TAX RECORDS
// =============================================================================

// TaxRecord is the persisted copy of one deduction made on a payout.
type TaxRecord struct {
	ID          string
	PolicyID    PolicyID
	InvestorID  InvestorID
	RequestID   RequestID
	PaymentDate TimePoint
	TaxType     string
	Category    string
	Rate        string // decimal string, rates are never rounded
	Gross       Amount
	Tax         Amount
	Net         Amount
}

type TaxRecordStore interface {
	AppendTaxRecord(ctx context.Context, rec TaxRecord) error
	TaxRecords(ctx context.Context, investor InvestorID, period Period) ([]TaxRecord, error)
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID        string
	Timestamp TimePoint
	ActorID   string
	Action    AuditAction
	PolicyID  PolicyID
	RequestID RequestID
	Payload   map[string]any
}

type AuditAction string

const (
	AuditPolicyOpened     AuditAction = "policy_opened"
	AuditTopUp            AuditAction = "top_up"
	AuditRequestCreated   AuditAction = "request_created"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestProcessed AuditAction = "request_processed"
	AuditAccrualsPosted   AuditAction = "accruals_posted"
	AuditManualAdjust     AuditAction = "manual_adjustment"
	AuditFrequencyChanged AuditAction = "frequency_changed"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	PolicyID *PolicyID
	ActorID  *string
	Actions  []AuditAction
	From     *TimePoint
	To       *TimePoint
}

// Matches reports whether e satisfies every populated filter field.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.PolicyID != nil && e.PolicyID != *f.PolicyID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// REPOSITORY - Everything the service needs
// =============================================================================

type Repository interface {
	Store
	PolicyStore
	RequestStore
	TaxRecordStore
	AuditLog
}

// TxRepository wraps Repository with transaction support.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
