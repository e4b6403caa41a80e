// Package store provides an in-memory generic.TxRepository.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

// state holds the data; its methods assume the caller holds mu.
type state struct {
	entries     map[generic.PolicyID][]generic.LedgerEntry
	idempotency map[string]bool
	policies    map[generic.PolicyID]generic.Policy
	requests    map[generic.RequestID]generic.WithdrawalRequest
	taxRecords  []generic.TaxRecord
	audit       []generic.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{state: state{
		entries:     make(map[generic.PolicyID][]generic.LedgerEntry),
		idempotency: make(map[string]bool),
		policies:    make(map[generic.PolicyID]generic.Policy),
		requests:    make(map[generic.RequestID]generic.WithdrawalRequest),
	}}
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntry(e)
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, es []generic.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendBatch(es)
}

func (m *Memory) Load(_ context.Context, policyID generic.PolicyID) ([]generic.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.load(policyID), nil
}

func (m *Memory) LoadRange(_ context.Context, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRange(policyID, from, to), nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (s *state) appendBatch(es []generic.LedgerEntry) error {
	// Check all idempotency keys first (atomic check)
	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if s.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}
	for _, e := range es {
		if err := s.appendEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) appendEntry(e generic.LedgerEntry) error {
	if e.IdempotencyKey != "" && s.idempotency[e.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	es := s.entries[e.PolicyID]

	// Binary search for insertion point keeps (date, sequence) order.
	i := sort.Search(len(es), func(i int) bool {
		return generic.EntryLess(e, es[i])
	})
	es = append(es, generic.LedgerEntry{})
	copy(es[i+1:], es[i:])
	es[i] = e
	s.entries[e.PolicyID] = es

	if e.IdempotencyKey != "" {
		s.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (s *state) load(policyID generic.PolicyID) []generic.LedgerEntry {
	result := make([]generic.LedgerEntry, len(s.entries[policyID]))
	copy(result, s.entries[policyID])
	return result
}

func (s *state) loadRange(policyID generic.PolicyID, from, to generic.TimePoint) []generic.LedgerEntry {
	var result []generic.LedgerEntry
	for _, e := range s.entries[policyID] {
		if from.BeforeOrEqual(e.EntryDate) && e.EntryDate.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	return result
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) CreatePolicy(_ context.Context, p generic.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPolicy(p)
}

func (m *Memory) GetPolicy(_ context.Context, id generic.PolicyID) (generic.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicy(id)
}

func (m *Memory) UpdatePolicy(_ context.Context, p generic.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePolicy(p)
}

func (m *Memory) ListPolicies(_ context.Context, status generic.PolicyStatus) ([]generic.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPolicies(status), nil
}

func (s *state) createPolicy(p generic.Policy) error {
	if _, ok := s.policies[p.ID]; ok {
		return generic.ErrPolicyExists
	}
	p.Version = 1
	s.policies[p.ID] = p
	return nil
}

func (s *state) getPolicy(id generic.PolicyID) (generic.Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return generic.Policy{}, generic.ErrPolicyNotFound
	}
	return p, nil
}

func (s *state) updatePolicy(p generic.Policy) error {
	stored, ok := s.policies[p.ID]
	if !ok {
		return generic.ErrPolicyNotFound
	}
	if stored.Version != p.Version {
		return generic.ErrConcurrentModification
	}
	p.Version++
	s.policies[p.ID] = p
	return nil
}

// listPolicies returns policies sorted by ID; an empty status matches all.
func (s *state) listPolicies(status generic.PolicyStatus) []generic.Policy {
	var result []generic.Policy
	for _, p := range s.policies {
		if status == "" || p.Status == status {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// WITHDRAWAL REQUESTS
// =============================================================================

func (m *Memory) CreateRequest(_ context.Context, r generic.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequest(r)
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (generic.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequest(id)
}

func (m *Memory) UpdateRequestStatus(_ context.Context, r generic.WithdrawalRequest, from generic.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestStatus(r, from)
}

func (m *Memory) ListRequests(_ context.Context, policyID generic.PolicyID) ([]generic.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequests(policyID), nil
}

func (s *state) createRequest(r generic.WithdrawalRequest) error {
	if _, ok := s.requests[r.ID]; ok {
		return generic.ErrRequestExists
	}
	s.requests[r.ID] = r
	return nil
}

func (s *state) getRequest(id generic.RequestID) (generic.WithdrawalRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return generic.WithdrawalRequest{}, generic.ErrRequestNotFound
	}
	return r, nil
}

func (s *state) updateRequestStatus(r generic.WithdrawalRequest, from generic.RequestStatus) error {
	stored, ok := s.requests[r.ID]
	if !ok {
		return generic.ErrRequestNotFound
	}
	if stored.Status != from {
		return &generic.TransitionError{RequestID: r.ID, From: stored.Status, To: r.Status}
	}
	s.requests[r.ID] = r
	return nil
}

func (s *state) listRequests(policyID generic.PolicyID) []generic.WithdrawalRequest {
	var result []generic.WithdrawalRequest
	for _, r := range s.requests {
		if r.PolicyID == policyID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestDate.Equal(result[j].RequestDate) {
			return result[i].RequestDate.Before(result[j].RequestDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// =============================================================================
// TAX RECORDS & AUDIT
// =============================================================================

func (m *Memory) AppendTaxRecord(_ context.Context, rec generic.TaxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taxRecords = append(m.taxRecords, rec)
	return nil
}

func (m *Memory) TaxRecords(_ context.Context, investor generic.InvestorID, period generic.Period) ([]generic.TaxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterTaxRecords(investor, period), nil
}

func (s *state) filterTaxRecords(investor generic.InvestorID, period generic.Period) []generic.TaxRecord {
	var result []generic.TaxRecord
	for _, rec := range s.taxRecords {
		if investor != "" && rec.InvestorID != investor {
			continue
		}
		if period.Contains(rec.PaymentDate) {
			result = append(result, rec)
		}
	}
	return result
}

func (m *Memory) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryAudit(f), nil
}

func (s *state) queryAudit(f generic.AuditFilter) []generic.AuditEntry {
	var result []generic.AuditEntry
	for _, e := range s.audit {
		if f.Matches(e) {
			result = append(result, e)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *state) snapshot() state {
	c := state{
		entries:     make(map[generic.PolicyID][]generic.LedgerEntry, len(s.entries)),
		idempotency: make(map[string]bool, len(s.idempotency)),
		policies:    make(map[generic.PolicyID]generic.Policy, len(s.policies)),
		requests:    make(map[generic.RequestID]generic.WithdrawalRequest, len(s.requests)),
		taxRecords:  append([]generic.TaxRecord(nil), s.taxRecords...),
		audit:       append([]generic.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.entries {
		c.entries[k] = append([]generic.LedgerEntry(nil), v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	return c
}

// txView runs against the state while WithTx holds the lock.
type txView struct {
	s *state
}

func (t *txView) Append(_ context.Context, e generic.LedgerEntry) error {
	return t.s.appendEntry(e)
}

func (t *txView) AppendBatch(_ context.Context, es []generic.LedgerEntry) error {
	return t.s.appendBatch(es)
}

func (t *txView) Load(_ context.Context, policyID generic.PolicyID) ([]generic.LedgerEntry, error) {
	return t.s.load(policyID), nil
}

func (t *txView) LoadRange(_ context.Context, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.LedgerEntry, error) {
	return t.s.loadRange(policyID, from, to), nil
}

func (t *txView) Exists(_ context.Context, key string) (bool, error) {
	return t.s.idempotency[key], nil
}

func (t *txView) CreatePolicy(_ context.Context, p generic.Policy) error {
	return t.s.createPolicy(p)
}

func (t *txView) GetPolicy(_ context.Context, id generic.PolicyID) (generic.Policy, error) {
	return t.s.getPolicy(id)
}

func (t *txView) UpdatePolicy(_ context.Context, p generic.Policy) error {
	return t.s.updatePolicy(p)
}

func (t *txView) ListPolicies(_ context.Context, status generic.PolicyStatus) ([]generic.Policy, error) {
	return t.s.listPolicies(status), nil
}

func (t *txView) CreateRequest(_ context.Context, r generic.WithdrawalRequest) error {
	return t.s.createRequest(r)
}

func (t *txView) GetRequest(_ context.Context, id generic.RequestID) (generic.WithdrawalRequest, error) {
	return t.s.getRequest(id)
}

func (t *txView) UpdateRequestStatus(_ context.Context, r generic.WithdrawalRequest, from generic.RequestStatus) error {
	return t.s.updateRequestStatus(r, from)
}

func (t *txView) ListRequests(_ context.Context, policyID generic.PolicyID) ([]generic.WithdrawalRequest, error) {
	return t.s.listRequests(policyID), nil
}

func (t *txView) AppendTaxRecord(_ context.Context, rec generic.TaxRecord) error {
	t.s.taxRecords = append(t.s.taxRecords, rec)
	return nil
}

func (t *txView) TaxRecords(_ context.Context, investor generic.InvestorID, period generic.Period) ([]generic.TaxRecord, error) {
	return t.s.filterTaxRecords(investor, period), nil
}

func (t *txView) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	t.s.audit = append(t.s.audit, e)
	return nil
}

func (t *txView) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	return t.s.queryAudit(f), nil
}

var (
	_ generic.TxRepository = (*Memory)(nil)
	_ generic.Repository   = (*txView)(nil)
)
