package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func testPolicy() generic.Policy {
	p := generic.NewPolicy("pol-1", "inv-1", generic.Naira("500000"), date(2024, time.January, 15))
	p.PolicyNumber = "WARP-0001"
	p.InvestorName = "Ada Obi"
	return p
}

func TestSQLite_PolicyRoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.CreatePolicy(ctx, testPolicy()))
	assert.ErrorIs(t, s.CreatePolicy(ctx, testPolicy()), generic.ErrPolicyExists)

	got, err := s.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "500000.00", got.CurrentBalance.String())
	assert.Equal(t, "40", got.ROIRate.String())
	assert.Equal(t, "2024-01-15", got.StartDate.String())
	assert.Equal(t, "Ada Obi", got.InvestorName)

	// GIVEN: Two writers holding version 1
	// WHEN: Both update
	// THEN: The second sees ErrConcurrentModification
	first := got.WithBalances(generic.Naira("500000"), generic.Naira("16666.67"))
	second := got.WithFrequency(generic.FrequencyOnDemand)
	require.NoError(t, s.UpdatePolicy(ctx, first))
	assert.ErrorIs(t, s.UpdatePolicy(ctx, second), generic.ErrConcurrentModification)

	got, err = s.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "16666.67", got.ROIBalance.String())

	_, err = s.GetPolicy(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)
	assert.ErrorIs(t, s.UpdatePolicy(ctx, generic.Policy{ID: "missing"}), generic.ErrPolicyNotFound)

	list, err := s.ListPolicies(ctx, generic.PolicyActive)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.ListPolicies(ctx, generic.PolicyClosed)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_LedgerEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	policy := testPolicy()

	built, err := ledger.Build(policy, nil, []ledger.Event{
		{Type: generic.EntryAccrual, Date: date(2024, time.March, 1), Amount: generic.Naira("16666.67"), IdempotencyKey: "accrual:pol-1:2024-03"},
		{Type: generic.EntryWithdrawal, WithdrawalType: generic.WithdrawROIOnly, Date: date(2024, time.March, 5), Amount: generic.Naira("6666.67"), ReferenceID: "req-1"},
		{Type: generic.EntryTopUp, Date: date(2024, time.April, 2), Amount: generic.Naira("100000"), CreatedAt: date(2024, time.April, 2)},
	})
	require.NoError(t, err)
	require.NoError(t, s.AppendBatch(ctx, built))

	loaded, err := s.Load(ctx, "pol-1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.NoError(t, ledger.Verify(loaded))
	assert.NotEmpty(t, loaded[0].ID, "store assigns IDs")
	assert.Equal(t, "-6666.67", loaded[1].ROIChange.String())
	assert.Equal(t, generic.WithdrawROIOnly, loaded[1].WithdrawalType)
	assert.Equal(t, "610000.00", loaded[2].TotalBalance.String())
	assert.Equal(t, "2024-04-02", loaded[2].CreatedAt.String())

	inMarch, err := s.LoadRange(ctx, "pol-1", date(2024, time.March, 1), date(2024, time.March, 31))
	require.NoError(t, err)
	assert.Len(t, inMarch, 2)

	exists, err := s.Exists(ctx, "accrual:pol-1:2024-03")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := built[0]
	dup.ID = ""
	dup.Sequence = 4
	assert.ErrorIs(t, s.Append(ctx, dup), generic.ErrDuplicateIdempotencyKey)

	// Same sequence twice means a second writer extended the chain.
	next, err := ledger.AppendEntry(policy, loaded, ledger.Event{Type: generic.EntryTopUp, Date: date(2024, time.May, 1), Amount: generic.Naira("1")})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, next))
	assert.ErrorIs(t, s.Append(ctx, next), generic.ErrConcurrentModification)
}

func TestSQLite_AppendBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	built, err := ledger.Build(testPolicy(), nil, []ledger.Event{
		{Type: generic.EntryTopUp, Date: date(2024, time.March, 1), Amount: generic.Naira("1"), IdempotencyKey: "k"},
		{Type: generic.EntryTopUp, Date: date(2024, time.March, 2), Amount: generic.Naira("1"), IdempotencyKey: "k"},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, s.AppendBatch(ctx, built), generic.ErrDuplicateIdempotencyKey)

	loaded, err := s.Load(ctx, "pol-1")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLite_RequestTransitions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	req := generic.WithdrawalRequest{
		ID:              "req-1",
		PolicyID:        "pol-1",
		Type:            generic.WithdrawComposite,
		AmountRequested: generic.Naira("600000"),
		RequestDate:     date(2024, time.June, 1),
		Status:          generic.RequestPending,
		Bank:            generic.BankDetails{BankName: "GTBank", AccountName: "Ada Obi", AccountNumber: "0123456789"},
	}
	require.NoError(t, s.CreateRequest(ctx, req))
	assert.ErrorIs(t, s.CreateRequest(ctx, req), generic.ErrRequestExists)

	decided := date(2024, time.June, 2)
	approved := req
	approved.Status = generic.RequestApproved
	approved.DecidedBy = "admin-1"
	approved.DecidedAt = &decided
	require.NoError(t, s.UpdateRequestStatus(ctx, approved, generic.RequestPending))

	// A stale writer still believing the request is pending loses.
	rejected := req
	rejected.Status = generic.RequestRejected
	err := s.UpdateRequestStatus(ctx, rejected, generic.RequestPending)
	var te *generic.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, generic.RequestApproved, te.From)

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, generic.RequestApproved, got.Status)
	assert.Equal(t, "admin-1", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.Equal(t, "2024-06-02", got.DecidedAt.String())
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, "0123456789", got.Bank.AccountNumber)

	list, err := s.ListRequests(ctx, "pol-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

func TestSQLite_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreatePolicy(ctx, testPolicy()))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo generic.Repository) error {
		p, err := repo.GetPolicy(ctx, "pol-1")
		require.NoError(t, err)
		require.NoError(t, repo.UpdatePolicy(ctx, p.WithBalances(generic.Naira("1"), generic.Naira("0"))))
		require.NoError(t, repo.AppendAudit(ctx, generic.AuditEntry{Action: generic.AuditManualAdjust, PolicyID: "pol-1", Timestamp: date(2024, time.June, 1)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "500000.00", p.CurrentBalance.String())

	audit, err := s.QueryAudit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestSQLite_TaxRecordsAndAudit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, rec := range []generic.TaxRecord{
		{PolicyID: "pol-1", InvestorID: "inv-1", RequestID: "req-1", PaymentDate: date(2024, time.March, 5), TaxType: "WHT", Category: "INTEREST", Rate: "0.1", Gross: generic.Naira("16666.67"), Tax: generic.Naira("1666.67"), Net: generic.Naira("15000")},
		{PolicyID: "pol-1", InvestorID: "inv-1", PaymentDate: date(2025, time.January, 5), TaxType: "WHT", Rate: "0.1", Gross: generic.Naira("100"), Tax: generic.Naira("10"), Net: generic.Naira("90")},
		{PolicyID: "pol-2", InvestorID: "inv-2", PaymentDate: date(2024, time.May, 5), TaxType: "WHT", Rate: "0.1", Gross: generic.Naira("100"), Tax: generic.Naira("10"), Net: generic.Naira("90")},
	} {
		require.NoError(t, s.AppendTaxRecord(ctx, rec))
	}

	recs, err := s.TaxRecords(ctx, "inv-1", generic.TaxYear(2024))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1666.67", recs[0].Tax.String())
	assert.Equal(t, generic.RequestID("req-1"), recs[0].RequestID)

	all, err := s.TaxRecords(ctx, "", generic.TaxYear(2024))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{ActorID: "admin-1", Action: generic.AuditRequestApproved, PolicyID: "pol-1", RequestID: "req-1", Timestamp: date(2024, time.June, 2), Payload: map[string]any{"amount": "600000.00"}}))
	require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{ActorID: "system", Action: generic.AuditAccrualsPosted, PolicyID: "pol-1", Timestamp: date(2024, time.July, 1)}))

	pid := generic.PolicyID("pol-1")
	got, err := s.QueryAudit(ctx, generic.AuditFilter{PolicyID: &pid, Actions: []generic.AuditAction{generic.AuditRequestApproved}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "600000.00", got[0].Payload["amount"])

	from := date(2024, time.July, 1)
	got, err = s.QueryAudit(ctx, generic.AuditFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, generic.AuditAccrualsPosted, got[0].Action)
}
