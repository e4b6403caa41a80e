package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/generic/store"
)

func testPolicy() generic.Policy {
	return generic.NewPolicy("pol-1", "inv-1", generic.Naira("500000"), generic.NewTimePoint(2024, time.January, 15))
}

func TestMemory_UpdatePolicy_OptimisticVersion(t *testing.T) {
	// GIVEN: A stored policy at version 1
	// WHEN: Two writers update from the same snapshot
	// THEN: The second gets ErrConcurrentModification

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreatePolicy(ctx, testPolicy()))

	p, err := m.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)

	first := p.WithBalances(generic.Naira("400000"), generic.ZeroNaira())
	require.NoError(t, m.UpdatePolicy(ctx, first))

	second := p.WithBalances(generic.Naira("300000"), generic.ZeroNaira())
	assert.ErrorIs(t, m.UpdatePolicy(ctx, second), generic.ErrConcurrentModification)

	stored, err := m.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "400000.00", stored.CurrentBalance.String())
}

func TestMemory_CreatePolicy_Duplicate(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreatePolicy(ctx, testPolicy()))
	assert.ErrorIs(t, m.CreatePolicy(ctx, testPolicy()), generic.ErrPolicyExists)

	_, err := m.GetPolicy(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestMemory_UpdateRequestStatus_StaleFrom(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	req := generic.WithdrawalRequest{
		ID:              "req-1",
		PolicyID:        "pol-1",
		Type:            generic.WithdrawROIOnly,
		AmountRequested: generic.Naira("1000"),
		RequestDate:     generic.NewTimePoint(2024, time.June, 1),
		Status:          generic.RequestPending,
	}
	require.NoError(t, m.CreateRequest(ctx, req))

	req.Status = generic.RequestApproved
	require.NoError(t, m.UpdateRequestStatus(ctx, req, generic.RequestPending))

	req.Status = generic.RequestRejected
	err := m.UpdateRequestStatus(ctx, req, generic.RequestPending)
	var te *generic.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, generic.RequestApproved, te.From)
}

func TestMemory_WithTx_RollsBackEverything(t *testing.T) {
	// GIVEN: A policy with no entries
	// WHEN: A transaction appends an entry, updates the policy, then fails
	// THEN: Neither the entry nor the policy update is visible

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreatePolicy(ctx, testPolicy()))
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(repo generic.Repository) error {
		require.NoError(t, repo.Append(ctx, generic.LedgerEntry{
			ID: "e1", PolicyID: "pol-1", Sequence: 1,
			EntryDate: generic.NewTimePoint(2024, time.February, 1), IdempotencyKey: "e1",
		}))
		p, err := repo.GetPolicy(ctx, "pol-1")
		require.NoError(t, err)
		p.Status = generic.PolicySuspended
		require.NoError(t, repo.UpdatePolicy(ctx, p))
		require.NoError(t, repo.AppendAudit(ctx, generic.AuditEntry{ID: "a1", PolicyID: "pol-1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := m.Load(ctx, "pol-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	exists, err := m.Exists(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, exists)

	p, err := m.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyActive, p.Status)
	assert.Equal(t, 1, p.Version)

	audit, err := m.QueryAudit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestMemory_TaxRecords_FilterByInvestorAndPeriod(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	for i, d := range []generic.TimePoint{
		generic.NewTimePoint(2023, time.December, 31),
		generic.NewTimePoint(2024, time.March, 1),
		generic.NewTimePoint(2024, time.September, 1),
	} {
		require.NoError(t, m.AppendTaxRecord(ctx, generic.TaxRecord{
			ID: string(rune('a' + i)), InvestorID: "inv-1", PaymentDate: d, TaxType: "WHT",
		}))
	}
	require.NoError(t, m.AppendTaxRecord(ctx, generic.TaxRecord{
		ID: "x", InvestorID: "inv-2", PaymentDate: generic.NewTimePoint(2024, time.May, 1),
	}))

	recs, err := m.TaxRecords(ctx, "inv-1", generic.TaxYear(2024))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	all, err := m.TaxRecords(ctx, "", generic.TaxYear(2024))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
