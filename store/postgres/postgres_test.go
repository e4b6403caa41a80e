package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/store/postgres"
)

// newStore connects to INVESTMENT_ENGINE_PG_DSN or skips.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("INVESTMENT_ENGINE_PG_DSN")
	if dsn == "" {
		t.Skip("INVESTMENT_ENGINE_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func TestPostgres_PolicyLedgerAndRequests(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// Unique IDs keep reruns against the same database independent.
	pid := generic.PolicyID("pol-" + uuid.NewString())
	policy := generic.NewPolicy(pid, "inv-pg", generic.Naira("500000"), date(2024, time.January, 15))
	require.NoError(t, s.CreatePolicy(ctx, policy))
	assert.ErrorIs(t, s.CreatePolicy(ctx, policy), generic.ErrPolicyExists)

	stored, err := s.GetPolicy(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "500000.00", stored.CurrentBalance.String())

	require.NoError(t, s.UpdatePolicy(ctx, stored.WithFrequency(generic.FrequencyOnDemand)))
	assert.ErrorIs(t, s.UpdatePolicy(ctx, stored), generic.ErrConcurrentModification)

	built, err := ledger.Build(policy, nil, []ledger.Event{
		{Type: generic.EntryAccrual, Date: date(2024, time.March, 1), Amount: generic.Naira("16666.67"), IdempotencyKey: "accrual:" + string(pid) + ":2024-03"},
		{Type: generic.EntryWithdrawal, WithdrawalType: generic.WithdrawComposite, Date: date(2024, time.June, 1), Amount: generic.Naira("20000")},
	})
	require.NoError(t, err)
	require.NoError(t, s.AppendBatch(ctx, built))

	loaded, err := s.Load(ctx, pid)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.NoError(t, ledger.Verify(loaded))
	assert.Equal(t, "496666.67", loaded[1].PrincipalBalance.String())

	assert.ErrorIs(t, s.Append(ctx, built[0]), generic.ErrDuplicateIdempotencyKey)

	rid := generic.RequestID("req-" + uuid.NewString())
	req := generic.WithdrawalRequest{ID: rid, PolicyID: pid, Type: generic.WithdrawROIOnly, AmountRequested: generic.Naira("100"), RequestDate: date(2024, time.June, 1), Status: generic.RequestPending}
	require.NoError(t, s.CreateRequest(ctx, req))

	approved := req
	approved.Status = generic.RequestApproved
	require.NoError(t, s.UpdateRequestStatus(ctx, approved, generic.RequestPending))

	var te *generic.TransitionError
	require.True(t, errors.As(s.UpdateRequestStatus(ctx, approved, generic.RequestPending), &te))
	assert.Equal(t, generic.RequestApproved, te.From)
}

func TestPostgres_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	pid := generic.PolicyID("pol-" + uuid.NewString())
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo generic.Repository) error {
		require.NoError(t, repo.CreatePolicy(ctx, generic.NewPolicy(pid, "inv-pg", generic.Naira("1"), date(2024, time.January, 1))))
		require.NoError(t, repo.AppendAudit(ctx, generic.AuditEntry{Action: generic.AuditPolicyOpened, PolicyID: pid, Timestamp: date(2024, time.January, 1), Payload: map[string]any{"k": "v"}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetPolicy(ctx, pid)
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)

	audit, err := s.QueryAudit(ctx, generic.AuditFilter{PolicyID: &pid})
	require.NoError(t, err)
	assert.Empty(t, audit)
}
