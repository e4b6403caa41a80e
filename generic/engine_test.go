package generic_test

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

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func naira(s string) generic.Amount {
	return generic.Naira(s)
}

func entry(id string, on generic.TimePoint, seq int, principal, roi string) generic.LedgerEntry {
	p, r := naira(principal), naira(roi)
	return generic.LedgerEntry{
		ID:               generic.EntryID(id),
		PolicyID:         "pol-1",
		Sequence:         seq,
		EntryDate:        on,
		Type:             generic.EntryAccrual,
		PrincipalBalance: p,
		ROIBalance:       r,
		TotalBalance:     p.Add(r),
		IdempotencyKey:   id,
	}
}

// =============================================================================
// AMOUNT
// =============================================================================

func TestAmount_Round_HalfUp(t *testing.T) {
	assert.Equal(t, "16666.67", naira("16666.666666").Round().String())
	assert.Equal(t, "0.13", naira("0.125").Round().String())
	assert.Equal(t, "1666.67", naira("1666.665").Round().String())
	assert.Equal(t, "15000.00", naira("15000").Round().String())
}

func TestAmount_MinMax(t *testing.T) {
	a, b := naira("10"), naira("20")
	assert.True(t, a.Min(b).Equal(a))
	assert.True(t, a.Max(b).Equal(b))
	assert.Equal(t, generic.CurrencyNGN, generic.Amount{}.Add(a).Currency)
}

// =============================================================================
// CALENDAR MONTHS
// =============================================================================

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to generic.TimePoint
		want     int
	}{
		{"same day", date(2024, 1, 15), date(2024, 1, 15), 0},
		{"day before boundary", date(2024, 1, 15), date(2024, 5, 14), 3},
		{"on boundary", date(2024, 1, 15), date(2024, 5, 15), 4},
		{"month end clamps", date(2024, 1, 31), date(2024, 2, 29), 1},
		{"month end not yet", date(2024, 1, 31), date(2024, 2, 28), 0},
		{"across years", date(2023, 11, 1), date(2024, 2, 1), 3},
		{"reverse", date(2024, 5, 15), date(2024, 1, 15), -4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.MonthsBetween(tt.from, tt.to))
		})
	}
}

func TestPolicy_PrincipalUnlocked_Boundary(t *testing.T) {
	// GIVEN: Policy started 2024-01-15 with a 4-month lock-in
	// WHEN: Checking on the boundary and the day before
	// THEN: Unlocked exactly on 2024-05-15, locked on 2024-05-14

	p := generic.NewPolicy("pol-1", "inv-1", naira("500000"), date(2024, time.January, 15))

	assert.True(t, p.PrincipalUnlocked(date(2024, time.May, 15)))
	assert.False(t, p.PrincipalUnlocked(date(2024, time.May, 14)))
	assert.Equal(t, date(2024, time.May, 15), p.LockInEnds())
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := generic.NewPolicy("pol-1", "inv-1", naira("250000"), date(2024, 3, 1))

	assert.True(t, p.ROIRate.Equal(generic.DefaultROIRate))
	assert.Equal(t, 4, p.MinWithdrawalMonths)
	assert.Equal(t, generic.FrequencyMonthly, p.ROIFrequency)
	assert.Equal(t, generic.PolicyActive, p.Status)
	assert.True(t, p.CurrentBalance.Equal(naira("250000")))
	require.NoError(t, p.Validate())

	od := p.WithFrequency(generic.FrequencyOnDemand)
	assert.Equal(t, generic.FrequencyOnDemand, od.ROIFrequency)
	assert.Equal(t, generic.FrequencyMonthly, p.ROIFrequency, "original unchanged")
}

func TestPolicy_Validate_ContractViolation(t *testing.T) {
	p := generic.NewPolicy("pol-1", "inv-1", naira("1000"), date(2024, 3, 1))
	p.ROIFrequency = "weekly"

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrContractViolation))

	var ce *generic.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "roi_frequency", ce.Field)
}

func TestTimePoint_JSON(t *testing.T) {
	var tp generic.TimePoint
	require.NoError(t, tp.UnmarshalJSON([]byte(`"2024-05-15"`)))
	assert.Equal(t, date(2024, 5, 15), tp)

	b, err := tp.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-15"`, string(b))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestEvaluationError_UnwrapsToSentinel(t *testing.T) {
	err := &generic.EvaluationError{
		Kind:      generic.KindLockedPrincipal,
		PolicyID:  "pol-1",
		Requested: naira("100"),
	}
	assert.True(t, errors.Is(err, generic.ErrLockedPrincipal))
	assert.True(t, generic.IsClientError(err))
	assert.False(t, generic.IsRetryable(err))
}

func TestPeriod_Validate(t *testing.T) {
	_, err := generic.NewPeriod(date(2024, 2, 1), date(2024, 1, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	p, err := generic.NewPeriod(date(2024, 1, 10), date(2024, 3, 1))
	require.NoError(t, err)
	assert.True(t, p.Contains(date(2024, 3, 1)))
	assert.False(t, p.Contains(date(2024, 3, 2)))
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: An accrual already posted for January
	// WHEN: Posting it again with the same key
	// THEN: ErrDuplicateIdempotencyKey, ledger unchanged

	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	e := entry("accrual:pol-1:2024-01", date(2024, 1, 1), 1, "500000", "16666.67")
	require.NoError(t, ledger.Append(ctx, e))

	err := ledger.Append(ctx, e)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	entries, err := ledger.Entries(ctx, "pol-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_BatchDuplicateWithinBatch_Rejected(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	e := entry("k1", date(2024, 1, 1), 1, "1", "0")
	err := ledger.AppendBatch(ctx, []generic.LedgerEntry{e, e})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
}

func TestLedger_OrderedByDateThenSequence(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	require.NoError(t, ledger.AppendBatch(ctx, []generic.LedgerEntry{
		entry("c", date(2024, 3, 1), 3, "500000", "3"),
		entry("a", date(2024, 1, 1), 1, "500000", "1"),
		entry("b", date(2024, 1, 1), 2, "500000", "2"),
	}))

	entries, err := ledger.Entries(ctx, "pol-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, generic.EntryID("a"), entries[0].ID)
	assert.Equal(t, generic.EntryID("b"), entries[1].ID)
	assert.Equal(t, generic.EntryID("c"), entries[2].ID)
}

func TestLedger_BalancesAt(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	require.NoError(t, ledger.Append(ctx, entry("a", date(2024, 1, 1), 1, "500000", "100")))
	require.NoError(t, ledger.Append(ctx, entry("b", date(2024, 2, 1), 2, "500000", "200")))

	_, found, err := ledger.BalancesAt(ctx, "pol-1", date(2023, 12, 31))
	require.NoError(t, err)
	assert.False(t, found)

	b, found, err := ledger.BalancesAt(ctx, "pol-1", date(2024, 1, 20))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "100.00", b.ROI.String())
	assert.Equal(t, "500100.00", b.Total().String())

	_, err = ledger.EntriesInRange(ctx, "pol-1", date(2024, 2, 1), date(2024, 1, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestLedgerEntry_BeforeAfter(t *testing.T) {
	e := entry("a", date(2024, 1, 1), 1, "450000", "0")
	e.PrincipalChange = naira("-50000")
	e.ROIChange = naira("-16666.67")

	before := e.Before()
	assert.Equal(t, "500000.00", before.Principal.String())
	assert.Equal(t, "16666.67", before.ROI.String())
	assert.Equal(t, "450000.00", e.After().Total().String())
}
