package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/factory"
	"github.com/warp/investment-engine/generic"
)

func TestParsePolicy_AppliesDefaults(t *testing.T) {
	// GIVEN: A minimal policy record
	// WHEN: Parsed
	// THEN: Onboarding defaults fill the omitted fields

	f := factory.MustNewFactory()
	p, err := f.ParsePolicy([]byte(`{
		"id": "pol-1",
		"investor_id": "inv-1",
		"principal_amount": "500000",
		"start_date": "2024-01-15"
	}`))
	require.NoError(t, err)

	assert.Equal(t, generic.PolicyID("pol-1"), p.ID)
	assert.Equal(t, "500000.00", p.CurrentBalance.String())
	assert.True(t, p.ROIBalance.IsZero())
	assert.Equal(t, "40", p.ROIRate.String())
	assert.Equal(t, generic.FrequencyMonthly, p.ROIFrequency)
	assert.Equal(t, 4, p.MinWithdrawalMonths)
	assert.Equal(t, generic.PolicyActive, p.Status)
	assert.Equal(t, "2024-01-15", p.StartDate.String())
}

func TestParsePolicy_ConfiguredLockIn(t *testing.T) {
	f := factory.MustNewFactory()
	f.MinWithdrawalMonths = 6

	p, err := f.ParsePolicy([]byte(`{"id":"pol-1","principal_amount":"1000","start_date":"2024-01-15"}`))
	require.NoError(t, err)
	assert.Equal(t, 6, p.MinWithdrawalMonths)

	p, err = f.ParsePolicy([]byte(`{"id":"pol-2","principal_amount":"1000","start_date":"2024-01-15","min_withdrawal_months":0}`))
	require.NoError(t, err)
	assert.Equal(t, 0, p.MinWithdrawalMonths, "an explicit value wins")
	assert.Equal(t, 4, factory.MustNewFactory().MinWithdrawalMonths)
}

func TestParsePolicy_ExplicitFields(t *testing.T) {
	f := factory.MustNewFactory()
	p, err := f.ParsePolicy([]byte(`{
		"id": "pol-2",
		"policy_number": "WARP-0002",
		"principal_amount": 1000000,
		"current_balance": 600000,
		"roi_balance": "12500.50",
		"roi_rate": 36,
		"roi_frequency": "on_demand",
		"start_date": "2023-11-30",
		"min_withdrawal_months": 6,
		"status": "suspended",
		"version": 7
	}`))
	require.NoError(t, err)

	assert.Equal(t, "WARP-0002", p.PolicyNumber)
	assert.Equal(t, "600000.00", p.CurrentBalance.String())
	assert.Equal(t, "12500.50", p.ROIBalance.String())
	assert.Equal(t, "36", p.ROIRate.String())
	assert.Equal(t, generic.FrequencyOnDemand, p.ROIFrequency)
	assert.Equal(t, 6, p.MinWithdrawalMonths)
	assert.Equal(t, generic.PolicySuspended, p.Status)
	assert.Equal(t, 7, p.Version)
}

func TestParsePolicy_SchemaRejects(t *testing.T) {
	f := factory.MustNewFactory()

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing id", `{"principal_amount": 1, "start_date": "2024-01-01"}`},
		{"negative principal", `{"id": "p", "principal_amount": -5, "start_date": "2024-01-01"}`},
		{"bad amount string", `{"id": "p", "principal_amount": "5,000", "start_date": "2024-01-01"}`},
		{"bad date", `{"id": "p", "principal_amount": 5, "start_date": "15/01/2024"}`},
		{"unknown frequency", `{"id": "p", "principal_amount": 5, "start_date": "2024-01-01", "roi_frequency": "weekly"}`},
		{"unknown status", `{"id": "p", "principal_amount": 5, "start_date": "2024-01-01", "status": "frozen"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParsePolicy([]byte(tt.doc))
			assert.ErrorIs(t, err, factory.ErrInvalidRecord)
		})
	}
}

func TestParsePolicy_ContractCheckAfterSchema(t *testing.T) {
	// GIVEN: Schema-valid record with a zero ROI rate
	// THEN: Policy.Validate rejects it as a contract violation

	f := factory.MustNewFactory()
	_, err := f.ParsePolicy([]byte(`{"id": "p", "principal_amount": 5, "start_date": "2024-01-01", "roi_rate": 0}`))
	assert.ErrorIs(t, err, factory.ErrInvalidRecord)
	assert.ErrorIs(t, err, generic.ErrContractViolation)

	// Month 13 passes the pattern but not the date parser.
	_, err = f.ParsePolicy([]byte(`{"id": "p", "principal_amount": 5, "start_date": "2024-13-01"}`))
	assert.ErrorIs(t, err, factory.ErrInvalidRecord)
}

func TestToJSON_RoundTripsThroughParse(t *testing.T) {
	f := factory.MustNewFactory()
	orig, err := f.ParsePolicy([]byte(`{"id": "pol-3", "principal_amount": "250000", "start_date": "2024-03-12", "roi_balance": "100"}`))
	require.NoError(t, err)

	data, err := json.Marshal(f.ToJSON(orig))
	require.NoError(t, err)

	back, err := f.ParsePolicy(data)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, back.ID)
	assert.True(t, orig.CurrentBalance.Equal(back.CurrentBalance))
	assert.True(t, orig.ROIBalance.Equal(back.ROIBalance))
	assert.True(t, orig.ROIRate.Equal(back.ROIRate))
	assert.Equal(t, orig.StartDate, back.StartDate)
}

func TestParseEntries(t *testing.T) {
	f := factory.MustNewFactory()
	entries, err := f.ParseEntries([]byte(`[
		{"policy_id": "pol-1", "entry_date": "2024-02-01", "type": "accrual",
		 "inflow": "16666.67", "roi_change": "16666.67",
		 "principal_balance": "500000", "roi_balance": "16666.67", "total_balance": "516666.67"},
		{"policy_id": "pol-1", "entry_date": "2024-02-10", "type": "withdrawal", "withdrawal_type": "roi_only",
		 "outflow": "6666.67", "roi_change": "-6666.67",
		 "principal_balance": "500000", "roi_balance": "10000", "total_balance": "510000"}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, 2, entries[1].Sequence)
	assert.Equal(t, generic.WithdrawROIOnly, entries[1].WithdrawalType)
	assert.Equal(t, "-6666.67", entries[1].ROIChange.String())
	assert.Equal(t, "500000.00", entries[1].Before().Principal.String())
	assert.Equal(t, "16666.67", entries[1].Before().ROI.String())
}

func TestParseEntries_RejectsNegativeBalance(t *testing.T) {
	f := factory.MustNewFactory()
	_, err := f.ParseEntries([]byte(`[{"policy_id": "p", "entry_date": "2024-02-01", "type": "accrual",
		"principal_balance": "-1", "roi_balance": "0", "total_balance": "-1"}]`))
	assert.ErrorIs(t, err, factory.ErrInvalidRecord)
}

func TestParseRequest(t *testing.T) {
	f := factory.MustNewFactory()
	req, err := f.ParseRequest([]byte(`{
		"policy_id": "pol-1",
		"type": "composite",
		"amount_requested": 600000,
		"request_date": "2024-06-01",
		"bank": {"bank_name": "GTBank", "account_name": "Ada Obi", "account_number": "0123456789"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, generic.RequestPending, req.Status)
	assert.Equal(t, generic.WithdrawComposite, req.Type)
	assert.Equal(t, "600000.00", req.AmountRequested.String())
	assert.Equal(t, "0123456789", req.Bank.AccountNumber)

	_, err = f.ParseRequest([]byte(`{"policy_id": "pol-1", "type": "everything", "amount_requested": 1}`))
	assert.ErrorIs(t, err, factory.ErrInvalidRecord)

	_, err = f.ParseRequest([]byte(`{"policy_id": "pol-1", "type": "roi_only", "amount_requested": 1,
		"bank": {"account_number": "12345"}}`))
	assert.ErrorIs(t, err, factory.ErrInvalidRecord, "account numbers are ten digits")
}
