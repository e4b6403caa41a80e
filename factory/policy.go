/*
Package factory converts inbound JSON records into engine types.

PURPOSE:
  The records layer hands the engine plain JSON: a policy snapshot, the
  policy's ledger rows, a withdrawal request. Each document is checked
  against a JSON Schema first, then decoded, then defaulted and validated
  with the engine's own contract checks. Only records that pass all three
  reach the engine.

JSON SCHEMA:
  {
    "id": "pol-1",
    "policy_number": "WARP-2024-0001",
    "investor_id": "inv-1",
    "investor_name": "Ada Obi",
    "principal_amount": "500000",
    "roi_rate": 40,
    "roi_frequency": "monthly",
    "start_date": "2024-01-15",
    "min_withdrawal_months": 4,
    "status": "active"
  }

DEFAULTS:
  - current_balance: principal_amount
  - roi_balance: 0
  - roi_rate: 40
  - roi_frequency: monthly
  - min_withdrawal_months: Factory.MinWithdrawalMonths (4 unless configured)
  - status: active

USAGE:
  f, err := factory.NewFactory()
  policy, err := f.ParsePolicy(data)
  entries, err := f.ParseEntries(ledgerData)
  req, err := f.ParseRequest(requestData)

SEE ALSO:
  - schema.go: The schemas applied before decoding
  - generic/types.go: Policy.Validate, the final contract check
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// ErrInvalidRecord wraps every decoding and schema failure.
var ErrInvalidRecord = errors.New("invalid record")

// =============================================================================
// JSON RECORD TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy snapshot.
type PolicyJSON struct {
	ID                  string           `json:"id"`
	PolicyNumber        string           `json:"policy_number,omitempty"`
	InvestorID          string           `json:"investor_id,omitempty"`
	InvestorName        string           `json:"investor_name,omitempty"`
	PrincipalAmount     generic.Amount   `json:"principal_amount"`
	CurrentBalance      *generic.Amount  `json:"current_balance,omitempty"` // defaults to principal
	ROIBalance          *generic.Amount  `json:"roi_balance,omitempty"`
	ROIRate             *decimal.Decimal `json:"roi_rate,omitempty"` // annual percent
	ROIFrequency        string           `json:"roi_frequency,omitempty"`
	StartDate           string           `json:"start_date"`
	MinWithdrawalMonths *int             `json:"min_withdrawal_months,omitempty"`
	Status              string           `json:"status,omitempty"`
	Version             int              `json:"version,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory holds the compiled schemas. It is safe for concurrent use once
// configured.
type Factory struct {
	// MinWithdrawalMonths is the lock-in applied when a policy record
	// omits min_withdrawal_months.
	MinWithdrawalMonths int

	policy  *jsonschema.Schema
	entries *jsonschema.Schema
	request *jsonschema.Schema
}

func NewFactory() (*Factory, error) {
	policy, err := compile("policy.json", policySchema)
	if err != nil {
		return nil, err
	}
	entries, err := compile("entries.json", entriesSchema)
	if err != nil {
		return nil, err
	}
	request, err := compile("request.json", requestSchema)
	if err != nil {
		return nil, err
	}
	return &Factory{
		MinWithdrawalMonths: generic.DefaultMinWithdrawalMonths,
		policy:              policy,
		entries:             entries,
		request:             request,
	}, nil
}

// MustNewFactory panics if the built-in schemas fail to compile.
func MustNewFactory() *Factory {
	f, err := NewFactory()
	if err != nil {
		panic(err)
	}
	return f
}

func compile(name, schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// ParsePolicy validates and decodes a policy snapshot.
func (f *Factory) ParsePolicy(data []byte) (generic.Policy, error) {
	if err := check(f.policy, "policy", data); err != nil {
		return generic.Policy{}, err
	}
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return generic.Policy{}, fmt.Errorf("%w: failed to parse policy JSON: %v", ErrInvalidRecord, err)
	}
	return f.FromJSON(pj)
}

// FromJSON applies defaults and the policy contract checks.
func (f *Factory) FromJSON(pj PolicyJSON) (generic.Policy, error) {
	start, err := generic.ParseTimePoint(pj.StartDate)
	if err != nil {
		return generic.Policy{}, fmt.Errorf("%w: start_date: %v", ErrInvalidRecord, err)
	}

	policy := generic.NewPolicy(generic.PolicyID(pj.ID), generic.InvestorID(pj.InvestorID), pj.PrincipalAmount.Round(), start)
	policy.PolicyNumber = pj.PolicyNumber
	policy.InvestorName = pj.InvestorName
	policy.Version = pj.Version
	policy.MinWithdrawalMonths = f.MinWithdrawalMonths

	if pj.CurrentBalance != nil {
		policy.CurrentBalance = pj.CurrentBalance.Round()
	}
	if pj.ROIBalance != nil {
		policy.ROIBalance = pj.ROIBalance.Round()
	}
	if pj.ROIRate != nil {
		policy.ROIRate = *pj.ROIRate
	}
	if pj.ROIFrequency != "" {
		policy.ROIFrequency = generic.ROIFrequency(pj.ROIFrequency)
	}
	if pj.MinWithdrawalMonths != nil {
		policy.MinWithdrawalMonths = *pj.MinWithdrawalMonths
	}
	if pj.Status != "" {
		policy.Status = generic.PolicyStatus(pj.Status)
	}

	if err := policy.Validate(); err != nil {
		return generic.Policy{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return policy, nil
}

// ToJSON converts a Policy back to its record form.
func (f *Factory) ToJSON(policy generic.Policy) PolicyJSON {
	current, roi, rate, months := policy.CurrentBalance, policy.ROIBalance, policy.ROIRate, policy.MinWithdrawalMonths
	return PolicyJSON{
		ID:                  string(policy.ID),
		PolicyNumber:        policy.PolicyNumber,
		InvestorID:          string(policy.InvestorID),
		InvestorName:        policy.InvestorName,
		PrincipalAmount:     policy.PrincipalAmount,
		CurrentBalance:      &current,
		ROIBalance:          &roi,
		ROIRate:             &rate,
		ROIFrequency:        string(policy.ROIFrequency),
		StartDate:           policy.StartDate.String(),
		MinWithdrawalMonths: &months,
		Status:              string(policy.Status),
		Version:             policy.Version,
	}
}

// ParseEntries validates and decodes a policy's ledger rows. Rows are
// returned in document order; ledger.Verify checks the chain.
func (f *Factory) ParseEntries(data []byte) ([]generic.LedgerEntry, error) {
	if err := check(f.entries, "ledger entries", data); err != nil {
		return nil, err
	}
	var entries []generic.LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ledger JSON: %v", ErrInvalidRecord, err)
	}
	for i := range entries {
		if entries[i].Sequence == 0 {
			entries[i].Sequence = i + 1
		}
	}
	return entries, nil
}

// ParseRequest validates and decodes a withdrawal request. A missing status
// decodes as pending.
func (f *Factory) ParseRequest(data []byte) (generic.WithdrawalRequest, error) {
	if err := check(f.request, "withdrawal request", data); err != nil {
		return generic.WithdrawalRequest{}, err
	}
	var req generic.WithdrawalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return generic.WithdrawalRequest{}, fmt.Errorf("%w: failed to parse request JSON: %v", ErrInvalidRecord, err)
	}
	if req.Status == "" {
		req.Status = generic.RequestPending
	}
	req.AmountRequested = req.AmountRequested.Round()
	return req, nil
}

// check decodes with UseNumber so the schema sees exact numerals.
func check(schema *jsonschema.Schema, what string, data []byte) error {
	var payload interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %v", ErrInvalidRecord, what, err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, what, err)
	}
	return nil
}
