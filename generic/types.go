/*
Package generic provides the core data model of the investment engine.

PURPOSE:
  This package holds the plain data records that flow between the engine
  and its collaborators: policies, ledger entries, withdrawal requests.
  Every other package (accrual, withdrawal, tax, ledger, payout) is a pure
  transformation over these records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A Naira value backed by decimal.Decimal
  - Policy: Snapshot of an investment policy (principal, ROI, lock-in)
  - LedgerEntry: Immutable balance-affecting event with its post-state
  - WithdrawalRequest: A request to draw ROI and/or principal

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only corrected by new entries
  2. Precision: decimal.Decimal everywhere, rounding only at output boundaries
  3. Type Safety: Strong typing for IDs prevents mixing policy/request IDs
  4. Explicit time: Nothing reads the wall clock; callers pass "as of" dates

USAGE:
  policy := generic.NewPolicy("pol-1", "inv-1", generic.Naira("500000"), generic.NewTimePoint(2024, time.January, 15))
  monthly := policy.CurrentBalance.Mul(policy.ROIRate).Div(decimal.NewFromInt(1200))

SEE ALSO:
  - errors.go: Error kinds returned by evaluations
  - ledger.go: Append-only persistence of LedgerEntry
  - store.go: Collaborator contracts
*/
package generic

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Naira value
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const CurrencyNGN Currency = "NGN"

// MoneyPlaces is the number of decimal places of every monetary output.
const MoneyPlaces = 2

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: CurrencyNGN}
}

func NewAmountFromDecimal(value decimal.Decimal) Amount {
	return Amount{Value: value, Currency: CurrencyNGN}
}

// Naira parses a decimal string into an Amount. Invalid input yields zero.
func Naira(s string) Amount {
	return Amount{Value: MustParseDecimal(s), Currency: CurrencyNGN}
}

func ZeroNaira() Amount { return Amount{Value: decimal.Zero, Currency: CurrencyNGN} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                     { return Amount{Value: decimal.Zero, Currency: a.currency()} }
func (a Amount) Add(b Amount) Amount              { return Amount{Value: a.Value.Add(b.Value), Currency: a.currency()} }
func (a Amount) Sub(b Amount) Amount              { return Amount{Value: a.Value.Sub(b.Value), Currency: a.currency()} }
func (a Amount) Mul(s decimal.Decimal) Amount     { return Amount{Value: a.Value.Mul(s), Currency: a.currency()} }
func (a Amount) Div(s decimal.Decimal) Amount     { return Amount{Value: a.Value.Div(s), Currency: a.currency()} }
func (a Amount) Neg() Amount                      { return Amount{Value: a.Value.Neg(), Currency: a.currency()} }
func (a Amount) IsNegative() bool                 { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                     { return a.Value.IsZero() }
func (a Amount) IsPositive() bool                 { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool              { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool        { return a.Value.GreaterThan(b.Value) }
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.Value.GreaterThanOrEqual(b.Value) }
func (a Amount) LessThan(b Amount) bool           { return a.Value.LessThan(b.Value) }
func (a Amount) LessThanOrEqual(b Amount) bool    { return a.Value.LessThanOrEqual(b.Value) }
func (a Amount) String() string                   { return a.Value.StringFixed(MoneyPlaces) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Round rounds to two decimal places, half away from zero. For the
// non-negative values the engine emits this is round-half-up.
func (a Amount) Round() Amount {
	return Amount{Value: a.Value.Round(MoneyPlaces), Currency: a.currency()}
}

// MarshalJSON writes the value as a fixed two-place string, e.g. "16666.67".
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*a = ZeroNaira()
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	*a = NewAmountFromDecimal(d)
	return nil
}

func (a Amount) currency() Currency {
	if a.Currency == "" {
		return CurrencyNGN
	}
	return a.Currency
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PolicyID string
type InvestorID string
type EntryID string
type RequestID string

// =============================================================================
// POLICY - Snapshot supplied by the records layer
// =============================================================================

type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "active"
	PolicySuspended PolicyStatus = "suspended"
	PolicyMatured   PolicyStatus = "matured"
	PolicyClosed    PolicyStatus = "closed"
)

func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyActive, PolicySuspended, PolicyMatured, PolicyClosed:
		return true
	}
	return false
}

// Accrues reports whether ROI keeps accruing in this status.
func (s PolicyStatus) Accrues() bool {
	return s != PolicyClosed && s != PolicyMatured
}

type ROIFrequency string

const (
	FrequencyMonthly  ROIFrequency = "monthly"
	FrequencyOnDemand ROIFrequency = "on_demand"
)

func (f ROIFrequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyOnDemand
}

// Onboarding defaults used when a policy is opened without explicit terms.
var DefaultROIRate = decimal.NewFromInt(40)

const DefaultMinWithdrawalMonths = 4

type Policy struct {
	ID           PolicyID   `json:"id"`
	PolicyNumber string     `json:"policy_number"`
	InvestorID   InvestorID `json:"investor_id"`
	InvestorName string     `json:"investor_name"`

	PrincipalAmount Amount `json:"principal_amount"` // original investment
	CurrentBalance  Amount `json:"current_balance"`  // principal net of principal withdrawals plus top-ups
	ROIBalance      Amount `json:"roi_balance"`      // accrued-but-unpaid ROI

	ROIRate             decimal.Decimal `json:"roi_rate"` // annual percentage, e.g. 40 for 40%
	ROIFrequency        ROIFrequency    `json:"roi_frequency"`
	StartDate           TimePoint       `json:"start_date"`
	MinWithdrawalMonths int             `json:"min_withdrawal_months"`
	Status              PolicyStatus    `json:"status"`

	// Optimistic concurrency token maintained by the records layer.
	Version int `json:"version"`
}

// NewPolicy returns an Active monthly policy with the onboarding defaults.
func NewPolicy(id PolicyID, investor InvestorID, principal Amount, start TimePoint) Policy {
	return Policy{
		ID:                  id,
		InvestorID:          investor,
		PrincipalAmount:     principal,
		CurrentBalance:      principal,
		ROIBalance:          ZeroNaira(),
		ROIRate:             DefaultROIRate,
		ROIFrequency:        FrequencyMonthly,
		StartDate:           start,
		MinWithdrawalMonths: DefaultMinWithdrawalMonths,
		Status:              PolicyActive,
	}
}

// TotalBalance is principal plus unpaid ROI.
func (p Policy) TotalBalance() Amount {
	return p.CurrentBalance.Add(p.ROIBalance)
}

// LockInEnds returns the first day principal may be withdrawn.
func (p Policy) LockInEnds() TimePoint {
	return p.StartDate.AddMonthsClamped(p.MinWithdrawalMonths)
}

// PrincipalUnlocked reports whether the lock-in has elapsed at today.
// Comparison is in calendar months, not elapsed days.
func (p Policy) PrincipalUnlocked(today TimePoint) bool {
	return MonthsBetween(p.StartDate, today) >= p.MinWithdrawalMonths
}

// WithFrequency returns a copy switched to the given ROI frequency.
func (p Policy) WithFrequency(f ROIFrequency) Policy {
	p.ROIFrequency = f
	return p
}

// WithBalances returns a copy carrying the balances of a ledger post-state.
func (p Policy) WithBalances(principal, roi Amount) Policy {
	p.CurrentBalance = principal
	p.ROIBalance = roi
	return p
}

// Validate checks the fields every engine operation depends on.
// A failure here is a contract violation, not a business outcome.
func (p Policy) Validate() error {
	switch {
	case p.ID == "":
		return &ContractError{Field: "id", Problem: "required"}
	case p.StartDate.IsZero():
		return &ContractError{Field: "start_date", Problem: "required"}
	case !p.ROIRate.IsPositive():
		return &ContractError{Field: "roi_rate", Problem: "must be positive"}
	case !p.ROIFrequency.Valid():
		return &ContractError{Field: "roi_frequency", Problem: "unknown value " + string(p.ROIFrequency)}
	case !p.Status.Valid():
		return &ContractError{Field: "status", Problem: "unknown value " + string(p.Status)}
	case p.MinWithdrawalMonths < 0:
		return &ContractError{Field: "min_withdrawal_months", Problem: "must not be negative"}
	case p.PrincipalAmount.IsNegative():
		return &ContractError{Field: "principal_amount", Problem: "must not be negative"}
	case p.CurrentBalance.IsNegative():
		return &ContractError{Field: "current_balance", Problem: "must not be negative"}
	case p.ROIBalance.IsNegative():
		return &ContractError{Field: "roi_balance", Problem: "must not be negative"}
	}
	return nil
}

// =============================================================================
// LEDGER ENTRY - Immutable record carrying its own post-state
// =============================================================================

type EntryType string

const (
	EntryTopUp      EntryType = "top_up"
	EntryAccrual    EntryType = "accrual"
	EntryWithdrawal EntryType = "withdrawal"
	EntryAdjustment EntryType = "adjustment"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTopUp, EntryAccrual, EntryWithdrawal, EntryAdjustment:
		return true
	}
	return false
}

type LedgerEntry struct {
	ID          EntryID   `json:"id"`
	PolicyID    PolicyID  `json:"policy_id"`
	Sequence    int       `json:"sequence"` // insertion order within the policy, starts at 1
	EntryDate   TimePoint `json:"entry_date"`
	Description string    `json:"description"`
	Type        EntryType `json:"type"`

	Inflow  Amount `json:"inflow"`
	Outflow Amount `json:"outflow"`

	// Signed effect on each balance, kept so the pre-state is recoverable.
	PrincipalChange Amount `json:"principal_change"`
	ROIChange       Amount `json:"roi_change"`

	// Post-state after applying this entry.
	PrincipalBalance Amount `json:"principal_balance"`
	ROIBalance       Amount `json:"roi_balance"`
	TotalBalance     Amount `json:"total_balance"`

	WithdrawalType WithdrawalType `json:"withdrawal_type,omitempty"` // set on withdrawal entries
	ReferenceID    string         `json:"reference_id,omitempty"`    // request ID, accrual period, etc.
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      TimePoint      `json:"created_at,omitempty"`
}

// Before returns the balances immediately preceding this entry.
func (e LedgerEntry) Before() Balances {
	return Balances{
		Principal: e.PrincipalBalance.Sub(e.PrincipalChange),
		ROI:       e.ROIBalance.Sub(e.ROIChange),
	}
}

// After returns the balances immediately following this entry.
func (e LedgerEntry) After() Balances {
	return Balances{Principal: e.PrincipalBalance, ROI: e.ROIBalance}
}

// Balances is a principal/ROI pair.
type Balances struct {
	Principal Amount `json:"principal"`
	ROI       Amount `json:"roi"`
}

func (b Balances) Total() Amount { return b.Principal.Add(b.ROI) }

// =============================================================================
// WITHDRAWAL REQUEST
// =============================================================================

type WithdrawalType string

const (
	WithdrawROIOnly       WithdrawalType = "roi_only"
	WithdrawPrincipalOnly WithdrawalType = "principal_only"
	WithdrawComposite     WithdrawalType = "composite"
)

func (t WithdrawalType) Valid() bool {
	switch t {
	case WithdrawROIOnly, WithdrawPrincipalOnly, WithdrawComposite:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestProcessed RequestStatus = "processed"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestProcessed
}

type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

type WithdrawalRequest struct {
	ID              RequestID      `json:"id"`
	PolicyID        PolicyID       `json:"policy_id"`
	Type            WithdrawalType `json:"type"`
	AmountRequested Amount         `json:"amount_requested"`
	RequestDate     TimePoint      `json:"request_date"`
	Status          RequestStatus  `json:"status"`
	Bank            BankDetails    `json:"bank"`

	// Decision tracking
	DecidedBy       string     `json:"decided_by,omitempty"`
	DecidedAt       *TimePoint `json:"decided_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ProcessedAt     *TimePoint `json:"processed_at,omitempty"`
}
