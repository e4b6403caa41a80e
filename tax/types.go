/*
Package tax implements the Nigerian statutory taxes applied to investment
payouts.

PURPOSE:
  Computes Withholding Tax (WHT), Personal Income Tax (PIT), Capital Gains
  Tax (CGT), Value-Added Tax (VAT) and Tertiary Education Tax (TET) for a
  gross amount, plus the composite investment tax (WHT then PIT) and
  Companies Income Tax.

TAX TYPES:
  WHT: flat, rate depends on the income category (ROI is INTEREST, 10%)
  PIT: progressive over six brackets, 7% to 24%
  CGT: flat 10%
  VAT: flat 7.5%, added on top of the amount
  TET: 2.5% of assessable profit, companies above a ₦25M turnover only

ROUNDING:
  Every monetary output is rounded to two places at the point of return.
  Rates are never rounded. PIT rows are rounded individually and the total
  is the sum of the rounded rows, so the breakdown always adds up exactly.

SEE ALSO:
  - calculator.go: Flat-rate taxes and dispatch
  - pit.go: Progressive brackets
  - investment.go: WHT + PIT composite, company tax
  - certificate.go: Certificates and annual summaries
*/
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// TAX TYPE
// =============================================================================

type Type string

const (
	WHT Type = "WHT"
	PIT Type = "PIT"
	CGT Type = "CGT"
	VAT Type = "VAT"
	TET Type = "TET"
)

func (t Type) Valid() bool {
	switch t {
	case WHT, PIT, CGT, VAT, TET:
		return true
	}
	return false
}

// Category is the income class that selects the WHT rate.
type Category string

const (
	CategoryDividends            Category = "DIVIDENDS"
	CategoryInterest             Category = "INTEREST"
	CategoryRent                 Category = "RENT"
	CategoryCommission           Category = "COMMISSION"
	CategoryProfessionalServices Category = "PROFESSIONAL_SERVICES"
	CategoryContracts            Category = "CONTRACTS"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryDividends, CategoryInterest, CategoryRent,
		CategoryCommission, CategoryProfessionalServices, CategoryContracts:
		return true
	}
	return false
}

// =============================================================================
// CALCULATION - Ephemeral result, one per tax applied
// =============================================================================

type Calculation struct {
	Type     Type            `json:"tax_type"`
	Category Category        `json:"category,omitempty"`
	Gross    generic.Amount  `json:"gross_amount"`
	Rate     decimal.Decimal `json:"tax_rate"`
	Tax      generic.Amount  `json:"tax_amount"`
	Net      generic.Amount  `json:"net_amount"`

	// Total is gross plus tax. Only meaningful for VAT, which is added on top.
	Total *generic.Amount `json:"total_amount,omitempty"`

	// EffectiveRate is tax / gross, zero when gross is zero.
	EffectiveRate decimal.Decimal `json:"effective_rate"`

	// Applicable is false when a gated tax (TET) does not apply.
	Applicable bool `json:"applicable"`

	Breakdown []BracketRow `json:"bracket_breakdown,omitempty"`
}

// BracketRow is one PIT bracket's share of the tax.
type BracketRow struct {
	Range   string          `json:"range"`
	Rate    decimal.Decimal `json:"rate"`
	Taxable generic.Amount  `json:"taxable_amount"`
	Amount  generic.Amount  `json:"amount"`
}

// Context carries the optional inputs some tax types need.
type Context struct {
	// Category selects the WHT rate. Empty means INTEREST.
	Category Category

	// IsCompany and AnnualTurnover gate TET.
	IsCompany      bool
	AnnualTurnover generic.Amount
}

func effectiveRate(tax, gross generic.Amount) decimal.Decimal {
	if gross.IsZero() {
		return decimal.Zero
	}
	return tax.Value.Div(gross.Value)
}
