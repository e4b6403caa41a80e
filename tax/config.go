package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - Statutory rates
// =============================================================================

// Bracket is one PIT band. UpTo is the inclusive upper bound of the band;
// an invalid UpTo marks the open-ended top band.
type Bracket struct {
	UpTo decimal.NullDecimal
	Rate decimal.Decimal
}

type Config struct {
	WHTRates    map[Category]decimal.Decimal
	PITBrackets []Bracket

	CGTRate decimal.Decimal
	VATRate decimal.Decimal

	TETRate              decimal.Decimal
	TETTurnoverThreshold decimal.Decimal

	CITSmallRate              decimal.Decimal
	CITStandardRate           decimal.Decimal
	CITSmallTurnoverThreshold decimal.Decimal
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func upTo(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

// DefaultConfig returns the current Nigerian statutory rates.
func DefaultConfig() Config {
	return Config{
		WHTRates: map[Category]decimal.Decimal{
			CategoryDividends:            d("0.10"),
			CategoryInterest:             d("0.10"),
			CategoryRent:                 d("0.10"),
			CategoryCommission:           d("0.05"),
			CategoryProfessionalServices: d("0.05"),
			CategoryContracts:            d("0.025"),
		},
		PITBrackets: []Bracket{
			{UpTo: upTo("300000"), Rate: d("0.07")},
			{UpTo: upTo("600000"), Rate: d("0.11")},
			{UpTo: upTo("1100000"), Rate: d("0.15")},
			{UpTo: upTo("1600000"), Rate: d("0.19")},
			{UpTo: upTo("3200000"), Rate: d("0.21")},
			{Rate: d("0.24")},
		},
		CGTRate:                   d("0.10"),
		VATRate:                   d("0.075"),
		TETRate:                   d("0.025"),
		TETTurnoverThreshold:      d("25000000"),
		CITSmallRate:              d("0.20"),
		CITStandardRate:           d("0.30"),
		CITSmallTurnoverThreshold: d("25000000"),
	}
}

// Validate checks rates are fractions and brackets ascend to an open top band.
func (c Config) Validate() error {
	for cat, r := range c.WHTRates {
		if err := checkRate("wht_rates."+string(cat), r); err != nil {
			return err
		}
	}
	if len(c.PITBrackets) == 0 {
		return fmt.Errorf("pit_brackets: at least one bracket required")
	}
	prev := decimal.Zero
	for i, b := range c.PITBrackets {
		if err := checkRate(fmt.Sprintf("pit_brackets[%d].rate", i), b.Rate); err != nil {
			return err
		}
		last := i == len(c.PITBrackets)-1
		switch {
		case last && b.UpTo.Valid:
			return fmt.Errorf("pit_brackets[%d]: top bracket must be open-ended", i)
		case !last && !b.UpTo.Valid:
			return fmt.Errorf("pit_brackets[%d]: only the top bracket may be open-ended", i)
		case !last && !b.UpTo.Decimal.GreaterThan(prev):
			return fmt.Errorf("pit_brackets[%d]: upper bound %s must exceed %s", i, b.UpTo.Decimal, prev)
		}
		if b.UpTo.Valid {
			prev = b.UpTo.Decimal
		}
	}
	for name, r := range map[string]decimal.Decimal{
		"cgt_rate":          c.CGTRate,
		"vat_rate":          c.VATRate,
		"tet_rate":          c.TETRate,
		"cit_small_rate":    c.CITSmallRate,
		"cit_standard_rate": c.CITStandardRate,
	} {
		if err := checkRate(name, r); err != nil {
			return err
		}
	}
	if c.TETTurnoverThreshold.IsNegative() || c.CITSmallTurnoverThreshold.IsNegative() {
		return fmt.Errorf("turnover thresholds must not be negative")
	}
	return nil
}

func checkRate(name string, r decimal.Decimal) error {
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s: rate %s must be between 0 and 1", name, r)
	}
	return nil
}
