package tax

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// PIT - Progressive personal income tax
// =============================================================================

// PIT walks the brackets in ascending order, taxing min(remaining, width)
// in each. Only brackets with non-zero tax produce a breakdown row.
//
// Example, income ₦1,000,000:
//
//	0 - 300,000          @ 7%  = 21,000
//	300,001 - 600,000    @ 11% = 33,000
//	600,001 - 1,100,000  @ 15% = 60,000   (400,000 taxable)
//	total                      = 114,000
func (c *Calculator) PIT(income generic.Amount) (Calculation, error) {
	if income.IsNegative() {
		return Calculation{}, &generic.EvaluationError{
			Kind:      generic.KindInvalidBracketInput,
			Requested: income,
			Detail:    "annual income is negative",
		}
	}

	remaining := income.Value
	lower := decimal.Zero
	total := generic.ZeroNaira()
	var rows []BracketRow

	for i, b := range c.cfg.PITBrackets {
		if !remaining.IsPositive() {
			break
		}
		taxable := remaining
		if b.UpTo.Valid {
			taxable = decimal.Min(remaining, b.UpTo.Decimal.Sub(lower))
		}
		amount := generic.NewAmountFromDecimal(taxable.Mul(b.Rate)).Round()
		if amount.IsPositive() {
			rows = append(rows, BracketRow{
				Range:   bracketLabel(i, lower, b.UpTo),
				Rate:    b.Rate,
				Taxable: generic.NewAmountFromDecimal(taxable).Round(),
				Amount:  amount,
			})
			total = total.Add(amount)
		}
		remaining = remaining.Sub(taxable)
		if b.UpTo.Valid {
			lower = b.UpTo.Decimal
		}
	}

	return Calculation{
		Type:          PIT,
		Gross:         income.Round(),
		Rate:          effectiveRate(total, income),
		Tax:           total,
		Net:           income.Sub(total).Round(),
		EffectiveRate: effectiveRate(total, income),
		Applicable:    true,
		Breakdown:     rows,
	}, nil
}

var printer = message.NewPrinter(language.English)

func bracketLabel(i int, lower decimal.Decimal, upper decimal.NullDecimal) string {
	from := lower
	if i > 0 {
		from = lower.Add(decimal.NewFromInt(1))
	}
	if !upper.Valid {
		return "Above " + printer.Sprintf("%d", lower.IntPart())
	}
	return printer.Sprintf("%d - %d", from.IntPart(), upper.Decimal.IntPart())
}

// FormatNaira renders an amount as "₦1,234,567.89".
func FormatNaira(a generic.Amount) string {
	v := a.Value.Round(generic.MoneyPlaces)
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	whole := v.Truncate(0)
	frac := v.Sub(whole).StringFixed(generic.MoneyPlaces)[1:] // ".89"
	return sign + "₦" + printer.Sprintf("%d", whole.IntPart()) + frac
}

// FormatRate renders a fractional rate as a percentage, e.g. 0.075 -> "7.50%".
func FormatRate(r decimal.Decimal) string {
	return r.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
