package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator is safe for concurrent use; it holds only immutable config.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tax config: %w", err)
	}
	return &Calculator{cfg: cfg}, nil
}

// Default returns a calculator over the statutory rates.
func Default() *Calculator {
	return &Calculator{cfg: DefaultConfig()}
}

func (c *Calculator) Config() Config { return c.cfg }

// Calculate dispatches to the computation for the tax type. ctx may be nil.
func (c *Calculator) Calculate(gross generic.Amount, t Type, ctx *Context) (Calculation, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	switch t {
	case WHT:
		return c.WHT(gross, ctx.Category)
	case PIT:
		return c.PIT(gross)
	case CGT:
		return c.flat(gross, CGT, c.cfg.CGTRate)
	case VAT:
		return c.VAT(gross)
	case TET:
		return c.TET(gross, ctx.IsCompany, ctx.AnnualTurnover)
	}
	return Calculation{}, &generic.ContractError{Field: "tax_type", Problem: "unknown value " + string(t)}
}

// WHT applies the category's withholding rate. An empty category is INTEREST.
func (c *Calculator) WHT(gross generic.Amount, category Category) (Calculation, error) {
	if category == "" {
		category = CategoryInterest
	}
	rate, ok := c.cfg.WHTRates[category]
	if !ok {
		return Calculation{}, &generic.ContractError{Field: "category", Problem: "unknown value " + string(category)}
	}
	calc, err := c.flat(gross, WHT, rate)
	calc.Category = category
	return calc, err
}

// VAT is added on top of the amount; Total carries gross + VAT.
func (c *Calculator) VAT(gross generic.Amount) (Calculation, error) {
	calc, err := c.flat(gross, VAT, c.cfg.VATRate)
	if err != nil {
		return calc, err
	}
	total := gross.Add(calc.Tax).Round()
	calc.Total = &total
	return calc, nil
}

// TET applies to company assessable profit when turnover exceeds the
// threshold. Individual investors always get a zero, non-applicable result.
func (c *Calculator) TET(assessableProfit generic.Amount, isCompany bool, turnover generic.Amount) (Calculation, error) {
	if isCompany && turnover.Value.GreaterThan(c.cfg.TETTurnoverThreshold) {
		return c.flat(assessableProfit, TET, c.cfg.TETRate)
	}
	if err := checkGross(assessableProfit); err != nil {
		return Calculation{}, err
	}
	return Calculation{
		Type:          TET,
		Gross:         assessableProfit.Round(),
		Rate:          c.cfg.TETRate,
		Tax:           generic.ZeroNaira(),
		Net:           assessableProfit.Round(),
		EffectiveRate: decimal.Zero,
		Applicable:    false,
	}, nil
}

func (c *Calculator) flat(gross generic.Amount, t Type, rate decimal.Decimal) (Calculation, error) {
	if err := checkGross(gross); err != nil {
		return Calculation{}, err
	}
	tax := gross.Mul(rate).Round()
	return Calculation{
		Type:          t,
		Gross:         gross.Round(),
		Rate:          rate,
		Tax:           tax,
		Net:           gross.Sub(tax).Round(),
		EffectiveRate: effectiveRate(tax, gross),
		Applicable:    true,
	}, nil
}

func checkGross(gross generic.Amount) error {
	if gross.IsNegative() {
		return &generic.EvaluationError{Kind: generic.KindInvalidAmount, Requested: gross, Detail: "gross amount is negative"}
	}
	return nil
}
