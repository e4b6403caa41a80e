package tax

import (
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// INVESTMENT TAXES - WHT on ROI, then PIT over aggregate income
// =============================================================================

// InvestmentTaxes is the composite tax on an ROI payout.
type InvestmentTaxes struct {
	GrossROI generic.Amount `json:"gross_roi"`
	WHT      Calculation    `json:"wht"`

	// PIT is nil when the investor's other income was not supplied.
	PIT *Calculation `json:"pit,omitempty"`

	// PITBase is other income + WHT-net ROI.
	PITBase generic.Amount `json:"pit_base"`

	TotalTax           generic.Amount  `json:"total_tax"`
	EffectiveTotalRate decimal.Decimal `json:"effective_total_rate"`
	NetAfterAllTaxes   generic.Amount  `json:"net_after_all_taxes"`
}

// Investment applies WHT (INTEREST) to grossROI, then PIT over
// otherIncome + ROI net of WHT. A nil otherIncome skips PIT.
func (c *Calculator) Investment(grossROI generic.Amount, otherIncome *generic.Amount) (InvestmentTaxes, error) {
	wht, err := c.WHT(grossROI, CategoryInterest)
	if err != nil {
		return InvestmentTaxes{}, err
	}

	result := InvestmentTaxes{
		GrossROI: grossROI.Round(),
		WHT:      wht,
		PITBase:  generic.ZeroNaira(),
		TotalTax: wht.Tax,
	}

	if otherIncome != nil {
		base := otherIncome.Add(wht.Net)
		pit, err := c.PIT(base)
		if err != nil {
			return InvestmentTaxes{}, err
		}
		result.PIT = &pit
		result.PITBase = base.Round()
		result.TotalTax = result.TotalTax.Add(pit.Tax)
	}

	result.EffectiveTotalRate = effectiveRate(result.TotalTax, grossROI)
	result.NetAfterAllTaxes = grossROI.Sub(result.TotalTax).Round()
	return result, nil
}

// =============================================================================
// COMPANY INCOME TAX
// =============================================================================

type RateClass string

const (
	RateSmallCompany RateClass = "small_company"
	RateStandard     RateClass = "standard"
)

type CompanyTax struct {
	TaxableProfit generic.Amount  `json:"taxable_profit"`
	Turnover      generic.Amount  `json:"turnover"`
	Rate          decimal.Decimal `json:"tax_rate"`
	RateClass     RateClass       `json:"rate_class"`
	Tax           generic.Amount  `json:"tax_amount"`
}

// Company applies the small-company rate when turnover is at or below the
// threshold, and the standard rate above it.
func (c *Calculator) Company(taxableProfit, turnover generic.Amount) (CompanyTax, error) {
	if err := checkGross(taxableProfit); err != nil {
		return CompanyTax{}, err
	}
	if err := checkGross(turnover); err != nil {
		return CompanyTax{}, err
	}

	rate, class := c.cfg.CITStandardRate, RateStandard
	if turnover.Value.LessThanOrEqual(c.cfg.CITSmallTurnoverThreshold) {
		rate, class = c.cfg.CITSmallRate, RateSmallCompany
	}
	return CompanyTax{
		TaxableProfit: taxableProfit.Round(),
		Turnover:      turnover.Round(),
		Rate:          rate,
		RateClass:     class,
		Tax:           taxableProfit.Mul(rate).Round(),
	}, nil
}
