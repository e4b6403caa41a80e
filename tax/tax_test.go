package tax_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/tax"
)

func naira(s string) generic.Amount { return generic.Naira(s) }

// =============================================================================
// FLAT-RATE TAXES
// =============================================================================

func TestWHT_MonthlyROI(t *testing.T) {
	// GIVEN: A monthly ROI of ₦16,666.67
	// WHEN: Applying WHT (interest, 10%)
	// THEN: ₦1,666.67 withheld, ₦15,000.00 net

	calc, err := tax.Default().Calculate(naira("16666.67"), tax.WHT, nil)
	require.NoError(t, err)

	assert.Equal(t, tax.CategoryInterest, calc.Category)
	assert.True(t, calc.Rate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, "1666.67", calc.Tax.String())
	assert.Equal(t, "15000.00", calc.Net.String())
}

func TestWHT_Categories(t *testing.T) {
	c := tax.Default()
	tests := []struct {
		category tax.Category
		want     string
	}{
		{tax.CategoryDividends, "100.00"},
		{tax.CategoryRent, "100.00"},
		{tax.CategoryCommission, "50.00"},
		{tax.CategoryProfessionalServices, "50.00"},
		{tax.CategoryContracts, "25.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			calc, err := c.Calculate(naira("1000"), tax.WHT, &tax.Context{Category: tt.category})
			require.NoError(t, err)
			assert.Equal(t, tt.want, calc.Tax.String())
		})
	}

	_, err := c.Calculate(naira("1000"), tax.WHT, &tax.Context{Category: "LOTTERY"})
	assert.ErrorIs(t, err, generic.ErrContractViolation)
}

func TestCGT_And_VAT(t *testing.T) {
	c := tax.Default()

	cgt, err := c.Calculate(naira("200000"), tax.CGT, nil)
	require.NoError(t, err)
	assert.Equal(t, "20000.00", cgt.Tax.String())
	assert.Equal(t, "180000.00", cgt.Net.String())

	vat, err := c.Calculate(naira("10000"), tax.VAT, nil)
	require.NoError(t, err)
	assert.Equal(t, "750.00", vat.Tax.String())
	require.NotNil(t, vat.Total)
	assert.Equal(t, "10750.00", vat.Total.String())
	assert.Equal(t, "0.075", vat.EffectiveRate.String())
}

func TestTET_IndividualAlwaysZero(t *testing.T) {
	calc, err := tax.Default().Calculate(naira("5000000"), tax.TET, &tax.Context{
		AnnualTurnover: naira("100000000"),
	})
	require.NoError(t, err)
	assert.True(t, calc.Tax.IsZero())
	assert.False(t, calc.Applicable)
}

func TestTET_CompanyTurnoverGate(t *testing.T) {
	c := tax.Default()

	below, err := c.Calculate(naira("1000000"), tax.TET, &tax.Context{IsCompany: true, AnnualTurnover: naira("25000000")})
	require.NoError(t, err)
	assert.True(t, below.Tax.IsZero(), "threshold itself is not above the gate")

	above, err := c.Calculate(naira("1000000"), tax.TET, &tax.Context{IsCompany: true, AnnualTurnover: naira("25000001")})
	require.NoError(t, err)
	assert.True(t, above.Applicable)
	assert.Equal(t, "25000.00", above.Tax.String())
}

func TestCalculate_NegativeGross_InvalidAmount(t *testing.T) {
	_, err := tax.Default().Calculate(naira("-1"), tax.CGT, nil)
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = tax.Default().Calculate(naira("1"), tax.Type("GST"), nil)
	assert.ErrorIs(t, err, generic.ErrContractViolation)
}

// =============================================================================
// PIT
// =============================================================================

func TestPIT_OneMillion(t *testing.T) {
	// GIVEN: Annual income of ₦1,000,000
	// WHEN: Computing PIT
	// THEN: 21,000 + 33,000 + 60,000 = 114,000 across three rows

	calc, err := tax.Default().PIT(naira("1000000"))
	require.NoError(t, err)

	require.Len(t, calc.Breakdown, 3)
	assert.Equal(t, "21000.00", calc.Breakdown[0].Amount.String())
	assert.Equal(t, "33000.00", calc.Breakdown[1].Amount.String())
	assert.Equal(t, "60000.00", calc.Breakdown[2].Amount.String())
	assert.Equal(t, "400000.00", calc.Breakdown[2].Taxable.String())
	assert.Equal(t, "114000.00", calc.Tax.String())

	assert.Equal(t, "0 - 300,000", calc.Breakdown[0].Range)
	assert.Equal(t, "300,001 - 600,000", calc.Breakdown[1].Range)
	assert.Equal(t, "600,001 - 1,100,000", calc.Breakdown[2].Range)
}

func TestPIT_TopBracket(t *testing.T) {
	calc, err := tax.Default().PIT(naira("5000000"))
	require.NoError(t, err)

	require.Len(t, calc.Breakdown, 6)
	assert.Equal(t, "Above 3,200,000", calc.Breakdown[5].Range)
	// 21000 + 33000 + 75000 + 95000 + 336000 + 432000
	assert.Equal(t, "992000.00", calc.Tax.String())
}

func TestPIT_BreakdownSumsExactly(t *testing.T) {
	c := tax.Default()
	for _, income := range []string{"0", "300000", "300001", "1600000", "5000000", "1234567.89"} {
		calc, err := c.PIT(naira(income))
		require.NoError(t, err, income)

		sum := generic.ZeroNaira()
		for _, row := range calc.Breakdown {
			assert.True(t, row.Amount.IsPositive(), "zero rows are omitted")
			sum = sum.Add(row.Amount)
		}
		assert.True(t, sum.Equal(calc.Tax), "income %s: rows %s != total %s", income, sum, calc.Tax)
	}
}

func TestPIT_Monotonic(t *testing.T) {
	c := tax.Default()
	prev := generic.ZeroNaira()
	for income := int64(0); income <= 4_000_000; income += 12_345 {
		calc, err := c.PIT(generic.NewAmountFromInt(income))
		require.NoError(t, err)
		assert.True(t, calc.Tax.GreaterThanOrEqual(prev), "income %d", income)
		prev = calc.Tax
	}
}

func TestPIT_NegativeIncome_InvalidBracketInput(t *testing.T) {
	_, err := tax.Default().PIT(naira("-1"))
	assert.ErrorIs(t, err, generic.ErrInvalidBracketInput)
}

func TestPIT_ZeroIncome_NoRows(t *testing.T) {
	calc, err := tax.Default().PIT(generic.ZeroNaira())
	require.NoError(t, err)
	assert.Empty(t, calc.Breakdown)
	assert.True(t, calc.Tax.IsZero())
	assert.True(t, calc.EffectiveRate.IsZero())
}

// =============================================================================
// COMPOSITE AND COMPANY
// =============================================================================

func TestInvestment_WHTThenPITOnNet(t *testing.T) {
	// GIVEN: ROI ₦100,000 and other income ₦1,000,000
	// WHEN: Computing investment taxes
	// THEN: WHT 10,000; PIT over 1,090,000 = 21,000 + 33,000 + 73,500 = 127,500

	other := naira("1000000")
	got, err := tax.Default().Investment(naira("100000"), &other)
	require.NoError(t, err)

	assert.Equal(t, "10000.00", got.WHT.Tax.String())
	assert.Equal(t, "1090000.00", got.PITBase.String())
	require.NotNil(t, got.PIT)
	assert.Equal(t, "127500.00", got.PIT.Tax.String())
	assert.Equal(t, "137500.00", got.TotalTax.String())
	assert.Equal(t, "-37500.00", got.NetAfterAllTaxes.String())
}

func TestInvestment_NoOtherIncome_SkipsPIT(t *testing.T) {
	got, err := tax.Default().Investment(naira("16666.67"), nil)
	require.NoError(t, err)
	assert.Nil(t, got.PIT)
	assert.Equal(t, "15000.00", got.NetAfterAllTaxes.String())
}

func TestCompany_RateClass(t *testing.T) {
	c := tax.Default()

	small, err := c.Company(naira("1000000"), naira("25000000"))
	require.NoError(t, err)
	assert.Equal(t, tax.RateSmallCompany, small.RateClass)
	assert.Equal(t, "200000.00", small.Tax.String())

	std, err := c.Company(naira("1000000"), naira("30000000"))
	require.NoError(t, err)
	assert.Equal(t, tax.RateStandard, std.RateClass)
	assert.Equal(t, "300000.00", std.Tax.String())
}

// =============================================================================
// CERTIFICATE & SUMMARY
// =============================================================================

func TestCertificate_DefaultsTIN(t *testing.T) {
	issued := generic.NewTimePoint(2024, time.June, 30)
	cert, err := tax.Default().Certificate("TAX-0001",
		tax.Investor{Name: "Ada Obi", Address: "Lagos"},
		tax.Payment{Date: issued, Description: "June ROI", Gross: naira("16666.67"), Type: "roi"},
		issued,
	)
	require.NoError(t, err)

	assert.Equal(t, tax.TINNotProvided, cert.Investor.TIN)
	assert.Equal(t, tax.ValidityTaxYear, cert.ValidityPeriod)
	assert.Equal(t, "1666.67", cert.Taxes.WHT.Tax.String())
	assert.Equal(t, "₦1,666.67 withheld at 10.00% on ₦16,666.67 paid 2024-06-30", cert.Summary)

	_, err = tax.Default().Certificate("", tax.Investor{}, tax.Payment{}, issued)
	assert.ErrorIs(t, err, generic.ErrContractViolation)
}

func TestSummarize_Year(t *testing.T) {
	jun := generic.NewTimePoint(2024, time.June, 1)
	records := []generic.TaxRecord{
		{TaxType: "WHT", PaymentDate: jun, Gross: naira("16666.67"), Tax: naira("1666.67")},
		{TaxType: "WHT", PaymentDate: jun.AddMonthsClamped(1), Gross: naira("16666.67"), Tax: naira("1666.67")},
		{TaxType: "PIT", PaymentDate: jun, Gross: naira("15000"), Tax: naira("1050")},
		{TaxType: "WHT", PaymentDate: generic.NewTimePoint(2023, time.December, 1), Gross: naira("1"), Tax: naira("0.1")},
	}

	s, err := tax.Summarize(records, generic.TaxYear(2024))
	require.NoError(t, err)

	assert.Equal(t, 2, s.PaymentCount)
	assert.Equal(t, "33333.34", s.TotalGrossIncome.String())
	assert.Equal(t, "4383.34", s.TotalTaxDeducted.String())
	assert.Equal(t, "28950.00", s.NetReceived.String())
	require.Len(t, s.ByType, 2)
	assert.Equal(t, "PIT", s.ByType[0].Type)
	assert.Equal(t, 2, s.ByType[1].Count)
}

func TestFormatNaira(t *testing.T) {
	assert.Equal(t, "₦1,234,567.89", tax.FormatNaira(naira("1234567.891")))
	assert.Equal(t, "₦0.50", tax.FormatNaira(naira("0.5")))
	assert.Equal(t, "7.50%", tax.FormatRate(decimal.RequireFromString("0.075")))
}

func TestNewCalculator_RejectsBadBrackets(t *testing.T) {
	cfg := tax.DefaultConfig()
	cfg.PITBrackets = cfg.PITBrackets[:5] // drop the open top band

	_, err := tax.NewCalculator(cfg)
	assert.Error(t, err)
}
