package tax

import (
	"fmt"
	"sort"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// TAX CERTIFICATE
// =============================================================================

const (
	TINNotProvided  = "Not Provided"
	ValidityTaxYear = "Current Tax Year"
)

type Investor struct {
	Name    string          `json:"name"`
	TIN     string          `json:"tin"`
	Address string          `json:"address"`
	Income  *generic.Amount `json:"annual_income,omitempty"`
}

type Payment struct {
	Date        generic.TimePoint `json:"date"`
	Description string            `json:"description"`
	Gross       generic.Amount    `json:"gross_amount"`
	Type        string            `json:"type"`
}

// Certificate evidences the tax withheld on one payment.
type Certificate struct {
	Number         string            `json:"certificate_number"`
	Investor       Investor          `json:"investor"`
	Payment        Payment           `json:"payment"`
	Taxes          InvestmentTaxes   `json:"tax_breakdown"`
	IssuedDate     generic.TimePoint `json:"issued_date"`
	ValidityPeriod string            `json:"validity_period"`

	// Summary is the printed deduction line, e.g.
	// "₦1,666.67 withheld at 10.00% on ₦16,666.67 paid 2024-03-02".
	Summary string `json:"summary"`
}

// Certificate builds a certificate for a payment. The number is supplied by
// the caller so the result stays deterministic.
func (c *Calculator) Certificate(number string, investor Investor, payment Payment, issued generic.TimePoint) (Certificate, error) {
	if number == "" {
		return Certificate{}, &generic.ContractError{Field: "certificate_number", Problem: "required"}
	}
	taxes, err := c.Investment(payment.Gross, investor.Income)
	if err != nil {
		return Certificate{}, err
	}
	if investor.TIN == "" {
		investor.TIN = TINNotProvided
	}
	payment.Gross = payment.Gross.Round()
	summary := fmt.Sprintf("%s withheld at %s on %s paid %s",
		FormatNaira(taxes.WHT.Tax), FormatRate(taxes.WHT.Rate), FormatNaira(payment.Gross), payment.Date)
	return Certificate{
		Number:         number,
		Investor:       investor,
		Payment:        payment,
		Taxes:          taxes,
		IssuedDate:     issued,
		ValidityPeriod: ValidityTaxYear,
		Summary:        summary,
	}, nil
}

// =============================================================================
// ANNUAL SUMMARY
// =============================================================================

type TypeTotal struct {
	Type  string         `json:"tax_type"`
	Count int            `json:"count"`
	Gross generic.Amount `json:"gross_amount"`
	Tax   generic.Amount `json:"tax_amount"`
}

type Summary struct {
	Period           generic.Period `json:"-"`
	PaymentCount     int            `json:"payment_count"`
	TotalGrossIncome generic.Amount `json:"total_gross_income"`
	TotalTaxDeducted generic.Amount `json:"total_tax_deducted"`
	NetReceived      generic.Amount `json:"net_received"`
	ByType           []TypeTotal    `json:"by_type"`
}

// Summarize totals tax records dated inside period. Gross income is counted
// once per payment (the WHT record); every record adds to tax deducted.
func Summarize(records []generic.TaxRecord, period generic.Period) (Summary, error) {
	if err := period.Validate(); err != nil {
		return Summary{}, err
	}

	s := Summary{
		Period:           period,
		TotalGrossIncome: generic.ZeroNaira(),
		TotalTaxDeducted: generic.ZeroNaira(),
	}
	byType := map[string]*TypeTotal{}

	for _, r := range records {
		if !period.Contains(r.PaymentDate) {
			continue
		}
		t, ok := byType[r.TaxType]
		if !ok {
			t = &TypeTotal{Type: r.TaxType, Gross: generic.ZeroNaira(), Tax: generic.ZeroNaira()}
			byType[r.TaxType] = t
		}
		t.Count++
		t.Gross = t.Gross.Add(r.Gross)
		t.Tax = t.Tax.Add(r.Tax)

		if r.TaxType == string(WHT) {
			s.PaymentCount++
			s.TotalGrossIncome = s.TotalGrossIncome.Add(r.Gross)
		}
		s.TotalTaxDeducted = s.TotalTaxDeducted.Add(r.Tax)
	}

	for _, t := range byType {
		t.Gross = t.Gross.Round()
		t.Tax = t.Tax.Round()
		s.ByType = append(s.ByType, *t)
	}
	sort.Slice(s.ByType, func(i, j int) bool { return s.ByType[i].Type < s.ByType[j].Type })

	s.TotalGrossIncome = s.TotalGrossIncome.Round()
	s.TotalTaxDeducted = s.TotalTaxDeducted.Round()
	s.NetReceived = s.TotalGrossIncome.Sub(s.TotalTaxDeducted).Round()
	return s, nil
}
