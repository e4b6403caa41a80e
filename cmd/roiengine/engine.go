package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/investment-engine/accrual"
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/payout"
	"github.com/warp/investment-engine/tax"
	"github.com/warp/investment-engine/withdrawal"
)

// =============================================================================
// ACCRUAL
// =============================================================================

type accrualOutput struct {
	PolicyID   generic.PolicyID          `json:"policy_id"`
	AsOf       generic.TimePoint         `json:"as_of"`
	Accrual    accrual.ComputedAccrual   `json:"accrual"`
	Projection *accrual.ProjectionResult `json:"projection,omitempty"`
}

func accrualCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accrual <policy.json>",
		Short: "Compute the ROI due on a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			policy, err := a.factory.ParsePolicy(data)
			if err != nil {
				return err
			}
			asOf, err := dateFlag(cmd, "as-of")
			if err != nil {
				return err
			}
			computed, err := a.engine.Compute(policy, asOf)
			if err != nil {
				return err
			}
			out := accrualOutput{PolicyID: policy.ID, AsOf: asOf, Accrual: computed}

			months, _ := cmd.Flags().GetInt("project")
			if months > 0 {
				rate := policy.ROIRate
				override, err := rateFlag(cmd, "rate")
				if err != nil {
					return err
				}
				if override != nil {
					rate = *override
				}
				proj, err := accrual.Project(accrual.ProjectionInput{
					Principal:   policy.CurrentBalance,
					RatePercent: rate,
					Months:      months,
				})
				if err != nil {
					return err
				}
				out.Projection = &proj
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("as-of", "", "valuation date YYYY-MM-DD (default today)")
	cmd.Flags().Int("project", 0, "also project this many months of compounding")
	cmd.Flags().String("rate", "", "annual percentage for the projection (default the policy rate)")
	return cmd
}

// =============================================================================
// TAX
// =============================================================================

func taxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax",
		Short: "Statutory tax calculations",
	}

	calc := &cobra.Command{
		Use:   "calc <WHT|PIT|CGT|VAT|TET> <gross>",
		Short: "Compute one tax on a gross amount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gross, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			category, _ := cmd.Flags().GetString("category")
			company, _ := cmd.Flags().GetBool("company")
			turnover, err := amountFlag(cmd, "turnover")
			if err != nil {
				return err
			}
			tc := &tax.Context{Category: tax.Category(strings.ToUpper(category)), IsCompany: company, AnnualTurnover: generic.ZeroNaira()}
			if turnover != nil {
				tc.AnnualTurnover = *turnover
			}
			result, err := a.taxes.Calculate(gross, tax.Type(strings.ToUpper(args[0])), tc)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	calc.Flags().String("category", "", "WHT income category (default INTEREST)")
	calc.Flags().Bool("company", false, "taxpayer is a company (TET)")
	calc.Flags().String("turnover", "", "annual turnover (TET)")

	investment := &cobra.Command{
		Use:   "investment <gross-roi>",
		Short: "WHT on ROI, then PIT over other income plus net ROI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roi, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			income, err := amountFlag(cmd, "income")
			if err != nil {
				return err
			}
			result, err := a.taxes.Investment(roi, income)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	investment.Flags().String("income", "", "investor's other annual income (enables PIT)")

	company := &cobra.Command{
		Use:   "company <taxable-profit> <turnover>",
		Short: "Company income tax with rate class",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profit, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			turnover, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			result, err := a.taxes.Company(profit, turnover)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	summary := &cobra.Command{
		Use:   "summary <investor-id> <year>",
		Short: "Annual tax summary from the configured store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[1])
			}
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			result, err := svc.TaxSummary(cmd.Context(), generic.InvestorID(args[0]), year)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.AddCommand(calc, investment, company, summary)
	return cmd
}

// =============================================================================
// EVALUATE
// =============================================================================

type evaluateOutput struct {
	Evaluation withdrawal.Evaluation `json:"evaluation"`
	Payout     *payout.Payout        `json:"payout,omitempty"`
}

func evaluateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <policy.json> <request.json>",
		Short: "Check a withdrawal request and preview its payout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policyData, err := readFile(args[0])
			if err != nil {
				return err
			}
			policy, err := a.factory.ParsePolicy(policyData)
			if err != nil {
				return err
			}
			reqData, err := readFile(args[1])
			if err != nil {
				return err
			}
			req, err := a.factory.ParseRequest(reqData)
			if err != nil {
				return err
			}
			today, err := dateFlag(cmd, "today")
			if err != nil {
				return err
			}
			income, err := amountFlag(cmd, "income")
			if err != nil {
				return err
			}

			eval, err := a.evaluator().Evaluate(policy, req, today)
			if err != nil {
				return err
			}
			out := evaluateOutput{Evaluation: eval}
			if eval.Allowed {
				in := payout.ForRequest(policy, nil, req, today)
				in.AnnualIncome = income
				p, err := a.composer().Compose(in)
				if err != nil {
					return err
				}
				out.Payout = &p
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("today", "", "evaluation date YYYY-MM-DD (default today)")
	cmd.Flags().String("income", "", "investor's other annual income (enables PIT in the preview)")
	return cmd
}

// =============================================================================
// STATEMENT
// =============================================================================

func statementCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement <policy.json> <entries.json>",
		Short: "Statement for an inclusive date range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policyData, err := readFile(args[0])
			if err != nil {
				return err
			}
			policy, err := a.factory.ParsePolicy(policyData)
			if err != nil {
				return err
			}
			entryData, err := readFile(args[1])
			if err != nil {
				return err
			}
			entries, err := a.factory.ParseEntries(entryData)
			if err != nil {
				return err
			}
			if err := ledger.Verify(entries); err != nil {
				return err
			}
			from, err := dateFlag(cmd, "from")
			if err != nil {
				return err
			}
			to, err := dateFlag(cmd, "to")
			if err != nil {
				return err
			}
			st, err := ledger.BuildStatement(policy, entries, from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
	cmd.Flags().String("from", "", "period start YYYY-MM-DD")
	cmd.Flags().String("to", "", "period end YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// rateFlag parses an optional annual percentage flag.
func rateFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: invalid rate %q", name, s)
	}
	return &d, nil
}
