package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/payout"
	"github.com/warp/investment-engine/service"
	"github.com/warp/investment-engine/tax"
)

// service opens the configured store and wires a PolicyService over it.
func (a *app) service(ctx context.Context) (*service.PolicyService, func(), error) {
	repo, closeFn, err := a.openRepo(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(repo)
	svc.Engine = a.engine
	svc.Taxes = a.taxes
	svc.Composer = payout.NewComposer(a.taxes)
	svc.Logger = a.logger
	return svc, closeFn, nil
}

// =============================================================================
// OPEN
// =============================================================================

func openCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <policy.json>",
		Short: "Persist a new policy in the configured store",
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
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			actor, _ := cmd.Flags().GetString("actor")
			opened, err := svc.OpenPolicy(cmd.Context(), policy, actor)
			if err != nil {
				return err
			}
			return printJSON(cmd, a.factory.ToJSON(opened))
		},
	}
	cmd.Flags().String("actor", "", "who is acting (recorded in the audit log)")
	return cmd
}

// =============================================================================
// WITHDRAW
// =============================================================================

func withdrawCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdrawal request lifecycle against the configured store",
	}
	cmd.PersistentFlags().String("actor", "", "who is acting (recorded in the audit log)")

	submit := &cobra.Command{
		Use:   "submit <request.json>",
		Short: "Evaluate and persist a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			req, err := a.factory.ParseRequest(data)
			if err != nil {
				return err
			}
			today, err := dateFlag(cmd, "today")
			if err != nil {
				return err
			}
			return a.withService(cmd, func(svc *service.PolicyService, actor string) (any, error) {
				created, eval, err := svc.SubmitWithdrawal(cmd.Context(), req, today, actor)
				if err != nil && eval.Reason != nil {
					// Print the denial before failing so the caller sees the ceiling.
					_ = printJSON(cmd, eval)
				}
				return created, err
			})
		},
	}
	submit.Flags().String("today", "", "request date YYYY-MM-DD (default today)")

	approve := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *service.PolicyService, actor string) (any, error) {
				return svc.Approve(cmd.Context(), generic.RequestID(args[0]), actor)
			})
		},
	}

	reject := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return a.withService(cmd, func(svc *service.PolicyService, actor string) (any, error) {
				return svc.Reject(cmd.Context(), generic.RequestID(args[0]), actor, reason)
			})
		},
	}
	reject.Flags().String("reason", "", "rejection reason shown to the investor")

	process := &cobra.Command{
		Use:   "process <request-id>",
		Short: "Pay out an approved request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := dateFlag(cmd, "today")
			if err != nil {
				return err
			}
			income, err := amountFlag(cmd, "income")
			if err != nil {
				return err
			}
			return a.withService(cmd, func(svc *service.PolicyService, actor string) (any, error) {
				return svc.Process(cmd.Context(), generic.RequestID(args[0]), today, income, actor)
			})
		},
	}
	process.Flags().String("today", "", "payment date YYYY-MM-DD (default today)")
	process.Flags().String("income", "", "investor's other annual income (enables PIT)")

	certificate := &cobra.Command{
		Use:   "certificate <request-id>",
		Short: "Issue the WHT certificate for a processed request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var investor tax.Investor
			investor.Name, _ = cmd.Flags().GetString("name")
			investor.TIN, _ = cmd.Flags().GetString("tin")
			investor.Address, _ = cmd.Flags().GetString("address")
			return a.withService(cmd, func(svc *service.PolicyService, _ string) (any, error) {
				return svc.Certificate(cmd.Context(), generic.RequestID(args[0]), investor)
			})
		},
	}
	certificate.Flags().String("name", "", "investor name (default the policy's)")
	certificate.Flags().String("tin", "", "taxpayer identification number")
	certificate.Flags().String("address", "", "investor address")

	cmd.AddCommand(submit, approve, reject, process, certificate)
	return cmd
}

// withService opens the store, runs fn and prints its result.
func (a *app) withService(cmd *cobra.Command, fn func(svc *service.PolicyService, actor string) (any, error)) error {
	svc, closeFn, err := a.service(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	actor, _ := cmd.Flags().GetString("actor")
	result, err := fn(svc, actor)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

// =============================================================================
// ACCRUAL POSTING
// =============================================================================

func runAccrualsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-accruals",
		Short: "Post due ROI accruals on every accruing policy once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := dateFlag(cmd, "as-of")
			if err != nil {
				return err
			}
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result := service.NewAccrualScheduler(svc).RunOnce(cmd.Context(), asOf)
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().String("as-of", "", "posting date YYYY-MM-DD (default today)")
	return cmd
}

func scheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Post accruals on the configured interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			svc.Metrics = service.NewMetrics(prometheus.DefaultRegisterer)

			sched := service.NewAccrualScheduler(svc)
			sched.Interval = a.cfg.Scheduler.Interval
			sched.Start()

			// Wait for interrupt signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			a.logger.Info("shutting down scheduler")
			sched.Stop()
			return nil
		},
	}
}
