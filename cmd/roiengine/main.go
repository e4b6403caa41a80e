/*
main.go - roiengine command-line entry point

PURPOSE:
  Runs the investment engine from the shell. Pure commands (accrual, tax,
  evaluate, statement) read policy, entry and request JSON files and print
  the computed figures. Store commands (open, withdraw, run-accruals,
  schedule) open the repository named in the config and go through the
  service.

CONFIGURATION:
  --config  YAML or TOML file (see config/config.go). Without it the
            statutory defaults and a local investment.db are used.

OUTPUT:
  Every command prints indented JSON on stdout. Logs go to stderr.

EXAMPLES:
  roiengine accrual policy.json --as-of 2024-06-01
  roiengine tax calc WHT 16666.67
  roiengine evaluate policy.json request.json --today 2024-06-10
  roiengine --config prod.yaml run-accruals --as-of 2024-07-01
  roiengine --config prod.yaml schedule

SEE ALSO:
  - engine.go: Commands over JSON files
  - records.go: Commands over the configured store
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/warp/investment-engine/accrual"
	"github.com/warp/investment-engine/config"
	"github.com/warp/investment-engine/factory"
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/generic/store"
	"github.com/warp/investment-engine/payout"
	"github.com/warp/investment-engine/store/postgres"
	"github.com/warp/investment-engine/store/sqlite"
	"github.com/warp/investment-engine/tax"
	"github.com/warp/investment-engine/withdrawal"
)

var (
	version = "dev"
	commit  = "none"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string

	cfg     *config.Config
	logger  *slog.Logger
	factory *factory.Factory
	taxes   *tax.Calculator
	engine  *accrual.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "roiengine",
		Short:         "Investment ROI, withdrawal and tax engine",
		Long:          "Computes ROI accruals, withdrawal eligibility, statutory Nigerian taxes and policy statements.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML or TOML configuration file")

	root.AddCommand(
		accrualCmd(a),
		taxCmd(a),
		evaluateCmd(a),
		statementCmd(a),
		openCmd(a),
		withdrawCmd(a),
		runAccrualsCmd(a),
		scheduleCmd(a),
		versionCmd(),
	)
	return root
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(logOut)
	if err != nil {
		return err
	}
	taxes, err := tax.NewCalculator(cfg.TaxConfig())
	if err != nil {
		return err
	}
	f, err := factory.NewFactory()
	if err != nil {
		return err
	}
	f.MinWithdrawalMonths = cfg.Withdrawal.DefaultMinMonths

	a.cfg = cfg
	a.logger = logger
	a.taxes = taxes
	a.factory = f
	a.engine = accrual.NewEngine(cfg.Accrual.CutoffDay)
	return nil
}

func (a *app) evaluator() *withdrawal.Evaluator { return withdrawal.NewEvaluator() }

func (a *app) composer() *payout.Composer { return payout.NewComposer(a.taxes) }

// =============================================================================
// STORE
// =============================================================================

// openRepo opens the configured store. The returned func closes it.
func (a *app) openRepo(ctx context.Context) (generic.TxRepository, func(), error) {
	db := a.cfg.Database
	switch db.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, s.Close, nil
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil
	default:
		s, err := sqlite.New(db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite %s: %w", db.DSN, err)
		}
		return s, func() { s.Close() }, nil
	}
}

// =============================================================================
// OUTPUT & INPUT HELPERS
// =============================================================================

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// dateFlag parses a YYYY-MM-DD flag value; empty means today.
func dateFlag(cmd *cobra.Command, name string) (generic.TimePoint, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return generic.Today(), nil
	}
	tp, err := generic.ParseTimePoint(s)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("--%s: %w", name, err)
	}
	return tp, nil
}

// amountFlag parses an optional amount flag; empty returns nil.
func amountFlag(cmd *cobra.Command, name string) (*generic.Amount, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return nil, nil
	}
	a, err := parseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &a, nil
}

func parseAmount(s string) (generic.Amount, error) {
	var a generic.Amount
	if err := a.UnmarshalJSON([]byte(s)); err != nil {
		return generic.Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "roiengine %s (commit %s)\n", version, commit)
			if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "go %s\n", bi.GoVersion)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for bad input and 1 for everything else.
func exitCode(err error) int {
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		return 2
	}
	return 1
}
