/*
scheduler.go - Automated monthly accrual posting

PURPOSE:
  Periodically posts the ROI accruals due on every policy that still
  accrues (Active or Suspended), so balances advance on the first of each
  month without a manual run. Suspension blocks withdrawals and top-ups,
  not ROI.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on Start, then on every tick
  - PostAccruals is idempotent, so overlapping or repeated runs post nothing twice
  - One failing policy is logged and skipped; the run continues

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - service.go: PostAccruals
  - accrual/engine.go: Which months are due
*/
package service

import (
	"context"
	"sync"
	"time"

	"github.com/warp/investment-engine/generic"
)

// AccrualScheduler posts due accruals for all accruing policies.
type AccrualScheduler struct {
	Service  *PolicyService
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunResult summarizes one pass over the accruing policies.
type RunResult struct {
	AsOf     generic.TimePoint `json:"as_of"`
	Policies int               `json:"policies"`
	Posted   int               `json:"entries_posted"`
	Failed   int               `json:"failed"`
}

func NewAccrualScheduler(svc *PolicyService) *AccrualScheduler {
	return &AccrualScheduler{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Service.log().Info("accrual scheduler disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.Interval)
	as.stop = make(chan struct{})
	as.wg.Add(1)

	go as.run(as.ticker, as.stop)

	as.Service.log().Info("accrual scheduler started", "interval", as.Interval.String())
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		as.Service.log().Info("accrual scheduler stopped")
	}
}

func (as *AccrualScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.RunOnce(context.Background(), as.Service.now())

	for {
		select {
		case <-ticker.C:
			as.RunOnce(context.Background(), as.Service.now())
		case <-stop:
			return
		}
	}
}

// RunOnce posts accruals due by asOf on every policy whose status accrues.
func (as *AccrualScheduler) RunOnce(ctx context.Context, asOf generic.TimePoint) RunResult {
	log := as.Service.log()
	result := RunResult{AsOf: asOf}

	policies, err := as.Service.Repo.ListPolicies(ctx, "")
	if err != nil {
		log.Error("accrual run: listing policies failed", "error", err)
		return result
	}

	for _, p := range policies {
		if !p.Status.Accrues() {
			continue
		}
		result.Policies++
		posted, err := as.Service.PostAccruals(ctx, p.ID, asOf, SystemActor)
		if err != nil {
			result.Failed++
			log.Error("accrual run: posting failed", "policy_id", p.ID, "error", err)
			continue
		}
		result.Posted += len(posted)
	}

	if result.Posted > 0 || result.Failed > 0 {
		log.Info("accrual run completed", "as_of", asOf.String(), "policies", result.Policies, "posted", result.Posted, "failed", result.Failed)
	}
	return result
}
