/*
Package service orchestrates the pure engine packages against a repository.

PURPOSE:
  The engine packages compute; they never read or write storage. This
  package is the records collaborator's side of that contract: it loads a
  policy snapshot and its ledger, asks the engine what should happen, and
  persists the result in one transaction.

CONCURRENCY:
  Every write path takes a per-policy lock (keyedMutex) and then runs
  inside Repo.WithTx. The store's optimistic version check on UpdatePolicy
  catches writers outside this process. Inside a transaction only the
  transactional repository is touched.

ACCRUAL CATCH-UP:
  The ledger rejects entries dated before the latest entry, so any write
  that appends an entry first posts the accruals due up to its own date.
  A top-up on 2024-06-10 posts June's ROI before the top-up itself.

WITHDRAWAL FLOW:
  SubmitWithdrawal  catch up accruals, evaluate, persist Pending
  Approve / Reject  Pending -> Approved | Rejected
  Process           re-evaluate, compose payout, append entry, Processed

  Process re-runs the evaluator because balances may have moved between
  approval and processing.

SEE ALSO:
  - withdrawal/evaluator.go: Eligibility rules
  - payout/composer.go: Payout and its tax deductions
  - scheduler.go: Periodic PostAccruals over accruing policies
*/
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/investment-engine/accrual"
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/payout"
	"github.com/warp/investment-engine/tax"
	"github.com/warp/investment-engine/withdrawal"
)

// SystemActor is recorded on audit entries written by the scheduler.
const SystemActor = "system"

// =============================================================================
// POLICY SERVICE
// =============================================================================

type PolicyService struct {
	Repo      generic.TxRepository
	Engine    *accrual.Engine
	Evaluator *withdrawal.Evaluator
	Taxes     *tax.Calculator
	Composer  *payout.Composer
	Logger    *slog.Logger
	Metrics   *Metrics

	NewID func() string
	Now   func() generic.TimePoint

	locks keyedMutex
}

// New returns a service with the statutory tax tables, the default cutoff
// day and uuid identifiers. Fields may be replaced before first use.
func New(repo generic.TxRepository) *PolicyService {
	taxes := tax.Default()
	return &PolicyService{
		Repo:      repo,
		Engine:    accrual.NewEngine(accrual.DefaultCutoffDay),
		Evaluator: withdrawal.NewEvaluator(),
		Taxes:     taxes,
		Composer:  payout.NewComposer(taxes),
		Logger:    slog.Default(),
		NewID:     uuid.NewString,
		Now:       generic.Today,
	}
}

func (s *PolicyService) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *PolicyService) id() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *PolicyService) now() generic.TimePoint {
	if s.Now == nil {
		return generic.Today()
	}
	return s.Now()
}

// =============================================================================
// POLICIES
// =============================================================================

// OpenPolicy persists a new policy snapshot at Version 1.
func (s *PolicyService) OpenPolicy(ctx context.Context, policy generic.Policy, actor string) (generic.Policy, error) {
	if err := policy.Validate(); err != nil {
		return generic.Policy{}, err
	}
	unlock := s.locks.Lock(policy.ID)
	defer unlock()

	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		if err := repo.CreatePolicy(ctx, policy); err != nil {
			return fmt.Errorf("failed to create policy %s: %w", policy.ID, err)
		}
		return s.audit(ctx, repo, actor, generic.AuditPolicyOpened, policy.ID, "", map[string]any{
			"principal":  policy.PrincipalAmount.String(),
			"roi_rate":   policy.ROIRate.String(),
			"start_date": policy.StartDate.String(),
		})
	})
	if err != nil {
		return generic.Policy{}, err
	}
	policy.Version = 1
	s.log().Info("policy opened", "policy_id", policy.ID, "investor_id", policy.InvestorID, "principal", policy.PrincipalAmount.String())
	return policy, nil
}

func (s *PolicyService) GetPolicy(ctx context.Context, id generic.PolicyID) (generic.Policy, error) {
	return s.Repo.GetPolicy(ctx, id)
}

// TopUp adds principal. A non-empty ref makes retries of the same top-up
// collapse into one entry.
func (s *PolicyService) TopUp(ctx context.Context, policyID generic.PolicyID, amount generic.Amount, on generic.TimePoint, ref, actor string) (generic.LedgerEntry, error) {
	ev := ledger.Event{
		Type:        generic.EntryTopUp,
		Date:        on,
		Amount:      amount,
		ReferenceID: ref,
	}
	if ref != "" {
		ev.IdempotencyKey = "topup:" + string(policyID) + ":" + ref
	}
	return s.appendEvent(ctx, policyID, ev, actor, generic.AuditTopUp, map[string]any{
		"amount": amount.Round().String(),
		"ref":    ref,
	})
}

// Adjust appends a correcting entry with signed deltas.
func (s *PolicyService) Adjust(ctx context.Context, policyID generic.PolicyID, principalDelta, roiDelta generic.Amount, on generic.TimePoint, reason, actor string) (generic.LedgerEntry, error) {
	if reason == "" {
		return generic.LedgerEntry{}, &generic.ContractError{Field: "reason", Problem: "required"}
	}
	return s.appendEvent(ctx, policyID, ledger.Event{
		Type:           generic.EntryAdjustment,
		Date:           on,
		Description:    reason,
		PrincipalDelta: principalDelta,
		ROIDelta:       roiDelta,
	}, actor, generic.AuditManualAdjust, map[string]any{
		"principal_delta": principalDelta.Round().String(),
		"roi_delta":       roiDelta.Round().String(),
		"reason":          reason,
	})
}

func (s *PolicyService) appendEvent(ctx context.Context, policyID generic.PolicyID, ev ledger.Event, actor string, action generic.AuditAction, payload map[string]any) (generic.LedgerEntry, error) {
	unlock := s.locks.Lock(policyID)
	defer unlock()

	var entry generic.LedgerEntry
	var posted []generic.LedgerEntry
	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		policy, entries, caughtUp, err := s.load(ctx, repo, policyID, ev.Date)
		if err != nil {
			return err
		}
		posted = caughtUp
		if ev.Type == generic.EntryTopUp && policy.Status != generic.PolicyActive {
			return &generic.EvaluationError{Kind: generic.KindPolicyNotActive, PolicyID: policyID, Requested: ev.Amount}
		}

		ev.ID = generic.EntryID(s.id())
		ev.CreatedAt = s.now()
		entry, err = ledger.AppendEntry(policy, entries, ev)
		if err != nil {
			return err
		}
		if err := generic.NewLedger(repo).Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append %s entry: %w", entry.Type, err)
		}
		if _, err := s.save(ctx, repo, policy.WithBalances(entry.PrincipalBalance, entry.ROIBalance)); err != nil {
			return err
		}
		return s.audit(ctx, repo, actor, action, policyID, "", payload)
	})
	if err != nil {
		return generic.LedgerEntry{}, err
	}
	s.Metrics.appended(posted...)
	s.Metrics.appended(entry)
	s.log().Info("ledger entry appended", "policy_id", policyID, "type", entry.Type, "total_balance", entry.TotalBalance.String())
	return entry, nil
}

// SetFrequency switches the policy between monthly and on-demand ROI.
func (s *PolicyService) SetFrequency(ctx context.Context, policyID generic.PolicyID, f generic.ROIFrequency, actor string) (generic.Policy, error) {
	if !f.Valid() {
		return generic.Policy{}, &generic.ContractError{Field: "roi_frequency", Problem: "unknown value " + string(f)}
	}
	unlock := s.locks.Lock(policyID)
	defer unlock()

	var updated generic.Policy
	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		policy, err := repo.GetPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		if policy.ROIFrequency == f {
			updated = policy
			return nil
		}
		from := policy.ROIFrequency
		if updated, err = s.save(ctx, repo, policy.WithFrequency(f)); err != nil {
			return err
		}
		return s.audit(ctx, repo, actor, generic.AuditFrequencyChanged, policyID, "", map[string]any{
			"from": string(from),
			"to":   string(f),
		})
	})
	if err != nil {
		return generic.Policy{}, err
	}
	return updated, nil
}

// =============================================================================
// ACCRUALS
// =============================================================================

// PostAccruals posts every accrual due up to asOf. Reposting is a no-op.
func (s *PolicyService) PostAccruals(ctx context.Context, policyID generic.PolicyID, asOf generic.TimePoint, actor string) ([]generic.LedgerEntry, error) {
	unlock := s.locks.Lock(policyID)
	defer unlock()

	var posted []generic.LedgerEntry
	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		var err error
		_, _, posted, err = s.load(ctx, repo, policyID, asOf)
		if err != nil || len(posted) == 0 {
			return err
		}
		last := posted[len(posted)-1]
		return s.audit(ctx, repo, actor, generic.AuditAccrualsPosted, policyID, "", map[string]any{
			"count":       len(posted),
			"through":     last.EntryDate.String(),
			"roi_balance": last.ROIBalance.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	if len(posted) > 0 {
		s.Metrics.appended(posted...)
		s.log().Info("accruals posted", "policy_id", policyID, "count", len(posted), "as_of", asOf.String())
	}
	return posted, nil
}

// load reads the policy and its ledger, then posts the accruals due up to
// asOf so an entry dated asOf can follow. The returned policy carries the
// post-catch-up balances and version.
func (s *PolicyService) load(ctx context.Context, repo generic.Repository, policyID generic.PolicyID, asOf generic.TimePoint) (generic.Policy, []generic.LedgerEntry, []generic.LedgerEntry, error) {
	policy, err := repo.GetPolicy(ctx, policyID)
	if err != nil {
		return generic.Policy{}, nil, nil, err
	}
	entries, err := repo.Load(ctx, policyID)
	if err != nil {
		return generic.Policy{}, nil, nil, fmt.Errorf("failed to load ledger for %s: %w", policyID, err)
	}

	due, err := s.Engine.DueAccruals(policy, lastAccrual(entries), asOf)
	if err != nil || len(due) == 0 {
		return policy, entries, nil, err
	}

	events := make([]ledger.Event, 0, len(due))
	for _, a := range due {
		key := a.IdempotencyKey(policyID)
		exists, err := repo.Exists(ctx, key)
		if err != nil {
			return generic.Policy{}, nil, nil, err
		}
		if exists {
			continue
		}
		ev := ledger.FromAccrual(policyID, a)
		ev.ID = generic.EntryID(s.id())
		ev.CreatedAt = s.now()
		events = append(events, ev)
	}
	if len(events) == 0 {
		return policy, entries, nil, nil
	}

	posted, err := ledger.Build(policy, entries, events)
	if err != nil {
		return generic.Policy{}, nil, nil, err
	}
	if err := generic.NewLedger(repo).AppendBatch(ctx, posted); err != nil {
		return generic.Policy{}, nil, nil, fmt.Errorf("failed to post accruals for %s: %w", policyID, err)
	}
	last := posted[len(posted)-1]
	policy, err = s.save(ctx, repo, policy.WithBalances(last.PrincipalBalance, last.ROIBalance))
	if err != nil {
		return generic.Policy{}, nil, nil, err
	}
	return policy, append(entries, posted...), posted, nil
}

func lastAccrual(entries []generic.LedgerEntry) generic.TimePoint {
	var last generic.TimePoint
	for _, e := range entries {
		if e.Type == generic.EntryAccrual && e.EntryDate.After(last) {
			last = e.EntryDate
		}
	}
	return last
}

// save writes policy and returns it at its new version.
func (s *PolicyService) save(ctx context.Context, repo generic.Repository, policy generic.Policy) (generic.Policy, error) {
	if err := repo.UpdatePolicy(ctx, policy); err != nil {
		return generic.Policy{}, fmt.Errorf("failed to update policy %s: %w", policy.ID, err)
	}
	policy.Version++
	return policy, nil
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

// SubmitWithdrawal evaluates req and persists it as Pending. A denied
// evaluation is returned as an *generic.EvaluationError alongside it.
func (s *PolicyService) SubmitWithdrawal(ctx context.Context, req generic.WithdrawalRequest, today generic.TimePoint, actor string) (generic.WithdrawalRequest, withdrawal.Evaluation, error) {
	unlock := s.locks.Lock(req.PolicyID)
	defer unlock()

	req.AmountRequested = req.AmountRequested.Round()
	if req.ID == "" {
		req.ID = generic.RequestID(s.id())
	}

	var (
		policy  generic.Policy
		eval    withdrawal.Evaluation
		created generic.WithdrawalRequest
		posted  []generic.LedgerEntry
	)
	// Accruals caught up here stay posted even when the request is denied.
	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		var err error
		if policy, _, posted, err = s.load(ctx, repo, req.PolicyID, today); err != nil {
			return err
		}
		if eval, err = s.Evaluator.Evaluate(policy, req, today); err != nil {
			return err
		}
		if !eval.Allowed {
			return nil
		}

		if created, err = withdrawal.NewRequest(req.ID, policy.ID, req.Type, req.AmountRequested, today, req.Bank); err != nil {
			return err
		}
		if err := repo.CreateRequest(ctx, created); err != nil {
			return fmt.Errorf("failed to create request %s: %w", created.ID, err)
		}
		return s.audit(ctx, repo, actor, generic.AuditRequestCreated, policy.ID, created.ID, map[string]any{
			"type":   string(created.Type),
			"amount": created.AmountRequested.String(),
		})
	})
	if err != nil {
		return generic.WithdrawalRequest{}, eval, err
	}
	s.Metrics.appended(posted...)
	s.Metrics.evaluated(req.Type, eval.Reason)
	if !eval.Allowed {
		s.log().Info("withdrawal denied", "policy_id", policy.ID, "type", req.Type, "reason", *eval.Reason, "requested", req.AmountRequested.String())
		return generic.WithdrawalRequest{}, eval, eval.Err(policy.ID, req.AmountRequested)
	}
	s.log().Info("withdrawal submitted", "policy_id", policy.ID, "request_id", created.ID, "type", created.Type, "amount", created.AmountRequested.String())
	return created, eval, nil
}

// Approve moves a Pending request to Approved.
func (s *PolicyService) Approve(ctx context.Context, id generic.RequestID, actor string) (generic.WithdrawalRequest, error) {
	return s.decide(ctx, id, generic.AuditRequestApproved, actor, func(req generic.WithdrawalRequest) (generic.WithdrawalRequest, error) {
		return withdrawal.Approve(req, actor, s.now())
	})
}

// Reject moves a Pending request to Rejected.
func (s *PolicyService) Reject(ctx context.Context, id generic.RequestID, actor, reason string) (generic.WithdrawalRequest, error) {
	return s.decide(ctx, id, generic.AuditRequestRejected, actor, func(req generic.WithdrawalRequest) (generic.WithdrawalRequest, error) {
		return withdrawal.Reject(req, actor, reason, s.now())
	})
}

func (s *PolicyService) decide(ctx context.Context, id generic.RequestID, action generic.AuditAction, actor string, move func(generic.WithdrawalRequest) (generic.WithdrawalRequest, error)) (generic.WithdrawalRequest, error) {
	var decided generic.WithdrawalRequest
	err := s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		req, err := repo.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if decided, err = move(req); err != nil {
			return err
		}
		if err := repo.UpdateRequestStatus(ctx, decided, req.Status); err != nil {
			return err
		}
		payload := map[string]any{"amount": decided.AmountRequested.String()}
		if decided.RejectionReason != "" {
			payload["reason"] = decided.RejectionReason
		}
		return s.audit(ctx, repo, actor, action, decided.PolicyID, decided.ID, payload)
	})
	if err != nil {
		return generic.WithdrawalRequest{}, err
	}
	s.log().Info("withdrawal decided", "request_id", id, "status", decided.Status, "actor", actor)
	return decided, nil
}

// Process pays out an Approved request. annualIncome is the investor's
// declared other income; nil skips PIT.
func (s *PolicyService) Process(ctx context.Context, id generic.RequestID, today generic.TimePoint, annualIncome *generic.Amount, actor string) (payout.Payout, error) {
	req, err := s.Repo.GetRequest(ctx, id)
	if err != nil {
		return payout.Payout{}, err
	}
	unlock := s.locks.Lock(req.PolicyID)
	defer unlock()

	var out payout.Payout
	var records []generic.TaxRecord
	var posted []generic.LedgerEntry
	err = s.Repo.WithTx(ctx, func(repo generic.Repository) error {
		req, err := repo.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != generic.RequestApproved {
			return &generic.TransitionError{RequestID: req.ID, From: req.Status, To: generic.RequestProcessed}
		}
		policy, entries, caughtUp, err := s.load(ctx, repo, req.PolicyID, today)
		if err != nil {
			return err
		}
		posted = caughtUp

		eval, err := s.Evaluator.Evaluate(policy, req, today)
		if err != nil {
			return err
		}
		s.Metrics.evaluated(req.Type, eval.Reason)
		if !eval.Allowed {
			return eval.Err(policy.ID, req.AmountRequested)
		}

		in := payout.ForRequest(policy, entries, req, today)
		in.AnnualIncome = annualIncome
		in.EntryID = generic.EntryID(s.id())
		if out, err = s.Composer.Compose(in); err != nil {
			return err
		}
		entry := out.LedgerEntries[0]
		if err := generic.NewLedger(repo).Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append payout entry: %w", err)
		}
		if _, err := s.save(ctx, repo, policy.WithBalances(entry.PrincipalBalance, entry.ROIBalance)); err != nil {
			return err
		}

		processed, err := withdrawal.MarkProcessed(req, today)
		if err != nil {
			return err
		}
		if err := repo.UpdateRequestStatus(ctx, processed, generic.RequestApproved); err != nil {
			return err
		}

		records = out.TaxRecords(policy.InvestorID, today)
		for i := range records {
			records[i].ID = s.id()
			if err := repo.AppendTaxRecord(ctx, records[i]); err != nil {
				return fmt.Errorf("failed to record %s: %w", records[i].TaxType, err)
			}
		}
		return s.audit(ctx, repo, actor, generic.AuditRequestProcessed, policy.ID, req.ID, map[string]any{
			"gross":               out.GrossAmount.String(),
			"roi_portion":         out.ROIPortion.String(),
			"principal_portion":   out.PrincipalPortion.String(),
			"wht":                 out.WHTAmount.String(),
			"pit":                 out.PITAmount.String(),
			"net_after_all_taxes": out.NetAfterAllTaxes.String(),
		})
	})
	if err != nil {
		if generic.IsRetryable(err) {
			s.log().Warn("payout lost a concurrent update", "request_id", id, "error", err)
		}
		return payout.Payout{}, err
	}
	s.Metrics.appended(posted...)
	s.Metrics.appended(out.LedgerEntries...)
	s.Metrics.paid(out.GrossAmount, records)
	s.log().Info("withdrawal processed", "request_id", id, "policy_id", out.PolicyID, "gross", out.GrossAmount.String(), "net", out.NetAfterAllTaxes.String())
	return out, nil
}

func (s *PolicyService) ListRequests(ctx context.Context, policyID generic.PolicyID) ([]generic.WithdrawalRequest, error) {
	return s.Repo.ListRequests(ctx, policyID)
}

// =============================================================================
// REPORTING
// =============================================================================

// Statement returns the entries and totals for [from, to].
func (s *PolicyService) Statement(ctx context.Context, policyID generic.PolicyID, from, to generic.TimePoint) (ledger.Statement, error) {
	policy, err := s.Repo.GetPolicy(ctx, policyID)
	if err != nil {
		return ledger.Statement{}, err
	}
	book := generic.NewLedger(s.Repo)
	inPeriod, err := book.EntriesInRange(ctx, policyID, from, to)
	if err != nil {
		return ledger.Statement{}, fmt.Errorf("failed to load ledger for %s: %w", policyID, err)
	}
	opening, found, err := book.BalancesAt(ctx, policyID, from.AddDays(-1))
	if err != nil {
		return ledger.Statement{}, err
	}
	if !found {
		// Nothing precedes the period: open from the first entry ever posted.
		opening = generic.Balances{Principal: policy.CurrentBalance, ROI: policy.ROIBalance}
		first := inPeriod
		if len(first) == 0 {
			if first, err = book.Entries(ctx, policyID); err != nil {
				return ledger.Statement{}, err
			}
		}
		if len(first) > 0 {
			opening = first[0].Before()
		}
	}
	return ledger.StatementFrom(policy, opening, inPeriod, from, to)
}

// TaxSummary totals the deductions recorded for investor in a calendar year.
func (s *PolicyService) TaxSummary(ctx context.Context, investor generic.InvestorID, year int) (tax.Summary, error) {
	period := generic.TaxYear(year)
	records, err := s.Repo.TaxRecords(ctx, investor, period)
	if err != nil {
		return tax.Summary{}, err
	}
	return tax.Summarize(records, period)
}

// ErrNoTaxablePayment is returned when a certificate is requested for a
// payout that withheld nothing, such as a principal-only withdrawal.
var ErrNoTaxablePayment = errors.New("no taxable payment for request")

// Certificate issues a WHT certificate for a processed request.
func (s *PolicyService) Certificate(ctx context.Context, id generic.RequestID, investor tax.Investor) (tax.Certificate, error) {
	req, err := s.Repo.GetRequest(ctx, id)
	if err != nil {
		return tax.Certificate{}, err
	}
	if req.Status != generic.RequestProcessed || req.ProcessedAt == nil {
		return tax.Certificate{}, &generic.TransitionError{RequestID: id, From: req.Status, To: generic.RequestProcessed}
	}
	policy, err := s.Repo.GetPolicy(ctx, req.PolicyID)
	if err != nil {
		return tax.Certificate{}, err
	}

	records, err := s.Repo.TaxRecords(ctx, policy.InvestorID, generic.TaxYear(req.ProcessedAt.Year()))
	if err != nil {
		return tax.Certificate{}, err
	}
	for _, rec := range records {
		if rec.RequestID != id || rec.TaxType != string(tax.WHT) {
			continue
		}
		if investor.Name == "" {
			investor.Name = policy.InvestorName
		}
		return s.Taxes.Certificate("WHT-"+string(id), investor, tax.Payment{
			Date:        rec.PaymentDate,
			Description: fmt.Sprintf("ROI payout of %s on policy %s", tax.FormatNaira(rec.Gross), policyLabel(policy)),
			Gross:       rec.Gross,
			Type:        string(req.Type),
		}, s.now())
	}
	return tax.Certificate{}, fmt.Errorf("%w %s", ErrNoTaxablePayment, id)
}

func policyLabel(p generic.Policy) string {
	if p.PolicyNumber != "" {
		return p.PolicyNumber
	}
	return string(p.ID)
}

// Audit returns the audit entries matching f.
func (s *PolicyService) Audit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	return s.Repo.QueryAudit(ctx, f)
}

func (s *PolicyService) audit(ctx context.Context, repo generic.Repository, actor string, action generic.AuditAction, policyID generic.PolicyID, requestID generic.RequestID, payload map[string]any) error {
	if actor == "" {
		actor = SystemActor
	}
	err := repo.AppendAudit(ctx, generic.AuditEntry{
		ID:        s.id(),
		Timestamp: s.now(),
		ActorID:   actor,
		Action:    action,
		PolicyID:  policyID,
		RequestID: requestID,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

// keyedMutex serializes work per policy. Idle locks are released.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[generic.PolicyID]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key generic.PolicyID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[generic.PolicyID]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
