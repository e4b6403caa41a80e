/*
Package postgres provides a PostgreSQL-backed generic.TxRepository on pgx.

PURPOSE:
  Same contract and table layout as store/sqlite, with PostgreSQL types:
  NUMERIC(20,2) for money, DATE for dates and JSONB for audit payloads.
  Values are exchanged as text (amounts as decimal strings, dates as
  YYYY-MM-DD), so money never passes through float64.

CONCURRENCY:
  Many connections share the pool. Correctness relies on the database:
  policies.version for optimistic updates, the UNIQUE idempotency_key and
  (policy_id, sequence) constraints on ledger_entries, and a status
  compare-and-set on withdrawal_requests.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - generic/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements generic.TxRepository using PostgreSQL.
type Store struct {
	Pool *pgxpool.Pool
	queries
}

type queries struct {
	q querier
}

var (
	_ generic.TxRepository = (*Store)(nil)
	_ generic.Repository   = (*queries)(nil)
)

// New connects to dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewFromPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewFromPool wraps an existing pool without migrating.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, queries: queries{q: pool}}
}

func (s *Store) Close() {
	s.Pool.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		entry_date DATE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		entry_type TEXT NOT NULL CHECK (entry_type IN ('top_up', 'accrual', 'withdrawal', 'adjustment')),
		inflow NUMERIC(20,2) NOT NULL CHECK (inflow >= 0),
		outflow NUMERIC(20,2) NOT NULL CHECK (outflow >= 0),
		principal_change NUMERIC(20,2) NOT NULL,
		roi_change NUMERIC(20,2) NOT NULL,
		principal_balance NUMERIC(20,2) NOT NULL CHECK (principal_balance >= 0),
		roi_balance NUMERIC(20,2) NOT NULL CHECK (roi_balance >= 0),
		total_balance NUMERIC(20,2) NOT NULL,
		withdrawal_type TEXT,
		reference_id TEXT,
		idempotency_key TEXT,
		created_at DATE,
		CONSTRAINT ledger_entries_idempotency_key UNIQUE (idempotency_key),
		CONSTRAINT ledger_entries_policy_sequence UNIQUE (policy_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_policy_date ON ledger_entries(policy_id, entry_date, sequence)`,

	`CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		policy_number TEXT NOT NULL DEFAULT '',
		investor_id TEXT NOT NULL DEFAULT '',
		investor_name TEXT NOT NULL DEFAULT '',
		principal_amount NUMERIC(20,2) NOT NULL,
		current_balance NUMERIC(20,2) NOT NULL,
		roi_balance NUMERIC(20,2) NOT NULL,
		roi_rate NUMERIC NOT NULL,
		roi_frequency TEXT NOT NULL,
		start_date DATE NOT NULL,
		min_withdrawal_months INTEGER NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(status)`,

	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		withdrawal_type TEXT NOT NULL,
		amount_requested NUMERIC(20,2) NOT NULL,
		request_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		bank_name TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		decided_by TEXT,
		decided_at DATE,
		rejection_reason TEXT,
		processed_at DATE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_policy ON withdrawal_requests(policy_id, request_date)`,

	`CREATE TABLE IF NOT EXISTS tax_records (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		investor_id TEXT NOT NULL,
		request_id TEXT,
		payment_date DATE NOT NULL,
		tax_type TEXT NOT NULL,
		category TEXT,
		rate NUMERIC NOT NULL,
		gross NUMERIC(20,2) NOT NULL,
		tax NUMERIC(20,2) NOT NULL,
		net NUMERIC(20,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tax_records_investor_date ON tax_records(investor_id, payment_date)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		ts DATE NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		policy_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		payload JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_policy ON audit_log(policy_id, ts)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.Pool.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// WithTx runs fn in a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Repository) error) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(&queries{q: tx})
	})
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

const entrySelect = `SELECT id, policy_id, sequence, entry_date::text, description, entry_type,
	inflow::text, outflow::text, principal_change::text, roi_change::text,
	principal_balance::text, roi_balance::text, total_balance::text,
	COALESCE(withdrawal_type, ''), COALESCE(reference_id, ''), COALESCE(idempotency_key, ''),
	COALESCE(created_at::text, '')
	FROM ledger_entries`

func (r *queries) Append(ctx context.Context, e generic.LedgerEntry) error {
	if e.ID == "" {
		e.ID = generic.EntryID(uuid.NewString())
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, policy_id, sequence, entry_date, description, entry_type,
		 inflow, outflow, principal_change, roi_change,
		 principal_balance, roi_balance, total_balance,
		 withdrawal_type, reference_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		string(e.ID), string(e.PolicyID), e.Sequence, e.EntryDate.String(), e.Description, string(e.Type),
		e.Inflow.String(), e.Outflow.String(), e.PrincipalChange.String(), e.ROIChange.String(),
		e.PrincipalBalance.String(), e.ROIBalance.String(), e.TotalBalance.String(),
		nullable(string(e.WithdrawalType)), nullable(e.ReferenceID), nullable(e.IdempotencyKey),
		nullableDate(e.CreatedAt),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "ledger_entries_idempotency_key"):
			return generic.ErrDuplicateIdempotencyKey
		case isUniqueViolation(err, "ledger_entries_policy_sequence"):
			return fmt.Errorf("%w: sequence %d already written for %s", generic.ErrConcurrentModification, e.Sequence, e.PolicyID)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// AppendBatch runs in its own transaction, or joins the caller's inside WithTx.
func (r *queries) AppendBatch(ctx context.Context, es []generic.LedgerEntry) error {
	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	write := func(q querier) error {
		inner := &queries{q: q}
		for _, e := range es {
			if err := inner.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}
	if pool, ok := r.q.(*pgxpool.Pool); ok {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error { return write(tx) })
	}
	return write(r.q)
}

func (r *queries) Load(ctx context.Context, policyID generic.PolicyID) ([]generic.LedgerEntry, error) {
	return r.queryEntries(ctx, entrySelect+`
		WHERE policy_id = $1
		ORDER BY entry_date ASC, sequence ASC`, string(policyID))
}

func (r *queries) LoadRange(ctx context.Context, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.LedgerEntry, error) {
	return r.queryEntries(ctx, entrySelect+`
		WHERE policy_id = $1 AND entry_date >= $2 AND entry_date <= $3
		ORDER BY entry_date ASC, sequence ASC`, string(policyID), from.String(), to.String())
}

func (r *queries) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)",
		idempotencyKey,
	).Scan(&exists)
	return exists, err
}

func (r *queries) queryEntries(ctx context.Context, query string, args ...any) ([]generic.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.LedgerEntry
	for rows.Next() {
		var (
			e                                        generic.LedgerEntry
			id, policyID, entryType, withdrawalType  string
			date, createdAt                          string
			inflow, outflow, principalChg, roiChg    string
			principalBal, roiBal, totalBal           string
		)
		if err := rows.Scan(
			&id, &policyID, &e.Sequence, &date, &e.Description, &entryType,
			&inflow, &outflow, &principalChg, &roiChg,
			&principalBal, &roiBal, &totalBal,
			&withdrawalType, &e.ReferenceID, &e.IdempotencyKey, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		var p parser
		e.ID = generic.EntryID(id)
		e.PolicyID = generic.PolicyID(policyID)
		e.Type = generic.EntryType(entryType)
		e.WithdrawalType = generic.WithdrawalType(withdrawalType)
		e.EntryDate = p.date(date)
		e.Inflow = p.amount(inflow)
		e.Outflow = p.amount(outflow)
		e.PrincipalChange = p.amount(principalChg)
		e.ROIChange = p.amount(roiChg)
		e.PrincipalBalance = p.amount(principalBal)
		e.ROIBalance = p.amount(roiBal)
		e.TotalBalance = p.amount(totalBal)
		if createdAt != "" {
			e.CreatedAt = p.date(createdAt)
		}
		if p.err != nil {
			return nil, p.err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// POLICY STORE
// =============================================================================

const policySelect = `SELECT id, policy_number, investor_id, investor_name,
	principal_amount::text, current_balance::text, roi_balance::text, roi_rate::text,
	roi_frequency, start_date::text, min_withdrawal_months, status, version
	FROM policies`

func (r *queries) CreatePolicy(ctx context.Context, p generic.Policy) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO policies
		(id, policy_number, investor_id, investor_name, principal_amount, current_balance, roi_balance,
		 roi_rate, roi_frequency, start_date, min_withdrawal_months, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)`,
		string(p.ID), p.PolicyNumber, string(p.InvestorID), p.InvestorName,
		p.PrincipalAmount.String(), p.CurrentBalance.String(), p.ROIBalance.String(),
		p.ROIRate.String(), string(p.ROIFrequency), p.StartDate.String(),
		p.MinWithdrawalMonths, string(p.Status),
	)
	if err != nil {
		if isUniqueViolation(err, "policies_pkey") {
			return generic.ErrPolicyExists
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (r *queries) GetPolicy(ctx context.Context, id generic.PolicyID) (generic.Policy, error) {
	p, err := scanPolicy(r.q.QueryRow(ctx, policySelect+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Policy{}, generic.ErrPolicyNotFound
	}
	return p, err
}

func (r *queries) UpdatePolicy(ctx context.Context, p generic.Policy) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE policies SET
			policy_number = $1, investor_id = $2, investor_name = $3,
			principal_amount = $4, current_balance = $5, roi_balance = $6,
			roi_rate = $7, roi_frequency = $8, start_date = $9,
			min_withdrawal_months = $10, status = $11,
			version = version + 1
		WHERE id = $12 AND version = $13`,
		p.PolicyNumber, string(p.InvestorID), p.InvestorName,
		p.PrincipalAmount.String(), p.CurrentBalance.String(), p.ROIBalance.String(),
		p.ROIRate.String(), string(p.ROIFrequency), p.StartDate.String(),
		p.MinWithdrawalMonths, string(p.Status),
		string(p.ID), p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPolicy(ctx, p.ID); err != nil {
			return err
		}
		return generic.ErrConcurrentModification
	}
	return nil
}

func (r *queries) ListPolicies(ctx context.Context, status generic.PolicyStatus) ([]generic.Policy, error) {
	rows, err := r.q.Query(ctx, policySelect+` WHERE $1::text = '' OR status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []generic.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func scanPolicy(row pgx.Row) (generic.Policy, error) {
	var (
		p                                     generic.Policy
		id, investorID, frequency, status     string
		principal, current, roi, rate, start  string
	)
	if err := row.Scan(
		&id, &p.PolicyNumber, &investorID, &p.InvestorName,
		&principal, &current, &roi, &rate,
		&frequency, &start, &p.MinWithdrawalMonths, &status, &p.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan policy: %w", err)
	}

	var ps parser
	p.ID = generic.PolicyID(id)
	p.InvestorID = generic.InvestorID(investorID)
	p.ROIFrequency = generic.ROIFrequency(frequency)
	p.Status = generic.PolicyStatus(status)
	p.PrincipalAmount = ps.amount(principal)
	p.CurrentBalance = ps.amount(current)
	p.ROIBalance = ps.amount(roi)
	p.ROIRate = ps.decimal(rate)
	p.StartDate = ps.date(start)
	return p, ps.err
}

// =============================================================================
// WITHDRAWAL REQUESTS
// =============================================================================

const requestSelect = `SELECT id, policy_id, withdrawal_type, amount_requested::text, request_date::text, status,
	bank_name, account_name, account_number,
	COALESCE(decided_by, ''), COALESCE(decided_at::text, ''), COALESCE(rejection_reason, ''), COALESCE(processed_at::text, '')
	FROM withdrawal_requests`

func (r *queries) CreateRequest(ctx context.Context, req generic.WithdrawalRequest) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO withdrawal_requests
		(id, policy_id, withdrawal_type, amount_requested, request_date, status,
		 bank_name, account_name, account_number, decided_by, decided_at, rejection_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(req.ID), string(req.PolicyID), string(req.Type), req.AmountRequested.String(),
		req.RequestDate.String(), string(req.Status),
		req.Bank.BankName, req.Bank.AccountName, req.Bank.AccountNumber,
		nullable(req.DecidedBy), nullableDatePtr(req.DecidedAt), nullable(req.RejectionReason), nullableDatePtr(req.ProcessedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "withdrawal_requests_pkey") {
			return generic.ErrRequestExists
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *queries) GetRequest(ctx context.Context, id generic.RequestID) (generic.WithdrawalRequest, error) {
	reqs, err := r.queryRequests(ctx, requestSelect+` WHERE id = $1`, string(id))
	if err != nil {
		return generic.WithdrawalRequest{}, err
	}
	if len(reqs) == 0 {
		return generic.WithdrawalRequest{}, generic.ErrRequestNotFound
	}
	return reqs[0], nil
}

func (r *queries) UpdateRequestStatus(ctx context.Context, req generic.WithdrawalRequest, from generic.RequestStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE withdrawal_requests SET
			status = $1, decided_by = $2, decided_at = $3, rejection_reason = $4, processed_at = $5
		WHERE id = $6 AND status = $7`,
		string(req.Status), nullable(req.DecidedBy), nullableDatePtr(req.DecidedAt),
		nullable(req.RejectionReason), nullableDatePtr(req.ProcessedAt),
		string(req.ID), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		stored, err := r.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		return &generic.TransitionError{RequestID: req.ID, From: stored.Status, To: req.Status}
	}
	return nil
}

func (r *queries) ListRequests(ctx context.Context, policyID generic.PolicyID) ([]generic.WithdrawalRequest, error) {
	return r.queryRequests(ctx, requestSelect+`
		WHERE policy_id = $1
		ORDER BY request_date ASC, id ASC`, string(policyID))
}

func (r *queries) queryRequests(ctx context.Context, query string, args ...any) ([]generic.WithdrawalRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []generic.WithdrawalRequest
	for rows.Next() {
		var (
			req                                 generic.WithdrawalRequest
			id, policyID, wtype, status         string
			amount, date, decidedAt, processedAt string
		)
		if err := rows.Scan(
			&id, &policyID, &wtype, &amount, &date, &status,
			&req.Bank.BankName, &req.Bank.AccountName, &req.Bank.AccountNumber,
			&req.DecidedBy, &decidedAt, &req.RejectionReason, &processedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		var p parser
		req.ID = generic.RequestID(id)
		req.PolicyID = generic.PolicyID(policyID)
		req.Type = generic.WithdrawalType(wtype)
		req.Status = generic.RequestStatus(status)
		req.AmountRequested = p.amount(amount)
		req.RequestDate = p.date(date)
		req.DecidedAt = p.optDate(decidedAt)
		req.ProcessedAt = p.optDate(processedAt)
		if p.err != nil {
			return nil, p.err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// =============================================================================
// TAX RECORDS
// =============================================================================

func (r *queries) AppendTaxRecord(ctx context.Context, rec generic.TaxRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO tax_records
		(id, policy_id, investor_id, request_id, payment_date, tax_type, category, rate, gross, tax, net)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, string(rec.PolicyID), string(rec.InvestorID), nullable(string(rec.RequestID)),
		rec.PaymentDate.String(), rec.TaxType, nullable(rec.Category), rec.Rate,
		rec.Gross.String(), rec.Tax.String(), rec.Net.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to append tax record: %w", err)
	}
	return nil
}

func (r *queries) TaxRecords(ctx context.Context, investor generic.InvestorID, period generic.Period) ([]generic.TaxRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, policy_id, investor_id, COALESCE(request_id, ''), payment_date::text, tax_type,
		       COALESCE(category, ''), rate::text, gross::text, tax::text, net::text
		FROM tax_records
		WHERE ($1::text = '' OR investor_id = $1) AND payment_date >= $2 AND payment_date <= $3
		ORDER BY payment_date ASC, seq ASC`,
		string(investor), period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query tax records: %w", err)
	}
	defer rows.Close()

	var recs []generic.TaxRecord
	for rows.Next() {
		var (
			rec                                 generic.TaxRecord
			policyID, investorID, requestID     string
			date, gross, amount, net            string
		)
		if err := rows.Scan(&rec.ID, &policyID, &investorID, &requestID, &date,
			&rec.TaxType, &rec.Category, &rec.Rate, &gross, &amount, &net); err != nil {
			return nil, fmt.Errorf("failed to scan tax record: %w", err)
		}

		var p parser
		rec.PolicyID = generic.PolicyID(policyID)
		rec.InvestorID = generic.InvestorID(investorID)
		rec.RequestID = generic.RequestID(requestID)
		rec.PaymentDate = p.date(date)
		rec.Gross = p.amount(gross)
		rec.Tax = p.amount(amount)
		rec.Net = p.amount(net)
		if p.err != nil {
			return nil, p.err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (r *queries) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, policy_id, request_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Timestamp.String(), e.ActorID, string(e.Action), string(e.PolicyID), string(e.RequestID), e.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *queries) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.PolicyID != nil {
		where = append(where, "policy_id = "+arg(string(*f.PolicyID)))
	}
	if f.ActorID != nil {
		where = append(where, "actor_id = "+arg(*f.ActorID))
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		where = append(where, "action = ANY("+arg(actions)+")")
	}
	if f.From != nil {
		where = append(where, "ts >= "+arg(f.From.String()))
	}
	if f.To != nil {
		where = append(where, "ts <= "+arg(f.To.String()))
	}

	query := `SELECT id, ts::text, actor_id, action, policy_id, request_id, payload FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                          generic.AuditEntry
			ts, action, policy, reqID  string
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &policy, &reqID, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		var p parser
		e.Timestamp = p.date(ts)
		e.Action = generic.AuditAction(action)
		e.PolicyID = generic.PolicyID(policy)
		e.RequestID = generic.RequestID(reqID)
		if p.err != nil {
			return nil, p.err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type parser struct {
	err error
}

func (p *parser) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d
}

func (p *parser) amount(s string) generic.Amount {
	return generic.NewAmountFromDecimal(p.decimal(s))
}

func (p *parser) date(s string) generic.TimePoint {
	t, err := generic.ParseTimePoint(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("corrupt date %q: %w", s, err)
	}
	return t
}

func (p *parser) optDate(s string) *generic.TimePoint {
	if s == "" {
		return nil
	}
	t := p.date(s)
	return &t
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableDate(t generic.TimePoint) *string {
	if t.IsZero() {
		return nil
	}
	return nullable(t.String())
}

func nullableDatePtr(t *generic.TimePoint) *string {
	if t == nil {
		return nil
	}
	return nullableDate(*t)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
