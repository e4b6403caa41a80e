/*
Package sqlite provides a SQLite-backed generic.TxRepository.

PURPOSE:
  Implements every persistence interface the service needs (ledger entries,
  policies, withdrawal requests, tax records, audit log) on one SQLite
  database. The PostgreSQL store follows the same table layout.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries
  - idempotency_key is UNIQUE, so a retried post is rejected
  - (policy_id, sequence) is UNIQUE, so two writers racing on the same
    policy cannot both extend the chain

KEY TABLES:
  ledger_entries:      Immutable running-balance rows
  policies:            Policy snapshots with an optimistic version column
  withdrawal_requests: Requests and their decision trail
  tax_records:         Deductions made on each payout
  audit_log:           Who did what when

DATA FORMAT:
  Amounts are stored as decimal TEXT ("16666.67") and dates as YYYY-MM-DD
  TEXT, so ORDER BY and range filters work lexically and nothing passes
  through float64.

CONCURRENCY:
  The pool is limited to one connection. Writers serialize on it and a
  ":memory:" database stays a single database. WithTx holds the connection
  for the whole callback.

USAGE:
  repo, err := sqlite.New("./data/investment.db")
  if err != nil {
      log.Fatal(err)
  }
  defer repo.Close()

  svc := service.New(repo, ...)

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/postgres/postgres.go: PostgreSQL implementation
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/generic"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements generic.TxRepository using SQLite.
type Store struct {
	db *sql.DB
	queries
}

// queries implements generic.Repository over a querier.
type queries struct {
	q querier
}

var (
	_ generic.TxRepository = (*Store)(nil)
	_ generic.Repository   = (*queries)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		entry_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		entry_type TEXT NOT NULL CHECK (entry_type IN ('top_up', 'accrual', 'withdrawal', 'adjustment')),
		inflow TEXT NOT NULL,
		outflow TEXT NOT NULL,
		principal_change TEXT NOT NULL,
		roi_change TEXT NOT NULL,
		principal_balance TEXT NOT NULL,
		roi_balance TEXT NOT NULL,
		total_balance TEXT NOT NULL,
		withdrawal_type TEXT,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT,
		UNIQUE(policy_id, sequence)
	);

	-- Statement and balance reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_policy_date
		ON ledger_entries(policy_id, entry_date, sequence);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(reference_id) WHERE reference_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		policy_number TEXT NOT NULL DEFAULT '',
		investor_id TEXT NOT NULL DEFAULT '',
		investor_name TEXT NOT NULL DEFAULT '',
		principal_amount TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		roi_balance TEXT NOT NULL,
		roi_rate TEXT NOT NULL,
		roi_frequency TEXT NOT NULL,
		start_date TEXT NOT NULL,
		min_withdrawal_months INTEGER NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(status);
	CREATE INDEX IF NOT EXISTS idx_policies_investor ON policies(investor_id);

	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		withdrawal_type TEXT NOT NULL,
		amount_requested TEXT NOT NULL,
		request_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		bank_name TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_policy ON withdrawal_requests(policy_id, request_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON withdrawal_requests(status);

	CREATE TABLE IF NOT EXISTS tax_records (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		investor_id TEXT NOT NULL,
		request_id TEXT,
		payment_date TEXT NOT NULL,
		tax_type TEXT NOT NULL,
		category TEXT,
		rate TEXT NOT NULL,
		gross TEXT NOT NULL,
		tax TEXT NOT NULL,
		net TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tax_records_investor_date
		ON tax_records(investor_id, payment_date);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		policy_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_policy ON audit_log(policy_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL REPOSITORY (generic.TxRepository)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// LEDGER ENTRIES (generic.Store)
// =============================================================================

const entryColumns = `id, policy_id, sequence, entry_date, description, entry_type,
	inflow, outflow, principal_change, roi_change,
	principal_balance, roi_balance, total_balance,
	withdrawal_type, reference_id, idempotency_key, created_at`

func (r *queries) Append(ctx context.Context, e generic.LedgerEntry) error {
	if e.ID == "" {
		e.ID = generic.EntryID(uuid.NewString())
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PolicyID, e.Sequence, e.EntryDate.String(), e.Description, e.Type,
		e.Inflow.String(), e.Outflow.String(), e.PrincipalChange.String(), e.ROIChange.String(),
		e.PrincipalBalance.String(), e.ROIBalance.String(), e.TotalBalance.String(),
		nullString(string(e.WithdrawalType)), nullString(e.ReferenceID),
		nullString(e.IdempotencyKey), nullDate(e.CreatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err, "idempotency_key"):
			return generic.ErrDuplicateIdempotencyKey
		case isUniqueConstraintError(err, "sequence"):
			return fmt.Errorf("%w: sequence %d already written for %s", generic.ErrConcurrentModification, e.Sequence, e.PolicyID)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// AppendBatch adds entries atomically. Inside WithTx it joins the outer
// transaction.
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

	db, ok := r.q.(*sql.DB)
	if !ok {
		for _, e := range es {
			if err := r.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	inner := &queries{q: sqlTx}
	for _, e := range es {
		if err := inner.Append(ctx, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (r *queries) Load(ctx context.Context, policyID generic.PolicyID) ([]generic.LedgerEntry, error) {
	return r.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE policy_id = ?
		ORDER BY entry_date ASC, sequence ASC`, policyID)
}

func (r *queries) LoadRange(ctx context.Context, policyID generic.PolicyID, from, to generic.TimePoint) ([]generic.LedgerEntry, error) {
	return r.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE policy_id = ? AND entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date ASC, sequence ASC`, policyID, from.String(), to.String())
}

func (r *queries) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (r *queries) queryEntries(ctx context.Context, query string, args ...any) ([]generic.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.LedgerEntry, error) {
	var (
		e                                    generic.LedgerEntry
		date, inflow, outflow                string
		principalChange, roiChange           string
		principalBal, roiBal, totalBal       string
		withdrawalType, referenceID, idemKey sql.NullString
		createdAt                            sql.NullString
	)
	err := rows.Scan(
		&e.ID, &e.PolicyID, &e.Sequence, &date, &e.Description, &e.Type,
		&inflow, &outflow, &principalChange, &roiChange,
		&principalBal, &roiBal, &totalBal,
		&withdrawalType, &referenceID, &idemKey, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	var p parser
	e.EntryDate = p.date(date)
	e.Inflow = p.amount(inflow)
	e.Outflow = p.amount(outflow)
	e.PrincipalChange = p.amount(principalChange)
	e.ROIChange = p.amount(roiChange)
	e.PrincipalBalance = p.amount(principalBal)
	e.ROIBalance = p.amount(roiBal)
	e.TotalBalance = p.amount(totalBal)
	e.WithdrawalType = generic.WithdrawalType(withdrawalType.String)
	e.ReferenceID = referenceID.String
	e.IdempotencyKey = idemKey.String
	if t := p.optDate(createdAt); t != nil {
		e.CreatedAt = *t
	}
	return e, p.err
}

// =============================================================================
// POLICY STORE
// =============================================================================

const policyColumns = `id, policy_number, investor_id, investor_name,
	principal_amount, current_balance, roi_balance, roi_rate, roi_frequency,
	start_date, min_withdrawal_months, status, version`

func (r *queries) CreatePolicy(ctx context.Context, p generic.Policy) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		p.ID, p.PolicyNumber, p.InvestorID, p.InvestorName,
		p.PrincipalAmount.String(), p.CurrentBalance.String(), p.ROIBalance.String(),
		p.ROIRate.String(), p.ROIFrequency, p.StartDate.String(),
		p.MinWithdrawalMonths, p.Status,
	)
	if err != nil {
		if isUniqueConstraintError(err, "policies.id") {
			return generic.ErrPolicyExists
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (r *queries) GetPolicy(ctx context.Context, id generic.PolicyID) (generic.Policy, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	if err != nil {
		return generic.Policy{}, fmt.Errorf("failed to get policy: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return generic.Policy{}, err
		}
		return generic.Policy{}, generic.ErrPolicyNotFound
	}
	return scanPolicy(rows)
}

// UpdatePolicy writes p when the stored version still equals p.Version.
func (r *queries) UpdatePolicy(ctx context.Context, p generic.Policy) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE policies SET
			policy_number = ?, investor_id = ?, investor_name = ?,
			principal_amount = ?, current_balance = ?, roi_balance = ?,
			roi_rate = ?, roi_frequency = ?, start_date = ?,
			min_withdrawal_months = ?, status = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		p.PolicyNumber, p.InvestorID, p.InvestorName,
		p.PrincipalAmount.String(), p.CurrentBalance.String(), p.ROIBalance.String(),
		p.ROIRate.String(), p.ROIFrequency, p.StartDate.String(),
		p.MinWithdrawalMonths, p.Status,
		p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetPolicy(ctx, p.ID); err != nil {
			return err
		}
		return generic.ErrConcurrentModification
	}
	return nil
}

func (r *queries) ListPolicies(ctx context.Context, status generic.PolicyStatus) ([]generic.Policy, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE ? = '' OR status = ?
		ORDER BY id`, status, status)
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

func scanPolicy(rows *sql.Rows) (generic.Policy, error) {
	var (
		p                           generic.Policy
		principal, current, roi     string
		rate, frequency, start, sts string
	)
	err := rows.Scan(
		&p.ID, &p.PolicyNumber, &p.InvestorID, &p.InvestorName,
		&principal, &current, &roi, &rate, &frequency,
		&start, &p.MinWithdrawalMonths, &sts, &p.Version,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan policy: %w", err)
	}

	var ps parser
	p.PrincipalAmount = ps.amount(principal)
	p.CurrentBalance = ps.amount(current)
	p.ROIBalance = ps.amount(roi)
	p.ROIRate = ps.decimal(rate)
	p.ROIFrequency = generic.ROIFrequency(frequency)
	p.StartDate = ps.date(start)
	p.Status = generic.PolicyStatus(sts)
	return p, ps.err
}

// =============================================================================
// WITHDRAWAL REQUESTS
// =============================================================================

const requestColumns = `id, policy_id, withdrawal_type, amount_requested, request_date, status,
	bank_name, account_name, account_number,
	decided_by, decided_at, rejection_reason, processed_at`

func (r *queries) CreateRequest(ctx context.Context, req generic.WithdrawalRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.PolicyID, req.Type, req.AmountRequested.String(), req.RequestDate.String(), req.Status,
		req.Bank.BankName, req.Bank.AccountName, req.Bank.AccountNumber,
		nullString(req.DecidedBy), nullDatePtr(req.DecidedAt), nullString(req.RejectionReason), nullDatePtr(req.ProcessedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "withdrawal_requests.id") {
			return generic.ErrRequestExists
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *queries) GetRequest(ctx context.Context, id generic.RequestID) (generic.WithdrawalRequest, error) {
	reqs, err := r.queryRequests(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = ?`, id)
	if err != nil {
		return generic.WithdrawalRequest{}, err
	}
	if len(reqs) == 0 {
		return generic.WithdrawalRequest{}, generic.ErrRequestNotFound
	}
	return reqs[0], nil
}

// UpdateRequestStatus is a compare-and-set on the status column.
func (r *queries) UpdateRequestStatus(ctx context.Context, req generic.WithdrawalRequest, from generic.RequestStatus) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE withdrawal_requests SET
			status = ?, decided_by = ?, decided_at = ?, rejection_reason = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		req.Status, nullString(req.DecidedBy), nullDatePtr(req.DecidedAt),
		nullString(req.RejectionReason), nullDatePtr(req.ProcessedAt),
		req.ID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		stored, err := r.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		return &generic.TransitionError{RequestID: req.ID, From: stored.Status, To: req.Status}
	}
	return nil
}

func (r *queries) ListRequests(ctx context.Context, policyID generic.PolicyID) ([]generic.WithdrawalRequest, error) {
	return r.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE policy_id = ?
		ORDER BY request_date ASC, id ASC`, policyID)
}

func (r *queries) queryRequests(ctx context.Context, query string, args ...any) ([]generic.WithdrawalRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []generic.WithdrawalRequest
	for rows.Next() {
		var (
			req                                          generic.WithdrawalRequest
			amount, date                                 string
			decidedBy, decidedAt, rejection, processedAt sql.NullString
		)
		err := rows.Scan(
			&req.ID, &req.PolicyID, &req.Type, &amount, &date, &req.Status,
			&req.Bank.BankName, &req.Bank.AccountName, &req.Bank.AccountNumber,
			&decidedBy, &decidedAt, &rejection, &processedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		var p parser
		req.AmountRequested = p.amount(amount)
		req.RequestDate = p.date(date)
		req.DecidedBy = decidedBy.String
		req.DecidedAt = p.optDate(decidedAt)
		req.RejectionReason = rejection.String
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
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tax_records
		(id, policy_id, investor_id, request_id, payment_date, tax_type, category, rate, gross, tax, net)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PolicyID, rec.InvestorID, nullString(string(rec.RequestID)),
		rec.PaymentDate.String(), rec.TaxType, nullString(rec.Category), rec.Rate,
		rec.Gross.String(), rec.Tax.String(), rec.Net.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to append tax record: %w", err)
	}
	return nil
}

// TaxRecords returns records paid within period. An empty investor matches all.
func (r *queries) TaxRecords(ctx context.Context, investor generic.InvestorID, period generic.Period) ([]generic.TaxRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, policy_id, investor_id, request_id, payment_date, tax_type, category, rate, gross, tax, net
		FROM tax_records
		WHERE (? = '' OR investor_id = ?) AND payment_date >= ? AND payment_date <= ?
		ORDER BY payment_date ASC, rowid ASC`,
		investor, investor, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query tax records: %w", err)
	}
	defer rows.Close()

	var recs []generic.TaxRecord
	for rows.Next() {
		var (
			rec                      generic.TaxRecord
			requestID, category      sql.NullString
			date, gross, amount, net string
		)
		if err := rows.Scan(&rec.ID, &rec.PolicyID, &rec.InvestorID, &requestID, &date,
			&rec.TaxType, &category, &rec.Rate, &gross, &amount, &net); err != nil {
			return nil, fmt.Errorf("failed to scan tax record: %w", err)
		}

		var p parser
		rec.RequestID = generic.RequestID(requestID.String)
		rec.Category = category.String
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
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, policy_id, request_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.String(), e.ActorID, e.Action, e.PolicyID, e.RequestID, string(payload),
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
	if f.PolicyID != nil {
		where = append(where, "policy_id = ?")
		args = append(args, *f.PolicyID)
	}
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "ts >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "ts <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT id, ts, actor_id, action, policy_id, request_id, payload_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e       generic.AuditEntry
			ts      string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &e.PolicyID, &e.RequestID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		var p parser
		e.Timestamp = p.date(ts)
		if p.err != nil {
			return nil, p.err
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// parser converts stored text columns, keeping the first failure.
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

func (p *parser) optDate(ns sql.NullString) *generic.TimePoint {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := p.date(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(t generic.TimePoint) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func nullDatePtr(t *generic.TimePoint) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullDate(*t)
}

// isUniqueConstraintError matches a UNIQUE violation mentioning column.
func isUniqueConstraintError(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique &&
		sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}
