/*
ledger.go - Append-only ledger entry log

PURPOSE:
  The Ledger is the durable source of truth for every balance change on a
  policy. Unlike a replayed transaction log, each LedgerEntry stores its own
  post-state, so the latest entry is the current balance and a historical
  balance is a lookup, not a recomputation.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. ORDERED: Entries are ordered by entry date, then sequence
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A mistake is never edited. An Adjustment entry with signed deltas is
  appended instead; both entries stay in the ledger.

SEE ALSO:
  - store.go: Low-level persistence interface
  - ledger/builder.go: Computes the entry to append
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

type Ledger interface {
	// Append adds an entry. Fails if idempotency key exists.
	Append(ctx context.Context, entry LedgerEntry) error

	// AppendBatch adds multiple entries atomically.
	AppendBatch(ctx context.Context, entries []LedgerEntry) error

	// Entries returns all entries for the policy, in ledger order.
	Entries(ctx context.Context, policyID PolicyID) ([]LedgerEntry, error)

	// EntriesInRange returns entries dated in [from, to].
	EntriesInRange(ctx context.Context, policyID PolicyID, from, to TimePoint) ([]LedgerEntry, error)

	// BalancesAt returns the post-state of the last entry dated on or before at,
	// and false when no such entry exists.
	BalancesAt(ctx context.Context, policyID PolicyID, at TimePoint) (Balances, bool, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, entry LedgerEntry) error {
	if entry.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, entry.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, entry)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []LedgerEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *DefaultLedger) Entries(ctx context.Context, policyID PolicyID) ([]LedgerEntry, error) {
	return l.Store.Load(ctx, policyID)
}

func (l *DefaultLedger) EntriesInRange(ctx context.Context, policyID PolicyID, from, to TimePoint) ([]LedgerEntry, error) {
	if to.Before(from) {
		return nil, ErrInvalidPeriod
	}
	return l.Store.LoadRange(ctx, policyID, from, to)
}

func (l *DefaultLedger) BalancesAt(ctx context.Context, policyID PolicyID, at TimePoint) (Balances, bool, error) {
	entries, err := l.Store.Load(ctx, policyID)
	if err != nil {
		return Balances{}, false, err
	}

	var (
		last  LedgerEntry
		found bool
	)
	for _, e := range entries {
		if e.EntryDate.After(at) {
			break
		}
		last, found = e, true
	}
	if !found {
		return Balances{}, false, nil
	}
	return last.After(), true, nil
}

// Latest returns the last entry of an ordered slice.
func Latest(entries []LedgerEntry) (LedgerEntry, bool) {
	if len(entries) == 0 {
		return LedgerEntry{}, false
	}
	return entries[len(entries)-1], true
}

// EntryLess orders entries by date, then sequence.
func EntryLess(a, b LedgerEntry) bool {
	if !a.EntryDate.Equal(b.EntryDate) {
		return a.EntryDate.Before(b.EntryDate)
	}
	return a.Sequence < b.Sequence
}
