package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/investment-engine/generic"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	Evaluations    *prometheus.CounterVec
	LedgerEntries  *prometheus.CounterVec
	AccrualsPosted prometheus.Counter
	PayoutGross    prometheus.Counter
	TaxWithheld    *prometheus.CounterVec
}

// NewMetrics registers the counters with reg. A nil reg uses a private
// registry, which keeps tests free of duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "investment",
			Name:      "withdrawal_evaluations_total",
			Help:      "Withdrawal evaluations by type and outcome.",
		}, []string{"type", "outcome"}),
		LedgerEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "investment",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended by entry type.",
		}, []string{"entry_type"}),
		AccrualsPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "investment",
			Name:      "accruals_posted_total",
			Help:      "Monthly ROI accruals posted.",
		}),
		PayoutGross: f.NewCounter(prometheus.CounterOpts{
			Namespace: "investment",
			Name:      "payout_gross_naira_total",
			Help:      "Gross Naira paid out on processed withdrawals.",
		}),
		TaxWithheld: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "investment",
			Name:      "tax_withheld_naira_total",
			Help:      "Naira withheld on payouts by tax type.",
		}, []string{"tax_type"}),
	}
}

func (m *Metrics) evaluated(t generic.WithdrawalType, reason *generic.ErrorKind) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if reason != nil {
		outcome = string(*reason)
	}
	m.Evaluations.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) appended(entries ...generic.LedgerEntry) {
	if m == nil {
		return
	}
	for _, e := range entries {
		m.LedgerEntries.WithLabelValues(string(e.Type)).Inc()
		if e.Type == generic.EntryAccrual {
			m.AccrualsPosted.Inc()
		}
	}
}

func (m *Metrics) paid(gross generic.Amount, taxes []generic.TaxRecord) {
	if m == nil {
		return
	}
	g, _ := gross.Value.Float64()
	m.PayoutGross.Add(g)
	for _, rec := range taxes {
		v, _ := rec.Tax.Value.Float64()
		m.TaxWithheld.WithLabelValues(rec.TaxType).Add(v)
	}
}
