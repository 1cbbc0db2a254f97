package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntriesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_ledger_entries_posted_total",
		Help: "Ledger entries appended, by entry type.",
	}, []string{"entry_type"})

	DraftsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_funding_drafts_accepted_total",
		Help: "Funding drafts promoted to ledger entries.",
	})

	DraftsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_funding_drafts_rejected_total",
		Help: "Funding drafts rejected without ledger effect.",
	})

	DraftAcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_funding_draft_accept_conflicts_total",
		Help: "Acceptance attempts that lost the consumed-marker race.",
	})

	SettlementsPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_exit_settlements_posted_total",
		Help: "Exit settlements that posted a balancing entry.",
	})

	FxFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_fx_rate_fallbacks_total",
		Help: "FX lookups served from the latest captured rate instead of an exact date match.",
	})
)
