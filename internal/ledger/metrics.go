package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyledger_checkins_total",
		Help: "Sessions opened by check-in.",
	})
	settlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyledger_settlements_total",
		Help: "Debt settlements applied at check-out or force-close.",
	})
	forcedClosesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyledger_forced_closes_total",
		Help: "Sessions closed administratively.",
	})
	reconciledDaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyledger_reconciled_days_total",
		Help: "Elapsed weekdays settled by the catch-up pass.",
	})
)
