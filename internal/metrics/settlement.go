// internal/metrics/settlement.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement results.
const (
	ResultWon            = "won"
	ResultLost           = "lost"
	ResultDuplicate      = "duplicate"
	ResultInProgress     = "in_progress"
	ResultDepositMissing = "deposit_not_found"
	ResultInvalidDeposit = "invalid_deposit"
	ResultUnknownAccount = "unknown_account"
	ResultInvalidInput   = "invalid_input"
	ResultError          = "error"
)

var (
	settlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_requests_total",
			Help: "Total settlement requests by result",
		},
		[]string{"result"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_request_duration_ms",
			Help:    "Settlement request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		},
		[]string{"result"},
	)

	depositPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deposit_poll_attempts",
			Help:    "Ledger lookups needed before a deposit was found or given up on",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	wageredLamports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagered_lamports_total",
			Help: "Lamports wagered by settled outcome",
		},
		[]string{"result"},
	)

	payoutTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_transitions_total",
			Help: "Payout state transitions by target status",
		},
		[]string{"status"},
	)
)

// RecordSettlement records one settlement call.
func RecordSettlement(result string, started time.Time) {
	settlementTotal.WithLabelValues(result).Inc()
	settlementDuration.WithLabelValues(result).Observe(float64(time.Since(started).Milliseconds()))
}

// RecordWagered adds a settled wager amount under its result.
func RecordWagered(result string, lamports int64) {
	wageredLamports.WithLabelValues(result).Add(float64(lamports))
}

// RecordDepositPoll records how many lookups a deposit verification took.
func RecordDepositPoll(attempts int) {
	depositPollAttempts.Observe(float64(attempts))
}

// RecordPayoutTransition counts a payout moving to status.
func RecordPayoutTransition(status string) {
	payoutTransitions.WithLabelValues(status).Inc()
}
