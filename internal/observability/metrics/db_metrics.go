package metrics

import (
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *slog.Logger) {
	gauges := []struct {
		name  string
		help  string
		query string
	}{
		{"event_outbox_pending", "Pending outbox records", "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'"},
		{"event_dlq_count", "Dead letter queue records", "SELECT COUNT(*) FROM dead_letter_events"},
		{"batches_awaiting_provider", "Payout batches waiting on a provider final state", "SELECT COUNT(*) FROM payout_batches WHERE status IN ('pending', 'queued') OR (status = 'processing' AND provider_payout_id IS NOT NULL)"},
		{"batches_failed", "Payout batches in failed state", "SELECT COUNT(*) FROM payout_batches WHERE status = 'failed'"},
		{"order_items_unsettled", "Order items not yet settled to sellers", "SELECT COUNT(*) FROM order_items WHERE is_settled_to_seller = false"},
	}
	for _, g := range gauges {
		query := g.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + g.name,
				Help: g.help,
			},
			func() float64 {
				return queryCount(db, logger, query)
			},
		))
	}
}

func queryCount(db *sql.DB, logger *slog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
