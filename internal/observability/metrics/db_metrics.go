package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func registerDBMetrics(db *sql.DB, logger zerolog.Logger) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "unissued_reebills",
			Help: "Reebill versions not yet issued",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM reebills WHERE issued = FALSE")
		},
	))

	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "unprocessed_utilbills",
			Help: "Utility bills not yet processed",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM utilbills WHERE processed = FALSE")
		},
	))
}

func queryCount(db *sql.DB, logger zerolog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn().Err(err).Str("query", query).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
