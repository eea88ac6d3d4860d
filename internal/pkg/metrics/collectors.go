package metrics

import (
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics updates session store pool metrics.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}

// RecordHeldIncidents publishes the counts of the displayed collection.
func RecordHeldIncidents(stats domain.Stats) {
	HeldIncidents.WithLabelValues("total").Set(float64(stats.Total))
	HeldIncidents.WithLabelValues("active").Set(float64(stats.Active))
	HeldIncidents.WithLabelValues("p1").Set(float64(stats.P1))
	HeldIncidents.WithLabelValues("p2").Set(float64(stats.P2))
}
