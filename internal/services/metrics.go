package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics exports sync outcomes. A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	runs        *prometheus.CounterVec
	tableErrors *prometheus.CounterVec
	rows        *prometheus.CounterVec
	lastSync    prometheus.Gauge
	online      prometheus.Gauge
}

// NewSyncMetrics registers the sync collectors with reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirmaan_sync_runs_total",
			Help: "Sync runs by direction and outcome (ok, partial, skipped).",
		}, []string{"direction", "outcome"}),
		tableErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirmaan_sync_table_errors_total",
			Help: "Remote table operations that failed.",
		}, []string{"direction", "table"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nirmaan_sync_rows_total",
			Help: "Rows sent or received.",
		}, []string{"direction", "table"}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nirmaan_last_sync_timestamp_seconds",
			Help: "Unix time of the last fully successful sync.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nirmaan_online",
			Help: "1 when the remote is reachable.",
		}),
	}
	reg.MustRegister(m.runs, m.tableErrors, m.rows, m.lastSync, m.online)
	return m
}

func (m *SyncMetrics) observe(r Report) {
	if m == nil {
		return
	}
	dir := string(r.Direction)
	switch {
	case r.Skipped != "":
		m.runs.WithLabelValues(dir, "skipped").Inc()
		return
	case r.OK():
		m.runs.WithLabelValues(dir, "ok").Inc()
	default:
		m.runs.WithLabelValues(dir, "partial").Inc()
	}
	for _, t := range r.Tables {
		if t.Err != nil {
			m.tableErrors.WithLabelValues(dir, t.Table).Inc()
			continue
		}
		m.rows.WithLabelValues(dir, t.Table).Add(float64(t.Rows))
	}
}

func (m *SyncMetrics) synced(at time.Time) {
	if m == nil {
		return
	}
	m.lastSync.Set(float64(at.Unix()))
}

// SetOnline records connectivity.
func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}
