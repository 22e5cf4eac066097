package retention

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes retention counters on a Prometheus registry.
type Metrics struct {
	runs    prometheus.Counter
	deleted *prometheus.CounterVec
}

// NewMetrics registers the retention collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retention_passes_total",
			Help: "Total number of completed retention passes.",
		}),
		deleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retention_deleted_total",
				Help: "Items deleted by retention sweeps.",
			},
			[]string{"sweep"},
		),
	}
	if err := reg.Register(m.runs); err != nil {
		return nil, err
	}
	if err := reg.Register(m.deleted); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveRun records the outcome of one pass.
func (m *Metrics) ObserveRun(res *Result) {
	m.runs.Inc()
	m.deleted.WithLabelValues("objects").Add(float64(res.ObjectsDeleted))
	m.deleted.WithLabelValues("cache").Add(float64(res.CacheFilesDeleted))
	m.deleted.WithLabelValues("orphans").Add(float64(res.OrphanRowsDeleted))
	m.deleted.WithLabelValues("download_events").Add(float64(res.DownloadEventsDeleted))
	m.deleted.WithLabelValues("open_events").Add(float64(res.OpenEventsDeleted))
}
