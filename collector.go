package whereis

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type storeMetrics struct {
	registrations  prometheus.Counter
	remoteCalls    prometheus.Counter
	remoteFailures prometheus.Counter
	readRepairs    prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer, db *pebble.DB) *storeMetrics {
	m := &storeMetrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whereis_registrations_total",
			Help: "Number of (machine, hash) locations registered locally",
		}),
		remoteCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whereis_remote_calls_total",
			Help: "Number of lookups forwarded to a remote tier",
		}),
		remoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whereis_remote_failures_total",
			Help: "Number of failed remote tier calls",
		}),
		readRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whereis_read_repairs_total",
			Help: "Number of remote entries merged back into the local view",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.registrations, m.remoteCalls, m.remoteFailures, m.readRepairs)
		reg.MustRegister(NewPebbleCollector(db))
	}
	return m
}

// PebbleCollector exports the local database's pebble stats.
type PebbleCollector struct {
	db *pebble.DB

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	diskUsage       *prometheus.Desc
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	return &PebbleCollector{
		db: db,
		compactionCount: prometheus.NewDesc(
			"whereis_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"whereis_pebble_compaction_estimated_debt_bytes",
			"Estimated bytes to compact to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"whereis_pebble_memtable_size_bytes",
			"Current size of the memtables in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"whereis_pebble_memtable_count_total",
			"Current count of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"whereis_pebble_wal_files_total",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"whereis_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			"whereis_pebble_disk_usage_bytes",
			"Total disk space used by the database",
			nil, nil,
		),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.diskUsage
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()

	ch <- prometheus.MustNewConstMetric(
		pc.compactionCount,
		prometheus.CounterValue,
		float64(metrics.Compact.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.compactionDebt,
		prometheus.GaugeValue,
		float64(metrics.Compact.EstimatedDebt),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.walFiles,
		prometheus.GaugeValue,
		float64(metrics.WAL.Files),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		pc.diskUsage,
		prometheus.GaugeValue,
		float64(metrics.DiskSpaceUsage()),
	)
}
