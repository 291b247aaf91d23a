package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FeeMetrics struct {
	cacheReads       prometheus.Counter
	cacheWrites      prometheus.Counter
	historyReads     prometheus.Counter
	historyWrites    prometheus.Counter
	distributions    *prometheus.CounterVec
	distributedTotal *prometheus.CounterVec
	cachedAmount     *prometheus.GaugeVec
	overflowFaults   prometheus.Counter
	malformedRecords *prometheus.CounterVec
}

var (
	feesOnce     sync.Once
	feesRegistry *FeeMetrics
)

func Fees() *FeeMetrics {
	feesOnce.Do(func() {
		feesRegistry = &FeeMetrics{
			cacheReads: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fees_cache_reads_total",
				Help: "Count of fee cache record reads.",
			}),
			cacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fees_cache_writes_total",
				Help: "Count of fee cache record writes.",
			}),
			historyReads: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fees_history_reads_total",
				Help: "Count of fee history record reads.",
			}),
			historyWrites: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fees_history_writes_total",
				Help: "Count of fee history record writes.",
			}),
			distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fees_distributions_total",
				Help: "Count of completed fee distributions by property.",
			}, []string{"property"}),
			distributedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fees_distributed_amount_total",
				Help: "Total fee amount paid out by property.",
			}, []string{"property"}),
			cachedAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fees_cached_amount",
				Help: "Current accrued-but-undistributed fee amount by property.",
			}, []string{"property"}),
			overflowFaults: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fees_cache_overflow_faults_total",
				Help: "Count of fatal fee cache overflow faults.",
			}),
			malformedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fees_malformed_records_total",
				Help: "Count of malformed persisted records skipped during reads.",
			}, []string{"table"}),
		}
		prometheus.MustRegister(
			feesRegistry.cacheReads,
			feesRegistry.cacheWrites,
			feesRegistry.historyReads,
			feesRegistry.historyWrites,
			feesRegistry.distributions,
			feesRegistry.distributedTotal,
			feesRegistry.cachedAmount,
			feesRegistry.overflowFaults,
			feesRegistry.malformedRecords,
		)
	})
	return feesRegistry
}

func (m *FeeMetrics) IncCacheRead() {
	if m == nil {
		return
	}
	m.cacheReads.Inc()
}

func (m *FeeMetrics) IncCacheWrite() {
	if m == nil {
		return
	}
	m.cacheWrites.Inc()
}

func (m *FeeMetrics) IncHistoryRead() {
	if m == nil {
		return
	}
	m.historyReads.Inc()
}

func (m *FeeMetrics) IncHistoryWrite() {
	if m == nil {
		return
	}
	m.historyWrites.Inc()
}

func (m *FeeMetrics) ObserveDistribution(propertyID uint32, amount int64) {
	if m == nil {
		return
	}
	label := fmt.Sprintf("%d", propertyID)
	m.distributions.WithLabelValues(label).Inc()
	m.distributedTotal.WithLabelValues(label).Add(float64(amount))
}

func (m *FeeMetrics) SetCachedAmount(propertyID uint32, amount int64) {
	if m == nil {
		return
	}
	m.cachedAmount.WithLabelValues(fmt.Sprintf("%d", propertyID)).Set(float64(amount))
}

func (m *FeeMetrics) IncOverflowFault() {
	if m == nil {
		return
	}
	m.overflowFaults.Inc()
}

func (m *FeeMetrics) IncMalformedRecord(table string) {
	if m == nil {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.malformedRecords.WithLabelValues(table).Inc()
}
