package observability

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics records ledger operation activity for the staking service.
type StakingMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	totalStaked    prometheus.Gauge
	rewardsOnHand  prometheus.Gauge
	stakerAccounts prometheus.Gauge
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// Metrics returns the lazily-initialised metrics registry for the service.
func Metrics() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Total failed ledger operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "total_staked_units",
				Help:      "Aggregate principal currently recorded in the stake registry.",
			}),
			rewardsOnHand: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "reward_pool_unallocated_units",
				Help:      "Deposited reward units not yet allocated to accounts.",
			}),
			stakerAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pillarstake",
				Subsystem: "ledger",
				Name:      "staker_accounts",
				Help:      "Number of accounts that have ever staked.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.failures,
			stakingRegistry.latency,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsOnHand,
			stakingRegistry.stakerAccounts,
		)
	})
	return stakingRegistry
}

// ObserveOperation records a completed ledger operation and its latency.
// reason carries a stable failure code, empty on success.
func (m *StakingMetrics) ObserveOperation(operation, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if reason != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, reason).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetTotals updates the custody gauges from the latest ledger snapshot.
func (m *StakingMetrics) SetTotals(totalStaked, unallocatedRewards *big.Int, stakers int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(gaugeValue(totalStaked))
	m.rewardsOnHand.Set(gaugeValue(unallocatedRewards))
	m.stakerAccounts.Set(float64(stakers))
}

func gaugeValue(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
