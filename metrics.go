package block_stm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "block_stm"

// Metrics are the optional prometheus collectors updated at the end of each block.
type Metrics struct {
	Executions    prometheus.Counter
	Validations   prometheus.Counter
	Aborts        prometheus.Counter
	Suspensions   prometheus.Counter
	Halts         prometheus.Counter
	BlockSize     prometheus.Histogram
	BlockDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them to reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Number of transaction executions, including re-executions.",
		}),
		Validations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validations_total",
			Help:      "Number of read set validations.",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_aborts_total",
			Help:      "Number of incarnations aborted by a failed validation.",
		}),
		Suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "suspensions_total",
			Help:      "Number of executions suspended on a read dependency.",
		}),
		Halts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "halted_blocks_total",
			Help:      "Number of blocks stopped early by SkipRest or Abort.",
		}),
		BlockSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "block_size",
			Help:      "Number of transactions in the executed blocks.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		BlockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "block_duration_seconds",
			Help:      "Wall time of the parallel execution of a block.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Executions, m.Validations, m.Aborts, m.Suspensions, m.Halts, m.BlockSize, m.BlockDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(s *Scheduler, halted bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Executions.Add(float64(s.executedTxns.Load()))
	m.Validations.Add(float64(s.validatedTxns.Load()))
	m.Aborts.Add(float64(s.abortedTxns.Load()))
	m.Suspensions.Add(float64(s.readErrTxns.Load()))
	if halted {
		m.Halts.Inc()
	}
	m.BlockSize.Observe(float64(s.block_size))
	m.BlockDuration.Observe(elapsed.Seconds())
}
