package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for all pools in the process, labeled by pool name.
var (
	openSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "axion_pool_open_sessions",
		Help: "Live sessions owned by the pool, idle plus busy",
	}, []string{"pool"})

	busySessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "axion_pool_busy_sessions",
		Help: "Sessions currently checked out of the pool",
	}, []string{"pool"})

	acquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axion_pool_acquires_total",
		Help: "Acquire attempts by outcome",
	}, []string{"pool", "result"})

	sessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axion_pool_sessions_created_total",
		Help: "Backend sessions opened by the pool",
	}, []string{"pool"})

	sessionsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axion_pool_sessions_dropped_total",
		Help: "Backend sessions destroyed by the pool",
	}, []string{"pool", "reason"})

	acquireWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "axion_pool_acquire_wait_seconds",
		Help:    "Time spent inside Acquire",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"pool"})
)

// Acquire outcome labels.
const (
	resultReused    = "reused"
	resultCreated   = "created"
	resultExhausted = "exhausted"
	resultClosed    = "closed"
	resultError     = "error"
)

// collector curries the process-wide metrics to one pool instance.
type collector struct {
	opened      prometheus.Gauge
	busy        prometheus.Gauge
	acquires    *prometheus.CounterVec
	created     prometheus.Counter
	dropped     *prometheus.CounterVec
	acquireWait prometheus.Observer
}

func newCollector(poolName string) *collector {
	return &collector{
		opened:      openSessions.WithLabelValues(poolName),
		busy:        busySessions.WithLabelValues(poolName),
		acquires:    acquiresTotal.MustCurryWith(prometheus.Labels{"pool": poolName}),
		created:     sessionsCreatedTotal.WithLabelValues(poolName),
		dropped:     sessionsDroppedTotal.MustCurryWith(prometheus.Labels{"pool": poolName}),
		acquireWait: acquireWaitSeconds.WithLabelValues(poolName),
	}
}

func (c *collector) observeAcquire(result string, start time.Time) {
	c.acquires.WithLabelValues(result).Inc()
	c.acquireWait.Observe(time.Since(start).Seconds())
}

func (c *collector) setGauges(opened, busy int) {
	c.opened.Set(float64(opened))
	c.busy.Set(float64(busy))
}
