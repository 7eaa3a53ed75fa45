package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all exchange metrics
type Collector struct {
	// Order metrics
	OrdersTotal     *prometheus.CounterVec
	MatchingLatency *prometheus.HistogramVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	ActiveUsers prometheus.Gauge
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted",
		},
		[]string{"ticker", "direction", "type", "status"},
	)

	c.MatchingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: "matching",
			Name:      "latency_seconds",
			Help:      "Matching engine latency per submission",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		},
		[]string{"ticker"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of executed trades",
		},
		[]string{"ticker"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "trades",
			Name:      "volume",
			Help:      "Total traded quantity",
		},
		[]string{"ticker"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "request_latency_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	c.ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "system",
			Name:      "active_users",
			Help:      "Number of registered users",
		},
	)

	prometheus.MustRegister(
		c.OrdersTotal,
		c.MatchingLatency,
		c.TradesTotal,
		c.TradeVolume,
		c.APIRequestsTotal,
		c.APIRequestLatency,
		c.RateLimitHits,
		c.ActiveUsers,
	)

	return c
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, endpoint, status string, latencySeconds float64) {
	c.APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, endpoint).Observe(latencySeconds)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
