package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

// Ledger is the read side of the engine sampled on every scrape.
type Ledger interface {
	Audit() marketplace.EscrowReport
	Stats() models.PlatformStats
}

// Metrics owns a private registry with HTTP, event and ledger series.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	events    *prometheus.CounterVec
	sales     prometheus.Counter
	payouts   *prometheus.CounterVec
}

// New builds the collectors under namespace, defaulting to "marketplace".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "marketplace"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Committed ledger events segmented by kind.",
		}, []string{"kind"}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sales_volume_total",
			Help:      "Sum of payments accepted into escrow.",
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payouts_total",
			Help:      "Sum of funds paid out, by recipient type.",
		}, []string{"recipient"}),
	}
	m.registry.MustRegister(m.requests, m.durations, m.events, m.sales, m.payouts)
	return m
}

// Emit records a committed ledger event.
func (m *Metrics) Emit(ev models.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case models.EventOrderPlaced:
		m.sales.Add(float64(ev.Amount))
	case models.EventSellerWithdrawal:
		m.payouts.WithLabelValues("seller").Add(float64(ev.Amount))
	case models.EventPlatformWithdrawal:
		m.payouts.WithLabelValues("platform").Add(float64(ev.Amount))
	}
}

// TrackLedger exposes escrow balances and platform counters as gauges read
// from l at scrape time.
func (m *Metrics) TrackLedger(namespace string, l Ledger) {
	if namespace == "" {
		namespace = "marketplace"
	}
	m.registry.MustRegister(newLedgerCollector(namespace, l))
}

// ledgerCollector takes one Audit and one Stats snapshot per scrape so the
// escrow gauges always agree with each other.
type ledgerCollector struct {
	ledger Ledger

	held     *prometheus.Desc
	pending  *prometheus.Desc
	earnings *prometheus.Desc
	balanced *prometheus.Desc
	sellers  *prometheus.Desc
	products *prometheus.Desc
	orders   *prometheus.Desc
}

func newLedgerCollector(namespace string, l Ledger) *ledgerCollector {
	escrow := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "escrow", name), help, nil, nil)
	}
	total := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &ledgerCollector{
		ledger:   l,
		held:     escrow("held_in_orders", "Seller shares of orders awaiting delivery confirmation."),
		pending:  escrow("pending_balances", "Seller balances available for withdrawal."),
		earnings: escrow("platform_earnings", "Commission not yet withdrawn by the platform owner."),
		balanced: escrow("balanced", "1 when holdings equal received minus withdrawn."),
		sellers:  total("sellers", "Registered sellers."),
		products: total("products", "Products ever listed."),
		orders:   total("orders", "Orders ever placed."),
	}
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.held, c.pending, c.earnings, c.balanced, c.sellers, c.products, c.orders} {
		ch <- d
	}
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	report := c.ledger.Audit()
	stats := c.ledger.Stats()

	balanced := 0.0
	if report.Balanced() {
		balanced = 1
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.held, float64(report.HeldInOrders))
	gauge(c.pending, float64(report.PendingBalances))
	gauge(c.earnings, float64(report.PlatformEarnings))
	gauge(c.balanced, balanced)
	gauge(c.sellers, float64(stats.TotalSellers))
	gauge(c.products, float64(stats.TotalProducts))
	gauge(c.orders, float64(stats.TotalOrders))
}

// Middleware records request counts and latencies labelled by chi route
// pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
