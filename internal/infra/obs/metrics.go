package obs

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rigshare/internal/app/policies"
)

// Metrics are the Prometheus counters of the settlement engine.
type Metrics struct {
	registry          *prometheus.Registry
	settlements       *prometheus.CounterVec
	refunds           *prometheus.CounterVec
	processorCalls    *prometheus.CounterVec
	notificationsDrop *prometheus.CounterVec
	outboxPublished   prometheus.Counter
	requestDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rigshare_settlements_recorded_total",
			Help: "Settlements recorded, split by whether an existing row was returned.",
		}, []string{"duplicate"}),
		refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rigshare_booking_refunds_total",
			Help: "Booking refund attempts by outcome.",
		}, []string{"outcome"}),
		processorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rigshare_payment_processor_calls_total",
			Help: "Payment processor calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		notificationsDrop: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rigshare_notifications_dropped_total",
			Help: "Notifications that could not be handed off.",
		}, []string{"template"}),
		outboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "rigshare_outbox_published_total",
			Help: "Outbox records published to the broker.",
		}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rigshare_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) SettlementRecorded(duplicate bool) {
	label := "false"
	if duplicate {
		label = "true"
	}
	m.settlements.WithLabelValues(label).Inc()
}

func (m *Metrics) RefundAttempted(outcome string) { m.refunds.WithLabelValues(outcome).Inc() }

func (m *Metrics) NotificationDropped(template string) {
	m.notificationsDrop.WithLabelValues(template).Inc()
}

func (m *Metrics) ProcessorCall(operation, outcome string) {
	m.processorCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) OutboxPublished() { m.outboxPublished.Inc() }

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var _ policies.Metrics = (*Metrics)(nil)
