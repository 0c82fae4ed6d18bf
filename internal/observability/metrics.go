package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billing_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billing_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
	DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_delivery_attempts_total", Help: "Outbound webhook attempt outcomes"},
		[]string{"result", "http_status"},
	)
	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_seconds", Help: "Outbound webhook attempt latency"},
	)
	DeadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "webhook_dead_letters_total", Help: "Deliveries escalated to the dead letter queue"},
	)
	DeadLetterReprocess = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_dead_letter_reprocess_total", Help: "Dead letter reprocess outcomes"},
		[]string{"result"},
	)
	DeadLettersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_dead_letters_pending", Help: "Dead letter entries awaiting reprocess"},
	)
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_requests_total", Help: "Payment gateway call outcomes"},
		[]string{"gateway", "op", "result"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "gateway_request_latency_seconds", Help: "Payment gateway call latency"},
	)
	ReconcileCharges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billing_reconcile_charges_total", Help: "Charges examined by reconciliation"},
		[]string{"result"},
	)
	SubscriptionExtensions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "billing_subscription_extensions_total", Help: "Subscription renewals applied"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "billing_job_runs_total", Help: "Scheduled job runs"},
		[]string{"job", "result"},
	)
	GatewayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_webhook_events_total", Help: "Inbound gateway push notifications"},
		[]string{"gateway", "status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		APIRequests, Enqueues,
		DeliveryAttempts, DeliveryLatency,
		DeadLetters, DeadLetterReprocess, DeadLettersPending,
		GatewayRequests, GatewayLatency,
		ReconcileCharges, SubscriptionExtensions,
		JobRuns, GatewayEvents,
	)
}
