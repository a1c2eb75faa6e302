package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PurchasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_purchases_total",
			Help: "Total number of successful number purchases",
		},
	)

	PurchaseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_purchase_failures_total",
			Help: "Total number of declined or failed number purchases",
		},
	)

	PollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_polls_total",
			Help: "Total number of delivery status polls",
		},
	)

	PollFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_poll_failures_total",
			Help: "Total number of polls swallowed as transient failures",
		},
	)

	CodesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_codes_received_total",
			Help: "Total number of delivered one-time codes",
		},
	)

	OrdersCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_orders_cancelled_total",
			Help: "Total number of cancelled orders, user or provider initiated",
		},
	)

	OrdersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_orders_expired_total",
			Help: "Total number of orders auto-cancelled on the TTL deadline",
		},
	)

	OrdersCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_orders_completed_total",
			Help: "Total number of completed orders",
		},
	)

	MarketPurchasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsdesk_market_purchases_total",
			Help: "Total number of marketplace credential purchases",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(PurchasesTotal)
	prometheus.MustRegister(PurchaseFailuresTotal)
	prometheus.MustRegister(PollsTotal)
	prometheus.MustRegister(PollFailuresTotal)
	prometheus.MustRegister(CodesReceivedTotal)
	prometheus.MustRegister(OrdersCancelledTotal)
	prometheus.MustRegister(OrdersExpiredTotal)
	prometheus.MustRegister(OrdersCompletedTotal)
	prometheus.MustRegister(MarketPurchasesTotal)
}
