package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatagramsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		},
	)

	BytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_bytes_received_total",
			Help: "Total payload bytes received over UDP",
		},
	)

	StoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_store_failures_total",
			Help: "Datagrams that could not be persisted",
		},
	)

	EchoFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_echo_failures_total",
			Help: "Echo replies that failed to send",
		},
	)

	MessagesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_messages_purged_total",
			Help: "Messages removed by the retention purge",
		},
	)

	PublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "udpmonitor_publish_failures_total",
			Help: "Stored-message events that failed to publish to RabbitMQ",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(DatagramsReceived)
	prometheus.MustRegister(BytesReceived)
	prometheus.MustRegister(StoreFailures)
	prometheus.MustRegister(EchoFailures)
	prometheus.MustRegister(MessagesPurged)
	prometheus.MustRegister(PublishFailures)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
