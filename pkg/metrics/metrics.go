// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OAuthFlowsTotal tracks authorization flow stages by outcome
	OAuthFlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "oauth",
			Name:      "flow_stages_total",
			Help:      "Total number of authorization flow stages by provider, stage and status",
		},
		[]string{"provider", "stage", "status"},
	)

	// TokenExchangeDuration tracks code-for-token exchange duration
	TokenExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "oauth",
			Name:      "token_exchange_duration_seconds",
			Help:      "Duration of token exchanges in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider"},
	)

	// ItemsListedTotal tracks normalized items returned to callers
	ItemsListedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "items",
			Name:      "listed_total",
			Help:      "Total number of integration items listed",
		},
		[]string{"provider", "type"},
	)

	// ItemListingDuration tracks full listing duration including pagination
	ItemListingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "items",
			Name:      "listing_duration_seconds",
			Help:      "Duration of item listings in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// RateLimitWaitTime tracks time spent waiting on provider rate limiters
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate limits in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	// VaultOperationDuration tracks vault store and consume latency
	VaultOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "vault",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vault operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordFlowStage records one authorization flow stage outcome
func RecordFlowStage(provider, stage, status string) {
	OAuthFlowsTotal.WithLabelValues(provider, stage, status).Inc()
}

// RecordTokenExchange records a token exchange duration
func RecordTokenExchange(provider string, durationSeconds float64) {
	TokenExchangeDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordItemListing records a listing and the item types it produced
func RecordItemListing(provider, status string, durationSeconds float64, countsByType map[string]int) {
	ItemListingDuration.WithLabelValues(provider, status).Observe(durationSeconds)
	for itemType, count := range countsByType {
		ItemsListedTotal.WithLabelValues(provider, itemType).Add(float64(count))
	}
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordRateLimitWait records time spent blocked on a provider limiter
func RecordRateLimitWait(provider string, durationSeconds float64) {
	RateLimitWaitTime.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordVaultOperation records a vault operation
func RecordVaultOperation(operation, status string, durationSeconds float64) {
	VaultOperationDuration.WithLabelValues(operation, status).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

var (
	// APIRequestsTotal tracks inbound API requests
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of inbound API requests",
		},
		[]string{"route", "method", "status_code"},
	)

	// APIRequestDuration tracks inbound API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// RecordAPIRequest records an inbound API request metric
func RecordAPIRequest(route, method, statusCode string, durationSeconds float64) {
	APIRequestsTotal.WithLabelValues(route, method, statusCode).Inc()
	APIRequestDuration.WithLabelValues(route, method).Observe(durationSeconds)
}
