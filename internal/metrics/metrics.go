package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "erpbridge"
)

var (
	upstreamDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

	// Upstream Metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Time taken by requests to upstream ERP APIs.",
		Buckets:   upstreamDurationBuckets,
	}, []string{"provider", "operation", "status"})

	FixtureFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fixture_fallbacks_total",
		Help:      "Count of module reads answered from fixtures because the upstream was unreachable.",
	}, []string{"provider", "module"})

	// Authentication Metrics
	AuthFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_flows_total",
		Help:      "Count of completed authentication attempts by outcome.",
	}, []string{"provider", "result"})

	TenantsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenants_created_total",
		Help:      "Count of tenants created on first authentication.",
	}, []string{"provider"})

	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Count of credential refreshes by outcome.",
	}, []string{"provider", "result"})

	// Configuration Metrics
	ConfigResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "config_resolutions_total",
		Help:      "Count of module configuration resolutions by the tier that answered.",
	}, []string{"provider", "module", "tier"})
)
