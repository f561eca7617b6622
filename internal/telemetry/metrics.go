package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DurationBuckets is the latency histogram ladder shared by the HTTP, Redis,
// and database duration metrics.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	},
	[]string{"method", "path", "status"},
)

var HTTPRequestErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "Total number of HTTP requests that produced an error status.",
	},
	[]string{"method", "path", "status"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: DurationBuckets,
	},
	[]string{"method", "path"},
)

var RedisCommandsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_commands_total",
		Help: "Total number of Redis commands executed through the proxy.",
	},
	[]string{"command"},
)

var RedisCommandErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_command_errors_total",
		Help: "Total number of Redis command errors.",
	},
	[]string{"command"},
)

var RedisCommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Redis command duration in seconds.",
		Buckets: DurationBuckets,
	},
	[]string{"command"},
)

var APIKeyRequestsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "api_key_requests_total",
		Help: "Total number of API-key-authenticated requests.",
	},
)

var APIKeyAuthFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "api_key_auth_failures_total",
		Help: "Total number of failed API key authentications.",
	},
)

var AuthFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of failed session authentications.",
	},
)

var DatabaseQueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "database_queries_total",
		Help: "Total number of database queries.",
	},
	[]string{"type"},
)

var DatabaseQueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "database_query_duration_seconds",
		Help:    "Database query duration in seconds.",
		Buckets: DurationBuckets,
	},
	[]string{"type"},
)

var RedisConnectionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active upstream Redis connections in the pool.",
	},
)

var RedisInstancesTotal = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "redis_instances_total",
		Help: "Total number of non-deleted Redis instances.",
	},
)

var OrganizationsTotal = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "organizations_total",
		Help: "Total number of organizations.",
	},
)

var UsersTotal = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "users_total",
		Help: "Total number of users.",
	},
)

// All returns every gateway metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestErrorsTotal,
		HTTPRequestDuration,
		RedisCommandsTotal,
		RedisCommandErrorsTotal,
		RedisCommandDuration,
		APIKeyRequestsTotal,
		APIKeyAuthFailuresTotal,
		AuthFailuresTotal,
		DatabaseQueriesTotal,
		DatabaseQueryDuration,
		RedisConnectionsActive,
		RedisInstancesTotal,
		OrganizationsTotal,
		UsersTotal,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors and
// all gateway metrics registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
