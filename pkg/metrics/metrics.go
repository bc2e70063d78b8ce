package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// External command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvs_commands_total",
			Help: "Total number of external commands executed by tool and result",
		},
		[]string{"tool", "result"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lvs_command_duration_seconds",
			Help:    "External command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Reconciliation metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvs_reconciliations_total",
			Help: "Total number of engine operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lvs_reconciliation_duration_seconds",
			Help:    "Engine operation duration in seconds, including time spent waiting for the lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ReconciliationsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lvs_reconcile_skipped_total",
			Help: "Total number of apply calls skipped because the pool or VIP is inactive or administratively down",
		},
	)

	TableMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvs_table_mutations_total",
			Help: "Total number of table mutations issued by verb",
		},
		[]string{"verb"},
	)

	PoolsDeployed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lvs_pools_deployed",
			Help: "Number of pools with a plugged VIP port",
		},
	)

	// Health probe metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvs_probes_total",
			Help: "Total number of member reachability probes by result",
		},
		[]string{"result"},
	)

	MemberUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lvs_member_up",
			Help: "Whether the member answered its last reachability probe (1 = reachable)",
		},
		[]string{"pool_id", "member_id"},
	)

	// Table statistics, refreshed by TableCollector
	ServiceConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lvs_service_connections",
			Help: "Connections handled by a virtual service",
		},
		[]string{"pool_id", "service"},
	)

	ServiceBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lvs_service_bytes",
			Help: "Bytes handled by a virtual service by direction",
		},
		[]string{"pool_id", "service", "direction"},
	)

	RealServerConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lvs_real_server_connections",
			Help: "Connections forwarded to a real server",
		},
		[]string{"pool_id", "service", "server"},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationsSkipped)
	prometheus.MustRegister(TableMutationsTotal)
	prometheus.MustRegister(PoolsDeployed)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(MemberUp)
	prometheus.MustRegister(ServiceConnections)
	prometheus.MustRegister(ServiceBytes)
	prometheus.MustRegister(RealServerConnections)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
