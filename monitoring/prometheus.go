package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mlnlabs/mln/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds     prometheus.Gauge
	blockHeight           prometheus.Gauge
	lastCommitUnixSeconds prometheus.Gauge
	stateRecords          prometheus.Gauge
	commandsInBlock       prometheus.Histogram
	appliedCommandCount   *prometheus.CounterVec
	failedCommandCount    *prometheus.CounterVec
	rpcRequestCount       *prometheus.CounterVec
	panicCount            prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mln_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node start",
			},
		),
		blockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mln_node_block_height",
				Help: "The last committed block height",
			},
		),
		lastCommitUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mln_node_last_commit_timestamp_unix_seconds",
				Help: "Unix timestamp of the last committed block",
			},
		),
		stateRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mln_node_state_records",
				Help: "Number of records in the committed authenticated state",
			},
		),
		commandsInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mln_node_commands_in_block",
				Help: "Number of commands per committed block",
			},
		),
		appliedCommandCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mln_node_applied_command_count",
				Help: "The total number of successfully applied commands",
			},
			[]string{"kind"},
		),
		failedCommandCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mln_node_failed_command_count",
				Help: "The total number of rejected commands",
			},
			[]string{"code"},
		),
		rpcRequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mln_rpc_request_count",
				Help: "The total number of JSON-RPC requests served",
			},
			[]string{"method"},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mln_node_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	metricsOnce sync.Once
)

// InitMetrics initialize metrics for node but not expose to api yet. It must
// run before any recording function; extra calls are no-ops.
func InitMetrics() {
	metricsOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
		nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetBlockHeight(blockHeight uint64) {
	nodeMetrics.blockHeight.Set(float64(blockHeight))
}

func SetLastCommitTime(t time.Time) {
	nodeMetrics.lastCommitUnixSeconds.Set(float64(t.Unix()))
}

func SetStateRecords(records uint64) {
	nodeMetrics.stateRecords.Set(float64(records))
}

func RecordCommandsInBlock(count int) {
	nodeMetrics.commandsInBlock.Observe(float64(count))
}

func IncreaseAppliedCommandCount(kind string) {
	nodeMetrics.appliedCommandCount.With(prometheus.Labels{
		"kind": kind,
	}).Inc()
}

func IncreaseFailedCommandCount(code string) {
	nodeMetrics.failedCommandCount.With(prometheus.Labels{
		"code": code,
	}).Inc()
}

func IncreaseRPCRequestCount(method string) {
	nodeMetrics.rpcRequestCount.With(prometheus.Labels{
		"method": method,
	}).Inc()
}

func IncreasePanicCount() {
	nodeMetrics.panicCount.Inc()
}
