package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    gatewayReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "printkiosk",
            Name:      "gateway_requests_total",
            Help:      "Total payment gateway requests by operation and result",
        },
        []string{"operation", "result"},
    )

    gatewayLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "printkiosk",
            Name:      "gateway_request_duration_seconds",
            Help:      "Duration of payment gateway requests by operation",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"operation"},
    )

    backendReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "printkiosk",
            Name:      "backend_requests_total",
            Help:      "Total print-backend requests by operation and result",
        },
        []string{"operation", "result"},
    )

    printJobs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "printkiosk",
            Name:      "print_jobs_total",
            Help:      "Print jobs submitted, labeled by result and restored flag",
        },
        []string{"result", "restored"},
    )

    txnsSynced = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "printkiosk",
            Name:      "transactions_synced_total",
            Help:      "Pending transactions reconciled against the gateway, by outcome",
        },
        []string{"outcome"},
    )

    ordersCreated = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "printkiosk",
            Name:      "orders_created_total",
            Help:      "Checkout sessions created, labeled by principal presence",
        },
        []string{"principal"},
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "printkiosk",
            Name:      "queue_depth",
            Help:      "Sync queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(gatewayReqs, gatewayLatency, backendReqs, printJobs, txnsSynced, ordersCreated, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveGateway(operation, result string, dur time.Duration) {
    gatewayReqs.WithLabelValues(operation, result).Inc()
    gatewayLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func IncBackend(operation, result string) { backendReqs.WithLabelValues(operation, result).Inc() }

func IncPrintJob(result string, restored bool) {
    printJobs.WithLabelValues(result, boolToStr(restored)).Inc()
}

func IncSynced(outcome string) { txnsSynced.WithLabelValues(outcome).Inc() }

func IncOrderCreated(hasPrincipal bool) {
    label := "anonymous"
    if hasPrincipal { label = "authenticated" }
    ordersCreated.WithLabelValues(label).Inc()
}

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

func boolToStr(b bool) string { if b { return "true" }; return "false" }
