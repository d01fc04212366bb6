// Package observability — metrics.go
//
// Prometheus metrics for the fckd daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: fck_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - the only labels are entrypoint, outcome, verdict and route, each
//     drawn from a small fixed set; error tags and risk tiers are not labels.
//   - trace_id and agent_id are NEVER used as labels (unbounded
//     cardinality) — they belong in the ledger, not in metric labels.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the kernel.
// ServeMetrics keeps UptimeSeconds current; every other collector is
// registered and exported but changes only when a caller records to it.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Entrypoints ──────────────────────────────────────────────────────

	// CallsTotal counts invocations of each governed entrypoint.
	// Labels: entrypoint (federation_call, assistance, update), outcome (ok, denied, refused, error)
	CallsTotal *prometheus.CounterVec

	// PipelineLatency records end-to-end entrypoint latency.
	// Labels: entrypoint
	PipelineLatency *prometheus.HistogramVec

	// ─── Governance ───────────────────────────────────────────────────────

	// GovernanceVerdictsTotal counts ALLOW/DENY verdicts.
	// Labels: verdict
	GovernanceVerdictsTotal *prometheus.CounterVec

	// ─── Attestation ──────────────────────────────────────────────────────

	// AttestationVerdictsTotal counts ATTESTED/REFUSED verdicts.
	// Labels: verdict
	AttestationVerdictsTotal *prometheus.CounterVec

	// ─── Assistance ───────────────────────────────────────────────────────

	// AssistanceRoutesTotal counts assistance dispatches by route used.
	// Labels: route (FEDERATION, PEER_AGENT, HUMAN_ESCALATION)
	AssistanceRoutesTotal *prometheus.CounterVec

	// AssistanceAttemptsRemaining is the current per-trace attempt budget
	// remaining, sampled on each request_assistance call. Not a
	// cumulative counter: this is the last-observed value.
	AssistanceAttemptsRemaining prometheus.Gauge

	// ─── Rate limiting ────────────────────────────────────────────────────

	// RateLimitTokensRemaining is the current token bucket level.
	RateLimitTokensRemaining prometheus.Gauge

	// RateLimitRejectionsTotal counts federation calls rejected by the
	// token bucket before dispatch.
	RateLimitRejectionsTotal prometheus.Counter

	// ─── Federation transport ─────────────────────────────────────────────

	// FederationDigestsGossipedTotal counts outbound manifest digest gossip.
	FederationDigestsGossipedTotal prometheus.Counter

	// FederationDriftDetectedTotal counts observed manifest-hash drift events.
	FederationDriftDetectedTotal prometheus.Counter

	// ─── Storage ──────────────────────────────────────────────────────────

	// StorageWriteLatency records BoltDB write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageLedgerEntries is the current number of ledger entries.
	StorageLedgerEntries prometheus.Gauge

	// ─── Kernel ───────────────────────────────────────────────────────────

	// MonotonicCounter mirrors PersistedKernelState.monotonic_counter.
	MonotonicCounter prometheus.Gauge

	// UptimeSeconds is the number of seconds since the daemon started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all kernel Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "kernel",
			Name:      "calls_total",
			Help:      "Total governed entrypoint invocations, by entrypoint and outcome.",
		}, []string{"entrypoint", "outcome"}),

		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fck",
			Subsystem: "kernel",
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end governed entrypoint latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entrypoint"}),

		GovernanceVerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "governance",
			Name:      "verdicts_total",
			Help:      "Total governance gate verdicts, by verdict.",
		}, []string{"verdict"}),

		AttestationVerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "attestation",
			Name:      "verdicts_total",
			Help:      "Total attestation verdicts, by verdict.",
		}, []string{"verdict"}),

		AssistanceRoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "assistance",
			Name:      "routes_total",
			Help:      "Total assistance dispatches, by route used.",
		}, []string{"route"}),

		AssistanceAttemptsRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fck",
			Subsystem: "assistance",
			Name:      "attempts_remaining",
			Help:      "Last-observed assistance attempt budget remaining for the most recent trace.",
		}),

		RateLimitTokensRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fck",
			Subsystem: "rate_limit",
			Name:      "tokens_remaining",
			Help:      "Current federation-call token bucket level.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "rate_limit",
			Name:      "rejections_total",
			Help:      "Total federation calls rejected by the token bucket before dispatch.",
		}),

		FederationDigestsGossipedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "federation",
			Name:      "digests_gossiped_total",
			Help:      "Total outbound manifest digest gossip messages sent.",
		}),

		FederationDriftDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fck",
			Subsystem: "federation",
			Name:      "drift_detected_total",
			Help:      "Total manifest-hash drift events observed from peers.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fck",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fck",
			Subsystem: "storage",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		MonotonicCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fck",
			Subsystem: "kernel",
			Name:      "monotonic_counter",
			Help:      "Current value of the persisted kernel state's monotonic counter.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fck",
			Subsystem: "kernel",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.CallsTotal,
		m.PipelineLatency,
		m.GovernanceVerdictsTotal,
		m.AttestationVerdictsTotal,
		m.AssistanceRoutesTotal,
		m.AssistanceAttemptsRemaining,
		m.RateLimitTokensRemaining,
		m.RateLimitRejectionsTotal,
		m.FederationDigestsGossipedTotal,
		m.FederationDriftDetectedTotal,
		m.StorageWriteLatency,
		m.StorageLedgerEntries,
		m.MonotonicCounter,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given address.
// Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
