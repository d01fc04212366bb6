// Package main — cmd/fckd/main.go
//
// FCK daemon entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/fck/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open BoltDB storage.
//  4. Prune stale ledger entries.
//  5. Load the default CapabilityManifest and construct the governance
//     gate from the contrib registry.
//  6. Construct the attestation client (Ed25519, or AlwaysRefuse if no
//     authority key is configured).
//  7. Construct the federation client/server and rate limit bucket.
//  8. Construct the assistance broker.
//  9. Boot the kernel.
// 10. Start the Prometheus metrics server.
// 11. Start the federation gRPC server and manifest-drift syncer.
// 12. Start the operator Unix-socket control server.
// 13. Register SIGHUP handler for config hot-reload.
// 14. Block on SIGINT/SIGTERM for graceful shutdown.
//
// On manifest or config validation failure: exit 1 immediately.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/credentials"

	"github.com/acip-dev/fck/contrib"
	_ "github.com/acip-dev/fck/contrib/gates/reference"
	"github.com/acip-dev/fck/internal/assistance"
	"github.com/acip-dev/fck/internal/attestation"
	"github.com/acip-dev/fck/internal/config"
	"github.com/acip-dev/fck/internal/federation"
	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/observability"
	"github.com/acip-dev/fck/internal/operator"
	"github.com/acip-dev/fck/internal/ratelimit"
	"github.com/acip-dev/fck/internal/storage"
	"github.com/acip-dev/fck/internal/updates"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/fck/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("fckd %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Logger ────────────────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("fckd starting",
		zap.String("version", config.Version),
		zap.String("agent_id", cfg.AgentID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: BoltDB ────────────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.LedgerRetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune ledger ──────────────────────────────────────────────────
	pruned, err := db.PruneOldLedgerEntries()
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Default manifest + governance gate ───────────────────────────
	defaultManifest, err := manifest.LoadFile(cfg.ManifestPath)
	if err != nil {
		log.Fatal("manifest load failed", zap.Error(err), zap.String("path", cfg.ManifestPath))
	}
	gate, err := contrib.NewGate(cfg.Attestation.GovernanceGateName, map[string]string{
		"sdc_version":             defaultManifest.Governance.SDCVersion,
		"invariant_keys_required": strings.Join(defaultManifest.Governance.InvariantKeysRequired, ","),
	})
	if err != nil {
		log.Fatal("governance gate construction failed", zap.Error(err))
	}

	// ── Step 6: Attestation client ────────────────────────────────────────────
	attestationClient := buildAttestationClient(cfg, log)

	// ── Step 7: Federation transport + rate limit ─────────────────────────────
	var bucket *ratelimit.Bucket
	if cfg.RateLimit.Enabled {
		bucket = ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPeriod)
		defer bucket.Close()
	}

	federationClient := buildFederationClient(ctx, cfg, log, bucket)
	driftLog := federation.NewDriftLog(log)

	// ── Step 8: Assistance broker ─────────────────────────────────────────────
	routeOrder := make([]manifest.AssistanceRoute, 0, len(cfg.Assistance.RouteOrder))
	for _, r := range cfg.Assistance.RouteOrder {
		routeOrder = append(routeOrder, manifest.AssistanceRoute(r))
	}
	peerQuorum := assistance.NewPeerQuorum(cfg.Assistance.PeerQuorumMin, cfg.Assistance.PeerAnswerTTL)
	broker := assistance.NewBroker(assistance.RouteConfig{
		Order:      routeOrder,
		PeerQuorum: peerQuorum,
	}, federationClient, nil, nil, log)

	// ── Kernel construction ────────────────────────────────────────────────────
	var k *kernel.Kernel
	applier := updates.NewApplier(db, func(replaced manifest.CapabilityManifest) {
		log.Info("manifest replaced via config_bundle update", zap.String("agent_id", replaced.AgentID))
	}, log)
	trustedKeys := updates.TrustedSignerKeys{}
	verifySig := updates.VerifyEd25519Signature(trustedKeys)

	k = kernel.New(
		cfg.AgentID,
		db,
		gate,
		attestationClient,
		federationClient,
		broker,
		verifySig,
		applier.Apply,
		kernel.WithLogger(log),
	)

	// ── Step 9: Boot ──────────────────────────────────────────────────────────
	if err := k.Boot(ctx, defaultManifest); err != nil {
		log.Fatal("kernel boot failed", zap.Error(err))
	}
	log.Info("kernel booted", zap.Uint64("monotonic_counter", k.MonotonicCounter()))

	// ── Step 10: Metrics ───────────────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 11: Federation server + syncer ───────────────────────────────────
	if len(cfg.Federation.Peers) > 0 || cfg.Federation.ListenAddr != "" {
		dispatcher := &localDispatcher{log: log}
		fedSrv := federation.NewServer(cfg.AgentID, nil, cfg.Federation.EnvelopeTTL, dispatcher, driftLog, log)
		go func() {
			if err := federation.ListenAndServe(ctx, cfg.Federation.ListenAddr,
				cfg.Federation.TLSCertFile, cfg.Federation.TLSKeyFile, cfg.Federation.TLSCAFile,
				fedSrv, log); err != nil {
				log.Error("federation server error", zap.Error(err))
			}
		}()
		log.Info("federation server started", zap.String("addr", cfg.Federation.ListenAddr))
	}

	if len(cfg.Federation.Peers) > 0 && cfg.Federation.TLSCertFile != "" {
		if tlsCfg, err := buildClientTLS(cfg.Federation.TLSCertFile, cfg.Federation.TLSKeyFile, cfg.Federation.TLSCAFile); err != nil {
			log.Warn("manifest-drift syncer disabled: TLS setup failed", zap.Error(err))
		} else {
			var syncKey ed25519.PrivateKey
			if cfg.Attestation.PrivateKeyFile != "" {
				if raw, err := os.ReadFile(cfg.Attestation.PrivateKeyFile); err == nil && len(raw) == ed25519.PrivateKeySize {
					syncKey = ed25519.PrivateKey(raw)
				}
			}
			syncer := federation.NewSyncer(cfg.AgentID, syncKey, cfg.Federation.Peers,
				credentials.NewTLS(tlsCfg), cfg.Federation.SyncInterval, log,
				func() (string, uint64) {
					m, _ := k.GetManifest()
					return frame.ManifestHash(m), k.MonotonicCounter()
				})
			go syncer.Run(ctx)
			log.Info("manifest-drift syncer started", zap.Duration("interval", cfg.Federation.SyncInterval))
		}
	}

	// ── Step 12: Operator socket ───────────────────────────────────────────────
	if cfg.Operator.Enabled {
		opSrv := operator.NewServer(cfg.Operator.SocketPath, kernelFacadeAdapter{k}, db,
			func() manifest.CapabilityManifest { return defaultManifest }, log)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator server error", zap.Error(err))
			}
		}()
		log.Info("operator socket started", zap.String("path", cfg.Operator.SocketPath))
	}

	// ── Step 13: SIGHUP hot-reload ─────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config hot-reload successful", zap.Strings("route_order", newCfg.Assistance.RouteOrder))
			// The reloaded config is only validated and logged; none of
			// its values are applied until the daemon restarts.
		}
	}()

	// ── Step 14: Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(200 * time.Millisecond) // let background goroutines observe ctx.Done()
	log.Info("fckd shutdown complete")
}

// localDispatcher is the daemon's Dispatcher for inbound federation
// calls from peers. FCK's kernel is a per-agent orchestrator, not a
// shared service, so the only operation this node exposes to peers is
// assistance.query — anything else is rejected.
type localDispatcher struct {
	log *zap.Logger
}

func (d *localDispatcher) Dispatch(_ context.Context, traceID, agentID, operation string, payload map[string]frame.Scalar, riskTier string) (bool, map[string]frame.Scalar, string, string) {
	if operation != "assistance.query" {
		return false, nil, "UNSUPPORTED_OPERATION", ""
	}
	d.log.Info("inbound federation assistance.query",
		zap.String("trace_id", traceID), zap.String("agent_id", agentID), zap.String("risk_tier", riskTier))
	return false, nil, "NO_LOCAL_ANSWER", ""
}

// kernelFacadeAdapter adapts *kernel.Kernel to operator.KernelFacade's
// three governed-entrypoint methods, which the kernel itself does not
// expose with risk_tier-threaded signatures identical to operator's
// wire protocol — trace_id/operation/payload pass straight through.
type kernelFacadeAdapter struct {
	k *kernel.Kernel
}

func (a kernelFacadeAdapter) Boot(ctx context.Context, m manifest.CapabilityManifest) error {
	return a.k.Boot(ctx, m)
}

func (a kernelFacadeAdapter) GetManifest() (manifest.CapabilityManifest, bool) {
	return a.k.GetManifest()
}

func (a kernelFacadeAdapter) MonotonicCounter() uint64 { return a.k.MonotonicCounter() }

func (a kernelFacadeAdapter) GovernedFederationCall(ctx context.Context, traceID, operation string, payload map[string]frame.Scalar, riskTier manifest.RiskTier) (kernel.FederationCallResult, error) {
	return a.k.GovernedFederationCall(ctx, traceID, operation, payload, riskTier)
}

func (a kernelFacadeAdapter) RequestAssistance(ctx context.Context, traceID, query string, riskTier manifest.RiskTier) (kernel.AssistanceResultExternal, error) {
	return a.k.RequestAssistance(ctx, traceID, query, riskTier)
}

func (a kernelFacadeAdapter) ApplyUpdatePackage(ctx context.Context, pkg manifest.UpdatePackage, riskTier manifest.RiskTier) (kernel.UpdateResult, error) {
	return a.k.ApplyUpdatePackage(ctx, pkg, riskTier)
}

// buildAttestationClient wires an Ed25519 DVAP client when a private key
// file is configured, falling back to AlwaysRefuse so the kernel still
// boots and fails closed on attestation rather than panicking.
func buildAttestationClient(cfg *config.Config, log *zap.Logger) kernel.AttestationClient {
	if cfg.Attestation.PrivateKeyFile == "" {
		return attestation.NewAlwaysRefuse("no attestation authority key configured", log)
	}
	raw, err := os.ReadFile(cfg.Attestation.PrivateKeyFile)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		log.Warn("attestation private key unreadable or malformed — falling back to AlwaysRefuse",
			zap.String("path", cfg.Attestation.PrivateKeyFile), zap.Error(err))
		return attestation.NewAlwaysRefuse("attestation key unreadable", log)
	}
	return attestation.NewEd25519Client(cfg.Attestation.AuthorityID, ed25519.PrivateKey(raw), log)
}

// buildFederationClient dials the first configured peer. FCK nodes are
// federated peers of each other, not clients of a single upstream, but
// the kernel's FederationClient contract is a single-source interface;
// a deployment with multiple sources composes its own fan-out client.
func buildFederationClient(ctx context.Context, cfg *config.Config, log *zap.Logger, bucket *ratelimit.Bucket) kernel.FederationClient {
	if len(cfg.Federation.Peers) == 0 {
		return noFederationClient{}
	}
	tlsCfg, err := buildClientTLS(cfg.Federation.TLSCertFile, cfg.Federation.TLSKeyFile, cfg.Federation.TLSCAFile)
	if err != nil {
		log.Error("federation client TLS setup failed — federation disabled", zap.Error(err))
		return noFederationClient{}
	}
	client, err := federation.DialClient(cfg.Federation.Peers[0], cfg.AgentID, tlsCfg, log)
	if err != nil {
		log.Error("federation client dial failed — federation disabled", zap.Error(err))
		return noFederationClient{}
	}
	if bucket != nil {
		return federation.NewRateLimited(client, bucket)
	}
	return client
}

// buildClientTLS loads a mutual-TLS client configuration from the
// configured certificate, key, and CA files, mirroring the transport's
// TLS 1.3-only, mTLS-required discipline on the server side.
func buildClientTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert/key: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse CA file %q", caFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// noFederationClient is used when no federation peers are configured;
// every call fails closed rather than panicking on a nil collaborator.
type noFederationClient struct{}

func (noFederationClient) Request(_ context.Context, _ kernel.FederationRequest) (kernel.FederationResult, error) {
	return kernel.FederationResult{OK: false, Error: "NO_FEDERATION_PEERS_CONFIGURED"}, nil
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
