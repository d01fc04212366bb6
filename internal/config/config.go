// Package config provides configuration loading, validation, and
// hot-reload for the fckd daemon.
//
// Configuration file: /etc/fck/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Daemon listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml and log the result.
//   - The reloaded values are not applied to the running daemon; every
//     setting (rate limits, log level, peer lists, storage path,
//     federation listen address, operator socket path) takes effect only
//     after a restart.
//   - If the new config is invalid, the error is logged and the daemon
//     keeps running. The daemon does NOT crash on invalid hot-reload
//     config.
//
// The daemon's default CapabilityManifest lives in a separate file
// (manifest.yaml) loaded via internal/manifest.LoadFile — Config only
// describes how the daemon itself is wired, not what an agent may do.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for fckd.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// AgentID identifies this kernel instance. Used for
	// PersistedKernelState.agent_id agreement at boot and as the
	// node_id in federation transport.
	AgentID string `yaml:"agent_id"`

	// ManifestPath is the absolute path to the default CapabilityManifest
	// loaded at boot when no persisted manifest exists yet.
	ManifestPath string `yaml:"manifest_path"`

	Storage       StorageConfig       `yaml:"storage"`
	Federation    FederationTransport `yaml:"federation"`
	Assistance    AssistanceWiring    `yaml:"assistance"`
	Attestation   AttestationWiring   `yaml:"attestation"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Operator      OperatorConfig      `yaml:"operator"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	// Default: /var/lib/fck/fck.db.
	DBPath string `yaml:"db_path"`

	// LedgerRetentionDays bounds how long ledger entries (boot records,
	// applied update packages) are kept before pruning.
	LedgerRetentionDays int `yaml:"ledger_retention_days"`
}

// FederationTransport holds the gRPC mTLS transport parameters for the
// FederationClient/Server collaborators. federation.enabled/sources/
// allowed_operations (the policy surface) live in the CapabilityManifest,
// not here — this section is transport wiring only.
type FederationTransport struct {
	// ListenAddr is this node's gRPC listen address for inbound
	// federation calls and manifest-drift gossip.
	// Default: 0.0.0.0:9443.
	ListenAddr string `yaml:"listen_addr"`

	// Peers is the static list of federation peer addresses (host:port)
	// this node dispatches calls to and gossips manifest digests with.
	Peers []string `yaml:"peers"`

	// EnvelopeTTL is the maximum age of a gossiped ManifestDigest before
	// rejection. Default: 30s.
	EnvelopeTTL time.Duration `yaml:"envelope_ttl"`

	// SyncInterval is how often this node gossips its own manifest
	// digest to peers. Default: 5m.
	SyncInterval time.Duration `yaml:"sync_interval"`

	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
	TLSCAFile   string `yaml:"tls_ca_file"`
}

// AssistanceWiring configures the Broker's own route backends, separate
// from the manifest's assistance.routes policy gate.
type AssistanceWiring struct {
	// RouteOrder is the priority order the Broker attempts routes in.
	RouteOrder []string `yaml:"route_order"`

	// PeerQuorumMin is the minimum number of agreeing peers required to
	// confirm a PEER_AGENT response. Default: 1.
	PeerQuorumMin int `yaml:"peer_quorum_min"`

	// PeerAnswerTTL bounds how long a peer's answer counts toward quorum.
	PeerAnswerTTL time.Duration `yaml:"peer_answer_ttl"`
}

// AttestationWiring configures the DVAP Ed25519Client collaborator.
// The gate backend itself (contrib.GateFactory name) is selected via
// GovernanceGateName; the pinned policy state it needs (sdc_version,
// invariant_keys_required) comes from the loaded CapabilityManifest, not
// from here.
type AttestationWiring struct {
	// AuthorityID identifies this node as the attesting authority in
	// every signature it produces.
	AuthorityID string `yaml:"authority_id"`

	// PrivateKeyFile is the path to a raw 64-byte Ed25519 private key.
	// If empty, a disabled attestation.AlwaysRefuse client is wired
	// instead, so the kernel still boots but every attestation fails
	// closed rather than panicking on a missing key.
	PrivateKeyFile string `yaml:"private_key_file"`

	// GovernanceGateName selects the contrib.GateFactory used to build
	// the kernel's GovernanceGate. Default: "reference".
	GovernanceGateName string `yaml:"governance_gate"`
}

// RateLimitConfig configures the token-bucket extension gating
// federation calls by risk tier cost.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Capacity is the maximum number of tokens. Default: 100.
	Capacity int `yaml:"capacity"`

	// RefillPeriod is the interval between full refills. Default: 60s.
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// OperatorConfig holds operator-socket parameters.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path for the operator CLI.
	// Permissions: 0600. Default: /run/fck/operator.sock.
	SocketPath string `yaml:"socket_path"`

	Enabled bool `yaml:"enabled"`
}

// DefaultDBPath is the storage.db_path default used by Defaults. It is not
// the same path as storage.DefaultDBPath (/var/lib/fckd/fck.db), which the
// daemon does not read.
const DefaultDBPath = "/var/lib/fck/fck.db"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		AgentID:       hostname,
		ManifestPath:  "/etc/fck/manifest.yaml",
		Storage: StorageConfig{
			DBPath:              DefaultDBPath,
			LedgerRetentionDays: 30,
		},
		Federation: FederationTransport{
			ListenAddr:   "0.0.0.0:9443",
			EnvelopeTTL:  30 * time.Second,
			SyncInterval: 5 * time.Minute,
		},
		Assistance: AssistanceWiring{
			RouteOrder:    []string{"FEDERATION", "PEER_AGENT", "HUMAN_ESCALATION"},
			PeerQuorumMin: 1,
			PeerAnswerTTL: 30 * time.Second,
		},
		Attestation: AttestationWiring{
			AuthorityID:        hostname,
			GovernanceGateName: "reference",
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Capacity:     100,
			RefillPeriod: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/fck/operator.sock",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.AgentID == "" {
		errs = append(errs, "agent_id must not be empty")
	}
	if cfg.ManifestPath == "" {
		errs = append(errs, "manifest_path must not be empty")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.LedgerRetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.ledger_retention_days must be >= 1, got %d", cfg.Storage.LedgerRetentionDays))
	}
	if cfg.Federation.ListenAddr == "" {
		errs = append(errs, "federation.listen_addr must not be empty")
	}
	if len(cfg.Federation.Peers) > 0 {
		if cfg.Federation.TLSCertFile == "" || cfg.Federation.TLSKeyFile == "" || cfg.Federation.TLSCAFile == "" {
			errs = append(errs, "federation.tls_cert_file, tls_key_file, and tls_ca_file are required when federation peers are configured")
		}
	}
	if cfg.Federation.EnvelopeTTL < time.Second {
		errs = append(errs, fmt.Sprintf("federation.envelope_ttl must be >= 1s, got %s", cfg.Federation.EnvelopeTTL))
	}
	for _, r := range cfg.Assistance.RouteOrder {
		switch r {
		case "FEDERATION", "PEER_AGENT", "HUMAN_ESCALATION":
		default:
			errs = append(errs, fmt.Sprintf("assistance.route_order contains unrecognized route %q", r))
		}
	}
	if cfg.Assistance.PeerQuorumMin < 1 {
		errs = append(errs, fmt.Sprintf("assistance.peer_quorum_min must be >= 1, got %d", cfg.Assistance.PeerQuorumMin))
	}
	if cfg.Attestation.GovernanceGateName == "" {
		errs = append(errs, "attestation.governance_gate must not be empty")
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Capacity < 1 {
			errs = append(errs, fmt.Sprintf("rate_limit.capacity must be >= 1, got %d", cfg.RateLimit.Capacity))
		}
		if cfg.RateLimit.RefillPeriod < time.Second {
			errs = append(errs, fmt.Sprintf("rate_limit.refill_period must be >= 1s, got %s", cfg.RateLimit.RefillPeriod))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
