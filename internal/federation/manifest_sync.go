// manifest_sync.go — reduced manifest-drift gossip.
//
// Protocol:
//   1. Every sync_interval, the local peer computes its own
//      ManifestDigest (agent_id, last_manifest_hash, monotonic_counter,
//      timestamp_unix_ns) and signs it with its Ed25519 node key.
//   2. The digest is sent to all configured peers via the Gossip RPC.
//   3. Receiving nodes compare the observed hash against their own
//      record of that agent's last known hash; a mismatch at an equal
//      or lower monotonic_counter indicates drift and is logged, never
//      silently merged — unlike the teacher's weighted statistical
//      baseline merge, manifest state is authoritative per-agent and is
//      never averaged across peers.
//
// This is a deliberately reduced protocol compared to the teacher's
// federated_baseline.go: FCK manifests are pinned, schema-versioned
// capability declarations, not statistical baselines, so there is
// nothing to merge — only drift to detect and surface to an operator.
package federation

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/acip-dev/fck/internal/federation/federationpb"
)

// ObservedDigest is the last digest recorded for a peer agent.
type ObservedDigest struct {
	ManifestHash     string
	MonotonicCounter uint64
	ObservedAt       time.Time
}

// DriftLog implements DriftSink, recording observed digests and flagging
// drift events for operator inspection (it does not itself resolve
// drift — the spec gives the kernel no merge semantics for manifests).
type DriftLog struct {
	mu       sync.Mutex
	observed map[string]ObservedDigest
	log      *zap.Logger
}

// NewDriftLog constructs an empty DriftLog.
func NewDriftLog(log *zap.Logger) *DriftLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &DriftLog{observed: make(map[string]ObservedDigest), log: log}
}

// Observe implements DriftSink.Observe.
func (d *DriftLog) Observe(agentID, manifestHash string, monotonicCounter uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, known := d.observed[agentID]
	d.observed[agentID] = ObservedDigest{
		ManifestHash:     manifestHash,
		MonotonicCounter: monotonicCounter,
		ObservedAt:       time.Now().UTC(),
	}

	if known && prev.ManifestHash != manifestHash && monotonicCounter <= prev.MonotonicCounter {
		d.log.Warn("manifest drift detected: hash changed without counter advance",
			zap.String("agent_id", agentID),
			zap.String("previous_hash", prev.ManifestHash),
			zap.String("observed_hash", manifestHash),
			zap.Uint64("monotonic_counter", monotonicCounter),
		)
	}
}

// Snapshot returns a copy of all currently observed digests, for the
// operator socket's status command.
func (d *DriftLog) Snapshot() map[string]ObservedDigest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]ObservedDigest, len(d.observed))
	for k, v := range d.observed {
		out[k] = v
	}
	return out
}

// Syncer periodically gossips this node's own manifest digest to a
// fixed set of peers.
type Syncer struct {
	nodeID     string
	privKey    ed25519.PrivateKey
	peers      []string
	tlsCfg     grpcTLSConfigProvider
	interval   time.Duration
	log        *zap.Logger
	digestFunc func() (manifestHash string, monotonicCounter uint64)
}

// grpcTLSConfigProvider indirects over *tls.Config so this file doesn't
// need to import crypto/tls solely for a field type; callers pass
// credentials.TransportCredentials directly via NewSyncer.
type grpcTLSConfigProvider = credentials.TransportCredentials

// NewSyncer constructs a Syncer. digestFunc supplies the node's current
// (manifest_hash, monotonic_counter) at each gossip tick.
func NewSyncer(nodeID string, privKey ed25519.PrivateKey, peers []string, creds credentials.TransportCredentials, interval time.Duration, log *zap.Logger, digestFunc func() (string, uint64)) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		nodeID:     nodeID,
		privKey:    privKey,
		peers:      peers,
		tlsCfg:     creds,
		interval:   interval,
		log:        log,
		digestFunc: digestFunc,
	}
}

// Run gossips this node's manifest digest to all configured peers every
// interval, until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) {
	hash, counter := s.digestFunc()
	env := &federationpb.ManifestDigest{
		AgentId:          s.nodeID,
		ManifestHash:     hash,
		MonotonicCounter: counter,
		TimestampUnixNs:  time.Now().UnixNano(),
	}
	env.Signature = SignDigest(s.privKey, env)

	for _, addr := range s.peers {
		if err := s.sendTo(ctx, addr, env); err != nil {
			s.log.Warn("manifest gossip failed", zap.String("peer", addr), zap.Error(err))
		}
	}
}

func (s *Syncer) sendTo(ctx context.Context, addr string, env *federationpb.ManifestDigest) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(s.tlsCfg))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	stub := federationpb.NewFederationServiceClient(conn)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := stub.Gossip(ctx, env)
	if err != nil {
		return err
	}
	if !ack.Accepted {
		s.log.Debug("manifest digest not accepted by peer",
			zap.String("peer", addr), zap.String("reason", ack.RejectionReason))
	}
	return nil
}
