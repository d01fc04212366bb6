// Package assistance implements the AssistanceBroker collaborator: a
// reference router for request_assistance (§4.4) and the bounded
// assistance-on-failure fallback (§4.6) across the three dispatch
// targets named in a manifest's assistance.routes — FEDERATION,
// PEER_AGENT, and HUMAN_ESCALATION.
//
// quorum.go adapts the gossip layer's partition-aware Quorum evaluator
// (internal/gossip/quorum.go) from "how many nodes reported a process
// as anomalous" to "how many peer agents confirmed the same assistance
// response for a trace_id" — the PEER_AGENT route is only considered
// successful once quorumMin peers agree, which keeps a single
// compromised or stale peer from answering alone.
package assistance

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// peerAnswer records one peer's proposed response to an assistance query.
type peerAnswer struct {
	peerID     string
	response   string
	recordedAt time.Time
}

// PartitionMode describes the current peer-reachability state used to
// recalibrate the confirmation quorum.
type PartitionMode int32

const (
	// PartitionModeNormal — quorum operates with the full configured quorumMin.
	PartitionModeNormal PartitionMode = 0
	// PartitionModeIsolated — quorum recalibrated to reachable peers only.
	PartitionModeIsolated PartitionMode = 1
)

// PartitionEvent is emitted on a partition mode transition, for the
// operator socket's status command to surface.
type PartitionEvent struct {
	Mode                  PartitionMode
	ReachablePeers        int
	TotalPeers            int
	RecalibratedQuorumMin int
	Timestamp             time.Time
}

// PartitionSink receives PartitionEvents. Implementations must be non-blocking.
type PartitionSink interface {
	Emit(PartitionEvent)
}

// ChannelPartitionSink is a non-blocking PartitionSink backed by a channel.
type ChannelPartitionSink struct {
	C       chan PartitionEvent
	Dropped uint64 // accessed atomically
}

// Emit implements PartitionSink. Non-blocking: drops if channel full.
func (s *ChannelPartitionSink) Emit(evt PartitionEvent) {
	select {
	case s.C <- evt:
	default:
		atomic.AddUint64(&s.Dropped, 1)
	}
}

// QuorumConfig configures a PeerQuorum.
type QuorumConfig struct {
	// QuorumMin is the minimum number of agreeing peers required to
	// confirm a PEER_AGENT assistance response. Must be >= 1.
	QuorumMin int

	// TTL bounds how long a peer's answer remains eligible to count
	// toward quorum for a given trace_id.
	TTL time.Duration

	// TotalPeers is the number of configured peer agents (excluding self).
	TotalPeers int

	// PartitionThreshold is the fraction of peers below which the quorum
	// recalibrates to the reachable subset. Default: 0.5.
	PartitionThreshold float64

	// QuorumFraction recalibrates quorumMin in partition mode:
	// recalibratedMin = max(1, floor(reachablePeers * QuorumFraction)).
	QuorumFraction float64

	PartitionSink PartitionSink
}

// PeerQuorum tracks peer answers per trace_id and reports whether enough
// peers agree on the same response to confirm it. Partition-aware: when
// peer reachability drops, quorumMin recalibrates to what is reachable
// rather than stalling assistance entirely.
type PeerQuorum struct {
	mu      sync.RWMutex
	cfg     QuorumConfig
	answers map[string][]peerAnswer

	currentMode    PartitionMode
	reachablePeers int
	effectiveMin   int
}

// NewPeerQuorum constructs a PeerQuorum with default partition tuning.
func NewPeerQuorum(quorumMin int, ttl time.Duration) *PeerQuorum {
	return NewPeerQuorumWithConfig(QuorumConfig{
		QuorumMin:          quorumMin,
		TTL:                ttl,
		PartitionThreshold: 0.5,
		QuorumFraction:     0.5,
	})
}

// NewPeerQuorumWithConfig constructs a PeerQuorum with full configuration.
func NewPeerQuorumWithConfig(cfg QuorumConfig) *PeerQuorum {
	if cfg.PartitionThreshold <= 0 || cfg.PartitionThreshold > 1 {
		cfg.PartitionThreshold = 0.5
	}
	if cfg.QuorumFraction <= 0 || cfg.QuorumFraction > 1 {
		cfg.QuorumFraction = 0.5
	}
	q := &PeerQuorum{
		cfg:          cfg,
		answers:      make(map[string][]peerAnswer),
		effectiveMin: cfg.QuorumMin,
	}
	go q.pruneLoop()
	return q
}

// Record registers peerID's proposed response for traceID. Idempotent
// per peer: a later answer from the same peer replaces its earlier one.
func (q *PeerQuorum) Record(traceID, peerID, response string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	answers := q.answers[traceID]
	for i, a := range answers {
		if a.peerID == peerID {
			answers[i].response = response
			answers[i].recordedAt = now
			q.answers[traceID] = answers
			return
		}
	}
	q.answers[traceID] = append(answers, peerAnswer{peerID: peerID, response: response, recordedAt: now})
}

// UpdatePeerReachability recalibrates quorumMin from the currently
// reachable peer count, entering or exiting partition mode as needed.
func (q *PeerQuorum) UpdatePeerReachability(reachablePeers int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reachablePeers = reachablePeers
	totalPeers := q.cfg.TotalPeers

	var newMode PartitionMode
	var newEffectiveMin int

	if totalPeers == 0 {
		newMode = PartitionModeNormal
		newEffectiveMin = q.cfg.QuorumMin
	} else {
		reachableFrac := float64(reachablePeers) / float64(totalPeers)
		if reachableFrac < q.cfg.PartitionThreshold {
			recalibrated := int(math.Floor(float64(reachablePeers) * q.cfg.QuorumFraction))
			if recalibrated < 1 {
				recalibrated = 1
			}
			newMode = PartitionModeIsolated
			newEffectiveMin = recalibrated
		} else {
			newMode = PartitionModeNormal
			newEffectiveMin = q.cfg.QuorumMin
		}
	}

	if newMode != q.currentMode || newEffectiveMin != q.effectiveMin {
		q.currentMode = newMode
		q.effectiveMin = newEffectiveMin
		if q.cfg.PartitionSink != nil {
			q.cfg.PartitionSink.Emit(PartitionEvent{
				Mode:                  newMode,
				ReachablePeers:        reachablePeers,
				TotalPeers:            totalPeers,
				RecalibratedQuorumMin: newEffectiveMin,
				Timestamp:             time.Now(),
			})
		}
	}
}

// Confirm reports whether enough active peers agree on a single
// response for traceID. Returns the agreed response and true once the
// majority answer's supporter count reaches the effective quorum.
func (q *PeerQuorum) Confirm(traceID string) (response string, confirmed bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	cutoff := time.Now().Add(-q.cfg.TTL)
	tally := make(map[string]int)
	for _, a := range q.answers[traceID] {
		if a.recordedAt.After(cutoff) {
			tally[a.response]++
		}
	}
	best, bestCount := "", 0
	for resp, count := range tally {
		if count > bestCount {
			best, bestCount = resp, count
		}
	}
	if bestCount >= q.effectiveMin {
		return best, true
	}
	return "", false
}

// PartitionState returns the current partition mode and effective quorumMin.
func (q *PeerQuorum) PartitionState() (mode PartitionMode, effectiveMin int, reachablePeers int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentMode, q.effectiveMin, q.reachablePeers
}

func (q *PeerQuorum) pruneExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.cfg.TTL)
	for traceID, answers := range q.answers {
		var active []peerAnswer
		for _, a := range answers {
			if a.recordedAt.After(cutoff) {
				active = append(active, a)
			}
		}
		if len(active) == 0 {
			delete(q.answers, traceID)
		} else {
			q.answers[traceID] = active
		}
	}
}

func (q *PeerQuorum) pruneLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		q.pruneExpired()
	}
}
