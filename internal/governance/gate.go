// Package governance provides the kernel's reference GovernanceGate
// collaborator: a pure evaluator that checks a CanonicalActionFrame
// against a pinned policy corpus (sdc_version, invariant_keys_required)
// and returns ALLOW/DENY. It never mutates kernel state; the only
// internal state it keeps is an append-only decision hash chain used
// for its own audit trail, which is orthogonal to kernel state.
package governance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
)

// Violation classifies why a frame was denied.
type Violation string

const (
	ViolationSDCVersionMismatch Violation = "SDC_VERSION_MISMATCH"
	ViolationInvariantMissing   Violation = "INVARIANT_KEY_MISSING"
	ViolationNonMonotonicTime   Violation = "NON_MONOTONIC_TIME"
)

// ReferenceGate is the kernel's reference GovernanceGate implementation.
// Evaluate is a pure function of the frame plus the gate's own pinned
// policy state: sdcVersion and invariantKeysRequired never change after
// construction, and Evaluate never mutates kernel state.
type ReferenceGate struct {
	mu sync.Mutex

	sdcVersion            string
	invariantKeysRequired []string
	timeSkewTolerance     time.Duration

	logger           *zap.Logger
	lastTimestamp    time.Time
	lastDecisionHash string
	decisionsSeen    int64
}

// NewReferenceGate constructs a gate pinned to sdcVersion and the given
// invariant key list (governance.invariant_keys_required in the
// manifest). Frames whose extensions do not carry every required
// invariant key are denied.
func NewReferenceGate(logger *zap.Logger, sdcVersion string, invariantKeysRequired []string) *ReferenceGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceGate{
		sdcVersion:            sdcVersion,
		invariantKeysRequired: invariantKeysRequired,
		timeSkewTolerance:     5 * time.Second,
		logger:                logger,
	}
}

// Evaluate implements kernel.GovernanceGate.
func (g *ReferenceGate) Evaluate(_ context.Context, f frame.CanonicalActionFrame) (kernel.GovernanceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f.SDCVersion != g.sdcVersion {
		return g.deny(f, ViolationSDCVersionMismatch), nil
	}

	if missing := g.firstMissingInvariant(f); missing != "" {
		return g.deny(f, ViolationInvariantMissing), nil
	}

	if ts, err := time.Parse(time.RFC3339, f.TimestampUTC); err == nil {
		if ts.Before(g.lastTimestamp) {
			g.logger.Warn("frame timestamp moved backwards relative to last evaluated frame",
				zap.String("action_id", f.ActionID),
				zap.Time("frame_ts", ts),
				zap.Time("last_ts", g.lastTimestamp),
			)
			return g.deny(f, ViolationNonMonotonicTime), nil
		}
		g.lastTimestamp = ts
	}

	policyHash := g.chain(f)
	g.decisionsSeen++

	g.logger.Debug("governance evaluation: ALLOW",
		zap.String("action_id", f.ActionID),
		zap.String("policy_hash", policyHash[:16]),
		zap.Int64("decisions_seen", g.decisionsSeen),
	)

	return kernel.GovernanceResult{
		Verdict:    kernel.GovernanceAllow,
		PolicyHash: policyHash,
	}, nil
}

func (g *ReferenceGate) firstMissingInvariant(f frame.CanonicalActionFrame) string {
	for _, key := range g.invariantKeysRequired {
		if _, ok := f.Extensions[key]; !ok {
			return key
		}
	}
	return ""
}

func (g *ReferenceGate) deny(f frame.CanonicalActionFrame, reason Violation) kernel.GovernanceResult {
	g.logger.Info("governance evaluation: DENY",
		zap.String("action_id", f.ActionID),
		zap.String("reason", string(reason)),
	)
	return kernel.GovernanceResult{
		Verdict: kernel.GovernanceDeny,
		Reason:  string(reason),
	}
}

// chain extends the gate's own decision hash chain and returns the new
// link, exposed to callers as policy_hash. This is audit plumbing for
// the gate itself, not kernel state.
func (g *ReferenceGate) chain(f frame.CanonicalActionFrame) string {
	sum := sha256.Sum256([]byte(g.lastDecisionHash + f.Hash()))
	next := hex.EncodeToString(sum[:])
	g.lastDecisionHash = next
	return next
}
