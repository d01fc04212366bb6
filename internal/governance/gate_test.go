package governance

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
)

func testFrame(sdcVersion string, ext frame.Extensions) frame.CanonicalActionFrame {
	return frame.CanonicalActionFrame{
		ActionID:      "act_1",
		AgentID:       "agent-1",
		RiskTier:      manifest.T1Standard,
		SDCVersion:    sdcVersion,
		TimestampUTC:  "2026-07-29T00:00:00Z",
		HashAlgorithm: frame.HashAlgorithm,
		Extensions:    ext,
	}
}

func TestReferenceGate_Evaluate_Allow(t *testing.T) {
	gate := NewReferenceGate(zap.NewNop(), "sdc-2026.1", []string{"channel"})

	f := testFrame("sdc-2026.1", frame.Extensions{"channel": frame.StringScalar("SKILL_CAPSULE")})

	result, err := gate.Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != kernel.GovernanceAllow {
		t.Fatalf("expected ALLOW, got %s (reason %q)", result.Verdict, result.Reason)
	}
	if result.PolicyHash == "" {
		t.Error("expected non-empty policy_hash on ALLOW")
	}
}

func TestReferenceGate_Evaluate_DeniesSDCVersionMismatch(t *testing.T) {
	gate := NewReferenceGate(zap.NewNop(), "sdc-2026.1", nil)

	f := testFrame("sdc-2025.9", nil)

	result, err := gate.Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != kernel.GovernanceDeny {
		t.Fatal("expected DENY on sdc_version mismatch")
	}
	if result.Reason != string(ViolationSDCVersionMismatch) {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestReferenceGate_Evaluate_DeniesMissingInvariant(t *testing.T) {
	gate := NewReferenceGate(zap.NewNop(), "sdc-2026.1", []string{"channel", "version"})

	f := testFrame("sdc-2026.1", frame.Extensions{"channel": frame.StringScalar("SKILL_CAPSULE")})

	result, err := gate.Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != kernel.GovernanceDeny {
		t.Fatal("expected DENY when a required invariant key is missing")
	}
	if result.Reason != string(ViolationInvariantMissing) {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestReferenceGate_Evaluate_IsPureAcrossRepeatedCalls(t *testing.T) {
	gate := NewReferenceGate(zap.NewNop(), "sdc-2026.1", nil)
	f := testFrame("sdc-2026.1", nil)

	r1, err := gate.Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := gate.Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.Verdict != r2.Verdict {
		t.Fatalf("verdict changed across identical calls: %s != %s", r1.Verdict, r2.Verdict)
	}
}
