package frame_test

import (
	"testing"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

func baseFrame() frame.CanonicalActionFrame {
	return frame.CanonicalActionFrame{
		ActionID:             "act_1",
		AgentID:              "agent-7",
		RiskTier:             manifest.T1Standard,
		SDCVersion:           "sdc-2026.1",
		PolicyVerdict:        true,
		ConstraintsSatisfied: true,
		HumanConfirmation:    false,
		TimestampUTC:         "2026-07-29T00:00:00Z",
		HashAlgorithm:        frame.HashAlgorithm,
	}
}

// TestCanonicalHashByteStability verifies canonical_hash(f) is
// byte-identical across 100 independent serializations of the same
// frame (§8 "Determinism and hashing").
func TestCanonicalHashByteStability(t *testing.T) {
	f := baseFrame()
	f.Extensions = frame.Extensions{
		"zebra": frame.StringScalar("z"),
		"alpha": frame.StringScalar("a"),
	}

	var first string
	for i := 0; i < 100; i++ {
		got := f.Hash()
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Fatalf("run %d: hash not stable: want %s got %s", i, first, got)
		}
	}
}

// TestCanonicalHashIgnoresExtensionInsertionOrder verifies that
// permuting the insertion order of f.extensions does not change
// canonical_hash(f), since Extensions is a map keyed for lexicographic
// re-emission regardless of construction order.
func TestCanonicalHashIgnoresExtensionInsertionOrder(t *testing.T) {
	a := baseFrame()
	a.Extensions = frame.Extensions{
		"alpha": frame.StringScalar("a"),
		"zebra": frame.StringScalar("z"),
	}

	b := baseFrame()
	b.Extensions = frame.Extensions{
		"zebra": frame.StringScalar("z"),
		"alpha": frame.StringScalar("a"),
	}

	if a.Hash() != b.Hash() {
		t.Fatalf("hash depends on extension insertion order: %s != %s", a.Hash(), b.Hash())
	}
}

// TestCanonicalHashDiffersOnScalarChange exercises the collision
// property of §8: frames differing in any scalar field must produce
// different hashes.
func TestCanonicalHashDiffersOnScalarChange(t *testing.T) {
	base := baseFrame()
	baseHash := base.Hash()

	variants := []frame.CanonicalActionFrame{
		withActionID(base, "act_2"),
		withRiskTier(base, manifest.T2HighStakes),
		withPolicyVerdict(base, false),
		withTimestamp(base, "2026-07-29T00:00:01Z"),
	}

	for i, v := range variants {
		if v.Hash() == baseHash {
			t.Fatalf("variant %d: expected distinct hash from base, got collision", i)
		}
	}
}

// TestCanonicalFormNoWhitespace asserts the serialization contains no
// whitespace between tokens, per canonicalization rule 5.
func TestCanonicalFormNoWhitespace(t *testing.T) {
	f := baseFrame()
	got := f.Canonical()
	for _, r := range got {
		switch r {
		case ' ', '\t', '\n', '\r':
			t.Fatalf("canonical form contains whitespace: %q", got)
		}
	}
}

// TestManifestHashStability mirrors the frame determinism property for
// CapabilityManifest, since PersistedKernelState.LastManifestHash
// depends on the same canonicalization.
func TestManifestHashStability(t *testing.T) {
	m := manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "agent-7",
		Federation: manifest.FederationConfig{
			Enabled:           true,
			Sources:           []string{"primary"},
			AllowedOperations: []string{"ASK_FEDERATION"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RouteHumanEscalation},
			MaxAttempts: 3,
		},
		Updates: manifest.UpdatesConfig{
			Enabled:         true,
			AllowedChannels: []manifest.UpdateChannel{manifest.ChannelSkillCapsule},
		},
		Governance: manifest.GovernanceConfig{
			SDCVersion: "sdc-2026.1",
		},
	}

	h1 := frame.ManifestHash(m)
	h2 := frame.ManifestHash(m)
	if h1 != h2 {
		t.Fatalf("manifest hash not stable: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars (sha256), got %d: %s", len(h1), h1)
	}
}

func withActionID(f frame.CanonicalActionFrame, id string) frame.CanonicalActionFrame {
	f.ActionID = id
	return f
}

func withRiskTier(f frame.CanonicalActionFrame, t manifest.RiskTier) frame.CanonicalActionFrame {
	f.RiskTier = t
	return f
}

func withPolicyVerdict(f frame.CanonicalActionFrame, v bool) frame.CanonicalActionFrame {
	f.PolicyVerdict = v
	return f
}

func withTimestamp(f frame.CanonicalActionFrame, ts string) frame.CanonicalActionFrame {
	f.TimestampUTC = ts
	return f
}
