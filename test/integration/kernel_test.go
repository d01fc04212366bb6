// Package integration exercises the kernel against real collaborator
// implementations (governance.ReferenceGate, attestation.Ed25519Client,
// updates.Applier, a BoltDB storage.DB) wired together the way cmd/fckd
// wires them, rather than the stubbed contracts internal/kernel's own
// unit tests use. Federation and PEER_AGENT assistance still use
// in-package stand-ins, since a live peer is out of scope here.
package integration

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/acip-dev/fck/internal/assistance"
	"github.com/acip-dev/fck/internal/attestation"
	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/governance"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
	"github.com/acip-dev/fck/internal/updates"
)

type stubFederation struct {
	ok     bool
	result map[string]frame.Scalar
	errTag string
}

func (s *stubFederation) Request(_ context.Context, _ kernel.FederationRequest) (kernel.FederationResult, error) {
	if s.ok {
		return kernel.FederationResult{OK: true, Result: s.result, Source: "integration-peer"}, nil
	}
	return kernel.FederationResult{OK: false, Error: s.errTag}, nil
}

type stubPeer struct{ response string }

func (p stubPeer) PeerID() string { return "integration-peer" }
func (p stubPeer) Ask(_ context.Context, _, _ string) (string, error) {
	return p.response, nil
}

func testManifest() manifest.CapabilityManifest {
	return manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "integration-agent",
		Federation: manifest.FederationConfig{
			Enabled:           true,
			Sources:           []string{"peer-a"},
			AllowedOperations: []string{"inventory.query"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RoutePeerAgent},
			MaxAttempts: 3,
		},
		Updates: manifest.UpdatesConfig{
			Enabled:                  true,
			AllowedChannels:          []manifest.UpdateChannel{manifest.ChannelSkillCapsule},
			RequireSignature:         true,
			RequireGovernanceApprove: true,
			TrustedSigners:           []string{"signer-1"},
		},
		Governance: manifest.GovernanceConfig{
			SDCVersion:            "integration-1",
			DVAPRequiredRiskTiers: []manifest.RiskTier{manifest.T2HighStakes},
		},
	}
}

func buildRealKernel(t *testing.T, fed kernel.FederationClient, peerResponse string) (*kernel.Kernel, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}

	gate := governance.NewReferenceGate(nil, "integration-1", nil)
	attester := attestation.NewEd25519Client("integration-authority", priv, nil)

	db, err := storage.Open(filepath.Join(t.TempDir(), "integration.db"), 30)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	trustedKeys := updates.TrustedSignerKeys{"signer-1": pub}
	applier := updates.NewApplier(db, nil, nil)

	broker := assistance.NewBroker(assistance.RouteConfig{
		Order: []manifest.AssistanceRoute{manifest.RoutePeerAgent},
	}, nil, []assistance.PeerClient{stubPeer{response: peerResponse}}, nil, nil)

	k := kernel.New(
		"integration-agent",
		db,
		gate,
		attester,
		fed,
		broker,
		updates.VerifyEd25519Signature(trustedKeys),
		applier.Apply,
	)

	ctx := context.Background()
	if err := k.Boot(ctx, testManifest()); err != nil {
		t.Fatalf("boot: %v", err)
	}
	return k, pub, priv
}

func TestGovernedFederationCallSucceedsEndToEnd(t *testing.T) {
	fed := &stubFederation{ok: true, result: map[string]frame.Scalar{"count": frame.IntScalar(7)}}
	k, _, _ := buildRealKernel(t, fed, "ok")

	res, err := k.GovernedFederationCall(context.Background(), "trace-1", "inventory.query",
		map[string]frame.Scalar{"sku": frame.StringScalar("widget")}, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.Result["count"].AsString() != "7" {
		t.Fatalf("expected successful federation call, got %+v", res)
	}
}

func TestGovernedFederationCallRequiresDVAPAtHighRiskTier(t *testing.T) {
	fed := &stubFederation{ok: true, result: map[string]frame.Scalar{}}
	k, _, _ := buildRealKernel(t, fed, "ok")

	res, err := k.GovernedFederationCall(context.Background(), "trace-2", "inventory.query",
		map[string]frame.Scalar{"sku": frame.StringScalar("widget")}, manifest.T2HighStakes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.UVAHash == "" {
		t.Fatalf("expected T2_HIGH_STAKES call to carry a uva_hash from real attestation, got %+v", res)
	}
}

func TestGovernedFederationCallUnlistedOperationDenied(t *testing.T) {
	fed := &stubFederation{ok: true}
	k, _, _ := buildRealKernel(t, fed, "ok")

	res, err := k.GovernedFederationCall(context.Background(), "trace-3", "not.allowed", nil, manifest.T0Low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected OP_NOT_ALLOWED for an operation absent from allowed_operations")
	}
}

func TestGovernedFederationCallFailureTriggersBoundedAssistance(t *testing.T) {
	fed := &stubFederation{ok: false, errTag: "UPSTREAM_DOWN"}
	k, _, _ := buildRealKernel(t, fed, "confirmed-by-peer")

	res, err := k.GovernedFederationCall(context.Background(), "trace-4", "inventory.query", nil, manifest.T0Low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected the call itself to still report failure")
	}
	if !containsSubstring(res.Error, "assist:PEER_AGENT") {
		t.Fatalf("expected the error tag to record a successful bounded assistance attempt, got %q", res.Error)
	}
}

func TestApplyUpdatePackageRejectsBadSignature(t *testing.T) {
	fed := &stubFederation{ok: true}
	k, _, _ := buildRealKernel(t, fed, "ok")

	pkg := manifest.UpdatePackage{
		PackageID:    "pkg-1",
		Channel:      manifest.ChannelSkillCapsule,
		Version:      "1.0.0",
		PayloadB64:   base64.StdEncoding.EncodeToString([]byte("not signed")),
		SignatureB64: base64.StdEncoding.EncodeToString([]byte("garbage")),
		SignerID:     "signer-1",
	}

	res, err := k.ApplyUpdatePackage(context.Background(), pkg, manifest.T0Low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected a forged signature to be rejected by the real Ed25519 verifier")
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
