package kernel_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
)

// memStorage is an in-memory StorageAdapter for tests.
type memStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStorage() *memStorage { return &memStorage{data: make(map[string]string)} }

func (s *memStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// stubGate returns a fixed verdict regardless of frame content.
type stubGate struct {
	verdict kernel.GovernanceVerdict
	reason  string
	calls   int
}

func (g *stubGate) Evaluate(_ context.Context, _ frame.CanonicalActionFrame) (kernel.GovernanceResult, error) {
	g.calls++
	return kernel.GovernanceResult{Verdict: g.verdict, Reason: g.reason}, nil
}

// stubAttestation returns a fixed verdict regardless of frame content.
type stubAttestation struct {
	verdict kernel.AttestationVerdict
	uvaHash string
	reason  string
	calls   int
}

func (a *stubAttestation) Attest(_ context.Context, _ frame.CanonicalActionFrame) (kernel.AttestationResult, error) {
	a.calls++
	return kernel.AttestationResult{Verdict: a.verdict, UVAHash: a.uvaHash, Reason: a.reason}, nil
}

// stubFederation returns a fixed result regardless of request.
type stubFederation struct {
	result kernel.FederationResult
	calls  int
}

func (f *stubFederation) Request(_ context.Context, _ kernel.FederationRequest) (kernel.FederationResult, error) {
	f.calls++
	return f.result, nil
}

// stubAssistance returns a fixed result regardless of request.
type stubAssistance struct {
	result kernel.AssistanceResult
	calls  int
}

func (a *stubAssistance) RequestAssistance(_ context.Context, _ kernel.AssistanceRequest) (kernel.AssistanceResult, error) {
	a.calls++
	return a.result, nil
}

func alwaysValidSignature(manifest.UpdatePackage, []string) bool { return true }
func noopApplier(context.Context, manifest.UpdatePackage) (*manifest.CapabilityManifest, error) {
	return nil, nil
}

func testManifest(agentID string) manifest.CapabilityManifest {
	return manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       agentID,
		Federation: manifest.FederationConfig{
			Enabled:           true,
			Sources:           []string{"primary"},
			AllowedOperations: []string{"ASK_FEDERATION"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RouteHumanEscalation, manifest.RouteFederation},
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
			SDCVersion:            "sdc-2026.1",
			DVAPRequiredRiskTiers: []manifest.RiskTier{manifest.T2HighStakes, manifest.T3Regulated},
		},
	}
}

func bootedKernel(t *testing.T, agentID string, gate *stubGate, att *stubAttestation, fed *stubFederation, asst *stubAssistance) *kernel.Kernel {
	t.Helper()
	k := kernel.New(agentID, newMemStorage(), gate, att, fed, asst, alwaysValidSignature, noopApplier)
	if err := k.Boot(context.Background(), testManifest(agentID)); err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	return k
}

// Scenario 1: Happy federation, T1 — attestation not required, not called.
func TestScenario1_HappyFederationT1(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{verdict: kernel.AttestationAttested, uvaHash: "should-not-be-used"}
	fed := &stubFederation{result: kernel.FederationResult{OK: true, Result: map[string]frame.Scalar{"answer": frame.IntScalar(42)}}}
	asst := &stubAssistance{}

	k := bootedKernel(t, "agent-1", gate, att, fed, asst)

	res, err := k.GovernedFederationCall(context.Background(), "trace-1", "ASK_FEDERATION", map[string]frame.Scalar{"q": frame.StringScalar("hi")}, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected ok=true, got error %q", res.Error)
	}
	if res.InputFrameHash == "" {
		t.Error("expected input_frame_hash to be set")
	}
	if res.UVAHash != "" {
		t.Errorf("expected uva_hash unset for T1, got %q", res.UVAHash)
	}
	if att.calls != 0 {
		t.Errorf("attestation should not have been called, got %d calls", att.calls)
	}
}

// Scenario 2: T3 requires attestation.
func TestScenario2_T3RequiresAttestation(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{verdict: kernel.AttestationAttested, uvaHash: "u1"}
	fed := &stubFederation{result: kernel.FederationResult{OK: true, Result: map[string]frame.Scalar{"answer": frame.IntScalar(42)}}}
	asst := &stubAssistance{}

	k := bootedKernel(t, "agent-2", gate, att, fed, asst)

	res, err := k.GovernedFederationCall(context.Background(), "trace-2", "ASK_FEDERATION", nil, manifest.T3Regulated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.UVAHash != "u1" {
		t.Fatalf("expected ok=true uva_hash=u1, got ok=%v uva=%q error=%q", res.OK, res.UVAHash, res.Error)
	}
	if att.calls != 1 {
		t.Errorf("expected attestation called once, got %d", att.calls)
	}
}

// Scenario 3: Policy deny — federation never called.
func TestScenario3_PolicyDeny(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceDeny, reason: "INVARIANT_KEY_MISSING"}
	att := &stubAttestation{}
	fed := &stubFederation{}
	asst := &stubAssistance{}

	k := bootedKernel(t, "agent-3", gate, att, fed, asst)

	res, err := k.GovernedFederationCall(context.Background(), "trace-3", "ASK_FEDERATION", nil, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected ok=false on deny")
	}
	if res.Error != "GOV_DENY:INVARIANT_KEY_MISSING" {
		t.Errorf("unexpected error tag: %q", res.Error)
	}
	if fed.calls != 0 {
		t.Errorf("federation should not have been called, got %d", fed.calls)
	}
}

// Scenario 4: Federation failure with assistance; error augmented, not masked.
func TestScenario4_FederationFailureWithAssistance(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{verdict: kernel.AttestationAttested}
	fed := &stubFederation{result: kernel.FederationResult{OK: false, Error: "TIMEOUT"}}
	asst := &stubAssistance{result: kernel.AssistanceResult{OK: true, RouteUsed: manifest.RouteHumanEscalation}}

	k := bootedKernel(t, "agent-4", gate, att, fed, asst)

	res, err := k.GovernedFederationCall(context.Background(), "trace-4", "ASK_FEDERATION", nil, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected ok=false on federation failure")
	}
	want := "FEDERATION_ERROR:TIMEOUT | assist:HUMAN_ESCALATION"
	if res.Error != want {
		t.Errorf("expected %q, got %q", want, res.Error)
	}
	if res.InputFrameHash == "" {
		t.Error("expected input_frame_hash to be set on failure")
	}
}

// Scenario 5: Update with bad signature; applyBundle never called, state unchanged.
func TestScenario5_UpdateBadSignature(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{}
	fed := &stubFederation{}
	asst := &stubAssistance{}

	storage := newMemStorage()
	applierCalled := false
	applier := func(context.Context, manifest.UpdatePackage) (*manifest.CapabilityManifest, error) {
		applierCalled = true
		return nil, nil
	}
	rejectSignature := func(manifest.UpdatePackage, []string) bool { return false }

	k := kernel.New("agent-5", storage, gate, att, fed, asst, rejectSignature, applier)
	if err := k.Boot(context.Background(), testManifest("agent-5")); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	before, _ := storage.Get(context.Background(), "acip.kernel.state.agent-5")

	res, err := k.ApplyUpdatePackage(context.Background(), manifest.UpdatePackage{
		PackageID: "pkg-1",
		Channel:   manifest.ChannelSkillCapsule,
		Version:   "1.0.0",
	}, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected ok=false on invalid signature")
	}
	if res.Error != "INVALID_SIGNATURE" {
		t.Errorf("expected INVALID_SIGNATURE, got %q", res.Error)
	}
	if applierCalled {
		t.Error("applyBundle must not be called when signature verification fails")
	}

	after, _ := storage.Get(context.Background(), "acip.kernel.state.agent-5")
	if before != after {
		t.Error("state must be unchanged after a rejected update")
	}
}

// Scenario 6: Boot twice — counter strictly increases, hash recomputed and equal.
func TestScenario6_BootTwice(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{}
	fed := &stubFederation{}
	asst := &stubAssistance{}

	storage := newMemStorage()
	k1 := kernel.New("agent-6", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)
	if err := k1.Boot(context.Background(), testManifest("agent-6")); err != nil {
		t.Fatalf("first boot failed: %v", err)
	}
	m1, _ := k1.GetManifest()
	counter1 := k1.MonotonicCounter()
	hash1 := computeHashFromStorage(t, storage, "agent-6")

	k2 := kernel.New("agent-6", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)
	if err := k2.Boot(context.Background(), testManifest("agent-6")); err != nil {
		t.Fatalf("second boot failed: %v", err)
	}
	m2, _ := k2.GetManifest()
	counter2 := k2.MonotonicCounter()
	hash2 := computeHashFromStorage(t, storage, "agent-6")

	if m1.AgentID != m2.AgentID {
		t.Fatal("manifest agent_id changed across boots")
	}
	if counter1 != 1 || counter2 != 2 {
		t.Errorf("expected monotonic_counter 1 then 2, got %d then %d", counter1, counter2)
	}
	if hash1 == "" || hash2 == "" {
		t.Fatal("expected non-empty manifest hashes")
	}
	if hash1 != hash2 {
		t.Errorf("manifest unchanged across boots should yield equal hashes: %s != %s", hash1, hash2)
	}
}

func computeHashFromStorage(t *testing.T, storage *memStorage, agentID string) string {
	t.Helper()
	raw, ok, err := storage.Get(context.Background(), "acip.kernel.state."+agentID)
	if err != nil || !ok {
		t.Fatalf("expected state to be present: ok=%v err=%v", ok, err)
	}
	state, err := frame.ParseState(raw)
	if err != nil {
		t.Fatalf("parse state: %v", err)
	}
	return state.LastManifestHash
}

// TestAgentIDMismatchIsFatalAndStateUnchanged covers the §8 "State
// monotonicity" property: on AGENT_ID_MISMATCH, state is not modified.
func TestAgentIDMismatchIsFatalAndStateUnchanged(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{}
	fed := &stubFederation{}
	asst := &stubAssistance{}

	storage := newMemStorage()
	k1 := kernel.New("agent-7", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)
	if err := k1.Boot(context.Background(), testManifest("agent-7")); err != nil {
		t.Fatalf("first boot failed: %v", err)
	}
	before, _, _ := storage.Get(context.Background(), "acip.kernel.state.agent-7")

	k2 := kernel.New("agent-mismatch", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)
	// Boot with a different agent against the same storage record: the
	// manifest loaded from storage is for agent-7, not agent-mismatch.
	err := k2.Boot(context.Background(), testManifest("agent-mismatch"))
	if err == nil {
		t.Fatal("expected AGENT_ID_MISMATCH error")
	}
	if !strings.Contains(err.Error(), kernel.ErrAgentIDMismatch) {
		t.Errorf("expected error tag %s, got %v", kernel.ErrAgentIDMismatch, err)
	}

	after, _, _ := storage.Get(context.Background(), "acip.kernel.state.agent-7")
	if before != after {
		t.Error("state must be unchanged after AGENT_ID_MISMATCH")
	}
}

// TestFederationDisabledNeverCallsCollaborators covers "Gating
// monotonicity": if federation.enabled = false, no call to
// FederationClient is made for any input, and governance is never
// consulted either since the precondition short-circuits first.
func TestFederationDisabledNeverCallsCollaborators(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{}
	fed := &stubFederation{result: kernel.FederationResult{OK: true}}
	asst := &stubAssistance{}

	storage := newMemStorage()
	k := kernel.New("agent-8", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)

	m := testManifest("agent-8")
	m.Federation.Enabled = false
	if err := k.Boot(context.Background(), m); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	res, err := k.GovernedFederationCall(context.Background(), "trace-8", "ASK_FEDERATION", nil, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "FEDERATION_DISABLED" {
		t.Errorf("expected FEDERATION_DISABLED, got %q", res.Error)
	}
	if gate.calls != 0 {
		t.Errorf("governance must not be consulted when federation disabled, got %d calls", gate.calls)
	}
	if fed.calls != 0 {
		t.Errorf("federation client must not be called, got %d calls", fed.calls)
	}
}

// TestConfigBundleReplacesManifest covers §4.5's CONFIG_BUNDLE channel:
// a successful apply must swap the decoded manifest into kernel state,
// not just re-hash the manifest already in memory, so governance,
// federation, and assistance policy for the agent actually change.
func TestConfigBundleReplacesManifest(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{}
	fed := &stubFederation{}
	asst := &stubAssistance{}

	replacement := manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "agent-10",
		Federation: manifest.FederationConfig{
			Enabled:           true,
			Sources:           []string{"primary"},
			AllowedOperations: []string{"ASK_FEDERATION", "NEW_OPERATION"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RouteFederation},
			MaxAttempts: 5,
		},
		Updates: manifest.UpdatesConfig{
			Enabled:                  true,
			AllowedChannels:          []manifest.UpdateChannel{manifest.ChannelConfigBundle},
			RequireSignature:         true,
			RequireGovernanceApprove: true,
			TrustedSigners:           []string{"signer-1"},
		},
		Governance: manifest.GovernanceConfig{
			SDCVersion: "sdc-2027.1",
		},
	}

	configBundleApplier := func(context.Context, manifest.UpdatePackage) (*manifest.CapabilityManifest, error) {
		return &replacement, nil
	}

	m := testManifest("agent-10")
	m.Updates.AllowedChannels = []manifest.UpdateChannel{manifest.ChannelConfigBundle}

	storage := newMemStorage()
	k := kernel.New("agent-10", storage, gate, att, fed, asst, alwaysValidSignature, configBundleApplier)
	if err := k.Boot(context.Background(), m); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	res, err := k.ApplyUpdatePackage(context.Background(), manifest.UpdatePackage{
		PackageID: "pkg-config-1",
		Channel:   manifest.ChannelConfigBundle,
		Version:   "1.0.0",
	}, manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected ok=true, got error %q", res.Error)
	}

	got, ok := k.GetManifest()
	if !ok {
		t.Fatal("expected a manifest to be present after boot")
	}
	if got.Governance.SDCVersion != "sdc-2027.1" {
		t.Errorf("expected the replaced manifest's sdc_version to take effect, got %q", got.Governance.SDCVersion)
	}
	if !got.AllowsOperation("NEW_OPERATION") {
		t.Error("expected the replaced manifest's federation.allowed_operations to take effect")
	}
	if got.Assistance.MaxAttempts != 5 {
		t.Errorf("expected the replaced manifest's assistance.max_attempts to take effect, got %d", got.Assistance.MaxAttempts)
	}

	wantHash := frame.ManifestHash(replacement)
	if res.LastManifestHash != wantHash {
		t.Errorf("expected last_manifest_hash to be derived from the replaced manifest, got %q want %q", res.LastManifestHash, wantHash)
	}
}

// TestAssistanceMaxAttemptsEnforced exercises the kernel's enforcement
// of manifest.assistance.max_attempts per (agent_id, trace_id) — the
// resolved §9 open question.
func TestAssistanceMaxAttemptsEnforced(t *testing.T) {
	gate := &stubGate{verdict: kernel.GovernanceAllow}
	att := &stubAttestation{verdict: kernel.AttestationAttested}
	fed := &stubFederation{}
	asst := &stubAssistance{result: kernel.AssistanceResult{OK: true, RouteUsed: manifest.RouteFederation}}

	m := testManifest("agent-9")
	m.Assistance.MaxAttempts = 2

	storage := newMemStorage()
	k := kernel.New("agent-9", storage, gate, att, fed, asst, alwaysValidSignature, noopApplier)
	if err := k.Boot(context.Background(), m); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := k.RequestAssistance(ctx, "trace-9", "help me", manifest.T1Standard)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if !res.OK {
			t.Fatalf("attempt %d: expected ok=true, got error %q", i, res.Error)
		}
	}

	res, err := k.RequestAssistance(ctx, "trace-9", "help me", manifest.T1Standard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "ASSISTANCE_DISABLED:MAX_ATTEMPTS_EXCEEDED" {
		t.Errorf("expected max attempts error, got ok=%v error=%q", res.OK, res.Error)
	}
}
