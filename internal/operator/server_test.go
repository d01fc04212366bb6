package operator

import (
	"context"
	"testing"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
)

type stubKernel struct {
	booted   bool
	manifest manifest.CapabilityManifest
	counter  uint64

	federationResult kernel.FederationCallResult
	assistanceResult kernel.AssistanceResultExternal
	updateResult     kernel.UpdateResult
}

func (s *stubKernel) Boot(_ context.Context, m manifest.CapabilityManifest) error {
	s.booted = true
	s.manifest = m
	s.counter = 1
	return nil
}

func (s *stubKernel) GetManifest() (manifest.CapabilityManifest, bool) {
	return s.manifest, s.booted
}

func (s *stubKernel) MonotonicCounter() uint64 { return s.counter }

func (s *stubKernel) GovernedFederationCall(_ context.Context, _, _ string, _ map[string]frame.Scalar, _ manifest.RiskTier) (kernel.FederationCallResult, error) {
	return s.federationResult, nil
}

func (s *stubKernel) RequestAssistance(_ context.Context, _, _ string, _ manifest.RiskTier) (kernel.AssistanceResultExternal, error) {
	return s.assistanceResult, nil
}

func (s *stubKernel) ApplyUpdatePackage(_ context.Context, _ manifest.UpdatePackage, _ manifest.RiskTier) (kernel.UpdateResult, error) {
	return s.updateResult, nil
}

type stubLedger struct {
	entries []storage.LedgerEntry
}

func (l *stubLedger) ReadLedger() ([]storage.LedgerEntry, error) {
	return l.entries, nil
}

func testManifest() manifest.CapabilityManifest {
	return manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "agent-1",
	}
}

func TestDispatchBootReportsMonotonicCounter(t *testing.T) {
	k := &stubKernel{}
	srv := NewServer("", k, nil, func() manifest.CapabilityManifest { return testManifest() }, nil)

	resp := srv.dispatch(context.Background(), Request{Cmd: "boot"})
	if !resp.OK || resp.MonotonicCounter != 1 {
		t.Fatalf("expected ok boot with monotonic_counter=1, got %+v", resp)
	}
}

func TestDispatchGetManifestBeforeBootFails(t *testing.T) {
	k := &stubKernel{}
	srv := NewServer("", k, nil, nil, nil)

	resp := srv.dispatch(context.Background(), Request{Cmd: "get_manifest"})
	if resp.OK {
		t.Fatal("expected get_manifest to fail before boot")
	}
}

func TestDispatchFederationCallRequiresTraceAndOperation(t *testing.T) {
	k := &stubKernel{}
	srv := NewServer("", k, nil, nil, nil)

	resp := srv.dispatch(context.Background(), Request{Cmd: "federation_call"})
	if resp.OK {
		t.Fatal("expected federation_call to reject a missing trace_id/operation")
	}
}

func TestDispatchLedgerTailRespectsLimit(t *testing.T) {
	k := &stubKernel{}
	ledger := &stubLedger{entries: []storage.LedgerEntry{{TraceID: "a"}, {TraceID: "b"}, {TraceID: "c"}}}
	srv := NewServer("", k, ledger, nil, nil)

	resp := srv.dispatch(context.Background(), Request{Cmd: "ledger_tail", Limit: 2})
	if !resp.OK || len(resp.Entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %+v", resp)
	}
	if resp.Entries[0].TraceID != "b" || resp.Entries[1].TraceID != "c" {
		t.Fatalf("expected the two newest entries, got %+v", resp.Entries)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	k := &stubKernel{}
	srv := NewServer("", k, nil, nil, nil)

	resp := srv.dispatch(context.Background(), Request{Cmd: "does_not_exist"})
	if resp.OK {
		t.Fatal("expected unknown command to fail")
	}
}

func TestDecodeScalarMapRejectsNonIntegerFloat(t *testing.T) {
	_, err := decodeScalarMap(map[string]interface{}{"ratio": 0.5})
	if err == nil {
		t.Fatal("expected decodeScalarMap to reject a non-integer float (frames never carry floats)")
	}
}
