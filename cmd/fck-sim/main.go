// Package main — cmd/fck-sim/main.go
//
// FCK governed-call simulator.
//
// Purpose: drive a fixed number of simulated governed_federation_call
// invocations through a real *kernel.Kernel wired to mock collaborators,
// and report the resulting outcome distribution and per-call latency.
// Useful for validating a manifest's policy surface (deny rate, DVAP
// coverage, federation failure handling) before deploying it, without
// a live federation peer or attestation authority.
//
// Mock collaborator behavior:
//   - GovernanceGate denies a fixed fraction of frames (-deny-rate).
//   - AttestationClient refuses a fixed fraction of attested frames
//     (-refuse-rate), independent of the governance decision.
//   - FederationClient fails a fixed fraction of calls (-fed-fail-rate).
//   - AssistanceBroker always confirms via a stub PEER_AGENT route, so
//     bounded assistance-on-failure is exercised but never itself fails.
//
// Output: per-call CSV to stdout (call, risk_tier, ok, error,
// latency_us). Summary counts to stderr.
//
// Usage:
//   fck-sim -calls 1000 -deny-rate 0.1 -refuse-rate 0.05 -fed-fail-rate 0.2
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/assistance"
	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
)

func main() {
	calls := flag.Int("calls", 1000, "Number of governed_federation_call invocations to simulate")
	denyRate := flag.Float64("deny-rate", 0.1, "Fraction of frames the mock governance gate denies, in [0,1]")
	refuseRate := flag.Float64("refuse-rate", 0.05, "Fraction of DVAP attestations the mock client refuses, in [0,1]")
	fedFailRate := flag.Float64("fed-fail-rate", 0.2, "Fraction of federation requests the mock client fails, in [0,1]")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	for _, r := range []float64{*denyRate, *refuseRate, *fedFailRate} {
		if r < 0 || r > 1 {
			fmt.Fprintln(os.Stderr, "ERROR: rates must be in [0, 1]")
			os.Exit(1)
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	log := zap.NewNop()

	m := manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "fck-sim",
		Federation: manifest.FederationConfig{
			Enabled:           true,
			Sources:           []string{"sim"},
			AllowedOperations: []string{"sim.echo"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RoutePeerAgent},
			MaxAttempts: 1000000,
		},
		Governance: manifest.GovernanceConfig{
			SDCVersion:            "sim-1",
			DVAPRequiredRiskTiers: []manifest.RiskTier{manifest.T2HighStakes, manifest.T3Regulated},
		},
	}
	if err := m.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: simulated manifest invalid: %v\n", err)
		os.Exit(1)
	}

	gate := &mockGate{denyRate: *denyRate, rng: rng}
	attester := &mockAttester{refuseRate: *refuseRate, rng: rng}
	fed := &mockFederation{failRate: *fedFailRate, rng: rng}
	broker := assistance.NewBroker(assistance.RouteConfig{
		Order: []manifest.AssistanceRoute{manifest.RoutePeerAgent},
	}, nil, []assistance.PeerClient{&stubPeer{}}, nil, log)

	k := kernel.New(
		"fck-sim",
		storage.NewMemory(),
		gate,
		attester,
		fed,
		broker,
		func(manifest.UpdatePackage, []string) bool { return false },
		func(context.Context, manifest.UpdatePackage) (*manifest.CapabilityManifest, error) { return nil, nil },
		kernel.WithLogger(log),
	)

	ctx := context.Background()
	if err := k.Boot(ctx, m); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: kernel boot failed: %v\n", err)
		os.Exit(1)
	}

	tiers := []manifest.RiskTier{manifest.T0Low, manifest.T1Standard, manifest.T2HighStakes, manifest.T3Regulated}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"call", "risk_tier", "ok", "error", "latency_us"})

	var allowed, denied, fedOK, fedFail, assisted int
	for i := 0; i < *calls; i++ {
		tier := tiers[rng.Intn(len(tiers))]
		traceID := fmt.Sprintf("sim-%d", i)

		start := time.Now()
		res, err := k.GovernedFederationCall(ctx, traceID, "sim.echo",
			map[string]frame.Scalar{"i": frame.IntScalar(int64(i))}, tier)
		elapsed := time.Since(start)

		if err != nil {
			fmt.Fprintf(os.Stderr, "call %d: unexpected kernel error: %v\n", i, err)
			continue
		}

		_ = w.Write([]string{
			strconv.Itoa(i),
			string(tier),
			strconv.FormatBool(res.OK),
			res.Error,
			strconv.FormatInt(elapsed.Microseconds(), 10),
		})

		switch {
		case res.OK:
			allowed++
			fedOK++
		case strings.HasPrefix(res.Error, "GOV_DENY"):
			denied++
		default:
			allowed++
			fedFail++
			if containsAssist(res.Error) {
				assisted++
			}
		}
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\n=== SIMULATION SUMMARY ===\n")
	fmt.Fprintf(os.Stderr, "calls:            %d\n", *calls)
	fmt.Fprintf(os.Stderr, "governance ALLOW: %d\n", allowed)
	fmt.Fprintf(os.Stderr, "governance DENY:  %d\n", denied)
	fmt.Fprintf(os.Stderr, "federation OK:     %d\n", fedOK)
	fmt.Fprintf(os.Stderr, "federation FAIL:   %d\n", fedFail)
	fmt.Fprintf(os.Stderr, "assisted on fail:  %d\n", assisted)
}

func containsAssist(errTag string) bool {
	return strings.Contains(errTag, "assist:")
}

// mockGate denies a fixed fraction of frames, regardless of content.
type mockGate struct {
	denyRate float64
	rng      *rand.Rand
}

func (g *mockGate) Evaluate(_ context.Context, _ frame.CanonicalActionFrame) (kernel.GovernanceResult, error) {
	if g.rng.Float64() < g.denyRate {
		return kernel.GovernanceResult{Verdict: kernel.GovernanceDeny, Reason: "SIMULATED_DENY"}, nil
	}
	return kernel.GovernanceResult{Verdict: kernel.GovernanceAllow}, nil
}

// mockAttester refuses a fixed fraction of attestations.
type mockAttester struct {
	refuseRate float64
	rng        *rand.Rand
}

func (a *mockAttester) Attest(_ context.Context, f frame.CanonicalActionFrame) (kernel.AttestationResult, error) {
	if a.rng.Float64() < a.refuseRate {
		return kernel.AttestationResult{Verdict: kernel.AttestationRefused, Reason: "SIMULATED_REFUSE"}, nil
	}
	return kernel.AttestationResult{Verdict: kernel.AttestationAttested, UVAHash: f.Hash()}, nil
}

// mockFederation fails a fixed fraction of requests.
type mockFederation struct {
	failRate float64
	rng      *rand.Rand
}

func (f *mockFederation) Request(_ context.Context, req kernel.FederationRequest) (kernel.FederationResult, error) {
	if f.rng.Float64() < f.failRate {
		return kernel.FederationResult{OK: false, Error: "SIMULATED_FEDERATION_FAILURE"}, nil
	}
	return kernel.FederationResult{OK: true, Result: req.Payload, Source: "sim"}, nil
}

// stubPeer always agrees, so PEER_AGENT assistance-on-failure always
// confirms via quorum in this simulation.
type stubPeer struct{}

func (stubPeer) PeerID() string { return "sim-peer" }
func (stubPeer) Ask(_ context.Context, _, _ string) (string, error) {
	return "ok", nil
}
