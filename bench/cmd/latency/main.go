// Package bench — latency/main.go
//
// Kernel pipeline latency measurement tool.
//
// Measures wall-clock latency of the five-phase pipeline (manifest-gate,
// frame construction, governance evaluation, conditional attestation,
// effect) for governed_federation_call and request_assistance, plus the
// get_manifest read path (apply_update_package is not measured), run
// against an in-memory kernel wired to zero-latency mock collaborators — so the
// measured time is the kernel orchestration overhead itself, not a
// network round-trip or disk write.
//
// Method:
//  1. Boot a *kernel.Kernel with storage.Memory and mock collaborators
//     whose Evaluate/Attest/Request calls are pure CPU, no I/O.
//  2. Time N consecutive calls per entrypoint with
//     time.Now()/time.Since() around each call.
//  3. Write per-call CSV and report p50/p95/p99 per entrypoint.
//
// Output CSV columns: entrypoint, iteration, latency_us
//
// Exit 1 if any entrypoint's p99 exceeds -target-p99-us (default 500µs).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/assistance"
	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Number of calls to measure per entrypoint")
	outputFile := flag.String("output", "pipeline_latency.csv", "Output CSV file path")
	targetP99Us := flag.Int64("target-p99-us", 500, "p99 latency budget in microseconds; exceeding it fails the run")
	flag.Parse()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"entrypoint", "iteration", "latency_us"})

	k, ctx := buildKernel()

	results := map[string][]int64{
		"governed_federation_call": measure(*iterations, func(i int) {
			_, _ = k.GovernedFederationCall(ctx, fmt.Sprintf("bench-%d", i), "bench.echo",
				map[string]frame.Scalar{"i": frame.IntScalar(int64(i))}, manifest.T1Standard)
		}),
		"request_assistance": measure(*iterations, func(i int) {
			_, _ = k.RequestAssistance(ctx, fmt.Sprintf("bench-assist-%d", i), "bench query", manifest.T1Standard)
		}),
		"get_manifest": measure(*iterations, func(i int) {
			_, _ = k.GetManifest()
		}),
	}

	entrypoints := make([]string, 0, len(results))
	for name := range results {
		entrypoints = append(entrypoints, name)
	}
	sort.Strings(entrypoints)

	var worstP99 int64
	for _, name := range entrypoints {
		lats := results[name]
		for i, us := range lats {
			_ = w.Write([]string{name, strconv.Itoa(i), strconv.FormatInt(us, 10)})
		}
		p50, p95, p99 := percentiles(lats)
		fmt.Printf("%s (%d calls)\n", name, len(lats))
		fmt.Printf("  p50: %dus  p95: %dus  p99: %dus\n", p50, p95, p99)
		if p99 > worstP99 {
			worstP99 = p99
		}
	}
	fmt.Printf("Output: %s\n", *outputFile)

	if worstP99 > *targetP99Us {
		fmt.Fprintf(os.Stderr, "FAIL: worst p99 %dus exceeds %dus target\n", worstP99, *targetP99Us)
		os.Exit(1)
	}
}

func measure(iterations int, call func(i int)) []int64 {
	lats := make([]int64, iterations)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		call(i)
		lats[i] = time.Since(start).Microseconds()
	}
	return lats
}

func percentiles(lats []int64) (p50, p95, p99 int64) {
	sorted := append([]int64(nil), lats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	return at(sorted, 0.50), at(sorted, 0.95), at(sorted, 0.99)
}

func at(sorted []int64, pct float64) int64 {
	idx := int(pct * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// buildKernel constructs a booted kernel with zero-I/O mock
// collaborators so measured latency reflects orchestration overhead
// only.
func buildKernel() (*kernel.Kernel, context.Context) {
	log := zap.NewNop()
	m := manifest.CapabilityManifest{
		SchemaVersion: manifest.SchemaVersion,
		AgentID:       "fck-bench",
		Federation: manifest.FederationConfig{
			Enabled:           true,
			AllowedOperations: []string{"bench.echo"},
		},
		Assistance: manifest.AssistanceConfig{
			Enabled:     true,
			Routes:      []manifest.AssistanceRoute{manifest.RoutePeerAgent},
			MaxAttempts: 1 << 30,
		},
		Governance: manifest.GovernanceConfig{SDCVersion: "bench-1"},
	}

	broker := assistance.NewBroker(assistance.RouteConfig{
		Order: []manifest.AssistanceRoute{manifest.RoutePeerAgent},
	}, nil, []assistance.PeerClient{&echoPeer{}}, nil, log)

	k := kernel.New(
		"fck-bench",
		storage.NewMemory(),
		noopGate{},
		noopAttester{},
		echoFederation{},
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
	return k, ctx
}

type noopGate struct{}

func (noopGate) Evaluate(_ context.Context, _ frame.CanonicalActionFrame) (kernel.GovernanceResult, error) {
	return kernel.GovernanceResult{Verdict: kernel.GovernanceAllow}, nil
}

type noopAttester struct{}

func (noopAttester) Attest(_ context.Context, f frame.CanonicalActionFrame) (kernel.AttestationResult, error) {
	return kernel.AttestationResult{Verdict: kernel.AttestationAttested, UVAHash: f.Hash()}, nil
}

type echoFederation struct{}

func (echoFederation) Request(_ context.Context, req kernel.FederationRequest) (kernel.FederationResult, error) {
	return kernel.FederationResult{OK: true, Result: req.Payload, Source: "bench"}, nil
}

type echoPeer struct{}

func (echoPeer) PeerID() string { return "bench-peer" }
func (echoPeer) Ask(_ context.Context, _, _ string) (string, error) {
	return "ok", nil
}
