package kernel

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/manifest"
)

// Kernel is a single stateful object parameterized by an agent_id and
// wired to the collaborator capabilities declared in contracts.go. Every
// entrypoint runs to logical completion before another mutation of
// PersistedKernelState is allowed: state mutations are linearized with
// mu, matching §5's single-owner, cooperatively scheduled model.
type Kernel struct {
	mu sync.Mutex

	agentID string
	logger  *zap.Logger

	storage     StorageAdapter
	governance  GovernanceGate
	attestation AttestationClient
	federation  FederationClient
	assistance  AssistanceBroker

	verifySignature SignatureVerifier
	applyBundle     BundleApplier

	state manifest.PersistedKernelState
	booted bool

	// assistAttempts tracks per-trace assistance attempts so
	// manifest.assistance.max_attempts can be enforced rather than left
	// purely advisory (§9 open question, resolved — see DESIGN.md).
	assistAttempts map[string]int
}

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) { k.logger = logger }
}

// New constructs a Kernel for agentID. All six collaborators plus the
// two update-time callbacks must be non-nil; New panics on a nil
// collaborator since that is a wiring bug, not a runtime condition.
func New(
	agentID string,
	storage StorageAdapter,
	governance GovernanceGate,
	attestation AttestationClient,
	federation FederationClient,
	assistance AssistanceBroker,
	verifySignature SignatureVerifier,
	applyBundle BundleApplier,
	opts ...Option,
) *Kernel {
	if agentID == "" {
		panic("kernel: agentID must not be empty")
	}
	mustNonNil(storage, "storage")
	mustNonNil(governance, "governance")
	mustNonNil(attestation, "attestation")
	mustNonNil(federation, "federation")
	mustNonNil(assistance, "assistance")
	if verifySignature == nil {
		panic("kernel: verifySignature must not be nil")
	}
	if applyBundle == nil {
		panic("kernel: applyBundle must not be nil")
	}

	k := &Kernel{
		agentID:         agentID,
		logger:          zap.NewNop(),
		storage:         storage,
		governance:      governance,
		attestation:     attestation,
		federation:      federation,
		assistance:      assistance,
		verifySignature: verifySignature,
		applyBundle:     applyBundle,
		assistAttempts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func mustNonNil(v interface{}, name string) {
	if v == nil {
		panic(fmt.Sprintf("kernel: %s collaborator must not be nil", name))
	}
}

// AgentID returns the kernel's bound agent identifier.
func (k *Kernel) AgentID() string { return k.agentID }

// GetManifest returns a copy of the currently loaded manifest. It
// requires a prior successful Boot; otherwise it returns false.
func (k *Kernel) GetManifest() (manifest.CapabilityManifest, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.booted {
		return manifest.CapabilityManifest{}, false
	}
	return k.state.Manifest, true
}

// MonotonicCounter returns the current value of the persisted state's
// monotonic_counter, or 0 if the kernel has not booted. Exposed for the
// operator socket's boot response and for metrics sampling.
func (k *Kernel) MonotonicCounter() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.booted {
		return 0
	}
	return k.state.MonotonicCounter
}

// storageKey returns the canonical storage key for this kernel's state,
// per §6: "acip.kernel.state.<agent_id>".
func (k *Kernel) storageKey() string {
	return "acip.kernel.state." + k.agentID
}

// allAssistanceRoutes enumerates every route the schema recognizes, for
// filtering through CapabilityManifest.AllowsRoute.
var allAssistanceRoutes = []manifest.AssistanceRoute{
	manifest.RouteFederation,
	manifest.RoutePeerAgent,
	manifest.RouteHumanEscalation,
}

// allowedAssistanceRoutes reports the subset of routes m permits, per
// assistance.routes. This is the gate the AssistanceBroker is required
// to honor: a route missing from the result must not be attempted
// regardless of how the broker's own RouteConfig is wired.
func allowedAssistanceRoutes(m manifest.CapabilityManifest) []manifest.AssistanceRoute {
	allowed := make([]manifest.AssistanceRoute, 0, len(allAssistanceRoutes))
	for _, r := range allAssistanceRoutes {
		if m.AllowsRoute(r) {
			allowed = append(allowed, r)
		}
	}
	return allowed
}
