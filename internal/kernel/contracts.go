// Package kernel implements the Federated Capability Kernel orchestrator:
// the five-phase pipeline (manifest-gate, frame construction, governance
// evaluation, conditional attestation, effect) shared by its three
// governed entrypoints, plus boot and get_manifest. The kernel holds no
// global state; every collaborator is injected through the narrow
// contracts declared in this file (§6 "External Interfaces").
package kernel

import (
	"context"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

// GovernanceVerdict is ALLOW or DENY.
type GovernanceVerdict string

const (
	GovernanceAllow GovernanceVerdict = "ALLOW"
	GovernanceDeny  GovernanceVerdict = "DENY"
)

// GovernanceResult is returned by GovernanceGate.Evaluate.
type GovernanceResult struct {
	Verdict    GovernanceVerdict
	Reason     string
	PolicyHash string
}

// GovernanceGate evaluates a frame and returns ALLOW/DENY. It must be a
// pure function of the frame plus the evaluator's own pinned policy
// state, and must never mutate kernel state.
type GovernanceGate interface {
	Evaluate(ctx context.Context, f frame.CanonicalActionFrame) (GovernanceResult, error)
}

// AttestationVerdict is ATTESTED or REFUSED.
type AttestationVerdict string

const (
	AttestationAttested AttestationVerdict = "ATTESTED"
	AttestationRefused  AttestationVerdict = "REFUSED"
)

// AttestationResult is returned by AttestationClient.Attest.
type AttestationResult struct {
	Verdict AttestationVerdict
	UVAHash string
	Reason  string
}

// AttestationClient attests a frame after governance ALLOW, returning an
// opaque uva_hash on success. It may only be invoked from inside the
// kernel pipeline.
type AttestationClient interface {
	Attest(ctx context.Context, f frame.CanonicalActionFrame) (AttestationResult, error)
}

// FederationRequest is the argument shape for FederationClient.Request.
type FederationRequest struct {
	TraceID  string
	AgentID  string
	Operation string
	Payload  map[string]frame.Scalar
	RiskTier manifest.RiskTier
}

// FederationResult is returned by FederationClient.Request.
type FederationResult struct {
	OK     bool
	Result map[string]frame.Scalar
	Error  string
	Source string
}

// FederationClient executes a remote operation after the kernel clears
// it. Transport-agnostic: the kernel guarantees the caller's risk_tier
// matches the frame's.
type FederationClient interface {
	Request(ctx context.Context, req FederationRequest) (FederationResult, error)
}

// AssistanceRequest is the argument shape for AssistanceBroker.RequestAssistance.
type AssistanceRequest struct {
	TraceID  string
	AgentID  string
	Query    string
	Context  map[string]frame.Scalar
	RiskTier manifest.RiskTier

	// AllowedRoutes is the booted manifest's assistance.routes at the
	// time of the request — the kernel's enforcement of which routes
	// this agent may use. A Broker must not attempt a route absent from
	// this list, regardless of its own RouteConfig.Order.
	AllowedRoutes []manifest.AssistanceRoute
}

// AssistanceResult is returned by AssistanceBroker.RequestAssistance.
type AssistanceResult struct {
	OK        bool
	Response  string
	RouteUsed manifest.AssistanceRoute
	Error     string
}

// AssistanceBroker routes help requests to federation, peer, or human
// escalation.
type AssistanceBroker interface {
	RequestAssistance(ctx context.Context, req AssistanceRequest) (AssistanceResult, error)
}

// StorageAdapter is a key-value contract over durable storage; value
// bytes are opaque to storage.
type StorageAdapter interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// SignatureVerifier is the injected, side-effect-free update-time
// callback invoked when updates.require_signature is true. It must be
// pure with respect to kernel state.
type SignatureVerifier func(pkg manifest.UpdatePackage, trustedSigners []string) bool

// BundleApplier is the injected update-time callback that integrates an
// UpdatePackage. The kernel never interprets the payload itself. The
// returned manifest is non-nil only when the package replaced the
// CapabilityManifest (a CONFIG_BUNDLE); ApplyUpdatePackage swaps it into
// kernel state before re-deriving last_manifest_hash. Channels that don't
// replace the manifest (e.g. SKILL_CAPSULE) return a nil manifest.
type BundleApplier func(ctx context.Context, pkg manifest.UpdatePackage) (*manifest.CapabilityManifest, error)
