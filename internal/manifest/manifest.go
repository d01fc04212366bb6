// Package manifest defines the Federated Capability Kernel's pinned
// capability declarations: the RiskTier tag set, the CapabilityManifest
// schema, and strict loading semantics that reject unknown fields to
// prevent silent capability drift.
package manifest

import (
	"fmt"
)

// RiskTier is a membership-only tag. It is never numerically ordered or
// compared with <, >, <=, >= — only set membership tests are valid.
type RiskTier string

const (
	T0Low         RiskTier = "T0_LOW"
	T1Standard    RiskTier = "T1_STANDARD"
	T2HighStakes  RiskTier = "T2_HIGH_STAKES"
	T3Regulated   RiskTier = "T3_REGULATED"
)

// validRiskTiers is the closed membership set for RiskTier validation.
var validRiskTiers = map[RiskTier]bool{
	T0Low:        true,
	T1Standard:   true,
	T2HighStakes: true,
	T3Regulated:  true,
}

// Valid reports whether t is one of the four recognized tiers.
func (t RiskTier) Valid() bool {
	return validRiskTiers[t]
}

// In reports whether t is a member of set. This is the only comparison
// form RiskTier ever participates in — callers must never treat tiers
// as an ordered scale.
func (t RiskTier) In(set map[RiskTier]bool) bool {
	return set[t]
}

// RiskTierSet builds a membership set from a list of tiers, for use in
// manifest fields like dvap_required_for_risk_tiers.
func RiskTierSet(tiers ...RiskTier) map[RiskTier]bool {
	s := make(map[RiskTier]bool, len(tiers))
	for _, t := range tiers {
		s[t] = true
	}
	return s
}

// AssistanceRoute is one of the three assistance dispatch targets.
type AssistanceRoute string

const (
	RouteFederation      AssistanceRoute = "FEDERATION"
	RoutePeerAgent       AssistanceRoute = "PEER_AGENT"
	RouteHumanEscalation AssistanceRoute = "HUMAN_ESCALATION"
)

var validRoutes = map[AssistanceRoute]bool{
	RouteFederation:      true,
	RoutePeerAgent:       true,
	RouteHumanEscalation: true,
}

// UpdateChannel is one of the two allowed update-package channels.
type UpdateChannel string

const (
	ChannelSkillCapsule UpdateChannel = "SKILL_CAPSULE"
	ChannelConfigBundle UpdateChannel = "CONFIG_BUNDLE"
)

var validChannels = map[UpdateChannel]bool{
	ChannelSkillCapsule: true,
	ChannelConfigBundle: true,
}

// SchemaVersion is the only manifest schema version the kernel accepts.
const SchemaVersion = "1.0.0"

// FederationConfig gates outbound federation calls.
type FederationConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	Sources           []string `yaml:"sources" json:"sources"`
	AllowedOperations []string `yaml:"allowed_operations" json:"allowed_operations"`
}

func (f FederationConfig) allows(op string) bool {
	for _, o := range f.AllowedOperations {
		if o == op {
			return true
		}
	}
	return false
}

// AssistanceConfig gates request_assistance and bounded assistance-on-failure.
type AssistanceConfig struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Routes      []AssistanceRoute `yaml:"routes" json:"routes"`
	MaxAttempts int               `yaml:"max_attempts" json:"max_attempts"`
}

func (a AssistanceConfig) allowsRoute(r AssistanceRoute) bool {
	for _, rr := range a.Routes {
		if rr == r {
			return true
		}
	}
	return false
}

// UpdatesConfig gates apply_update_package.
type UpdatesConfig struct {
	Enabled                  bool            `yaml:"enabled" json:"enabled"`
	AllowedChannels          []UpdateChannel `yaml:"allowed_channels" json:"allowed_channels"`
	RequireSignature         bool            `yaml:"require_signature" json:"require_signature"`
	RequireGovernanceApprove bool            `yaml:"require_governance_approval" json:"require_governance_approval"`
	RequireDVAPForRiskTiers  []RiskTier      `yaml:"require_dvap_for_risk_tiers" json:"require_dvap_for_risk_tiers"`
	TrustedSigners           []string        `yaml:"trusted_signers" json:"trusted_signers"`
}

func (u UpdatesConfig) allowsChannel(c UpdateChannel) bool {
	for _, cc := range u.AllowedChannels {
		if cc == c {
			return true
		}
	}
	return false
}

// RequiresDVAP reports whether tier requires attestation for updates.
func (u UpdatesConfig) RequiresDVAP(tier RiskTier) bool {
	for _, t := range u.RequireDVAPForRiskTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// GovernanceConfig carries the policy version and invariant expectations.
// The kernel stamps SDCVersion into every frame it builds and uses
// DVAPRequiredRiskTiers to decide when to attest; cmd/fckd passes
// SDCVersion and InvariantKeysRequired to the governance gate when it
// constructs it, and the gate then holds them as its pinned policy.
type GovernanceConfig struct {
	SDCVersion             string     `yaml:"sdc_version" json:"sdc_version"`
	InvariantKeysRequired  []string   `yaml:"invariant_keys_required" json:"invariant_keys_required"`
	DVAPRequiredRiskTiers  []RiskTier `yaml:"dvap_required_for_risk_tiers" json:"dvap_required_for_risk_tiers"`
}

// RequiresDVAP reports whether tier requires attestation for federation
// calls and assistance requests under §4.3/§4.4.
func (g GovernanceConfig) RequiresDVAP(tier RiskTier) bool {
	for _, t := range g.DVAPRequiredRiskTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// CapabilityManifest is the pinned, schema-versioned declaration of what
// an agent may do. Unknown fields are rejected at load time (see LoadStrict)
// to prevent silent capability drift.
type CapabilityManifest struct {
	SchemaVersion string           `yaml:"schema_version" json:"schema_version"`
	AgentID       string           `yaml:"agent_id" json:"agent_id"`
	Federation    FederationConfig `yaml:"federation" json:"federation"`
	Assistance    AssistanceConfig `yaml:"assistance" json:"assistance"`
	Updates       UpdatesConfig    `yaml:"updates" json:"updates"`
	Governance    GovernanceConfig `yaml:"governance" json:"governance"`
}

// AllowsOperation reports whether op is in federation.allowed_operations.
func (m CapabilityManifest) AllowsOperation(op string) bool {
	return m.Federation.allows(op)
}

// AllowsRoute reports whether route is in assistance.routes.
func (m CapabilityManifest) AllowsRoute(route AssistanceRoute) bool {
	return m.Assistance.allowsRoute(route)
}

// AllowsChannel reports whether channel is in updates.allowed_channels.
func (m CapabilityManifest) AllowsChannel(channel UpdateChannel) bool {
	return m.Updates.allowsChannel(channel)
}

// Validate performs strict structural validation. It rejects manifests
// with the wrong schema version, malformed risk tiers, unrecognized
// assistance routes, or unrecognized update channels. It does not check
// agent_id agreement with a kernel instance — that is boot's job, since
// only boot knows the constructor's agent_id and must treat a mismatch
// as fatal rather than a load-time validation error.
func (m CapabilityManifest) Validate() error {
	if m.SchemaVersion != SchemaVersion {
		return fmt.Errorf("manifest: unsupported schema_version %q, want %q", m.SchemaVersion, SchemaVersion)
	}
	if m.AgentID == "" {
		return fmt.Errorf("manifest: agent_id must not be empty")
	}
	for _, r := range m.Assistance.Routes {
		if !validRoutes[r] {
			return fmt.Errorf("manifest: assistance.routes contains unrecognized route %q", r)
		}
	}
	if m.Assistance.Enabled && m.Assistance.MaxAttempts <= 0 {
		return fmt.Errorf("manifest: assistance.max_attempts must be positive when assistance is enabled")
	}
	for _, c := range m.Updates.AllowedChannels {
		if !validChannels[c] {
			return fmt.Errorf("manifest: updates.allowed_channels contains unrecognized channel %q", c)
		}
	}
	for _, t := range m.Updates.RequireDVAPForRiskTiers {
		if !t.Valid() {
			return fmt.Errorf("manifest: updates.require_dvap_for_risk_tiers contains unrecognized tier %q", t)
		}
	}
	for _, t := range m.Governance.DVAPRequiredRiskTiers {
		if !t.Valid() {
			return fmt.Errorf("manifest: governance.dvap_required_for_risk_tiers contains unrecognized tier %q", t)
		}
	}
	return nil
}
