package frame

import (
	"strings"

	"github.com/acip-dev/fck/internal/manifest"
)

// HashAlgorithm is the fixed literal every frame carries.
const HashAlgorithm = "SHA-256"

// CanonicalActionFrame is the atomic unit of auditable intent. It is
// the sole input to governance and attestation; no side-channel may
// influence the verdict. A frame is valid only if all scalar fields
// are set (see Validate).
type CanonicalActionFrame struct {
	ActionID             string            `json:"action_id"`
	AgentID              string            `json:"agent_id"`
	RiskTier             manifest.RiskTier `json:"risk_tier"`
	SDCVersion           string            `json:"sdc_version"`
	PolicyVerdict        bool              `json:"policy_verdict"`
	ConstraintsSatisfied bool              `json:"constraints_satisfied"`
	HumanConfirmation    bool              `json:"human_confirmation"`
	TimestampUTC         string            `json:"timestamp_utc"`
	HashAlgorithm        string            `json:"hash_algorithm"`
	Extensions           Extensions        `json:"extensions,omitempty"`
}

// Validate reports whether every scalar field required by §3 is set.
func (f CanonicalActionFrame) Validate() error {
	switch {
	case f.ActionID == "":
		return errMissing("action_id")
	case f.AgentID == "":
		return errMissing("agent_id")
	case !f.RiskTier.Valid():
		return errMissing("risk_tier")
	case f.SDCVersion == "":
		return errMissing("sdc_version")
	case f.TimestampUTC == "":
		return errMissing("timestamp_utc")
	case f.HashAlgorithm != HashAlgorithm:
		return errMissing("hash_algorithm")
	}
	return nil
}

type missingFieldError string

func (e missingFieldError) Error() string {
	return "frame: missing or invalid required field: " + string(e)
}

func errMissing(field string) error { return missingFieldError(field) }

// Canonical renders f as the canonical JSON-like serialization defined
// in §4.1: lexicographic key order, fixed scalar forms, no whitespace.
func (f CanonicalActionFrame) Canonical() string {
	var sb strings.Builder
	sb.WriteByte('{')

	sb.WriteString(`"action_id":`)
	encodeCanonicalString(&sb, f.ActionID)
	sb.WriteByte(',')

	sb.WriteString(`"agent_id":`)
	encodeCanonicalString(&sb, f.AgentID)
	sb.WriteByte(',')

	sb.WriteString(`"constraints_satisfied":`)
	encodeBool(&sb, f.ConstraintsSatisfied)
	sb.WriteByte(',')

	if len(f.Extensions) > 0 {
		sb.WriteString(`"extensions":`)
		f.Extensions.canonicalEncode(&sb)
		sb.WriteByte(',')
	}

	sb.WriteString(`"hash_algorithm":`)
	encodeCanonicalString(&sb, f.HashAlgorithm)
	sb.WriteByte(',')

	sb.WriteString(`"human_confirmation":`)
	encodeBool(&sb, f.HumanConfirmation)
	sb.WriteByte(',')

	sb.WriteString(`"policy_verdict":`)
	encodeBool(&sb, f.PolicyVerdict)
	sb.WriteByte(',')

	sb.WriteString(`"risk_tier":`)
	encodeCanonicalString(&sb, string(f.RiskTier))
	sb.WriteByte(',')

	sb.WriteString(`"sdc_version":`)
	encodeCanonicalString(&sb, f.SDCVersion)
	sb.WriteByte(',')

	sb.WriteString(`"timestamp_utc":`)
	encodeCanonicalString(&sb, f.TimestampUTC)

	sb.WriteByte('}')
	return sb.String()
}

func encodeBool(sb *strings.Builder, b bool) {
	if b {
		sb.WriteString("true")
	} else {
		sb.WriteString("false")
	}
}

// Hash returns the lowercase hex SHA-256 digest of f's canonical
// serialization — the "input_frame_hash" surfaced throughout §4.
func (f CanonicalActionFrame) Hash() string {
	return sha256Hex(f.Canonical())
}

// CanonicalManifest renders a CapabilityManifest in the same canonical
// form, for PersistedKernelState.LastManifestHash computation.
func CanonicalManifest(m manifest.CapabilityManifest) string {
	var sb strings.Builder
	sb.WriteByte('{')

	sb.WriteString(`"agent_id":`)
	encodeCanonicalString(&sb, m.AgentID)
	sb.WriteByte(',')

	sb.WriteString(`"assistance":`)
	encodeAssistance(&sb, m.Assistance)
	sb.WriteByte(',')

	sb.WriteString(`"federation":`)
	encodeFederation(&sb, m.Federation)
	sb.WriteByte(',')

	sb.WriteString(`"governance":`)
	encodeGovernance(&sb, m.Governance)
	sb.WriteByte(',')

	sb.WriteString(`"schema_version":`)
	encodeCanonicalString(&sb, m.SchemaVersion)
	sb.WriteByte(',')

	sb.WriteString(`"updates":`)
	encodeUpdates(&sb, m.Updates)

	sb.WriteByte('}')
	return sb.String()
}

// ManifestHash returns sha256_hex(canonical(manifest)), the value
// PersistedKernelState.LastManifestHash must equal after every
// successful boot or update apply (§8 "State monotonicity").
func ManifestHash(m manifest.CapabilityManifest) string {
	return sha256Hex(CanonicalManifest(m))
}

func encodeStringSlice(sb *strings.Builder, keyOrdered []string) {
	sorted := append([]string(nil), keyOrdered...)
	// Sequences preserve input order (§4.1 rule 3) — do NOT sort;
	// manifest string slices are already authoritative lists, not
	// unordered sets, so we emit them as given.
	_ = sorted
	sb.WriteByte('[')
	for i, s := range keyOrdered {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeCanonicalString(sb, s)
	}
	sb.WriteByte(']')
}

func encodeFederation(sb *strings.Builder, f manifest.FederationConfig) {
	sb.WriteByte('{')
	sb.WriteString(`"allowed_operations":`)
	encodeStringSlice(sb, f.AllowedOperations)
	sb.WriteByte(',')
	sb.WriteString(`"enabled":`)
	encodeBool(sb, f.Enabled)
	sb.WriteByte(',')
	sb.WriteString(`"sources":`)
	encodeStringSlice(sb, f.Sources)
	sb.WriteByte('}')
}

func encodeAssistance(sb *strings.Builder, a manifest.AssistanceConfig) {
	routes := make([]string, len(a.Routes))
	for i, r := range a.Routes {
		routes[i] = string(r)
	}
	sb.WriteByte('{')
	sb.WriteString(`"enabled":`)
	encodeBool(sb, a.Enabled)
	sb.WriteByte(',')
	sb.WriteString(`"max_attempts":`)
	sb.WriteString(itoa(a.MaxAttempts))
	sb.WriteByte(',')
	sb.WriteString(`"routes":`)
	encodeStringSlice(sb, routes)
	sb.WriteByte('}')
}

func encodeUpdates(sb *strings.Builder, u manifest.UpdatesConfig) {
	channels := make([]string, len(u.AllowedChannels))
	for i, c := range u.AllowedChannels {
		channels[i] = string(c)
	}
	tiers := make([]string, len(u.RequireDVAPForRiskTiers))
	for i, t := range u.RequireDVAPForRiskTiers {
		tiers[i] = string(t)
	}
	sb.WriteByte('{')
	sb.WriteString(`"allowed_channels":`)
	encodeStringSlice(sb, channels)
	sb.WriteByte(',')
	sb.WriteString(`"enabled":`)
	encodeBool(sb, u.Enabled)
	sb.WriteByte(',')
	sb.WriteString(`"require_dvap_for_risk_tiers":`)
	encodeStringSlice(sb, tiers)
	sb.WriteByte(',')
	sb.WriteString(`"require_governance_approval":`)
	encodeBool(sb, u.RequireGovernanceApprove)
	sb.WriteByte(',')
	sb.WriteString(`"require_signature":`)
	encodeBool(sb, u.RequireSignature)
	sb.WriteByte(',')
	sb.WriteString(`"trusted_signers":`)
	encodeStringSlice(sb, u.TrustedSigners)
	sb.WriteByte('}')
}

func encodeGovernance(sb *strings.Builder, g manifest.GovernanceConfig) {
	tiers := make([]string, len(g.DVAPRequiredRiskTiers))
	for i, t := range g.DVAPRequiredRiskTiers {
		tiers[i] = string(t)
	}
	sb.WriteByte('{')
	sb.WriteString(`"dvap_required_for_risk_tiers":`)
	encodeStringSlice(sb, tiers)
	sb.WriteByte(',')
	sb.WriteString(`"invariant_keys_required":`)
	encodeStringSlice(sb, g.InvariantKeysRequired)
	sb.WriteByte(',')
	sb.WriteString(`"sdc_version":`)
	encodeCanonicalString(sb, g.SDCVersion)
	sb.WriteByte('}')
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
