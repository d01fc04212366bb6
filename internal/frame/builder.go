package frame

import (
	"github.com/acip-dev/fck/internal/manifest"
)

// ActionIDForAssistance derives the content-addressed action_id for a
// request_assistance frame per §4.4: "assist_" + first12HexChars(SHA256(trace_id || query)).
func ActionIDForAssistance(traceID, query string) string {
	return "assist_" + First12Hex(traceID+query)
}

// ActionIDForUpdate derives the action_id for an apply_update_package
// frame per §4.5: "update_" + package_id.
func ActionIDForUpdate(packageID string) string {
	return "update_" + packageID
}

// FederationCallFrame builds the frame for a governed_federation_call,
// per §4.3: built with timestamp_utc = now(), policy_verdict and
// human_confirmation not yet known (the kernel sets them with
// ApplyVerdict after governance ALLOW),
// constraints_satisfied asserted true by the kernel prior to gating
// since federation.enabled/allowed_operations were already checked.
func FederationCallFrame(actionID, agentID string, tier manifest.RiskTier, sdcVersion string, extensions Extensions) CanonicalActionFrame {
	return CanonicalActionFrame{
		ActionID:             actionID,
		AgentID:              agentID,
		RiskTier:             tier,
		SDCVersion:           sdcVersion,
		PolicyVerdict:        false,
		ConstraintsSatisfied: true,
		HumanConfirmation:    false,
		TimestampUTC:         manifest.NowUTC(),
		HashAlgorithm:        HashAlgorithm,
		Extensions:           extensions,
	}
}

// AssistanceFrame builds the frame for a request_assistance call,
// content-addressed per §4.4.
func AssistanceFrame(agentID string, tier manifest.RiskTier, sdcVersion, traceID, query string) CanonicalActionFrame {
	return CanonicalActionFrame{
		ActionID:             ActionIDForAssistance(traceID, query),
		AgentID:              agentID,
		RiskTier:             tier,
		SDCVersion:           sdcVersion,
		PolicyVerdict:        false,
		ConstraintsSatisfied: true,
		HumanConfirmation:    false,
		TimestampUTC:         manifest.NowUTC(),
		HashAlgorithm:        HashAlgorithm,
	}
}

// UpdateFrame builds the frame for apply_update_package per §4.5: its
// extensions record {channel, version, signer} — audit-relevant values
// hashed into the frame.
func UpdateFrame(agentID string, tier manifest.RiskTier, sdcVersion, packageID string, channel manifest.UpdateChannel, version, signerID string) CanonicalActionFrame {
	ext := Extensions{
		"channel": StringScalar(string(channel)),
		"version": StringScalar(version),
		"signer":  StringScalar(signerID),
	}
	return CanonicalActionFrame{
		ActionID:             ActionIDForUpdate(packageID),
		AgentID:              agentID,
		RiskTier:             tier,
		SDCVersion:           sdcVersion,
		PolicyVerdict:        false,
		ConstraintsSatisfied: true,
		HumanConfirmation:    false,
		TimestampUTC:         manifest.NowUTC(),
		HashAlgorithm:        HashAlgorithm,
		Extensions:           ext,
	}
}

// ApplyVerdict returns a copy of f with policy_verdict and
// human_confirmation set from a governance/attestation outcome. f itself
// is not modified. The kernel calls this right after governance ALLOW
// and takes input_frame_hash from the returned frame, so that hash (and
// the frame handed to attestation) covers policy_verdict=true.
func (f CanonicalActionFrame) ApplyVerdict(policyVerdict, humanConfirmation bool) CanonicalActionFrame {
	f.PolicyVerdict = policyVerdict
	f.HumanConfirmation = humanConfirmation
	return f
}
