package kernel

import (
	"context"
	"fmt"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

// AssistanceResultExternal is the outcome of RequestAssistance.
type AssistanceResultExternal struct {
	OK             bool
	Response       string
	RouteUsed      manifest.AssistanceRoute
	Error          string
	InputFrameHash string
	UVAHash        string
}

// RequestAssistance is the governed_assistance entrypoint of §4.4: an
// explicit request for help by the agent, not triggered by a failure.
// It follows the same five-phase pipeline as §4.3 but the effect is
// assistance.request_assistance, and its frame's action_id is derived
// deterministically from trace_id and query, making assistance frames
// content-addressed.
//
// This implementation resolves the §9 open question by enforcing
// assistance.max_attempts per (agent_id, trace_id): once a trace has
// exhausted its attempt budget, further requests on that trace fail
// with ASSISTANCE_DISABLED:MAX_ATTEMPTS_EXCEEDED before governance is
// consulted. See DESIGN.md for the rationale.
func (k *Kernel) RequestAssistance(ctx context.Context, traceID, query string, riskTier manifest.RiskTier) (AssistanceResultExternal, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.booted {
		return AssistanceResultExternal{}, fmt.Errorf("kernel: not booted")
	}
	m := k.state.Manifest

	if !m.Assistance.Enabled {
		return AssistanceResultExternal{Error: tag(ErrAssistanceDisabled, "")}, nil
	}

	attemptKey := k.agentID + "|" + traceID
	attempts := k.assistAttempts[attemptKey]
	if attempts >= m.Assistance.MaxAttempts {
		return AssistanceResultExternal{Error: tag(ErrAssistanceDisabled, "MAX_ATTEMPTS_EXCEEDED")}, nil
	}

	f := frame.AssistanceFrame(k.agentID, riskTier, m.Governance.SDCVersion, traceID, query)

	govResult, err := k.governance.Evaluate(ctx, f)
	if err != nil {
		return AssistanceResultExternal{}, err
	}
	if govResult.Verdict == GovernanceDeny {
		return AssistanceResultExternal{Error: tag(ErrGovDeny, govResult.Reason)}, nil
	}
	f = f.ApplyVerdict(true, false)
	inputFrameHash := f.Hash()

	var uvaHash string
	if m.Governance.RequiresDVAP(riskTier) {
		attResult, err := k.attestation.Attest(ctx, f)
		if err != nil {
			return AssistanceResultExternal{}, err
		}
		if attResult.Verdict != AttestationAttested {
			return AssistanceResultExternal{
				Error:          tag(ErrDVAPRefused, attResult.Reason),
				InputFrameHash: inputFrameHash,
			}, nil
		}
		uvaHash = attResult.UVAHash
	}

	k.assistAttempts[attemptKey] = attempts + 1

	result, err := k.assistance.RequestAssistance(ctx, AssistanceRequest{
		TraceID:       traceID,
		AgentID:       k.agentID,
		Query:         query,
		RiskTier:      riskTier,
		AllowedRoutes: allowedAssistanceRoutes(m),
	})
	if err != nil {
		return AssistanceResultExternal{}, err
	}
	if !result.OK {
		return AssistanceResultExternal{
			Error:          tag(ErrFederationError, result.Error),
			InputFrameHash: inputFrameHash,
		}, nil
	}

	return AssistanceResultExternal{
		OK:             true,
		Response:       result.Response,
		RouteUsed:      result.RouteUsed,
		InputFrameHash: inputFrameHash,
		UVAHash:        uvaHash,
	}, nil
}
