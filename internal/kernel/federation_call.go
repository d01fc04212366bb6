package kernel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

// FederationCallResult is the outcome of GovernedFederationCall.
type FederationCallResult struct {
	OK             bool
	Result         map[string]frame.Scalar
	Error          string
	InputFrameHash string
	UVAHash        string
	Source         string
}

// GovernedFederationCall executes the five-phase pipeline for a remote
// operation under §4.3. Every precondition short-circuits with a
// specific error tag; on federation failure it attempts bounded
// assistance (§4.6) before reporting the original error.
func (k *Kernel) GovernedFederationCall(ctx context.Context, traceID, operation string, payload map[string]frame.Scalar, riskTier manifest.RiskTier) (FederationCallResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.booted {
		return FederationCallResult{}, fmt.Errorf("kernel: not booted")
	}
	m := k.state.Manifest

	if !m.Federation.Enabled {
		return FederationCallResult{Error: tag(ErrFederationDisabled, "")}, nil
	}
	if !m.AllowsOperation(operation) {
		return FederationCallResult{Error: tag(ErrOpNotAllowed, operation)}, nil
	}

	f := frame.FederationCallFrame(actionIDForCall(traceID, operation), k.agentID, riskTier, m.Governance.SDCVersion, extensionsFromPayload(payload))

	govResult, err := k.governance.Evaluate(ctx, f)
	if err != nil {
		return FederationCallResult{}, err
	}
	if govResult.Verdict == GovernanceDeny {
		return FederationCallResult{Error: tag(ErrGovDeny, govResult.Reason)}, nil
	}
	f = f.ApplyVerdict(true, false)
	inputFrameHash := f.Hash()

	var uvaHash string
	if m.Governance.RequiresDVAP(riskTier) {
		attResult, err := k.attestation.Attest(ctx, f)
		if err != nil {
			return FederationCallResult{}, err
		}
		if attResult.Verdict != AttestationAttested {
			return FederationCallResult{
				Error:          tag(ErrDVAPRefused, attResult.Reason),
				InputFrameHash: inputFrameHash,
			}, nil
		}
		uvaHash = attResult.UVAHash
	}

	fedResult, err := k.federation.Request(ctx, FederationRequest{
		TraceID:   traceID,
		AgentID:   k.agentID,
		Operation: operation,
		Payload:   payload,
		RiskTier:  riskTier,
	})
	if err != nil {
		return FederationCallResult{}, err
	}

	if fedResult.OK {
		return FederationCallResult{
			OK:             true,
			Result:         fedResult.Result,
			InputFrameHash: inputFrameHash,
			UVAHash:        uvaHash,
			Source:         fedResult.Source,
		}, nil
	}

	errTag := tag(ErrFederationError, fedResult.Error)
	if route, ok := k.boundedAssistanceOnFailure(ctx, traceID, riskTier, m); ok {
		errTag = errTag + " | assist:" + string(route)
	}

	k.logger.Warn("federation call failed",
		zap.String("operation", operation),
		zap.String("error", errTag),
	)

	return FederationCallResult{
		OK:             false,
		Error:          errTag,
		InputFrameHash: inputFrameHash,
	}, nil
}

func actionIDForCall(traceID, operation string) string {
	return "call_" + frame.First12Hex(traceID+operation)
}

func extensionsFromPayload(payload map[string]frame.Scalar) frame.Extensions {
	if len(payload) == 0 {
		return nil
	}
	ext := make(frame.Extensions, len(payload))
	for k, v := range payload {
		ext[k] = v
	}
	return ext
}

// boundedAssistanceOnFailure is the private helper of §4.6: at most one
// assistance call per failed operation at the kernel layer. It never
// returns an error; any collaborator failure (an error or a panic) is
// swallowed and reported as ok=false.
func (k *Kernel) boundedAssistanceOnFailure(ctx context.Context, traceID string, riskTier manifest.RiskTier, m manifest.CapabilityManifest) (route manifest.AssistanceRoute, ok bool) {
	if !m.Assistance.Enabled {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			route, ok = "", false
		}
	}()
	result, err := k.assistance.RequestAssistance(ctx, AssistanceRequest{
		TraceID:       traceID,
		AgentID:       k.agentID,
		Query:         "federation_call_failure:" + traceID,
		RiskTier:      riskTier,
		AllowedRoutes: allowedAssistanceRoutes(m),
	})
	if err != nil || !result.OK {
		return "", false
	}
	return result.RouteUsed, true
}
