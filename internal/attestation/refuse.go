package attestation

import (
	"context"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
)

// AlwaysRefuse is an AttestationClient that refuses every frame. It is
// useful for manifests that require DVAP but have no reachable
// authority configured — the kernel treats refusal identically
// regardless of cause, per §4.3's "on non-ATTESTED, return
// DVAP_REFUSED:<reason>".
type AlwaysRefuse struct {
	Reason string
	logger *zap.Logger
}

// NewAlwaysRefuse constructs an AttestationClient that always refuses
// with reason.
func NewAlwaysRefuse(reason string, logger *zap.Logger) *AlwaysRefuse {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlwaysRefuse{Reason: reason, logger: logger}
}

// Attest implements kernel.AttestationClient.
func (a *AlwaysRefuse) Attest(_ context.Context, f frame.CanonicalActionFrame) (kernel.AttestationResult, error) {
	a.logger.Warn("attestation refused: no authority configured",
		zap.String("action_id", f.ActionID),
		zap.String("reason", a.Reason),
	)
	return kernel.AttestationResult{Verdict: kernel.AttestationRefused, Reason: a.Reason}, nil
}
