package kernel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

// UpdateResult is the outcome of ApplyUpdatePackage.
type UpdateResult struct {
	OK               bool
	Error            string
	InputFrameHash   string
	UVAHash          string
	LastManifestHash string
}

// ApplyUpdatePackage installs a signed data package per §4.5. On any
// failure at any phase, last_manifest_hash is left unchanged; state is
// only mutated after the injected applyBundle returns successfully.
// There is no self-modifying code path: packages are opaque to the
// kernel.
func (k *Kernel) ApplyUpdatePackage(ctx context.Context, pkg manifest.UpdatePackage, riskTier manifest.RiskTier) (UpdateResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.booted {
		return UpdateResult{}, fmt.Errorf("kernel: not booted")
	}
	m := k.state.Manifest

	if !m.Updates.Enabled {
		return UpdateResult{Error: tag(ErrUpdatesDisabled, "")}, nil
	}
	if !m.AllowsChannel(pkg.Channel) {
		return UpdateResult{Error: tag(ErrUpdateChannelNotAllowed, string(pkg.Channel))}, nil
	}
	if m.Updates.RequireSignature {
		if !k.verifySignature(pkg, m.Updates.TrustedSigners) {
			return UpdateResult{Error: tag(ErrInvalidSignature, "")}, nil
		}
	}

	f := frame.UpdateFrame(k.agentID, riskTier, m.Governance.SDCVersion, pkg.PackageID, pkg.Channel, pkg.Version, pkg.SignerID)

	govResult, err := k.governance.Evaluate(ctx, f)
	if err != nil {
		return UpdateResult{}, err
	}
	if govResult.Verdict == GovernanceDeny {
		return UpdateResult{Error: tag(ErrGovDeny, govResult.Reason)}, nil
	}
	f = f.ApplyVerdict(true, false)
	inputFrameHash := f.Hash()

	var uvaHash string
	if m.Updates.RequiresDVAP(riskTier) {
		attResult, err := k.attestation.Attest(ctx, f)
		if err != nil {
			return UpdateResult{}, err
		}
		if attResult.Verdict != AttestationAttested {
			return UpdateResult{
				Error:          tag(ErrDVAPRefused, attResult.Reason),
				InputFrameHash: inputFrameHash,
			}, nil
		}
		uvaHash = attResult.UVAHash
	}

	replaced, err := k.applyBundle(ctx, pkg)
	if err != nil {
		// Any error from the applier propagates as a fatal update
		// failure; state is not updated.
		return UpdateResult{}, fmt.Errorf("kernel: apply bundle: %w", err)
	}
	next := k.state
	if replaced != nil {
		// CONFIG_BUNDLE: the applier decoded a replacement manifest.
		// Swap it into the new state before re-hashing, so governance,
		// federation, and assistance policy for this agent actually
		// change — this is the manifest-replacement path §4.5 describes.
		next.Manifest = *replaced
	}

	// Re-derive the manifest hash from the (possibly replaced) manifest.
	// Kernel state is only replaced once the new state is persisted.
	newHash := frame.ManifestHash(next.Manifest)
	next.LastManifestHash = newHash
	if err := k.persist(ctx, next); err != nil {
		return UpdateResult{}, err
	}
	k.state = next

	k.logger.Info("update package applied",
		zap.String("package_id", pkg.PackageID),
		zap.String("channel", string(pkg.Channel)),
		zap.String("last_manifest_hash", newHash),
	)

	return UpdateResult{
		OK:               true,
		InputFrameHash:   inputFrameHash,
		UVAHash:          uvaHash,
		LastManifestHash: newHash,
	}, nil
}
