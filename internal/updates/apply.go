// Package updates provides the reference signature verifier and bundle
// applier injected into the kernel's ApplyUpdatePackage pipeline. The
// kernel never interprets UpdatePackage payloads itself; these
// functions are the external integration point, kept deliberately
// separate from the kernel so no self-modifying code path exists.
package updates

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
)

// TrustedSignerKeys maps a signer fingerprint (manifest.UpdatesConfig's
// trusted_signers entries) to its Ed25519 public key.
type TrustedSignerKeys map[string]ed25519.PublicKey

// VerifyEd25519Signature returns a kernel.SignatureVerifier closed over
// keys. It is pure with respect to kernel state: it only reads pkg and
// keys, as required by §4.5.
func VerifyEd25519Signature(keys TrustedSignerKeys) func(pkg manifest.UpdatePackage, trustedSigners []string) bool {
	return func(pkg manifest.UpdatePackage, trustedSigners []string) bool {
		if pkg.SignerID == "" || pkg.SignatureB64 == "" {
			return false
		}
		if !signerTrusted(pkg.SignerID, trustedSigners) {
			return false
		}
		pub, ok := keys[pkg.SignerID]
		if !ok || len(pub) != ed25519.PublicKeySize {
			return false
		}
		sig, err := base64.StdEncoding.DecodeString(pkg.SignatureB64)
		if err != nil {
			return false
		}
		return ed25519.Verify(pub, signedMessage(pkg), sig)
	}
}

func signerTrusted(signerID string, trustedSigners []string) bool {
	for _, s := range trustedSigners {
		if s == signerID {
			return true
		}
	}
	return false
}

// signedMessage builds the canonical byte sequence a signer must have
// signed: package_id || channel || version || payload_b64.
func signedMessage(pkg manifest.UpdatePackage) []byte {
	buf := make([]byte, 0, len(pkg.PackageID)+len(pkg.Channel)+len(pkg.Version)+len(pkg.PayloadB64))
	buf = append(buf, []byte(pkg.PackageID)...)
	buf = append(buf, []byte(pkg.Channel)...)
	buf = append(buf, []byte(pkg.Version)...)
	buf = append(buf, []byte(pkg.PayloadB64)...)
	return buf
}

// Applier integrates update packages: SKILL_CAPSULE payloads are
// content-addressed into the capsule store; CONFIG_BUNDLE payloads are
// decoded as a strict CapabilityManifest replacement and returned to the
// kernel through Apply's return value, which the kernel.BundleApplier
// contract requires it to swap into kernel state. The kernel hands it an
// opaque package; this type decides how to integrate it, per §4.5's "no
// self-modifying code path" design — the kernel never branches on
// channel semantics itself, it only reacts to whether a manifest came
// back. onManifestReplaced, when set, is an optional side-effect hook
// (e.g. logging, metrics) and is not how the new manifest reaches the
// kernel.
type Applier struct {
	db                 *storage.DB
	onManifestReplaced func(manifest.CapabilityManifest)
	logger             *zap.Logger
}

// NewApplier constructs an Applier. onManifestReplaced, if non-nil, is
// notified whenever a CONFIG_BUNDLE successfully decodes to a new
// manifest; it is a side-effect hook only, not a wiring point — Apply's
// return value is what the kernel installs as current state.
func NewApplier(db *storage.DB, onManifestReplaced func(manifest.CapabilityManifest), logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{db: db, onManifestReplaced: onManifestReplaced, logger: logger}
}

// Apply implements the kernel.BundleApplier signature.
func (a *Applier) Apply(_ context.Context, pkg manifest.UpdatePackage) (*manifest.CapabilityManifest, error) {
	payload, err := base64.StdEncoding.DecodeString(pkg.PayloadB64)
	if err != nil {
		return nil, fmt.Errorf("updates: decode payload_b64: %w", err)
	}

	switch pkg.Channel {
	case manifest.ChannelSkillCapsule:
		digest, err := a.db.PutCapsule(payload)
		if err != nil {
			return nil, fmt.Errorf("updates: store skill capsule: %w", err)
		}
		a.logger.Info("skill capsule applied",
			zap.String("package_id", pkg.PackageID),
			zap.String("digest", digest),
		)
		return nil, nil

	case manifest.ChannelConfigBundle:
		replaced, err := manifest.LoadStrict(payload)
		if err != nil {
			return nil, fmt.Errorf("updates: config bundle failed strict manifest validation: %w", err)
		}
		if a.onManifestReplaced != nil {
			a.onManifestReplaced(replaced)
		}
		a.logger.Info("config bundle applied",
			zap.String("package_id", pkg.PackageID),
			zap.String("agent_id", replaced.AgentID),
		)
		return &replaced, nil

	default:
		return nil, fmt.Errorf("updates: unrecognized channel %q", pkg.Channel)
	}
}
