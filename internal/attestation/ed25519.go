// Package attestation provides AttestationClient implementations: the
// collaborator invoked only after governance ALLOW, which produces
// ATTESTED/REFUSED plus an opaque uva_hash for the verified action.
package attestation

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
)

// Ed25519Client is a DVAP (distributed verified action protocol)
// attestation client signing over the frame's canonical hash with an
// Ed25519 authority key, mirroring the envelope-signing discipline of
// the federation transport.
type Ed25519Client struct {
	authorityID string
	privKey     ed25519.PrivateKey
	logger      *zap.Logger
}

// NewEd25519Client constructs a client that signs attested frames with
// privKey, identifying the attesting authority as authorityID.
func NewEd25519Client(authorityID string, privKey ed25519.PrivateKey, logger *zap.Logger) *Ed25519Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ed25519Client{authorityID: authorityID, privKey: privKey, logger: logger}
}

// Attest implements kernel.AttestationClient. It signs
// attestationMessage(frame) and derives uva_hash from the signature,
// so any two kernels verifying the same signed attestation converge on
// the same uva_hash.
func (c *Ed25519Client) Attest(_ context.Context, f frame.CanonicalActionFrame) (kernel.AttestationResult, error) {
	if len(c.privKey) != ed25519.PrivateKeySize {
		return kernel.AttestationResult{}, fmt.Errorf("attestation: authority key not configured")
	}

	msg := attestationMessage(c.authorityID, f)
	sig := ed25519.Sign(c.privKey, msg)

	sum := sha256.Sum256(sig)
	uvaHash := hex.EncodeToString(sum[:])

	c.logger.Debug("frame attested",
		zap.String("action_id", f.ActionID),
		zap.String("authority_id", c.authorityID),
		zap.String("uva_hash", uvaHash),
	)

	return kernel.AttestationResult{
		Verdict: kernel.AttestationAttested,
		UVAHash: uvaHash,
	}, nil
}

// attestationMessage builds the canonical byte sequence signed by the
// attesting authority: authority_id || frame_hash. It is deterministic
// and excludes the signature itself, matching the federation envelope's
// signing discipline.
func attestationMessage(authorityID string, f frame.CanonicalActionFrame) []byte {
	buf := make([]byte, 0, len(authorityID)+64)
	buf = append(buf, []byte(authorityID)...)
	buf = append(buf, []byte(f.Hash())...)
	return buf
}

// VerifyAttestation independently recomputes and checks a signature
// against pubKey, for callers that need to verify an attestation
// without holding the authority's private key (e.g. audit tooling).
func VerifyAttestation(pubKey ed25519.PublicKey, authorityID string, f frame.CanonicalActionFrame, sig []byte) bool {
	return ed25519.Verify(pubKey, attestationMessage(authorityID, f), sig)
}
