package manifest

import "time"

// PersistedKernelState is the kernel's durable footprint, serialized
// canonically (see internal/frame) and stored under the key
// "acip.kernel.state.<agent_id>".
//
// Lifecycle: created on first boot with MonotonicCounter = 1. Each
// subsequent boot mutates only LastBootUTC, MonotonicCounter
// (incremented), and LastManifestHash (recomputed from the on-disk
// manifest). A successful update mutates LastManifestHash again after
// the applier returns.
type PersistedKernelState struct {
	Manifest         CapabilityManifest `json:"manifest"`
	LastBootUTC      string             `json:"last_boot_utc"`
	LastManifestHash string             `json:"last_manifest_hash"`
	MonotonicCounter uint64             `json:"monotonic_counter"`
}

// UpdatePackage is a data-only bundle on one of the two allowed update
// channels. The kernel never interprets PayloadB64; it hands it to an
// external applier.
type UpdatePackage struct {
	PackageID   string        `json:"package_id"`
	Channel     UpdateChannel `json:"channel"`
	Version     string        `json:"version"`
	CreatedUTC  string        `json:"created_utc"`
	PayloadB64  string        `json:"payload_b64"`
	SignatureB64 string       `json:"signature_b64,omitempty"`
	SignerID    string        `json:"signer_id,omitempty"`
}

// NowUTC returns the current time formatted per the frame's
// timestamp_utc convention: ISO-8601, UTC, second resolution.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
