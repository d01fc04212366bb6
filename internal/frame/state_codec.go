package frame

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/acip-dev/fck/internal/manifest"
)

// CanonicalState renders a PersistedKernelState in the canonical form of
// §4.1: the value stored under "acip.kernel.state.<agent_id>" (§6).
func CanonicalState(s manifest.PersistedKernelState) string {
	var sb strings.Builder
	sb.WriteByte('{')

	sb.WriteString(`"last_boot_utc":`)
	encodeCanonicalString(&sb, s.LastBootUTC)
	sb.WriteByte(',')

	sb.WriteString(`"last_manifest_hash":`)
	encodeCanonicalString(&sb, s.LastManifestHash)
	sb.WriteByte(',')

	sb.WriteString(`"manifest":`)
	sb.WriteString(CanonicalManifest(s.Manifest))
	sb.WriteByte(',')

	sb.WriteString(`"monotonic_counter":`)
	sb.WriteString(uitoa(s.MonotonicCounter))

	sb.WriteByte('}')
	return sb.String()
}

// ParseState decodes a canonical (or any equivalent valid JSON) state
// value back into a PersistedKernelState. The canonical form is valid
// JSON, so standard decoding is safe here — canonicality only matters
// for byte-stable hashing and storage writes, not for reads.
func ParseState(data string) (manifest.PersistedKernelState, error) {
	var s manifest.PersistedKernelState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return manifest.PersistedKernelState{}, fmt.Errorf("frame: parse state: %w", err)
	}
	return s, nil
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
