// Package frame implements the canonical action frame: the atomic unit
// of auditable intent that is the sole input to governance and
// attestation, plus the canonical JSON-like serialization and SHA-256
// hashing that every collaborator contract depends on for
// interoperability.
package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Scalar is a deterministic extension value: string, int64, or bool.
// Floating-point values are never permitted in frames or manifests.
type Scalar struct {
	kind scalarKind
	str  string
	num  int64
	flag bool
}

type scalarKind int

const (
	kindString scalarKind = iota
	kindInt
	kindBool
)

// StringScalar wraps a string extension value.
func StringScalar(s string) Scalar { return Scalar{kind: kindString, str: s} }

// IntScalar wraps an integer extension value.
func IntScalar(n int64) Scalar { return Scalar{kind: kindInt, num: n} }

// BoolScalar wraps a boolean extension value.
func BoolScalar(b bool) Scalar { return Scalar{kind: kindBool, flag: b} }

// AsString renders v's underlying value as a string, for callers (e.g.
// the assistance broker) that need to read a scalar extension back out
// of a result map rather than canonicalize it.
func (v Scalar) AsString() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindInt:
		return strconv.FormatInt(v.num, 10)
	case kindBool:
		if v.flag {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// canonicalEncode appends the canonical form of v to sb.
func (v Scalar) canonicalEncode(sb *strings.Builder) {
	switch v.kind {
	case kindString:
		encodeCanonicalString(sb, v.str)
	case kindInt:
		sb.WriteString(strconv.FormatInt(v.num, 10))
	case kindBool:
		if v.flag {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	default:
		panic(fmt.Sprintf("frame: unknown scalar kind %d", v.kind))
	}
}

// encodeCanonicalString writes s as a double-quoted string with the
// standard JSON escapes, matching the canonicalization rules of §4.1.
func encodeCanonicalString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// Extensions is an ordered-insertion-agnostic map of scalar extension
// values. Canonicalization always emits keys in lexicographic order
// regardless of insertion order, which is what makes
// CanonicalHash(f) stable across permutations of extensions' insertion
// order (§8 "Determinism and hashing").
type Extensions map[string]Scalar

// canonicalEncode appends the canonical object form of e to sb, with
// keys in lexicographic codepoint order.
func (e Extensions) canonicalEncode(sb *strings.Builder) {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeCanonicalString(sb, k)
		sb.WriteByte(':')
		e[k].canonicalEncode(sb)
	}
	sb.WriteByte('}')
}

// sha256Hex returns the lowercase hex SHA-256 digest of the canonical
// serialization s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// First12Hex returns the first 12 hex characters of the SHA-256 digest
// of s, used to derive content-addressed action_id values (§4.4).
func First12Hex(s string) string {
	full := sha256Hex(s)
	return full[:12]
}
