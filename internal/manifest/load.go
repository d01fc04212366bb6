package manifest

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadStrict parses a CapabilityManifest from YAML bytes, rejecting any
// field not recognized by the schema (§9 "Dynamic configuration
// objects": implementations should reject unknown fields at load time
// to prevent silent capability drift). It then runs structural
// validation.
func LoadStrict(data []byte) (CapabilityManifest, error) {
	var m CapabilityManifest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return CapabilityManifest{}, fmt.Errorf("manifest: strict decode: %w", err)
	}

	if err := m.Validate(); err != nil {
		return CapabilityManifest{}, err
	}
	return m, nil
}

// LoadFile reads path and parses it via LoadStrict.
func LoadFile(path string) (CapabilityManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CapabilityManifest{}, fmt.Errorf("manifest: read %q: %w", path, err)
	}
	return LoadStrict(data)
}
