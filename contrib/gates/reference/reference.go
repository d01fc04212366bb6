// Package reference registers the built-in governance.ReferenceGate under
// the "reference" contrib name, the default selected by
// config.yaml's attestation.governance_gate when unset.
package reference

import (
	"strings"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/contrib"
	"github.com/acip-dev/fck/internal/governance"
	"github.com/acip-dev/fck/internal/kernel"
)

func init() {
	contrib.RegisterGate(contrib.GateFactory{
		Name: "reference",
		New: func(cfg map[string]string) (kernel.GovernanceGate, error) {
			var keys []string
			if raw := cfg["invariant_keys_required"]; raw != "" {
				keys = strings.Split(raw, ",")
			}
			return governance.NewReferenceGate(zap.NewNop(), cfg["sdc_version"], keys), nil
		},
	})
}
