// Package contrib — registry.go
//
// Plugin interface for custom governance gate backends.
//
// FCK ships a single built-in GovernanceGate (internal/governance.ReferenceGate,
// a pinned per-manifest invariant checker), but deployments often need their
// own policy evaluator — an OPA bundle, a rule engine, a call out to a
// separate policy service. The contrib package is the extension point: a
// custom gate registers itself under a name, and the daemon selects the
// active gate via config:
//
//   attestation:
//     governance_gate: "reference"   # default
//     # governance_gate: "my-org-policy-engine"
//
// Plugin registration:
//   Plugins register themselves in an init() function using RegisterGate().
//
// Plugin contract:
//   - Evaluate() must be goroutine-safe (the kernel invokes it from whichever
//     goroutine is running the calling entrypoint).
//   - Evaluate() must be a pure function of the frame plus the gate's own
//     pinned policy state — it must never mutate kernel state.
//   - Evaluate() must not panic.
//   - GateFactory.Name must be a stable, unique string (used as config key).
//
// Example plugin (contrib/gates/opa/opa.go):
//
//   package opa
//
//   import "github.com/acip-dev/fck/contrib"
//
//   func init() {
//     contrib.RegisterGate(contrib.GateFactory{
//       Name: "opa",
//       New: func(cfg map[string]string) (kernel.GovernanceGate, error) {
//         return newOPAGate(cfg["bundle_path"])
//       },
//     })
//   }
package contrib

import (
	"fmt"
	"sort"
	"sync"

	"github.com/acip-dev/fck/internal/kernel"
)

// GateFactory constructs a kernel.GovernanceGate from string-keyed config
// (the same shape a YAML config section decodes into). New must return an
// error rather than panic on bad config.
type GateFactory struct {
	Name string
	New  func(cfg map[string]string) (kernel.GovernanceGate, error)
}

var (
	gateMu sync.RWMutex
	gates  = make(map[string]GateFactory)
)

// RegisterGate registers a governance gate factory. Panics if a factory
// with the same name is already registered. Call from init() functions in
// plugin packages.
func RegisterGate(f GateFactory) {
	if f.Name == "" {
		panic("contrib: gate factory must have a non-empty Name")
	}
	if f.New == nil {
		panic(fmt.Sprintf("contrib: gate factory %q must have a non-nil New", f.Name))
	}
	gateMu.Lock()
	defer gateMu.Unlock()
	if _, exists := gates[f.Name]; exists {
		panic(fmt.Sprintf("contrib: gate %q already registered", f.Name))
	}
	gates[f.Name] = f
}

// NewGate builds the named gate with the given config. Returns an error if
// no gate with that name is registered, or if the factory itself fails.
func NewGate(name string, cfg map[string]string) (kernel.GovernanceGate, error) {
	gateMu.RLock()
	f, ok := gates[name]
	gateMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("contrib: gate %q not registered (available: %v)", name, ListGates())
	}
	return f.New(cfg)
}

// ListGates returns the names of all registered gate factories, sorted.
func ListGates() []string {
	gateMu.RLock()
	defer gateMu.RUnlock()
	names := make([]string, 0, len(gates))
	for k := range gates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
