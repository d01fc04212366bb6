package contrib

import (
	"context"
	"testing"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
)

type stubGate struct{}

func (stubGate) Evaluate(_ context.Context, _ frame.CanonicalActionFrame) (kernel.GovernanceResult, error) {
	return kernel.GovernanceResult{Verdict: kernel.GovernanceAllow}, nil
}

func TestRegisterAndNewGate(t *testing.T) {
	RegisterGate(GateFactory{
		Name: "test-stub",
		New: func(_ map[string]string) (kernel.GovernanceGate, error) {
			return stubGate{}, nil
		},
	})

	g, err := NewGate("test-stub", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected a non-nil gate")
	}
}

func TestNewGateUnknownNameErrors(t *testing.T) {
	if _, err := NewGate("does-not-exist", nil); err == nil {
		t.Fatal("expected an error for an unregistered gate name")
	}
}

func TestRegisterGateDuplicatePanics(t *testing.T) {
	RegisterGate(GateFactory{Name: "dup-test", New: func(_ map[string]string) (kernel.GovernanceGate, error) {
		return stubGate{}, nil
	}})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate registration")
		}
	}()
	RegisterGate(GateFactory{Name: "dup-test", New: func(_ map[string]string) (kernel.GovernanceGate, error) {
		return stubGate{}, nil
	}})
}
