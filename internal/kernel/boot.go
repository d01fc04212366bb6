package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/manifest"
)

// Boot loads or initializes the kernel's PersistedKernelState per §4.2.
// On AGENT_ID_MISMATCH it returns a *FatalError and leaves state
// untouched (§8 "State monotonicity": "On AGENT_ID_MISMATCH, state is
// not modified"). Persist-on-boot completes before Boot returns.
func (k *Kernel) Boot(ctx context.Context, defaultManifest manifest.CapabilityManifest) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	raw, ok, err := k.storage.Get(ctx, k.storageKey())
	if err != nil {
		return err
	}

	if !ok {
		if err := defaultManifest.Validate(); err != nil {
			return err
		}
		hash := frame.ManifestHash(defaultManifest)
		state := manifest.PersistedKernelState{
			Manifest:         defaultManifest,
			LastBootUTC:      manifest.NowUTC(),
			LastManifestHash: hash,
			MonotonicCounter: 1,
		}
		if err := k.persist(ctx, state); err != nil {
			return err
		}
		k.state = state
		k.booted = true
		k.logger.Info("kernel booted (first boot)",
			zap.String("agent_id", k.agentID),
			zap.Uint64("monotonic_counter", state.MonotonicCounter),
		)
		return nil
	}

	loaded, err := frame.ParseState(raw)
	if err != nil {
		return err
	}

	if loaded.Manifest.AgentID != k.agentID {
		k.logger.Error("agent_id mismatch on boot",
			zap.String("expected", k.agentID),
			zap.String("got", loaded.Manifest.AgentID),
		)
		return newFatalError(ErrAgentIDMismatch, "persisted manifest.agent_id does not match kernel agent_id")
	}

	loaded.LastManifestHash = frame.ManifestHash(loaded.Manifest)
	loaded.LastBootUTC = manifest.NowUTC()
	loaded.MonotonicCounter++

	if err := k.persist(ctx, loaded); err != nil {
		return err
	}
	k.state = loaded
	k.booted = true
	k.logger.Info("kernel booted",
		zap.String("agent_id", k.agentID),
		zap.Uint64("monotonic_counter", loaded.MonotonicCounter),
	)
	return nil
}

// persist writes state to the storage adapter in canonical form. The
// caller must hold k.mu.
func (k *Kernel) persist(ctx context.Context, state manifest.PersistedKernelState) error {
	return k.storage.Set(ctx, k.storageKey(), frame.CanonicalState(state))
}
