// ABOUTME: Manager orchestrates per-user agent runtimes, switching, and failover.
// ABOUTME: Enforces the single-active-runtime-per-user invariant structurally.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relayd/agentrelay/internal/store"
)

// ManagerParams configures a Manager.
type ManagerParams struct {
	Adapters        map[Provider]Adapter // only enabled providers appear here
	Store           store.Store
	DefaultProvider Provider
	FailoverEnabled bool
	IdleTimeout     time.Duration // idle-completion quiet period per send
	HardTimeout     time.Duration // hard ceiling per send
	Logger          *slog.Logger
}

// Manager owns the per-user runtime map. At most one live runtime exists per
// user at any observable instant: the prior entry is always stopped and
// removed before a new one is installed.
//
// Manager operations for the same user must be invoked sequentially by the
// caller; the runtime map itself is guarded, but in-flight process work for
// one user is not serialized internally.
type Manager struct {
	adapters map[Provider]Adapter
	store    store.Store

	mu       sync.Mutex
	runtimes map[string]*Runtime // keyed by user ID

	defaultProvider Provider
	failoverEnabled bool
	idle            time.Duration
	hard            time.Duration
	logger          *slog.Logger
}

// NewManager creates a new Manager instance.
func NewManager(p ManagerParams) *Manager {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		adapters:        p.Adapters,
		store:           p.Store,
		runtimes:        make(map[string]*Runtime),
		defaultProvider: p.DefaultProvider,
		failoverEnabled: p.FailoverEnabled,
		idle:            p.IdleTimeout,
		hard:            p.HardTimeout,
		logger:          logger.With("component", "manager"),
	}
}

// adapterFor returns the adapter for a provider, or ErrDisabledProvider if
// the host has no adapter configured for it. This guard runs before any
// process or persistence action.
func (m *Manager) adapterFor(p Provider) (Adapter, error) {
	a, ok := m.adapters[p]
	if !ok {
		return nil, newError(p, ErrDisabledProvider, "", "")
	}
	return a, nil
}

// SwitchAgent makes target the user's active provider. A no-op when target
// is already active with a live runtime. Targeting a disabled provider
// rejects before any process is touched.
func (m *Manager) SwitchAgent(ctx context.Context, userID string, target Provider) error {
	adapter, err := m.adapterFor(target)
	if err != nil {
		return err
	}

	binding, err := m.store.GetBinding(ctx, userID, string(m.defaultProvider))
	if err != nil {
		return fmt.Errorf("reading binding: %w", err)
	}

	if rt := m.runtime(userID); rt != nil {
		if binding.ActiveProvider == string(target) && rt.Provider() == target && rt.Alive() {
			return nil
		}
		m.stopAndRemove(ctx, rt)
	}

	if err := m.store.SetActiveAgent(ctx, userID, string(target)); err != nil {
		return fmt.Errorf("persisting active agent: %w", err)
	}

	rt, err := m.startForBinding(ctx, adapter, userID, binding)
	if err != nil {
		return err
	}
	m.install(userID, rt)

	m.logger.Info("switched agent", "user_id", userID, "provider", string(target))
	return nil
}

// SendToActive delivers one input line to the user's active agent and waits
// for the heuristic completion. On send failure it fails over to the
// alternate provider (when enabled and configured), prepending a continuity
// preamble so the alternate has context, and prefixes the returned text with
// a visible failover marker.
func (m *Manager) SendToActive(ctx context.Context, userID, input string) (string, error) {
	binding, err := m.store.GetBinding(ctx, userID, string(m.defaultProvider))
	if err != nil {
		return "", fmt.Errorf("reading binding: %w", err)
	}

	provider := Provider(binding.ActiveProvider)
	if _, ok := m.adapters[provider]; !ok {
		// The active provider is disabled on this host: demote to the
		// configured default before proceeding.
		if _, ok := m.adapters[m.defaultProvider]; !ok {
			return "", newError(provider, ErrDisabledProvider, "", "no default adapter to demote to")
		}
		m.logger.Warn("active provider disabled, demoting to default",
			"user_id", userID,
			"active", binding.ActiveProvider,
			"default", string(m.defaultProvider),
		)
		provider = m.defaultProvider
		if err := m.store.SetActiveAgent(ctx, userID, string(provider)); err != nil {
			return "", fmt.Errorf("persisting demoted provider: %w", err)
		}
	}
	adapter := m.adapters[provider]

	rt, err := m.ensureRuntime(ctx, adapter, userID, binding)
	if err != nil {
		return "", err
	}

	idle, hard, _ := m.sendParams()
	out, err := adapter.Send(ctx, rt, input, idle, hard)
	if err != nil {
		return m.failover(ctx, userID, provider, input, err)
	}

	m.persistRef(ctx, userID, provider, out.SessionRef)
	return out.Text, nil
}

// failover handles a failed send: the runtime is dropped and its pid record
// cleared with the captured error, then the alternate provider (when
// enabled and configured) takes over the conversation.
func (m *Manager) failover(ctx context.Context, userID string, failed Provider, input string, sendErr error) (string, error) {
	m.logger.Error("send failed", "user_id", userID, "provider", string(failed), "error", sendErr)

	if err := m.store.ClearRuntimePID(ctx, userID, string(failed), sendErr); err != nil {
		m.logger.Error("clearing runtime pid", "user_id", userID, "error", err)
	}
	m.dropRuntime(ctx, userID, failed)

	idle, hard, failoverEnabled := m.sendParams()
	if !failoverEnabled {
		return "", sendErr
	}
	alternate := failed.Alternate()
	altAdapter, ok := m.adapters[alternate]
	if !ok {
		return "", sendErr
	}

	m.logger.Warn("failing over to alternate provider",
		"user_id", userID,
		"from", string(failed),
		"to", string(alternate),
	)

	if err := m.store.SetActiveAgent(ctx, userID, string(alternate)); err != nil {
		return "", fmt.Errorf("persisting failover provider: %w", err)
	}

	binding, err := m.store.GetBinding(ctx, userID, string(m.defaultProvider))
	if err != nil {
		return "", fmt.Errorf("reading binding after failover: %w", err)
	}

	rt, err := m.ensureRuntime(ctx, altAdapter, userID, binding)
	if err != nil {
		return "", err
	}

	handoff := fmt.Sprintf(
		"[Automatic handoff] The previous assistant (%s) failed mid-conversation; you are taking over. Please handle the user's message: %s",
		failed, input,
	)
	out, err := altAdapter.Send(ctx, rt, handoff, idle, hard)
	if err != nil {
		if clearErr := m.store.ClearRuntimePID(ctx, userID, string(alternate), err); clearErr != nil {
			m.logger.Error("clearing runtime pid", "user_id", userID, "error", clearErr)
		}
		m.dropRuntime(ctx, userID, alternate)
		return "", err
	}

	m.persistRef(ctx, userID, alternate, out.SessionRef)
	return fmt.Sprintf("[Failover -> %s] %s", alternate, out.Text), nil
}

// dropRuntime removes the user's runtime from the map when it belongs to the
// given provider, reaping a still-live process in the background. Used on
// the send-failure path, where the conversation has already moved on.
func (m *Manager) dropRuntime(ctx context.Context, userID string, provider Provider) {
	rt := m.runtime(userID)
	if rt == nil || rt.Provider() != provider {
		return
	}
	m.remove(userID)
	if adapter, ok := m.adapters[provider]; ok && rt.Alive() {
		go adapter.Stop(context.WithoutCancel(ctx), rt)
	}
}

// ensureRuntime returns a live runtime for the provider, reusing an existing
// one when alive, otherwise stopping any stale entry (persisting its ref
// first) and starting fresh.
func (m *Manager) ensureRuntime(ctx context.Context, adapter Adapter, userID string, binding *store.SessionBinding) (*Runtime, error) {
	provider := adapter.Provider()

	if rt := m.runtime(userID); rt != nil {
		if rt.Provider() == provider && rt.Alive() {
			return rt, nil
		}
		m.stopAndRemove(ctx, rt)
	}

	rt, err := m.startForBinding(ctx, adapter, userID, binding)
	if err != nil {
		return nil, err
	}
	m.install(userID, rt)
	return rt, nil
}

// startForBinding attempts a resume start using the stored ref for the
// provider, retrying exactly once in fresh mode when the resume attempt
// fails. Self-healing against stale tokens, e.g. after a provider upgrade
// invalidates old sessions.
func (m *Manager) startForBinding(ctx context.Context, adapter Adapter, userID string, binding *store.SessionBinding) (*Runtime, error) {
	provider := adapter.Provider()
	ref := binding.SessionRef(string(provider))

	rt, err := adapter.Start(ctx, StartOptions{UserID: userID, SessionRef: ref})
	if err != nil {
		m.logger.Warn("resume start failed, retrying fresh",
			"user_id", userID,
			"provider", string(provider),
			"error", err,
		)
		rt, err = adapter.Start(ctx, StartOptions{UserID: userID, Fresh: true})
		if err != nil {
			return nil, err
		}
	}

	if err := m.store.SetRuntimePID(ctx, userID, string(provider), rt.PID()); err != nil {
		m.logger.Error("recording runtime pid", "user_id", userID, "error", err)
	}
	return rt, nil
}

// ShutdownAll stops every live runtime, persisting last-known refs and
// clearing recorded pids. Used at process teardown to avoid orphaned
// children.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	runtimes := make(map[string]*Runtime, len(m.runtimes))
	for userID, rt := range m.runtimes {
		runtimes[userID] = rt
	}
	m.mu.Unlock()

	for userID, rt := range runtimes {
		m.stopAndRemove(ctx, rt)
		m.logger.Info("runtime shut down", "user_id", userID, "provider", string(rt.Provider()))
	}
}

// sendParams snapshots the hot-reloadable send settings under the lock.
func (m *Manager) sendParams() (idle, hard time.Duration, failoverEnabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle, m.hard, m.failoverEnabled
}

// SetFailoverEnabled flips the failover toggle, used by config hot reload.
func (m *Manager) SetFailoverEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failoverEnabled = enabled
}

// SetSendTimeouts updates the per-send timing, used by config hot reload.
func (m *Manager) SetSendTimeouts(idle, hard time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle = idle
	m.hard = hard
}

// ActiveRuntimes returns the number of live runtimes, for health reporting.
func (m *Manager) ActiveRuntimes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runtimes)
}

// stopAndRemove stops the runtime via its adapter, persists its final
// session ref, clears its pid record, and removes it from the map.
func (m *Manager) stopAndRemove(ctx context.Context, rt *Runtime) {
	provider := rt.Provider()
	userID := rt.UserID()

	if adapter, ok := m.adapters[provider]; ok {
		if ref := adapter.Stop(ctx, rt); ref != "" {
			m.persistRef(ctx, userID, provider, ref)
		}
	}
	if err := m.store.ClearRuntimePID(ctx, userID, string(provider), nil); err != nil {
		m.logger.Error("clearing runtime pid", "user_id", userID, "error", err)
	}
	m.remove(userID)
}

func (m *Manager) persistRef(ctx context.Context, userID string, provider Provider, ref string) {
	if ref == "" {
		return
	}
	if err := m.store.UpdateSessionRef(ctx, userID, string(provider), ref); err != nil {
		m.logger.Error("persisting session ref", "user_id", userID, "error", err)
	}
}

func (m *Manager) runtime(userID string) *Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtimes[userID]
}

func (m *Manager) install(userID string, rt *Runtime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtimes[userID] = rt
}

func (m *Manager) remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runtimes, userID)
}
