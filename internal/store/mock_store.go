// ABOUTME: Mock Store implementation for testing.
// ABOUTME: Allows tests to run without SQLite.

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	bindings map[string]*SessionBinding // keyed by user ID
	// LastErrors records the most recent cause passed to ClearRuntimePID,
	// keyed by "userID:provider", so tests can assert on failure recording.
	LastErrors map[string]string
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		bindings:   make(map[string]*SessionBinding),
		LastErrors: make(map[string]string),
	}
}

// GetBinding retrieves the user's binding, creating a default row if absent.
func (m *MockStore) GetBinding(ctx context.Context, userID, defaultProvider string) (*SessionBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureLocked(userID, defaultProvider)
	return copyBinding(b), nil
}

// SetActiveAgent records which provider is active for the user.
func (m *MockStore) SetActiveAgent(ctx context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureLocked(userID, provider)
	b.ActiveProvider = provider
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateSessionRef records the provider's latest resume token.
func (m *MockStore) UpdateSessionRef(ctx context.Context, userID, provider, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureLocked(userID, provider)
	b.SessionRefs[provider] = ref
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRuntimePID records the live process id for the user's provider.
func (m *MockStore) SetRuntimePID(ctx context.Context, userID, provider string, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureLocked(userID, provider)
	b.RuntimePIDs[provider] = pid
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearRuntimePID clears the recorded process id and notes the cause.
func (m *MockStore) ClearRuntimePID(ctx context.Context, userID, provider string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ensureLocked(userID, provider)
	b.RuntimePIDs[provider] = 0
	b.UpdatedAt = time.Now().UTC()
	if cause != nil {
		m.LastErrors[userID+":"+provider] = cause.Error()
	} else {
		delete(m.LastErrors, userID+":"+provider)
	}
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// ensureLocked returns the user's binding, creating a default one bound to
// provider if absent. Caller must hold the lock.
func (m *MockStore) ensureLocked(userID, provider string) *SessionBinding {
	if b, ok := m.bindings[userID]; ok {
		return b
	}
	b := &SessionBinding{
		UserID:         userID,
		ActiveProvider: provider,
		SessionRefs:    make(map[string]string),
		RuntimePIDs:    make(map[string]int),
		UpdatedAt:      time.Now().UTC(),
	}
	m.bindings[userID] = b
	return b
}

// copyBinding returns a deep copy to avoid external modification.
func copyBinding(b *SessionBinding) *SessionBinding {
	out := &SessionBinding{
		UserID:         b.UserID,
		ActiveProvider: b.ActiveProvider,
		SessionRefs:    make(map[string]string, len(b.SessionRefs)),
		RuntimePIDs:    make(map[string]int, len(b.RuntimePIDs)),
		UpdatedAt:      b.UpdatedAt,
	}
	for k, v := range b.SessionRefs {
		out.SessionRefs[k] = v
	}
	for k, v := range b.RuntimePIDs {
		out.RuntimePIDs[k] = v
	}
	return out
}
