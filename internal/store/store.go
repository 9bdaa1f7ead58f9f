// ABOUTME: Store interface and data types for agent session persistence.
// ABOUTME: Defines SessionBinding and the durable binding/session-ref contract.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// SessionBinding is the persisted record of a user's active provider and
// each provider's last known session state. One logical row per user,
// created lazily on first contact and never deleted by this subsystem.
type SessionBinding struct {
	UserID         string
	ActiveProvider string
	SessionRefs    map[string]string // provider -> opaque resume token ("" if none)
	RuntimePIDs    map[string]int    // provider -> last recorded process id (0 if none)
	UpdatedAt      time.Time
}

// SessionRef returns the stored resume token for a provider, or "".
func (b *SessionBinding) SessionRef(provider string) string {
	if b.SessionRefs == nil {
		return ""
	}
	return b.SessionRefs[provider]
}

// Store is the persistence collaborator consumed by the agent Manager.
type Store interface {
	// GetBinding returns the user's binding, creating a default row bound
	// to defaultProvider with null refs if none exists yet.
	GetBinding(ctx context.Context, userID, defaultProvider string) (*SessionBinding, error)

	// SetActiveAgent records which provider is active for the user.
	SetActiveAgent(ctx context.Context, userID, provider string) error

	// UpdateSessionRef records the provider's latest resume token.
	UpdateSessionRef(ctx context.Context, userID, provider, ref string) error

	// SetRuntimePID records the live process id for the user's provider.
	SetRuntimePID(ctx context.Context, userID, provider string, pid int) error

	// ClearRuntimePID clears the recorded process id, optionally noting the
	// error that ended the runtime.
	ClearRuntimePID(ctx context.Context, userID, provider string, cause error) error

	// Close releases underlying resources.
	Close() error
}
