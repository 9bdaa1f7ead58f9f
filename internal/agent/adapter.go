// ABOUTME: Adapter capability interface and provider variant definitions.
// ABOUTME: One adapter per provider; each supplies only its CLI resume convention.

package agent

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies one of the fixed set of interchangeable agent CLIs.
type Provider string

// The closed set of providers this system knows how to drive.
const (
	ProviderClaude Provider = "claude"
	ProviderCodex  Provider = "codex"
)

// Providers lists the closed set in a stable order.
func Providers() []Provider {
	return []Provider{ProviderClaude, ProviderCodex}
}

// Valid reports whether p names a known provider variant.
func (p Provider) Valid() bool {
	switch p {
	case ProviderClaude, ProviderCodex:
		return true
	}
	return false
}

// Alternate returns the other member of the two-provider set. Used by the
// Manager's failover path.
func (p Provider) Alternate() Provider {
	if p == ProviderClaude {
		return ProviderCodex
	}
	return ProviderClaude
}

// StartOptions controls how an adapter launches a process.
type StartOptions struct {
	UserID     string
	SessionRef string // last known session token for this provider, "" if none
	Fresh      bool   // true forces a fresh start with no resume context
}

// Output is the result of one send: the response text plus the session ref
// in effect after the send (updated if the transcript revealed a new one).
type Output struct {
	Text       string
	SessionRef string
}

// CommandConfig is the host-supplied launch configuration for one provider.
type CommandConfig struct {
	Command  string
	BaseArgs []string
}

// EngineConfig carries the shared process-engine timing knobs.
type EngineConfig struct {
	SettleTimeout time.Duration // spawn settle window before the process counts as alive
	StopGrace     time.Duration // each of the two bounded waits during Stop
}

// Adapter is the capability a provider variant exposes: start a process,
// send one input and wait for the heuristic completion, and stop it.
type Adapter interface {
	// Provider names the variant this adapter drives.
	Provider() Provider

	// Start spawns the process with fully piped stdio and waits for it to
	// settle. Early exit is a startup failure carrying the captured output.
	Start(ctx context.Context, opts StartOptions) (*Runtime, error)

	// Send writes one newline-terminated input line and races the idle
	// timer, hard ceiling, and process exit against output activity.
	// Exactly one outcome resolves the call.
	Send(ctx context.Context, rt *Runtime, input string, idle, hard time.Duration) (*Output, error)

	// Stop escalates exit line -> SIGTERM -> SIGKILL across two bounded
	// grace windows. It always returns, and reports the best-known session
	// ref extracted from the final transcript.
	Stop(ctx context.Context, rt *Runtime) string
}

// NewAdapter constructs the adapter for a provider variant from its host
// launch configuration.
func NewAdapter(p Provider, cmd CommandConfig, eng EngineConfig) (Adapter, error) {
	switch p {
	case ProviderClaude:
		return newClaudeAdapter(cmd, eng), nil
	case ProviderCodex:
		return newCodexAdapter(cmd, eng), nil
	}
	return nil, fmt.Errorf("unknown provider %q", p)
}
