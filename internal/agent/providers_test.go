// ABOUTME: Tests for the provider adapters' CLI argument conventions.
// ABOUTME: Covers resume-with-token, resume-without-token, and fresh modes.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeLaunchArgs(t *testing.T) {
	a := newClaudeAdapter(CommandConfig{Command: "claude", BaseArgs: []string{"--print"}}, EngineConfig{})

	tests := []struct {
		name string
		opts StartOptions
		want []string
	}{
		{"resume with token", StartOptions{SessionRef: "tok-1"}, []string{"--print", "--resume", "tok-1"}},
		{"resume without token", StartOptions{}, []string{"--print", "--continue"}},
		{"fresh ignores token", StartOptions{SessionRef: "tok-1", Fresh: true}, []string{"--print"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.launchArgs(tt.opts))
		})
	}
}

func TestCodexLaunchArgs(t *testing.T) {
	a := newCodexAdapter(CommandConfig{Command: "codex", BaseArgs: []string{"-q"}}, EngineConfig{})

	tests := []struct {
		name string
		opts StartOptions
		want []string
	}{
		{"resume with token", StartOptions{SessionRef: "tok-2"}, []string{"-q", "resume", "tok-2"}},
		{"resume without token", StartOptions{}, []string{"-q", "resume", "--last"}},
		{"fresh ignores token", StartOptions{SessionRef: "tok-2", Fresh: true}, []string{"-q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.launchArgs(tt.opts))
		})
	}
}

func TestLaunchArgsDoNotMutateBaseArgs(t *testing.T) {
	base := []string{"--print"}
	a := newClaudeAdapter(CommandConfig{Command: "claude", BaseArgs: base}, EngineConfig{})

	_ = a.launchArgs(StartOptions{SessionRef: "tok"})
	assert.Equal(t, []string{"--print"}, base)
}

func TestNewAdapter(t *testing.T) {
	for _, p := range Providers() {
		a, err := NewAdapter(p, CommandConfig{Command: "true"}, EngineConfig{})
		require.NoError(t, err)
		assert.Equal(t, p, a.Provider())
	}

	_, err := NewAdapter(Provider("gemini"), CommandConfig{}, EngineConfig{})
	assert.Error(t, err)
}

func TestProviderAlternate(t *testing.T) {
	assert.Equal(t, ProviderCodex, ProviderClaude.Alternate())
	assert.Equal(t, ProviderClaude, ProviderCodex.Alternate())
}
