// ABOUTME: Tests for the process protocol engine against real shell subprocesses.
// ABOUTME: Covers settle, idle completion, hard ceiling, early exit, and stop escalation.

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellAdapter builds a claude adapter that runs a shell script instead of a
// real provider CLI. Fresh mode keeps the launch args to exactly the script.
func shellAdapter(t *testing.T, script string, eng EngineConfig) Adapter {
	t.Helper()
	a, err := NewAdapter(ProviderClaude, CommandConfig{
		Command:  "/bin/sh",
		BaseArgs: []string{"-c", script},
	}, eng)
	require.NoError(t, err)
	return a
}

func startShell(t *testing.T, script string, eng EngineConfig) (Adapter, *Runtime) {
	t.Helper()
	a := shellAdapter(t, script, eng)
	rt, err := a.Start(context.Background(), StartOptions{UserID: "u1", Fresh: true})
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop(context.Background(), rt) })
	return a, rt
}

func TestEngineStart_EarlyExitIsStartupFailure(t *testing.T) {
	a := shellAdapter(t, `echo boom >&2; exit 7`, EngineConfig{SettleTimeout: time.Second})

	_, err := a.Start(context.Background(), StartOptions{UserID: "u1", Fresh: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStartupFailure))

	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, ProviderClaude, agentErr.Provider)
	assert.Contains(t, agentErr.Transcript, "boom")
}

func TestEngineStart_SettleTreatedAsAlive(t *testing.T) {
	_, rt := startShell(t, `while read line; do echo "ok"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	assert.True(t, rt.Alive())
	assert.NotZero(t, rt.PID())
}

func TestEngineSend_IdleCompletion(t *testing.T) {
	a, rt := startShell(t, `while read line; do echo "echo: $line"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	out, err := a.Send(context.Background(), rt, "hello", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out.Text)
}

func TestEngineSend_ResponseIsSuffixSinceWrite(t *testing.T) {
	a, rt := startShell(t, `echo "banner"; while read line; do echo "reply to $line"; done`,
		EngineConfig{SettleTimeout: 300 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	out, err := a.Send(context.Background(), rt, "first", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	// The banner printed before the write must not leak into the response.
	assert.Equal(t, "reply to first", out.Text)

	out, err = a.Send(context.Background(), rt, "second", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "reply to second", out.Text)
}

func TestEngineSend_IdleWithZeroOutputFails(t *testing.T) {
	a, rt := startShell(t, `while read line; do sleep 10; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	_, err := a.Send(context.Background(), rt, "hello", 300*time.Millisecond, 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdleNoOutput))
}

func TestEngineSend_HardCeiling(t *testing.T) {
	// Chatters every 100ms forever: the idle timer never fires, the hard
	// ceiling guarantees forward progress.
	a, rt := startShell(t, `read line; while true; do echo chunk; sleep 0.1; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	start := time.Now()
	_, err := a.Send(context.Background(), rt, "go", 600*time.Millisecond, 1200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestEngineSend_ProcessExitMidSend(t *testing.T) {
	a, rt := startShell(t, `read line; exit 3`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	_, err := a.Send(context.Background(), rt, "go", 2*time.Second, 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedExit))
	assert.False(t, rt.Alive())
}

func TestEngineSend_ExtractsSessionRef(t *testing.T) {
	a, rt := startShell(t, `while read line; do echo "Session ID: 4fa85f64-5717-4562-b3fc-2c963f66afa6"; echo "done"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	out, err := a.Send(context.Background(), rt, "hi", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "4fa85f64-5717-4562-b3fc-2c963f66afa6", out.SessionRef)
	assert.Equal(t, "4fa85f64-5717-4562-b3fc-2c963f66afa6", rt.SessionRef())
}

func TestEngineSend_KeepsPriorRefWithoutMatch(t *testing.T) {
	a := shellAdapter(t, `while read line; do echo "plain output"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	rt, err := a.Start(context.Background(), StartOptions{UserID: "u1", SessionRef: "prior-ref", Fresh: true})
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop(context.Background(), rt) })

	out, err := a.Send(context.Background(), rt, "hi", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "prior-ref", out.SessionRef)
}

func TestEngineStop_GracefulOnExitLine(t *testing.T) {
	a, rt := startShell(t, `while read line; do [ "$line" = "/exit" ] && exit 0; echo "$line"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: time.Second})

	start := time.Now()
	a.Stop(context.Background(), rt)
	assert.False(t, rt.Alive())
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngineStop_EscalatesAndAlwaysResolves(t *testing.T) {
	// A child that ignores both the exit line and SIGTERM. Stop must still
	// resolve within its two grace windows plus slack.
	grace := 300 * time.Millisecond
	a, rt := startShell(t, `trap "" TERM; while true; do sleep 1; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: grace})

	done := make(chan struct{})
	go func() {
		a.Stop(context.Background(), rt)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2*grace + 2*time.Second):
		t.Fatal("Stop did not resolve within its grace windows")
	}
}

func TestEngineStop_ReturnsBestKnownRef(t *testing.T) {
	a := shellAdapter(t, `echo "session: final-token"; while read line; do :; done`,
		EngineConfig{SettleTimeout: 300 * time.Millisecond, StopGrace: 300 * time.Millisecond})

	rt, err := a.Start(context.Background(), StartOptions{UserID: "u1", SessionRef: "old-token", Fresh: true})
	require.NoError(t, err)

	ref := a.Stop(context.Background(), rt)
	assert.Equal(t, "final-token", ref)
}

func TestEngineStop_FallsBackToPriorRef(t *testing.T) {
	a := shellAdapter(t, `while read line; do :; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 300 * time.Millisecond})

	rt, err := a.Start(context.Background(), StartOptions{UserID: "u1", SessionRef: "old-token", Fresh: true})
	require.NoError(t, err)

	ref := a.Stop(context.Background(), rt)
	assert.Equal(t, "old-token", ref)
}

func TestEngineSend_TrimsWhitespace(t *testing.T) {
	a, rt := startShell(t, `while read line; do printf "\n  spaced  \n\n"; done`,
		EngineConfig{SettleTimeout: 200 * time.Millisecond, StopGrace: 200 * time.Millisecond})

	out, err := a.Send(context.Background(), rt, "hi", 400*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "spaced", out.Text)
	assert.False(t, strings.ContainsAny(out.Text, "\n"))
}
