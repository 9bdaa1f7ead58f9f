// ABOUTME: Shared process protocol engine used by every provider adapter.
// ABOUTME: Implements spawn settle, the idle/hard-timeout send race, and stop escalation.

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// argBuilder supplies the provider-specific CLI argument convention for
// starting in resume vs fresh mode. It is the only behavior that differs
// between provider variants.
type argBuilder interface {
	launchArgs(opts StartOptions) []string
}

// engine is the base behavior embedded by each provider adapter. The agent
// CLIs speak no structured protocol: input is one newline-terminated line,
// output is an unframed text stream, and completion is inferred from quiet
// periods.
type engine struct {
	provider Provider
	command  string
	exitLine string // polite in-band exit instruction, tried before signals
	settle   time.Duration
	grace    time.Duration
	args     argBuilder
	logger   *slog.Logger
}

const (
	defaultSettleTimeout = 1500 * time.Millisecond
	defaultStopGrace     = 3 * time.Second
)

func newEngine(provider Provider, cmd CommandConfig, eng EngineConfig, exitLine string, args argBuilder) *engine {
	settle := eng.SettleTimeout
	if settle <= 0 {
		settle = defaultSettleTimeout
	}
	grace := eng.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	return &engine{
		provider: provider,
		command:  cmd.Command,
		exitLine: exitLine,
		settle:   settle,
		grace:    grace,
		args:     args,
		logger:   slog.Default().With("component", "agent", "provider", string(provider)),
	}
}

// Provider names the variant this engine drives.
func (e *engine) Provider() Provider {
	return e.provider
}

// Start spawns the provider process with all three stdio streams piped and
// the environment inherited, then waits for it to survive a short settle
// window. The agent CLIs emit no readiness signal, so settling is the alive
// signal; early exit is a startup failure carrying the captured output.
func (e *engine) Start(ctx context.Context, opts StartOptions) (*Runtime, error) {
	args := e.args.launchArgs(opts)
	rt := newRuntime(e.provider, opts.UserID, opts.SessionRef)

	cmd := exec.Command(e.command, args...)
	cmd.Stdout = rt
	cmd.Stderr = rt

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, newError(e.provider, ErrStartupFailure, "", fmt.Sprintf("stdin pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, newError(e.provider, ErrStartupFailure, "", err.Error())
	}
	rt.cmd = cmd
	rt.stdin = stdin

	go func() {
		// Wait returns after the stdout/stderr copiers finish, so the
		// transcript is complete by the time done closes.
		rt.waitErr = cmd.Wait()
		close(rt.done)
	}()

	e.logger.Debug("agent process spawned",
		"user_id", opts.UserID,
		"pid", rt.PID(),
		"fresh", opts.Fresh,
		"has_session_ref", opts.SessionRef != "",
	)

	settle := time.NewTimer(e.settle)
	defer settle.Stop()

	select {
	case <-rt.done:
		return nil, newError(e.provider, ErrStartupFailure, rt.Transcript(),
			fmt.Sprintf("exited during settle: %v", rt.waitErr))
	case <-ctx.Done():
		e.kill(rt)
		return nil, newError(e.provider, ErrStartupFailure, rt.Transcript(), ctx.Err().Error())
	case <-settle.C:
		return rt, nil
	}
}

// Send writes one input line and arms the completion race: the idle timer
// resets on every output chunk and, when it fires with output present, the
// buffer suffix since the write is the response. The hard ceiling and
// process exit fail the call outright. Exactly one outcome resolves the
// call; all timers are cancelled on first resolution.
func (e *engine) Send(ctx context.Context, rt *Runtime, input string, idle, hard time.Duration) (*Output, error) {
	mark := rt.outputLen()

	if _, err := io.WriteString(rt.stdin, input+"\n"); err != nil {
		return nil, newError(e.provider, ErrUnexpectedExit, rt.Transcript(),
			fmt.Sprintf("writing input: %v", err))
	}

	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()
	hardTimer := time.NewTimer(hard)
	defer hardTimer.Stop()

	for {
		select {
		case <-rt.activity:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idle)

		case <-idleTimer.C:
			text := strings.TrimSpace(rt.outputSince(mark))
			if text == "" {
				return nil, newError(e.provider, ErrIdleNoOutput, rt.Transcript(), "")
			}
			ref := extractSessionRef(rt.Transcript(), rt.SessionRef())
			rt.setSessionRef(ref)
			return &Output{Text: text, SessionRef: ref}, nil

		case <-hardTimer.C:
			return nil, newError(e.provider, ErrSendTimeout, rt.Transcript(),
				fmt.Sprintf("no idle period within %s", hard))

		case <-rt.done:
			return nil, newError(e.provider, ErrUnexpectedExit, rt.Transcript(),
				fmt.Sprintf("exit: %v", rt.waitErr))

		case <-ctx.Done():
			return nil, newError(e.provider, ErrSendTimeout, rt.Transcript(), ctx.Err().Error())
		}
	}
}

// Stop escalates: in-band exit line, bounded grace wait, SIGTERM, a second
// bounded wait, SIGKILL. It always returns within the sum of the two grace
// windows plus scheduling slack, even against a process that ignores both
// signals, and reports the best-known session ref from the final transcript.
func (e *engine) Stop(ctx context.Context, rt *Runtime) string {
	if rt.Alive() {
		if e.exitLine != "" && rt.stdin != nil {
			// Best effort; the process may not be reading.
			_, _ = io.WriteString(rt.stdin, e.exitLine+"\n")
		}
		if !e.awaitExit(rt, e.grace) {
			e.logger.Debug("agent ignored exit line, sending SIGTERM",
				"user_id", rt.UserID(), "pid", rt.PID())
			e.signal(rt, syscall.SIGTERM)
			if !e.awaitExit(rt, e.grace) {
				e.logger.Warn("agent ignored SIGTERM, sending SIGKILL",
					"user_id", rt.UserID(), "pid", rt.PID())
				e.kill(rt)
			}
		}
	}
	if rt.stdin != nil {
		_ = rt.stdin.Close()
	}

	ref := extractSessionRef(rt.Transcript(), rt.SessionRef())
	rt.setSessionRef(ref)
	return ref
}

// awaitExit waits up to d for the process to exit.
func (e *engine) awaitExit(rt *Runtime, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-rt.done:
		return true
	case <-t.C:
		return false
	}
}

func (e *engine) signal(rt *Runtime, sig syscall.Signal) {
	if rt.cmd != nil && rt.cmd.Process != nil {
		_ = rt.cmd.Process.Signal(sig)
	}
}

func (e *engine) kill(rt *Runtime) {
	if rt.cmd != nil && rt.cmd.Process != nil {
		_ = rt.cmd.Process.Kill()
	}
}
