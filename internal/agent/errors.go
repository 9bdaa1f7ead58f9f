// ABOUTME: Error taxonomy for agent process orchestration.
// ABOUTME: Sentinel errors plus a carrier type holding provider and transcript context.

package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration failure modes. Match with errors.Is.
var (
	// ErrStartupFailure indicates the process exited or errored before it
	// was considered ready.
	ErrStartupFailure = errors.New("agent process failed to start")

	// ErrSendTimeout indicates the hard per-send ceiling was exceeded.
	ErrSendTimeout = errors.New("agent response exceeded hard timeout")

	// ErrIdleNoOutput indicates the idle timer fired without the process
	// having produced a single byte since the input was written.
	ErrIdleNoOutput = errors.New("agent produced no output before idle timeout")

	// ErrUnexpectedExit indicates the process died while a send was pending.
	ErrUnexpectedExit = errors.New("agent process exited unexpectedly")

	// ErrDisabledProvider indicates the target provider has no adapter
	// configured on this host. Never retried and never failed over.
	ErrDisabledProvider = errors.New("provider is not enabled on this host")
)

// Error wraps a sentinel with the offending provider and the raw captured
// transcript for diagnosis.
type Error struct {
	Provider   Provider
	Transcript string
	Err        error
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error carrying a bounded transcript tail.
func newError(provider Provider, sentinel error, transcript, detail string) *Error {
	return &Error{
		Provider:   provider,
		Transcript: transcriptTail(transcript),
		Err:        sentinel,
		Detail:     detail,
	}
}

// transcriptTail bounds the transcript carried on errors so a chatty process
// cannot bloat logs or error chains.
func transcriptTail(s string) string {
	const max = 4096
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
