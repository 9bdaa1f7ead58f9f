// ABOUTME: Runtime wraps one live agent process and its accumulated output buffer.
// ABOUTME: Exclusively owned by the Manager for its lifetime; never persisted.

package agent

import (
	"bytes"
	"io"
	"os/exec"
	"sync"
)

// Runtime is the live process plus its growing transcript for one user's
// active agent conversation. It is created by Adapter.Start and destroyed
// whenever the user's active provider changes or the process dies.
type Runtime struct {
	provider Provider
	userID   string

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu         sync.Mutex
	buf        bytes.Buffer
	sessionRef string

	// activity receives a (coalesced) signal for every output chunk.
	activity chan struct{}
	// done is closed once the process has exited and its output is drained.
	done    chan struct{}
	waitErr error
}

func newRuntime(provider Provider, userID, sessionRef string) *Runtime {
	return &Runtime{
		provider:   provider,
		userID:     userID,
		sessionRef: sessionRef,
		activity:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Provider returns the variant that owns this runtime.
func (r *Runtime) Provider() Provider {
	return r.provider
}

// UserID returns the user this runtime serves.
func (r *Runtime) UserID() string {
	return r.userID
}

// PID returns the OS process id, or 0 if no process was ever started.
func (r *Runtime) PID() int {
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Alive reports whether the process has not yet exited.
func (r *Runtime) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// SessionRef returns the last known session token for this runtime.
func (r *Runtime) SessionRef() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionRef
}

func (r *Runtime) setSessionRef(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionRef = ref
}

// Transcript returns the full accumulated output (stdout and stderr merged).
func (r *Runtime) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// outputLen returns the current transcript length, used as a send's
// high-water mark.
func (r *Runtime) outputLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// outputSince returns the transcript suffix received after the given mark.
func (r *Runtime) outputSince(mark int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.buf.Bytes()
	if mark >= len(b) {
		return ""
	}
	return string(b[mark:])
}

// Write appends a chunk to the transcript and signals activity. It is the
// io.Writer wired as the process's stdout and stderr, so exec's internal
// copiers may call it concurrently with a waiting send.
func (r *Runtime) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.buf.Write(p)
	r.mu.Unlock()

	select {
	case r.activity <- struct{}{}:
	default:
	}
	return len(p), nil
}
