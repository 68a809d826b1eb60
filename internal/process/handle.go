package process

import (
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ExitStatus is how a process ended. Code is -1 when the process was killed by a signal
// or the status could not be determined.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (e ExitStatus) String() string {
	if e.Signal != "" {
		return "signal " + e.Signal
	}
	return "exit code " + strconv.Itoa(e.Code)
}

// Handle refers to one launched process. It is never reused after the process exits.
type Handle struct {
	pid       int
	startedAt time.Time

	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	status ExitStatus
	err    error
}

// NewHandle returns a live handle for pid. Strategies create handles when they spawn;
// other callers use it to adopt a process whose exit they report through MarkExited.
func NewHandle(pid int) *Handle {
	h := &Handle{pid: pid, startedAt: time.Now(), done: make(chan struct{})}
	if ts := processStartUnix(pid); ts > 0 {
		h.startedAt = time.Unix(ts, 0)
	}
	return h
}

func (h *Handle) PID() int { return h.pid }

// StartedAt is the OS-reported creation time when available, otherwise the time the handle was made.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitStatus is only meaningful after Done is closed.
func (h *Handle) ExitStatus() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the error reported by the wait, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// MarkExited records the exit and closes Done. Only the first call has any effect.
func (h *Handle) MarkExited(st ExitStatus, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.status = st
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

func exitStatusOf(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	st := ExitStatus{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signal = ws.Signal().String()
	}
	return st
}
