//go:build unix

package interp

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollOnce implements spec §5's readiness loop for one iteration: build a
// pollset over every live shell's output fd, wait up to remaining (capped
// so a process-exit notification on r.wake is never stuck behind a long
// single poll), and feed whatever arrived through each Process's line
// framing. EINTR drains the signal bus and is treated as "poll again",
// matching the spec's "EINTR: drain sigchld, continue" outcome; a real
// timeout with nothing ready returns nil so the caller re-checks its own
// deadline.
func (r *Runner) pollOnce(remaining time.Duration) error {
	slice := remaining
	if slice > 200*time.Millisecond {
		slice = 200 * time.Millisecond
	}
	if slice <= 0 {
		return nil
	}

	names := make([]string, 0, len(r.shellOrder))
	fds := make([]unix.PollFd, 0, len(r.shellOrder))
	for _, name := range r.shellOrder {
		sc := r.shells[name]
		if !sc.proc.IsAlive() {
			continue
		}
		names = append(names, name)
		fds = append(fds, unix.PollFd{Fd: int32(sc.proc.FDOut().Fd()), Events: unix.POLLIN})
	}

	if len(fds) == 0 {
		// Nothing left alive to poll; sleep out the slice so a [match]
		// against already-buffered/exit-synthesized output still makes
		// timeout progress instead of busy-looping.
		select {
		case <-r.wake:
		case <-time.After(slice):
		}
		return nil
	}

	n, err := unix.Poll(fds, int(slice.Milliseconds()))
	if err == unix.EINTR {
		r.signals.TakeSIGCHLD()
		return nil
	}
	if err != nil {
		return &ShellError{Reason: "poll failed: " + err.Error()}
	}
	if n == 0 {
		return nil
	}

	buf := make([]byte, 4096)
	for i, pfd := range fds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		name := names[i]
		sc := r.shells[name]
		for {
			read, err := rawRead(sc.proc.FDOut(), buf)
			if read > 0 {
				if sc.proc.OnOutput(buf[:read]) {
					return &ShellError{Shell: name, Reason: "error pattern matched: " + sc.proc.ErrorPattern()}
				}
				_, _ = sc.outputLog.Write(buf[:read])
			}
			if err == errAgain || read == 0 {
				break
			}
			if err != nil {
				break
			}
			if read < len(buf) {
				break
			}
		}
	}
	return nil
}
