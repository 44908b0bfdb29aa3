//go:build unix

package interp

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// setNonblock detaches f from Go's runtime netpoller (Fd() does this as a
// documented side effect) and puts the raw descriptor into O_NONBLOCK, so
// the Runner's own poll loop (interp/runner_unix.go) owns all readiness
// decisions, matching the cooperative single-threaded scheduler of spec §5.
// Grounded on the one place the teacher itself reaches for
// golang.org/x/sys/unix instead of pure stdlib (interp/os_unix.go).
func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}

func rawRead(f *os.File, buf []byte) (int, error) {
	n, err := unix.Read(int(f.Fd()), buf)
	if err == unix.EAGAIN {
		return 0, errAgain
	}
	return n, err
}

func rawWrite(f *os.File, buf []byte) (int, error) {
	n, err := unix.Write(int(f.Fd()), buf)
	if err == unix.EAGAIN {
		return 0, errAgain
	}
	return n, err
}

var errAgain = fmt.Errorf("eagain")

// exitCodeOf extracts the process exit code from an os/exec Wait error,
// or -1 if the process was killed by a signal.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// reap blocks in cmd.Wait() - the only supported way to collect a child's
// exit status in Go - and calls onExit with its code once the process is
// gone. Real SIGCHLD handling still flows through internal/signalbus (see
// runner_unix.go), matching spec §5's "EINTR drains sigchld" language;
// actually reaping a *specific* exec.Cmd's status must go through its own
// Wait(), since the stdlib owns that child's wait4 call and a second,
// independent waitpid(WNOHANG) here would race it.
func reap(cmd *exec.Cmd, onExit func(code int)) {
	go func() {
		err := cmd.Wait()
		onExit(exitCodeOf(err))
	}()
}

// ptyProcess drives /bin/sh (or another interactive shell) over a
// pseudo-terminal, per spec §4.4: both fd_input() and fd_output() are the
// PTY master.
type ptyProcess struct {
	lineBuffer
	name   string
	cmd    *exec.Cmd
	master *os.File
}

func spawnPTY(name string, env []string, shellPath string, wake chan<- struct{}) (*ptyProcess, error) {
	cmd := exec.Command(shellPath)
	cmd.Env = env
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, &ShellError{Shell: name, Reason: "pty spawn failed: " + err.Error()}
	}
	if err := setNonblock(master); err != nil {
		return nil, &ShellError{Shell: name, Reason: "set nonblock failed: " + err.Error()}
	}
	p := &ptyProcess{name: name, cmd: cmd, master: master}
	p.alive = true
	p.pid = cmd.Process.Pid
	reap(cmd, func(code int) {
		p.SetAlive(false, code)
		notify(wake)
	})
	return p, nil
}

func notify(wake chan<- struct{}) {
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (p *ptyProcess) Name() string    { return p.name }
func (p *ptyProcess) FDIn() *os.File  { return p.master }
func (p *ptyProcess) FDOut() *os.File { return p.master }

func (p *ptyProcess) Write(data []byte) (bool, error) {
	n, err := rawWrite(p.master, data)
	if err == errAgain {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == len(data), nil
}

func (p *ptyProcess) OnOutput(data []byte) bool { return p.onOutput(data) }

// Stop cooperatively terminates the shell: ETX, EOT, close the master,
// then SIGKILL. The reap goroutine started at spawn time collects the
// final status; Stop does not wait synchronously.
func (p *ptyProcess) Stop() error {
	if !p.IsAlive() {
		return nil
	}
	_, _ = p.Write([]byte{0x03}) // ETX
	_, _ = p.Write([]byte{0x04}) // EOT
	p.master.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGKILL)
	}
	return nil
}

// pipeProcess drives an arbitrary [process]-declared command over two
// anonymous pipes: stdin, and stdout+stderr merged (spec §4.4).
type pipeProcess struct {
	lineBuffer
	name      string
	cmd       *exec.Cmd
	toChild   *os.File // write end of stdin pipe (fd_input)
	fromChild *os.File // read end of stdout/stderr pipe (fd_output)
}

func spawnPipe(name string, env []string, argv []string, wake chan<- struct{}) (*pipeProcess, error) {
	if len(argv) == 0 {
		return nil, &ShellError{Shell: name, Reason: "empty [process] command"}
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, &ShellError{Shell: name, Reason: "pipe: " + err.Error()}
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &ShellError{Shell: name, Reason: "pipe: " + err.Error()}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = outW
	if err := cmd.Start(); err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return nil, &ShellError{Shell: name, Reason: "spawn failed: " + err.Error()}
	}
	inR.Close()
	outW.Close()
	if err := setNonblock(outR); err != nil {
		return nil, &ShellError{Shell: name, Reason: "set nonblock failed: " + err.Error()}
	}
	p := &pipeProcess{name: name, cmd: cmd, toChild: inW, fromChild: outR}
	p.alive = true
	p.pid = cmd.Process.Pid
	reap(cmd, func(code int) {
		// Synthesize the in-band exit marker before flipping alive off,
		// so a match line waiting on "PROCESS-EXIT:" still sees it land
		// in the normal line sequence.
		p.onOutput([]byte(fmt.Sprintf("PROCESS-EXIT: %d\n", code)))
		p.SetAlive(false, code)
		notify(wake)
	})
	return p, nil
}

func (p *pipeProcess) Name() string    { return p.name }
func (p *pipeProcess) FDIn() *os.File  { return p.toChild }
func (p *pipeProcess) FDOut() *os.File { return p.fromChild }

func (p *pipeProcess) Write(data []byte) (bool, error) {
	n, err := rawWrite(p.toChild, data)
	if err == errAgain {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == len(data), nil
}

func (p *pipeProcess) OnOutput(data []byte) bool { return p.onOutput(data) }

func (p *pipeProcess) Stop() error {
	if !p.IsAlive() {
		return nil
	}
	p.toChild.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGKILL)
	}
	return nil
}
