//go:build !unix

package interp

import (
	"errors"
	"os"
	"os/exec"
)

// plux's PTY/pipe transport is a unix-only capability, same as the
// teacher's forkpty-adjacent test helpers; non-unix builds compile but
// every spawn fails cleanly rather than being silently unsupported.
var errUnsupportedPlatform = errors.New("interp: PTY/pipe process transport requires a unix platform")

type ptyProcess struct{ lineBuffer }

func spawnPTY(name string, env []string, shellPath string, wake chan<- struct{}) (*ptyProcess, error) {
	return nil, &ShellError{Shell: name, Reason: errUnsupportedPlatform.Error()}
}

func (p *ptyProcess) Name() string             { return "" }
func (p *ptyProcess) FDIn() *os.File           { return nil }
func (p *ptyProcess) FDOut() *os.File          { return nil }
func (p *ptyProcess) Write([]byte) (bool, error) { return false, errUnsupportedPlatform }
func (p *ptyProcess) OnOutput([]byte) bool     { return false }
func (p *ptyProcess) Stop() error              { return nil }

type pipeProcess struct{ lineBuffer }

func spawnPipe(name string, env []string, argv []string, wake chan<- struct{}) (*pipeProcess, error) {
	return nil, &ShellError{Shell: name, Reason: errUnsupportedPlatform.Error()}
}

func (p *pipeProcess) Name() string             { return "" }
func (p *pipeProcess) FDIn() *os.File           { return nil }
func (p *pipeProcess) FDOut() *os.File          { return nil }
func (p *pipeProcess) Write([]byte) (bool, error) { return false, errUnsupportedPlatform }
func (p *pipeProcess) OnOutput([]byte) bool     { return false }
func (p *pipeProcess) Stop() error              { return nil }

var _ = exec.Command
