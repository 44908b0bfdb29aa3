//go:build !unix

package signalbus

// Bus is a no-op stand-in on non-unix platforms, where PTY/pipe process
// transport (interp/process_other.go) is unsupported anyway.
type Bus struct{}

func New() *Bus { return &Bus{} }

func (b *Bus) TakeSIGCHLD() bool { return false }
func (b *Bus) Stopped() bool     { return false }
func (b *Bus) RequestStop()      {}
func (b *Bus) Close()            {}
