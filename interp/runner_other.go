//go:build !unix

package interp

import "time"

func (r *Runner) pollOnce(remaining time.Duration) error {
	return &ShellError{Reason: errUnsupportedPlatform.Error()}
}
