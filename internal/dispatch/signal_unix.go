//go:build !windows

package dispatch

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/m0rik/panenap/internal/model"
)

// KillSignaler sends job-control signals with kill(2). SIGSTOP cannot be
// caught or ignored by the target; SIGCONT wakes a stopped process.
type KillSignaler struct{}

func (KillSignaler) Signal(pid int, action model.Action) error {
	sig := syscall.SIGSTOP
	if action == model.ActionResume {
		sig = syscall.SIGCONT
	}
	err := syscall.Kill(pid, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("signal pid %d: %w", pid, ErrProcessGone)
	case errors.Is(err, syscall.EPERM):
		return fmt.Errorf("signal pid %d: %w", pid, ErrPermissionDenied)
	default:
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
}
