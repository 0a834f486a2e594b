//go:build windows

package dispatch

import "github.com/m0rik/panenap/internal/model"

// Windows has no SIGSTOP/SIGCONT job control, so dispatch is refused.
type KillSignaler struct{}

func (KillSignaler) Signal(int, model.Action) error {
	return model.ErrSignalUnsupported
}
