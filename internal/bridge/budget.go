package bridge

import (
	"errors"
	"time"

	"github.com/dop251/goja"
)

// withBudget runs fn with a wall-clock deadline. On overrun the VM is
// interrupted cooperatively (goja checks the interrupt flag between
// statements, so a tight native call can still finish first). A zero or
// negative budget disables the guard.
//
// The returned error is a *BudgetError when the evaluation was aborted by
// the deadline, otherwise whatever fn returned.
func (s *Scope) withBudget(budget time.Duration, phase string, fn func() error) error {
	if budget <= 0 {
		return fn()
	}

	fired := make(chan struct{})
	timer := time.AfterFunc(budget, func() {
		defer close(fired)
		// Interrupt is documented as safe to call from another goroutine.
		s.vm.Interrupt(ErrBudgetExceeded)
	})
	err := fn()
	if !timer.Stop() {
		// The timer fired; the interrupt flag may be set even if fn
		// happened to complete. Wait for the callback to finish before
		// clearing, otherwise a clear racing the interrupt can leave the
		// flag set and abort the next evaluation.
		<-fired
		s.vm.ClearInterrupt()
	}

	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok && errors.Is(v, ErrBudgetExceeded) {
			return &BudgetError{Phase: phase}
		}
	}
	return err
}
