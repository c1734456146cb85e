package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBudgetZeroDisablesGuard(t *testing.T) {
	s := newTestScope()
	err := s.withBudget(0, "update", func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}

func TestWithBudgetAbortsOverrun(t *testing.T) {
	s := newTestScope()
	err := s.withBudget(20*time.Millisecond, "command", func() error {
		_, runErr := s.RunString("while (true) {}")
		return runErr
	})
	var berr *BudgetError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "command", berr.Phase)
}

func TestExpiredBudgetDoesNotPoisonNextEvaluation(t *testing.T) {
	// The deadline fires while fn is busy outside the VM, so fn returns
	// clean with the interrupt flag possibly mid-flight. The flag must be
	// fully cleared before the next evaluation runs.
	s := newTestScope()
	err := s.withBudget(time.Millisecond, "update", func() error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	v, err := s.RunString("1 + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Export())
}
