package bridge

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScope() *Scope {
	return NewScope(zerolog.Nop())
}

func TestEnsureStateCreatesOnce(t *testing.T) {
	s := newTestScope()

	assert.Nil(t, s.Get(StateKey))
	s.EnsureState()
	require.NotNil(t, s.Get(StateKey))

	// Populate state, then ensure again: the value must survive.
	_, err := s.RunString("state.x = 41")
	require.NoError(t, err)
	s.EnsureState()
	v, err := s.RunString("state.x")
	require.NoError(t, err)
	assert.Equal(t, int64(41), v.Export())
}

func TestInjectExtract(t *testing.T) {
	s := newTestScope()

	require.NoError(t, s.Inject("snapshot", map[string]any{"1": "a"}))

	v, err := s.RunString(`snapshot["1"]`)
	require.NoError(t, err)
	assert.Equal(t, "a", v.Export())

	out, ok := s.Extract("snapshot")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"1": "a"}, out.Export())

	// Extraction removes the key: the next execution cannot observe
	// stale data under the old alias.
	_, err = s.RunString("snapshot")
	assert.Error(t, err)
	_, ok = s.Extract("snapshot")
	assert.False(t, ok)
}

func TestInjectRejectsReservedKey(t *testing.T) {
	s := newTestScope()
	assert.Error(t, s.Inject(StateKey, map[string]any{}))
}

func TestExtractAbsentAfterScriptDelete(t *testing.T) {
	s := newTestScope()
	require.NoError(t, s.Inject("snapshot", map[string]any{}))

	_, err := s.RunString("delete globalThis.snapshot")
	require.NoError(t, err)

	_, ok := s.Extract("snapshot")
	assert.False(t, ok)
}

func TestExtractNullRemovesBinding(t *testing.T) {
	s := newTestScope()
	require.NoError(t, s.Inject("snapshot", map[string]any{}))

	_, err := s.RunString("snapshot = null")
	require.NoError(t, err)

	// Treated as absent, and the null binding must not linger into the
	// next execution.
	_, ok := s.Extract("snapshot")
	assert.False(t, ok)
	v, err := s.RunString("typeof snapshot")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.Export())
}

func TestScopePersistsAcrossExecutions(t *testing.T) {
	s := newTestScope()
	s.EnsureState()

	_, err := s.RunString("state.count = 1")
	require.NoError(t, err)
	_, err = s.RunString("state.count += 1")
	require.NoError(t, err)

	v, err := s.RunString("state.count")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Export())
}

func TestConsoleAvailable(t *testing.T) {
	s := newTestScope()
	_, err := s.RunString(`console.log("hello from script")`)
	assert.NoError(t, err)
}

func TestCallable(t *testing.T) {
	s := newTestScope()
	_, ok := s.Callable("update")
	assert.False(t, ok)

	_, err := s.RunString("function update() { return 1; }")
	require.NoError(t, err)
	fn, ok := s.Callable("update")
	require.True(t, ok)
	require.NotNil(t, fn)

	_, err = s.RunString("var notFn = 3")
	require.NoError(t, err)
	_, ok = s.Callable("notFn")
	assert.False(t, ok)
}
