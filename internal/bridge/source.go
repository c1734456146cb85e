package bridge

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// prelude is prepended to every candidate source before compilation. It
// provides the builtin helpers scripts may assume exist.
const prelude = `
function vec3(x, y, z) { return { x: x || 0, y: y || 0, z: z || 0 }; }
function quat(x, y, z, w) { return { x: x || 0, y: y || 0, z: z || 0, w: w === undefined ? 1 : w }; }
function clamp(v, lo, hi) { return v < lo ? lo : (v > hi ? hi : v); }
function lerp(a, b, t) { return a + (b - a) * t; }
function dist(a, b) {
	var dx = a.x - b.x, dy = a.y - b.y, dz = a.z - b.z;
	return Math.sqrt(dx * dx + dy * dy + dz * dz);
}
`

// scriptFilename is the name compile diagnostics attribute errors to.
const scriptFilename = "script.js"

// CompileOutcome is the result of a source proposal.
type CompileOutcome struct {
	OK bool
	// Unchanged is set when the proposal matched the committed source
	// exactly and nothing was recompiled.
	Unchanged bool
	// Message is a human-readable summary: a confirmation on success, the
	// compiler diagnostic on failure.
	Message string
}

// SourceManager holds the committed script source and its compiled form.
// Proposals follow an optimistic, fail-closed commit protocol: compile
// first, replace only on success. A broken script can never become current,
// so the last-known-good source always remains executable.
type SourceManager struct {
	committed string
	program   *goja.Program
	log       zerolog.Logger
}

// NewSourceManager creates a manager with no committed source.
func NewSourceManager(log zerolog.Logger) *SourceManager {
	return &SourceManager{
		log: log.With().Str("component", "source").Logger(),
	}
}

// Propose compiles the candidate (prelude prepended) and commits it on
// success. On failure the committed source is unchanged and the outcome
// carries the diagnostic. Re-proposing identical source is a no-op success.
func (m *SourceManager) Propose(src string) CompileOutcome {
	if m.program != nil && src == m.committed {
		return CompileOutcome{OK: true, Unchanged: true, Message: "Compiled OK (unchanged)"}
	}

	full := prelude + "\n" + src
	prg, err := goja.Compile(scriptFilename, full, false)
	if err != nil {
		cerr := &CompileError{Err: err}
		m.log.Warn().Err(err).Msg("proposal rejected")
		return CompileOutcome{OK: false, Message: fmt.Sprintf("Error: %v", cerr)}
	}

	m.committed = src
	m.program = prg
	m.log.Debug().Int("bytes", len(src)).Msg("source committed")
	return CompileOutcome{OK: true, Message: "Compiled OK"}
}

// Committed returns the current committed source ("" before the first
// successful proposal).
func (m *SourceManager) Committed() string {
	return m.committed
}

// Program returns the compiled form of the committed source, or nil before
// the first successful proposal.
func (m *SourceManager) Program() *goja.Program {
	return m.program
}
