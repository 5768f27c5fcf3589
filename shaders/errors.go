package shaders

import "fmt"

// Stage identifies where a program failed to build.
type Stage string

// The stages a CompileError can report.
const (
	StageRead     Stage = "read"
	StageVertex   Stage = "vertex"
	StageFragment Stage = "fragment"
	StageLink     Stage = "link"
)

// CompileError describes why a program could not be built. Line is 1-based and zero when the
// error is not tied to a line.
type CompileError struct {
	Stage Stage
	Path  string
	Line  int
	Msg   string
}

func (e *CompileError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", loc, e.Stage, e.Msg)
}
