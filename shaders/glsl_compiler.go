package shaders

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	mainRegexp    = regexp.MustCompile(`\bvoid\s+main\s*\(\s*(void\s*)?\)`)
	uniformRegexp = regexp.MustCompile(`(?m)^\s*(?:layout\s*\([^)]*\)\s*)?uniform\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*(?:\[\s*\w*\s*\])?\s*;`)
	// Matches `out vec2 uv;` in vertex shaders and `in vec2 uv;` in fragment shaders, plus the
	// legacy `varying` qualifier in both.
	varyingRegexp = regexp.MustCompile(`(?m)^[ \t]*(?:(?:flat|smooth|noperspective)\s+)?(in|out|varying)\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*;`)
)

// GLSLCompiler is a CPU-side front end that checks GLSL sources for the mistakes that matter
// while editing: a missing entry point, unbalanced delimiters, unterminated comments and
// fragment inputs the vertex stage never writes. It does not type check. A renderer with a GPU
// context wraps it and uploads the sources once they pass.
type GLSLCompiler struct{}

// Compile implements Compiler.
func (GLSLCompiler) Compile(name string, vertex, fragment Source) (*Program, error) {
	vStripped, err := checkStage(StageVertex, vertex)
	if err != nil {
		return nil, err
	}
	fStripped, err := checkStage(StageFragment, fragment)
	if err != nil {
		return nil, err
	}
	if err := checkVaryings(vertex, vStripped, fragment, fStripped); err != nil {
		return nil, err
	}

	uniforms := append(findUniforms(StageVertex, vStripped), findUniforms(StageFragment, fStripped)...)
	return &Program{
		ID:       uuid.New(),
		Name:     name,
		Vertex:   vertex,
		Fragment: fragment,
		Uniforms: uniforms,
	}, nil
}

// checkStage validates one source and returns it with comments blanked out.
func checkStage(stage Stage, src Source) (string, error) {
	stripped, err := stripComments(src.Text)
	if err != nil {
		return "", &CompileError{Stage: stage, Path: src.Path, Line: err.line, Msg: err.msg}
	}
	if err := checkDelimiters(stripped); err != nil {
		return "", &CompileError{Stage: stage, Path: src.Path, Line: err.line, Msg: err.msg}
	}
	if !mainRegexp.MatchString(stripped) {
		return "", &CompileError{Stage: stage, Path: src.Path, Msg: "missing entry point void main()"}
	}
	return stripped, nil
}

type lineError struct {
	line int
	msg  string
}

// stripComments replaces comments with spaces, keeping newlines so line numbers are preserved.
func stripComments(text string) (string, *lineError) {
	var b strings.Builder
	b.Grow(len(text))
	line := 1
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				b.WriteByte(' ')
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
				line++
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			start := line
			b.WriteString("  ")
			i += 2
			for ; i < len(text); i++ {
				if text[i] == '*' && i+1 < len(text) && text[i+1] == '/' {
					b.WriteString("  ")
					i++
					break
				}
				if text[i] == '\n' {
					b.WriteByte('\n')
					line++
				} else {
					b.WriteByte(' ')
				}
			}
			if i >= len(text) {
				return "", &lineError{line: start, msg: "unterminated block comment"}
			}
		default:
			if c == '\n' {
				line++
			}
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// checkDelimiters reports the first unbalanced bracket.
func checkDelimiters(text string) *lineError {
	type open struct {
		ch   byte
		line int
	}
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []open
	line := 1
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\n':
			line++
		case '(', '[', '{':
			stack = append(stack, open{c, line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return &lineError{line: line, msg: fmt.Sprintf("unexpected %q", c)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return &lineError{line: top.line, msg: fmt.Sprintf("unclosed %q", top.ch)}
	}
	return nil
}

func findUniforms(stage Stage, stripped string) []Uniform {
	var out []Uniform
	for _, m := range uniformRegexp.FindAllStringSubmatch(stripped, -1) {
		out = append(out, Uniform{Type: m[1], Name: m[2], Stage: stage})
	}
	return out
}

type varying struct {
	name string
	typ  string
	line int
}

// findVaryings returns the declarations with the given qualifier in source order.
func findVaryings(stripped, qualifier string) []varying {
	var out []varying
	for _, idx := range varyingRegexp.FindAllStringSubmatchIndex(stripped, -1) {
		q := stripped[idx[2]:idx[3]]
		if q != qualifier && q != "varying" {
			continue
		}
		out = append(out, varying{
			name: stripped[idx[6]:idx[7]],
			typ:  stripped[idx[4]:idx[5]],
			line: strings.Count(stripped[:idx[2]], "\n") + 1,
		})
	}
	return out
}

// checkVaryings ensures every fragment input is written by the vertex stage with the same type.
func checkVaryings(vertex Source, vStripped string, fragment Source, fStripped string) error {
	outs := map[string]varying{}
	for _, out := range findVaryings(vStripped, "out") {
		outs[out.name] = out
	}
	for _, in := range findVaryings(fStripped, "in") {
		name := in.name
		out, ok := outs[name]
		if !ok {
			return &CompileError{
				Stage: StageLink, Path: fragment.Path, Line: in.line,
				Msg: fmt.Sprintf("fragment input %q is not written by %s", name, vertex.Path),
			}
		}
		if out.typ != in.typ {
			return &CompileError{
				Stage: StageLink, Path: fragment.Path, Line: in.line,
				Msg: fmt.Sprintf("fragment input %q is %s but the vertex output is %s", name, in.typ, out.typ),
			}
		}
	}
	return nil
}
