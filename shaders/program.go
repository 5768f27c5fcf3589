// Package shaders loads vertex/fragment program pairs from disk and keeps them up to date as the
// files change.
package shaders

import (
	"os"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Source is the text of one program stage.
type Source struct {
	Stage Stage
	Path  string
	Text  string
}

// Uniform is a uniform variable declared by a program.
type Uniform struct {
	Type  string
	Name  string
	Stage Stage
}

// Program is a successfully built vertex/fragment pair. A Program is immutable.
type Program struct {
	ID       uuid.UUID
	Name     string
	Vertex   Source
	Fragment Source
	Uniforms []Uniform
}

// HasUniform reports whether either stage declares the named uniform.
func (p *Program) HasUniform(name string) bool {
	for _, u := range p.Uniforms {
		if u.Name == name {
			return true
		}
	}
	return false
}

// Compiler builds programs. Implementations backed by a GPU upload the program; the returned
// error must be a *CompileError.
type Compiler interface {
	Compile(name string, vertex, fragment Source) (*Program, error)
}

// ReadSource reads one stage from disk. Unreadable files and text that is not valid UTF-8 are
// reported as a *CompileError.
func ReadSource(stage Stage, path string) (Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Source{}, &CompileError{Stage: StageRead, Path: path, Msg: err.Error()}
	}
	if !utf8.Valid(data) {
		return Source{}, &CompileError{Stage: StageRead, Path: path, Msg: "source is not valid UTF-8"}
	}
	return Source{Stage: stage, Path: path, Text: string(data)}, nil
}
