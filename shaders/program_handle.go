package shaders

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/augment/logging"
)

// CompileStats receives a count of failed builds per program.
type CompileStats interface {
	CompileFailed(program string)
}

// HandleOptions configure a ProgramHandle.
type HandleOptions struct {
	// HotReload watches both source files and rebuilds on change when Poll is called.
	HotReload bool
	// Debounce is the quiet period before a burst of file events is acted on.
	Debounce time.Duration
	Stats    CompileStats
}

// ProgramHandle owns a program built from a vertex and a fragment file. Once a build has
// succeeded the handle always holds a usable program: a later failed rebuild is recorded in
// LastError and the previous program stays current.
type ProgramHandle struct {
	name         string
	vertexPath   string
	fragmentPath string
	compiler     Compiler
	stats        CompileStats
	logger       logging.Logger
	watcher      *Watcher

	mu         sync.Mutex
	program    *Program
	lastErr    error
	generation uint64
}

// NewProgramHandle builds the program once and, if requested, starts watching its sources. A
// failed first build is not an error here; it leaves the handle without a program until a later
// rebuild succeeds. Only failing to set up the watch is returned.
func NewProgramHandle(
	name, vertexPath, fragmentPath string,
	compiler Compiler,
	opts HandleOptions,
	logger logging.Logger,
) (*ProgramHandle, error) {
	h := &ProgramHandle{
		name:         name,
		vertexPath:   vertexPath,
		fragmentPath: fragmentPath,
		compiler:     compiler,
		stats:        opts.Stats,
		logger:       logger,
	}
	if opts.HotReload {
		w, err := NewWatcher([]string{vertexPath, fragmentPath}, opts.Debounce, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "watching sources of program %q", name)
		}
		h.watcher = w
	}
	h.rebuild()
	return h, nil
}

// Name returns the program name.
func (h *ProgramHandle) Name() string {
	return h.name
}

// HotReload reports whether the handle watches its sources.
func (h *ProgramHandle) HotReload() bool {
	return h.watcher != nil
}

// Current returns the program when one has been built. Otherwise it returns the
// *CompileError of the most recent build.
func (h *ProgramHandle) Current() (*Program, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.program != nil {
		return h.program, nil
	}
	return nil, h.lastErr
}

// LastError returns the error of the most recent build, or nil if it succeeded.
func (h *ProgramHandle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Generation counts successful builds.
func (h *ProgramHandle) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}

// Poll rebuilds the program if a source change is pending. It never blocks and reports whether a
// rebuild was attempted. Without hot reload it does nothing.
func (h *ProgramHandle) Poll() bool {
	if h.watcher == nil {
		return false
	}
	select {
	case ev := <-h.watcher.Events():
		if err := h.watcher.Rewatch(); err != nil {
			h.logger.Warnw("could not re-arm program watch", "program", h.name, "error", err)
		}
		h.logger.Infow("reloading program", "program", h.name, "changed", ev.Path)
		h.rebuild()
		return true
	default:
		return false
	}
}

// Reload rebuilds the program from disk immediately.
func (h *ProgramHandle) Reload() error {
	h.rebuild()
	return h.LastError()
}

func (h *ProgramHandle) rebuild() {
	program, err := h.build()

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.lastErr = err
		if h.stats != nil {
			h.stats.CompileFailed(h.name)
		}
		if h.program != nil {
			h.logger.Warnw("program failed to build, keeping previous version",
				"program", h.name, "generation", h.generation, "error", err)
		} else {
			h.logger.Errorw("program failed to build", "program", h.name, "error", err)
		}
		return
	}
	h.program = program
	h.lastErr = nil
	h.generation++
	h.logger.Debugw("program built", "program", h.name, "generation", h.generation,
		"uniforms", len(program.Uniforms))
}

func (h *ProgramHandle) build() (*Program, error) {
	vertex, err := ReadSource(StageVertex, h.vertexPath)
	if err != nil {
		return nil, err
	}
	fragment, err := ReadSource(StageFragment, h.fragmentPath)
	if err != nil {
		return nil, err
	}
	return h.compiler.Compile(h.name, vertex, fragment)
}

// Close stops watching the sources.
func (h *ProgramHandle) Close() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Close()
}
