package shaders

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/augment/logging"
)

type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *failureCounter) CompileFailed(program string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[program]++
}

func (c *failureCounter) get(program string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[program]
}

func programFiles(t *testing.T, fragment string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	vert := filepath.Join(dir, "video.vert")
	frag := filepath.Join(dir, "video.frag")
	writeFile(t, vert, testVertex)
	writeFile(t, frag, fragment)
	return vert, frag
}

const brokenFragment = "in vec2 TexCoord;\nvoid main() {\n"

func TestProgramHandleKeepsLastValidProgram(t *testing.T) {
	vert, frag := programFiles(t, testFragment)
	stats := &failureCounter{}
	h, err := NewProgramHandle("video", vert, frag, GLSLCompiler{}, HandleOptions{Stats: stats}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()

	first, err := h.Current()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first, test.ShouldNotBeNil)
	test.That(t, h.Generation(), test.ShouldEqual, uint64(1))

	for i := 0; i < 3; i++ {
		writeFile(t, frag, brokenFragment)
		test.That(t, h.Reload(), test.ShouldNotBeNil)
		p, err := h.Current()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.ID, test.ShouldEqual, first.ID)
	}
	var ce *CompileError
	test.That(t, errors.As(h.LastError(), &ce), test.ShouldBeTrue)
	test.That(t, ce.Stage, test.ShouldEqual, StageFragment)
	test.That(t, h.Generation(), test.ShouldEqual, uint64(1))
	test.That(t, stats.get("video"), test.ShouldEqual, 3)

	writeFile(t, frag, testFragment)
	test.That(t, h.Reload(), test.ShouldBeNil)
	second, err := h.Current()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.ID, test.ShouldNotEqual, first.ID)
	test.That(t, h.LastError(), test.ShouldBeNil)
	test.That(t, h.Generation(), test.ShouldEqual, uint64(2))
}

func TestProgramHandleStartsInvalid(t *testing.T) {
	vert, frag := programFiles(t, brokenFragment)
	h, err := NewProgramHandle("video", vert, frag, GLSLCompiler{}, HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()

	p, err := h.Current()
	test.That(t, p, test.ShouldBeNil)
	var ce *CompileError
	test.That(t, errors.As(err, &ce), test.ShouldBeTrue)
	test.That(t, ce.Line, test.ShouldEqual, 2)

	// A different failure replaces the error while no program exists.
	writeFile(t, frag, "in vec2 TexCoord;\n")
	test.That(t, h.Reload(), test.ShouldNotBeNil)
	_, err = h.Current()
	test.That(t, errors.As(err, &ce), test.ShouldBeTrue)
	test.That(t, ce.Msg, test.ShouldEqual, "missing entry point void main()")

	writeFile(t, frag, testFragment)
	test.That(t, h.Reload(), test.ShouldBeNil)
	p, err = h.Current()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.HasUniform("iVideo"), test.ShouldBeTrue)
}

func TestProgramHandleMissingFile(t *testing.T) {
	vert, _ := programFiles(t, testFragment)
	h, err := NewProgramHandle("video", vert, filepath.Join(filepath.Dir(vert), "missing.frag"),
		GLSLCompiler{}, HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()

	_, err = h.Current()
	var ce *CompileError
	test.That(t, errors.As(err, &ce), test.ShouldBeTrue)
	test.That(t, ce.Stage, test.ShouldEqual, StageRead)
}

func TestProgramHandleInvalidUTF8(t *testing.T) {
	vert, frag := programFiles(t, "void main() {}\n\xff\xfe")
	h, err := NewProgramHandle("video", vert, frag, GLSLCompiler{}, HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()

	var ce *CompileError
	test.That(t, errors.As(h.LastError(), &ce), test.ShouldBeTrue)
	test.That(t, ce.Msg, test.ShouldEqual, "source is not valid UTF-8")
}

func TestProgramHandlePollWithoutHotReload(t *testing.T) {
	vert, frag := programFiles(t, testFragment)
	h, err := NewProgramHandle("video", vert, frag, GLSLCompiler{}, HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()
	test.That(t, h.HotReload(), test.ShouldBeFalse)

	writeFile(t, frag, brokenFragment)
	time.Sleep(100 * time.Millisecond)
	test.That(t, h.Poll(), test.ShouldBeFalse)
	test.That(t, h.LastError(), test.ShouldBeNil)
	test.That(t, h.Generation(), test.ShouldEqual, uint64(1))
}

func TestProgramHandleHotReload(t *testing.T) {
	vert, frag := programFiles(t, testFragment)
	h, err := NewProgramHandle("video", vert, frag, GLSLCompiler{},
		HandleOptions{HotReload: true, Debounce: 20 * time.Millisecond}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, h.Close(), test.ShouldBeNil) }()
	test.That(t, h.HotReload(), test.ShouldBeTrue)
	test.That(t, h.Poll(), test.ShouldBeFalse)

	pollUntil := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			h.Poll()
			if cond() {
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("program was not reloaded")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	writeFile(t, frag, brokenFragment)
	pollUntil(func() bool { return h.LastError() != nil })
	p, err := h.Current()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldNotBeNil)
	test.That(t, h.Generation(), test.ShouldEqual, uint64(1))

	writeFile(t, frag, testFragment)
	pollUntil(func() bool { return h.Generation() == 2 })
	test.That(t, h.LastError(), test.ShouldBeNil)
}
