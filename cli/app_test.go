package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"go.viam.com/augment/config"
	"go.viam.com/augment/rimage"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := NewApp(&out, &errOut)
	err := a.RunContext(context.Background(), append([]string{"augment"}, args...))
	return out.String(), err
}

func writeSquarePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{A: 255}
			if x >= 80 && x < 120 && y >= 80 && y < 120 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "square.png")
	test.That(t, imaging.Save(img, path), test.ShouldBeNil)
	return path
}

func TestAnalyzeAction(t *testing.T) {
	dir := t.TempDir()
	input := writeSquarePNG(t, dir)
	annotated := filepath.Join(dir, "annotated.png")
	mask := filepath.Join(dir, "mask.png")

	out, err := runApp(t, "analyze", "-o", annotated, "--mask", mask, input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "square.png: 1 components")
	test.That(t, out, test.ShouldContainSubstring, "AREA")

	for _, p := range []string{annotated, mask} {
		img, err := imaging.Open(p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 200)
	}

	maskImg, err := imaging.Open(mask)
	test.That(t, err, test.ShouldBeNil)
	r, _, _, _ := maskImg.At(100, 100).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))
	r, _, _, _ = maskImg.At(5, 5).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0))
}

func TestAnalyzeActionMinArea(t *testing.T) {
	input := writeSquarePNG(t, t.TempDir())

	out, err := runApp(t, "analyze", "--min-area", "100000", input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "square.png: 0 components")
}

func TestAnalyzeActionUsesConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeSquarePNG(t, dir)
	cfgPath := filepath.Join(dir, "run.json")
	raw := `{"video": {"path": "clip.mp4"}, "analyzer": {"min_area": 100000}}`
	test.That(t, os.WriteFile(cfgPath, []byte(raw), 0o600), test.ShouldBeNil)

	out, err := runApp(t, "--config", cfgPath, "analyze", input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "0 components")

	raw = `{"video": {"path": "clip.mp4"}, "analyzer": {"blur_size": 4}}`
	test.That(t, os.WriteFile(cfgPath, []byte(raw), 0o600), test.ShouldBeNil)
	_, err = runApp(t, "--config", cfgPath, "analyze", input)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "blur_size")
}

func TestAnalyzeActionMaxComponents(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{A: 255}
			small := x >= 20 && x < 50 && y >= 20 && y < 50
			large := x >= 100 && x < 160 && y >= 100 && y < 160
			if small || large {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	input := filepath.Join(dir, "two.png")
	test.That(t, imaging.Save(img, input), test.ShouldBeNil)

	out, err := runApp(t, "analyze", input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "two.png: 2 components")

	cfgPath := filepath.Join(dir, "run.json")
	raw := `{"video": {"path": "clip.mp4"}, "analyzer": {"max_components": 1}}`
	test.That(t, os.WriteFile(cfgPath, []byte(raw), 0o600), test.ShouldBeNil)
	out, err = runApp(t, "--config", cfgPath, "analyze", input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "two.png: 1 components")

	ac := config.Default().Analyzer
	ac.MaxComponents = 1
	detector, err := newDetector(ac)
	test.That(t, err, test.ShouldBeNil)
	comps, err := detector.Analyze(rimage.FrameFromImage(img), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, comps, test.ShouldHaveLength, 1)
	test.That(t, comps[0].Left, test.ShouldBeGreaterThan, 90)
}

func TestActionArguments(t *testing.T) {
	_, err := runApp(t, "analyze")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly one image")

	_, err = runApp(t, "probe")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly one video")

	_, err = runApp(t, "analyze", filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "missing.png")
}

func TestRunActionConfigErrors(t *testing.T) {
	_, err := runApp(t, "run")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

	_, err = runApp(t, "run", "--filter", "sepia", "clip.mp4")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown filter "sepia"`)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.json")
	raw := `{"video": {"path": "clip.mp4", "channel_policy": "lifo"}}`
	test.That(t, os.WriteFile(cfgPath, []byte(raw), 0o600), test.ShouldBeNil)
	_, err = runApp(t, "-c", cfgPath, "run")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lifo")
}
