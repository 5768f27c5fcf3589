package rimage

import (
	"bytes"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func gradientFrame(w, h int) *Frame {
	f := NewFrame(w, h, RGB24)
	for y := 0; y < h; y++ {
		row := f.Row(y)
		for x := 0; x < w; x++ {
			row[x*3] = byte(x * 16)
			row[x*3+1] = byte(y * 16)
			row[x*3+2] = byte((x + y) * 8)
		}
	}
	return f
}

func TestImageFileLossless(t *testing.T) {
	dir := t.TempDir()
	frame := gradientFrame(9, 5)
	img, err := ToImage(frame)
	test.That(t, err, test.ShouldBeNil)

	for _, ext := range []string{".png", ".ppm", ".qoi"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "gradient"+ext)
			test.That(t, WriteImageFile(path, img), test.ShouldBeNil)

			back, err := ReadFrameFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, back.Width, test.ShouldEqual, 9)
			test.That(t, back.Height, test.ShouldEqual, 5)
			test.That(t, back.Data, test.ShouldResemble, frame.Data)
		})
	}
}

func TestImageFileJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradient.JPG")
	img, err := ToImage(gradientFrame(16, 8))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, WriteImageFile(path, img), test.ShouldBeNil)

	back, err := ReadImageFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Bounds().Dx(), test.ShouldEqual, 16)
	test.That(t, back.Bounds().Dy(), test.ShouldEqual, 8)
}

func TestImageFormats(t *testing.T) {
	test.That(t, ImageFormats(), test.ShouldResemble, []string{"jpeg", "png", "ppm", "qoi"})

	ext, err := FormatExtension("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ext, test.ShouldEqual, ".png")
	ext, err = FormatExtension(FormatJPEG)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ext, test.ShouldEqual, ".jpg")
	_, err = FormatExtension("gif")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown image format "gif"`)

	_, err = FormatFromPath("frame.bmp")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, WriteImageFile(filepath.Join(t.TempDir(), "frame.bmp"), nil), test.ShouldNotBeNil)

	var buf bytes.Buffer
	test.That(t, EncodeImage(&buf, nil, "gif"), test.ShouldNotBeNil)

	_, err = ReadImageFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}
