package rimage

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"

	"go.viam.com/augment/utils"
)

// Image file formats. Importing ppm and qoi also registers their decoders with image.Decode, so
// ReadImageFile reads all of them.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatPPM  = "ppm"
	FormatQOI  = "qoi"
)

var formatExtensions = map[string]string{
	FormatPNG:  ".png",
	FormatJPEG: ".jpg",
	FormatPPM:  ".ppm",
	FormatQOI:  ".qoi",
}

// ImageFormats returns the names of the formats EncodeImage writes.
func ImageFormats() []string {
	names := make([]string, 0, len(formatExtensions))
	for name := range formatExtensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatExtension returns the file extension, with the dot, used for format. An empty format is
// PNG.
func FormatExtension(format string) (string, error) {
	if format == "" {
		format = FormatPNG
	}
	ext, ok := formatExtensions[format]
	if !ok {
		return "", utils.NewUnknownNameError("image format", format, ImageFormats())
	}
	return ext, nil
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".ppm":
		return FormatPPM, nil
	case ".qoi":
		return FormatQOI, nil
	default:
		return "", errors.Errorf("cannot tell image format of %q from extension %q", path, ext)
	}
}

// EncodeImage writes img to w in the named format.
func EncodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case FormatPNG, "":
		return imaging.Encode(w, img, imaging.PNG)
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG)
	case FormatPPM:
		return ppm.Encode(w, img)
	case FormatQOI:
		return qoi.Encode(w, img)
	default:
		return utils.NewUnknownNameError("image format", format, ImageFormats())
	}
}

// WriteImageFile encodes img into path in the format its extension names.
func WriteImageFile(path string, img image.Image) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return EncodeImage(f, img, format)
}

// ReadImageFile decodes any registered image format, including PPM and QOI.
func ReadImageFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %q", path)
	}
	return img, nil
}

// ReadFrameFile reads an image file into a packed RGB24 frame.
func ReadFrameFile(path string) (*Frame, error) {
	img, err := ReadImageFile(path)
	if err != nil {
		return nil, err
	}
	return FrameFromImage(img), nil
}
