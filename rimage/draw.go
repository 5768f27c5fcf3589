package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawRectangleEmpty strokes the outline of r into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// Palette returns n visually distinct, fully saturated colors spread evenly around the hue wheel.
func Palette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		out[i] = colorful.Hsv(float64(i)*360/float64(max(n, 1)), 0.85, 0.95).Clamped()
	}
	return out
}

// Annotation is a labeled box to draw over a frame.
type Annotation struct {
	Box   image.Rectangle
	Label string
}

// Annotate renders the frame and strokes every annotation over it, one palette color each.
func Annotate(f *Frame, annotations []Annotation) (image.Image, error) {
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForRGBA(img)
	colors := Palette(len(annotations))
	for i, a := range annotations {
		DrawRectangleEmpty(dc, a.Box, colors[i], 2)
		if a.Label != "" {
			DrawString(dc, a.Label, image.Pt(a.Box.Min.X, a.Box.Max.Y+2), colors[i], 12)
		}
	}
	return dc.Image(), nil
}
