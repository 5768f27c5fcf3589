package render

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/samber/lo"

	"go.viam.com/augment/utils"
	"go.viam.com/augment/vision/objectdetection"
)

// Vertex is one corner of a textured quad in normalized device coordinates.
type Vertex struct {
	Position  mgl32.Vec2
	TexCoords mgl32.Vec2
}

// Quad is an axis-aligned rectangle in normalized device coordinates, where y grows upward.
// UpperLeft is the corner shown at the top left of the screen.
type Quad struct {
	UpperLeft  mgl32.Vec2
	LowerRight mgl32.Vec2
}

// Vertices returns the quad as two triangles. The texture origin is the upper left corner so
// that images stored top row first appear upright.
func (q Quad) Vertices() [6]Vertex {
	ul := Vertex{Position: q.UpperLeft, TexCoords: mgl32.Vec2{0, 0}}
	ll := Vertex{Position: mgl32.Vec2{q.UpperLeft.X(), q.LowerRight.Y()}, TexCoords: mgl32.Vec2{0, 1}}
	lr := Vertex{Position: q.LowerRight, TexCoords: mgl32.Vec2{1, 1}}
	ur := Vertex{Position: mgl32.Vec2{q.LowerRight.X(), q.UpperLeft.Y()}, TexCoords: mgl32.Vec2{1, 0}}
	return [6]Vertex{ul, ll, lr, ul, lr, ur}
}

// Map converts a point given as fractions of the quad's width and height, measured from its
// upper left corner, into normalized device coordinates.
func (q Quad) Map(fx, fy float32) mgl32.Vec2 {
	size := q.LowerRight.Sub(q.UpperLeft)
	return mgl32.Vec2{q.UpperLeft.X() + fx*size.X(), q.UpperLeft.Y() + fy*size.Y()}
}

// The screen regions used by the layouts.
var (
	PanelFull       = Quad{UpperLeft: mgl32.Vec2{-1, 1}, LowerRight: mgl32.Vec2{1, -1}}
	PanelUpperLeft  = Quad{UpperLeft: mgl32.Vec2{-1, 1}, LowerRight: mgl32.Vec2{0, 0}}
	PanelUpperRight = Quad{UpperLeft: mgl32.Vec2{0, 1}, LowerRight: mgl32.Vec2{1, 0}}
	PanelLowerLeft  = Quad{UpperLeft: mgl32.Vec2{-1, 0}, LowerRight: mgl32.Vec2{0, -1}}
	PanelLowerRight = Quad{UpperLeft: mgl32.Vec2{0, 0}, LowerRight: mgl32.Vec2{1, -1}}
)

var panelsByName = map[string]Quad{
	"full":        PanelFull,
	"upper_left":  PanelUpperLeft,
	"upper_right": PanelUpperRight,
	"lower_left":  PanelLowerLeft,
	"lower_right": PanelLowerRight,
}

// DefaultOverlayPanel names the panel detections are drawn over.
const DefaultOverlayPanel = "lower_left"

// PanelNamed returns the panel with the given name. An empty name is DefaultOverlayPanel.
func PanelNamed(name string) (Quad, error) {
	if name == "" {
		name = DefaultOverlayPanel
	}
	q, ok := panelsByName[name]
	if !ok {
		return Quad{}, utils.NewUnknownNameError("panel", name, PanelNames())
	}
	return q, nil
}

// PanelNames lists the valid panel names in sorted order.
func PanelNames() []string {
	names := lo.Keys(panelsByName)
	sort.Strings(names)
	return names
}

// TextureSource selects which image a panel shows.
type TextureSource int

// The images a panel can show.
const (
	TextureVideo TextureSource = iota
	TextureVisualization
)

// PanelDraw is one panel of a layout.
type PanelDraw struct {
	Quad    Quad
	Texture TextureSource
}

// Layout returns the panels to draw. The split screen shows the video three times and the
// detection mask in the upper right; otherwise the video fills the screen.
func Layout(splitScreen bool) []PanelDraw {
	if !splitScreen {
		return []PanelDraw{{Quad: PanelFull, Texture: TextureVideo}}
	}
	return []PanelDraw{
		{Quad: PanelUpperLeft, Texture: TextureVideo},
		{Quad: PanelUpperRight, Texture: TextureVisualization},
		{Quad: PanelLowerLeft, Texture: TextureVideo},
		{Quad: PanelLowerRight, Texture: TextureVideo},
	}
}

// Overlays places one quad over panel for each component found in a width by height frame.
// Frame rows run top to bottom while device y runs bottom to top, so the vertical axis is
// flipped.
func Overlays(panel Quad, components []objectdetection.ConnectedComponent, width, height int) []Quad {
	if width <= 0 || height <= 0 {
		return nil
	}
	w, h := float32(width), float32(height)
	return lo.Map(components, func(c objectdetection.ConnectedComponent, _ int) Quad {
		return Quad{
			UpperLeft:  panel.Map(float32(c.Left)/w, float32(c.Top)/h),
			LowerRight: panel.Map(float32(c.Left+c.Width)/w, float32(c.Top+c.Height)/h),
		}
	})
}
