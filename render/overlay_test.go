package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.viam.com/test"

	"go.viam.com/augment/vision/objectdetection"
)

func TestOverlaysLowerLeft(t *testing.T) {
	comps := []objectdetection.ConnectedComponent{
		{Left: 0, Top: 0, Width: 200, Height: 100, Area: 20000},
		{Left: 50, Top: 25, Width: 100, Height: 50, Area: 5000},
	}
	quads := Overlays(PanelLowerLeft, comps, 200, 100)
	test.That(t, quads, test.ShouldHaveLength, 2)

	// A component covering the whole frame covers the whole panel.
	test.That(t, quads[0], test.ShouldResemble, PanelLowerLeft)

	// left = x/W - 1 and top = (1 - y/H) - 1.
	test.That(t, quads[1].UpperLeft, test.ShouldResemble, mgl32.Vec2{-0.75, -0.25})
	test.That(t, quads[1].LowerRight, test.ShouldResemble, mgl32.Vec2{-0.25, -0.75})
}

// ndcEpsilon absorbs float32 rounding in the panel mapping.
const ndcEpsilon = 1e-6

func TestOverlaysOtherPanels(t *testing.T) {
	comps := []objectdetection.ConnectedComponent{{Left: 10, Top: 10, Width: 80, Height: 80}}
	full := Overlays(PanelFull, comps, 100, 100)[0]
	test.That(t, full.UpperLeft.ApproxEqualThreshold(mgl32.Vec2{-0.8, 0.8}, ndcEpsilon), test.ShouldBeTrue)
	test.That(t, full.LowerRight.ApproxEqualThreshold(mgl32.Vec2{0.8, -0.8}, ndcEpsilon), test.ShouldBeTrue)

	ur := Overlays(PanelUpperRight, comps, 100, 100)[0]
	test.That(t, ur.UpperLeft.ApproxEqualThreshold(mgl32.Vec2{0.1, 0.9}, ndcEpsilon), test.ShouldBeTrue)
	test.That(t, ur.LowerRight.ApproxEqualThreshold(mgl32.Vec2{0.9, 0.1}, ndcEpsilon), test.ShouldBeTrue)

	test.That(t, Overlays(PanelFull, comps, 0, 100), test.ShouldBeNil)
	test.That(t, Overlays(PanelFull, nil, 100, 100), test.ShouldBeEmpty)
}

func TestQuadVertices(t *testing.T) {
	v := PanelLowerLeft.Vertices()
	test.That(t, v[0], test.ShouldResemble, Vertex{Position: mgl32.Vec2{-1, 0}, TexCoords: mgl32.Vec2{0, 0}})
	test.That(t, v[1], test.ShouldResemble, Vertex{Position: mgl32.Vec2{-1, -1}, TexCoords: mgl32.Vec2{0, 1}})
	test.That(t, v[2], test.ShouldResemble, Vertex{Position: mgl32.Vec2{0, -1}, TexCoords: mgl32.Vec2{1, 1}})
	test.That(t, v[3], test.ShouldResemble, v[0])
	test.That(t, v[4], test.ShouldResemble, v[2])
	test.That(t, v[5], test.ShouldResemble, Vertex{Position: mgl32.Vec2{0, 0}, TexCoords: mgl32.Vec2{1, 0}})
}

func TestPanelNamed(t *testing.T) {
	q, err := PanelNamed("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q, test.ShouldResemble, PanelLowerLeft)

	q, err = PanelNamed("upper_right")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q, test.ShouldResemble, PanelUpperRight)

	_, err = PanelNamed("middle")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown panel "middle"`)
	test.That(t, PanelNames(), test.ShouldResemble,
		[]string{"full", "lower_left", "lower_right", "upper_left", "upper_right"})
}

func TestLayout(t *testing.T) {
	test.That(t, Layout(false), test.ShouldResemble, []PanelDraw{{Quad: PanelFull, Texture: TextureVideo}})
	split := Layout(true)
	test.That(t, split, test.ShouldHaveLength, 4)
	test.That(t, split[1], test.ShouldResemble, PanelDraw{Quad: PanelUpperRight, Texture: TextureVisualization})
}
