package objectdetection

import (
	"image"
	"testing"

	"go.viam.com/test"

	"go.viam.com/augment/rimage"
)

func maskFrom(rows ...string) *rimage.Frame {
	f := rimage.NewFrame(len(rows[0]), len(rows), rimage.Gray8)
	for y, row := range rows {
		for x, ch := range row {
			if ch == '#' {
				f.Data[y*f.Stride+x] = 255
			}
		}
	}
	return f
}

func TestLabelComponentsFourConnectivity(t *testing.T) {
	mask := maskFrom(
		"##....",
		"##..#.",
		"...#..",
		"......",
		"#....#",
	)
	components, err := LabelComponents(mask)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, components, test.ShouldResemble, []ConnectedComponent{
		{Left: 0, Top: 0, Width: 2, Height: 2, Area: 4},
		{Left: 4, Top: 1, Width: 1, Height: 1, Area: 1},
		// diagonal neighbors are separate components
		{Left: 3, Top: 2, Width: 1, Height: 1, Area: 1},
		{Left: 0, Top: 4, Width: 1, Height: 1, Area: 1},
		{Left: 5, Top: 4, Width: 1, Height: 1, Area: 1},
	})
	test.That(t, components[0].Bounds(), test.ShouldResemble, image.Rect(0, 0, 2, 2))
}

func TestLabelComponentsConcaveShape(t *testing.T) {
	mask := maskFrom(
		"#...#",
		"#...#",
		"#####",
	)
	components, err := LabelComponents(mask)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, components, test.ShouldResemble, []ConnectedComponent{
		{Left: 0, Top: 0, Width: 5, Height: 3, Area: 9},
	})
}

func TestLabelComponentsRejectsColor(t *testing.T) {
	_, err := LabelComponents(rimage.NewFrame(2, 2, rimage.RGB24))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLargestFilter(t *testing.T) {
	in := []ConnectedComponent{{Area: 3}, {Area: 9}, {Area: 5}}
	test.That(t, NewLargestFilter(2)(in), test.ShouldResemble, []ConnectedComponent{{Area: 9}, {Area: 5}})
	test.That(t, NewAreaFilter(5)(in), test.ShouldResemble, []ConnectedComponent{{Area: 9}, {Area: 5}})
}
