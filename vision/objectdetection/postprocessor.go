package objectdetection

import "sort"

// Postprocessor defines a function that filters or reorders the components found in a frame.
type Postprocessor func([]ConnectedComponent) []ConnectedComponent

// NewAreaFilter returns a function that filters out components with fewer than area pixels.
func NewAreaFilter(area int) Postprocessor {
	return func(in []ConnectedComponent) []ConnectedComponent {
		out := make([]ConnectedComponent, 0, len(in))
		for _, c := range in {
			if c.Area >= area {
				out = append(out, c)
			}
		}
		return out
	}
}

// NewLargestFilter keeps the n components with the largest area, largest first. Ties keep scan
// order.
func NewLargestFilter(n int) Postprocessor {
	return func(in []ConnectedComponent) []ConnectedComponent {
		out := append([]ConnectedComponent(nil), in...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Area > out[j].Area })
		if len(out) > n {
			out = out[:n]
		}
		return out
	}
}
