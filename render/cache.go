package render

// CachedValue holds a value derived from the last source it was given. The transform runs once
// per Update, never on reads, so an expensive conversion is paid once per new source no matter
// how often the value is used. A CachedValue is not safe for concurrent use.
type CachedValue[S, D any] struct {
	transform func(S) D
	derived   D
}

// NewCachedValue computes the derived value of seed immediately.
func NewCachedValue[S, D any](seed S, transform func(S) D) *CachedValue[S, D] {
	return &CachedValue[S, D]{transform: transform, derived: transform(seed)}
}

// Update recomputes the derived value from src. There is no equality check: callers only update
// when a new source has actually arrived.
func (c *CachedValue[S, D]) Update(src S) {
	c.derived = c.transform(src)
}

// Current returns the last derived value.
func (c *CachedValue[S, D]) Current() D {
	return c.derived
}
