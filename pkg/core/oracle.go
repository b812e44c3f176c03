package core

// RangeProvider reports the offsets a consumer is displaying right now.
// It returns false while no range is available yet.
type RangeProvider func() (Range, bool)

// StaticRange returns a provider that always reports r.
func StaticRange(r Range) RangeProvider {
	return func() (Range, bool) {
		return r, r.Valid()
	}
}

// RegisterVisibleRangeProvider stores fn as the visible-range oracle.
// The last registration wins; nil unregisters.
func (c *Coordinator) RegisterVisibleRangeProvider(fn RangeProvider) {
	if fn == nil {
		c.oracle.Store(nil)
		return
	}
	c.oracle.Store(&fn)
}

// VisibleRange asks the registered provider for its current range.
// It returns false when no provider is registered or the range is invalid.
func (c *Coordinator) VisibleRange() (Range, bool) {
	fn := c.oracle.Load()
	if fn == nil {
		return Range{}, false
	}
	r, ok := (*fn)()
	if !ok || !r.Valid() {
		return Range{}, false
	}
	return r, true
}
