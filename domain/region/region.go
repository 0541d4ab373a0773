// Package region defines screen regions and their resolution against a base area.
//
// Regions are either absolute (stored screen bounds) or relative: normalized
// corner fractions of a designated base area. Relative regions keep tracking
// the base area when the anchored window moves or resizes. Resolution is pure
// geometry with no I/O, so it can be tested without a live screen.
package region

import (
	"errors"
	"fmt"
	"image"
)

// ErrUnresolvedBaseArea is returned when a relative region is resolved
// without live base area bounds. This is fatal for the running macro:
// without an anchor the stored fractions are meaningless.
var ErrUnresolvedBaseArea = errors.New("relative region has no base area binding")

// RelBounds stores a rectangle as corner fractions of a base area.
// All values are in [0,1]; X1,Y1 is the top-left corner, X2,Y2 the
// bottom-right corner, measured against the base area's pixel span.
type RelBounds struct {
	X1, Y1, X2, Y2 float64
}

// Region is a stored screen region. Exactly one of Bounds and Offset is set:
// Bounds for absolute regions, Offset for regions relative to the base area.
type Region struct {
	ID     string
	Bounds *image.Rectangle
	Offset *RelBounds
}

// Abs creates an absolute region.
func Abs(id string, r image.Rectangle) Region {
	rc := r.Canon()
	return Region{ID: id, Bounds: &rc}
}

// Rel creates a region relative to the base area.
func Rel(id string, off RelBounds) Region {
	return Region{ID: id, Offset: &off}
}

// IsRelative returns true if the region resolves against the base area.
func (r Region) IsRelative() bool {
	return r.Offset != nil
}

// Resolve maps the region to current absolute screen coordinates.
// Absolute regions return their stored bounds unchanged. Relative regions
// are projected onto base; base must be non-nil for them.
// The base pointer is dereferenced once up front so a caller-side swap of
// the bounds cannot tear a single resolution.
func Resolve(r Region, base *image.Rectangle) (image.Rectangle, error) {
	if r.Bounds != nil {
		return *r.Bounds, nil
	}
	if r.Offset == nil {
		return image.Rectangle{}, fmt.Errorf("region %q: neither absolute bounds nor offset set", r.ID)
	}
	if base == nil {
		return image.Rectangle{}, fmt.Errorf("region %q: %w", r.ID, ErrUnresolvedBaseArea)
	}
	snapshot := *base
	return FromRel(snapshot, *r.Offset), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToRel converts absolute bounds r into fractions of base.
// The denominator is the base's inclusive pixel span, never below 1,
// so degenerate bases cannot divide by zero. Results are clamped to [0,1].
func ToRel(base, r image.Rectangle) RelBounds {
	base = base.Canon()
	r = r.Canon()

	denomX := float64(max(1, base.Dx()-1))
	denomY := float64(max(1, base.Dy()-1))

	return RelBounds{
		X1: clamp01(float64(r.Min.X-base.Min.X) / denomX),
		Y1: clamp01(float64(r.Min.Y-base.Min.Y) / denomY),
		X2: clamp01(float64(r.Max.X-1-base.Min.X) / denomX),
		Y2: clamp01(float64(r.Max.Y-1-base.Min.Y) / denomY),
	}
}

// FromRel projects fractions onto base, yielding absolute bounds.
// Inverse of ToRel up to rounding.
func FromRel(base image.Rectangle, rel RelBounds) image.Rectangle {
	base = base.Canon()

	denomX := float64(max(1, base.Dx()-1))
	denomY := float64(max(1, base.Dy()-1))

	x1 := base.Min.X + int(clamp01(rel.X1)*denomX+0.5)
	y1 := base.Min.Y + int(clamp01(rel.Y1)*denomY+0.5)
	x2 := base.Min.X + int(clamp01(rel.X2)*denomX+0.5)
	y2 := base.Min.Y + int(clamp01(rel.Y2)*denomY+0.5)

	return image.Rect(x1, y1, x2+1, y2+1).Canon()
}

// Center returns the midpoint of r.
func Center(r image.Rectangle) image.Point {
	r = r.Canon()
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

// Usable reports whether r is large enough to click or scan.
// Areas a couple of pixels wide are treated as empty; they come from
// collapsed windows or unset selections.
func Usable(r image.Rectangle) bool {
	r = r.Canon()
	return r.Dx() > 2 && r.Dy() > 2
}
