// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the page geometry shared by blocks and features.
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
	"slices"
)

// Rect is an axis aligned bounding box in page units, origin at the top-left
// corner of the page.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FromCorners builds a Rect from its top-left and bottom-right corners, as
// used by hOCR bbox titles.
func FromCorners(x0, y0, x1, y1 float64) Rect {
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// CenterX returns the horizontal center.
func (r Rect) CenterX() float64 { return r.X + r.Width/2 }

// CenterY returns the vertical center.
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// IsValid reports whether the box has a positive width and height.
func (r Rect) IsValid() bool {
	return r.Width > 0 && r.Height > 0
}

// Area is zero for invalid boxes.
func (r Rect) Area() float64 {
	if !r.IsValid() {
		return 0
	}

	return r.Width * r.Height
}

// AspectRatio is width over height, zero when the height is not positive.
func (r Rect) AspectRatio() float64 {
	if r.Height <= 0 {
		return 0
	}

	return r.Width / r.Height
}

// String returns the "x y w h" representation used for storage.
func (r Rect) String() string {
	return fmt.Sprintf("%g %g %g %g", r.X, r.Y, r.Width, r.Height)
}

// Value implements the driver.Valuer interface for database serialization.
func (r Rect) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (r *Rect) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = Rect{}

		return nil
	case []byte:
		return r.parse(string(v))
	case string:
		return r.parse(v)
	default:
		return fmt.Errorf("spatial: unsupported type for Rect scan: %T", value)
	}
}

func (r *Rect) parse(s string) error {
	var x, y, w, h float64
	if _, err := fmt.Sscanf(s, "%g %g %g %g", &x, &y, &w, &h); err != nil {
		return fmt.Errorf("spatial: parsing rect %q: %w", s, err)
	}

	*r = Rect{X: x, Y: y, Width: w, Height: h}

	return nil
}

// Median returns the median of values, 0 for an empty slice. The input is
// not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	s := slices.Clone(values)
	slices.Sort(s)

	if n%2 == 1 {
		return s[n/2]
	}

	return (s[n/2-1] + s[n/2]) / 2
}

// Ratio divides a by b, returning 0 instead of NaN or Inf.
func Ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}

	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}

	return r
}
