// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package image holds the data model shared by the whole pipeline: the
// immutable source image plus the derived background/RMS/curvature maps
// that are shape-equal to it. Pixel indexing follows nightlight's
// row-major convention throughout (internal/findstars.go: Index = x +
// width*y), which resolves the x/y-swap open question raised in §9 of
// the specification: every map in this package is indexed the same way.
package image

import "math"

// Image is a rectangular array of 32-bit floats with a finite set of
// blanked (non-finite) pixels. Immutable after load -- nothing in this
// module mutates Data once constructed.
type Image struct {
	Width  int
	Height int
	Data   []float32 // row-major, len == Width*Height
}

// New allocates a zeroed image of the given size.
func New(width, height int) *Image {
	return &Image{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the pixel value at (x,y). No bounds checking -- callers are
// expected to stay within Width/Height, matching the teacher's hot-loop
// style (internal/background.go indexes Cells directly the same way).
func (im *Image) At(x, y int) float32 {
	return im.Data[x+y*im.Width]
}

// Set stores a pixel value at (x,y).
func (im *Image) Set(x, y int, v float32) {
	im.Data[x+y*im.Width] = v
}

// InBounds reports whether (x,y) lies within the image.
func (im *Image) InBounds(x, y int) bool {
	return x >= 0 && x < im.Width && y >= 0 && y < im.Height
}

// Finite reports whether the pixel at (x,y) is a finite, non-blanked value.
func (im *Image) Finite(x, y int) bool {
	v := im.At(x, y)
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// BackgroundMap is shape-equal to the source image; each pixel holds the
// locally estimated background level.
type BackgroundMap = Image

// RmsMap is shape-equal to the source image; each pixel holds the locally
// estimated noise level. Strictly positive, or NaN where the source tile
// had fewer than four finite samples (propagated as "no detection here").
type RmsMap = Image

// CurvatureMap is shape-equal to the source image; units of flux. Peaks
// have negative curvature under the convention fixed by the 3x3 Laplacian
// kernel [[1,1,1],[1,-8,1],[1,1,1]].
type CurvatureMap = Image

// SubImage is a dense rectangular crop of a parent image, with pixels
// outside the region of interest set to NaN. Used for islands (§4.4) and
// summits (§4.5).
type SubImage struct {
	*Image
	XMin, XMax, YMin, YMax int // offsets within the parent image, inclusive
}

// NewSubImage allocates a sub-image covering [xmin,xmax] x [ymin,ymax]
// (inclusive) of the parent, with every pixel initialized to NaN.
func NewSubImage(xmin, xmax, ymin, ymax int) *SubImage {
	w, h := xmax-xmin+1, ymax-ymin+1
	im := New(w, h)
	nan := float32(math.NaN())
	for i := range im.Data {
		im.Data[i] = nan
	}
	return &SubImage{Image: im, XMin: xmin, XMax: xmax, YMin: ymin, YMax: ymax}
}

// Crop copies the [xmin,xmax] x [ymin,ymax] region of parent into a new
// sub-image, clamping indices that fall outside parent's bounds to NaN.
func Crop(parent *Image, xmin, xmax, ymin, ymax int) *SubImage {
	sub := NewSubImage(xmin, xmax, ymin, ymax)
	for y := ymin; y <= ymax; y++ {
		if y < 0 || y >= parent.Height {
			continue
		}
		for x := xmin; x <= xmax; x++ {
			if x < 0 || x >= parent.Width {
				continue
			}
			sub.Set(x-xmin, y-ymin, parent.At(x, y))
		}
	}
	return sub
}

// NumFinite counts the finite pixels in the sub-image.
func (s *SubImage) NumFinite() int {
	n := 0
	for _, v := range s.Data {
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			n++
		}
	}
	return n
}

// ArgMax returns the island-local coordinates and value of the maximum
// finite pixel. ok is false if there are no finite pixels.
func (s *SubImage) ArgMax() (x, y int, value float32, ok bool) {
	value = float32(math.Inf(-1))
	for yy := 0; yy < s.Height; yy++ {
		for xx := 0; xx < s.Width; xx++ {
			v := s.At(xx, yy)
			if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) && v > value {
				value, x, y, ok = v, xx, yy, true
			}
		}
	}
	return x, y, value, ok
}
