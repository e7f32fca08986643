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

// Package background implements the §4.2 background/RMS mesh estimator.
// The per-tile median + IQR/1.34896 summary is the same robust-statistics
// idea as nightlight's internal/background.go (FitCell -> medianAndMAD),
// generalized from a fixed grid spacing to the beam-scaled mesh geometry
// the specification requires.
package background

import (
	"math"

	"github.com/mlnoga/aegean-go/internal/bgstats"
	"github.com/mlnoga/aegean-go/internal/beam"
	img "github.com/mlnoga/aegean-go/internal/image"
)

// DefaultMesh is the default number of beam widths per mesh tile.
const DefaultMesh = 20

// Result bundles the background and RMS maps produced by Estimate.
type Result struct {
	Background *img.BackgroundMap
	Rms        *img.RmsMap
}

// Estimate tiles the image with a mesh whose cell size is derived from the
// pixel beam at the image centre, and assigns each tile's robust median
// and IQR-scaled sigma uniformly to every pixel it covers.
func Estimate(src *img.Image, centerBeam beam.Pixel, mesh int) Result {
	if mesh <= 0 {
		mesh = DefaultMesh
	}
	tw, th := tileSize(centerBeam, mesh, src.Width, src.Height)

	bg := img.New(src.Width, src.Height)
	rms := img.New(src.Width, src.Height)

	xStarts := tileStarts(src.Width, tw)
	yStarts := tileStarts(src.Height, th)

	buffer := make([]float32, 0, tw*th)
	for _, ys := range yStarts {
		ye := ys + th
		if ye > src.Height {
			ye = src.Height
		}
		for _, xs := range xStarts {
			xe := xs + tw
			if xe > src.Width {
				xe = src.Width
			}

			buffer = buffer[:0]
			for y := ys; y < ye; y++ {
				for x := xs; x < xe; x++ {
					v := src.At(x, y)
					if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
						buffer = append(buffer, v)
					}
				}
			}

			tile := bgstats.MedianAndIQRSigma(buffer)
			for y := ys; y < ye; y++ {
				for x := xs; x < xe; x++ {
					bg.Set(x, y, tile.Median)
					rms.Set(x, y, tile.Sigma)
				}
			}
		}
	}

	return Result{Background: bg, Rms: rms}
}

// Forced bypasses estimation entirely: background is 0 everywhere, and
// rms is the given forced value everywhere -- the --rms CLI fast path.
func Forced(width, height int, forcedRms float32) Result {
	bg := img.New(width, height)
	rms := img.New(width, height)
	for i := range rms.Data {
		rms.Data[i] = forcedRms
	}
	return Result{Background: bg, Rms: rms}
}

// tileSize computes the mesh tile width/height in pixels from the pixel
// beam at image centre, per §4.2: mesh*max(|cos(pa)*b|,|sin(pa)*a|) and
// mesh*max(|sin(pa)*b|,|cos(pa)*a|). If a tile dimension would exceed the
// image, the whole image is used as a single tile on that axis.
func tileSize(b beam.Pixel, mesh int, imgW, imgH int) (tw, th int) {
	pa := b.PA * math.Pi / 180
	cosPA, sinPA := math.Cos(pa), math.Sin(pa)

	w := int(math.Ceil(float64(mesh) * math.Max(math.Abs(cosPA*b.Minor), math.Abs(sinPA*b.Major))))
	h := int(math.Ceil(float64(mesh) * math.Max(math.Abs(sinPA*b.Minor), math.Abs(cosPA*b.Major))))

	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	if w >= imgW {
		w = imgW
	}
	if h >= imgH {
		h = imgH
	}
	return w, h
}

// tileStarts returns tile start offsets along one axis, anchored so a
// tile is centered on the image midpoint, tiling outward to the edges.
func tileStarts(size, tileSize int) []int {
	if tileSize >= size {
		return []int{0}
	}
	center := size / 2
	// Anchor the tile boundary straddling the center.
	firstStart := center - tileSize/2
	// Walk back to the leftmost tile start such that repeated steps of
	// tileSize land exactly on firstStart (mod tileSize).
	start := firstStart % tileSize
	if start > 0 {
		start -= tileSize
	}
	starts := []int{}
	for s := start; s < size; s += tileSize {
		if s+tileSize <= 0 {
			continue
		}
		st := s
		if st < 0 {
			st = 0
		}
		starts = append(starts, st)
	}
	if len(starts) == 0 {
		starts = append(starts, 0)
	}
	return dedupe(starts)
}

func dedupe(s []int) []int {
	out := s[:0]
	var last = -1
	for _, v := range s {
		if v != last {
			out = append(out, v)
			last = v
		}
	}
	return out
}
