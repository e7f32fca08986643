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

// Package curvature implements the §4.3 discrete Laplacian filter used to
// separate blended peaks. The 3x3 convolution with reflected edges mirrors
// the hot-loop shape of nightlight's median/background 3x3 stencils
// (internal/background.go's gauss3x3Point, internal/median/median3x3.go),
// adapted here to a fixed Laplacian kernel instead of a Gaussian or median.
package curvature

import (
	"math"

	"github.com/mlnoga/aegean-go/internal/bgstats"
	img "github.com/mlnoga/aegean-go/internal/image"
)

// kernel is the fixed 3x3 Laplacian. Peaks have negative curvature under
// this sign convention -- load-bearing for the estimator's summit test.
var kernel = [3][3]float32{
	{1, 1, 1},
	{1, -8, 1},
	{1, 1, 1},
}

// Filter convolves src with the Laplacian kernel, reflecting at the edges,
// and returns the resulting curvature map.
func Filter(src *img.Image) *img.CurvatureMap {
	out := img.New(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			sum := float32(0)
			anyNaN := false
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx, sy := reflect(x+kx, src.Width), reflect(y+ky, src.Height)
					v := src.At(sx, sy)
					if math.IsNaN(float64(v)) {
						anyNaN = true
						continue
					}
					sum += kernel[ky+1][kx+1] * v
				}
			}
			if anyNaN {
				out.Set(x, y, float32(math.NaN()))
			} else {
				out.Set(x, y, sum)
			}
		}
	}
	return out
}

// reflect maps an out-of-bounds index back into [0,size) by reflecting at
// the boundary, e.g. -1 -> 0, size -> size-1.
func reflect(i, size int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= size {
		return 2*size - i - 1
	}
	return i
}

// EstimateSigma estimates the curvature map's noise level as the
// IQR-scaled sigma of its finite values, used as c_sigma when the caller
// does not supply one.
func EstimateSigma(c *img.CurvatureMap) float32 {
	samples := make([]float32, 0, len(c.Data))
	for _, v := range c.Data {
		if !math.IsNaN(float64(v)) {
			samples = append(samples, v)
		}
	}
	return bgstats.MedianAndIQRSigma(samples).Sigma
}
