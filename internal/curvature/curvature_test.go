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

package curvature

import (
	"math"
	"testing"

	img "github.com/mlnoga/aegean-go/internal/image"
)

func gaussian2D(w, h int, cx, cy, sigma, amp float32) *img.Image {
	im := img.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float32(x)-cx, float32(y)-cy
			v := amp * float32(math.Exp(-float64(dx*dx+dy*dy)/float64(2*sigma*sigma)))
			im.Set(x, y, v)
		}
	}
	return im
}

func TestPeakIsNegative(t *testing.T) {
	im := gaussian2D(32, 32, 16, 16, 3, 10)
	c := Filter(im)
	if v := c.At(16, 16); v >= 0 {
		t.Fatalf("expected negative curvature at peak, got %g", v)
	}
}

func TestFlatFieldHasZeroCurvature(t *testing.T) {
	im := img.New(16, 16)
	for i := range im.Data {
		im.Data[i] = 5
	}
	c := Filter(im)
	for _, v := range c.Data {
		if math.Abs(float64(v)) > 1e-5 {
			t.Fatalf("expected zero curvature for a constant field, got %g", v)
		}
	}
}

func TestEstimateSigmaNonNegative(t *testing.T) {
	im := gaussian2D(32, 32, 16, 16, 3, 10)
	c := Filter(im)
	sigma := EstimateSigma(c)
	if sigma < 0 || math.IsNaN(float64(sigma)) {
		t.Fatalf("expected non-negative finite sigma, got %g", sigma)
	}
}
