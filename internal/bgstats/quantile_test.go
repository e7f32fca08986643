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

package bgstats

import (
	"math"
	"testing"
)

func TestMedianAndIQRSigmaTooFewSamples(t *testing.T) {
	for n := 0; n < 4; n++ {
		samples := make([]float32, n)
		tile := MedianAndIQRSigma(samples)
		if !math.IsNaN(float64(tile.Median)) || !math.IsNaN(float64(tile.Sigma)) {
			t.Errorf("n=%d: want (NaN,NaN), got (%v,%v)", n, tile.Median, tile.Sigma)
		}
	}
}

func TestMedianAndIQRSigmaUniformNoise(t *testing.T) {
	// A symmetric, evenly spaced sample set has a known median and a known
	// IQR, so the sigma estimate can be checked against closed form.
	samples := make([]float32, 1001)
	for i := range samples {
		samples[i] = float32(i) - 500
	}
	tile := MedianAndIQRSigma(samples)
	if math.Abs(float64(tile.Median)) > 1e-6 {
		t.Errorf("median = %v, want 0", tile.Median)
	}
	// p75-p25 of -500..500 evenly spaced is ~500.
	wantSigma := 500.0 / IQRToSigma
	if math.Abs(float64(tile.Sigma)-wantSigma) > 1 {
		t.Errorf("sigma = %v, want ~%v", tile.Sigma, wantSigma)
	}
}

func TestSelectKthMatchesSort(t *testing.T) {
	data := []float32{9, 3, 7, 1, 8, 2, 6, 4, 5}
	sorted := append([]float32(nil), data...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	for k := 0; k < len(data); k++ {
		working := append([]float32(nil), data...)
		got := SelectKth(working, k)
		if got != sorted[k] {
			t.Errorf("SelectKth(data, %d) = %v, want %v", k, got, sorted[k])
		}
	}
}
