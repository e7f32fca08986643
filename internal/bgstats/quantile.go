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

// Package bgstats provides the median/IQR quantile machinery shared by the
// background/RMS estimator and the curvature noise estimator. The quickselect
// partitioning behind SelectKth is adapted from nightlight's internal/qsort.go;
// MedianAndIQRSigma sorts its samples and takes the p25/p75 quantiles from
// gonum.org/v1/gonum/stat.Quantile.
package bgstats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// IQRToSigma is the factor that rescales an inter-quartile range to an
// equivalent Gaussian standard deviation.
const IQRToSigma = 1.34896

// Tile holds the result of summarizing one mesh tile or convolution patch:
// a robust location (median) and scale (IQR/1.34896) estimate.
type Tile struct {
	Median float32
	Sigma  float32
}

// quickselectFloat32 partitions data in place so that data[k] holds the
// value that would occupy position k in the ascending sort, and returns it.
// Adapted from nightlight's QSelectFloat32/QPartitionFloat32 (internal/qsort.go).
// data must not contain NaN.
func quickselectFloat32(data []float32, k int) float32 {
	lo, hi := 0, len(data)-1
	for lo < hi {
		pivot := data[(lo+hi)>>1]
		l, r := lo-1, hi+1
		for {
			for {
				l++
				if data[l] >= pivot {
					break
				}
			}
			for {
				r--
				if data[r] <= pivot {
					break
				}
			}
			if l >= r {
				break
			}
			data[l], data[r] = data[r], data[l]
		}
		if k <= r {
			hi = r
		} else {
			lo = r + 1
		}
	}
	return data[k]
}

// MedianAndIQRSigma computes the median and the IQR-rescaled-to-sigma of a
// slice of finite float32 samples. The slice is reordered in place.
// Returns (NaN, NaN) if fewer than 4 samples are given, matching §4.2's
// "fewer than four finite samples" rule.
func MedianAndIQRSigma(samples []float32) Tile {
	n := len(samples)
	if n < 4 {
		return Tile{Median: float32(math.NaN()), Sigma: float32(math.NaN())}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	median := samples[n/2]
	p25 := quantileSorted(samples, 0.25)
	p75 := quantileSorted(samples, 0.75)
	sigma := float32((float64(p75) - float64(p25)) / IQRToSigma)
	return Tile{Median: median, Sigma: sigma}
}

// quantileSorted delegates to gonum's empirical quantile estimator over an
// already-sorted slice. stat.Empirical returns a sample value read off the
// empirical CDF; it does not interpolate between neighbouring samples.
func quantileSorted(sorted []float32, p float64) float32 {
	f64 := make([]float64, len(sorted))
	for i, v := range sorted {
		f64[i] = float64(v)
	}
	return float32(stat.Quantile(p, stat.Empirical, f64, nil))
}

// SelectKth returns the k-th smallest (0-indexed) element of data, without
// fully sorting it. data is reordered in place.
func SelectKth(data []float32, k int) float32 {
	return quickselectFloat32(data, k)
}
