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

// Package estimate implements the §4.5 parameter estimator: turning one
// island's pixels into an initial, bounded Gaussian parameter set for the
// fitter. Candidate summits are themselves found by re-running the §4.4
// segmenter over a curvature-masked view of the island, grounded on the
// same connected-component machinery as internal/island.
package estimate

import (
	"math"

	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/flags"
	img "github.com/mlnoga/aegean-go/internal/image"
	"github.com/mlnoga/aegean-go/internal/island"
)

// Param is a single bounded fit parameter.
type Param struct {
	Value float64
	Min   float64
	Max   float64
	Fixed bool
}

// fixedAt returns a parameter pinned to v, bounds collapsed onto it.
func fixedAt(v float64) Param {
	return Param{Value: v, Min: v, Max: v, Fixed: true}
}

// Candidate is one initial Gaussian component, in island-local pixel
// coordinates.
type Candidate struct {
	Amp   Param
	Xo    Param
	Yo    Param
	Major Param // sigma, pixels
	Minor Param // sigma, pixels
	PA    Param // degrees
	Flags flags.Flags
}

// Input bundles everything the estimator needs for one island. Rms and
// Curvature must be shape-equal to Data and share its coordinate frame
// (i.e. cropped from the full maps to the same bounding box).
type Input struct {
	Data      *img.SubImage
	Rms       *img.SubImage
	Curvature *img.SubImage
	PixBeam   beam.Pixel
	SeedClip  float64
	CSigma    float64
}

const sqrt2 = 1.4142135623730951

// Estimate classifies in.Data by finite-pixel count and returns one
// candidate per detected summit (or per §4.5's degenerate-case rules).
func Estimate(in Input) []Candidate {
	n := in.Data.NumFinite()
	switch {
	case n < 4:
		return estimateTooSmall(in)
	case n <= 6:
		return estimateFixedToPSF(in)
	default:
		return estimateSummits(in)
	}
}

func estimateTooSmall(in Input) []Candidate {
	x, y, amp, ok := in.Data.ArgMax()
	if !ok {
		return nil
	}
	c := candidateAt(in, x, y, float64(amp))
	c.Major = fixedAt(in.PixBeam.SigmaMajor())
	c.Minor = fixedAt(in.PixBeam.SigmaMinor())
	c.PA = fixedAt(in.PixBeam.PA)
	c.Xo = fixedAt(c.Xo.Value)
	c.Yo = fixedAt(c.Yo.Value)
	c.Flags = flags.FitErrSmall.Set(flags.Fixed2PSF)
	return []Candidate{c}
}

func estimateFixedToPSF(in Input) []Candidate {
	x, y, amp, ok := in.Data.ArgMax()
	if !ok {
		return nil
	}
	c := candidateAt(in, x, y, float64(amp))
	c.Major = fixedAt(in.PixBeam.SigmaMajor())
	c.Minor = fixedAt(in.PixBeam.SigmaMinor())
	c.PA = fixedAt(in.PixBeam.PA)
	c.Flags = flags.Fixed2PSF
	return []Candidate{c}
}

func estimateSummits(in Input) []Candidate {
	w, h := in.Data.Width, in.Data.Height
	masked := img.New(w, h)
	ones := img.New(w, h)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	for i := range masked.Data {
		masked.Data[i] = float32(math.NaN())
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := in.Data.At(x, y)
			r := in.Rms.At(x, y)
			c := in.Curvature.At(x, y)
			if math.IsNaN(float64(d)) || math.IsNaN(float64(r)) || math.IsNaN(float64(c)) {
				continue
			}
			if float64(d)-in.SeedClip*float64(r) > 0 && float64(c) < -in.CSigma {
				masked.Set(x, y, d)
			}
		}
	}

	seg, err := island.New(masked, ones, 0, 0)
	if err != nil {
		return nil
	}

	var out []Candidate
	for {
		summit, ok := seg.Next()
		if !ok {
			break
		}
		sx, sy, amp, ok := summit.Sub.ArgMax()
		if !ok {
			continue
		}
		x := sx + summit.Sub.XMin
		y := sy + summit.Sub.YMin
		out = append(out, candidateAt(in, x, y, float64(amp)))
	}
	return out
}

// candidateAt builds a fully-bounded candidate centred at island-local
// (x,y) with the given amplitude, following the bound formulas of §4.5.
func candidateAt(in Input, x, y int, amp float64) Candidate {
	w, h := in.Data.Width, in.Data.Height
	rmsHere := float64(in.Rms.At(x, y))

	ampParam := Param{
		Value: amp,
		Min:   4 * rmsHere,
		Max:   1.05*amp + 3*rmsHere,
	}

	paRad := in.PixBeam.PA * math.Pi / 180
	a, b := in.PixBeam.Major, in.PixBeam.Minor
	dx := math.Max(math.Abs(a*math.Cos(paRad)), math.Abs(b*math.Sin(paRad)))
	dy := math.Max(math.Abs(a*math.Sin(paRad)), math.Abs(b*math.Cos(paRad)))

	xMin, xMax := clipAxis(float64(x)-dx, float64(x)+dx, 0, float64(w-1))
	yMin, yMax := clipAxis(float64(y)-dy, float64(y)+dy, 0, float64(h-1))

	xoParam := Param{Value: float64(x), Min: xMin, Max: xMax}
	yoParam := Param{Value: float64(y), Min: yMin, Max: yMax}

	majorInit := in.PixBeam.SigmaMajor()
	minorInit := in.PixBeam.SigmaMinor()
	sizeTerm := (math.Max(float64(w), float64(h)) + 1) * sqrt2 * beam.FWHMToSigma

	majorParam := Param{
		Value: majorInit,
		Min:   0.8 * majorInit,
		Max:   math.Max(sizeTerm, 1.1*majorInit),
	}
	// Bug-for-bug compatible with the source: the minor axis upper bound
	// also uses the major init, not the minor init.
	minorParam := Param{
		Value: minorInit,
		Min:   0.8 * minorInit,
		Max:   math.Max(sizeTerm, 1.1*majorInit),
	}
	paParam := Param{Value: in.PixBeam.PA, Min: -180, Max: 180}

	var f flags.Flags
	if majorParam.Min == majorParam.Max || minorParam.Min == minorParam.Max {
		majorParam.Fixed, minorParam.Fixed, paParam.Fixed = true, true, true
		f = flags.Fixed2PSF
	}

	return Candidate{
		Amp: ampParam, Xo: xoParam, Yo: yoParam,
		Major: majorParam, Minor: minorParam, PA: paParam,
		Flags: f,
	}
}

// clipAxis clips [lo,hi] into [boundLo,boundHi], widening a collapsed
// interval by +/-0.5 pixel per §4.5.
func clipAxis(lo, hi, boundLo, boundHi float64) (float64, float64) {
	if lo < boundLo {
		lo = boundLo
	}
	if hi > boundHi {
		hi = boundHi
	}
	if lo >= hi {
		mid := (lo + hi) / 2
		lo, hi = mid-0.5, mid+0.5
	}
	return lo, hi
}
