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

// Package fit implements the §4.6 bounded multi-Gaussian Levenberg-Marquardt
// fitter, an MPFIT-equivalent: per-parameter value, fixed flag and two-sided
// bounds, a numeric Jacobian, and Levenberg damping. Linear algebra runs on
// gonum.org/v1/gonum/mat, the same module the teacher pack's background
// statistics and gonum-adjacent packages already pull in.
package fit

import (
	"math"

	"github.com/mlnoga/aegean-go/internal/estimate"
	"github.com/mlnoga/aegean-go/internal/flags"
	img "github.com/mlnoga/aegean-go/internal/image"

	"gonum.org/v1/gonum/mat"
)

const (
	maxIterations  = 200
	initialLambda  = 1e-3
	lambdaUp       = 10.0
	lambdaDown     = 0.1
	costTolerance  = 1e-10
	paramsPerComp  = 6
	finiteDiffStep = 1e-6
)

// Scalar is one fitted value with its 1-sigma error. Err is -1 when the
// fitter could not determine an error (singular covariance, or zero error
// remapped per §4.6).
type Scalar struct {
	Value float64
	Err   float64
}

// Component is one fitted Gaussian, in island-local pixel coordinates.
type Component struct {
	Amp   Scalar
	Xo    Scalar
	Yo    Scalar
	Major Scalar // sigma, pixels
	Minor Scalar // sigma, pixels
	PA    Scalar // degrees, source convention (negated before trig)
	Flags flags.Flags
}

// Fit refines candidates against data's finite pixels. maxSummits <= 0
// means unlimited. Per §4.6, FITERRSMALL or too-many-summits short-circuit
// to the initial parameter vector tagged NOTFIT.
func Fit(data *img.SubImage, candidates []estimate.Candidate, maxSummits int) []Component {
	if len(candidates) == 0 {
		return nil
	}
	if candidates[0].Flags.Has(flags.FitErrSmall) || (maxSummits > 0 && len(candidates) > maxSummits) {
		return noFit(candidates)
	}

	params, bounds, fixed := pack(candidates)
	errs, singular := levenbergMarquardt(data, params, bounds, fixed)

	out := make([]Component, len(candidates))
	for i, c := range candidates {
		base := i * paramsPerComp
		f := c.Flags
		if singular {
			f = f.Set(flags.FitErr)
		}
		out[i] = Component{
			Amp:   scalarAt(params, errs, base+0),
			Xo:    scalarAt(params, errs, base+1),
			Yo:    scalarAt(params, errs, base+2),
			Major: scalarAt(params, errs, base+3),
			Minor: scalarAt(params, errs, base+4),
			PA:    scalarAt(params, errs, base+5),
			Flags: f,
		}
	}
	return out
}

func noFit(candidates []estimate.Candidate) []Component {
	out := make([]Component, len(candidates))
	for i, c := range candidates {
		out[i] = Component{
			Amp:   Scalar{c.Amp.Value, -1},
			Xo:    Scalar{c.Xo.Value, -1},
			Yo:    Scalar{c.Yo.Value, -1},
			Major: Scalar{c.Major.Value, -1},
			Minor: Scalar{c.Minor.Value, -1},
			PA:    Scalar{c.PA.Value, -1},
			Flags: c.Flags.Set(flags.NotFit),
		}
	}
	return out
}

func scalarAt(params, errs []float64, i int) Scalar {
	e := errs[i]
	if e == 0 {
		e = -1
	}
	return Scalar{Value: params[i], Err: e}
}

func pack(candidates []estimate.Candidate) (params []float64, bounds [][2]float64, fixed []bool) {
	n := len(candidates) * paramsPerComp
	params = make([]float64, n)
	bounds = make([][2]float64, n)
	fixed = make([]bool, n)
	for i, c := range candidates {
		ps := [paramsPerComp]estimate.Param{c.Amp, c.Xo, c.Yo, c.Major, c.Minor, c.PA}
		base := i * paramsPerComp
		for j, p := range ps {
			params[base+j] = p.Value
			bounds[base+j] = [2]float64{p.Min, p.Max}
			fixed[base+j] = p.Fixed
		}
	}
	return params, bounds, fixed
}

// model evaluates the sum of rotated elliptical Gaussians at (x,y).
// Rotation convention per §4.6: pa is negated before computing trig terms.
func model(params []float64, x, y float64) float64 {
	sum := 0.0
	for base := 0; base+paramsPerComp <= len(params); base += paramsPerComp {
		amp := params[base+0]
		xo := params[base+1]
		yo := params[base+2]
		sigMaj := params[base+3]
		sigMin := params[base+4]
		paDeg := params[base+5]
		sum += gaussian(amp, xo, yo, sigMaj, sigMin, paDeg, x, y)
	}
	return sum
}

func gaussian(amp, xo, yo, sigMaj, sigMin, paDeg, x, y float64) float64 {
	if sigMaj <= 0 || sigMin <= 0 {
		return 0
	}
	theta := -paDeg * math.Pi / 180
	ct, st := math.Cos(theta), math.Sin(theta)
	a := ct*ct/(2*sigMaj*sigMaj) + st*st/(2*sigMin*sigMin)
	b := -math.Sin(2*theta)/(4*sigMaj*sigMaj) + math.Sin(2*theta)/(4*sigMin*sigMin)
	c := st*st/(2*sigMaj*sigMaj) + ct*ct/(2*sigMin*sigMin)
	dx, dy := x-xo, y-yo
	return amp * math.Exp(-(a*dx*dx + 2*b*dx*dy + c*dy*dy))
}

type sample struct {
	x, y, value float64
}

func collectSamples(data *img.SubImage) []sample {
	samples := make([]sample, 0, data.Width*data.Height)
	for y := 0; y < data.Height; y++ {
		for x := 0; x < data.Width; x++ {
			v := data.At(x, y)
			if math.IsNaN(float64(v)) {
				continue
			}
			samples = append(samples, sample{float64(x), float64(y), float64(v)})
		}
	}
	return samples
}

func residuals(samples []sample, params []float64) []float64 {
	r := make([]float64, len(samples))
	for i, s := range samples {
		r[i] = s.value - model(params, s.x, s.y)
	}
	return r
}

func cost(r []float64) float64 {
	sum := 0.0
	for _, v := range r {
		sum += v * v
	}
	return sum
}

func clamp(v float64, b [2]float64) float64 {
	if v < b[0] {
		return b[0]
	}
	if v > b[1] {
		return b[1]
	}
	return v
}

// levenbergMarquardt runs a bounded LM fit with a numeric Jacobian over the
// free (non-fixed) parameters, returning per-parameter 1-sigma errors
// (zero for fixed parameters) and whether the final covariance was
// singular.
func levenbergMarquardt(data *img.SubImage, params []float64, bounds [][2]float64, fixed []bool) (errs []float64, singular bool) {
	n := len(params)
	errs = make([]float64, n)

	samples := collectSamples(data)
	if len(samples) == 0 {
		return errs, true
	}

	free := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !fixed[i] {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return errs, true
	}

	lambda := initialLambda
	for i := range params {
		params[i] = clamp(params[i], bounds[i])
	}
	r := residuals(samples, params)
	prevCost := cost(r)

	var jtj *mat.Dense
	for iter := 0; iter < maxIterations; iter++ {
		j := jacobian(samples, params, free)
		r = residuals(samples, params)

		m := len(samples)
		k := len(free)
		jm := mat.NewDense(m, k, j)
		rv := mat.NewVecDense(m, r)

		jt := jm.T()
		jtjLocal := mat.NewDense(k, k, nil)
		jtjLocal.Mul(jt, jm)
		jtr := mat.NewVecDense(k, nil)
		jtr.MulVec(jt, rv)

		damped := mat.NewDense(k, k, nil)
		damped.CloneFrom(jtjLocal)
		for i := 0; i < k; i++ {
			damped.Set(i, i, damped.At(i, i)*(1+lambda))
		}

		var delta mat.Dense
		if err := delta.Solve(damped, jtr); err != nil {
			lambda *= lambdaUp
			if lambda > 1e12 {
				jtj = jtjLocal
				break
			}
			continue
		}

		trial := append([]float64(nil), params...)
		for idx, pi := range free {
			trial[pi] = clamp(trial[pi]+delta.At(idx, 0), bounds[pi])
		}
		trialR := residuals(samples, trial)
		trialCost := cost(trialR)

		if trialCost < prevCost {
			params = trial
			jtj = jtjLocal
			if prevCost-trialCost < costTolerance {
				prevCost = trialCost
				break
			}
			prevCost = trialCost
			lambda *= lambdaDown
		} else {
			lambda *= lambdaUp
			if lambda > 1e12 {
				break
			}
		}
	}

	if jtj == nil {
		return errs, true
	}

	var cov mat.Dense
	k := len(free)
	if err := cov.Inverse(jtj); err != nil {
		return errs, true
	}
	dof := len(samples) - k
	if dof < 1 {
		dof = 1
	}
	variance := prevCost / float64(dof)
	for idx, pi := range free {
		v := cov.At(idx, idx) * variance
		if v > 0 {
			errs[pi] = math.Sqrt(v)
		}
	}
	return errs, false
}

// jacobian computes the m x len(free) numeric Jacobian of the residual
// vector with respect to the free parameters, via central differences.
func jacobian(samples []sample, params []float64, free []int) []float64 {
	m := len(samples)
	k := len(free)
	j := make([]float64, m*k)

	base := make([]float64, len(params))
	copy(base, params)

	for col, pi := range free {
		h := finiteDiffStep * math.Max(1, math.Abs(base[pi]))
		plus := append([]float64(nil), base...)
		minus := append([]float64(nil), base...)
		plus[pi] += h
		minus[pi] -= h
		for row, s := range samples {
			dv := model(plus, s.x, s.y) - model(minus, s.x, s.y)
			// residual = value - model, so d(residual)/dp = -d(model)/dp
			j[row*k+col] = -dv / (2 * h)
		}
	}
	return j
}
