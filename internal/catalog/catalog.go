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

// Package catalog implements the §4.7 island fit driver: it runs the
// estimator and fitter over one island, transports the fitted components
// into sky coordinates through the WCS, and assembles the fixed-column-order
// catalogue records described in §3/§6.
package catalog

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/estimate"
	"github.com/mlnoga/aegean-go/internal/fit"
	"github.com/mlnoga/aegean-go/internal/flags"
	img "github.com/mlnoga/aegean-go/internal/image"
	"github.com/mlnoga/aegean-go/internal/island"
	"github.com/mlnoga/aegean-go/internal/wcs"
)

// Frame selects the catalogue's position columns: equatorial (ra/dec) or
// galactic (lon/lat), per §6's region/annotation renaming rule.
type Frame int

const (
	Equatorial Frame = iota
	Galactic
)

// Component is one fitted Gaussian transported into sky coordinates, or
// (SourceID == -1) an island-integrated record.
type Component struct {
	IslandID int
	SourceID int

	Background float64
	LocalRMS   float64

	RA, Dec       float64
	RAStr, DecStr string
	ErrRA, ErrDec float64

	PeakFlux, ErrPeakFlux float64
	IntFlux, ErrIntFlux   float64

	A, ErrA float64 // arcsec
	B, ErrB float64 // arcsec
	PA, ErrPA float64 // degrees, -90 < pa <= 90

	Flags flags.Flags
}

// Header returns the fixed catalogue column order for the given frame.
// Column order is load-bearing: downstream tools key on position.
func Header(f Frame) []string {
	pos, errPos := "ra", "err_ra"
	pos2, errPos2 := "dec", "err_dec"
	if f == Galactic {
		pos, errPos = "lon", "err_lon"
		pos2, errPos2 = "lat", "err_lat"
	}
	return []string{
		"island", "source", "background", "local_rms",
		pos, pos2, "ra_str", "dec_str", errPos, errPos2,
		"peak_flux", "err_peak_flux", "int_flux", "err_int_flux",
		"a", "err_a", "b", "err_b", "pa", "err_pa", "flags",
	}
}

// Row formats c in Header's column order.
func Row(c Component) []string {
	return []string{
		fmt.Sprintf("%d", c.IslandID), fmt.Sprintf("%d", c.SourceID),
		fmt.Sprintf("%g", c.Background), fmt.Sprintf("%g", c.LocalRMS),
		fmt.Sprintf("%.8f", c.RA), fmt.Sprintf("%.8f", c.Dec),
		c.RAStr, c.DecStr,
		fmt.Sprintf("%g", c.ErrRA), fmt.Sprintf("%g", c.ErrDec),
		fmt.Sprintf("%g", c.PeakFlux), fmt.Sprintf("%g", c.ErrPeakFlux),
		fmt.Sprintf("%g", c.IntFlux), fmt.Sprintf("%g", c.ErrIntFlux),
		fmt.Sprintf("%g", c.A), fmt.Sprintf("%g", c.ErrA),
		fmt.Sprintf("%g", c.B), fmt.Sprintf("%g", c.ErrB),
		fmt.Sprintf("%g", c.PA), fmt.Sprintf("%g", c.ErrPA),
		fmt.Sprintf("%d", c.Flags),
	}
}

// FitIsland runs §4.5/§4.6 over isl and transports the resulting
// components through w into sky coordinates, per §4.7. bkg and rms are the
// full-image background/rms maps; curv is the full-image curvature map.
// emitIslandRecord requests the additional island-integrated record of
// §4.7's final paragraph.
func FitIsland(w *wcs.WCS, pixBeam beam.Pixel, bkg, rms, curv *img.Image, isl *island.Island,
	islandID int, seedClip, floodClip, cSigma float64, maxSummits int, emitIslandRecord bool) []Component {

	data := isl.Sub
	xmin, ymin := data.XMin, data.YMin
	rmsSub := img.Crop(rms, data.XMin, data.XMax, data.YMin, data.YMax)
	bkgSub := img.Crop(bkg, data.XMin, data.XMax, data.YMin, data.YMax)
	curvSub := img.Crop(curv, data.XMin, data.XMax, data.YMin, data.YMax)

	candidates := estimate.Estimate(estimate.Input{
		Data: data, Rms: rmsSub, Curvature: curvSub, PixBeam: pixBeam,
		SeedClip: seedClip, CSigma: cSigma,
	})
	fitted := fit.Fit(data, candidates, maxSummits)

	nFinite := data.NumFinite()
	nComponents := len(fitted)

	out := make([]Component, 0, nComponents+1)
	for i, c := range fitted {
		comp := buildComponent(w, pixBeam, bkgSub, rmsSub, xmin, ymin, c, nFinite, nComponents)
		comp.IslandID = islandID
		comp.SourceID = i
		out = append(out, comp)
	}

	if emitIslandRecord {
		if rec, ok := islandIntegratedRecord(w, pixBeam, data, rmsSub, islandID, seedClip, floodClip); ok {
			out = append(out, rec)
		}
	}
	return out
}

func buildComponent(w *wcs.WCS, pixBeam beam.Pixel, bkgSub, rmsSub *img.SubImage,
	xmin, ymin int, c fit.Component, nFinite, nComponents int) Component {

	// The "+1" absorbs the image/array origin convention of the WCS
	// library and must be preserved verbatim per §4.7.
	xPix := c.Xo.Value + float64(xmin) + 1
	yPix := c.Yo.Value + float64(ymin) + 1

	ra, dec, aSkyDeg, paSky := w.PixToSkyVec(xPix, yPix, c.Major.Value*beam.SigmaToFWHM, c.PA.Value)
	a := aSkyDeg * 3600
	_, _, bSkyDeg, _ := w.PixToSkyVec(xPix, yPix, c.Minor.Value*beam.SigmaToFWHM, c.PA.Value+90)
	b := bSkyDeg * 3600

	errRA, errDec := -1.0, -1.0
	if c.Xo.Err > 0 && c.Yo.Err > 0 {
		raX, decX, _, _ := w.PixToSkyVec(xPix+c.Xo.Err, yPix, c.Major.Value*beam.SigmaToFWHM, c.PA.Value)
		raY, decY, _, _ := w.PixToSkyVec(xPix, yPix+c.Yo.Err, c.Major.Value*beam.SigmaToFWHM, c.PA.Value)
		errRA = math.Hypot(raX-ra, raY-ra)
		errDec = math.Hypot(decX-dec, decY-dec)
	}

	errA := -1.0
	if c.Major.Err > 0 {
		_, _, aErrDeg, _ := w.PixToSkyVec(xPix, yPix, (c.Major.Value+c.Major.Err)*beam.SigmaToFWHM, c.PA.Value)
		errA = math.Abs(aErrDeg*3600 - a)
	}
	errB := -1.0
	if c.Minor.Err > 0 {
		_, _, bErrDeg, _ := w.PixToSkyVec(xPix, yPix, (c.Minor.Value+c.Minor.Err)*beam.SigmaToFWHM, c.PA.Value+90)
		errB = math.Abs(bErrDeg*3600 - b)
	}
	errPA := c.PA.Err // degrees; a fixed rotation offset doesn't rescale this

	// Enforce a >= b by swapping and rotating pa by 90 degrees.
	if a < b {
		a, b = b, a
		errA, errB = errB, errA
		paSky += 90
	}
	paSky = wrapPA(paSky)

	bgX := clampInt(int(math.Round(xPix-float64(xmin))), 0, bkgSub.Width-1)
	bgY := clampInt(int(math.Round(yPix-float64(ymin))), 0, bkgSub.Height-1)
	background := float64(bkgSub.At(bgX, bgY))
	localRms := float64(rmsSub.At(bgX, bgY))

	peakFlux := c.Amp.Value
	errPeakFlux := c.Amp.Err

	intFlux := c.Amp.Value * c.Major.Value * c.Minor.Value * beam.SigmaToFWHM * beam.SigmaToFWHM /
		(pixBeam.Major * pixBeam.Minor)

	relPeak, relA, relB := 0.0, 0.0, 0.0
	if errPeakFlux > 0 && peakFlux != 0 {
		relPeak = errPeakFlux / peakFlux
	}
	if errA > 0 && a != 0 {
		relA = errA / a
	}
	if errB > 0 && b != 0 {
		relB = errB / b
	}
	errIntFlux := floats.Norm([]float64{relPeak, relA, relB}, 2) * intFlux

	infl := 1.0
	if nComponents > 0 {
		infl = math.Sqrt(float64(nFinite) / float64(nComponents))
	}
	inflate := func(e float64) float64 {
		if e > 0 {
			return e * infl
		}
		return e
	}
	errRA, errDec = inflate(errRA), inflate(errDec)
	errA, errB = inflate(errA), inflate(errB)
	errPeakFlux, errIntFlux = inflate(errPeakFlux), inflate(errIntFlux)
	errPA = inflate(errPA)

	return Component{
		Background: background,
		LocalRMS:   localRms,
		RA:         ra, Dec: dec,
		RAStr: wcs.FormatHMS(ra), DecStr: wcs.FormatDMS(dec),
		ErrRA: errRA, ErrDec: errDec,
		PeakFlux: peakFlux, ErrPeakFlux: errPeakFlux,
		IntFlux: intFlux, ErrIntFlux: errIntFlux,
		A: a, ErrA: errA, B: b, ErrB: errB,
		PA: paSky, ErrPA: errPA,
		Flags: c.Flags,
	}
}

// islandIntegratedRecord computes the §4.7 island-integrated record on the
// clipped map max(data - seed_clip*rms, 0). Returns ok=false when the
// analytic flux-loss correction is undefined (no positive peak, or the
// log term is non-negative) -- callers should skip and log per §7.3.
func islandIntegratedRecord(w *wcs.WCS, pixBeam beam.Pixel, data *img.SubImage, rmsSub *img.SubImage,
	islandID int, seedClip, floodClip float64) (Component, bool) {

	clipped := img.New(data.Width, data.Height)
	sum := 0.0
	peak := float32(math.Inf(-1))
	peakX, peakY := 0, 0
	for y := 0; y < data.Height; y++ {
		for x := 0; x < data.Width; x++ {
			d := data.At(x, y)
			r := rmsSub.At(x, y)
			if math.IsNaN(float64(d)) || math.IsNaN(float64(r)) {
				continue
			}
			v := float32(math.Max(float64(d)-seedClip*float64(r), 0))
			clipped.Set(x, y, v)
			sum += float64(v)
			if v > peak {
				peak, peakX, peakY = v, x, y
			}
		}
	}
	if peak <= 0 {
		return Component{}, false
	}

	localRms := rmsSub.At(peakX, peakY)
	ratio := float64(localRms) * floodClip / float64(peak)
	if ratio <= 0 {
		return Component{}, false
	}
	logv := math.Log(ratio)
	if logv >= 0 {
		return Component{}, false
	}
	eta := math.Erf(math.Sqrt(-logv))

	sigmaA, sigmaB := pixBeam.SigmaMajor(), pixBeam.SigmaMinor()
	intFlux := sum / (2 * math.Pi * sigmaA * sigmaB * eta * eta)

	xPix := float64(peakX+data.XMin) + 1
	yPix := float64(peakY+data.YMin) + 1
	ra, dec := w.PixToSky(xPix, yPix)

	return Component{
		IslandID: islandID, SourceID: -1,
		LocalRMS: float64(localRms),
		RA:       ra, Dec: dec,
		RAStr: wcs.FormatHMS(ra), DecStr: wcs.FormatDMS(dec),
		ErrRA: -1, ErrDec: -1, ErrA: -1, ErrB: -1, ErrPA: -1,
		PeakFlux: float64(peak), ErrPeakFlux: -1,
		IntFlux: intFlux, ErrIntFlux: -1,
	}, true
}

func wrapPA(pa float64) float64 {
	for pa <= -90 {
		pa += 180
	}
	for pa > 90 {
		pa -= 180
	}
	return pa
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
