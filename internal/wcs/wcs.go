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

// Package wcs implements the pixel<->sky transforms of §4.1: a gnomonic
// (TAN) tangent-plane projection driven by a CRPIX/CRVAL/CD matrix header,
// the same parameterization as observerly/skysolve's pkg/wcs.WCS (CRPIX1,
// CRPIX2, CRVAL1, CRVAL2, CD1_1, CD1_2, CD2_1, CD2_2), combined with the
// gnomonic projection formula from observerly/skysolve's
// pkg/projection.ConvertEquatorialToGnomic. skysolve's own WCS type only
// implements the flat affine approximation (no deprojection); this
// package adds the TAN deprojection so round trips stay accurate at the
// corners of wide fields, per the invariants in spec.md §8.
package wcs

import (
	"fmt"
	"math"

	"github.com/mlnoga/aegean-go/internal/beam"
)

const deg2rad = math.Pi / 180
const rad2deg = 180 / math.Pi

// WCS is a minimal gnomonic-projection world coordinate system: a linear
// CD matrix from pixel offsets to tangent-plane "standard coordinates",
// anchored at a reference pixel/sky position, matching the FITS CRPIXn/
// CRVALn/CDi_j keyword convention.
type WCS struct {
	CRPIX1, CRPIX2 float64 // reference pixel (1-indexed, per FITS convention)
	CRVAL1, CRVAL2 float64 // reference sky position, degrees
	CD1_1, CD1_2   float64 // pixel -> standard coordinate matrix, degrees/pixel
	CD2_1, CD2_2   float64
}

// New constructs a WCS from its header keywords.
func New(crpix1, crpix2, crval1, crval2, cd11, cd12, cd21, cd22 float64) *WCS {
	return &WCS{crpix1, crpix2, crval1, crval2, cd11, cd12, cd21, cd22}
}

// PixToSky converts pixel coordinates to sky coordinates (ra, dec in degrees).
func (w *WCS) PixToSky(x, y float64) (ra, dec float64) {
	dx, dy := x-w.CRPIX1, y-w.CRPIX2
	xi := (w.CD1_1*dx + w.CD1_2*dy) * deg2rad
	eta := (w.CD2_1*dx + w.CD2_2*dy) * deg2rad
	if xi == 0 && eta == 0 {
		return wrapDeg(w.CRVAL1), w.CRVAL2
	}
	ra0, dec0 := w.CRVAL1*deg2rad, w.CRVAL2*deg2rad

	denom := math.Cos(dec0) - eta*math.Sin(dec0)
	ra = ra0 + math.Atan2(xi, denom)
	dec = math.Atan2(eta*math.Cos(dec0)+math.Sin(dec0), math.Hypot(xi, denom))

	return wrapDeg(ra * rad2deg), dec * rad2deg
}

// SkyToPix converts sky coordinates (degrees) to pixel coordinates. Note
// the axis order: the fast-varying FITS storage axis is x (pixel column,
// NAXIS1), which corresponds to CD1_x/right ascension here -- callers
// must not assume (row,col) FITS array order, which swaps this.
func (w *WCS) SkyToPix(ra, dec float64) (x, y float64) {
	ra0, dec0 := w.CRVAL1*deg2rad, w.CRVAL2*deg2rad
	raR, decR := ra*deg2rad, dec*deg2rad

	cosc := math.Sin(dec0)*math.Sin(decR) + math.Cos(dec0)*math.Cos(decR)*math.Cos(raR-ra0)
	if cosc < 1e-10 {
		// Point is on or beyond the horizon of the tangent plane: no finite
		// projection exists. Return the reference pixel rather than Inf/NaN
		// propagating silently through downstream arithmetic.
		return w.CRPIX1, w.CRPIX2
	}
	xi := math.Cos(decR) * math.Sin(raR-ra0) / cosc
	eta := (math.Cos(dec0)*math.Sin(decR) - math.Sin(dec0)*math.Cos(decR)*math.Cos(raR-ra0)) / cosc

	xiDeg, etaDeg := xi*rad2deg, eta*rad2deg

	det := w.CD1_1*w.CD2_2 - w.CD1_2*w.CD2_1
	dx := (w.CD2_2*xiDeg - w.CD1_2*etaDeg) / det
	dy := (w.CD1_1*etaDeg - w.CD2_1*xiDeg) / det

	return w.CRPIX1 + dx, w.CRPIX2 + dy
}

// SkyToPixVec re-expresses a sky-frame vector (a great-circle distance
// rDeg and bearing paDeg, both degrees) anchored at (ra,dec) in pixel
// magnitude and pixel-frame angle.
func (w *WCS) SkyToPixVec(ra, dec, rDeg, paDeg float64) (x, y, rPix, thetaDeg float64) {
	x, y = w.SkyToPix(ra, dec)
	ra2, dec2 := destination(ra, dec, rDeg, paDeg)
	x2, y2 := w.SkyToPix(ra2, dec2)
	dx, dy := x2-x, y2-y
	rPix = math.Hypot(dx, dy)
	thetaDeg = math.Atan2(dy, dx) * rad2deg
	return x, y, rPix, thetaDeg
}

// PixToSkyVec re-expresses a pixel-frame vector (pixel magnitude rPix and
// pixel-frame angle thetaDeg) anchored at (x,y) as a sky position plus
// great-circle distance (degrees) and bearing (degrees).
func (w *WCS) PixToSkyVec(x, y, rPix, thetaDeg float64) (ra, dec, rDeg, paDeg float64) {
	ra, dec = w.PixToSky(x, y)
	thetaRad := thetaDeg * deg2rad
	x2 := x + rPix*math.Cos(thetaRad)
	y2 := y + rPix*math.Sin(thetaRad)
	ra2, dec2 := w.PixToSky(x2, y2)
	rDeg, paDeg = distanceBearing(ra, dec, ra2, dec2)
	return ra, dec, rDeg, paDeg
}

// PixelBeamAt projects a sky-frame beam to pixel units at the given image
// location, per §4.1: the major axis (a,pa) and minor axis (b,pa+90) are
// each transported as sky vectors via SkyToPixVec; the resulting pa is
// the pixel-frame angle of the major axis. Callers must always request a
// local pixel beam rather than reusing one from elsewhere in the image --
// beam aspect can vary with declination across a wide field.
func (w *WCS) PixelBeamAt(x, y float64, sky beam.Sky) beam.Pixel {
	ra, dec := w.PixToSky(x, y)
	_, _, rMajor, paMajor := w.SkyToPixVec(ra, dec, sky.Major, sky.PA)
	_, _, rMinor, _ := w.SkyToPixVec(ra, dec, sky.Minor, sky.PA+90)
	return beam.Pixel{Major: rMajor, Minor: rMinor, PA: paMajor}
}

// destination computes the sky position reached by travelling a
// great-circle distance rDeg along initial bearing paDeg from (ra,dec),
// all in degrees. Standard spherical-navigation "destination point"
// formula; no example in the retrieval pack carries a geodesic bearing
// implementation (observerly/skysolve's pkg/geometry only has planar
// Cartesian distance/angle helpers), so this is hand-rolled against
// math.Sin/Cos/Atan2 and documented as such in DESIGN.md.
func destination(ra, dec, rDeg, paDeg float64) (ra2, dec2 float64) {
	lat1, lon1 := dec*deg2rad, ra*deg2rad
	delta, theta := rDeg*deg2rad, paDeg*deg2rad

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)
	return wrapDeg(lon2 * rad2deg), lat2 * rad2deg
}

// distanceBearing computes the great-circle distance and initial bearing
// between two sky positions, both in degrees.
func distanceBearing(ra1, dec1, ra2, dec2 float64) (rDeg, paDeg float64) {
	lat1, lon1 := dec1*deg2rad, ra1*deg2rad
	lat2, lon2 := dec2*deg2rad, ra2*deg2rad

	sinDLat := math.Sin((lat2 - lat1) / 2)
	sinDLon := math.Sin((lon2 - lon1) / 2)
	a := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	rDeg = 2 * math.Asin(math.Min(1, math.Sqrt(a))) * rad2deg

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	paDeg = math.Atan2(y, x) * rad2deg
	return rDeg, paDeg
}

func wrapDeg(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// FormatHMS renders a right ascension in degrees as sexagesimal
// hours:minutes:seconds, e.g. "05:34:31.94". Grounded in the original
// Aegean's OutputSource.formatter, which keeps both the numeric degrees
// and this sexagesimal string per component. No example repo in the
// retrieval pack carries a sexagesimal formatter (skysolve only reports
// numeric RA/Dec), so this one routine is plain math/fmt -- justified in
// DESIGN.md.
func FormatHMS(raDeg float64) string {
	h := wrapDeg(raDeg) / 15
	return formatSexagesimal(h, "%02d:%02d:%05.2f")
}

// FormatDMS renders a declination in degrees as sexagesimal
// degrees:minutes:seconds, e.g. "-16:42:58.0".
func FormatDMS(decDeg float64) string {
	sign := "+"
	if decDeg < 0 {
		sign = "-"
		decDeg = -decDeg
	}
	return sign + formatSexagesimal(decDeg, "%02d:%02d:%04.1f")
}

func formatSexagesimal(value float64, format string) string {
	whole := math.Floor(value)
	frac := (value - whole) * 60
	minutes := math.Floor(frac)
	seconds := (frac - minutes) * 60
	return fmt.Sprintf(format, int(whole), int(minutes), seconds)
}
