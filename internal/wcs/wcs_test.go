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

package wcs

import (
	"math"
	"testing"

	"github.com/mlnoga/aegean-go/internal/beam"
)

func testWCS() *WCS {
	// 64x64 image, 1 arcsec/pixel, centered at RA 10, Dec -30.
	pixScale := 1.0 / 3600.0
	return New(32, 32, 10, -30, -pixScale, 0, 0, pixScale)
}

func TestPixToSkyRoundTripCenter(t *testing.T) {
	w := testWCS()
	x0, y0 := 32.0, 32.0
	ra, dec := w.PixToSky(x0, y0)
	x1, y1 := w.SkyToPix(ra, dec)
	if math.Hypot(x1-x0, y1-y0) > 1e-6 {
		t.Fatalf("round trip at center off by %g pixels", math.Hypot(x1-x0, y1-y0))
	}
}

func TestPixToSkyRoundTripCorners(t *testing.T) {
	w := testWCS()
	corners := [][2]float64{{0, 0}, {64, 0}, {0, 64}, {64, 64}}
	for _, c := range corners {
		ra, dec := w.PixToSky(c[0], c[1])
		x1, y1 := w.SkyToPix(ra, dec)
		if d := math.Hypot(x1-c[0], y1-c[1]); d > 1e-3 {
			t.Fatalf("round trip at corner %v off by %g pixels", c, d)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	w := testWCS()
	x0, y0 := 32.0, 32.0
	rPix, thetaDeg := 5.0, 37.0
	ra, dec, rDeg, paDeg := w.PixToSkyVec(x0, y0, rPix, thetaDeg)
	if rDeg >= 1.0 {
		t.Fatalf("test vector should be < 1 degree, got %g", rDeg)
	}
	_, _, rPix2, thetaDeg2 := w.SkyToPixVec(ra, dec, rDeg, paDeg)
	if math.Abs(rPix2-rPix)/rPix > 1e-6 {
		t.Fatalf("recovered r %g != original %g", rPix2, rPix)
	}
	dTheta := math.Mod(thetaDeg2-thetaDeg+540, 360) - 180
	if math.Abs(dTheta) > 1e-3 {
		t.Fatalf("recovered theta %g != original %g", thetaDeg2, thetaDeg)
	}
}

func TestPixelBeamAtStaysValid(t *testing.T) {
	w := testWCS()
	sky := beam.Sky{Major: 2.0 / 3600.0, Minor: 2.0 / 3600.0, PA: 0}
	pb := w.PixelBeamAt(32, 32, sky)
	if pb.Major <= 0 || pb.Minor <= 0 {
		t.Fatalf("expected positive pixel beam, got %+v", pb)
	}
	if math.Abs(pb.Major-pb.Minor) > 1e-6 {
		t.Fatalf("circular sky beam should project to a circular pixel beam, got %+v", pb)
	}
}

func TestFormatHMSDMS(t *testing.T) {
	if got := FormatHMS(0); got != "00:00:00.00" {
		t.Fatalf("FormatHMS(0) = %q", got)
	}
	if got := FormatDMS(-30.5); got[0] != '-' {
		t.Fatalf("FormatDMS(-30.5) = %q, want leading -", got)
	}
	if got := FormatDMS(30.5); got[0] != '+' {
		t.Fatalf("FormatDMS(30.5) = %q, want leading +", got)
	}
}
