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

package fitsio

import (
	"bytes"
	"strings"
	"testing"

	img "github.com/mlnoga/aegean-go/internal/image"
)

func TestWritePrimaryThenReadRoundTrips(t *testing.T) {
	im := img.New(4, 3)
	for i := range im.Data {
		im.Data[i] = float32(i) * 1.5
	}

	var buf bytes.Buffer
	if err := WritePrimary(&buf, im, []Card{{Key: "BEAMPA", Value: 12.5, Comment: "position angle"}}); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}

	got, hdr, err := Read(bytes.NewReader(buf.Bytes()), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Width != im.Width || got.Height != im.Height {
		t.Fatalf("shape mismatch: got %dx%d want %dx%d", got.Width, got.Height, im.Width, im.Height)
	}
	for i := range im.Data {
		if got.Data[i] != im.Data[i] {
			t.Fatalf("pixel %d: got %v want %v", i, got.Data[i], im.Data[i])
		}
	}
	if v, ok := hdr.Float("BEAMPA"); !ok || v != 12.5 {
		t.Fatalf("expected BEAMPA=12.5 card to round-trip, got %v ok=%v", v, ok)
	}
}

func TestWritePrimaryPadsToBlockSize(t *testing.T) {
	im := img.New(2, 2)
	var buf bytes.Buffer
	if err := WritePrimary(&buf, im, nil); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}
	if buf.Len()%blockSize != 0 {
		t.Fatalf("output length %d is not a multiple of %d", buf.Len(), blockSize)
	}
}

func TestReadAppliesBzeroBscaleAndBlank(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(padCard("SIMPLE  =                    T / conforms to FITS standard"))
	sb.WriteString(padCard("BITPIX  =                   16 / 16-bit signed integers"))
	sb.WriteString(padCard("NAXIS   =                    2 / 2-dimensional image"))
	sb.WriteString(padCard("NAXIS1  =                    2 /"))
	sb.WriteString(padCard("NAXIS2  =                    1 /"))
	sb.WriteString(padCard("BZERO   =               100.0 /"))
	sb.WriteString(padCard("BSCALE  =                 2.0 /"))
	sb.WriteString(padCard("BLANK   =                -9999 /"))
	sb.WriteString(padCard("END"))
	header := sb.String()
	if pad := len(header) % blockSize; pad != 0 {
		header += strings.Repeat(" ", blockSize-pad)
	}

	// two int16 pixels, big-endian: 10 and BLANK sentinel -9999
	data := []byte{0x00, 0x0a, 0xd8, 0xf1} // 10, -9999
	padded := data
	if pad := padTo(int64(len(data)), blockSize) - int64(len(data)); pad > 0 {
		padded = append(padded, make([]byte, pad)...)
	}

	full := header + string(padded)
	im, _, err := Read(strings.NewReader(full), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if im.Data[0] != 10*2.0+100.0 {
		t.Fatalf("expected BZERO/BSCALE applied to pixel 0, got %v", im.Data[0])
	}
	if !(im.Data[1] != im.Data[1]) { // NaN check
		t.Fatalf("expected BLANK pixel to decode as NaN, got %v", im.Data[1])
	}
}

func TestHeaderWCSFallsBackToCdeltCrota(t *testing.T) {
	hdr := newHeader()
	hdr.Floats["CRPIX1"] = 50
	hdr.Floats["CRPIX2"] = 50
	hdr.Floats["CRVAL1"] = 180
	hdr.Floats["CRVAL2"] = -30
	hdr.Floats["CDELT1"] = -1.0 / 3600
	hdr.Floats["CDELT2"] = 1.0 / 3600

	w, ok := hdr.WCS()
	if !ok {
		t.Fatalf("expected WCS from CRPIX/CRVAL/CDELT alone")
	}
	ra, dec := w.PixToSky(50, 50)
	if ra != 180 || dec != -30 {
		t.Fatalf("reference pixel should map to CRVAL, got (%v, %v)", ra, dec)
	}
}

func TestHeaderWCSMissingAnchorFails(t *testing.T) {
	hdr := newHeader()
	hdr.Floats["CRPIX1"] = 50
	if _, ok := hdr.WCS(); ok {
		t.Fatalf("expected WCS() to fail without a full CRPIX/CRVAL anchor")
	}
}

func TestHeaderBeamRequiresMajorMinor(t *testing.T) {
	hdr := newHeader()
	hdr.Floats["BMAJ"] = 0.01
	if _, ok := hdr.Beam(); ok {
		t.Fatalf("expected Beam() to fail without BMIN")
	}
	hdr.Floats["BMIN"] = 0.005
	b, ok := hdr.Beam()
	if !ok || b.PA != 0 {
		t.Fatalf("expected Beam() to default BPA to 0 when absent, got %+v ok=%v", b, ok)
	}
}

func TestParseCardStripsInlineComment(t *testing.T) {
	hdr := newHeader()
	parseCard(padCard("EXPTIME =                 30.0 / exposure in seconds"), &hdr)
	if v, ok := hdr.Floats["EXPTIME"]; !ok || v != 30.0 {
		t.Fatalf("expected EXPTIME=30.0, got %v ok=%v", v, ok)
	}
}

func TestReadRejectsNon2DHdu(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(padCard("SIMPLE  =                    T /"))
	sb.WriteString(padCard("BITPIX  =                  -32 /"))
	sb.WriteString(padCard("NAXIS   =                    1 /"))
	sb.WriteString(padCard("NAXIS1  =                    4 /"))
	sb.WriteString(padCard("END"))
	header := sb.String()
	if pad := len(header) % blockSize; pad != 0 {
		header += strings.Repeat(" ", blockSize-pad)
	}
	if _, _, err := Read(strings.NewReader(header+strings.Repeat("\x00", blockSize)), 0); err == nil {
		t.Fatalf("expected error for 1-D HDU")
	}
}
