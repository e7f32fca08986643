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

// Package fitsio is the minimal FITS reader/writer backing cmd/aegean: the
// §6 "external collaborator" whose contract is read pixels, read/write
// header keywords. Header-card parsing and the batched, byte-order-aware
// data readers are adapted from the teacher's internal/fits/read.go
// (typed keyword maps keyed by card name, one reader function per BITPIX),
// simplified to manual 80-column card splitting instead of one composite
// regex, and trimmed of everything that served nightlight's stacking
// pipeline (bad pixels, debayering, Stats, star detection) rather than a
// source finder. HDU skip-to-index support is new: nightlight only ever
// reads the primary HDU, but §6 requires --hdu N.
package fitsio

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	img "github.com/mlnoga/aegean-go/internal/image"

	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/wcs"
)

const blockSize = 2880
const cardSize = 80

// Header holds the typed keyword values of one HDU, as originally
// populated by nightlight's Bools/Ints/Floats/Strings maps.
type Header struct {
	Bools   map[string]bool
	Ints    map[string]int64
	Floats  map[string]float64
	Strings map[string]string
}

func newHeader() Header {
	return Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int64),
		Floats:  make(map[string]float64),
		Strings: make(map[string]string),
	}
}

// Int returns an integer-valued card, accepting a float card as a fallback
// (some writers emit NAXISn-like integers as floats).
func (h Header) Int(key string) (int64, bool) {
	if v, ok := h.Ints[key]; ok {
		return v, true
	}
	if v, ok := h.Floats[key]; ok {
		return int64(v), true
	}
	return 0, false
}

// Float returns a float-valued card, accepting an integer card as a
// fallback.
func (h Header) Float(key string) (float64, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

// WCS builds a WCS from the header's CRPIX/CRVAL/CD keywords, falling back
// to CDELT+CROTA2 when no CD matrix is present. Returns ok=false if even
// the CRPIX/CRVAL anchor is missing.
func (h Header) WCS() (*wcs.WCS, bool) {
	crpix1, ok1 := h.Float("CRPIX1")
	crpix2, ok2 := h.Float("CRPIX2")
	crval1, ok3 := h.Float("CRVAL1")
	crval2, ok4 := h.Float("CRVAL2")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}

	cd11, hasCD := h.Float("CD1_1")
	if hasCD {
		cd12, _ := h.Float("CD1_2")
		cd21, _ := h.Float("CD2_1")
		cd22, _ := h.Float("CD2_2")
		return wcs.New(crpix1, crpix2, crval1, crval2, cd11, cd12, cd21, cd22), true
	}

	cdelt1, ok := h.Float("CDELT1")
	if !ok {
		cdelt1 = 1
	}
	cdelt2, ok := h.Float("CDELT2")
	if !ok {
		cdelt2 = cdelt1
	}
	crota2, _ := h.Float("CROTA2")
	rot := crota2 * math.Pi / 180
	cos, sin := math.Cos(rot), math.Sin(rot)
	return wcs.New(crpix1, crpix2, crval1, crval2,
		cdelt1*cos, -cdelt2*sin, cdelt1*sin, cdelt2*cos), true
}

// Beam builds a sky beam from BMAJ/BMIN/BPA header keywords (degrees).
func (h Header) Beam() (beam.Sky, bool) {
	major, ok1 := h.Float("BMAJ")
	minor, ok2 := h.Float("BMIN")
	pa, ok3 := h.Float("BPA")
	if !ok1 || !ok2 {
		return beam.Sky{}, false
	}
	if !ok3 {
		pa = 0
	}
	return beam.Sky{Major: major, Minor: minor, PA: pa}, true
}

// ReadFile opens fileName (transparently gunzipping a .gz/.gzip suffix)
// and reads the hduIndex'th HDU (0 = primary).
func ReadFile(fileName string, hduIndex int) (*img.Image, Header, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, Header{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(fileName), ".gz") || strings.HasSuffix(strings.ToLower(fileName), ".gzip") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, Header{}, err
		}
		defer gz.Close()
		r = gz
	}
	return Read(r, hduIndex)
}

// Read parses FITS HDUs from r in sequence, returning the pixel data and
// header of hduIndex, skipping earlier HDUs' data without materializing
// them.
func Read(r io.Reader, hduIndex int) (*img.Image, Header, error) {
	br := bufio.NewReaderSize(r, blockSize)

	for i := 0; ; i++ {
		hdr, naxisn, bitpix, err := readHeader(br)
		if err != nil {
			return nil, Header{}, err
		}
		pixels := int64(1)
		for _, n := range naxisn {
			pixels *= n
		}
		if len(naxisn) == 0 {
			pixels = 0 // NAXIS=0: the HDU has no data unit
		}
		dataBytes := pixels * int64(absInt(bitpix)) / 8
		padded := padTo(dataBytes, blockSize)

		if i != hduIndex {
			if _, err := io.CopyN(io.Discard, br, padded); err != nil {
				return nil, Header{}, fmt.Errorf("fitsio: skipping HDU %d: %w", i, err)
			}
			continue
		}

		if len(naxisn) < 2 {
			return nil, Header{}, fmt.Errorf("fitsio: HDU %d is not 2-D (NAXIS=%d)", i, len(naxisn))
		}
		width, height := int(naxisn[0]), int(naxisn[1])
		data, err := readData(br, bitpix, int(pixels), hdr)
		if err != nil {
			return nil, Header{}, err
		}
		if padded > dataBytes {
			io.CopyN(io.Discard, br, padded-dataBytes)
		}

		im := &img.Image{Width: width, Height: height, Data: data}
		return im, hdr, nil
	}
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func padTo(n, block int64) int64 {
	if n%block == 0 {
		return n
	}
	return n + (block - n%block)
}

// readHeader reads consecutive 2880-byte header blocks until an END card,
// returning the typed keyword maps plus the mandatory BITPIX/NAXISn cards
// needed to size the data unit.
func readHeader(r io.Reader) (hdr Header, naxisn []int64, bitpix int64, err error) {
	hdr = newHeader()
	buf := make([]byte, blockSize)
	ended := false

	for !ended {
		if _, err = io.ReadFull(r, buf); err != nil {
			return Header{}, nil, 0, err
		}
		for line := 0; line < blockSize/cardSize; line++ {
			card := string(buf[line*cardSize : (line+1)*cardSize])
			if strings.HasPrefix(card, "END") && strings.TrimSpace(card) == "END" {
				ended = true
				break
			}
			parseCard(card, &hdr)
		}
	}

	if !hdr.Bools["SIMPLE"] {
		if _, ok := hdr.Strings["XTENSION"]; !ok {
			return Header{}, nil, 0, fmt.Errorf("fitsio: missing SIMPLE or XTENSION card")
		}
	}
	bitpix, ok := hdr.Int("BITPIX")
	if !ok {
		return Header{}, nil, 0, fmt.Errorf("fitsio: missing BITPIX")
	}
	naxis, ok := hdr.Int("NAXIS")
	if !ok {
		return Header{}, nil, 0, fmt.Errorf("fitsio: missing NAXIS")
	}
	naxisn = make([]int64, naxis)
	for i := int64(1); i <= naxis; i++ {
		v, ok := hdr.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return Header{}, nil, 0, fmt.Errorf("fitsio: missing NAXIS%d", i)
		}
		naxisn[i-1] = v
	}
	return hdr, naxisn, bitpix, nil
}

// parseCard splits one 80-column FITS card into key/value and stores it in
// the appropriate typed map of hdr. Comment-only cards (HISTORY, COMMENT,
// blank) are ignored -- aegean's catalogue carries no provenance cards.
func parseCard(card string, hdr *Header) {
	if len(card) < 9 || card[8] != '=' {
		return
	}
	key := strings.TrimSpace(card[:8])
	rest := strings.TrimSpace(card[9:])
	if idx := strings.Index(rest, "/"); idx >= 0 && !strings.HasPrefix(rest, "'") {
		rest = strings.TrimSpace(rest[:idx])
	}
	if rest == "" {
		return
	}

	switch {
	case rest == "T" || rest == "F":
		hdr.Bools[key] = rest == "T"
	case strings.HasPrefix(rest, "'"):
		end := strings.LastIndex(rest, "'")
		if end > 0 {
			hdr.Strings[key] = strings.TrimSpace(rest[1:end])
		}
	default:
		if iv, err := strconv.ParseInt(rest, 10, 64); err == nil {
			hdr.Ints[key] = iv
			return
		}
		cleaned := strings.ReplaceAll(strings.ReplaceAll(rest, "D", "E"), "d", "e")
		if fv, err := strconv.ParseFloat(cleaned, 64); err == nil {
			hdr.Floats[key] = fv
		}
	}
}

// readData reads pixels*|bitpix|/8 bytes of big-endian data and converts
// to float32, applying BZERO/BSCALE and mapping BLANK (integer types only)
// to NaN.
func readData(r io.Reader, bitpix int64, pixels int, hdr Header) ([]float32, error) {
	bzero, _ := hdr.Float("BZERO")
	bscale, hasScale := hdr.Float("BSCALE")
	if !hasScale {
		bscale = 1
	}
	blank, hasBlank := hdr.Int("BLANK")

	out := make([]float32, pixels)
	switch bitpix {
	case 8:
		buf := make([]byte, pixels)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			if hasBlank && int64(v) == blank {
				out[i] = float32(math.NaN())
				continue
			}
			out[i] = float32(float64(v)*bscale + bzero)
		}
	case 16:
		buf := make([]int16, pixels)
		if err := binary.Read(r, binary.BigEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			if hasBlank && int64(v) == blank {
				out[i] = float32(math.NaN())
				continue
			}
			out[i] = float32(float64(v)*bscale + bzero)
		}
	case 32:
		buf := make([]int32, pixels)
		if err := binary.Read(r, binary.BigEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			if hasBlank && int64(v) == blank {
				out[i] = float32(math.NaN())
				continue
			}
			out[i] = float32(float64(v)*bscale + bzero)
		}
	case -32:
		buf := make([]float32, pixels)
		if err := binary.Read(r, binary.BigEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = v*float32(bscale) + float32(bzero)
		}
	case -64:
		buf := make([]float64, pixels)
		if err := binary.Read(r, binary.BigEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float32(v*bscale + bzero)
		}
	default:
		return nil, fmt.Errorf("fitsio: unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// Card is one extra header keyword to emit from WritePrimary, beyond the
// mandatory SIMPLE/BITPIX/NAXISn/END cards.
type Card struct {
	Key     string
	Value   float64
	Comment string
}

// WritePrimary writes im as a single-HDU float32 (BITPIX=-32) FITS file,
// big-endian per the standard, padded to a 2880-byte boundary. Used by
// --save_background to emit the background/rms/curvature maps.
func WritePrimary(w io.Writer, im *img.Image, extra []Card) error {
	bw := bufio.NewWriter(w)
	var cards []string
	cards = append(cards, formatBoolCard("SIMPLE", true, "conforms to FITS standard"))
	cards = append(cards, formatIntCard("BITPIX", -32, "32-bit float pixels"))
	cards = append(cards, formatIntCard("NAXIS", 2, "2-dimensional image"))
	cards = append(cards, formatIntCard("NAXIS1", int64(im.Width), ""))
	cards = append(cards, formatIntCard("NAXIS2", int64(im.Height), ""))
	for _, c := range extra {
		cards = append(cards, formatFloatCard(c.Key, c.Value, c.Comment))
	}
	cards = append(cards, "END"+strings.Repeat(" ", cardSize-3))

	header := strings.Join(cards, "")
	if pad := len(header) % blockSize; pad != 0 {
		header += strings.Repeat(" ", blockSize-pad)
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.BigEndian, im.Data); err != nil {
		return err
	}
	dataBytes := int64(len(im.Data)) * 4
	if pad := padTo(dataBytes, blockSize) - dataBytes; pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatBoolCard(key string, v bool, comment string) string {
	val := "F"
	if v {
		val = "T"
	}
	return padCard(fmt.Sprintf("%-8s= %20s / %s", key, val, comment))
}

func formatIntCard(key string, v int64, comment string) string {
	return padCard(fmt.Sprintf("%-8s= %20d / %s", key, v, comment))
}

func formatFloatCard(key string, v float64, comment string) string {
	return padCard(fmt.Sprintf("%-8s= %20g / %s", key, v, comment))
}

func padCard(s string) string {
	if len(s) > cardSize {
		return s[:cardSize]
	}
	return s + strings.Repeat(" ", cardSize-len(s))
}
