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

package dispatch

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/catalog"
	img "github.com/mlnoga/aegean-go/internal/image"
	"github.com/mlnoga/aegean-go/internal/island"
	"github.com/mlnoga/aegean-go/internal/wcs"
)

func multiPeakImage(w, h int, centres [][2]int) (*img.Image, *img.Image) {
	data := img.New(w, h)
	rms := img.New(w, h)
	for i := range rms.Data {
		rms.Data[i] = 1
	}
	for _, c := range centres {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := float64(x-c[0]), float64(y-c[1])
				v := 40 * math.Exp(-(dx*dx+dy*dy)/(2*2*2))
				data.Data[x+y*w] += float32(v)
			}
		}
	}
	return data, rms
}

func newSegmenter(t *testing.T, data, rms *img.Image) *island.Segmenter {
	t.Helper()
	seg, err := island.New(data, rms, 5, 4)
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func testGlobal(w, h int, data, rms *img.Image) *GlobalFittingData {
	bkg := img.New(w, h)
	curv := img.New(w, h)
	for i := range curv.Data {
		curv.Data[i] = -10
	}
	return &GlobalFittingData{
		WCS:        wcs.New(float64(w)/2, float64(h)/2, 180, -45, -1.0/3600, 0, 0, 1.0/3600),
		Beam:       beam.Pixel{Major: 2 * beam.SigmaToFWHM, Minor: 2 * beam.SigmaToFWHM, PA: 0},
		Background: bkg,
		Rms:        rms,
		Curvature:  curv,
		SeedClip:   5,
		FloodClip:  4,
		CSigma:     3,
	}
}

func sortedKeys(comps []catalog.Component) []string {
	keys := make([]string, len(comps))
	for i, c := range comps {
		keys[i] = catalogKey(c)
	}
	sort.Strings(keys)
	return keys
}

func catalogKey(c catalog.Component) string {
	return fmt.Sprintf("%d/%d", c.IslandID, c.SourceID)
}

func TestSingleAndMultiWorkerProduceSameComponents(t *testing.T) {
	w, h := 60, 60
	centres := [][2]int{{10, 10}, {30, 15}, {45, 45}}
	data, rms := multiPeakImage(w, h, centres)

	seg1 := newSegmenter(t, data, rms)
	g1 := testGlobal(w, h, data, rms)
	out1 := Run(g1, seg1, 1, 0)

	seg2 := newSegmenter(t, data, rms)
	g2 := testGlobal(w, h, data, rms)
	out2 := Run(g2, seg2, 4, 2)

	if len(out1) != len(out2) {
		t.Fatalf("worker counts disagree on component count: %d vs %d", len(out1), len(out2))
	}
	k1, k2 := sortedKeys(out1), sortedKeys(out2)
	for i := range k1 {
		if k1[i] != k2[i] {
			t.Fatalf("component keys diverge between single and parallel dispatch at %d: %v vs %v", i, k1, k2)
		}
	}
}

func TestRunProducesComponentsForEveryIsland(t *testing.T) {
	w, h := 40, 40
	data, rms := multiPeakImage(w, h, [][2]int{{10, 10}, {30, 30}})
	seg := newSegmenter(t, data, rms)
	g := testGlobal(w, h, data, rms)

	out := Run(g, seg, 2, 1)
	islands := map[int]bool{}
	for _, c := range out {
		islands[c.IslandID] = true
	}
	if len(islands) != 2 {
		t.Fatalf("expected components from 2 islands, got %d", len(islands))
	}
}

func TestNoIslandsYieldsNoComponents(t *testing.T) {
	w, h := 10, 10
	data := img.New(w, h)
	rms := img.New(w, h)
	for i := range rms.Data {
		rms.Data[i] = 1
	}
	seg := newSegmenter(t, data, rms)
	g := testGlobal(w, h, data, rms)
	out := Run(g, seg, 4, 20)
	if len(out) != 0 {
		t.Fatalf("expected no components, got %d", len(out))
	}
}
