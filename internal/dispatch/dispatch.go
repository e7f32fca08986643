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

// Package dispatch implements the §4.8 parallel island dispatcher: a
// read-only GlobalFittingData shared by every worker, and a fixed-size
// worker pool (alitto/pond, the same pool library the retrieval pack's
// GSF converter uses for its per-file conversion fan-out) that fits
// batches of islands concurrently while preserving submission order on
// the receive side.
package dispatch

import (
	"sync"

	"github.com/alitto/pond"

	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/catalog"
	img "github.com/mlnoga/aegean-go/internal/image"
	"github.com/mlnoga/aegean-go/internal/island"
	applog "github.com/mlnoga/aegean-go/internal/log"
	"github.com/mlnoga/aegean-go/internal/status"
	"github.com/mlnoga/aegean-go/internal/wcs"
)

// DefaultBatchSize matches the source's island batch size.
const DefaultBatchSize = 20

// GlobalFittingData is the process-wide, write-once, read-only context
// every worker borrows. Nothing mutates it once the dispatcher starts.
type GlobalFittingData struct {
	WCS              *wcs.WCS
	Beam             beam.Pixel
	Background       *img.BackgroundMap
	Rms              *img.RmsMap
	Curvature        *img.CurvatureMap
	SeedClip         float64
	FloodClip        float64
	CSigma           float64
	MaxSummits       int
	EmitIslandRecord bool
	Status           *status.Server // optional; nil disables progress reporting
}

type islandItem struct {
	id  int
	isl *island.Island
}

// Run drains seg, fits every island, and returns all components in
// island-id order. cores <= 1 runs the single-worker fallback, which is
// the canonical reference for semantics: parallel mode must produce the
// same component list, just not necessarily in the same wall-clock order
// of computation.
func Run(g *GlobalFittingData, seg *island.Segmenter, cores, batchSize int) []catalog.Component {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if cores <= 1 {
		return runSingleThreaded(g, seg)
	}
	return runParallel(g, seg, cores, batchSize)
}

func runSingleThreaded(g *GlobalFittingData, seg *island.Segmenter) []catalog.Component {
	var out []catalog.Component
	id := 0
	for {
		isl, ok := seg.Next()
		if !ok {
			break
		}
		out = append(out, fitOne(g, id, isl)...)
		id++
	}
	return out
}

func runParallel(g *GlobalFittingData, seg *island.Segmenter, cores, batchSize int) []catalog.Component {
	pool := pond.New(cores, 0, pond.MinWorkers(cores))
	defer pool.StopAndWait()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results [][]catalog.Component
	)

	nextID := 0
	for {
		batch := make([]islandItem, 0, batchSize)
		for len(batch) < batchSize {
			isl, ok := seg.Next()
			if !ok {
				break
			}
			batch = append(batch, islandItem{id: nextID, isl: isl})
			nextID++
		}
		if len(batch) == 0 {
			break
		}

		mu.Lock()
		idx := len(results)
		results = append(results, nil)
		mu.Unlock()

		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			comps := fitBatch(g, batch)
			mu.Lock()
			results[idx] = comps
			mu.Unlock()
		})
	}
	wg.Wait()

	var out []catalog.Component
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func fitBatch(g *GlobalFittingData, batch []islandItem) []catalog.Component {
	var out []catalog.Component
	for _, item := range batch {
		out = append(out, fitOne(g, item.id, item.isl)...)
	}
	return out
}

// fitOne fits a single island, isolating any panic to this island per
// §5's failure-isolation rule: a worker crash must never abort the run.
func fitOne(g *GlobalFittingData, id int, isl *island.Island) (comps []catalog.Component) {
	defer func() {
		if r := recover(); r != nil {
			applog.Printf("island %d: fit failed: %v", id, r)
			comps = nil
		}
		if g.Status != nil {
			g.Status.Increment()
		}
	}()
	return catalog.FitIsland(g.WCS, g.Beam, g.Background, g.Rms, g.Curvature, isl, id,
		g.SeedClip, g.FloodClip, g.CSigma, g.MaxSummits, g.EmitIslandRecord)
}
