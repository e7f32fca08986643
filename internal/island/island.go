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

// Package island implements the §4.4 dual-threshold flood-fill segmenter.
// Per §9's design note, the source's generator-based segmenter becomes a
// lazy, single-pass, non-restartable Go iterator (Segmenter.Next) rather
// than returning a fully materialized slice -- the dispatcher pulls
// batches from it directly. BFS queue/visited bookkeeping follows the
// same "mark on enqueue, never enqueue twice" discipline nightlight uses
// for its star-overlap grid scan (internal/findstars.go's
// filterOutOverlaps), generalized here to island connectivity.
package island

import (
	"errors"
	"math"
	"sort"

	img "github.com/mlnoga/aegean-go/internal/image"
)

// Per-pixel status bits, reproduced verbatim for interop per the data
// model in spec.md §3.
const (
	StatusPeaked  byte = 1
	StatusQueued  byte = 2
	StatusVisited byte = 4
)

// Island is a maximal 4-connected set of pixels flood-grown from a seed,
// stored as a dense rectangular sub-image with off-island pixels NaN.
type Island struct {
	Sub      *img.SubImage
	SeedFlux float32 // data/rms of the seed pixel that spawned this island
}

// Segmenter is a lazy, single-pass, non-restartable island iterator.
type Segmenter struct {
	data      *img.Image
	rms       *img.RmsMap
	seedClip  float32
	floodClip float32
	status    []byte
	seeds     []int // pixel indices, sorted by descending data/rms
	next      int
}

// New constructs a segmenter over data/rms with the given seed and flood
// thresholds. Returns an error if seedClip < floodClip, per §4.4's
// required ordering (seed == flood is allowed: seed and flood coincide).
func New(data *img.Image, rms *img.RmsMap, seedClip, floodClip float32) (*Segmenter, error) {
	if seedClip < floodClip {
		return nil, errors.New("island: seedClip must be >= floodClip")
	}
	if data.Width != rms.Width || data.Height != rms.Height {
		return nil, errors.New("island: data and rms must have matching shape")
	}

	n := data.Width * data.Height
	seeds := make([]int, 0, n/64)
	for i := 0; i < n; i++ {
		r := rms.Data[i]
		if math.IsNaN(float64(r)) || r <= 0 {
			continue
		}
		if data.Data[i]/r >= seedClip {
			seeds = append(seeds, i)
		}
	}
	sort.SliceStable(seeds, func(a, b int) bool {
		fa := data.Data[seeds[a]] / rms.Data[seeds[a]]
		fb := data.Data[seeds[b]] / rms.Data[seeds[b]]
		return fa > fb
	})

	return &Segmenter{
		data:      data,
		rms:       rms,
		seedClip:  seedClip,
		floodClip: floodClip,
		status:    make([]byte, n),
		seeds:     seeds,
	}, nil
}

// Next produces the next island in decreasing seed-flux order, or false
// once the sequence is exhausted. Islands of length <= 1 pixel are
// discarded internally and never returned.
func (s *Segmenter) Next() (*Island, bool) {
	for s.next < len(s.seeds) {
		idx := s.seeds[s.next]
		s.next++
		if s.status[idx]&StatusVisited != 0 {
			continue
		}
		members, seedFlux := s.floodFrom(idx)
		if len(members) <= 1 {
			continue
		}
		return &Island{Sub: s.buildSubImage(members), SeedFlux: seedFlux}, true
	}
	return nil, false
}

func (s *Segmenter) floodFrom(seedIdx int) (members []int, seedFlux float32) {
	w, h := s.data.Width, s.data.Height
	seedFlux = s.data.Data[seedIdx] / s.rms.Data[seedIdx]

	queue := []int{seedIdx}
	s.status[seedIdx] |= StatusQueued | StatusPeaked

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		s.status[idx] |= StatusVisited
		members = append(members, idx)

		x, y := idx%w, idx/w
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			nIdx := nx + ny*w
			if s.status[nIdx]&StatusQueued != 0 {
				continue
			}
			r := s.rms.Data[nIdx]
			if math.IsNaN(float64(r)) || r <= 0 {
				continue
			}
			if s.data.Data[nIdx]/r >= s.floodClip {
				s.status[nIdx] |= StatusQueued
				queue = append(queue, nIdx)
			}
		}
	}
	return members, seedFlux
}

func (s *Segmenter) buildSubImage(members []int) *img.SubImage {
	w := s.data.Width
	xmin, xmax := members[0]%w, members[0]%w
	ymin, ymax := members[0]/w, members[0]/w
	for _, idx := range members {
		x, y := idx%w, idx/w
		if x < xmin {
			xmin = x
		}
		if x > xmax {
			xmax = x
		}
		if y < ymin {
			ymin = y
		}
		if y > ymax {
			ymax = y
		}
	}

	sub := img.NewSubImage(xmin, xmax, ymin, ymax)
	for _, idx := range members {
		x, y := idx%w, idx/w
		sub.Set(x-xmin, y-ymin, s.data.Data[idx])
	}
	return sub
}
