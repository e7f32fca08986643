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

// cmd/aegean is the CLI entry point, mirroring cmd/nightlight/main.go's
// flat package-level flag.* variables and single runOp-style dispatch,
// adapted to the §6 flag surface of a source finder instead of a stacker.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/aegean-go/internal/background"
	"github.com/mlnoga/aegean-go/internal/beam"
	"github.com/mlnoga/aegean-go/internal/catalog"
	"github.com/mlnoga/aegean-go/internal/curvature"
	"github.com/mlnoga/aegean-go/internal/dispatch"
	"github.com/mlnoga/aegean-go/internal/fitsio"
	img "github.com/mlnoga/aegean-go/internal/image"
	"github.com/mlnoga/aegean-go/internal/island"
	applog "github.com/mlnoga/aegean-go/internal/log"
	"github.com/mlnoga/aegean-go/internal/status"
	"github.com/mlnoga/aegean-go/internal/wcs"
)

var hdu = flag.Int("hdu", 0, "HDU index")
var rmsFlag = flag.Float64("rms", 0, "forced uniform rms, 0=estimate from the image")
var rmsIn = flag.String("rmsin", "", "FITS file with a precomputed rms map, shape-equal to the main image")
var bkgIn = flag.String("bkgin", "", "FITS file with a precomputed background map, shape-equal to the main image")
var maxSummits = flag.Int("maxsummits", 0, "skip fit if an island decomposes into more summits than this, 0=unlimited")
var cSigma = flag.Float64("csigma", 0, "curvature noise threshold, 0=estimate from the curvature map")
var seedClip = flag.Float64("seedclip", 5, "seed sigma threshold")
var floodClip = flag.Float64("floodclip", 4, "flood sigma threshold")
var cores = flag.Int("cores", runtime.NumCPU(), "worker count, 0 or 1=single threaded fallback")
var island_ = flag.Bool("island", false, "emit island-integrated records in addition to per-component ones")
var saveBackground = flag.Bool("save_background", false, "write background/rms/curvature FITS and exit")
var beamMaj = flag.Float64("beam-major", 0, "override beam major axis FWHM, degrees (requires -beam-minor/-beam-pa)")
var beamMin = flag.Float64("beam-minor", 0, "override beam minor axis FWHM, degrees")
var beamPA = flag.Float64("beam-pa", 0, "override beam position angle, degrees")
var mesh = flag.Int("mesh", background.DefaultMesh, "background mesh tile size in beam widths")
var galactic = flag.Bool("galactic", false, "rename ra/dec catalogue columns to lon/lat")
var out = flag.String("out", "", "write catalogue CSV to `file` instead of stdout")
var logFile = flag.String("log", "", "also log to `file`")
var serve = flag.String("serve", "", "serve run progress over HTTP at this `addr` (e.g. :8080), blank=off")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] image.fits\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *logFile != "" {
		if err := applog.AlsoToFile(*logFile); err != nil {
			applog.Fatalf("error opening log file: %s\n", err.Error())
		}
	}

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		os.Exit(1)
	}

	applog.Printf("aegean: %s, %d physical cores, AVX2=%v, %d MiB total memory\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.AVX2(), memory.TotalMemory()/1024/1024)

	start := time.Now()
	if err := run(args[0]); err != nil {
		applog.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	applog.Printf("done after %s\n", time.Since(start).Round(time.Millisecond))
}

func run(fileName string) error {
	data, hdr, err := fitsio.ReadFile(fileName, *hdu)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fileName, err)
	}

	w, ok := hdr.WCS()
	if !ok {
		return fmt.Errorf("%s: no usable WCS keywords in HDU %d", fileName, *hdu)
	}

	skyBeam, ok := hdr.Beam()
	if !ok {
		if *beamMaj <= 0 {
			return fmt.Errorf("%s: no BMAJ/BMIN/BPA keywords and no -beam-major override given", fileName)
		}
		skyBeam = beam.Sky{Major: *beamMaj, Minor: *beamMin, PA: *beamPA}
	} else if *beamMaj > 0 {
		skyBeam = beam.Sky{Major: *beamMaj, Minor: *beamMin, PA: *beamPA}
	}
	if !skyBeam.Valid() {
		return fmt.Errorf("%s: invalid beam %+v (need major >= minor >= 0)", fileName, skyBeam)
	}

	centerBeam := w.PixelBeamAt(float64(data.Width)/2, float64(data.Height)/2, skyBeam)

	var bg, rms *img.Image
	switch {
	case *bkgIn != "" && *rmsIn != "":
		var err error
		bg, _, err = fitsio.ReadFile(*bkgIn, 0)
		if err != nil {
			return fmt.Errorf("reading -bkgin: %w", err)
		}
		rms, _, err = fitsio.ReadFile(*rmsIn, 0)
		if err != nil {
			return fmt.Errorf("reading -rmsin: %w", err)
		}
		if bg.Width != data.Width || bg.Height != data.Height || rms.Width != data.Width || rms.Height != data.Height {
			return fmt.Errorf("-bkgin/-rmsin shape does not match %s", fileName)
		}
	case *rmsFlag > 0:
		res := background.Forced(data.Width, data.Height, float32(*rmsFlag))
		bg, rms = res.Background, res.Rms
	default:
		res := background.Estimate(data, centerBeam, *mesh)
		bg, rms = res.Background, res.Rms
	}

	curv := curvature.Filter(data)
	cs := *cSigma
	if cs <= 0 {
		cs = float64(curvature.EstimateSigma(curv))
	}

	if *saveBackground {
		return writeBackgroundProducts(fileName, bg, rms, curv)
	}

	seg, err := island.New(data, rms, float32(*seedClip), float32(*floodClip))
	if err != nil {
		return err
	}

	var statusServer *status.Server
	if *serve != "" {
		statusServer = status.New()
		go func() {
			if err := statusServer.Run(*serve); err != nil {
				applog.Printf("status server: %s\n", err.Error())
			}
		}()
	}

	g := &dispatch.GlobalFittingData{
		WCS: w, Beam: centerBeam,
		Background: bg, Rms: rms, Curvature: curv,
		SeedClip: *seedClip, FloodClip: *floodClip, CSigma: cs,
		MaxSummits: *maxSummits, EmitIslandRecord: *island_,
		Status: statusServer,
	}
	components := dispatch.Run(g, seg, *cores, batchSizeForMemory())

	frame := catalog.Equatorial
	if *galactic {
		frame = catalog.Galactic
	}
	return writeCatalogue(components, frame)
}

// batchSizeForMemory grows the dispatcher's island batch beyond
// dispatch.DefaultBatchSize on machines with plenty of headroom, so large
// multi-GB images with thousands of islands do not serialize on mutex
// contention in small 20-island increments.
func batchSizeForMemory() int {
	const gib = 1024 * 1024 * 1024
	total := memory.TotalMemory()
	switch {
	case total >= 64*gib:
		return dispatch.DefaultBatchSize * 4
	case total >= 16*gib:
		return dispatch.DefaultBatchSize * 2
	default:
		return dispatch.DefaultBatchSize
	}
}

func writeCatalogue(components []catalog.Component, frame catalog.Frame) error {
	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(catalog.Header(frame)); err != nil {
		return err
	}
	for _, c := range components {
		if err := cw.Write(catalog.Row(c)); err != nil {
			return err
		}
	}
	applog.Printf("wrote %d catalogue rows\n", len(components))
	return nil
}

func writeBackgroundProducts(fileName string, bg, rms, curv *img.Image) error {
	base := fileName
	for _, suffix := range []string{".fits", ".fit", ".fits.gz"} {
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			base = base[:len(base)-len(suffix)]
			break
		}
	}
	products := []struct {
		suffix string
		image  *img.Image
	}{
		{"_bkg.fits", bg},
		{"_rms.fits", rms},
		{"_curv.fits", curv},
	}
	for _, p := range products {
		f, err := os.Create(base + p.suffix)
		if err != nil {
			return err
		}
		err = fitsio.WritePrimary(f, p.image, nil)
		f.Close()
		if err != nil {
			return err
		}
		applog.Printf("wrote %s\n", base+p.suffix)
	}
	return nil
}
