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

// Package beam models the telescope point-spread function, in both sky
// and pixel units.
package beam

// FWHMToSigma converts a Gaussian full width at half maximum to its
// standard deviation: sigma = FWHM / (2*sqrt(2*ln(2))).
const FWHMToSigma = 1.0 / 2.3548200450309493

// SigmaToFWHM is the inverse of FWHMToSigma.
const SigmaToFWHM = 2.3548200450309493

// Sky is the point-spread function in sky units: major/minor axis FWHM in
// degrees, position angle in degrees (astronomical convention, CCW from
// north). Invariant: Major >= Minor >= 0.
type Sky struct {
	Major float64 // degrees
	Minor float64 // degrees
	PA    float64 // degrees
}

// Valid reports whether the beam satisfies Major >= Minor >= 0.
func (b Sky) Valid() bool {
	return b.Major >= b.Minor && b.Minor >= 0
}

// Pixel is the point-spread function projected into pixel units at a
// specific image location. Same triple, in pixels instead of degrees.
type Pixel struct {
	Major float64 // pixels
	Minor float64 // pixels
	PA    float64 // degrees, pixel-frame angle of the major axis
}

// Valid reports whether the beam satisfies Major >= Minor >= 0.
func (b Pixel) Valid() bool {
	return b.Major >= b.Minor && b.Minor >= 0
}

// SigmaMajor returns the major axis standard deviation in pixels.
func (b Pixel) SigmaMajor() float64 { return b.Major * FWHMToSigma }

// SigmaMinor returns the minor axis standard deviation in pixels.
func (b Pixel) SigmaMinor() float64 { return b.Minor * FWHMToSigma }
