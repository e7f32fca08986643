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

package flags

import "testing"

func TestBitValues(t *testing.T) {
	cases := map[Flags]Flags{
		FitErrSmall:   1,
		FitErr:        2,
		Fixed2PSF:     4,
		FixedCircular: 8,
		NotFit:        16,
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("flag = %d, want %d", got, want)
		}
	}
}

func TestSetAndHas(t *testing.T) {
	var f Flags
	f = f.Set(FitErrSmall)
	f = f.Set(Fixed2PSF)

	if !f.Has(FitErrSmall) {
		t.Error("expected FitErrSmall set")
	}
	if !f.Has(Fixed2PSF) {
		t.Error("expected Fixed2PSF set")
	}
	if f.Has(FitErr) {
		t.Error("did not expect FitErr set")
	}
	if !f.Has(FitErrSmall | Fixed2PSF) {
		t.Error("expected combined mask to be present")
	}
}
