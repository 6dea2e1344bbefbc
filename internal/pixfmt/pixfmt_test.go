// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pixfmt

import "testing"

func TestFields(t *testing.T) {
	for _, test := range []struct {
		f                      Format
		id, pitch, bpp, planes int
	}{
		{RGB16, 1, 2, 16, 2},
		{RGB24, 2, 3, 24, 2},
		{RGB32, 3, 4, 32, 2},
		{NV12, 4, 1, 12, 3},
		{NV16, 5, 1, 16, 4},
		{YCbCr, 7, 3, 24, 2},
	} {
		t.Run(test.f.String(), func(t *testing.T) {
			if got, want := test.f.ID(), test.id; got != want {
				t.Errorf("ID: got %d, want %d", got, want)
			}
			if got, want := test.f.PitchMultiplier(), test.pitch; got != want {
				t.Errorf("PitchMultiplier: got %d, want %d", got, want)
			}
			if got, want := test.f.BPP(), test.bpp; got != want {
				t.Errorf("BPP: got %d, want %d", got, want)
			}
			if got, want := test.f.PlaneMultiplier(), test.planes; got != want {
				t.Errorf("PlaneMultiplier: got %d, want %d", got, want)
			}
			packed := Format(test.id<<24 | test.pitch<<16 | test.bpp<<8 | test.planes)
			if packed != test.f {
				t.Errorf("packed value: got %#x, want %#x", uint32(packed), uint32(test.f))
			}
		})
	}
}

func TestPlaneBytes(t *testing.T) {
	for _, f := range All {
		for _, height := range []int{1, 2, 16, 240, 241} {
			pitch := (320*f.PitchMultiplier() + 7) &^ 7
			want := f.PlaneMultiplier() * height / 2 * pitch
			if got := f.PlaneBytes(height, pitch); got != want {
				t.Errorf("%v.PlaneBytes(%d, %d): got %d, want %d", f, height, pitch, got, want)
			}
		}
	}
	// NV12 at 320x240: luma plus half a luma plane of chroma.
	if got, want := NV12.PlaneBytes(240, 320), 320*240*3/2; got != want {
		t.Errorf("NV12.PlaneBytes: got %d, want %d", got, want)
	}
}

func TestParse(t *testing.T) {
	for _, f := range All {
		got, err := Parse(f.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != f {
			t.Fatalf("Parse(%q): got %v, want %v", f.String(), got, f)
		}
	}
	if _, err := Parse("grayscale"); err == nil {
		t.Fatalf("Parse(grayscale) unexpectedly succeeded")
	}
	if None.Valid() {
		t.Fatalf("None.Valid() = true, want false")
	}
}
