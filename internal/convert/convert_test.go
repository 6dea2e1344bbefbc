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

package convert_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stapelberg/shjpeg/internal/convert"
	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/softconv"
)

func openSim(t *testing.T) (*resource.Group, *jpusim.Sim) {
	t.Helper()
	sim := jpusim.New(jpusim.Options{})
	g, err := sim.Open()
	if err != nil {
		t.Fatal(err)
	}
	return g, sim
}

func lineBuffer(g *resource.Group, slot jpu.Slot, format pixfmt.Format, width int) *softconv.Image {
	lb := g.LineBuffer(slot)
	return &softconv.Image{
		Format: format,
		Width:  width,
		Height: jpu.LineBufferHeight,
		Pitch:  jpu.LineBufferPitch,
		Y:      lb[:jpu.LineBufferSizeY],
		C:      lb[jpu.LineBufferSizeY:],
	}
}

func fill(im *softconv.Image, y, cb, cr uint8) {
	row := make([]byte, im.RowBytes())
	for x := 0; x < im.Width; x++ {
		row[3*x+0], row[3*x+1], row[3*x+2] = y, cb, cr
	}
	for i := 0; i < im.Height; i++ {
		im.SetRow(i, row)
	}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -1 && d <= 1
}

func TestSoftwareDecode(t *testing.T) {
	g, _ := openSim(t)
	const width, height, pitch = 32, 20, 3 * 32
	surface, err := g.Malloc(pixfmt.RGB24.PlaneBytes(height, pitch))
	if err != nil {
		t.Fatal(err)
	}
	s, err := convert.New(convert.Config{
		Mode:    convert.Software,
		Mode420: true,
		Format:  pixfmt.RGB24,
		Width:   width,
		Height:  height,
		Pitch:   pitch,
		Surface: surface,
		Group:   g,
	})
	if err != nil {
		t.Fatal(err)
	}

	fill(lineBuffer(g, 0, pixfmt.NV12, width), 200, 128, 128)
	fill(lineBuffer(g, 1, pixfmt.NV12, width), 50, 128, 128)
	for i := 0; i < 2; i++ {
		if s.Exhausted() {
			t.Fatalf("exhausted after %d strips, want 2", i)
		}
		if err := s.Convert(); err != nil {
			t.Fatal(err)
		}
	}
	if !s.Exhausted() {
		t.Errorf("not exhausted after all strips")
	}
	for _, tt := range []struct {
		line int
		want uint8
	}{
		{0, 200},
		{15, 200},
		{16, 50},
		{19, 50},
	} {
		if got := surface.B[tt.line*pitch]; !near(got, tt.want) {
			t.Errorf("line %d: red = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestHardwareEncode(t *testing.T) {
	g, sim := openSim(t)
	const width, height, pitch = 48, 20, 4 * 48
	surface, err := g.Malloc(pixfmt.RGB32.PlaneBytes(height, pitch))
	if err != nil {
		t.Fatal(err)
	}
	im, err := softconv.NewImage(pixfmt.RGB32, surface.B, width, height, pitch)
	if err != nil {
		t.Fatal(err)
	}
	gray := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(100)
			if y >= jpu.LineBufferHeight {
				v = 30
			}
			gray.SetGray(x, y, color.Gray{v})
		}
	}
	softconv.Draw(im, gray)

	s, err := convert.New(convert.Config{
		Mode:    convert.Hardware,
		Encode:  true,
		Format:  pixfmt.RGB32,
		Width:   width,
		Height:  height,
		Pitch:   pitch,
		Surface: surface,
		Group:   g,
	})
	if err != nil {
		t.Fatal(err)
	}
	for !s.Exhausted() {
		if err := s.Convert(); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := sim.Stats().Conversions, 2; got != want {
		t.Errorf("VEU conversions = %d, want %d", got, want)
	}
	if got := g.LineBuffer(0)[5]; !near(got, 100) {
		t.Errorf("strip 0 luma = %d, want 100", got)
	}
	if got := g.LineBuffer(1)[3*jpu.LineBufferPitch+5]; !near(got, 30) {
		t.Errorf("strip 1 line 3 luma = %d, want 30", got)
	}
}

func TestHardwareWithoutVEU(t *testing.T) {
	sim := jpusim.New(jpusim.Options{NoVEU: true})
	g, err := sim.Open()
	if err != nil {
		t.Fatal(err)
	}
	_, err = convert.New(convert.Config{
		Mode:   convert.Hardware,
		Format: pixfmt.RGB32,
		Width:  16,
		Height: 16,
		Pitch:  64,
		Group:  g,
	})
	if err == nil {
		t.Fatalf("New unexpectedly succeeded without a VEU")
	}
}

func TestInvalidMode(t *testing.T) {
	g, _ := openSim(t)
	mode := convert.Software + 1
	if got, want := mode.String(), "Mode(2)"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	_, err := convert.New(convert.Config{
		Mode:   mode,
		Format: pixfmt.RGB32,
		Width:  16,
		Height: 16,
		Pitch:  64,
		Group:  g,
	})
	if err == nil {
		t.Fatalf("New unexpectedly accepted %v", mode)
	}
}
