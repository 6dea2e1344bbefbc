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

package jpu_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stapelberg/shjpeg/internal/convert"
	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/uio"
)

func TestDecodeEvents(t *testing.T) {
	for _, tt := range []struct {
		ints uint32
		want []jpu.EventKind
	}{
		{0, nil},
		{jpu.JINTS_INS14_RELOAD, []jpu.EventKind{jpu.EventReload}},
		{
			jpu.JINTS_INS11_LINEBUF0 | jpu.JINTS_INS12_LINEBUF1,
			[]jpu.EventKind{jpu.EventLineBuffer},
		},
		{
			jpu.JINTS_INS6_DONE | jpu.JINTS_INS10_XFER_DONE | jpu.JINTS_INS12_LINEBUF1,
			[]jpu.EventKind{jpu.EventDone, jpu.EventTransferDone, jpu.EventLineBuffer},
		},
		{
			jpu.JINTS_INS14_RELOAD | jpu.JINTS_INS5_ERROR | jpu.JINTS_INS3_HEADER,
			[]jpu.EventKind{jpu.EventHeader, jpu.EventError, jpu.EventReload},
		},
		{
			jpu.JINTS_INS13_LOADED | jpu.JINTS_INS10_XFER_DONE,
			[]jpu.EventKind{jpu.EventTransferDone, jpu.EventLoaded},
		},
	} {
		got := jpu.DecodeEvents(tt.ints)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("DecodeEvents(%#x): unexpected diff (-want +got):\n%s", tt.ints, diff)
		}
	}
}

func TestHardwareError(t *testing.T) {
	for _, tt := range []struct {
		code uint32
		want string
	}{
		{0x1, "jpu: error 0x1: SOI not detected"},
		{0xa, "jpu: error 0xa: EOI not detected"},
		{0x42, "jpu: error 0x42"},
	} {
		err := &jpu.HardwareError{Code: tt.code}
		if got := err.Error(); got != tt.want {
			t.Errorf("HardwareError{%#x}: got %q, want %q", tt.code, got, tt.want)
		}
	}
}

func newGroup(t *testing.T, opts jpusim.Options) (*jpusim.Sim, *resource.Group) {
	t.Helper()
	sim := jpusim.New(opts)
	g, err := sim.Open()
	if err != nil {
		t.Fatal(err)
	}
	return sim, g
}

// testJPEG returns a 4:2:0 JPEG file. Noise makes the file large.
func testJPEG(t *testing.T, width, height int, noise bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rnd := rand.New(rand.NewSource(1))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{uint8(x * 4), uint8(y * 4), 0x80, 0xff}
			if noise {
				c = color.RGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 0xff}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func filler(g *resource.Group, r io.Reader) func(jpu.Slot) (int, error) {
	return func(slot jpu.Slot) (int, error) {
		n, err := io.ReadFull(r, g.ReloadBuffer(slot))
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = nil
		}
		return n, err
	}
}

// decodeFrame decodes data into an NV12 frame at the start of the frame
// buffer and returns the luma plane.
func decodeFrame(t *testing.T, g *resource.Group, ctl *jpu.Controller, data []byte, width, height int) ([]byte, error) {
	t.Helper()
	fill := filler(g, bytes.NewReader(data))
	n, err := fill(0)
	if err != nil {
		t.Fatal(err)
	}
	fb := g.FrameBuffer()
	pitch := width
	jpu.ProgramDecode(g.Regs, jpu.DecodeConfig{
		Buffers:      g.Buffers(),
		Length:       n,
		ReloadEnable: n == jpu.ReloadSize,
		Dst: jpu.Frame{
			Y:     fb.Phys,
			C:     fb.Phys + uint32(pitch*height),
			Pitch: pitch,
		},
	})
	run := jpu.Run{State: jpu.StateStart, Buffers: 1}
	if n == jpu.ReloadSize {
		run.Flags |= jpu.FlagReload
	}
	if err := ctl.Decode(&run, fill); err != nil {
		return nil, err
	}
	return fb.B[:pitch*height], nil
}

func wantLuma(t *testing.T, data []byte) []byte {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	m := img.(*image.YCbCr)
	b := m.Bounds()
	luma := make([]byte, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		luma = append(luma, m.Y[y*m.YStride:y*m.YStride+b.Dx()]...)
	}
	return luma
}

func TestDecodeFrame(t *testing.T) {
	_, g := newGroup(t, jpusim.Options{})
	data := testJPEG(t, 64, 48, false)
	if len(data) >= jpu.ReloadSize {
		t.Fatalf("test image too large: %d bytes", len(data))
	}
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, t.Logf)
	got, err := decodeFrame(t, g, ctl, data, 64, 48)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, wantLuma(t, data)) {
		t.Errorf("decoded luma plane differs from image/jpeg")
	}
}

func TestDecodeReload(t *testing.T) {
	_, g := newGroup(t, jpusim.Options{})
	data := testJPEG(t, 384, 384, true)
	if len(data) < 3*jpu.ReloadSize {
		t.Fatalf("test image too small to exercise reloads: %d bytes", len(data))
	}
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, t.Logf)
	got, err := decodeFrame(t, g, ctl, data, 384, 384)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, wantLuma(t, data)) {
		t.Errorf("decoded luma plane differs from image/jpeg")
	}
}

func TestDecodeLineMode(t *testing.T) {
	_, g := newGroup(t, jpusim.Options{})
	const width, height = 64, 40 // not a multiple of the strip height
	data := testJPEG(t, width, height, false)
	fb := g.FrameBuffer()
	stage, err := convert.New(convert.Config{
		Mode:    convert.Software,
		Mode420: true,
		Format:  pixfmt.NV12,
		Width:   width,
		Height:  height,
		Pitch:   width,
		Surface: fb,
		Group:   g,
	})
	if err != nil {
		t.Fatal(err)
	}
	fill := filler(g, bytes.NewReader(data))
	n, err := fill(0)
	if err != nil {
		t.Fatal(err)
	}
	jpu.ProgramDecode(g.Regs, jpu.DecodeConfig{
		Buffers:  g.Buffers(),
		Length:   n,
		LineMode: true,
	})
	ctl := jpu.NewController(g.Regs, g.IRQ, stage, t.Logf)
	run := jpu.Run{State: jpu.StateStart, Flags: jpu.FlagConvert, Buffers: 1}
	if err := ctl.Decode(&run, fill); err != nil {
		t.Fatal(err)
	}
	if got, want := stage.Done(), 3; got != want {
		t.Errorf("converted strips: got %d, want %d", got, want)
	}
	if !bytes.Equal(fb.B[:width*height], wantLuma(t, data)) {
		t.Errorf("decoded luma plane differs from image/jpeg")
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, g := newGroup(t, jpusim.Options{})
	data := testJPEG(t, 384, 384, true)
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, nil)
	_, err := decodeFrame(t, g, ctl, data[:len(data)-jpu.ReloadSize], 384, 384)
	var herr *jpu.HardwareError
	if !errors.Is(err, uio.ErrTimeout) && !errors.As(err, &herr) {
		t.Fatalf("decoding truncated stream: got %v, want %v or *HardwareError", err, uio.ErrTimeout)
	}
}

// lineCommands records the JCCMD writes of a controller. owned counts the
// line buffers the JPU fills: both after START and after every LCMD, one
// less for every line buffer interrupt.
type lineCommands struct {
	uio.Registers
	owned  int
	issued []int // owned at the time of each LCMD
}

func (l *lineCommands) Read32(offset uint32) uint32 {
	v := l.Registers.Read32(offset)
	if offset == jpu.JINTS && v&(jpu.JINTS_INS11_LINEBUF0|jpu.JINTS_INS12_LINEBUF1) != 0 {
		l.owned--
	}
	return v
}

func (l *lineCommands) Write32(offset, value uint32) {
	if offset == jpu.JCCMD {
		if value&jpu.JCCMD_START != 0 {
			l.owned = 2
		}
		if value&(jpu.JCCMD_LCMD1|jpu.JCCMD_LCMD2) != 0 {
			l.issued = append(l.issued, l.owned)
			l.owned = 2
		}
	}
	l.Registers.Write32(offset, value)
}

func TestDecodeLineCommands(t *testing.T) {
	for _, tt := range []struct {
		name          string
		width, height int
		strips        int
	}{
		{"two-strips", 64, 32, 2},
		{"odd-strips", 64, 80, 5},
		{"many-strips", 64, 96, 6},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, g := newGroup(t, jpusim.Options{})
			data := testJPEG(t, tt.width, tt.height, false)
			fb := g.FrameBuffer()
			stage, err := convert.New(convert.Config{
				Mode:    convert.Software,
				Mode420: true,
				Format:  pixfmt.NV12,
				Width:   tt.width,
				Height:  tt.height,
				Pitch:   tt.width,
				Surface: fb,
				Group:   g,
			})
			if err != nil {
				t.Fatal(err)
			}
			fill := filler(g, bytes.NewReader(data))
			n, err := fill(0)
			if err != nil {
				t.Fatal(err)
			}
			regs := &lineCommands{Registers: g.Regs}
			jpu.ProgramDecode(regs, jpu.DecodeConfig{
				Buffers:  g.Buffers(),
				Length:   n,
				LineMode: true,
			})
			ctl := jpu.NewController(regs, g.IRQ, stage, t.Logf)
			run := jpu.Run{State: jpu.StateStart, Flags: jpu.FlagConvert, Buffers: 1}
			if err := ctl.Decode(&run, fill); err != nil {
				t.Fatal(err)
			}
			// every LCMD covers two strips after the first two
			want := make([]int, (tt.strips-1)/2)
			if diff := cmp.Diff(want, regs.issued, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("line buffers owned by the JPU at LCMD: unexpected diff (-want +got):\n%s", diff)
			}
			if got := stage.Done(); got != tt.strips {
				t.Errorf("converted strips: got %d, want %d", got, tt.strips)
			}
			if !bytes.Equal(fb.B[:tt.width*tt.height], wantLuma(t, data)) {
				t.Errorf("decoded luma plane differs from image/jpeg")
			}
		})
	}
}

func TestDecodeStall(t *testing.T) {
	sim, g := newGroup(t, jpusim.Options{})
	sim.SetStall(true)
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, nil)
	_, err := decodeFrame(t, g, ctl, testJPEG(t, 16, 16, false), 16, 16)
	if !errors.Is(err, uio.ErrTimeout) {
		t.Fatalf("Decode: got %v, want %v", err, uio.ErrTimeout)
	}
	if got := sim.Stats().Overlaps; got != 0 {
		t.Errorf("overlapping runs: got %d, want 0", got)
	}
}

func TestDecodeHardwareError(t *testing.T) {
	sim, g := newGroup(t, jpusim.Options{})
	sim.SetErrorCode(0x9)
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, nil)
	_, err := decodeFrame(t, g, ctl, testJPEG(t, 16, 16, false), 16, 16)
	var herr *jpu.HardwareError
	if !errors.As(err, &herr) {
		t.Fatalf("Decode: got %v, want *HardwareError", err)
	}
	if got, want := herr.Code, uint32(0x9); got != want {
		t.Errorf("error code: got %#x, want %#x", got, want)
	}
}

func TestDecodeGrayscale(t *testing.T) {
	_, g := newGroup(t, jpusim.Options{})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16)), nil); err != nil {
		t.Fatal(err)
	}
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, nil)
	_, err := decodeFrame(t, g, ctl, buf.Bytes(), 16, 16)
	var herr *jpu.HardwareError
	if !errors.As(err, &herr) {
		t.Fatalf("Decode: got %v, want *HardwareError", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	for _, tt := range []struct {
		name          string
		width, height int
		noise         bool
	}{
		{"small", 64, 48, false},
		{"multiple-reloads", 384, 384, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, g := newGroup(t, jpusim.Options{Quality: 100})
			src, err := jpeg.Decode(bytes.NewReader(testJPEG(t, tt.width, tt.height, tt.noise)))
			if err != nil {
				t.Fatal(err)
			}
			fb := g.FrameBuffer()
			pitch := tt.width
			surface, err := softconv.NewImage(pixfmt.NV16, fb.B, tt.width, tt.height, pitch)
			if err != nil {
				t.Fatal(err)
			}
			softconv.Draw(surface, src)

			jpu.ProgramEncode(g.Regs, jpu.EncodeConfig{
				Buffers: g.Buffers(),
				Width:   tt.width,
				Height:  tt.height,
				Src: jpu.Frame{
					Y:     fb.Phys,
					C:     fb.Phys + uint32(pitch*tt.height),
					Pitch: pitch,
				},
			})
			ctl := jpu.NewController(g.Regs, g.IRQ, nil, t.Logf)
			run := jpu.Run{State: jpu.StateStart, Flags: jpu.FlagEncode | jpu.FlagReload, Buffers: 3}
			var out bytes.Buffer
			if err := ctl.Encode(&run, func(slot jpu.Slot, n int) error {
				_, err := out.Write(g.ReloadBuffer(slot)[:n])
				return err
			}); err != nil {
				t.Fatal(err)
			}
			if got, want := out.Len(), ctl.Coded(); got != want {
				t.Errorf("drained bytes: got %d, want %d", got, want)
			}
			if tt.noise && out.Len() <= 2*jpu.ReloadSize {
				t.Errorf("encoded size %d does not exercise reloads", out.Len())
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != tt.width || cfg.Height != tt.height {
				t.Errorf("encoded size: got %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.width, tt.height)
			}
			if _, err := jpeg.Decode(bytes.NewReader(out.Bytes())); err != nil {
				t.Errorf("decoding encoded image: %v", err)
			}
		})
	}
}

func TestEncodeLineMode(t *testing.T) {
	sim, g := newGroup(t, jpusim.Options{})
	const width, height = 48, 50
	buf, err := g.Malloc(pixfmt.RGB24.PlaneBytes(height, 3*width))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Free(buf)
	for i := range buf.B {
		buf.B[i] = 0x40
	}
	stage, err := convert.New(convert.Config{
		Mode:    convert.Hardware,
		Encode:  true,
		Format:  pixfmt.RGB24,
		Width:   width,
		Height:  height,
		Pitch:   3 * width,
		Surface: buf,
		Group:   g,
	})
	if err != nil {
		t.Fatal(err)
	}
	jpu.ProgramEncode(g.Regs, jpu.EncodeConfig{
		Buffers:  g.Buffers(),
		Width:    width,
		Height:   height,
		LineMode: true,
	})
	ctl := jpu.NewController(g.Regs, g.IRQ, stage, t.Logf)
	run := jpu.Run{State: jpu.StateStart, Flags: jpu.FlagEncode | jpu.FlagReload | jpu.FlagConvert, Buffers: 3}
	var out bytes.Buffer
	if err := ctl.Encode(&run, func(slot jpu.Slot, n int) error {
		_, err := out.Write(g.ReloadBuffer(slot)[:n])
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got, want := sim.Stats().Conversions, 4; got != want {
		t.Errorf("VEU conversions: got %d, want %d", got, want)
	}
	img, err := jpeg.Decode(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, width, height); got != want {
		t.Fatalf("encoded bounds: got %v, want %v", got, want)
	}
	r, gr, b, _ := img.At(width/2, height/2).RGBA()
	for _, c := range []uint32{r >> 8, gr >> 8, b >> 8} {
		if c < 0x38 || c > 0x48 {
			t.Errorf("center pixel: got (%#x, %#x, %#x), want ≈ 0x40", r>>8, gr>>8, b>>8)
			break
		}
	}
}

func TestEncodeStall(t *testing.T) {
	sim, g := newGroup(t, jpusim.Options{})
	sim.SetStall(true)
	fb := g.FrameBuffer()
	jpu.ProgramEncode(g.Regs, jpu.EncodeConfig{
		Buffers: g.Buffers(),
		Width:   16,
		Height:  16,
		Src:     jpu.Frame{Y: fb.Phys, C: fb.Phys + 256, Pitch: 16},
	})
	ctl := jpu.NewController(g.Regs, g.IRQ, nil, nil)
	run := jpu.Run{State: jpu.StateStart, Flags: jpu.FlagEncode | jpu.FlagReload, Buffers: 3}
	err := ctl.Encode(&run, func(jpu.Slot, int) error { return nil })
	if !errors.Is(err, uio.ErrTimeout) {
		t.Fatalf("Encode: got %v, want %v", err, uio.ErrTimeout)
	}
}
