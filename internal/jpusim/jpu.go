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

package jpusim

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"
	"time"

	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/swcodec"
	"github.com/stapelberg/shjpeg/internal/uio"
)

// Decoder error codes reported in JCDERR.
const (
	errCodeSOF      = 0x2 // unsupported SOF marker
	errCodeSampling = 0x3 // unsupported subsampling
	errCodeEOI      = 0xa // stream ended early
	errCodeMarker   = 0x8 // malformed stream
)

type op int

const (
	opIdle op = iota
	opDecode
	opEncode
)

// JPU simulates the JPEG processing unit. It implements uio.Registers and
// uio.Interrupt.
type JPU struct {
	sim  *Sim
	regs map[uint32]uint32

	jints  uint32
	masked bool

	op      op
	failed  bool
	lineBuf bool

	// decode
	data        []byte
	reload      bool
	next        jpu.Slot
	waitReload  bool
	img         *image.YCbCr
	credits     int
	strip       int
	strips      int
	transferred bool

	// encode
	width, height int
	in            *softconv.Image
	inBuf         []byte
	out           []byte
	written       int
	outSlot       jpu.Slot
	waitDrain     bool
	queued        int // line buffers handed over but not read yet
}

func (j *JPU) Read32(offset uint32) uint32 {
	j.sim.mu.Lock()
	defer j.sim.mu.Unlock()
	if offset == jpu.JINTS {
		return j.jints
	}
	return j.regs[offset]
}

func (j *JPU) Write32(offset, value uint32) {
	j.sim.mu.Lock()
	defer j.sim.mu.Unlock()
	switch offset {
	case jpu.JINTS:
		j.jints &= value
	case jpu.JCCMD:
		j.command(value)
	default:
		j.regs[offset] = value
	}
}

// Wait advances the simulation by one step and reports whether an enabled
// interrupt is pending. It never blocks: a simulation which cannot make
// progress times out immediately.
func (j *JPU) Wait(timeout time.Duration) error {
	j.sim.mu.Lock()
	defer j.sim.mu.Unlock()
	if j.sim.stall {
		return uio.ErrTimeout
	}
	if j.pending() == 0 {
		j.advance()
	}
	if j.pending() == 0 {
		return uio.ErrTimeout
	}
	j.masked = true
	return nil
}

func (j *JPU) Enable() error {
	j.sim.mu.Lock()
	defer j.sim.mu.Unlock()
	j.masked = false
	return nil
}

func (j *JPU) pending() uint32 {
	return j.jints & j.regs[jpu.JINTE]
}

func (j *JPU) raise(bits uint32) {
	j.jints |= bits & j.regs[jpu.JINTE]
}

func (j *JPU) fail(code uint32) {
	j.failed = true
	j.regs[jpu.JCDERR] = code
	j.raise(jpu.JINTS_INS5_ERROR)
}

func (j *JPU) command(cmd uint32) {
	if cmd&jpu.JCCMD_CLR_INTERRUPT != 0 {
		j.jints = 0
	}
	if cmd&jpu.JCCMD_SRST != 0 {
		j.reset()
	}
	if cmd&jpu.JCCMD_START != 0 {
		j.start()
	}
	if cmd&(jpu.JCCMD_LCMD1|jpu.JCCMD_LCMD2) != 0 {
		j.lineCommand()
	}
	if cmd&jpu.JCCMD_READ_RESTART != 0 && j.op == opDecode && j.waitReload {
		j.waitReload = false
		j.consume(j.next, jpu.ReloadSize)
	}
	if cmd&jpu.JCCMD_WRITE_RESTART != 0 {
		j.waitDrain = false
	}
	if cmd&jpu.JCCMD_END != 0 && j.op != opIdle {
		j.op = opIdle
		j.sim.end()
	}
}

func (j *JPU) reset() {
	if j.op != opIdle {
		j.sim.end()
	}
	*j = JPU{sim: j.sim, regs: make(map[uint32]uint32)}
}

func (j *JPU) start() {
	j.sim.begin()
	j.failed = false
	j.transferred = false
	if j.regs[jpu.JCMOD]&jpu.JCMOD_DSP_DECODE != 0 {
		j.startDecode()
	} else {
		j.startEncode()
	}
}

func (j *JPU) startDecode() {
	j.op = opDecode
	j.data = j.data[:0]
	j.img = nil
	cnt := j.regs[jpu.JIFDCNT]
	j.reload = cnt&jpu.JIFCNT_RELOAD_ENABLE != 0
	j.lineBuf = cnt&jpu.JIFCNT_LINEBUF_MODE != 0
	j.credits = 2
	j.strip = 0
	j.waitReload = false
	j.next = 0
	if errCode := j.sim.errorCode; errCode != 0 {
		j.fail(errCode)
		return
	}
	n := int(j.regs[jpu.JIFDDRSZ])
	if n > jpu.ReloadSize {
		n = jpu.ReloadSize
	}
	j.consume(0, n)
}

// consume appends n bytes of the reload buffer in slot to the compressed
// data.
func (j *JPU) consume(slot jpu.Slot, n int) {
	addr := j.regs[jpu.JIFDSA1]
	if slot == 1 {
		addr = j.regs[jpu.JIFDSA2]
	}
	b, err := j.sim.slice(addr, n)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	j.data = append(j.data, b...)
	j.next = slot.Next()
}

func (j *JPU) lineCommand() {
	switch j.op {
	case opDecode:
		// both line buffers are free again
		j.credits = 2
	case opEncode:
		j.queued++
	}
}

func (j *JPU) advance() {
	if j.failed || j.transferred {
		return
	}
	switch j.op {
	case opDecode:
		j.advanceDecode()
	case opEncode:
		j.advanceEncode()
	}
}

func (j *JPU) advanceDecode() {
	if j.img == nil {
		if j.waitReload {
			return
		}
		if !j.decode() {
			return
		}
		b := j.img.Bounds()
		j.regs[jpu.JIFDDHSZ] = uint32(b.Dx())
		j.regs[jpu.JIFDDVSZ] = uint32(b.Dy())
		j.strips = (b.Dy() + jpu.LineBufferHeight - 1) / jpu.LineBufferHeight
		if !j.lineBuf {
			j.writeFrame()
			return
		}
	}
	if j.credits == 0 || j.strip >= j.strips {
		return
	}
	slot := jpu.Slot(j.strip % 2)
	y, c := j.regs[jpu.JIFDDYA1], j.regs[jpu.JIFDDCA1]
	if slot == 1 {
		y, c = j.regs[jpu.JIFDDYA2], j.regs[jpu.JIFDDCA2]
	}
	y0 := j.strip * jpu.LineBufferHeight
	lines := j.img.Bounds().Dy() - y0
	if lines > jpu.LineBufferHeight {
		lines = jpu.LineBufferHeight
	}
	if err := j.store(y, c, int(j.regs[jpu.JIFDDMW]), y0, lines); err != nil {
		j.fail(errCodeMarker)
		return
	}
	j.credits--
	j.strip++
	if slot == 0 {
		j.raise(jpu.JINTS_INS11_LINEBUF0)
	} else {
		j.raise(jpu.JINTS_INS12_LINEBUF1)
	}
	if j.strip == j.strips {
		j.transferred = true
		j.raise(jpu.JINTS_INS6_DONE | jpu.JINTS_INS10_XFER_DONE)
	}
}

// decode tries to decode the compressed data received so far. It returns
// false when more data is needed or decoding failed.
func (j *JPU) decode() bool {
	hdr, err := swcodec.ReadHeader(bytes.NewReader(j.data))
	if err == nil && !hdr.Baseline {
		j.fail(errCodeSOF)
		return false
	}
	if err == nil && !hdr.Mode420() && !hdr.Mode422() {
		j.fail(errCodeSampling)
		return false
	}
	img, err := jpeg.Decode(bytes.NewReader(j.data))
	if incomplete(err) {
		if !j.reload {
			j.fail(errCodeEOI)
			return false
		}
		j.waitReload = true
		j.raise(jpu.JINTS_INS14_RELOAD)
		return false
	}
	if err != nil {
		j.fail(errCodeMarker)
		return false
	}
	m, ok := img.(*image.YCbCr)
	if !ok || (m.SubsampleRatio != image.YCbCrSubsampleRatio420 && m.SubsampleRatio != image.YCbCrSubsampleRatio422) {
		j.fail(errCodeSampling)
		return false
	}
	j.img = m
	return true
}

// incomplete reports whether err means that the decoder ran out of data.
func incomplete(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var fe jpeg.FormatError
	return errors.As(err, &fe) && strings.HasPrefix(string(fe), "short")
}

func (j *JPU) writeFrame() {
	if err := j.store(j.regs[jpu.JIFDDYA1], j.regs[jpu.JIFDDCA1], int(j.regs[jpu.JIFDDMW]), 0, j.img.Bounds().Dy()); err != nil {
		j.fail(errCodeMarker)
		return
	}
	j.transferred = true
	j.raise(jpu.JINTS_INS6_DONE | jpu.JINTS_INS10_XFER_DONE)
}

// store writes lines [y0, y0+lines) of the decoded image in NV12 (4:2:0) or
// NV16 (4:2:2) layout to the planes at yAddr and cAddr.
func (j *JPU) store(yAddr, cAddr uint32, pitch, y0, lines int) error {
	m := j.img
	w := m.Bounds().Dx()
	cw := (w + 1) / 2
	is420 := m.SubsampleRatio == image.YCbCrSubsampleRatio420

	dstY, err := j.sim.slice(yAddr, (lines-1)*pitch+w)
	if err != nil {
		return err
	}
	for y := 0; y < lines; y++ {
		copy(dstY[y*pitch:y*pitch+w], m.Y[(y0+y)*m.YStride:])
	}

	cy0, crows := y0, lines
	if is420 {
		cy0, crows = y0/2, (lines+1)/2
	}
	dstC, err := j.sim.slice(cAddr, (crows-1)*pitch+2*cw)
	if err != nil {
		return err
	}
	for y := 0; y < crows; y++ {
		row := dstC[y*pitch:]
		cb := m.Cb[(cy0+y)*m.CStride:]
		cr := m.Cr[(cy0+y)*m.CStride:]
		for x := 0; x < cw; x++ {
			row[2*x+0] = cb[x]
			row[2*x+1] = cr[x]
		}
	}
	return nil
}

func (j *JPU) startEncode() {
	j.op = opEncode
	j.width = int(j.regs[jpu.JCHSZU]<<8 | j.regs[jpu.JCHSZD])
	j.height = int(j.regs[jpu.JCVSZU]<<8 | j.regs[jpu.JCVSZD])
	j.out = nil
	j.written = 0
	j.outSlot = 0
	j.waitDrain = false
	j.queued = 0
	j.strip = 0
	j.strips = (j.height + jpu.LineBufferHeight - 1) / jpu.LineBufferHeight
	cnt := j.regs[jpu.JIFECNT]
	j.lineBuf = cnt&jpu.JIFCNT_LINEBUF_MODE != 0

	format := pixfmt.NV16
	if cnt&jpu.JIFCNT_420 != 0 {
		format = pixfmt.NV12
	}
	if j.lineBuf {
		// line buffers always carry 4:2:2
		pitch := (j.width + 1) &^ 1
		j.inBuf = make([]byte, pixfmt.NV16.PlaneBytes(j.height, pitch)+pitch)
		j.in, _ = softconv.NewImage(pixfmt.NV16, j.inBuf, j.width, j.height, pitch)
		return
	}

	pitch := int(j.regs[jpu.JIFESMW])
	luma, err := j.sim.slice(j.regs[jpu.JIFESYA1], pitch*j.height)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	crows := j.height
	if format == pixfmt.NV12 {
		crows = (j.height + 1) / 2
	}
	chroma, err := j.sim.slice(j.regs[jpu.JIFESCA1], pitch*crows)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	j.compress(&softconv.Image{
		Format: format,
		Width:  j.width,
		Height: j.height,
		Pitch:  pitch,
		Y:      luma,
		C:      chroma,
	})
}

// readStrip copies the next strip from the line buffers into the input
// image.
func (j *JPU) readStrip() {
	if j.in == nil || j.strip >= j.strips {
		return
	}
	slot := jpu.Slot(j.strip % 2)
	y, c := j.regs[jpu.JIFESYA1], j.regs[jpu.JIFESCA1]
	if slot == 1 {
		y, c = j.regs[jpu.JIFESYA2], j.regs[jpu.JIFESCA2]
	}
	y0 := j.strip * jpu.LineBufferHeight
	lines := j.height - y0
	if lines > jpu.LineBufferHeight {
		lines = jpu.LineBufferHeight
	}
	pitch := int(j.regs[jpu.JIFESMW])
	luma, err := j.sim.slice(y, pitch*lines)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	chroma, err := j.sim.slice(c, pitch*lines)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	strip := &softconv.Image{
		Format: pixfmt.NV16,
		Width:  j.width,
		Height: lines,
		Pitch:  pitch,
		Y:      luma,
		C:      chroma,
	}
	softconv.Convert(j.in, y0, strip, 0, lines)
	j.strip++
	if slot == 0 {
		j.raise(jpu.JINTS_INS11_LINEBUF0)
	} else {
		j.raise(jpu.JINTS_INS12_LINEBUF1)
	}
	if j.strip == j.strips {
		j.compress(j.in)
	}
}

func (j *JPU) compress(im *softconv.Image) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, im.YCbCr(), &jpeg.Options{Quality: j.sim.opts.Quality}); err != nil {
		j.fail(errCodeMarker)
		return
	}
	j.out = buf.Bytes()
}

func (j *JPU) advanceEncode() {
	if j.queued > 0 {
		j.queued--
		j.readStrip()
		return
	}
	if j.out == nil || j.waitDrain {
		return
	}
	n := len(j.out) - j.written
	if n > jpu.ReloadSize {
		n = jpu.ReloadSize
	}
	addr := j.regs[jpu.JIFEDA1]
	if j.outSlot == 1 {
		addr = j.regs[jpu.JIFEDA2]
	}
	dst, err := j.sim.slice(addr, n)
	if err != nil {
		j.fail(errCodeMarker)
		return
	}
	copy(dst, j.out[j.written:j.written+n])
	j.written += n
	j.outSlot = j.outSlot.Next()
	total := uint32(j.written)
	j.regs[jpu.JCDTCU] = total >> 16 & 0xff
	j.regs[jpu.JCDTCM] = total >> 8 & 0xff
	j.regs[jpu.JCDTCD] = total & 0xff
	if j.written == len(j.out) {
		j.transferred = true
		j.raise(jpu.JINTS_INS10_XFER_DONE)
		return
	}
	j.waitDrain = true
	j.raise(jpu.JINTS_INS13_LOADED)
}

func (j *JPU) String() string {
	return fmt.Sprintf("jpu(op=%d, jints=%#x)", j.op, j.jints)
}
