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

package jpu

import "fmt"

// EventKind is one cause of a JPU interrupt.
type EventKind int

const (
	EventHeader EventKind = iota
	EventError
	EventDone
	EventTransferDone
	EventLineBuffer
	EventLoaded
	EventReload
)

var eventNames = map[EventKind]string{
	EventHeader:       "header",
	EventError:        "error",
	EventDone:         "done",
	EventTransferDone: "transfer-done",
	EventLineBuffer:   "line-buffer",
	EventLoaded:       "loaded",
	EventReload:       "reload",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// DecodeEvents returns the causes contained in the JINTS value ints, in the
// order in which they must be processed. A single line buffer event stands
// for both line buffer bits.
func DecodeEvents(ints uint32) []EventKind {
	var events []EventKind
	if ints&JINTS_INS3_HEADER != 0 {
		events = append(events, EventHeader)
	}
	if ints&JINTS_INS5_ERROR != 0 {
		events = append(events, EventError)
	}
	if ints&JINTS_INS6_DONE != 0 {
		events = append(events, EventDone)
	}
	if ints&JINTS_INS10_XFER_DONE != 0 {
		events = append(events, EventTransferDone)
	}
	if ints&(JINTS_INS11_LINEBUF0|JINTS_INS12_LINEBUF1) != 0 {
		events = append(events, EventLineBuffer)
	}
	if ints&JINTS_INS13_LOADED != 0 {
		events = append(events, EventLoaded)
	}
	if ints&JINTS_INS14_RELOAD != 0 {
		events = append(events, EventReload)
	}
	return events
}

// HardwareError is returned when the JPU reports an error in JCDERR.
type HardwareError struct {
	Code uint32
}

// Descriptions of the JCDERR codes, as listed in the JPU manual.
var errorText = map[uint32]string{
	0x1: "SOI not detected",
	0x2: "SOF1 to SOFF detected",
	0x3: "subsampling not detected",
	0x4: "SOF accuracy error",
	0x5: "DQT accuracy error",
	0x6: "component error 1",
	0x7: "component error 2",
	0x8: "SOF0, DQT or DHT not detected when SOS detected",
	0x9: "SOS not detected",
	0xa: "EOI not detected",
	0xb: "restart interval data number error",
	0xc: "image size error",
	0xd: "last MCU data number error",
	0xe: "block data number error",
}

func (e *HardwareError) Error() string {
	if txt, ok := errorText[e.Code]; ok {
		return fmt.Sprintf("jpu: error %#x: %s", e.Code, txt)
	}
	return fmt.Sprintf("jpu: error %#x", e.Code)
}
