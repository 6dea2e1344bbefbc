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

package shjpeg_test

import (
	"fmt"
	"log"

	"github.com/stapelberg/shjpeg"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/stream"
)

func Example() {
	// On an SH-Mobile SoC, use shjpeg.Init instead.
	sim := jpusim.New(jpusim.Options{})
	ctx, err := shjpeg.NewContext(shjpeg.NewManager(sim.Open), false)
	if err != nil {
		log.Fatal(err)
	}
	defer shjpeg.Shutdown(ctx)

	const width, height = 64, 48
	src, err := shjpeg.Malloc(ctx, shjpeg.NV12, width, height, width)
	if err != nil {
		log.Fatal(err)
	}
	defer shjpeg.Free(ctx, src)
	for i := range src.B {
		src.B[i] = 0x80
	}
	sink := &stream.MemorySink{}
	ctx.Stream = sink
	if err := shjpeg.Encode(ctx, shjpeg.NV12, src, width, height, width); err != nil {
		log.Fatal(err)
	}
	fmt.Println("encoded in software:", ctx.SoftwareUsed)

	ctx.Stream = &stream.MemorySource{Data: sink.Bytes()}
	if err := shjpeg.DecodeInit(ctx); err != nil {
		log.Fatal(err)
	}
	defer shjpeg.DecodeShutdown(ctx)
	fmt.Printf("%dx%d, 4:2:0: %v\n", ctx.Width, ctx.Height, ctx.Mode420)

	dst, err := shjpeg.Malloc(ctx, shjpeg.RGB32, ctx.Width, ctx.Height, 4*ctx.Width)
	if err != nil {
		log.Fatal(err)
	}
	defer shjpeg.Free(ctx, dst)
	if err := shjpeg.DecodeRun(ctx, shjpeg.RGB32, dst, ctx.Width, ctx.Height, 4*ctx.Width); err != nil {
		log.Fatal(err)
	}
	fmt.Println("decoded in software:", ctx.SoftwareUsed)
	// Output:
	// encoded in software: false
	// 64x48, 4:2:0: true
	// decoded in software: false
}

func ExampleParseFormat() {
	f, err := shjpeg.ParseFormat("nv16")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(f.PitchMultiplier(), f.BPP(), f.PlaneBytes(480, 640))
	// Output:
	// 1 16 614400
}
