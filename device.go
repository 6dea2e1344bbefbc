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

package shjpeg

import (
	"fmt"
	"log"

	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/uio"
	"github.com/stapelberg/shjpeg/internal/veu"
)

// openDevice opens the JPU (and, if present, the VEU) through their UIO
// devices. The JPU device exposes its registers as map 0 and the contiguous
// memory as map 1.
func openDevice() (*resource.Group, error) {
	dev, err := uio.Open("JPU")
	if err != nil {
		return nil, err
	}
	regs, err := dev.Map(0)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mapping JPU registers: %v", err)
	}
	mem, err := dev.Map(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mapping contiguous memory: %v", err)
	}

	var (
		engine *veu.Engine
		vdev   *uio.Device
	)
	if vdev, err = uio.Open("VEU"); err != nil {
		log.Printf("VEU not available, converting in software: %v", err)
	} else if vregs, err := vdev.Map(0); err != nil {
		log.Printf("mapping VEU registers: %v", err)
		vdev.Close()
		vdev = nil
	} else {
		engine = veu.New(vregs, vdev)
	}

	g, err := resource.NewGroup(regs, dev, engine, mem.Mem, mem.Phys, func() error {
		if vdev != nil {
			vdev.Close()
		}
		return dev.Close()
	})
	if err != nil {
		if vdev != nil {
			vdev.Close()
		}
		dev.Close()
		return nil, err
	}
	return g, nil
}
