// Copyright 2026 Intel Corporation. All Rights Reserved.
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

// Package bitstream reads the metadata of FPGA bitstream files and turns
// it into enumeration filters.
package bitstream

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

var (
	_ File = (*FileGBS)(nil)
	_ File = (*FileAOCX)(nil)
)

// Open opens a GBS or AOCX file, chosen by extension.
func Open(fname string) (File, error) {
	switch filepath.Ext(fname) {
	case ".gbs":
		return OpenGBS(fname)
	case ".aocx":
		return OpenAOCX(fname)
	}

	return nil, errors.Errorf("unsupported file format %s", fname)
}

// Filters returns the filters selecting where f can be used: devices
// with the bitstream's interface id and accelerators already running its
// AFU.
func Filters(f File) ([]*opae.Properties, error) {
	interfaceID, err := opae.ParseGUID(f.InterfaceUUID())
	if err != nil {
		return nil, errors.WithMessage(err, "bitstream interface UUID")
	}

	afuID, err := opae.ParseGUID(f.AcceleratorTypeUUID())
	if err != nil {
		return nil, errors.WithMessage(err, "bitstream accelerator UUID")
	}

	device := opae.NewProperties()
	if err := device.SetObjectType(opae.Device); err != nil {
		return nil, err
	}

	if err := device.SetGUID(interfaceID); err != nil {
		return nil, err
	}

	accel := opae.NewProperties()
	if err := accel.SetObjectType(opae.Accelerator); err != nil {
		return nil, err
	}

	if err := accel.SetGUID(afuID); err != nil {
		return nil, err
	}

	return []*opae.Properties{device, accel}, nil
}
