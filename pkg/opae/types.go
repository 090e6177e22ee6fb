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

package opae

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ObjType tells FPGA devices (FME) and accelerators (AFU ports) apart.
type ObjType int

// Object kinds.
const (
	Device ObjType = iota
	Accelerator
)

func (t ObjType) String() string {
	switch t {
	case Device:
		return "device"
	case Accelerator:
		return "accelerator"
	}

	return fmt.Sprintf("objtype(%d)", int(t))
}

// ParseObjType converts "device"/"fpga" and "accelerator"/"afu" to ObjType.
func ParseObjType(s string) (ObjType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device", "fpga", "fme":
		return Device, nil
	case "accelerator", "afu", "port":
		return Accelerator, nil
	}

	return Device, errors.Wrapf(InvalidParam, "unknown object type %q", s)
}

// AcceleratorState is the assignment state of an accelerator.
type AcceleratorState int

// Accelerator states.
const (
	Assigned AcceleratorState = iota
	Unassigned
)

func (s AcceleratorState) String() string {
	if s == Unassigned {
		return "unassigned"
	}

	return "assigned"
}

// Version is a major.minor.patch triple, used for the blue bitstream version.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// GUID is the 16 byte identifier of a device interface or an accelerator.
type GUID uuid.UUID

// ParseGUID accepts both the canonical dashed form and the 32 hex digit
// form found in sysfs (afu_id, interface_id, compat_id).
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return GUID{}, errors.Wrapf(InvalidParam, "malformed GUID %q: %v", s, err)
	}

	return GUID(u), nil
}

// MustParseGUID is ParseGUID that panics on error. For constants and tests.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}

	return g
}

func (g GUID) String() string {
	return uuid.UUID(g).String()
}

// Hex returns the GUID in the sysfs form: 32 lower case hex digits.
func (g GUID) Hex() string {
	return strings.ReplaceAll(g.String(), "-", "")
}

// IsZero reports whether all bytes of the GUID are zero.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// Field names a slot of Properties.
type Field int

// Property fields.
const (
	FieldParent Field = iota
	FieldObjType
	FieldSegment
	FieldBus
	FieldDevice
	FieldFunction
	FieldSocketID
	FieldVendorID
	FieldDeviceID
	FieldGUID
	FieldObjectID
	FieldNumErrors
	FieldNumSlots
	FieldBBSID
	FieldBBSVersion
	FieldAcceleratorState
	FieldNumMMIO
	FieldNumInterrupts
)

var fieldNames = [...]string{
	FieldParent:           "parent",
	FieldObjType:          "objtype",
	FieldSegment:          "segment",
	FieldBus:              "bus",
	FieldDevice:           "device",
	FieldFunction:         "function",
	FieldSocketID:         "socket_id",
	FieldVendorID:         "vendor_id",
	FieldDeviceID:         "device_id",
	FieldGUID:             "guid",
	FieldObjectID:         "object_id",
	FieldNumErrors:        "num_errors",
	FieldNumSlots:         "num_slots",
	FieldBBSID:            "bbs_id",
	FieldBBSVersion:       "bbs_version",
	FieldAcceleratorState: "accelerator_state",
	FieldNumMMIO:          "num_mmio",
	FieldNumInterrupts:    "num_interrupts",
}

func (f Field) String() string {
	if f >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}

	return fmt.Sprintf("field(%d)", int(f))
}

// kind returns the object kind a field belongs to, or false for fields
// shared by both kinds.
func (f Field) kind() (ObjType, bool) {
	switch f {
	case FieldNumSlots, FieldBBSID, FieldBBSVersion:
		return Device, true
	case FieldAcceleratorState, FieldNumMMIO, FieldNumInterrupts:
		return Accelerator, true
	}

	return Device, false
}

// BBSVersionFromID extracts the blue bitstream version encoded in the top
// bits of a bitstream id.
func BBSVersionFromID(id uint64) Version {
	return Version{
		Major: uint8((id >> 56) & 0xf),
		Minor: uint8((id >> 52) & 0xf),
		Patch: uint16((id >> 48) & 0xf),
	}
}

// ObjectIDFromDev builds an object id from a device node's major and minor
// numbers.
func ObjectIDFromDev(major, minor uint32) uint64 {
	return uint64(major&0xfff)<<20 | uint64(minor&0xfffff)
}
