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
	"context"

	"github.com/pkg/errors"
)

// DeviceSource produces the raw attribute records of one backend.
//
// Discover returns records in discovery order with every Device-kind
// record placed before the Accelerator-kind records that reference it.
// A backend that can't be reached at all fails the whole call (NoDriver,
// NoAccess); a single node whose metadata can't be read is left out.
type DeviceSource interface {
	Discover(ctx context.Context) ([]*AttributeRecord, error)
}

// Describer is implemented by a DeviceSource that can read one object
// without walking the whole backend. Describe returns the record at loc,
// with its Parent set for accelerators, or NotFound when nothing is
// there anymore.
type Describer interface {
	Describe(ctx context.Context, loc Location) (*AttributeRecord, error)
}

// DeviceAttrs holds the fields only Device-kind records have.
type DeviceAttrs struct {
	NumSlots   uint32
	BBSID      uint64
	BBSVersion Version
}

// AcceleratorAttrs holds the fields only Accelerator-kind records have.
type AcceleratorAttrs struct {
	State         AcceleratorState
	NumMMIO       uint32
	NumInterrupts uint32
}

// AttributeRecord is one node found during a single discovery pass.
type AttributeRecord struct {
	ObjType  ObjType
	GUID     GUID
	Location Location

	Segment  uint16
	Bus      uint8
	Device   uint8
	Function uint8
	SocketID uint8

	VendorID  uint16
	DeviceID  uint16
	NumErrors uint32
	ObjectID  uint64

	// ResolveObjectID, when set, reads the present-day object id from
	// the backend. It is used instead of ObjectID when a filter asks for
	// one.
	ResolveObjectID func() (uint64, error)

	// Exactly one of these is set, as selected by ObjType.
	Fpga  *DeviceAttrs
	Accel *AcceleratorAttrs

	// Parent is the Device-kind record an accelerator belongs to. It is
	// never set on Device-kind records.
	Parent *AttributeRecord
}

// Identity returns the (kind, GUID, location) tuple of the record.
func (r *AttributeRecord) Identity() Identity {
	return Identity{ObjType: r.ObjType, GUID: r.GUID, Location: r.Location}
}

// CurrentObjectID returns the object id, asking the backend if it can.
func (r *AttributeRecord) CurrentObjectID() (uint64, error) {
	if r.ResolveObjectID != nil {
		return r.ResolveObjectID()
	}

	return r.ObjectID, nil
}

// Validate checks the structural invariants of a record.
func (r *AttributeRecord) Validate() error {
	if r.Location.Key() == "" {
		return errors.Wrap(InvalidParam, "record without location")
	}

	switch r.ObjType {
	case Device:
		if r.Fpga == nil || r.Accel != nil {
			return errors.Wrapf(InvalidParam, "%s: device record must carry device attributes only", r.Location)
		}

		if r.Parent != nil {
			return errors.Wrapf(InvalidParam, "%s: device record can't have a parent", r.Location)
		}
	case Accelerator:
		if r.Accel == nil || r.Fpga != nil {
			return errors.Wrapf(InvalidParam, "%s: accelerator record must carry accelerator attributes only", r.Location)
		}

		if r.Parent != nil && r.Parent.ObjType != Device {
			return errors.Wrapf(InvalidParam, "%s: accelerator parent is not a device", r.Location)
		}
	default:
		return errors.Wrapf(InvalidParam, "%s: unknown object type %d", r.Location, r.ObjType)
	}

	return nil
}

// inherit copies the fields an accelerator takes from its device.
func (r *AttributeRecord) inherit() {
	if r.Parent == nil {
		return
	}

	r.SocketID = r.Parent.SocketID
}
