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
	"k8s.io/klog/v2"
)

// filter is an immutable copy of a Properties object taken for matching.
type filter struct {
	propValues
	parentID Identity
}

// matches is a conjunction over the fields set in the filter. The object
// type is checked first: kind specific fields are only compared against
// records of the same kind.
func (f *filter) matches(rec *AttributeRecord) bool {
	if f == nil || f.valid.Len() == 0 {
		return true
	}

	if f.valid.Has(FieldObjType) && f.objType != rec.ObjType {
		return false
	}

	if f.valid.Has(FieldParent) {
		if rec.ObjType != Accelerator || rec.Parent == nil {
			return false
		}

		if rec.Parent.Identity() != f.parentID {
			return false
		}
	}

	if f.valid.Has(FieldSegment) && f.segment != rec.Segment {
		return false
	}

	if f.valid.Has(FieldBus) && f.bus != rec.Bus {
		return false
	}

	if f.valid.Has(FieldDevice) && f.device != rec.Device {
		return false
	}

	if f.valid.Has(FieldFunction) && f.function != rec.Function {
		return false
	}

	if f.valid.Has(FieldSocketID) && f.socketID != rec.SocketID {
		return false
	}

	if f.valid.Has(FieldVendorID) && f.vendorID != rec.VendorID {
		return false
	}

	if f.valid.Has(FieldDeviceID) && f.deviceID != rec.DeviceID {
		return false
	}

	if f.valid.Has(FieldGUID) && f.guid != rec.GUID {
		return false
	}

	if f.valid.Has(FieldNumErrors) && f.numErrors != rec.NumErrors {
		return false
	}

	if f.valid.Has(FieldObjectID) {
		id, err := rec.CurrentObjectID()
		if err != nil {
			klog.V(2).Infof("%s: can't resolve object id: %v", rec.Location, err)
			return false
		}

		if id != f.objectID {
			return false
		}
	}

	switch k := f.kind.(type) {
	case *deviceFields:
		return f.matchesDevice(k, rec)
	case *acceleratorFields:
		return f.matchesAccelerator(k, rec)
	}

	return true
}

func (f *filter) matchesDevice(k *deviceFields, rec *AttributeRecord) bool {
	if !f.valid.HasAny(FieldNumSlots, FieldBBSID, FieldBBSVersion) {
		return true
	}

	if rec.ObjType != Device || rec.Fpga == nil {
		return false
	}

	if f.valid.Has(FieldNumSlots) && k.numSlots != rec.Fpga.NumSlots {
		return false
	}

	if f.valid.Has(FieldBBSID) && k.bbsID != rec.Fpga.BBSID {
		return false
	}

	if f.valid.Has(FieldBBSVersion) && k.bbsVersion != rec.Fpga.BBSVersion {
		return false
	}

	return true
}

func (f *filter) matchesAccelerator(k *acceleratorFields, rec *AttributeRecord) bool {
	if !f.valid.HasAny(FieldAcceleratorState, FieldNumMMIO, FieldNumInterrupts) {
		return true
	}

	if rec.ObjType != Accelerator || rec.Accel == nil {
		return false
	}

	if f.valid.Has(FieldAcceleratorState) && k.state != rec.Accel.State {
		return false
	}

	if f.valid.Has(FieldNumMMIO) && k.numMMIO != rec.Accel.NumMMIO {
		return false
	}

	if f.valid.Has(FieldNumInterrupts) && k.numInterrupts != rec.Accel.NumInterrupts {
		return false
	}

	return true
}

// compileFilters snapshots every filter. A nil or destroyed element is an
// error: the caller handed us something it doesn't own anymore.
func compileFilters(filters []*Properties) ([]*filter, error) {
	compiled := make([]*filter, 0, len(filters))

	for _, p := range filters {
		f, err := p.snapshot()
		if err != nil {
			return nil, err
		}

		compiled = append(compiled, f)
	}

	return compiled, nil
}

// matchAny is a disjunction over the filter list; an empty list matches
// every record.
func matchAny(rec *AttributeRecord, filters []*filter) bool {
	if len(filters) == 0 {
		return true
	}

	for _, f := range filters {
		if f.matches(rec) {
			return true
		}
	}

	return false
}

// Matches reports whether rec satisfies every field set in filter. A nil
// filter matches everything.
func Matches(filter *Properties, rec *AttributeRecord) (bool, error) {
	if filter == nil {
		return true, nil
	}

	f, err := filter.snapshot()
	if err != nil {
		return false, err
	}

	return f.matches(rec), nil
}

// MatchesFilters reports whether rec satisfies at least one of filters.
func MatchesFilters(rec *AttributeRecord, filters []*Properties) (bool, error) {
	compiled, err := compileFilters(filters)
	if err != nil {
		return false, err
	}

	return matchAny(rec, compiled), nil
}
