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

package remote

import (
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

// Keys of a device entry on the wire. 64-bit values travel as decimal
// strings, structpb numbers are doubles.
const (
	keyHost          = "host"
	keyDevices       = "devices"
	keyObjType       = "objtype"
	keyGUID          = "guid"
	keyRemoteID      = "remote_id"
	keyParentID      = "parent_id"
	keyPath          = "path"
	keySegment       = "segment"
	keyBus           = "bus"
	keyDevice        = "device"
	keyFunction      = "function"
	keySocketID      = "socket_id"
	keyVendorID      = "vendor_id"
	keyDeviceID      = "device_id"
	keyNumErrors     = "num_errors"
	keyObjectID      = "object_id"
	keyNumSlots      = "num_slots"
	keyBBSID         = "bbs_id"
	keyBBSMajor      = "bbs_major"
	keyBBSMinor      = "bbs_minor"
	keyBBSPatch      = "bbs_patch"
	keyState         = "state"
	keyNumMMIO       = "num_mmio"
	keyNumInterrupts = "num_interrupts"
)

// encodeRecord turns a record into a wire entry. parentID is zero when
// the record has no parent.
func encodeRecord(rec *opae.AttributeRecord, remoteID, parentID uint64) (*structpb.Struct, error) {
	m := map[string]any{
		keyObjType:   rec.ObjType.String(),
		keyGUID:      rec.GUID.String(),
		keyRemoteID:  strconv.FormatUint(remoteID, 10),
		keyPath:      rec.Location.Path,
		keySegment:   uint32(rec.Segment),
		keyBus:       uint32(rec.Bus),
		keyDevice:    uint32(rec.Device),
		keyFunction:  uint32(rec.Function),
		keySocketID:  uint32(rec.SocketID),
		keyVendorID:  uint32(rec.VendorID),
		keyDeviceID:  uint32(rec.DeviceID),
		keyNumErrors: rec.NumErrors,
		keyObjectID:  strconv.FormatUint(rec.ObjectID, 10),
	}

	if parentID != 0 {
		m[keyParentID] = strconv.FormatUint(parentID, 10)
	}

	switch rec.ObjType {
	case opae.Device:
		m[keyNumSlots] = rec.Fpga.NumSlots
		m[keyBBSID] = strconv.FormatUint(rec.Fpga.BBSID, 10)
		m[keyBBSMajor] = uint32(rec.Fpga.BBSVersion.Major)
		m[keyBBSMinor] = uint32(rec.Fpga.BBSVersion.Minor)
		m[keyBBSPatch] = uint32(rec.Fpga.BBSVersion.Patch)
	case opae.Accelerator:
		m[keyState] = int(rec.Accel.State)
		m[keyNumMMIO] = rec.Accel.NumMMIO
		m[keyNumInterrupts] = rec.Accel.NumInterrupts
	}

	s, err := structpb.NewStruct(m)

	return s, errors.WithStack(err)
}

// entry reads typed values out of a wire entry, remembering the first
// failure.
type entry struct {
	fields map[string]*structpb.Value
	err    error
}

func (e *entry) fail(key string, format string, args ...any) {
	if e.err == nil {
		e.err = errors.Wrapf(opae.Exception, "%s: "+format, append([]any{key}, args...)...)
	}
}

func (e *entry) str(key string) string {
	v, ok := e.fields[key]
	if !ok {
		e.fail(key, "missing")
		return ""
	}

	if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
		e.fail(key, "not a string")
	}

	return v.GetStringValue()
}

func (e *entry) u64(key string) uint64 {
	s := e.str(key)
	if e.err != nil {
		return 0
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		e.fail(key, "%v", err)
	}

	return n
}

func (e *entry) num(key string, max float64) float64 {
	v, ok := e.fields[key]
	if !ok {
		e.fail(key, "missing")
		return 0
	}

	n := v.GetNumberValue()
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok || n < 0 || n > max || n != float64(uint64(n)) {
		e.fail(key, "bad number %v", v.AsInterface())
		return 0
	}

	return n
}

func (e *entry) u8(key string) uint8   { return uint8(e.num(key, 0xff)) }
func (e *entry) u16(key string) uint16 { return uint16(e.num(key, 0xffff)) }
func (e *entry) u32(key string) uint32 { return uint32(e.num(key, 0xffffffff)) }

// decodeRecord builds a record from a wire entry. The parent id is
// returned for linking; it is zero for records without a parent.
func decodeRecord(s *structpb.Struct, host string) (*opae.AttributeRecord, uint64, error) {
	e := &entry{fields: s.GetFields()}

	objType, err := opae.ParseObjType(e.str(keyObjType))
	if e.err != nil {
		return nil, 0, e.err
	}

	if err != nil {
		return nil, 0, err
	}

	guid, err := opae.ParseGUID(e.str(keyGUID))
	if e.err != nil {
		return nil, 0, e.err
	}

	if err != nil {
		return nil, 0, err
	}

	rec := &opae.AttributeRecord{
		ObjType: objType,
		GUID:    guid,
		Location: opae.Location{
			Path:     e.str(keyPath),
			Host:     host,
			RemoteID: e.u64(keyRemoteID),
		},
		Segment:   e.u16(keySegment),
		Bus:       e.u8(keyBus),
		Device:    e.u8(keyDevice),
		Function:  e.u8(keyFunction),
		SocketID:  e.u8(keySocketID),
		VendorID:  e.u16(keyVendorID),
		DeviceID:  e.u16(keyDeviceID),
		NumErrors: e.u32(keyNumErrors),
		ObjectID:  e.u64(keyObjectID),
	}

	var parentID uint64

	switch objType {
	case opae.Device:
		rec.Fpga = &opae.DeviceAttrs{
			NumSlots: e.u32(keyNumSlots),
			BBSID:    e.u64(keyBBSID),
			BBSVersion: opae.Version{
				Major: e.u8(keyBBSMajor),
				Minor: e.u8(keyBBSMinor),
				Patch: e.u16(keyBBSPatch),
			},
		}
	case opae.Accelerator:
		rec.Accel = &opae.AcceleratorAttrs{
			State:         opae.AcceleratorState(e.num(keyState, float64(opae.Unassigned))),
			NumMMIO:       e.u32(keyNumMMIO),
			NumInterrupts: e.u32(keyNumInterrupts),
		}

		if _, ok := e.fields[keyParentID]; ok {
			parentID = e.u64(keyParentID)
		}
	}

	if e.err != nil {
		return nil, 0, e.err
	}

	return rec, parentID, nil
}
