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
	"sync"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	propertiesMagic uint64 = 0x4650474150524f50 // "FPGAPROP"

	maxPCIDevice   = 31
	maxPCIFunction = 7
)

// kindFields is the part of Properties that depends on the object kind.
type kindFields interface {
	objType() ObjType
	clone() kindFields
}

type deviceFields struct {
	numSlots   uint32
	bbsID      uint64
	bbsVersion Version
}

func (*deviceFields) objType() ObjType { return Device }

func (d *deviceFields) clone() kindFields {
	c := *d
	return &c
}

type acceleratorFields struct {
	state         AcceleratorState
	numMMIO       uint32
	numInterrupts uint32
}

func (*acceleratorFields) objType() ObjType { return Accelerator }

func (a *acceleratorFields) clone() kindFields {
	c := *a
	return &c
}

func newKindFields(t ObjType) kindFields {
	if t == Accelerator {
		return &acceleratorFields{}
	}

	return &deviceFields{}
}

// propValues is the data of a Properties object without its lock.
type propValues struct {
	valid sets.Set[Field]

	parent    *Token
	objType   ObjType
	segment   uint16
	bus       uint8
	device    uint8
	function  uint8
	socketID  uint8
	vendorID  uint16
	deviceID  uint16
	guid      GUID
	objectID  uint64
	numErrors uint32

	kind kindFields
}

// deepCopy returns a deep copy. The parent token is cloned when withParent is
// set, otherwise it's left out.
func (v *propValues) deepCopy(withParent bool) propValues {
	c := *v
	c.valid = v.valid.Clone()
	c.parent = nil

	if v.kind != nil {
		c.kind = v.kind.clone()
	}

	if withParent && v.parent != nil {
		// Our own parent clone is always valid while we hold it.
		c.parent, _ = v.parent.Clone()
	}

	return c
}

// Properties is a sparse set of device attributes. It serves both as an
// enumeration filter and as the result of GetProperties. Reading a field
// that was never set fails with NotFound. Fields that only exist for one
// object kind can only be read or written once ObjType is set to that
// kind.
//
// Properties is safe for concurrent use.
type Properties struct {
	mu    sync.Mutex
	magic uint64
	propValues
}

// NewProperties returns an empty Properties object: used as a filter it
// matches everything.
func NewProperties() *Properties {
	return &Properties{
		magic:      propertiesMagic,
		propValues: propValues{valid: sets.New[Field]()},
	}
}

func (p *Properties) validateLocked() error {
	if p.magic != propertiesMagic {
		return errors.Wrap(InvalidParam, "invalid properties object")
	}

	return nil
}

// lockValid takes the lock after checking p isn't nil. On success the
// caller must unlock.
func (p *Properties) lockValid() error {
	if p == nil {
		return errors.Wrap(InvalidParam, "properties object is nil")
	}

	p.mu.Lock()

	if err := p.validateLocked(); err != nil {
		p.mu.Unlock()
		return err
	}

	return nil
}

// checkKindLocked verifies that a kind specific field may be accessed.
func (p *Properties) checkKindLocked(f Field) error {
	want, specific := f.kind()
	if !specific {
		return nil
	}

	if !p.valid.Has(FieldObjType) {
		return errors.Wrapf(InvalidParam, "%s requires the object type to be set", f)
	}

	if p.objType != want {
		return errors.Wrapf(InvalidParam, "%s is not a field of %s objects", f, p.objType)
	}

	return nil
}

func (p *Properties) get(f Field, read func()) error {
	if err := p.lockValid(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	if err := p.checkKindLocked(f); err != nil {
		return err
	}

	if !p.valid.Has(f) {
		return errors.Wrapf(NotFound, "%s is not set", f)
	}

	read()

	return nil
}

func (p *Properties) set(f Field, write func()) error {
	if err := p.lockValid(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	if err := p.checkKindLocked(f); err != nil {
		return err
	}

	write()
	p.valid.Insert(f)

	return nil
}

// Clone returns a deep copy with its own lock and its own parent token.
func (p *Properties) Clone() (*Properties, error) {
	if err := p.lockValid(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	return &Properties{
		magic:      propertiesMagic,
		propValues: p.deepCopy(true),
	}, nil
}

// Clear unsets every field. The object stays usable.
func (p *Properties) Clear() error {
	if err := p.lockValid(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	p.clearLocked()

	return nil
}

func (p *Properties) clearLocked() {
	if p.parent != nil {
		_ = p.parent.Destroy()
	}

	p.propValues = propValues{valid: sets.New[Field]()}
}

// Destroy releases the object. Any later use fails with InvalidParam.
func (p *Properties) Destroy() error {
	if err := p.lockValid(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	p.clearLocked()
	p.magic = 0

	return nil
}

// IsSet reports whether field f holds a value. It is false for destroyed
// objects.
func (p *Properties) IsSet(f Field) bool {
	if p.lockValid() != nil {
		return false
	}
	defer p.mu.Unlock()

	return p.valid.Has(f)
}

// ValidFields returns the fields currently set, in field order.
func (p *Properties) ValidFields() []Field {
	if p.lockValid() != nil {
		return nil
	}
	defer p.mu.Unlock()

	return sets.List(p.valid)
}

// snapshot returns a lock free copy for matching.
func (p *Properties) snapshot() (*filter, error) {
	if err := p.lockValid(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	f := &filter{propValues: p.deepCopy(false)}

	if p.valid.Has(FieldParent) {
		id, err := p.parent.Identity()
		if err != nil {
			return nil, err
		}

		f.parentID = id
	}

	return f, nil
}

// populateLocked fills every field known for the record. parent may be nil.
func (p *Properties) populateLocked(rec *AttributeRecord, parent *Token) error {
	objectID, err := rec.CurrentObjectID()
	if err != nil {
		return errors.Wrapf(err, "%s: unable to read object id", rec.Location)
	}

	p.clearLocked()

	p.objType = rec.ObjType
	p.guid = rec.GUID
	p.segment = rec.Segment
	p.bus = rec.Bus
	p.device = rec.Device
	p.function = rec.Function
	p.socketID = rec.SocketID
	p.vendorID = rec.VendorID
	p.deviceID = rec.DeviceID
	p.numErrors = rec.NumErrors
	p.valid.Insert(FieldObjType, FieldGUID, FieldSegment, FieldBus, FieldDevice,
		FieldFunction, FieldSocketID, FieldVendorID, FieldDeviceID, FieldNumErrors)

	p.objectID = objectID
	p.valid.Insert(FieldObjectID)

	switch rec.ObjType {
	case Device:
		p.kind = &deviceFields{
			numSlots:   rec.Fpga.NumSlots,
			bbsID:      rec.Fpga.BBSID,
			bbsVersion: rec.Fpga.BBSVersion,
		}
		p.valid.Insert(FieldNumSlots, FieldBBSID, FieldBBSVersion)
	case Accelerator:
		p.kind = &acceleratorFields{
			state:         rec.Accel.State,
			numMMIO:       rec.Accel.NumMMIO,
			numInterrupts: rec.Accel.NumInterrupts,
		}
		p.valid.Insert(FieldAcceleratorState, FieldNumMMIO, FieldNumInterrupts)

		if parent != nil {
			p.parent = parent
			p.valid.Insert(FieldParent)
		}
	}

	return nil
}

// Parent returns a clone of the parent token. The caller owns it.
func (p *Properties) Parent() (*Token, error) {
	var (
		t        *Token
		cloneErr error
	)

	err := p.get(FieldParent, func() {
		t, cloneErr = p.parent.Clone()
	})
	if err != nil {
		return nil, err
	}

	return t, cloneErr
}

// SetParent stores a clone of t as the parent.
func (p *Properties) SetParent(t *Token) error {
	c, err := t.Clone()
	if err != nil {
		return err
	}

	err = p.set(FieldParent, func() {
		if p.parent != nil {
			_ = p.parent.Destroy()
		}

		p.parent = c
	})
	if err != nil {
		_ = c.Destroy()
	}

	return err
}

// ObjectType returns the object kind.
func (p *Properties) ObjectType() (ObjType, error) {
	var v ObjType
	err := p.get(FieldObjType, func() { v = p.objType })

	return v, err
}

// SetObjectType sets the object kind. Switching kinds drops the fields of
// the previous kind.
func (p *Properties) SetObjectType(t ObjType) error {
	if t != Device && t != Accelerator {
		return errors.Wrapf(InvalidParam, "unknown object type %d", t)
	}

	return p.set(FieldObjType, func() {
		if p.kind == nil || p.kind.objType() != t {
			p.kind = newKindFields(t)
			p.valid.Delete(FieldNumSlots, FieldBBSID, FieldBBSVersion,
				FieldAcceleratorState, FieldNumMMIO, FieldNumInterrupts)
		}

		p.objType = t
	})
}

// Segment returns the PCI segment.
func (p *Properties) Segment() (uint16, error) {
	var v uint16
	err := p.get(FieldSegment, func() { v = p.segment })

	return v, err
}

// SetSegment sets the PCI segment.
func (p *Properties) SetSegment(v uint16) error {
	return p.set(FieldSegment, func() { p.segment = v })
}

// Bus returns the PCI bus.
func (p *Properties) Bus() (uint8, error) {
	var v uint8
	err := p.get(FieldBus, func() { v = p.bus })

	return v, err
}

// SetBus sets the PCI bus.
func (p *Properties) SetBus(v uint8) error {
	return p.set(FieldBus, func() { p.bus = v })
}

// Device returns the PCI device number.
func (p *Properties) Device() (uint8, error) {
	var v uint8
	err := p.get(FieldDevice, func() { v = p.device })

	return v, err
}

// SetDevice sets the PCI device number (0-31).
func (p *Properties) SetDevice(v uint8) error {
	if v > maxPCIDevice {
		return errors.Wrapf(InvalidParam, "PCI device number %d out of range", v)
	}

	return p.set(FieldDevice, func() { p.device = v })
}

// Function returns the PCI function.
func (p *Properties) Function() (uint8, error) {
	var v uint8
	err := p.get(FieldFunction, func() { v = p.function })

	return v, err
}

// SetFunction sets the PCI function (0-7).
func (p *Properties) SetFunction(v uint8) error {
	if v > maxPCIFunction {
		return errors.Wrapf(InvalidParam, "PCI function %d out of range", v)
	}

	return p.set(FieldFunction, func() { p.function = v })
}

// SocketID returns the socket the device is attached to.
func (p *Properties) SocketID() (uint8, error) {
	var v uint8
	err := p.get(FieldSocketID, func() { v = p.socketID })

	return v, err
}

// SetSocketID sets the socket id.
func (p *Properties) SetSocketID(v uint8) error {
	return p.set(FieldSocketID, func() { p.socketID = v })
}

// VendorID returns the PCI vendor id.
func (p *Properties) VendorID() (uint16, error) {
	var v uint16
	err := p.get(FieldVendorID, func() { v = p.vendorID })

	return v, err
}

// SetVendorID sets the PCI vendor id.
func (p *Properties) SetVendorID(v uint16) error {
	return p.set(FieldVendorID, func() { p.vendorID = v })
}

// DeviceID returns the PCI device id.
func (p *Properties) DeviceID() (uint16, error) {
	var v uint16
	err := p.get(FieldDeviceID, func() { v = p.deviceID })

	return v, err
}

// SetDeviceID sets the PCI device id.
func (p *Properties) SetDeviceID(v uint16) error {
	return p.set(FieldDeviceID, func() { p.deviceID = v })
}

// GUID returns the interface or AFU GUID.
func (p *Properties) GUID() (GUID, error) {
	var v GUID
	err := p.get(FieldGUID, func() { v = p.guid })

	return v, err
}

// SetGUID sets the GUID.
func (p *Properties) SetGUID(v GUID) error {
	return p.set(FieldGUID, func() { p.guid = v })
}

// ObjectID returns the object id.
func (p *Properties) ObjectID() (uint64, error) {
	var v uint64
	err := p.get(FieldObjectID, func() { v = p.objectID })

	return v, err
}

// SetObjectID sets the object id.
func (p *Properties) SetObjectID(v uint64) error {
	return p.set(FieldObjectID, func() { p.objectID = v })
}

// NumErrors returns the number of error registers.
func (p *Properties) NumErrors() (uint32, error) {
	var v uint32
	err := p.get(FieldNumErrors, func() { v = p.numErrors })

	return v, err
}

// SetNumErrors sets the number of error registers.
func (p *Properties) SetNumErrors(v uint32) error {
	return p.set(FieldNumErrors, func() { p.numErrors = v })
}

// NumSlots returns the number of accelerator slots of a device.
func (p *Properties) NumSlots() (uint32, error) {
	var v uint32
	err := p.get(FieldNumSlots, func() { v = p.kind.(*deviceFields).numSlots })

	return v, err
}

// SetNumSlots sets the number of slots of a device.
func (p *Properties) SetNumSlots(v uint32) error {
	return p.set(FieldNumSlots, func() { p.kind.(*deviceFields).numSlots = v })
}

// BBSID returns the blue bitstream id of a device.
func (p *Properties) BBSID() (uint64, error) {
	var v uint64
	err := p.get(FieldBBSID, func() { v = p.kind.(*deviceFields).bbsID })

	return v, err
}

// SetBBSID sets the blue bitstream id of a device.
func (p *Properties) SetBBSID(v uint64) error {
	return p.set(FieldBBSID, func() { p.kind.(*deviceFields).bbsID = v })
}

// BBSVersion returns the blue bitstream version of a device.
func (p *Properties) BBSVersion() (Version, error) {
	var v Version
	err := p.get(FieldBBSVersion, func() { v = p.kind.(*deviceFields).bbsVersion })

	return v, err
}

// SetBBSVersion sets the blue bitstream version of a device.
func (p *Properties) SetBBSVersion(v Version) error {
	return p.set(FieldBBSVersion, func() { p.kind.(*deviceFields).bbsVersion = v })
}

// AcceleratorState returns whether an accelerator is assigned.
func (p *Properties) AcceleratorState() (AcceleratorState, error) {
	var v AcceleratorState
	err := p.get(FieldAcceleratorState, func() { v = p.kind.(*acceleratorFields).state })

	return v, err
}

// SetAcceleratorState sets the assignment state of an accelerator.
func (p *Properties) SetAcceleratorState(v AcceleratorState) error {
	if v != Assigned && v != Unassigned {
		return errors.Wrapf(InvalidParam, "unknown accelerator state %d", v)
	}

	return p.set(FieldAcceleratorState, func() { p.kind.(*acceleratorFields).state = v })
}

// NumMMIO returns the number of MMIO spaces of an accelerator.
func (p *Properties) NumMMIO() (uint32, error) {
	var v uint32
	err := p.get(FieldNumMMIO, func() { v = p.kind.(*acceleratorFields).numMMIO })

	return v, err
}

// SetNumMMIO sets the number of MMIO spaces of an accelerator.
func (p *Properties) SetNumMMIO(v uint32) error {
	return p.set(FieldNumMMIO, func() { p.kind.(*acceleratorFields).numMMIO = v })
}

// NumInterrupts returns the number of interrupts of an accelerator.
func (p *Properties) NumInterrupts() (uint32, error) {
	var v uint32
	err := p.get(FieldNumInterrupts, func() { v = p.kind.(*acceleratorFields).numInterrupts })

	return v, err
}

// SetNumInterrupts sets the number of interrupts of an accelerator.
func (p *Properties) SetNumInterrupts(v uint32) error {
	return p.set(FieldNumInterrupts, func() { p.kind.(*acceleratorFields).numInterrupts = v })
}

// The fields below exist for API compatibility only. No backend fills
// them in.

// Model is not supported.
func (p *Properties) Model() (string, error) { return "", NotSupported }

// SetModel is not supported.
func (p *Properties) SetModel(string) error { return NotSupported }

// LocalMemorySize is not supported.
func (p *Properties) LocalMemorySize() (uint64, error) { return 0, NotSupported }

// SetLocalMemorySize is not supported.
func (p *Properties) SetLocalMemorySize(uint64) error { return NotSupported }

// Capabilities is not supported.
func (p *Properties) Capabilities() (uint64, error) { return 0, NotSupported }

// SetCapabilities is not supported.
func (p *Properties) SetCapabilities(uint64) error { return NotSupported }
