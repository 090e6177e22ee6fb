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
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/ptr"
)

func TestSetFunctionRange(t *testing.T) {
	tcases := []struct {
		name        string
		function    uint8
		expectedErr Result
	}{
		{name: "lowest", function: 0, expectedErr: OK},
		{name: "highest", function: 7, expectedErr: OK},
		{name: "out of range", function: 8, expectedErr: InvalidParam},
		{name: "way out of range", function: 255, expectedErr: InvalidParam},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProperties()

			err := p.SetFunction(tc.function)
			if ResultOf(err) != tc.expectedErr {
				t.Fatalf("expected %v, got %v", tc.expectedErr, err)
			}

			if p.IsSet(FieldFunction) != (tc.expectedErr == OK) {
				t.Errorf("unexpected validity of function field: %v", p.IsSet(FieldFunction))
			}

			if tc.expectedErr != OK {
				if _, err := p.Function(); !IsResult(err, NotFound) {
					t.Errorf("expected NotFound, got %v", err)
				}
			}
		})
	}
}

func TestSetDeviceRange(t *testing.T) {
	p := NewProperties()

	if err := p.SetDevice(31); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if err := p.SetDevice(32); !IsResult(err, InvalidParam) {
		t.Fatalf("expected InvalidParam, got %v", err)
	}

	if v, _ := p.Device(); v != 31 {
		t.Errorf("rejected write changed the value to %d", v)
	}
}

func TestUnsetFieldIsNotFound(t *testing.T) {
	p := NewProperties()

	getters := map[string]func() error{
		"segment":    func() error { _, err := p.Segment(); return err },
		"bus":        func() error { _, err := p.Bus(); return err },
		"device":     func() error { _, err := p.Device(); return err },
		"function":   func() error { _, err := p.Function(); return err },
		"socket":     func() error { _, err := p.SocketID(); return err },
		"vendor":     func() error { _, err := p.VendorID(); return err },
		"device id":  func() error { _, err := p.DeviceID(); return err },
		"guid":       func() error { _, err := p.GUID(); return err },
		"object id":  func() error { _, err := p.ObjectID(); return err },
		"num errors": func() error { _, err := p.NumErrors(); return err },
		"objtype":    func() error { _, err := p.ObjectType(); return err },
		"parent":     func() error { _, err := p.Parent(); return err },
	}

	for name, get := range getters {
		if err := get(); !IsResult(err, NotFound) {
			t.Errorf("%s: expected NotFound, got %v", name, err)
		}
	}
}

func TestKindSpecificAccess(t *testing.T) {
	tcases := []struct {
		name        string
		objType     *ObjType
		access      func(p *Properties) error
		expectedErr Result
	}{
		{
			name:        "num slots without objtype",
			access:      func(p *Properties) error { return p.SetNumSlots(1) },
			expectedErr: InvalidParam,
		},
		{
			name:        "num slots on device",
			objType:     ptr.To(Device),
			access:      func(p *Properties) error { return p.SetNumSlots(1) },
			expectedErr: OK,
		},
		{
			name:        "num slots on accelerator",
			objType:     ptr.To(Accelerator),
			access:      func(p *Properties) error { return p.SetNumSlots(1) },
			expectedErr: InvalidParam,
		},
		{
			name:        "state on accelerator",
			objType:     ptr.To(Accelerator),
			access:      func(p *Properties) error { return p.SetAcceleratorState(Unassigned) },
			expectedErr: OK,
		},
		{
			name:        "bogus state",
			objType:     ptr.To(Accelerator),
			access:      func(p *Properties) error { return p.SetAcceleratorState(AcceleratorState(7)) },
			expectedErr: InvalidParam,
		},
		{
			name:        "num mmio on device",
			objType:     ptr.To(Device),
			access:      func(p *Properties) error { _, err := p.NumMMIO(); return err },
			expectedErr: InvalidParam,
		},
		{
			name:        "unset bbs id on device",
			objType:     ptr.To(Device),
			access:      func(p *Properties) error { _, err := p.BBSID(); return err },
			expectedErr: NotFound,
		},
		{
			name:        "model",
			objType:     ptr.To(Device),
			access:      func(p *Properties) error { return p.SetModel("pac") },
			expectedErr: NotSupported,
		},
		{
			name:        "capabilities",
			access:      func(p *Properties) error { _, err := p.Capabilities(); return err },
			expectedErr: NotSupported,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProperties()

			if tc.objType != nil {
				if err := p.SetObjectType(*tc.objType); err != nil {
					t.Fatalf("unexpected error: %+v", err)
				}
			}

			if err := tc.access(p); ResultOf(err) != tc.expectedErr {
				t.Errorf("expected %v, got %v", tc.expectedErr, err)
			}
		})
	}
}

func TestSwitchingKindDropsKindFields(t *testing.T) {
	p := NewProperties()

	_ = p.SetObjectType(Device)
	_ = p.SetNumSlots(2)
	_ = p.SetBus(0x5e)

	if err := p.SetObjectType(Device); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if v, err := p.NumSlots(); err != nil || v != 2 {
		t.Fatalf("setting the same kind lost num slots: %d, %v", v, err)
	}

	if err := p.SetObjectType(Accelerator); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if p.IsSet(FieldNumSlots) {
		t.Error("num slots survived a kind switch")
	}

	if v, err := p.Bus(); err != nil || v != 0x5e {
		t.Errorf("common field lost on kind switch: %d, %v", v, err)
	}

	if err := p.SetObjectType(ObjType(5)); !IsResult(err, InvalidParam) {
		t.Errorf("expected InvalidParam, got %v", err)
	}
}

func TestCloneRoundTrip(t *testing.T) {
	reg := NewRegistry()

	parent, err := reg.RegisterOrGet(newFME(0, 0).Identity())
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	tcases := []struct {
		name  string
		setup func(p *Properties)
	}{
		{
			name:  "empty",
			setup: func(p *Properties) {},
		},
		{
			name: "common fields",
			setup: func(p *Properties) {
				_ = p.SetBus(0x5e)
				_ = p.SetGUID(guidAFU)
				_ = p.SetObjectID(42)
			},
		},
		{
			name: "device",
			setup: func(p *Properties) {
				_ = p.SetObjectType(Device)
				_ = p.SetBBSID(0x0123000200000000)
				_ = p.SetBBSVersion(Version{Major: 1, Minor: 2, Patch: 3})
			},
		},
		{
			name: "accelerator with parent",
			setup: func(p *Properties) {
				_ = p.SetObjectType(Accelerator)
				_ = p.SetParent(parent)
				_ = p.SetNumMMIO(2)
				_ = p.SetAcceleratorState(Unassigned)
			},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProperties()
			tc.setup(p)

			c, err := p.Clone()
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}

			if diff := cmp.Diff(p.ValidFields(), c.ValidFields()); diff != "" {
				t.Errorf("valid fields differ (-orig +clone):\n%s", diff)
			}

			if diff := cmp.Diff(dump(p), dump(c)); diff != "" {
				t.Errorf("values differ (-orig +clone):\n%s", diff)
			}

			// The clone must not share anything with the original.
			_ = p.Destroy()

			if c.IsSet(FieldParent) {
				pt, err := c.Parent()
				if err != nil {
					t.Fatalf("clone lost its parent: %+v", err)
				}

				if !pt.SameDevice(parent) {
					t.Error("clone parent refers to another device")
				}
			}
		})
	}
}

func TestClearAndDestroy(t *testing.T) {
	p := NewProperties()
	_ = p.SetBus(1)

	if err := p.Clear(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if len(p.ValidFields()) != 0 {
		t.Errorf("fields left after clear: %v", p.ValidFields())
	}

	if err := p.SetBus(2); err != nil {
		t.Fatalf("cleared object is not usable: %+v", err)
	}

	if err := p.Destroy(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if err := p.Destroy(); !IsResult(err, InvalidParam) {
		t.Errorf("expected InvalidParam on second destroy, got %v", err)
	}

	if _, err := p.Bus(); !IsResult(err, InvalidParam) {
		t.Errorf("expected InvalidParam on destroyed object, got %v", err)
	}

	var nilProps *Properties
	if _, err := nilProps.Clone(); !IsResult(err, InvalidParam) {
		t.Errorf("expected InvalidParam on nil object, got %v", err)
	}
}

func TestPropertiesConcurrentAccess(t *testing.T) {
	p := NewProperties()
	_ = p.SetObjectType(Accelerator)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				_ = p.SetBus(uint8(i))
				_ = p.SetNumMMIO(uint32(j))
				_, _ = p.Bus()
				_, _ = p.NumMMIO()

				c, err := p.Clone()
				if err == nil {
					_ = c.Destroy()
				}
			}
		}(i)
	}

	wg.Wait()

	if !p.IsSet(FieldBus) || !p.IsSet(FieldNumMMIO) {
		t.Error("fields lost under concurrent access")
	}
}

// dump reads every set field into a map for comparison.
func dump(p *Properties) map[Field]any {
	out := make(map[Field]any)

	for _, f := range p.ValidFields() {
		var (
			v   any
			err error
		)

		switch f {
		case FieldParent:
			var t *Token
			t, err = p.Parent()
			if err == nil {
				v, err = t.Identity()
			}
		case FieldObjType:
			v, err = p.ObjectType()
		case FieldSegment:
			v, err = p.Segment()
		case FieldBus:
			v, err = p.Bus()
		case FieldDevice:
			v, err = p.Device()
		case FieldFunction:
			v, err = p.Function()
		case FieldSocketID:
			v, err = p.SocketID()
		case FieldVendorID:
			v, err = p.VendorID()
		case FieldDeviceID:
			v, err = p.DeviceID()
		case FieldGUID:
			v, err = p.GUID()
		case FieldObjectID:
			v, err = p.ObjectID()
		case FieldNumErrors:
			v, err = p.NumErrors()
		case FieldNumSlots:
			v, err = p.NumSlots()
		case FieldBBSID:
			v, err = p.BBSID()
		case FieldBBSVersion:
			v, err = p.BBSVersion()
		case FieldAcceleratorState:
			v, err = p.AcceleratorState()
		case FieldNumMMIO:
			v, err = p.NumMMIO()
		case FieldNumInterrupts:
			v, err = p.NumInterrupts()
		}

		if err != nil {
			v = err.Error()
		}

		out[f] = v
	}

	return out
}
