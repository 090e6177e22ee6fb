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
	"flag"
	"fmt"
	"sync"
)

func init() {
	_ = flag.Set("v", "4")
}

var (
	guidFME  = MustParseGUID("ce48969398f05f33946d560708be108a")
	guidAFU  = MustParseGUID("d8424dc4a4a3c413f89e433683f9040b")
	guidAFU2 = MustParseGUID("f7df405cbd7acf7222f144b0b93acd18")
)

// fakeSource returns freshly built records on every call, the same way a
// real backend rereads its devices.
type fakeSource struct {
	mu    sync.Mutex
	build func() []*AttributeRecord
	err   error
	calls int
}

func (s *fakeSource) Discover(ctx context.Context) ([]*AttributeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	return s.build(), nil
}

// describingSource also answers single location lookups.
type describingSource struct {
	fakeSource
	described int
}

func (s *describingSource) Describe(ctx context.Context, loc Location) (*AttributeRecord, error) {
	recs, err := s.fakeSource.Discover(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls--
	s.described++

	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if rec.Location.Key() == loc.Key() {
			return rec, nil
		}
	}

	return nil, NotFound
}

func newFME(idx int, socket uint8) *AttributeRecord {
	return &AttributeRecord{
		ObjType:  Device,
		GUID:     guidFME,
		Location: Location{Path: fmt.Sprintf("/sys/class/fpga_region/region%d/dfl-fme.%d", idx, idx)},
		Bus:      uint8(0x5e + idx),
		SocketID: socket,
		VendorID: 0x8086,
		DeviceID: 0x0b30,
		ObjectID: ObjectIDFromDev(509, uint32(idx)),
		Fpga: &DeviceAttrs{
			NumSlots:   1,
			BBSID:      0x0123000200000000,
			BBSVersion: BBSVersionFromID(0x0123000200000000),
		},
	}
}

func newPort(parent *AttributeRecord, idx int, afu GUID, state AcceleratorState) *AttributeRecord {
	return &AttributeRecord{
		ObjType:  Accelerator,
		GUID:     afu,
		Location: Location{Path: fmt.Sprintf("/sys/class/fpga_region/region%d/dfl-port.%d", idx, idx)},
		Bus:      parent.Bus,
		VendorID: parent.VendorID,
		DeviceID: parent.DeviceID,
		ObjectID: ObjectIDFromDev(510, uint32(idx)),
		Accel: &AcceleratorAttrs{
			State:   state,
			NumMMIO: 2,
		},
		Parent: parent,
	}
}

// twoCards is two FPGA cards on different sockets, each with one port.
func twoCards() []*AttributeRecord {
	fme0 := newFME(0, 0)
	fme1 := newFME(1, 1)

	return []*AttributeRecord{
		fme0,
		newPort(fme0, 0, guidAFU, Unassigned),
		fme1,
		newPort(fme1, 1, guidAFU2, Assigned),
	}
}
