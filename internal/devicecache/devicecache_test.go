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

package devicecache

import (
	"context"
	"flag"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

func init() {
	_ = flag.Set("v", "4") //Enable debug output
}

const (
	fmeID = "ce48969398f05f33946d560708be108a"
	afuID = "d8424dc4a4a3c413f89e433683f9040b"
)

// fakeSource serves whatever the test last stored.
type fakeSource struct {
	mu    sync.Mutex
	ports []opae.AcceleratorState
	err   error
	walks int
}

func (f *fakeSource) set(ports ...opae.AcceleratorState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ports = ports
}

func (f *fakeSource) Discover(context.Context) ([]*opae.AttributeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.walks++

	if f.err != nil {
		return nil, f.err
	}

	fme := &opae.AttributeRecord{
		ObjType:  opae.Device,
		GUID:     opae.MustParseGUID(fmeID),
		Location: opae.Location{Path: "/sys/class/fpga_region/region0/dfl-fme.0"},
		Fpga:     &opae.DeviceAttrs{NumSlots: uint32(len(f.ports))},
	}
	recs := []*opae.AttributeRecord{fme}

	for i, state := range f.ports {
		recs = append(recs, &opae.AttributeRecord{
			ObjType:  opae.Accelerator,
			GUID:     opae.MustParseGUID(afuID),
			Location: opae.Location{Path: "/sys/class/fpga_region/region0/dfl-port." + string(rune('0'+i))},
			Accel:    &opae.AcceleratorAttrs{State: state},
			Parent:   fme,
		})
	}

	return recs, nil
}

func portInfo(i int, state opae.AcceleratorState) DeviceInfo {
	return DeviceInfo{
		ObjType:  opae.Accelerator,
		Location: opae.Location{Path: "/sys/class/fpga_region/region0/dfl-port." + string(rune('0'+i))},
		State:    state,
		Parent:   "/sys/class/fpga_region/region0/dfl-fme.0",
	}
}

func portKey(i int) string {
	return "/sys/class/fpga_region/region0/dfl-port." + string(rune('0'+i))
}

func TestNewCache(t *testing.T) {
	tcases := []struct {
		mode        string
		expectedErr bool
	}{
		{mode: AfMode},
		{mode: RegionMode},
		{mode: "unparsable", expectedErr: true},
	}
	for _, tc := range tcases {
		t.Run(tc.mode, func(t *testing.T) {
			_, err := NewCache(opae.NewEnumerator(&fakeSource{}, nil), tc.mode, make(chan UpdateInfo, 1))
			if tc.expectedErr != (err != nil) {
				t.Errorf("unexpected error state: %v", err)
			}
		})
	}
}

func TestScan(t *testing.T) {
	afu := opae.MustParseGUID(afuID).String()

	tcases := []struct {
		name     string
		ports    []opae.AcceleratorState
		expected *UpdateInfo
	}{
		{
			name:  "first scan adds both ports",
			ports: []opae.AcceleratorState{opae.Unassigned, opae.Assigned},
			expected: &UpdateInfo{
				Added: DeviceMap{afu: {
					portKey(0): portInfo(0, opae.Unassigned),
					portKey(1): portInfo(1, opae.Assigned),
				}},
				Updated: DeviceMap{},
				Removed: DeviceMap{},
			},
		},
		{
			name:  "nothing changed",
			ports: []opae.AcceleratorState{opae.Unassigned, opae.Assigned},
		},
		{
			name:  "port 0 got opened",
			ports: []opae.AcceleratorState{opae.Assigned, opae.Assigned},
			expected: &UpdateInfo{
				Added: DeviceMap{},
				Updated: DeviceMap{afu: {
					portKey(0): portInfo(0, opae.Assigned),
					portKey(1): portInfo(1, opae.Assigned),
				}},
				Removed: DeviceMap{},
			},
		},
		{
			name:  "ports went away",
			ports: nil,
			expected: &UpdateInfo{
				Added:   DeviceMap{},
				Updated: DeviceMap{},
				Removed: DeviceMap{afu: {
					portKey(0): portInfo(0, opae.Assigned),
					portKey(1): portInfo(1, opae.Assigned),
				}},
			},
		},
	}

	src := &fakeSource{}
	ch := make(chan UpdateInfo, 1)

	c, err := NewCache(opae.NewEnumerator(src, nil), AfMode, ch)
	if err != nil {
		t.Fatal(err)
	}

	// The steps build on each other.
	for i, tc := range tcases {
		src.set(tc.ports...)

		if err := c.Scan(context.Background()); err != nil {
			t.Fatalf("%s: unexpected error: %+v", tc.name, err)
		}

		if src.walks != i+1 {
			t.Errorf("%s: expected one backend walk per scan, got %d walks after %d scans", tc.name, src.walks, i+1)
		}

		select {
		case update := <-ch:
			if tc.expected == nil {
				t.Errorf("%s: unexpected update %+v", tc.name, update)
				continue
			}

			if diff := cmp.Diff(*tc.expected, update); diff != "" {
				t.Errorf("%s: unexpected update (-want +got):\n%s", tc.name, diff)
			}
		default:
			if tc.expected != nil {
				t.Errorf("%s: no update", tc.name)
			}
		}
	}
}

func TestRegionMode(t *testing.T) {
	ch := make(chan UpdateInfo, 1)

	c, err := NewCache(opae.NewEnumerator(&fakeSource{ports: []opae.AcceleratorState{opae.Assigned}}, nil), RegionMode, ch)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	update := <-ch

	fmes := update.Added[opae.MustParseGUID(fmeID).String()]
	if len(update.Added) != 1 || len(fmes) != 1 {
		t.Errorf("expected one FME, got %+v", update.Added)
	}
}

func TestRun(t *testing.T) {
	src := &fakeSource{ports: []opae.AcceleratorState{opae.Unassigned}}
	ch := make(chan UpdateInfo)

	c, err := NewCache(opae.NewEnumerator(src, nil), AfMode, ch)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	trigger := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- c.Run(ctx, time.Hour, trigger)
	}()

	if update := <-ch; len(update.Added) != 1 {
		t.Errorf("unexpected first update %+v", update)
	}

	src.set(opae.Unassigned, opae.Unassigned)
	trigger <- struct{}{}

	if update := <-ch; len(update.Updated) != 1 {
		t.Errorf("unexpected second update %+v", update)
	}

	cancel()

	if err := <-done; err != nil {
		t.Errorf("unexpected error: %+v", err)
	}

	src.err = errors.Wrap(opae.NoDriver, "driver unloaded")

	if err := c.Run(context.Background(), time.Hour, nil); !opae.IsResult(err, opae.NoDriver) {
		t.Errorf("expected NoDriver, got %v", err)
	}
}
