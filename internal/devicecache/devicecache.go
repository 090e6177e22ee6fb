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

// Package devicecache keeps the last enumeration result of a backend and
// reports what changed between scans.
package devicecache

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

// Grouping modes of the update maps.
const (
	AfMode     = "af"
	RegionMode = "region"
)

// DeviceInfo is what the cache tracks of one enumerated object.
type DeviceInfo struct {
	ObjType  opae.ObjType
	Location opae.Location
	State    opae.AcceleratorState
	Parent   string
}

// DeviceMap groups objects by GUID, then by location key.
type DeviceMap map[string]map[string]DeviceInfo

// UpdateInfo contains the added, updated and removed objects of one scan.
type UpdateInfo struct {
	Added   DeviceMap
	Updated DeviceMap
	Removed DeviceMap
}

type device struct {
	guid opae.GUID
	info DeviceInfo
}

type getDevMapFunc func(devices []device) DeviceMap

func getDevMap(devices []device, t opae.ObjType) DeviceMap {
	devMap := make(DeviceMap)

	for _, dev := range devices {
		if dev.info.ObjType != t {
			continue
		}

		id := dev.guid.String()
		if _, present := devMap[id]; !present {
			devMap[id] = make(map[string]DeviceInfo)
		}

		devMap[id][dev.info.Location.Key()] = dev.info
	}

	return devMap
}

// getRegionMap groups FMEs by interface id.
func getRegionMap(devices []device) DeviceMap {
	return getDevMap(devices, opae.Device)
}

// getAfuMap groups ports by AFU id.
func getAfuMap(devices []device) DeviceMap {
	return getDevMap(devices, opae.Accelerator)
}

// Cache represents the objects found by an enumerator.
type Cache struct {
	enumerator *opae.Enumerator
	devices    []device
	ch         chan<- UpdateInfo
	getDevMap  getDevMapFunc
}

// NewCache returns a new cache sending updates to ch.
func NewCache(e *opae.Enumerator, mode string, ch chan<- UpdateInfo) (*Cache, error) {
	var f getDevMapFunc

	switch mode {
	case AfMode:
		f = getAfuMap
	case RegionMode:
		f = getRegionMap
	default:
		return nil, errors.Wrapf(opae.InvalidParam, "wrong mode: %q", mode)
	}

	return &Cache{
		enumerator: e,
		ch:         ch,
		getDevMap:  f,
	}, nil
}

func (c *Cache) detectUpdates(ctx context.Context, devices []device) error {
	added := make(DeviceMap)
	updated := make(DeviceMap)

	oldDevMap := c.getDevMap(c.devices)

	for id, new := range c.getDevMap(devices) {
		if old, ok := oldDevMap[id]; ok {
			if !reflect.DeepEqual(old, new) {
				updated[id] = new
			}

			delete(oldDevMap, id)
		} else {
			added[id] = new
		}
	}

	if len(added) == 0 && len(updated) == 0 && len(oldDevMap) == 0 {
		return nil
	}

	select {
	case c.ch <- UpdateInfo{Added: added, Updated: updated, Removed: oldDevMap}:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Scan enumerates every object once and sends an update if anything
// changed since the previous scan.
func (c *Cache) Scan(ctx context.Context) error {
	klog.V(2).Info("Start new FPGA scan")

	matches, err := c.enumerator.EnumerateProperties(ctx, nil)
	if err != nil {
		return err
	}

	devices := make([]device, 0, len(matches))

	for _, m := range matches {
		dev, err := describe(m.Token, m.Properties)
		if err != nil {
			klog.V(2).Infof("Skipping %s: %v", m.Token, err)
		} else {
			devices = append(devices, dev)
		}

		_ = m.Properties.Destroy()
		_ = m.Token.Destroy()
	}

	if err := c.detectUpdates(ctx, devices); err != nil {
		return err
	}

	c.devices = devices

	return nil
}

func describe(t *opae.Token, props *opae.Properties) (device, error) {
	id, err := t.Identity()
	if err != nil {
		return device{}, err
	}

	dev := device{
		guid: id.GUID,
		info: DeviceInfo{
			ObjType:  id.ObjType,
			Location: id.Location,
		},
	}

	if id.ObjType != opae.Accelerator {
		return dev, nil
	}

	if dev.info.State, err = props.AcceleratorState(); err != nil {
		return device{}, err
	}

	if parent, err := props.Parent(); err == nil {
		if loc, err := parent.Location(); err == nil {
			dev.info.Parent = loc.Key()
		}

		_ = parent.Destroy()
	}

	return dev, nil
}

// Run scans every interval, and whenever trigger fires, until ctx is
// done or a scan fails.
func (c *Cache) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			klog.Error("Device scan failed: ", err)

			return errors.WithMessage(err, "device scan failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-trigger:
		}
	}
}
