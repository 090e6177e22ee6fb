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

// Package fpga discovers FPGA devices and accelerator ports through sysfs.
// Both the upstream DFL driver and the out-of-tree intel-fpga driver
// layouts are supported.
package fpga

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

const (
	// sysfsDevices is the device tree below the root directory.
	sysfsDevices = "sys/devices"
)

// driverLayout describes where a kernel driver exposes its nodes.
type driverLayout struct {
	name string
	// classDir is relative to the root directory.
	classDir string
	// deviceGlob matches the per card directories in classDir.
	deviceGlob string
	fmeGlob    string
	portGlob   string
	// fmeGUID is the FME file holding the interface id, relative to the
	// FME directory. May be a glob.
	fmeGUID string
}

// PortStatus is what probing a port device node tells.
type PortStatus struct {
	// Available is set when nobody else holds the port.
	Available bool
	// NumMMIO is the number of MMIO regions reported by the driver.
	NumMMIO uint32
}

// Prober checks whether an accelerator port is in use.
type Prober interface {
	ProbePort(devPath string) PortStatus
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(devPath string) PortStatus

// ProbePort calls f(devPath).
func (f ProberFunc) ProbePort(devPath string) PortStatus {
	return f(devPath)
}

// NoProbe never touches device nodes and reports every port as assigned.
var NoProbe Prober = ProberFunc(func(string) PortStatus { return PortStatus{} })

// Source is the sysfs DeviceSource.
type Source struct {
	root   string
	devfs  string
	prober Prober
}

// Option configures a Source.
type Option func(*Source)

// WithProber replaces the exclusive open port probe.
func WithProber(p Prober) Option {
	return func(s *Source) {
		s.prober = p
	}
}

// NewSource returns a sysfs DeviceSource. root is the directory sysfs is
// found under ("/" on a host), devfs the directory holding the device
// nodes.
func NewSource(root, devfs string, opts ...Option) *Source {
	s := &Source{
		root:   root,
		devfs:  devfs,
		prober: defaultProber(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ opae.DeviceSource = (*Source)(nil)

// Discover walks every supported driver layout. It fails with NoDriver
// when no FPGA driver class exists and with NoAccess when a class
// directory can't be read. Nodes with unreadable or malformed attributes
// are skipped.
func (s *Source) Discover(ctx context.Context) ([]*opae.AttributeRecord, error) {
	var (
		records []*opae.AttributeRecord
		found   bool
	)

	for _, l := range []driverLayout{dflLayout, intelFpgaLayout} {
		classDir := filepath.Join(s.root, l.classDir)

		if _, err := os.ReadDir(classDir); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil, errors.Wrapf(opae.NoAccess, "%s: %v", classDir, err)
			}

			klog.V(4).Infof("%s driver not present: %v", l.name, err)

			continue
		}

		found = true

		recs, err := s.walk(ctx, l, classDir)
		if err != nil {
			return nil, err
		}

		records = append(records, recs...)
	}

	if !found {
		return nil, errors.Wrap(opae.NoDriver, "no FPGA driver class found in sysfs")
	}

	return records, nil
}

// ClassDir returns the class directory of the first driver found under
// root, or "" when no FPGA driver is loaded.
func ClassDir(root string) string {
	for _, l := range []driverLayout{dflLayout, intelFpgaLayout} {
		dir := filepath.Join(root, l.classDir)
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}

	return ""
}

type orphanPort struct {
	dir string
	pci *PCIDevice
}

// walk lists the nodes of one driver. Each FME is followed by its ports.
// Ports of a virtual function have no FME next to them; they are listed
// last, parented to the FME of the physical function.
func (s *Source) walk(ctx context.Context, l driverLayout, classDir string) ([]*opae.AttributeRecord, error) {
	devicesRoot := filepath.Join(s.root, sysfsDevices)
	fmes := make(map[string]*opae.AttributeRecord)

	var (
		records []*opae.AttributeRecord
		orphans []orphanPort
	)

	for _, devDir := range globSorted(filepath.Join(classDir, l.deviceGlob)) {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}

		pci, err := NewPCIDevice(devDir, devicesRoot)
		if err != nil {
			klog.V(2).Infof("Skipping %s: %v", devDir, err)
			continue
		}

		fmeDirs := globSorted(filepath.Join(devDir, l.fmeGlob))
		portDirs := globSorted(filepath.Join(devDir, l.portGlob))

		if len(fmeDirs) == 0 {
			if pci.IsVF() {
				for _, dir := range portDirs {
					orphans = append(orphans, orphanPort{dir: dir, pci: pci})
				}
			} else {
				klog.V(2).Infof("Skipping %s: no FME found", devDir)
			}

			continue
		}

		fme, err := s.newDeviceRecord(l, fmeDirs[0], pci, len(portDirs))
		if err != nil {
			klog.V(2).Infof("Skipping %s and its ports: %v", fmeDirs[0], err)
			continue
		}

		records = append(records, fme)
		fmes[pci.BDF] = fme

		for _, dir := range portDirs {
			port, err := s.newAcceleratorRecord(dir, pci, fme)
			if err != nil {
				klog.V(2).Infof("Skipping %s: %v", dir, err)
				continue
			}

			records = append(records, port)
		}
	}

	for _, o := range orphans {
		fme, ok := fmes[o.pci.PhysFn.BDF]
		if !ok {
			klog.V(2).Infof("Skipping %s: no FME for physical function %s", o.dir, o.pci.PhysFn.BDF)
			continue
		}

		port, err := s.newAcceleratorRecord(o.dir, o.pci, fme)
		if err != nil {
			klog.V(2).Infof("Skipping %s: %v", o.dir, err)
			continue
		}

		records = append(records, port)
	}

	return records, nil
}
