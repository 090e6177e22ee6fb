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

package fpga

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	pciAddressRegex = `^([[:xdigit:]]{4}):([[:xdigit:]]{2}):([[:xdigit:]]{2})\.([[:xdigit:]])$`
)

var (
	pciAddressRE = regexp.MustCompile(pciAddressRegex)
)

// PCIDevice is the PCI function an FPGA sysfs node belongs to.
type PCIDevice struct {
	SysFsPath string
	BDF       string
	Segment   uint16
	Bus       uint8
	Device    uint8
	Function  uint8
	VendorID  uint16
	DeviceID  uint16
	// NUMA is the numa_node of the function, -1 when unknown.
	NUMA   int
	PhysFn *PCIDevice
}

// NewPCIDevice walks up the resolved path of devPath until it finds a PCI
// address component, without leaving devicesRoot.
func NewPCIDevice(devPath, devicesRoot string) (*PCIDevice, error) {
	realDevPath, err := filepath.EvalSymlinks(devPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed get realpath for %s", devPath)
	}

	if r, err := filepath.EvalSymlinks(devicesRoot); err == nil {
		devicesRoot = r
	}

	pci := &PCIDevice{NUMA: -1}

	var subs []string

	for p := realDevPath; strings.HasPrefix(p, devicesRoot) && p != devicesRoot; p = filepath.Dir(p) {
		subs = pciAddressRE.FindStringSubmatch(filepath.Base(p))
		if len(subs) == 5 {
			pci.SysFsPath = p
			pci.BDF = subs[0]

			break
		}
	}

	if pci.SysFsPath == "" {
		return nil, errors.Errorf("can't find PCI device address for sysfs entry %s", realDevPath)
	}

	if err := pci.parseBDF(subs[1:]); err != nil {
		return nil, err
	}

	var vendor, device, numa string

	fileMap := map[string]*string{
		"vendor":    &vendor,
		"device":    &device,
		"numa_node": &numa,
	}
	if err = readFilesInDirectory(fileMap, pci.SysFsPath); err != nil {
		return nil, err
	}

	if vendor == "" || device == "" {
		return nil, errors.Errorf("%s vendor or device id can't be empty (%q/%q)", pci.SysFsPath, vendor, device)
	}

	if pci.VendorID, err = parseHex16(vendor); err != nil {
		return nil, errors.WithMessage(err, pci.SysFsPath)
	}

	if pci.DeviceID, err = parseHex16(device); err != nil {
		return nil, errors.WithMessage(err, pci.SysFsPath)
	}

	if n, err := strconv.Atoi(numa); err == nil {
		pci.NUMA = n
	}

	if physFn, err := NewPCIDevice(filepath.Join(pci.SysFsPath, "physfn"), devicesRoot); err == nil {
		pci.PhysFn = physFn
	}

	return pci, nil
}

func (pci *PCIDevice) parseBDF(fields []string) error {
	seg, err := strconv.ParseUint(fields[0], 16, 16)
	if err != nil {
		return errors.Wrapf(err, "bad segment in %s", pci.BDF)
	}

	bus, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return errors.Wrapf(err, "bad bus in %s", pci.BDF)
	}

	dev, err := strconv.ParseUint(fields[2], 16, 8)
	if err != nil {
		return errors.Wrapf(err, "bad device in %s", pci.BDF)
	}

	fn, err := strconv.ParseUint(fields[3], 16, 8)
	if err != nil {
		return errors.Wrapf(err, "bad function in %s", pci.BDF)
	}

	pci.Segment = uint16(seg)
	pci.Bus = uint8(bus)
	pci.Device = uint8(dev)
	pci.Function = uint8(fn)

	return nil
}

// IsVF reports whether the function is an SR-IOV virtual function.
func (pci *PCIDevice) IsVF() bool {
	return pci.PhysFn != nil
}
