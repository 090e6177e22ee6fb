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
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

var _ opae.Describer = (*Source)(nil)

// Describe reads the single FME or port node at loc. For a port the FME
// it belongs to is read too; no other port is probed.
func (s *Source) Describe(ctx context.Context, loc opae.Location) (*opae.AttributeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	dir := loc.Path

	l, isFME, ok := s.layoutOf(dir)
	if !ok {
		return nil, errors.Wrapf(opae.NotFound, "%q is not an FPGA node", dir)
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, unavailable(dir, err)
	}

	devDir := filepath.Dir(dir)

	pci, err := NewPCIDevice(devDir, filepath.Join(s.root, sysfsDevices))
	if err != nil {
		return nil, unavailable(dir, err)
	}

	if isFME {
		rec, err := s.newDeviceRecord(l, dir, pci, len(globSorted(filepath.Join(devDir, l.portGlob))))
		if err != nil {
			return nil, unavailable(dir, err)
		}

		return rec, nil
	}

	fme, err := s.fmeOf(l, devDir, pci)
	if err != nil {
		return nil, err
	}

	rec, err := s.newAcceleratorRecord(dir, pci, fme)
	if err != nil {
		return nil, unavailable(dir, err)
	}

	return rec, nil
}

// layoutOf tells which driver layout dir belongs to and whether it is an
// FME or a port directory.
func (s *Source) layoutOf(dir string) (driverLayout, bool, bool) {
	for _, l := range []driverLayout{dflLayout, intelFpgaLayout} {
		rel, err := filepath.Rel(filepath.Join(s.root, l.classDir), dir)
		if err != nil {
			continue
		}

		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 2 {
			continue
		}

		if ok, _ := filepath.Match(l.deviceGlob, parts[0]); !ok {
			continue
		}

		if ok, _ := filepath.Match(l.fmeGlob, parts[1]); ok {
			return l, true, true
		}

		if ok, _ := filepath.Match(l.portGlob, parts[1]); ok {
			return l, false, true
		}
	}

	return driverLayout{}, false, false
}

// fmeOf returns the FME record a port in devDir is parented to: the FME
// next to it, or for a virtual function the FME of its physical function.
func (s *Source) fmeOf(l driverLayout, devDir string, pci *PCIDevice) (*opae.AttributeRecord, error) {
	if fmeDirs := globSorted(filepath.Join(devDir, l.fmeGlob)); len(fmeDirs) > 0 {
		fme, err := s.newDeviceRecord(l, fmeDirs[0], pci, len(globSorted(filepath.Join(devDir, l.portGlob))))
		if err != nil {
			return nil, unavailable(fmeDirs[0], err)
		}

		return fme, nil
	}

	if !pci.IsVF() {
		return nil, errors.Wrapf(opae.NotFound, "%s: no FME found", devDir)
	}

	devicesRoot := filepath.Join(s.root, sysfsDevices)

	for _, dir := range globSorted(filepath.Join(s.root, l.classDir, l.deviceGlob)) {
		fmeDirs := globSorted(filepath.Join(dir, l.fmeGlob))
		if len(fmeDirs) == 0 {
			continue
		}

		pf, err := NewPCIDevice(dir, devicesRoot)
		if err != nil || pf.BDF != pci.PhysFn.BDF {
			continue
		}

		fme, err := s.newDeviceRecord(l, fmeDirs[0], pf, len(globSorted(filepath.Join(dir, l.portGlob))))
		if err != nil {
			return nil, unavailable(fmeDirs[0], err)
		}

		return fme, nil
	}

	return nil, errors.Wrapf(opae.NotFound, "%s: no FME for physical function %s", devDir, pci.PhysFn.BDF)
}

func unavailable(dir string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return errors.Wrapf(opae.NoAccess, "%s: %v", dir, err)
	}

	return errors.Wrapf(opae.NotFound, "%s: %v", dir, err)
}
