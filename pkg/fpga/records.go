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
	"strconv"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

// readObjectID reads the dev file of a sysfs node and turns it into an
// object id.
func readObjectID(dir string) (uint64, error) {
	var dev string

	if err := readFilesInDirectory(map[string]*string{"dev": &dev}, dir); err != nil {
		return 0, err
	}

	if dev == "" {
		return 0, errors.Errorf("%s: no dev file", dir)
	}

	major, minor, err := parseDev(dev)
	if err != nil {
		return 0, errors.WithMessage(err, dir)
	}

	return opae.ObjectIDFromDev(major, minor), nil
}

// newRecord fills the attributes common to FMEs and ports.
func (s *Source) newRecord(t opae.ObjType, dir, guid string, pci *PCIDevice) (*opae.AttributeRecord, error) {
	if guid == "" {
		return nil, errors.Errorf("%s: no GUID", dir)
	}

	g, err := opae.ParseGUID(guid)
	if err != nil {
		return nil, errors.WithMessage(err, dir)
	}

	objectID, err := readObjectID(dir)
	if err != nil {
		return nil, err
	}

	return &opae.AttributeRecord{
		ObjType: t,
		GUID:    g,
		Location: opae.Location{
			Path:    dir,
			DevPath: filepath.Join(s.devfs, filepath.Base(dir)),
		},
		Segment:   pci.Segment,
		Bus:       pci.Bus,
		Device:    pci.Device,
		Function:  pci.Function,
		VendorID:  pci.VendorID,
		DeviceID:  pci.DeviceID,
		NumErrors: countErrors(dir),
		ObjectID:  objectID,
		ResolveObjectID: func() (uint64, error) {
			return readObjectID(dir)
		},
	}, nil
}

func (s *Source) newDeviceRecord(l driverLayout, dir string, pci *PCIDevice, numPorts int) (*opae.AttributeRecord, error) {
	var guid, bitstreamID, portsNum, socketID string

	fileMap := map[string]*string{
		l.fmeGUID:      &guid,
		"bitstream_id": &bitstreamID,
		"ports_num":    &portsNum,
		"socket_id":    &socketID,
	}
	if err := readFilesInDirectory(fileMap, dir); err != nil {
		return nil, err
	}

	rec, err := s.newRecord(opae.Device, dir, guid, pci)
	if err != nil {
		return nil, err
	}

	switch n, err := strconv.ParseUint(socketID, 10, 8); {
	case err == nil:
		rec.SocketID = uint8(n)
	case pci.NUMA >= 0:
		rec.SocketID = uint8(pci.NUMA)
	}

	attrs := &opae.DeviceAttrs{NumSlots: uint32(numPorts)}

	if n, err := strconv.ParseUint(portsNum, 10, 32); err == nil {
		attrs.NumSlots = uint32(n)
	}

	if bitstreamID != "" {
		id, err := strconv.ParseUint(bitstreamID, 0, 64)
		if err != nil {
			klog.V(2).Infof("%s: malformed bitstream_id %q", dir, bitstreamID)
		} else {
			attrs.BBSID = id
			attrs.BBSVersion = opae.BBSVersionFromID(id)
		}
	}

	rec.Fpga = attrs

	return rec, nil
}

func (s *Source) newAcceleratorRecord(dir string, pci *PCIDevice, parent *opae.AttributeRecord) (*opae.AttributeRecord, error) {
	var afuID string

	if err := readFilesInDirectory(map[string]*string{"afu_id": &afuID}, dir); err != nil {
		return nil, err
	}

	rec, err := s.newRecord(opae.Accelerator, dir, afuID, pci)
	if err != nil {
		return nil, err
	}

	status := s.prober.ProbePort(rec.Location.DevPath)

	rec.Accel = &opae.AcceleratorAttrs{
		State:   opae.Assigned,
		NumMMIO: status.NumMMIO,
	}
	if status.Available {
		rec.Accel.State = opae.Unassigned
	}

	rec.Parent = parent

	return rec, nil
}
