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

// Package ase provides the device source of the AFU simulation
// environment: one FPGA device with one accelerator port, no hardware.
package ase

import (
	"context"
	"strconv"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

const (
	// DefaultAFUID is the AFU id of the simulated port (native loopback).
	DefaultAFUID = "d8424dc4-a4a3-c413-f89e-433683f9040b"
	// DefaultFMEID is the interface id of the simulated FME.
	DefaultFMEID = "58656f6e-4650-4741-b747-425376303031"
	// DefaultBBSID is the bitstream id the simulator reports.
	DefaultBBSID uint64 = 0x063000023b637277

	fmePath  = "/sys/class/fpga_region/region0/dfl-fme.0"
	portPath = "/sys/class/fpga_region/region0/dfl-port.0"
	fmeDev   = "/dev/dfl-fme.0"
	portDev  = "/dev/dfl-port.0"

	intelVendorID = 0x8086
	aseDeviceID   = 0x0a5e
	fmeObjectID   = 0x1000000
	portObjectID  = 0x1100000
)

// Config tunes the simulated device. The zero value is not useful, start
// from DefaultConfig.
type Config struct {
	AFUID         opae.GUID
	FMEID         opae.GUID
	SocketID      uint8
	Bus           uint8
	NumMMIO       uint32
	NumInterrupts uint32
	BBSID         uint64
}

// DefaultConfig returns the stock simulator setup.
func DefaultConfig() Config {
	return Config{
		AFUID:   opae.MustParseGUID(DefaultAFUID),
		FMEID:   opae.MustParseGUID(DefaultFMEID),
		Bus:     0x5e,
		NumMMIO: 2,
		BBSID:   DefaultBBSID,
	}
}

// LoadConfig reads an ase.cfg file on top of DefaultConfig. Keys are
// looked up in the default section; missing keys keep their default.
func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()

	file, err := ini.Load(fname)
	if err != nil {
		return cfg, errors.Wrapf(opae.InvalidParam, "%s: %v", fname, err)
	}

	section := file.Section(ini.DEFAULT_SECTION)

	for key, guid := range map[string]*opae.GUID{"AFU_ID": &cfg.AFUID, "FME_ID": &cfg.FMEID} {
		if !section.HasKey(key) {
			continue
		}

		if *guid, err = opae.ParseGUID(section.Key(key).String()); err != nil {
			return cfg, errors.WithMessagef(err, "%s: %s", fname, key)
		}
	}

	for key, val := range map[string]*uint8{"SOCKET_ID": &cfg.SocketID, "BUS": &cfg.Bus} {
		if !section.HasKey(key) {
			continue
		}

		n, err := strconv.ParseUint(section.Key(key).String(), 0, 8)
		if err != nil {
			return cfg, errors.Wrapf(opae.InvalidParam, "%s: %s: %v", fname, key, err)
		}

		*val = uint8(n)
	}

	for key, val := range map[string]*uint32{"NUM_MMIO": &cfg.NumMMIO, "NUM_INTERRUPTS": &cfg.NumInterrupts} {
		if !section.HasKey(key) {
			continue
		}

		n, err := strconv.ParseUint(section.Key(key).String(), 0, 32)
		if err != nil {
			return cfg, errors.Wrapf(opae.InvalidParam, "%s: %s: %v", fname, key, err)
		}

		*val = uint32(n)
	}

	if section.HasKey("BBS_ID") {
		n, err := strconv.ParseUint(section.Key("BBS_ID").String(), 0, 64)
		if err != nil {
			return cfg, errors.Wrapf(opae.InvalidParam, "%s: BBS_ID: %v", fname, err)
		}

		cfg.BBSID = n
	}

	klog.V(4).Infof("ASE config %s: AFU %s FME %s bus %#x", fname, cfg.AFUID, cfg.FMEID, cfg.Bus)

	return cfg, nil
}

// Source is the simulation DeviceSource. It always reports the same two
// nodes.
type Source struct {
	cfg Config
}

// NewSource returns a simulation source for cfg.
func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg}
}

var _ opae.DeviceSource = (*Source)(nil)

// Discover returns the simulated FME followed by its port. Every call
// builds fresh records.
func (s *Source) Discover(ctx context.Context) ([]*opae.AttributeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	fme := &opae.AttributeRecord{
		ObjType:  opae.Device,
		GUID:     s.cfg.FMEID,
		Location: opae.Location{Path: fmePath, DevPath: fmeDev},
		Bus:      s.cfg.Bus,
		SocketID: s.cfg.SocketID,
		VendorID: intelVendorID,
		DeviceID: aseDeviceID,
		ObjectID: fmeObjectID,
		Fpga: &opae.DeviceAttrs{
			NumSlots:   1,
			BBSID:      s.cfg.BBSID,
			BBSVersion: opae.BBSVersionFromID(s.cfg.BBSID),
		},
	}

	port := &opae.AttributeRecord{
		ObjType:  opae.Accelerator,
		GUID:     s.cfg.AFUID,
		Location: opae.Location{Path: portPath, DevPath: portDev},
		Bus:      s.cfg.Bus,
		VendorID: intelVendorID,
		DeviceID: aseDeviceID,
		ObjectID: portObjectID,
		Accel: &opae.AcceleratorAttrs{
			State:         opae.Unassigned,
			NumMMIO:       s.cfg.NumMMIO,
			NumInterrupts: s.cfg.NumInterrupts,
		},
		Parent: fme,
	}

	return []*opae.AttributeRecord{fme, port}, nil
}
