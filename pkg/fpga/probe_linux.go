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
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const (
	// PortGetInfo IOCTL, same number for the DFL and the intel-fpga driver.
	// * DFL_FPGA_PORT_GET_INFO - _IOR(DFL_FPGA_MAGIC, DFL_PORT_BASE + 1,
	// *						struct dfl_fpga_port_info)
	// * Driver fills the info in provided struct dfl_fpga_port_info.
	portGetInfo = 0xB641
)

type portInfo struct {
	Argsz      uint32 // Input: Structure length
	Flags      uint32 // Output: Zero for now
	NumRegions uint32 // Output: The number of supported regions
	NumUmsgs   uint32 // Output: The number of allocated umsgs
}

// exclusiveOpenProber tells a port is free by opening its device node
// exclusively, the same way a process acquiring the accelerator would.
type exclusiveOpenProber struct{}

func (exclusiveOpenProber) ProbePort(devPath string) PortStatus {
	fd, err := unix.Open(devPath, unix.O_RDWR|unix.O_EXCL, 0)
	if err != nil {
		klog.V(4).Infof("%s: exclusive open failed, port is assigned: %v", devPath, err)
		return PortStatus{}
	}
	defer unix.Close(fd)

	info := portInfo{Argsz: uint32(unsafe.Sizeof(portInfo{}))}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), portGetInfo, uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		klog.V(2).Infof("%s: PORT_GET_INFO failed: %v", devPath, errno)
		return PortStatus{Available: true}
	}

	return PortStatus{Available: true, NumMMIO: info.NumRegions}
}

func defaultProber() Prober {
	return exclusiveOpenProber{}
}
