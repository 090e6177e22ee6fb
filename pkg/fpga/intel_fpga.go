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

const (
	intelFpgaClass      = "sys/class/fpga"
	intelFpgaDevPrefix  = "intel-fpga-dev."
	intelFpgaFmePrefix  = "intel-fpga-fme."
	intelFpgaPortPrefix = "intel-fpga-port."
)

// The intel-fpga driver groups the FME and the ports of a card under one
// intel-fpga-dev.N directory.
var intelFpgaLayout = driverLayout{
	name:       "intel-fpga",
	classDir:   intelFpgaClass,
	deviceGlob: intelFpgaDevPrefix + "*",
	fmeGlob:    intelFpgaFmePrefix + "*",
	portGlob:   intelFpgaPortPrefix + "*",
	fmeGUID:    "pr/interface_id",
}
