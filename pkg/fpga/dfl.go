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
	dflFpgaRegionClass = "sys/class/fpga_region"
	dflFpgaFmePrefix   = "dfl-fme."
	dflFpgaPortPrefix  = "dfl-port."
)

// The DFL driver registers one fpga_region per card with the FME and the
// ports as children. The FME's own PR region carries the interface id.
var dflLayout = driverLayout{
	name:       "DFL",
	classDir:   dflFpgaRegionClass,
	deviceGlob: "region*",
	fmeGlob:    dflFpgaFmePrefix + "*",
	portGlob:   dflFpgaPortPrefix + "*",
	fmeGUID:    "dfl-fme-region.*/fpga_region/region*/compat_id",
}
