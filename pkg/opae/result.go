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

package opae

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is an OPAE result code. Every error returned by this module has
// one of the codes below as its cause, so callers sitting at an FFI
// boundary can translate errors back to integer codes with ResultOf.
type Result int

// Result codes. The numbering follows fpga_result.
const (
	OK Result = iota
	InvalidParam
	Busy
	Exception
	NotFound
	NoMemory
	NotSupported
	NoDriver
	NoDaemon
	NoAccess
	ReconfError
)

var resultNames = map[Result]string{
	OK:           "success",
	InvalidParam: "invalid parameter",
	Busy:         "resource busy",
	Exception:    "exception",
	NotFound:     "not found",
	NoMemory:     "no memory",
	NotSupported: "not supported",
	NoDriver:     "no driver available",
	NoDaemon:     "no daemon available",
	NoAccess:     "insufficient privileges",
	ReconfError:  "reconfiguration error",
}

func (r Result) Error() string {
	if s, ok := resultNames[r]; ok {
		return s
	}

	return fmt.Sprintf("unknown result %d", int(r))
}

// ResultOf maps err to its result code. A nil error is OK, an error that
// does not carry a Result is reported as Exception.
func ResultOf(err error) Result {
	if err == nil {
		return OK
	}

	var r Result
	if errors.As(err, &r) {
		return r
	}

	return Exception
}

// IsResult reports whether err carries the result code r.
func IsResult(err error, r Result) bool {
	return ResultOf(err) == r
}
