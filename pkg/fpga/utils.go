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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// small helper function that reads several files into provided set of variables.
// Keys may contain glob patterns, those are only read when they match
// exactly one file.
func readFilesInDirectory(fileMap map[string]*string, dir string) error {
	for k, v := range fileMap {
		fname := filepath.Join(dir, k)
		if strings.ContainsAny(fname, "?*[") {
			files, err := filepath.Glob(fname)
			if err != nil || len(files) != 1 {
				continue
			}

			fname = files[0]
		}

		b, err := os.ReadFile(fname)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return errors.Wrapf(err, "%s: unable to read file %q", dir, k)
		}

		*v = strings.TrimSpace(string(b))
	}

	return nil
}

// globSorted returns the matches of pattern in lexical order of their
// instance number, so that region10 comes after region9.
func globSorted(pattern string) []string {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	sortByInstance(files)

	return files
}

// instance returns the trailing decimal number of a sysfs node name such
// as "dfl-port.3" or "region12", or -1.
func instance(name string) int {
	base := filepath.Base(name)
	i := len(base)

	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}

	n, err := strconv.Atoi(base[i:])
	if err != nil {
		return -1
	}

	return n
}

func sortByInstance(files []string) {
	sort.Slice(files, func(i, j int) bool {
		return less(files[i], files[j])
	})
}

func less(a, b string) bool {
	da, db := filepath.Dir(a), filepath.Dir(b)
	if da != db {
		return da < db
	}

	ia, ib := instance(a), instance(b)
	if ia != ib {
		return ia < ib
	}

	return a < b
}

// parseDev parses the "major:minor" content of a sysfs dev file.
func parseDev(s string) (uint32, uint32, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("malformed dev number %q", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed major in %q", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed minor in %q", s)
	}

	return uint32(major), uint32(minor), nil
}

// parseHex16 parses PCI ids like "0x8086".
func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed id %q", s)
	}

	return uint16(v), nil
}

// countErrors returns the number of error attributes in an errors/
// directory, not counting the write-only "clear" file.
func countErrors(dir string) uint32 {
	entries, err := os.ReadDir(filepath.Join(dir, "errors"))
	if err != nil {
		return 0
	}

	var n uint32

	for _, e := range entries {
		if e.IsDir() || e.Name() == "clear" {
			continue
		}

		n++
	}

	return n
}
