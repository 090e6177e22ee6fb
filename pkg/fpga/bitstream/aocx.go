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

package bitstream

import (
	"bytes"
	"compress/gzip"
	"debug/elf"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// OpenCLUUID is a special AFU UUID that is used for all OpenCL BSP based FPGA bitstreams.
	OpenCLUUID = "18b79ffa2ee54aa096ef4230dafacb5f"
)

// FileAOCX is an OpenCL kernel image. It wraps a GBS built with the OpenCL
// board support package.
type FileAOCX struct {
	Board   string
	Hash    string
	Target  string
	Version string
	GBS     *FileGBS
	closer  io.Closer
}

// OpenAOCX opens and parses an AOCX file.
func OpenAOCX(name string) (*FileAOCX, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ff, err := NewFileAOCX(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	ff.closer = f

	return ff, nil
}

// Close closes the underlying file, if any.
func (f *FileAOCX) Close() (err error) {
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}

	return
}

func setSection(f *FileAOCX, section *elf.Section) error {
	name := section.SectionHeader.Name
	if name == ".acl.fpga.bin" {
		data, err := section.Data()
		if err != nil {
			return errors.Wrap(err, "unable to read .acl.fpga.bin")
		}

		f.GBS, err = parseFpgaBin(data)
		if err != nil {
			return errors.Wrap(err, "unable to parse gbs")
		}

		return nil
	}

	fieldMap := map[string]*string{
		".acl.board":     &f.Board,
		".acl.rand_hash": &f.Hash,
		".acl.target":    &f.Target,
		".acl.version":   &f.Version,
	}

	if field, ok := fieldMap[name]; ok {
		data, err := section.Data()
		if err != nil {
			return errors.Wrapf(err, "%s: unable to get section data", name)
		}

		*field = strings.TrimSpace(string(data))
	}

	return nil
}

// NewFileAOCX parses an AOCX image from r.
func NewFileAOCX(r io.ReaderAt) (*FileAOCX, error) {
	el, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read header")
	}

	f := new(FileAOCX)

	for _, section := range el.Sections {
		if err := setSection(f, section); err != nil {
			return nil, err
		}
	}

	if f.GBS == nil {
		return nil, errors.New("no .acl.fpga.bin section found")
	}

	return f, nil
}

func parseFpgaBin(d []byte) (*FileGBS, error) {
	gb, err := elf.NewFile(bytes.NewReader(d))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read .acl.fpga.bin")
	}

	gz := gb.Section(".acl.gbs.gz")
	if gz == nil {
		return nil, errors.New("no .acl.gbs.gz section in .acl.fpga.bin")
	}

	gzr, err := gzip.NewReader(gz.Open())
	if err != nil {
		return nil, errors.Wrap(err, "unable to open gzip reader for .acl.gbs.gz")
	}

	b, err := io.ReadAll(gzr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to uncompress .acl.gbs.gz")
	}

	g, err := NewFileGBS(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	if afuUUID := g.AcceleratorTypeUUID(); afuUUID != OpenCLUUID {
		return nil, errors.Errorf("incorrect OpenCL BSP AFU UUID (%s)", afuUUID)
	}

	return g, nil
}

// UniqueUUID returns the kernel hash: all OpenCL images share one AFU id.
func (f *FileAOCX) UniqueUUID() string {
	return f.Hash
}

// InterfaceUUID returns the interface id of the embedded GBS.
func (f *FileAOCX) InterfaceUUID() string {
	return f.GBS.InterfaceUUID()
}

// AcceleratorTypeUUID returns the AFU id of the embedded GBS.
func (f *FileAOCX) AcceleratorTypeUUID() string {
	return f.GBS.AcceleratorTypeUUID()
}

// ExtraMetadata returns the OpenCL board details.
func (f *FileAOCX) ExtraMetadata() map[string]string {
	return map[string]string{
		"Board":   f.Board,
		"Target":  f.Target,
		"Hash":    f.Hash,
		"Version": f.Version,
		"Size":    strconv.FormatUint(f.GBS.Size, 10),
	}
}
