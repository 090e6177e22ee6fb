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
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	bitstreamGUID1    uint64 = 0x414750466e6f6558
	bitstreamGUID2    uint64 = 0x31303076534247b7
	fileHeaderLength         = 20
	maxMetadataLength        = 4096
)

// Header is the fixed size start of a GBS file.
type Header struct {
	GUID1          uint64
	GUID2          uint64
	MetadataLength uint32
}

// FileGBS is an OPAE green bitstream: a header, JSON metadata and the raw
// partial reconfiguration data.
type FileGBS struct {
	Header
	Metadata Metadata
	// Size is the length of the raw bitstream following the metadata.
	Size   uint64
	closer io.Closer
}

// Metadata is the JSON document embedded in a GBS file. Only the parts
// used to identify the bitstream are decoded.
type Metadata struct {
	Version      int    `json:"version"`
	PlatformName string `json:"platform-name,omitempty"`
	AfuImage     struct {
		MagicNo             int    `json:"magic-no,omitempty"`
		InterfaceUUID       string `json:"interface-uuid,omitempty"`
		Power               int    `json:"power"`
		AcceleratorClusters []struct {
			AcceleratorTypeUUID string `json:"accelerator-type-uuid"`
			Name                string `json:"name"`
			TotalContexts       int    `json:"total-contexts"`
		} `json:"accelerator-clusters"`
	} `json:"afu-image"`
}

// OpenGBS opens and parses a GBS file.
func OpenGBS(name string) (*FileGBS, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ff, err := NewFileGBS(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	ff.closer = f

	return ff, nil
}

// Close closes the underlying file, if any.
func (f *FileGBS) Close() (err error) {
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}

	return
}

// InterfaceUUID returns the FME interface id the bitstream was built for.
func (f *FileGBS) InterfaceUUID() string {
	return canonize(f.Metadata.AfuImage.InterfaceUUID)
}

// AcceleratorTypeUUID returns the id of the AFU in the bitstream.
func (f *FileGBS) AcceleratorTypeUUID() (ret string) {
	if len(f.Metadata.AfuImage.AcceleratorClusters) == 1 {
		ret = canonize(f.Metadata.AfuImage.AcceleratorClusters[0].AcceleratorTypeUUID)
	}

	return
}

// UniqueUUID is the AFU id: a GBS carries exactly one AFU.
func (f *FileGBS) UniqueUUID() string {
	return f.AcceleratorTypeUUID()
}

// ExtraMetadata returns the bitstream size and the platform name.
func (f *FileGBS) ExtraMetadata() map[string]string {
	extra := map[string]string{"Size": strconv.FormatUint(f.Size, 10)}

	if f.Metadata.PlatformName != "" {
		extra["Platform"] = f.Metadata.PlatformName
	}

	return extra
}

type bitstreamReader interface {
	io.ReadSeeker
	io.ReaderAt
}

// NewFileGBS parses a GBS image from r.
func NewFileGBS(r bitstreamReader) (*FileGBS, error) {
	f := new(FileGBS)

	// 1. Read file header
	if err := binary.Read(io.NewSectionReader(r, 0, fileHeaderLength), binary.LittleEndian, &f.Header); err != nil {
		return nil, errors.Wrap(err, "unable to read header")
	}

	// 2. Validate Magic/GUIDs
	if f.GUID1 != bitstreamGUID1 || f.GUID2 != bitstreamGUID2 {
		return nil, errors.Errorf("wrong magic in GBS file: %#x %#x Expected %#x %#x", f.GUID1, f.GUID2, bitstreamGUID1, bitstreamGUID2)
	}

	// 3. Read/unmarshal metadata JSON
	if f.MetadataLength == 0 || f.MetadataLength >= maxMetadataLength {
		return nil, errors.Errorf("incorrect length of GBS metadata %d", f.MetadataLength)
	}

	dec := json.NewDecoder(io.NewSectionReader(r, fileHeaderLength, int64(f.MetadataLength)))
	if err := dec.Decode(&f.Metadata); err != nil {
		return nil, errors.Wrap(err, "unable to parse GBS metadata")
	}

	if afus := len(f.Metadata.AfuImage.AcceleratorClusters); afus != 1 {
		return nil, errors.Errorf("incorrect length of AcceleratorClusters in GBS metadata: %d", afus)
	}

	// 4. The raw bitstream takes the rest of the file
	last, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine file size")
	}

	if last < fileHeaderLength+int64(f.MetadataLength) {
		return nil, errors.Errorf("truncated GBS file: %d bytes", last)
	}

	f.Size = uint64(last - fileHeaderLength - int64(f.MetadataLength))

	return f, nil
}

func canonize(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}
