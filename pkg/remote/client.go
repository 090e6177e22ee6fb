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

package remote

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/pkg/opae"
)

// DefaultTimeout bounds one ListDevices call.
const DefaultTimeout = 5 * time.Second

// Source is the DeviceSource of a remote host. Locations carry the host
// name the server reports and the server side remote id.
type Source struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

var _ opae.DeviceSource = (*Source)(nil)

// NewSource wraps an existing connection. A zero timeout means
// DefaultTimeout.
func NewSource(conn grpc.ClientConnInterface, timeout time.Duration) *Source {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Source{
		conn:    conn,
		timeout: timeout,
	}
}

// Dial creates a Source talking to the server at address. The connection
// is established lazily, an unreachable server shows up as NoDaemon on
// Discover.
func Dial(address string, timeout time.Duration, opts ...grpc.DialOption) (*Source, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, errors.Wrapf(opae.InvalidParam, "%s: %v", address, err)
	}

	s := NewSource(conn, timeout)
	s.closer = conn.Close

	return s, nil
}

// Close releases the connection created by Dial.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}

	err := s.closer()
	s.closer = nil

	return errors.WithStack(err)
}

// Discover lists the devices of the remote host. Entries that can't be
// decoded, or whose parent is unknown, are skipped.
func (s *Source) Discover(ctx context.Context) ([]*opae.AttributeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := new(structpb.Struct)

	if err := s.conn.Invoke(ctx, listDevicesMethod, &emptypb.Empty{}, resp); err != nil {
		return nil, errors.Wrap(resultOf(err), err.Error())
	}

	host := resp.GetFields()[keyHost].GetStringValue()
	if host == "" {
		return nil, errors.Wrap(opae.Exception, "remote response without host name")
	}

	parents := make(map[uint64]*opae.AttributeRecord)

	var records []*opae.AttributeRecord

	for _, v := range resp.GetFields()[keyDevices].GetListValue().GetValues() {
		rec, parentID, err := decodeRecord(v.GetStructValue(), host)
		if err != nil {
			klog.V(2).Infof("Skipping remote entry from %s: %v", host, err)
			continue
		}

		if parentID != 0 {
			parent, ok := parents[parentID]
			if !ok {
				klog.V(2).Infof("Skipping %s: unknown parent %d", rec.Location, parentID)
				continue
			}

			rec.Parent = parent
		}

		if rec.ObjType == opae.Device {
			parents[rec.Location.RemoteID] = rec
		}

		records = append(records, rec)
	}

	return records, nil
}
