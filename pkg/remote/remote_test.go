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
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/intel/opae-sdk-go/pkg/ase"
	"github.com/intel/opae-sdk-go/pkg/opae"
)

type failingSource struct {
	err error
}

func (f failingSource) Discover(context.Context) ([]*opae.AttributeRecord, error) {
	return nil, f.err
}

type testServer struct {
	lis     *bufconn.Listener
	grpc    *grpc.Server
	metrics *Metrics
	client  *Source
}

func startServer(source opae.DeviceSource) *testServer {
	ts := &testServer{
		lis:     bufconn.Listen(1 << 20),
		grpc:    grpc.NewServer(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}

	RegisterEnumerationServer(ts.grpc, NewServer(source, nil, "fpga-host", ts.metrics))

	go func() {
		defer GinkgoRecover()
		Expect(ts.grpc.Serve(ts.lis)).To(Succeed())
	}()

	client, err := Dial("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ts.lis.DialContext(ctx)
		}))
	Expect(err).NotTo(HaveOccurred())

	ts.client = client

	return ts
}

func (ts *testServer) stop() {
	Expect(ts.client.Close()).To(Succeed())
	ts.grpc.Stop()
}

var _ = Describe("Remote backend", func() {
	var (
		ts  *testServer
		ctx context.Context
		cfg ase.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = ase.DefaultConfig()
		cfg.SocketID = 1
		cfg.NumInterrupts = 3
	})

	AfterEach(func() {
		if ts != nil {
			ts.stop()
			ts = nil
		}
	})

	Context("exporting the simulated device", func() {
		BeforeEach(func() {
			ts = startServer(ase.NewSource(cfg))
		})

		It("lists the FME before its port", func() {
			recs, err := ts.client.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(HaveLen(2))

			fme, port := recs[0], recs[1]

			Expect(fme.ObjType).To(Equal(opae.Device))
			Expect(fme.GUID).To(Equal(cfg.FMEID))
			Expect(fme.Location.Host).To(Equal("fpga-host"))
			Expect(fme.SocketID).To(Equal(uint8(1)))
			Expect(fme.Fpga.BBSID).To(Equal(ase.DefaultBBSID))
			Expect(fme.Fpga.BBSVersion).To(Equal(opae.BBSVersionFromID(ase.DefaultBBSID)))

			Expect(port.ObjType).To(Equal(opae.Accelerator))
			Expect(port.GUID).To(Equal(cfg.AFUID))
			Expect(port.Parent).To(BeIdenticalTo(fme))
			Expect(port.Accel.State).To(Equal(opae.Unassigned))
			Expect(port.Accel.NumMMIO).To(Equal(cfg.NumMMIO))
			Expect(port.Accel.NumInterrupts).To(Equal(uint32(3)))
		})

		It("keeps remote ids stable across calls", func() {
			first, err := ts.client.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			second, err := ts.client.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(HaveLen(len(first)))

			for i := range first {
				Expect(second[i].Location).To(Equal(first[i].Location))
			}

			Expect(first[0].Location.Key()).NotTo(Equal(first[1].Location.Key()))
		})

		It("serves an enumerator", func() {
			e := opae.NewEnumerator(ts.client, nil)

			n, err := e.Enumerate(ctx, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			fmes := make([]*opae.Token, 1)
			filter := opae.NewProperties()
			Expect(filter.SetObjectType(opae.Device)).To(Succeed())

			n, err = e.Enumerate(ctx, []*opae.Properties{filter}, fmes)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			byParent := opae.NewProperties()
			Expect(byParent.SetParent(fmes[0])).To(Succeed())

			ports := make([]*opae.Token, 1)
			n, err = e.Enumerate(ctx, []*opae.Properties{byParent}, ports)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			props, err := e.GetProperties(ctx, ports[0])
			Expect(err).NotTo(HaveOccurred())

			socket, err := props.SocketID()
			Expect(err).NotTo(HaveOccurred())
			Expect(socket).To(Equal(uint8(1)))
		})

		It("counts requests and records", func() {
			_, err := ts.client.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.ToFloat64(ts.metrics.requests.WithLabelValues(opae.OK.Error()))).To(Equal(1.0))
			Expect(testutil.ToFloat64(ts.metrics.records)).To(Equal(2.0))
		})
	})

	Context("exporting a broken source", func() {
		It("passes NoDriver through", func() {
			ts = startServer(failingSource{err: errors.Wrap(opae.NoDriver, "no fpga class")})

			_, err := ts.client.Discover(ctx)
			Expect(opae.ResultOf(err)).To(Equal(opae.NoDriver))
			Expect(testutil.ToFloat64(ts.metrics.requests.WithLabelValues(opae.NoDriver.Error()))).To(Equal(1.0))
		})

		It("reports an unexpected failure as an exception", func() {
			ts = startServer(failingSource{err: errors.New("boom")})

			_, err := ts.client.Discover(ctx)
			Expect(opae.ResultOf(err)).To(Equal(opae.Exception))
		})
	})

	Context("without a server", func() {
		It("fails with NoDaemon", func() {
			lis := bufconn.Listen(1024)
			Expect(lis.Close()).To(Succeed())

			client, err := Dial("passthrough:///bufnet", 200*time.Millisecond,
				grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
					return lis.DialContext(ctx)
				}))
			Expect(err).NotTo(HaveOccurred())

			defer client.Close()

			_, err = client.Discover(ctx)
			Expect(opae.ResultOf(err)).To(Equal(opae.NoDaemon))
		})
	})
})
