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

package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/internal/config"
	"github.com/intel/opae-sdk-go/pkg/remote"
)

const (
	shutdownTimeout = 5 * time.Second
)

type daemon struct {
	grpcServer *grpc.Server
	httpServer *http.Server
}

func newDaemon(cfg *config.Config, host, metricsAddr string) (*daemon, error) {
	if cfg.Backend == config.BackendRemote {
		return nil, errors.New("the remote backend can't be re-exported")
	}

	src, err := config.NewSource(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d := &daemon{
		grpcServer: grpc.NewServer(),
	}

	remote.RegisterEnumerationServer(d.grpcServer, remote.NewServer(src, nil, host, remote.NewMetrics(reg)))

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		d.httpServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return d, nil
}

// serve runs until ctx is done or a listener fails.
func (d *daemon) serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- errors.Wrap(d.grpcServer.Serve(lis), "gRPC server")
	}()

	if d.httpServer != nil {
		go func() {
			if err := d.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrap(err, "metrics server")
			}
		}()
	}

	var err error

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	d.grpcServer.GracefulStop()

	if d.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if serr := d.httpServer.Shutdown(shutdownCtx); serr != nil {
			klog.Warningf("Metrics server shutdown: %v", serr)
		}
	}

	return err
}

func main() {
	var (
		configFile  string
		listenAddr  string
		metricsAddr string
		host        string
	)

	flag.StringVar(&configFile, "config", "", "Backend configuration file (YAML or JSON)")
	flag.StringVar(&listenAddr, "listen", ":3334", "Address the enumeration service listens on")
	flag.StringVar(&metricsAddr, "metrics", ":9101", "Address of the /metrics endpoint, empty to disable")
	flag.StringVar(&host, "host", "", "Host name reported to clients (default: system host name)")

	klog.InitFlags(nil)
	flag.Parse()

	if host == "" {
		var err error
		if host, err = os.Hostname(); err != nil {
			klog.Fatalf("Unable to get host name: %+v", err)
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		klog.Fatalf("%+v", err)
	}

	d, err := newDaemon(cfg, host, metricsAddr)
	if err != nil {
		klog.Fatalf("%+v", err)
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		klog.Fatalf("Unable to listen on %s: %+v", listenAddr, err)
	}

	klog.Infof("Exporting %s devices of %s on %s", cfg.Backend, host, lis.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.serve(ctx, lis); err != nil {
		klog.Fatalf("%+v", err)
	}
}
