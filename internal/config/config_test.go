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

package config

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/intel/opae-sdk-go/pkg/ase"
	"github.com/intel/opae-sdk-go/pkg/fpga"
	"github.com/intel/opae-sdk-go/pkg/opae"
	"github.com/intel/opae-sdk-go/pkg/remote"
)

func init() {
	_ = flag.Set("v", "4") //Enable debug output
}

func TestLoad(t *testing.T) {
	tcases := []struct {
		name        string
		content     string
		expected    func(*Config)
		expectedErr bool
	}{
		{
			name:     "empty file",
			expected: func(*Config) {},
		},
		{
			name: "sysfs YAML",
			content: `backend: sysfs
sysfs:
  root: /host
  devfs: /host/dev
  probe: false
`,
			expected: func(c *Config) {
				c.Sysfs = SysfsConfig{Root: "/host", Devfs: "/host/dev", Probe: ptr.To(false)}
			},
		},
		{
			name:    "remote JSON",
			content: `{"backend": "remote", "remote": {"address": "fpga-host:3334", "timeout": "2s"}}`,
			expected: func(c *Config) {
				c.Backend = BackendRemote
				c.Remote = RemoteConfig{Address: "fpga-host:3334", Timeout: metav1.Duration{Duration: 2 * time.Second}}
			},
		},
		{
			name:    "ase",
			content: "backend: ase\nase:\n  config: /etc/ase.cfg\n",
			expected: func(c *Config) {
				c.Backend = BackendASE
				c.ASE.Config = "/etc/ase.cfg"
			},
		},
		{
			name:        "unknown backend",
			content:     "backend: opencl\n",
			expectedErr: true,
		},
		{
			name:        "unknown key",
			content:     "backend: sysfs\nsysfs:\n  rooot: /\n",
			expectedErr: true,
		},
		{
			name:        "remote without address",
			content:     "backend: remote\n",
			expectedErr: true,
		},
		{
			name:        "malformed timeout",
			content:     "backend: remote\nremote:\n  address: h:1\n  timeout: soon\n",
			expectedErr: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(t.TempDir(), "opae.yaml")
			if err := os.WriteFile(fname, []byte(tc.content), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(fname)
			if tc.expectedErr {
				if !opae.IsResult(err, opae.InvalidParam) {
					t.Errorf("expected InvalidParam, got %v", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}

			expected := Default()
			tc.expected(expected)

			if diff := cmp.Diff(expected, cfg); diff != "" {
				t.Errorf("unexpected config (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("unexpected success for missing file")
	}
}

func TestNewSource(t *testing.T) {
	aseCfg := filepath.Join(t.TempDir(), "ase.cfg")
	if err := os.WriteFile(aseCfg, []byte("BUS = 0x3b\n"), 0600); err != nil {
		t.Fatal(err)
	}

	tcases := []struct {
		name        string
		cfg         func(*Config)
		check       func(*testing.T, opae.DeviceSource)
		expectedErr bool
	}{
		{
			name: "sysfs",
			cfg:  func(*Config) {},
			check: func(t *testing.T, src opae.DeviceSource) {
				if _, ok := src.(*fpga.Source); !ok {
					t.Errorf("unexpected source %T", src)
				}
			},
		},
		{
			name: "ase with config file",
			cfg: func(c *Config) {
				c.Backend = BackendASE
				c.ASE.Config = aseCfg
			},
			check: func(t *testing.T, src opae.DeviceSource) {
				if _, ok := src.(*ase.Source); !ok {
					t.Fatalf("unexpected source %T", src)
				}

				e := opae.NewEnumerator(src, nil)

				filter := opae.NewProperties()
				if err := filter.SetBus(0x3b); err != nil {
					t.Fatal(err)
				}

				if n, err := e.Enumerate(context.Background(), []*opae.Properties{filter}, nil); err != nil || n != 2 {
					t.Errorf("expected 2 nodes on bus 0x3b, got %d (%v)", n, err)
				}
			},
		},
		{
			name: "ase with broken config file",
			cfg: func(c *Config) {
				c.Backend = BackendASE
				c.ASE.Config = filepath.Join(t.TempDir(), "missing.cfg")
			},
			expectedErr: true,
		},
		{
			name: "remote",
			cfg: func(c *Config) {
				c.Backend = BackendRemote
				c.Remote.Address = "localhost:3334"
			},
			check: func(t *testing.T, src opae.DeviceSource) {
				r, ok := src.(*remote.Source)
				if !ok {
					t.Fatalf("unexpected source %T", src)
				}

				if err := r.Close(); err != nil {
					t.Error(err)
				}
			},
		},
		{
			name:        "invalid",
			cfg:         func(c *Config) { c.Backend = "" },
			expectedErr: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.cfg(cfg)

			src, err := NewSource(cfg)
			if tc.expectedErr {
				if err == nil {
					t.Error("unexpected success")
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}

			tc.check(t, src)
		})
	}
}

func TestWatchDir(t *testing.T) {
	cfg := Default()
	cfg.Sysfs.Root = t.TempDir()

	if err := os.MkdirAll(filepath.Join(cfg.Sysfs.Root, "sys/class/fpga"), 0750); err != nil {
		t.Fatal(err)
	}

	if dir := cfg.WatchDir(); dir != filepath.Join(cfg.Sysfs.Root, "sys/class/fpga") {
		t.Errorf("unexpected watch dir %q", dir)
	}

	cfg.Backend = BackendASE

	if dir := cfg.WatchDir(); dir != "" {
		t.Errorf("unexpected watch dir %q for ase", dir)
	}
}
