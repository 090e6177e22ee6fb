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

// Package config selects and builds the device source a command uses.
package config

import (
	"os"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/intel/opae-sdk-go/pkg/ase"
	"github.com/intel/opae-sdk-go/pkg/fpga"
	"github.com/intel/opae-sdk-go/pkg/opae"
	"github.com/intel/opae-sdk-go/pkg/remote"
)

// Backend names.
const (
	BackendSysfs  = "sysfs"
	BackendASE    = "ase"
	BackendRemote = "remote"
)

// Config is the backend configuration file. Both YAML and JSON are
// accepted.
type Config struct {
	Backend string       `json:"backend"`
	Sysfs   SysfsConfig  `json:"sysfs"`
	ASE     ASEConfig    `json:"ase"`
	Remote  RemoteConfig `json:"remote"`
}

// SysfsConfig configures the sysfs backend.
type SysfsConfig struct {
	// Root is the directory sys/ is found under.
	Root  string `json:"root"`
	Devfs string `json:"devfs"`
	// Probe enables the exclusive open check of accelerator ports.
	Probe *bool `json:"probe,omitempty"`
}

// ASEConfig configures the simulation backend.
type ASEConfig struct {
	// Config is an optional ase.cfg file.
	Config string `json:"config,omitempty"`
}

// RemoteConfig configures the remote backend.
type RemoteConfig struct {
	Address string          `json:"address"`
	Timeout metav1.Duration `json:"timeout"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Backend: BackendSysfs,
		Sysfs: SysfsConfig{
			Root:  "/",
			Devfs: "/dev",
			Probe: ptr.To(true),
		},
		Remote: RemoteConfig{
			Timeout: metav1.Duration{Duration: remote.DefaultTimeout},
		},
	}
}

// Load reads fname over the defaults. An empty name gives Default().
func Load(fname string) (*Config, error) {
	cfg := Default()

	if fname == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config")
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(opae.InvalidParam, "%s: %v", fname, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, fname)
	}

	return cfg, nil
}

// Validate checks the settings of the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSysfs:
		if c.Sysfs.Root == "" || c.Sysfs.Devfs == "" {
			return errors.Wrap(opae.InvalidParam, "sysfs backend needs root and devfs")
		}
	case BackendASE:
	case BackendRemote:
		if c.Remote.Address == "" {
			return errors.Wrap(opae.InvalidParam, "remote backend needs an address")
		}

		if c.Remote.Timeout.Duration < 0 {
			return errors.Wrapf(opae.InvalidParam, "negative remote timeout %v", c.Remote.Timeout.Duration)
		}
	default:
		return errors.Wrapf(opae.InvalidParam, "unknown backend %q", c.Backend)
	}

	return nil
}

// NewSource builds the device source of the selected backend. The remote
// source holds a connection; it implements io.Closer.
func NewSource(c *Config) (opae.DeviceSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	klog.V(2).Infof("Using %s backend", c.Backend)

	switch c.Backend {
	case BackendASE:
		cfg := ase.DefaultConfig()

		if c.ASE.Config != "" {
			var err error
			if cfg, err = ase.LoadConfig(c.ASE.Config); err != nil {
				return nil, err
			}
		}

		return ase.NewSource(cfg), nil
	case BackendRemote:
		timeout := c.Remote.Timeout.Duration
		if timeout == 0 {
			timeout = remote.DefaultTimeout
		}

		src, err := remote.Dial(c.Remote.Address, timeout)
		if err != nil {
			return nil, err
		}

		return src, nil
	}

	var opts []fpga.Option

	if c.Sysfs.Probe != nil && !*c.Sysfs.Probe {
		opts = append(opts, fpga.WithProber(fpga.NoProbe))
	}

	return fpga.NewSource(c.Sysfs.Root, c.Sysfs.Devfs, opts...), nil
}

// WatchDir is the directory whose changes mean the device list may have
// changed, or "" when the backend has none.
func (c *Config) WatchDir() string {
	if c.Backend != BackendSysfs {
		return ""
	}

	return fpga.ClassDir(c.Sysfs.Root)
}
