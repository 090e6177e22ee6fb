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
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/opae-sdk-go/internal/config"
	"github.com/intel/opae-sdk-go/internal/devicecache"
	"github.com/intel/opae-sdk-go/pkg/fpga/bitstream"
	"github.com/intel/opae-sdk-go/pkg/opae"
)

const (
	// settleTime collapses the burst of sysfs events of one hotplug.
	settleTime = 500 * time.Millisecond
	// rescanInterval is how often backends are polled while watching.
	rescanInterval = 5 * time.Second
)

type options struct {
	config     string
	bitstream  string
	guid       string
	bus        int
	device     int
	function   int
	socket     int
	watch      bool
	mode       string
	metricsURL string
}

func main() {
	var opts options

	flag.StringVar(&opts.config, "config", "", "Backend configuration file (YAML or JSON)")
	flag.StringVar(&opts.bitstream, "b", "", "Path to bitstream file (GBS or AOCX)")
	flag.StringVar(&opts.guid, "guid", "", "Match FME interface id or AFU id")
	flag.IntVar(&opts.bus, "bus", -1, "Match PCIe bus")
	flag.IntVar(&opts.device, "device", -1, "Match PCIe device")
	flag.IntVar(&opts.function, "function", -1, "Match PCIe function")
	flag.IntVar(&opts.socket, "socket", -1, "Match socket id")
	flag.BoolVar(&opts.watch, "watch", false, "List again whenever the FPGA class directory changes")
	flag.StringVar(&opts.mode, "mode", devicecache.AfMode, "What -watch reports: af (ports by AFU id) or region (FMEs by interface id)")
	flag.StringVar(&opts.metricsURL, "metrics-url", "", "Metrics endpoint of a remote daemon, for the stats command")

	klog.InitFlags(nil)
	flag.Parse()

	if flag.NArg() < 1 {
		klog.Fatal("Please provide command: info, fme, port, list, stats")
	}

	cmd := flag.Arg(0)
	if err := validateFlags(cmd, opts); err != nil {
		klog.Fatalf("Invalid arguments: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, cmd, opts); err != nil {
		klog.Fatalf("%+v", err)
	}
}

func validateFlags(cmd string, opts options) error {
	switch cmd {
	case "info":
		if opts.bitstream == "" {
			return errors.Errorf("bitstream filename is missing")
		}
	case "stats":
		if opts.metricsURL == "" {
			return errors.Errorf("metrics URL is missing")
		}
	case "fme", "port", "list":
		if opts.bitstream != "" && opts.guid != "" {
			return errors.Errorf("-b and -guid can't be used together")
		}
	default:
		return errors.Errorf("unknown command %q", cmd)
	}

	filtered := opts.bitstream != "" || opts.guid != ""

	for name, v := range map[string]int{"bus": opts.bus, "device": opts.device, "function": opts.function, "socket": opts.socket} {
		if v > 0xff {
			return errors.Errorf("-%s out of range: %d", name, v)
		}

		filtered = filtered || v >= 0
	}

	if opts.watch {
		if cmd != "list" || filtered {
			return errors.Errorf("-watch reports every change and takes no filters")
		}

		if opts.mode != devicecache.AfMode && opts.mode != devicecache.RegionMode {
			return errors.Errorf("unknown mode %q", opts.mode)
		}
	}

	return nil
}

func run(ctx context.Context, w io.Writer, cmd string, opts options) error {
	switch cmd {
	case "info":
		return printBitstreamInfo(w, opts.bitstream)
	case "stats":
		return printRemoteStats(ctx, w, opts.metricsURL)
	}

	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}

	src, err := config.NewSource(cfg)
	if err != nil {
		return err
	}

	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	filters, err := buildFilters(cmd, opts)
	if err != nil {
		return err
	}

	defer destroyFilters(filters)

	e := opae.NewEnumerator(src, nil)

	if opts.watch {
		return watchChanges(ctx, w, e, cfg.WatchDir(), opts.mode)
	}

	return list(ctx, w, e, filters)
}

// buildFilters turns the command line into enumeration filters. The fme
// and port commands narrow the object type; a bitstream gives one filter
// per object type.
func buildFilters(cmd string, opts options) ([]*opae.Properties, error) {
	var filters []*opae.Properties

	if opts.bitstream != "" {
		f, err := bitstream.Open(opts.bitstream)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if filters, err = bitstream.Filters(f); err != nil {
			return nil, err
		}
	} else {
		filters = []*opae.Properties{opae.NewProperties()}
	}

	keep := filters[:0]

	for _, p := range filters {
		ok, err := narrow(p, cmd, opts)
		if err != nil {
			destroyFilters(filters)
			return nil, err
		}

		if !ok {
			_ = p.Destroy()
			continue
		}

		keep = append(keep, p)
	}

	if len(keep) == 0 {
		return nil, errors.Wrapf(opae.InvalidParam, "nothing to match for %s", cmd)
	}

	return keep, nil
}

// narrow applies the command line fields to p. It reports false when p
// selects an object type the command excludes.
func narrow(p *opae.Properties, cmd string, opts options) (bool, error) {
	want := map[string]opae.ObjType{"fme": opae.Device, "port": opae.Accelerator}

	if t, ok := want[cmd]; ok {
		cur, err := p.ObjectType()

		switch {
		case err == nil && cur != t:
			return false, nil
		case err != nil:
			if err := p.SetObjectType(t); err != nil {
				return false, err
			}
		}
	}

	if opts.guid != "" {
		g, err := opae.ParseGUID(opts.guid)
		if err != nil {
			return false, err
		}

		if err := p.SetGUID(g); err != nil {
			return false, err
		}
	}

	setters := []struct {
		v   int
		set func(uint8) error
	}{
		{opts.bus, p.SetBus},
		{opts.device, p.SetDevice},
		{opts.function, p.SetFunction},
		{opts.socket, p.SetSocketID},
	}
	for _, s := range setters {
		if s.v < 0 {
			continue
		}

		if err := s.set(uint8(s.v)); err != nil {
			return false, err
		}
	}

	return true, nil
}

func destroyFilters(filters []*opae.Properties) {
	for _, p := range filters {
		_ = p.Destroy()
	}
}

// list prints the properties of every matching object, read in a single
// walk of the backend.
func list(ctx context.Context, w io.Writer, e *opae.Enumerator, filters []*opae.Properties) error {
	matches, err := e.EnumerateProperties(ctx, filters)
	if err != nil {
		return err
	}

	for _, m := range matches {
		printProperties(w, m.Properties)

		_ = m.Properties.Destroy()
		_ = m.Token.Destroy()
	}

	return nil
}

// watchChanges prints what changed after each scan: at start everything
// shows up as added. Scans run periodically and, when dir is set, after
// every change in dir.
func watchChanges(ctx context.Context, w io.Writer, e *opae.Enumerator, dir, mode string) error {
	ch := make(chan devicecache.UpdateInfo)

	cache, err := devicecache.NewCache(e, mode, ch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trigger := make(chan struct{}, 1)
	errCh := make(chan error, 2)

	go func() {
		errCh <- cache.Run(ctx, rescanInterval, trigger)
	}()

	if dir != "" {
		go func() {
			errCh <- watch(ctx, dir, func() error {
				select {
				case trigger <- struct{}{}:
				default:
				}

				return nil
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case update := <-ch:
			printUpdate(w, update)
		}
	}
}

func printUpdate(w io.Writer, update devicecache.UpdateInfo) {
	for _, change := range []struct {
		mark    string
		devices devicecache.DeviceMap
	}{
		{"+", update.Added},
		{"~", update.Updated},
		{"-", update.Removed},
	} {
		ids := make([]string, 0, len(change.devices))
		for id := range change.devices {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		for _, id := range ids {
			keys := make([]string, 0, len(change.devices[id]))
			for key := range change.devices[id] {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			for _, key := range keys {
				info := change.devices[id][key]

				if info.ObjType == opae.Accelerator {
					fmt.Fprintf(w, "%s %s %s %s\n", change.mark, id, info.Location, info.State)
				} else {
					fmt.Fprintf(w, "%s %s %s\n", change.mark, id, info.Location)
				}
			}
		}
	}
}

// watch calls fn after every settled burst of changes in dir, until ctx
// is done.
func watch(ctx context.Context, dir string, fn func() error) error {
	if dir == "" {
		return errors.New("the configured backend can't be watched")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "unable to watch %s", dir)
	}

	klog.V(2).Infof("Watching %s", dir)

	timer := time.NewTimer(settleTime)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-watcher.Events:
			klog.V(4).Infof("%s: %s", ev.Name, ev.Op)
			timer.Reset(settleTime)
		case err := <-watcher.Errors:
			return errors.WithStack(err)
		case <-timer.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func printBitstreamInfo(w io.Writer, fname string) error {
	info, err := bitstream.Open(fname)
	if err != nil {
		return err
	}
	defer info.Close()

	fmt.Fprintf(w, "Bitstream file        : %q\n", fname)
	fmt.Fprintf(w, "Interface UUID        : %q\n", info.InterfaceUUID())
	fmt.Fprintf(w, "Accelerator Type UUID : %q\n", info.AcceleratorTypeUUID())
	fmt.Fprintf(w, "Unique UUID           : %q\n", info.UniqueUUID())

	extra := info.ExtraMetadata()
	if len(extra) > 0 {
		fmt.Fprintln(w, "Extra:")

		for k, v := range extra {
			fmt.Fprintf(w, "\t%s : %q\n", k, v)
		}
	}

	return nil
}

func printProperties(w io.Writer, p *opae.Properties) {
	objType, err := p.ObjectType()
	if err != nil {
		return
	}

	field := func(name, value string) {
		fmt.Fprintf(w, "%-33s: %s\n", name, value)
	}
	hex := func(v uint64, err error) string {
		if err != nil {
			return "N/A"
		}

		return "0x" + strconv.FormatUint(v, 16)
	}

	if objType == opae.Device {
		fmt.Fprintln(w, "//****** FME ******//")
	} else {
		fmt.Fprintln(w, "//****** PORT ******//")
	}

	objectID, err := p.ObjectID()
	field("Object Id", hex(objectID, err))

	segment, _ := p.Segment()
	bus, _ := p.Bus()
	dev, _ := p.Device()
	fn, _ := p.Function()
	field("PCIe s:b:d.f", fmt.Sprintf("%04x:%02x:%02x.%d", segment, bus, dev, fn))

	vendor, err := p.VendorID()
	field("Vendor Id", hex(uint64(vendor), err))

	device, err := p.DeviceID()
	field("Device Id", hex(uint64(device), err))

	socket, err := p.SocketID()
	field("Socket Id", hex(uint64(socket), err))

	numErrors, _ := p.NumErrors()
	field("Errors", strconv.FormatUint(uint64(numErrors), 10))

	guid, _ := p.GUID()

	if objType == opae.Device {
		slots, _ := p.NumSlots()
		field("Ports Num", strconv.FormatUint(uint64(slots), 10))

		bbsID, err := p.BBSID()
		field("Bitstream Id", hex(bbsID, err))

		if v, err := p.BBSVersion(); err == nil {
			field("Bitstream Version", v.String())
		}

		field("Pr Interface Id", guid.String())
	} else {
		field("Accelerator Id", guid.String())

		if state, err := p.AcceleratorState(); err == nil {
			field("Accelerator State", state.String())
		}

		mmio, _ := p.NumMMIO()
		field("Num MMIO", strconv.FormatUint(uint64(mmio), 10))

		irqs, _ := p.NumInterrupts()
		field("Num Interrupts", strconv.FormatUint(uint64(irqs), 10))
	}

	fmt.Fprintln(w)
}
