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
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Enumerator discovers devices of one backend and hands out tokens for
// those that match a filter list.
type Enumerator struct {
	source   DeviceSource
	registry *Registry
}

// NewEnumerator returns an Enumerator over source. Tokens are registered
// in registry; pass nil to get a private one.
func NewEnumerator(source DeviceSource, registry *Registry) *Enumerator {
	if registry == nil {
		registry = NewRegistry()
	}

	return &Enumerator{
		source:   source,
		registry: registry,
	}
}

// Registry returns the token registry the enumerator registers into.
func (e *Enumerator) Registry() *Registry {
	return e.registry
}

// discover walks the backend and prepares the records for matching.
func (e *Enumerator) discover(ctx context.Context) ([]*AttributeRecord, error) {
	if e.source == nil {
		return nil, errors.Wrap(NoDriver, "no device source configured")
	}

	records, err := e.source.Discover(ctx)
	if err != nil {
		if ResultOf(err) == Exception {
			return nil, errors.Wrap(NoDriver, err.Error())
		}

		return nil, err
	}

	valid := records[:0]
	dropped := make(map[*AttributeRecord]bool)

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			klog.V(2).Infof("Skipping malformed record: %v", err)

			dropped[rec] = true

			continue
		}

		if rec.Parent != nil && dropped[rec.Parent] {
			klog.V(2).Infof("Skipping %s: its device was skipped", rec.Location)

			dropped[rec] = true

			continue
		}

		rec.inherit()
		valid = append(valid, rec)
	}

	return valid, nil
}

// Enumerate clones a token into out for every discovered object matching
// at least one of filters, in discovery order, and returns the total
// number of matches. The count may exceed len(out): calling once with an
// empty out sizes the buffer for a second call. An empty filter list
// matches everything.
//
// A failure of the backend walk fails the whole call with a zero count.
// A token that can't be cloned into out is logged and left nil.
func (e *Enumerator) Enumerate(ctx context.Context, filters []*Properties, out []*Token) (int, error) {
	compiled, err := compileFilters(filters)
	if err != nil {
		return 0, err
	}

	records, err := e.discover(ctx)
	if err != nil {
		return 0, err
	}

	matches := 0

	for _, rec := range records {
		canonical := e.registry.registerOrGet(rec.Identity())

		if !matchAny(rec, compiled) {
			continue
		}

		klog.V(4).Infof("Match: %s", canonical)

		if matches < len(out) {
			t, err := canonical.Clone()
			if err != nil {
				klog.Warningf("Unable to clone token for %s: %v", rec.Location, err)
			}

			out[matches] = t
		}

		matches++
	}

	return matches, nil
}

// EnumerateInto follows the C calling convention of fpgaEnumerate: counts
// are passed next to the slices and the match count is written through
// numMatches, which is set to zero before anything else can fail.
func (e *Enumerator) EnumerateInto(ctx context.Context, filters []*Properties, numFilters uint32,
	tokens []*Token, maxTokens uint32, numMatches *uint32) error {
	if numMatches == nil {
		return errors.Wrap(InvalidParam, "numMatches is nil")
	}

	*numMatches = 0

	if maxTokens > 0 && tokens == nil {
		return errors.Wrap(InvalidParam, "maxTokens > 0 with nil tokens")
	}

	if numFilters > 0 && filters == nil {
		return errors.Wrap(InvalidParam, "numFilters > 0 with nil filters")
	}

	if numFilters == 0 && filters != nil {
		return errors.Wrap(InvalidParam, "filters given with numFilters == 0")
	}

	if int(numFilters) > len(filters) {
		return errors.Wrapf(InvalidParam, "numFilters %d exceeds %d filters", numFilters, len(filters))
	}

	if int(maxTokens) > len(tokens) {
		return errors.Wrapf(InvalidParam, "maxTokens %d exceeds token buffer of %d", maxTokens, len(tokens))
	}

	n, err := e.Enumerate(ctx, filters[:numFilters], tokens[:maxTokens])
	if err != nil {
		return err
	}

	*numMatches = uint32(n)

	return nil
}

// findRecord returns the present-day record of the object t refers to.
// A backend that can describe a single location is asked for that one
// only, otherwise the whole backend is walked. The object must still
// have the kind and GUID the token was created with.
func (e *Enumerator) findRecord(ctx context.Context, t *Token) (*AttributeRecord, error) {
	id, err := t.Identity()
	if err != nil {
		return nil, err
	}

	var rec *AttributeRecord

	if d, ok := e.source.(Describer); ok {
		if rec, err = e.describe(ctx, d, id.Location); err != nil {
			return nil, err
		}
	} else {
		records, err := e.discover(ctx)
		if err != nil {
			return nil, err
		}

		key := id.Location.Key()

		for _, r := range records {
			if r.Location.Key() == key {
				rec = r
				break
			}
		}
	}

	if rec == nil {
		return nil, errors.Wrapf(NotFound, "%s is gone", id.Location)
	}

	if rec.ObjType != id.ObjType || rec.GUID != id.GUID {
		return nil, errors.Wrapf(NotFound, "%s now holds %s %s", id.Location, rec.ObjType, rec.GUID)
	}

	return rec, nil
}

// describe reads a single location and checks the record the same way a
// walk does.
func (e *Enumerator) describe(ctx context.Context, d Describer, loc Location) (*AttributeRecord, error) {
	rec, err := d.Describe(ctx, loc)
	if err != nil {
		if ResultOf(err) == Exception {
			return nil, errors.Wrap(NoDriver, err.Error())
		}

		return nil, err
	}

	if rec.Parent != nil {
		if err := rec.Parent.Validate(); err != nil {
			return nil, errors.Wrapf(NotFound, "%s: %v", loc, err)
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, errors.Wrapf(NotFound, "%s: %v", loc, err)
	}

	rec.inherit()

	return rec, nil
}

// fill populates p with rec. The parent token, if any, is taken from the
// registry.
func (e *Enumerator) fill(p *Properties, rec *AttributeRecord) error {
	var (
		parent *Token
		err    error
	)

	if rec.Parent != nil {
		parent, err = e.registry.registerOrGet(rec.Parent.Identity()).Clone()
		if err != nil {
			return err
		}
	}

	if err := p.lockValid(); err != nil {
		if parent != nil {
			_ = parent.Destroy()
		}

		return err
	}
	defer p.mu.Unlock()

	if err := p.populateLocked(rec, parent); err != nil {
		if parent != nil {
			_ = parent.Destroy()
		}

		return err
	}

	return nil
}

// Match is a token together with the properties read in the same walk.
type Match struct {
	Token      *Token
	Properties *Properties
}

// EnumerateProperties walks the backend once and returns a token and its
// properties for every object matching at least one of filters, in
// discovery order. The caller owns the returned tokens and properties.
func (e *Enumerator) EnumerateProperties(ctx context.Context, filters []*Properties) ([]Match, error) {
	compiled, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}

	records, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match

	for _, rec := range records {
		canonical := e.registry.registerOrGet(rec.Identity())

		if !matchAny(rec, compiled) {
			continue
		}

		t, err := canonical.Clone()
		if err != nil {
			klog.Warningf("Unable to clone token for %s: %v", rec.Location, err)
			continue
		}

		p := NewProperties()

		if err := e.fill(p, rec); err != nil {
			klog.Warningf("Unable to read properties of %s: %v", rec.Location, err)

			_ = p.Destroy()
			_ = t.Destroy()

			continue
		}

		matches = append(matches, Match{Token: t, Properties: p})
	}

	return matches, nil
}

// GetProperties returns the properties of the object t refers to. A nil
// token gives an empty Properties object, i.e. a filter matching
// everything.
func (e *Enumerator) GetProperties(ctx context.Context, t *Token) (*Properties, error) {
	p := NewProperties()

	if t == nil {
		return p, nil
	}

	if err := e.UpdateProperties(ctx, t, p); err != nil {
		_ = p.Destroy()
		return nil, err
	}

	return p, nil
}

// UpdateProperties replaces the content of p with the current properties
// of the object t refers to.
func (e *Enumerator) UpdateProperties(ctx context.Context, t *Token, p *Properties) error {
	rec, err := e.findRecord(ctx, t)
	if err != nil {
		return err
	}

	return e.fill(p, rec)
}
