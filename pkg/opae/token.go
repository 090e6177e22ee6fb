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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	tokenMagic     uint64 = 0x46504741544f4b4e // "FPGATOKN"
	destroyedMagic uint64 = 0xdeadbeefdeadbeef
)

// Location is the backend specific address of a device node. The sysfs
// and simulation backends fill Path (and DevPath when a device node
// exists), the remote backend fills Host and RemoteID.
type Location struct {
	Path     string
	DevPath  string
	Host     string
	RemoteID uint64
}

// Key returns the canonical registry key of the location.
func (l Location) Key() string {
	if l.Host != "" {
		return fmt.Sprintf("%s#%d", l.Host, l.RemoteID)
	}

	return l.Path
}

func (l Location) String() string {
	if l.Host != "" {
		return l.Key()
	}

	if l.DevPath != "" {
		return l.Path + " (" + l.DevPath + ")"
	}

	return l.Path
}

// Identity is what makes two tokens refer to the same device.
type Identity struct {
	ObjType  ObjType
	GUID     GUID
	Location Location
}

// Token is an opaque handle to one discovered device or accelerator.
// Tokens are only created by a Registry, either during enumeration or by
// cloning an existing token, and stay valid until Destroy is called.
type Token struct {
	magic  atomic.Uint64
	id     Identity
	serial uint64
}

func newToken(id Identity, serial uint64) *Token {
	t := &Token{id: id, serial: serial}
	t.magic.Store(tokenMagic)

	return t
}

func (t *Token) validate() error {
	if t == nil {
		return errors.Wrap(InvalidParam, "token is nil")
	}

	if t.magic.Load() != tokenMagic {
		return errors.Wrap(InvalidParam, "invalid token magic")
	}

	return nil
}

// Clone returns an independent copy of the token.
func (t *Token) Clone() (*Token, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	return newToken(t.id, t.serial), nil
}

// Destroy invalidates the token. Any later use of it, including a second
// Destroy, fails with InvalidParam.
func (t *Token) Destroy() error {
	if t == nil {
		return errors.Wrap(InvalidParam, "token is nil")
	}

	if !t.magic.CompareAndSwap(tokenMagic, destroyedMagic) {
		return errors.Wrap(InvalidParam, "token already destroyed or invalid")
	}

	return nil
}

// Identity returns the (kind, GUID, location) tuple of the token.
func (t *Token) Identity() (Identity, error) {
	if err := t.validate(); err != nil {
		return Identity{}, err
	}

	return t.id, nil
}

// ObjType returns the kind of object the token refers to.
func (t *Token) ObjType() (ObjType, error) {
	if err := t.validate(); err != nil {
		return Device, err
	}

	return t.id.ObjType, nil
}

// GUID returns the interface GUID (devices) or AFU GUID (accelerators)
// the token was created with.
func (t *Token) GUID() (GUID, error) {
	if err := t.validate(); err != nil {
		return GUID{}, err
	}

	return t.id.GUID, nil
}

// Location returns where the backend found the object.
func (t *Token) Location() (Location, error) {
	if err := t.validate(); err != nil {
		return Location{}, err
	}

	return t.id.Location, nil
}

// Serial returns the append-only sequence number the registry gave the
// token's location.
func (t *Token) Serial() uint64 {
	return t.serial
}

// SameDevice reports whether both tokens are valid and refer to the same
// object.
func (t *Token) SameDevice(o *Token) bool {
	if t.validate() != nil || o.validate() != nil {
		return false
	}

	return t.id == o.id
}

func (t *Token) String() string {
	if t.validate() != nil {
		return "<invalid token>"
	}

	return fmt.Sprintf("%s %s at %s", t.id.ObjType, t.id.GUID, t.id.Location)
}

// Registry keeps one canonical token per location for as long as the
// registry lives. Entries are never removed: a location seen once stays
// resolvable, which is what parent lookups rely on.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Token
	next    uint64
}

// NewRegistry returns an empty token registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Token),
	}
}

// registerOrGet returns the canonical token for id.Location. When the
// identity stored for that location differs (the accelerator was
// reprogrammed), the entry is replaced but keeps its serial.
func (r *Registry) registerOrGet(id Identity) *Token {
	key := id.Location.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.entries[key]; ok {
		if t.id == id {
			return t
		}

		t = newToken(id, t.serial)
		r.entries[key] = t

		return t
	}

	r.next++
	t := newToken(id, r.next)
	r.entries[key] = t

	return t
}

// RegisterOrGet returns a token for id, adding the location to the
// registry on first sight. The returned token is a clone owned by the
// caller.
func (r *Registry) RegisterOrGet(id Identity) (*Token, error) {
	if id.Location.Key() == "" {
		return nil, errors.Wrap(InvalidParam, "empty location")
	}

	return r.registerOrGet(id).Clone()
}

// lookup returns the canonical token stored under key.
func (r *Registry) lookup(key string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.entries[key]

	return t, ok
}

// Lookup returns a clone of the token registered for the location key.
func (r *Registry) Lookup(key string) (*Token, error) {
	t, ok := r.lookup(key)
	if !ok {
		return nil, errors.Wrapf(NotFound, "no token registered for %q", key)
	}

	return t.Clone()
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
