// Copyright 2025 Edgeo SCADA
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

package opcua

import (
	"fmt"
	"sync"
)

// NamespaceZero is the URI of the OPC UA base namespace.
const NamespaceZero = "http://opcfoundation.org/UA/"

// ExtensionDecodeFunc decodes the body of an extension object whose binary
// encoding id was registered. The decoder is bounded to the body bytes.
type ExtensionDecodeFunc func(d *Decoder) (interface{}, error)

// TypeRegistry holds the namespace table and the structured types a decoder
// may resolve. It is passed explicitly to every Decoder that needs it.
type TypeRegistry struct {
	mu         sync.RWMutex
	namespaces []string
	decoders   map[string]ExtensionDecodeFunc
	names      map[string]string
}

// NewTypeRegistry creates a registry with namespace 0 preloaded.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		namespaces: []string{NamespaceZero},
		decoders:   make(map[string]ExtensionDecodeFunc),
		names:      make(map[string]string),
	}
}

// AddNamespace appends uri to the namespace table if absent and returns its index.
func (r *TypeRegistry) AddNamespace(uri string) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ns := range r.namespaces {
		if ns == uri {
			return uint16(i)
		}
	}
	r.namespaces = append(r.namespaces, uri)
	return uint16(len(r.namespaces) - 1)
}

// NamespaceIndex resolves a namespace URI.
func (r *TypeRegistry) NamespaceIndex(uri string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, ns := range r.namespaces {
		if ns == uri {
			return uint16(i), true
		}
	}
	return 0, false
}

// NamespaceURI returns the URI registered at idx.
func (r *TypeRegistry) NamespaceURI(idx uint16) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(idx) >= len(r.namespaces) {
		return "", false
	}
	return r.namespaces[idx], true
}

// Register binds a binary encoding id to a body decoder.
func (r *TypeRegistry) Register(encodingID NodeID, name string, fn ExtensionDecodeFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil decoder for %s", StatusBadInvalidArgument, encodingID.Key())
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := encodingID.Key()
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("%w: encoding %s already registered", StatusBadInvalidArgument, key)
	}
	r.decoders[key] = fn
	r.names[key] = name
	return nil
}

// Lookup returns the decoder registered for encodingID.
func (r *TypeRegistry) Lookup(encodingID NodeID) (ExtensionDecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.decoders[encodingID.Key()]
	return fn, ok
}

// TypeName returns the name a type was registered under.
func (r *TypeRegistry) TypeName(encodingID NodeID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.names[encodingID.Key()]
}
