// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a Store backed by a map. It is safe for concurrent use.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]string
}

var _ Store = &InMemoryStore{}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blobs: make(map[string]string),
	}
}

func (s *InMemoryStore) Read(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contents, ok := s.blobs[name]
	if !ok {
		return "", notFound(name)
	}
	return contents, nil
}

func (s *InMemoryStore) Write(_ context.Context, name, contents string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = contents
	return nil
}

// Names returns the stored names in no particular order.
func (s *InMemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	return names
}
