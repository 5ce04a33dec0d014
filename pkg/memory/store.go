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

// Package memory holds the named-blob stores that callback functions read
// from and write to.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Read when nothing is stored under a name.
var ErrNotFound = errors.New("no entry stored")

// Store is a named-blob key/value store. Writes overwrite the previous value;
// concurrent writers are resolved by the backend (last writer wins).
type Store interface {
	// Read returns the most recent content stored under name.
	Read(ctx context.Context, name string) (string, error)

	// Write stores contents under name.
	Write(ctx context.Context, name, contents string) error
}

// StorageError reports a failure of the underlying store.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("memory %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func notFound(name string) error {
	return fmt.Errorf("reading %q: %w", name, ErrNotFound)
}

// Open builds a store from a URI.
//
//	""  or memory://      in-process map
//	file:///some/dir      one history file per name under the directory
//	redis://host:port/db  keys in Redis
//
// A URI without a scheme is treated as a directory path.
func Open(ctx context.Context, uri string) (Store, error) {
	if uri == "" {
		return NewInMemoryStore(), nil
	}
	if !strings.Contains(uri, "://") {
		return NewFileStore(uri)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing memory store uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "memory":
		return NewInMemoryStore(), nil
	case "file":
		return NewFileStore(u.Path)
	case "redis", "rediss":
		return NewRedisStore(ctx, uri)
	default:
		return nil, fmt.Errorf("memory store scheme %q not supported", u.Scheme)
	}
}
