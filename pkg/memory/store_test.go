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
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStores(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		newStore func(t *testing.T) Store
	}{
		{
			name: "in memory",
			newStore: func(t *testing.T) Store {
				return NewInMemoryStore()
			},
		},
		{
			name: "file",
			newStore: func(t *testing.T) Store {
				s, err := NewFileStore(t.TempDir())
				if err != nil {
					t.Fatalf("creating file store: %v", err)
				}
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.newStore(t)

			if _, err := s.Read(ctx, "missing.txt"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing name, got %v", err)
			}

			if err := s.Write(ctx, "notes/plan.md", "first"); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := s.Write(ctx, "notes/plan.md", "second\nline"); err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := s.Read(ctx, "notes/plan.md")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got != "second\nline" {
				t.Errorf("expected last write to win, got %q", got)
			}
		})
	}
}

func TestFileStoreHistory(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating file store: %v", err)
	}

	for _, c := range []string{"a", "b", "c"} {
		if err := s.Write(ctx, "log", c); err != nil {
			t.Fatalf("write %q: %v", c, err)
		}
	}

	records, err := s.History("log")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Content != "a" || records[2].Content != "c" {
		t.Errorf("unexpected record order: %q, %q", records[0].Content, records[2].Content)
	}
}

func TestFileStoreCorruptHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("creating file store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad"+historySuffix), []byte("{not json\n"), 0644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	_, err = s.Read(ctx, "bad")
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "read" {
		t.Errorf("expected op read, got %q", storageErr.Op)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		uri         string
		expectType  string
		expectError bool
	}{
		{uri: "", expectType: "*memory.InMemoryStore"},
		{uri: "memory://", expectType: "*memory.InMemoryStore"},
		{uri: "file://" + dir, expectType: "*memory.FileStore"},
		{uri: dir, expectType: "*memory.FileStore"},
		{uri: "s3://bucket", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			s, err := Open(ctx, tt.uri)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := typeName(s); got != tt.expectType {
				t.Errorf("expected %s, got %s", tt.expectType, got)
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *InMemoryStore:
		return "*memory.InMemoryStore"
	case *FileStore:
		return "*memory.FileStore"
	case *RedisStore:
		return "*memory.RedisStore"
	}
	return "unknown"
}
