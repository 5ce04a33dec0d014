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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const historySuffix = ".jsonl"

// Record is one write kept in a FileStore history file.
type Record struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FileStore keeps every write to a name in an append-only JSON-lines file.
// Read returns the newest record.
type FileStore struct {
	BasePath string
	mu       sync.Mutex
}

var _ Store = &FileStore{}

// NewFileStore creates a FileStore rooted at basePath, creating the directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("file store requires a directory")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, &StorageError{Op: "open", Name: basePath, Err: err}
	}
	return &FileStore{BasePath: basePath}, nil
}

// HistoryPath returns the path of the history file for name.
func (s *FileStore) HistoryPath(name string) string {
	return filepath.Join(s.BasePath, url.PathEscape(name)+historySuffix)
}

func (s *FileStore) Read(_ context.Context, name string) (string, error) {
	records, err := s.History(name)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", notFound(name)
	}
	return records[len(records)-1].Content, nil
}

func (s *FileStore) Write(_ context.Context, name, contents string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.HistoryPath(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &StorageError{Op: "write", Name: name, Err: err}
	}
	defer f.Close()

	b, err := json.Marshal(&Record{Name: name, Content: contents, Timestamp: time.Now()})
	if err != nil {
		return &StorageError{Op: "write", Name: name, Err: err}
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return &StorageError{Op: "write", Name: name, Err: err}
	}
	return nil
}

// History returns every record written under name, oldest first.
func (s *FileStore) History(name string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.HistoryPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(name)
		}
		return nil, &StorageError{Op: "read", Name: name, Err: err}
	}
	defer f.Close()

	var records []*Record
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			return nil, &StorageError{Op: "read", Name: name, Err: err}
		}
		records = append(records, &record)
	}
	return records, nil
}
