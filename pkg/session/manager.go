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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"sigs.k8s.io/yaml"
)

const (
	sessionsDirName  = "sessions"
	timeFormat       = "20060102"
	dataFileName     = "session.json"
	metadataFileName = "metadata.yaml"
)

// ErrSessionNotFound is returned when no stored session has the requested ID.
var ErrSessionNotFound = errors.New("session not found")

// Metadata describes a stored session.
type Metadata struct {
	ModelID      string    `json:"modelID"`
	Mode         Mode      `json:"mode"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Stored is a session directory managed by a Manager.
type Stored struct {
	ID   string
	Path string
}

// DataPath returns the path to the serialized session.
func (s *Stored) DataPath() string {
	return filepath.Join(s.Path, dataFileName)
}

// MetadataPath returns the path to the metadata file for the session.
func (s *Stored) MetadataPath() string {
	return filepath.Join(s.Path, metadataFileName)
}

// LoadMetadata loads the metadata for the session.
func (s *Stored) LoadMetadata() (*Metadata, error) {
	b, err := os.ReadFile(s.MetadataPath())
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing metadata for session %q: %w", s.ID, err)
	}
	return &m, nil
}

// SaveMetadata saves the metadata for the session.
func (s *Stored) SaveMetadata(m *Metadata) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(s.MetadataPath(), b, 0644)
}

func (s *Stored) String() string {
	m, err := s.LoadMetadata()
	if err != nil {
		return s.ID
	}
	return fmt.Sprintf("%s\tmodel=%s\tcreated=%s\tlast-accessed=%s",
		s.ID,
		m.ModelID,
		m.CreatedAt.Format("2006-01-02 15:04:05"),
		m.LastAccessed.Format("2006-01-02 15:04:05"))
}

// Manager stores serialized sessions, one directory per session ID.
type Manager struct {
	BasePath string
}

// NewManager creates a Manager rooted at basePath, or at ~/.kbai/sessions
// when basePath is empty.
func NewManager(basePath string) (*Manager, error) {
	if basePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(homeDir, ".kbai", sessionsDirName)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &Manager{
		BasePath: basePath,
	}, nil
}

// NewID returns a fresh session ID with a date prefix.
func NewID() string {
	return time.Now().Format(timeFormat) + "-" + strings.Split(uuid.NewString(), "-")[0]
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// Save writes the session under id, creating the session directory on first
// use. An empty id allocates a new one. The ID used is returned.
func (sm *Manager) Save(s *Session, id string) (string, error) {
	if id == "" {
		id = NewID()
	}
	if err := validateID(id); err != nil {
		return "", err
	}
	stored := &Stored{ID: id, Path: filepath.Join(sm.BasePath, id)}
	if err := os.MkdirAll(stored.Path, 0755); err != nil {
		return "", err
	}

	b, err := json.MarshalIndent(s.Serialize(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling session: %w", err)
	}
	if err := os.WriteFile(stored.DataPath(), b, 0644); err != nil {
		return "", fmt.Errorf("writing session %q: %w", id, err)
	}

	now := time.Now()
	meta, err := stored.LoadMetadata()
	if err != nil {
		meta = &Metadata{CreatedAt: now}
	}
	meta.ModelID = s.Model
	meta.Mode = s.Mode
	meta.LastAccessed = now
	if err := stored.SaveMetadata(meta); err != nil {
		return "", fmt.Errorf("writing metadata for session %q: %w", id, err)
	}
	return id, nil
}

// Load reads the session stored under id and marks it as accessed.
func (sm *Manager) Load(ctx context.Context, checker ModelChecker, id string) (*Session, error) {
	stored, err := sm.Find(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(stored.DataPath())
	if err != nil {
		return nil, fmt.Errorf("reading session %q: %w", id, err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parsing session %q: %w", id, err)
	}
	s, err := Deserialize(ctx, checker, &d)
	if err != nil {
		return nil, err
	}

	if meta, err := stored.LoadMetadata(); err == nil {
		meta.LastAccessed = time.Now()
		if err := stored.SaveMetadata(meta); err != nil {
			return nil, fmt.Errorf("updating metadata for session %q: %w", id, err)
		}
	}
	return s, nil
}

// List returns the stored sessions, newest first.
func (sm *Manager) List() ([]*Stored, error) {
	entries, err := os.ReadDir(sm.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type entry struct {
		stored  *Stored
		created time.Time
	}
	var found []entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s := &Stored{
			ID:   e.Name(),
			Path: filepath.Join(sm.BasePath, e.Name()),
		}
		if _, err := os.Stat(s.DataPath()); err != nil {
			continue
		}
		var created time.Time
		if meta, err := s.LoadMetadata(); err == nil {
			created = meta.CreatedAt
		}
		found = append(found, entry{stored: s, created: created})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].created.Equal(found[j].created) {
			return found[i].created.After(found[j].created)
		}
		return found[i].stored.ID > found[j].stored.ID
	})

	sessions := make([]*Stored, 0, len(found))
	for _, e := range found {
		sessions = append(sessions, e.stored)
	}
	return sessions, nil
}

// Latest returns the most recently created session.
func (sm *Manager) Latest() (*Stored, error) {
	sessions, err := sm.List()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrSessionNotFound
	}
	return sessions[0], nil
}

// Find finds a session by its ID.
func (sm *Manager) Find(id string) (*Stored, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s := &Stored{ID: id, Path: filepath.Join(sm.BasePath, id)}
	if _, err := os.Stat(s.DataPath()); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return s, nil
}

// Delete deletes a session and all its data.
func (sm *Manager) Delete(id string) error {
	s, err := sm.Find(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(s.Path)
}
