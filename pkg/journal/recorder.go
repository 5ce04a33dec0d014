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

package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

// Action names the kind of engine event being recorded.
type Action string

const (
	ActionGenerateStart Action = "generate-start"
	ActionGenerateDone  Action = "generate-done"
	ActionChatRequest   Action = "chat-request"
	ActionChatResponse  Action = "chat-response"
	ActionMalformedCall Action = "malformed-function-call"
	ActionToolRequest   Action = "tool-request"
	ActionToolResponse  Action = "tool-response"
	ActionCompletion    Action = "completion"
	ActionSessionLoaded Action = "session-loaded"
	ActionModelFallback Action = "model-fallback"
)

// Recorder is an interface for recording a structured log of the engine's requests and callbacks.
type Recorder interface {
	io.Closer

	// Write will add an event to the recorder.
	Write(ctx context.Context, event *Event) error
}

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Payload   any       `json:"payload,omitempty"`
}

// Record writes an event to the recorder carried by ctx.
// A failing recorder is logged; the caller is never interrupted by it.
func Record(ctx context.Context, action Action, payload any) {
	event := &Event{
		Timestamp: time.Now(),
		Action:    action,
		Payload:   payload,
	}
	if err := RecorderFromContext(ctx).Write(ctx, event); err != nil {
		klog.FromContext(ctx).Error(err, "failed to record journal event", "action", action)
	}
}

// FileRecorder writes events to a file as a multi-document YAML stream.
type FileRecorder struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileRecorder creates a new FileRecorder that writes to the given file.
// An existing file is truncated.
func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return &FileRecorder{
		f: file,
	}, nil
}

// Close closes the file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

func (r *FileRecorder) Write(ctx context.Context, event *Event) error {
	yamlBytes, err := yaml.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	var b bytes.Buffer
	b.Write(yamlBytes)
	b.Write([]byte("\n\n---\n\n"))

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.f.Write(b.Bytes())
	return err
}

// MemoryRecorder keeps events in memory, mostly useful in tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *MemoryRecorder) Write(ctx context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryRecorder) Close() error {
	return nil
}

// Events returns a copy of the recorded events.
func (r *MemoryRecorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// Actions returns the recorded actions in order.
func (r *MemoryRecorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]Action, 0, len(r.events))
	for _, ev := range r.events {
		actions = append(actions, ev.Action)
	}
	return actions
}
