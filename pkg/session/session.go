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

// Package session holds the conversational state the engine drives: model
// configuration, message history, the answer transcript and usage totals.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"

	"k8s.io/klog/v2"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/journal"
)

type Mode string

const (
	ModeComplete Mode = "complete"
	ModeChat     Mode = "chat"
)

const (
	DefaultModel     = "gpt-4"
	DefaultMaxTokens = 2000

	// FallbackModel replaces a requested model the API key cannot use.
	FallbackModel = "gpt-3.5-turbo"

	signUpHint = "Sign up for the GPT-4 wait list here: https://openai.com/waitlist/gpt-4-api"
)

// ModelChecker verifies that a model can be used. gollm.Client satisfies it.
type ModelChecker interface {
	RetrieveModel(ctx context.Context, model string) error
}

// Options configures a new Session. Unset containers are allocated per session.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Mode        Mode

	Messages []*api.Message
	Answer   string
	Files    map[string]string
	Stats    *api.Stats
}

// Session is one conversation. It is not safe for concurrent use; callers run
// at most one generation at a time.
type Session struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Mode        Mode

	Messages []*api.Message
	Answer   string
	Files    map[string]string
	Stats    api.Stats
}

// New builds a session and checks that its model is available. A model the
// checker reports as unavailable is replaced by FallbackModel; any other
// check failure is returned. A nil checker skips the check.
func New(ctx context.Context, checker ModelChecker, opts Options) (*Session, error) {
	log := klog.FromContext(ctx)

	s := &Session{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Mode:        opts.Mode,
		Answer:      opts.Answer,
		Messages:    make([]*api.Message, 0, len(opts.Messages)),
		Files:       make(map[string]string, len(opts.Files)),
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Mode == "" {
		s.Mode = ModeComplete
	}
	for _, m := range opts.Messages {
		s.Messages = append(s.Messages, m.Clone())
	}
	maps.Copy(s.Files, opts.Files)
	if opts.Stats != nil {
		s.Stats = *opts.Stats
	}

	if checker == nil {
		return s, nil
	}
	if err := checker.RetrieveModel(ctx, s.Model); err != nil {
		if !errors.Is(err, gollm.ErrModelUnavailable) {
			return nil, fmt.Errorf("checking model %q: %w", s.Model, err)
		}
		log.Error(err, "Requested model is not available")
		klog.Warningf("Model %s not available for provided API key. Reverting to %s. %s", s.Model, FallbackModel, signUpHint)
		journal.Record(ctx, journal.ActionModelFallback, map[string]string{
			"requested": s.Model,
			"fallback":  FallbackModel,
		})
		s.Model = FallbackModel
	}
	log.V(1).Info("Session created", "model", s.Model, "mode", s.Mode)
	return s, nil
}

// Data is the serialized form of a Session.
type Data struct {
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Mode        Mode              `json:"mode"`
	Messages    []*api.Message    `json:"messages"`
	Answer      string            `json:"answer"`
	Files       map[string]string `json:"files"`
	EStats      api.Stats         `json:"e_stats"`
}

// Serialize returns a copy of the session's state. The result shares no
// containers with the session.
func (s *Session) Serialize() *Data {
	d := &Data{
		Model:       s.Model,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Mode:        s.Mode,
		Messages:    make([]*api.Message, 0, len(s.Messages)),
		Answer:      s.Answer,
		Files:       maps.Clone(s.Files),
		EStats:      s.Stats,
	}
	if d.Files == nil {
		d.Files = map[string]string{}
	}
	for _, m := range s.Messages {
		d.Messages = append(d.Messages, m.Clone())
	}
	return d
}

// Options returns the constructor arguments that rebuild this data.
func (d *Data) Options() Options {
	stats := d.EStats
	return Options{
		Model:       d.Model,
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		Mode:        d.Mode,
		Messages:    d.Messages,
		Answer:      d.Answer,
		Files:       d.Files,
		Stats:       &stats,
	}
}

// Deserialize rebuilds a session by passing the data to New.
func Deserialize(ctx context.Context, checker ModelChecker, d *Data) (*Session, error) {
	return New(ctx, checker, d.Options())
}

// ToMap returns the serialized session as a plain nested map.
func (s *Session) ToMap() (map[string]any, error) {
	b, err := json.Marshal(s.Serialize())
	if err != nil {
		return nil, fmt.Errorf("marshalling session: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("converting session to map: %w", err)
	}
	return out, nil
}

// FromMap rebuilds a session from the output of ToMap.
func FromMap(ctx context.Context, checker ModelChecker, m map[string]any) (*Session, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling session map: %w", err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decoding session map: %w", err)
	}
	return Deserialize(ctx, checker, &d)
}

// SaveFile writes the serialized session to path as JSON.
func (s *Session) SaveFile(path string) error {
	b, err := json.MarshalIndent(s.Serialize(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("writing session file %q: %w", path, err)
	}
	return nil
}

// LoadFile reads a session written by SaveFile.
func LoadFile(ctx context.Context, checker ModelChecker, path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file %q: %w", path, err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parsing session file %q: %w", path, err)
	}
	return Deserialize(ctx, checker, &d)
}
