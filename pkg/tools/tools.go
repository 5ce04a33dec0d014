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

package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/journal"
	"github.com/kbserverapp/kbai/pkg/memory"
)

// ErrUnknownTool is returned when the model asks for a function that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

type Tools struct {
	tools map[string]Tool
}

// New returns an empty registry.
func New() *Tools {
	return &Tools{
		tools: make(map[string]Tool),
	}
}

// NewDefault returns a registry with read_file and write_file backed by store.
func NewDefault(store memory.Store) *Tools {
	t := New()
	t.RegisterTool(NewReadFileTool(store))
	t.RegisterTool(NewWriteFileTool(store))
	return t
}

func (t *Tools) Lookup(name string) Tool {
	return t.tools[name]
}

func (t *Tools) AllTools() []Tool {
	return slices.Collect(maps.Values(t.tools))
}

// Names returns the registered tool names, sorted.
func (t *Tools) Names() []string {
	return slices.Sorted(maps.Keys(t.tools))
}

// RegisterTool makes a tool available to the LLM.
func (t *Tools) RegisterTool(tool Tool) {
	if _, exists := t.tools[tool.Name()]; exists {
		panic("tool already registered: " + tool.Name())
	}
	t.tools[tool.Name()] = tool
}

// FunctionDefinitions returns the schemas advertised to the model, ordered by name.
func (t *Tools) FunctionDefinitions() []*gollm.FunctionDefinition {
	defs := make([]*gollm.FunctionDefinition, 0, len(t.tools))
	for _, name := range t.Names() {
		defs = append(defs, t.tools[name].FunctionDefinition())
	}
	return defs
}

type ToolRequestEvent struct {
	CallID    string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ToolResponseEvent struct {
	CallID   string       `json:"id,omitempty"`
	Response *api.Message `json:"response,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// InvokeTool runs the named tool with the given arguments.
// Lookup failures and tool failures are returned to the caller.
func (t *Tools) InvokeTool(ctx context.Context, name string, arguments map[string]any) (*api.Message, error) {
	tool := t.Lookup(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	callID := uuid.NewString()
	journal.Record(ctx, journal.ActionToolRequest, ToolRequestEvent{
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	})

	response, err := tool.Run(ctx, arguments)

	ev := ToolResponseEvent{
		CallID:   callID,
		Response: response,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	journal.Record(ctx, journal.ActionToolResponse, ev)

	if err != nil {
		return nil, fmt.Errorf("running tool %q: %w", name, err)
	}
	return response, nil
}
