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
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/memory"
)

const (
	ReadFileToolName  = "read_file"
	WriteFileToolName = "write_file"
)

type readFileArgs struct {
	Name string `json:"name" description:"The name of the file to read"`
}

type writeFileArgs struct {
	Name     string `json:"name" description:"The name of the file to write"`
	Contents string `json:"contents" description:"The contents of the file"`
}

// ReadFileTool returns the most recent content stored under a name.
type ReadFileTool struct {
	store memory.Store
}

var _ Tool = &ReadFileTool{}

func NewReadFileTool(store memory.Store) *ReadFileTool {
	return &ReadFileTool{store: store}
}

func (t *ReadFileTool) Name() string {
	return ReadFileToolName
}

func (t *ReadFileTool) Description() string {
	return "Read the contents of a named file"
}

func (t *ReadFileTool) FunctionDefinition() *gollm.FunctionDefinition {
	return &gollm.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  gollm.BuildSchemaFor(reflect.TypeOf(readFileArgs{})),
	}
}

func (t *ReadFileTool) Run(ctx context.Context, args map[string]any) (*api.Message, error) {
	var in readFileArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	contents, err := t.store.Read(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	return &api.Message{
		Role:    api.RoleFunction,
		Name:    ReadFileToolName,
		Content: contents,
	}, nil
}

// WriteFileTool stores content under a name, replacing what was there.
type WriteFileTool struct {
	store memory.Store
}

var _ Tool = &WriteFileTool{}

func NewWriteFileTool(store memory.Store) *WriteFileTool {
	return &WriteFileTool{store: store}
}

func (t *WriteFileTool) Name() string {
	return WriteFileToolName
}

func (t *WriteFileTool) Description() string {
	return "Write the contents to a named file"
}

func (t *WriteFileTool) FunctionDefinition() *gollm.FunctionDefinition {
	return &gollm.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  gollm.BuildSchemaFor(reflect.TypeOf(writeFileArgs{})),
	}
}

func (t *WriteFileTool) Run(ctx context.Context, args map[string]any) (*api.Message, error) {
	var in writeFileArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := t.store.Write(ctx, in.Name, in.Contents); err != nil {
		return nil, err
	}
	return &api.Message{
		Role:    api.RoleFunction,
		Name:    WriteFileToolName,
		Content: "Done.",
	}, nil
}

// decodeArgs converts parsed function-call arguments into a typed struct.
func decodeArgs(args map[string]any, out any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return nil
}
